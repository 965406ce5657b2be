package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"crosspromo-engine/internal/app/server"
	"crosspromo-engine/internal/config"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "crosspromo",
	Short: "Cross-promotion campaign sync and asset engine",
	Long: `crosspromo keeps cross-promotion campaign configuration in sync
from the live API, a registered remote-config provider, or the local
backup file, verifies store identifiers against real storefronts, and
caches campaign icons on disk.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		serveCmd.Run(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		config.SetupLogging(cfg.Server.LogLevel)
		server.Run(cfg)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
