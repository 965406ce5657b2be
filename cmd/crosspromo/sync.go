package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"crosspromo-engine/internal/config"
	"crosspromo-engine/internal/freshness"
	"crosspromo-engine/internal/icons"
	"crosspromo-engine/internal/source"
	"crosspromo-engine/internal/store"
	"crosspromo-engine/internal/storefront"
)

// buildResolver wires the sync pipeline without the HTTP server, for
// one-shot commands.
func buildResolver(cfg config.Config) (*source.Resolver, *icons.Service, error) {
	catalog, err := storefront.LoadCatalog(cfg.Storefront.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	client := storefront.NewClient(cfg.IconTimeout(), cfg.IconMinInterval())
	iconSvc := icons.NewService(icons.Config{
		Dir:        cfg.IconDir(),
		FetchDelay: cfg.IconFetchDelay(),
	}, client, catalog)

	resolver := source.NewResolver(source.Config{
		APIBaseURL: cfg.API.BaseURL,
		ProjectID:  cfg.API.ProjectID,
		Token:      cfg.API.Token,
		Timeout:    cfg.APITimeout(),
	}, store.New(cfg.BackupPath()), iconSvc, freshness.New())
	return resolver, iconSvc, nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync against the configured sources and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		config.SetupLogging(cfg.Server.LogLevel)

		resolver, _, err := buildResolver(cfg)
		if err != nil {
			return err
		}
		snap, err := resolver.Sync(context.Background())
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap.Metadata)
	},
}

var iconsCmd = &cobra.Command{
	Use:   "icons",
	Short: "Download missing campaign icons into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		config.SetupLogging(cfg.Server.LogLevel)

		resolver, iconSvc, err := buildResolver(cfg)
		if err != nil {
			return err
		}
		if !resolver.Bootstrap() {
			return fmt.Errorf("no cached campaign data; run sync first")
		}
		snap, _ := resolver.Snapshot()

		res := iconSvc.FetchAllMissing(context.Background(), snap.Document.Campaigns)
		fmt.Printf("fetched %d, skipped %d, failed %d\n", res.Fetched, res.Skipped, res.Failed)
		for _, e := range res.Errors {
			fmt.Fprintln(os.Stderr, e)
		}
		if res.Failed > 0 {
			return fmt.Errorf("%d icon downloads failed", res.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(iconsCmd)
}
