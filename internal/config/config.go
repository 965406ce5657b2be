package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr     string `mapstructure:"addr"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"server"`

	API struct {
		BaseURL        string `mapstructure:"base_url"`
		ProjectID      string `mapstructure:"project_id"`
		Token          string `mapstructure:"token"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"api"`

	Sync struct {
		IntervalSeconds int `mapstructure:"interval_seconds"`
		BackoffSeconds  int `mapstructure:"backoff_seconds"`
		DebounceMillis  int `mapstructure:"debounce_millis"`
	} `mapstructure:"sync"`

	Cache struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"cache"`

	Verify struct {
		DebounceMillis int `mapstructure:"debounce_millis"`
		TimeoutSeconds int `mapstructure:"timeout_seconds"`
	} `mapstructure:"verify"`

	Icons struct {
		FetchDelayMillis  int `mapstructure:"fetch_delay_millis"`
		TimeoutSeconds    int `mapstructure:"timeout_seconds"`
		MinIntervalMillis int `mapstructure:"min_interval_millis"`
	} `mapstructure:"icons"`

	Storefront struct {
		CatalogPath string `mapstructure:"catalog_path"`
	} `mapstructure:"storefront"`
}

func Load() Config {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	validate(&cfg)
	return cfg
}

func validate(c *Config) {
	if c.Server.Addr == "" { c.Server.Addr = ":8080" }
	if c.API.TimeoutSeconds <= 0 { c.API.TimeoutSeconds = 15 }
	if c.Sync.IntervalSeconds <= 0 { c.Sync.IntervalSeconds = 900 }
	if c.Sync.BackoffSeconds <= 0 { c.Sync.BackoffSeconds = 30 }
	if c.Sync.DebounceMillis <= 0 { c.Sync.DebounceMillis = 2000 }
	if c.Cache.Dir == "" { c.Cache.Dir = ".crosspromo" }
	if c.Verify.DebounceMillis <= 0 { c.Verify.DebounceMillis = 1500 }
	if c.Verify.TimeoutSeconds <= 0 { c.Verify.TimeoutSeconds = 10 }
	if c.Icons.FetchDelayMillis <= 0 { c.Icons.FetchDelayMillis = 500 }
	if c.Icons.TimeoutSeconds <= 0 { c.Icons.TimeoutSeconds = 30 }
	if c.Icons.MinIntervalMillis <= 0 { c.Icons.MinIntervalMillis = 250 }
}

func (c Config) APITimeout() time.Duration     { return time.Duration(c.API.TimeoutSeconds) * time.Second }
func (c Config) SyncInterval() time.Duration   { return time.Duration(c.Sync.IntervalSeconds) * time.Second }
func (c Config) SyncBackoff() time.Duration    { return time.Duration(c.Sync.BackoffSeconds) * time.Second }
func (c Config) SyncDebounce() time.Duration   { return time.Duration(c.Sync.DebounceMillis) * time.Millisecond }
func (c Config) VerifyDebounce() time.Duration { return time.Duration(c.Verify.DebounceMillis) * time.Millisecond }
func (c Config) VerifyTimeout() time.Duration  { return time.Duration(c.Verify.TimeoutSeconds) * time.Second }
func (c Config) IconFetchDelay() time.Duration { return time.Duration(c.Icons.FetchDelayMillis) * time.Millisecond }
func (c Config) IconTimeout() time.Duration    { return time.Duration(c.Icons.TimeoutSeconds) * time.Second }
func (c Config) IconMinInterval() time.Duration {
	return time.Duration(c.Icons.MinIntervalMillis) * time.Millisecond
}

// Cache file layout: one backup document, one verification record
// map, one icon directory. No other code writes these paths.
func (c Config) BackupPath() string       { return filepath.Join(c.Cache.Dir, "cross_promo_server.json") }
func (c Config) VerificationPath() string { return filepath.Join(c.Cache.Dir, "verification.json") }
func (c Config) IconDir() string          { return filepath.Join(c.Cache.Dir, "icons") }
