// Package config loads runtime configuration for the kaltrack CLI.
//
// Sources and precedence:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
package config

import "time"

// Config holds runtime settings for the kaltrack CLI.
type Config struct {
	// ServerBaseURL is the backend API root, e.g. "https://api.kaltrack.app".
	ServerBaseURL string

	// DatabasePath is the SQLite database file.
	DatabasePath string

	// ExportDir is where data exports are written.
	ExportDir string

	// SyncInterval is the periodic drain interval.
	SyncInterval time.Duration

	// OnlineCheckInterval is how often reachability is probed.
	OnlineCheckInterval time.Duration

	// HTTPTimeout bounds every gateway request.
	HTTPTimeout time.Duration

	// MaxRetries bounds transient retries per outbox entry.
	MaxRetries int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.DatabasePath = "kaltrack.db"
	c.ExportDir = "exports"
	c.SyncInterval = 30 * time.Minute
	c.OnlineCheckInterval = 15 * time.Second
	c.HTTPTimeout = 30 * time.Second
	c.MaxRetries = 8
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
