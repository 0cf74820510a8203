// Package config handles loading and managing mailsift configuration.
//
// Values resolve through a layered precedence, highest first:
//
//	secrets.toml (deployment secret store)
//	MAILSIFT_* environment variables
//	config.toml
//	built-in defaults
//
// Resolution happens once per process; the resulting Config is treated
// as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rotisserie/eris"

	"github.com/afpdata/mailsift/internal/search"
)

// ErrConfiguration marks missing or unresolvable store identifiers.
// Search is disabled with a persistent warning; the process keeps
// running.
var ErrConfiguration = eris.New("store configuration incomplete")

// Config represents the mailsift configuration.
type Config struct {
	Store  StoreConfig  `toml:"store"`
	Server ServerConfig `toml:"server"`
	Search SearchConfig `toml:"search"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// StoreConfig locates the email store.
type StoreConfig struct {
	Database     string   `toml:"database"`      // DuckDB database path
	Table        string   `toml:"table"`         // primary email table
	SummaryTable string   `toml:"summary_table"` // joined summary/category table
	Categories   []string `toml:"categories"`    // optional static category list
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	BindAddr        string   `toml:"bind_addr"`       // default 127.0.0.1
	Port            int      `toml:"port"`            // default 8080
	SessionSecret   string   `toml:"session_secret"`  // shared secret gating all access
	CORSOrigins     []string `toml:"cors_origins"`    // CORS disabled when empty
	CORSCredentials bool     `toml:"cors_credentials"`
}

// SearchConfig holds search behavior settings.
type SearchConfig struct {
	DefaultLimit    int `toml:"default_limit"`     // default 100
	MinLimit        int `toml:"min_limit"`         // default 10
	MaxLimit        int `toml:"max_limit"`         // default 500
	CacheTTLSeconds int `toml:"cache_ttl_seconds"` // default 300
}

// DefaultHome returns the default mailsift home directory.
// Respects the MAILSIFT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILSIFT_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailsift"
	}
	return filepath.Join(home, ".mailsift")
}

// Load reads the configuration from the specified file. If path is
// empty, uses the default location (~/.mailsift/config.toml). The
// config file is optional; the env and secrets layers apply on top.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Store: StoreConfig{
			Database: filepath.Join(homeDir, "emails.duckdb"),
		},
		Server: ServerConfig{
			BindAddr: "127.0.0.1",
			Port:     8080,
		},
		Search: SearchConfig{
			DefaultLimit:    100,
			MinLimit:        10,
			MaxLimit:        500,
			CacheTTLSeconds: 300,
		},
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnv()

	// Deployment secrets override everything else, mirroring how the
	// hosted deployment injects credentials.
	secretsPath := filepath.Join(homeDir, "secrets.toml")
	if _, err := os.Stat(secretsPath); err == nil {
		if _, err := toml.DecodeFile(secretsPath, cfg); err != nil {
			return nil, fmt.Errorf("decode secrets: %w", err)
		}
	}

	cfg.Store.Database = expandPath(cfg.Store.Database)
	cfg.HomeDir = homeDir
	return cfg, nil
}

// applyEnv overlays MAILSIFT_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("MAILSIFT_DATABASE"); v != "" {
		c.Store.Database = v
	}
	if v := os.Getenv("MAILSIFT_TABLE"); v != "" {
		c.Store.Table = v
	}
	if v := os.Getenv("MAILSIFT_SUMMARY_TABLE"); v != "" {
		c.Store.SummaryTable = v
	}
	if v := os.Getenv("MAILSIFT_SESSION_SECRET"); v != "" {
		c.Server.SessionSecret = v
	}
	if v := os.Getenv("MAILSIFT_BIND_ADDR"); v != "" {
		c.Server.BindAddr = v
	}
	if v := os.Getenv("MAILSIFT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// ValidateStore checks that the store identifiers needed to compile
// and run queries are present.
func (c *Config) ValidateStore() error {
	var missing []string
	if c.Store.Database == "" {
		missing = append(missing, "store.database")
	}
	if c.Store.Table == "" {
		missing = append(missing, "store.table")
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrConfiguration, "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// StoreIdentifiers returns the compile-time table identifiers.
func (c *Config) StoreIdentifiers() search.StoreConfig {
	return search.StoreConfig{
		Table:        c.Store.Table,
		SummaryTable: c.Store.SummaryTable,
	}
}

// CacheTTL returns the result cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Search.CacheTTLSeconds) * time.Second
}

// ClampLimit forces a requested result cap into the configured range,
// substituting the default when the request didn't set one.
func (c *Config) ClampLimit(limit int) int {
	if limit == 0 {
		return c.Search.DefaultLimit
	}
	if limit < c.Search.MinLimit {
		return c.Search.MinLimit
	}
	if limit > c.Search.MaxLimit {
		return c.Search.MaxLimit
	}
	return limit
}

// ConfigFilePath returns the path of the loaded config file location.
func (c *Config) ConfigFilePath() string {
	return filepath.Join(c.HomeDir, "config.toml")
}

// EnsureHomeDir creates the home directory if needed.
func (c *Config) EnsureHomeDir() error {
	return os.MkdirAll(c.HomeDir, 0o755)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
