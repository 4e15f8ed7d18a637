// Package config provides configuration management for rowcache.
//
// The config file names the main database, the schemas attached next to it,
// and how the process logs, seeds and shuts down. Relative database paths
// are resolved against the directory of the config file.
//
// Config file locations (priority order):
//  1. $ROWCACHE_CONFIG
//  2. ./rowcache.yaml
//  3. $XDG_CONFIG_HOME/rowcache/config.yaml
//  4. ~/.config/rowcache/config.yaml
//  5. /etc/rowcache/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rowcache/internal/logging"
)

const (
	// DefaultDatabasePath is used when the config names no database
	DefaultDatabasePath = "./rowcache.db"
	// DefaultDebounce is the default quiet period of the file watcher
	DefaultDebounce = 250 * time.Millisecond
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = Duration(DefaultDebounce)
	}
}

// resolvePaths makes relative file paths relative to dir
func (c *Config) resolvePaths(dir string) {
	c.Database.Path = ResolvePath(dir, c.Database.Path)
	for name, p := range c.Schemas {
		c.Schemas[name] = ResolvePath(dir, p)
	}
	if c.Seeds.Path != "" {
		c.Seeds.Path = ResolvePath(dir, c.Seeds.Path)
	}
}

// Validate checks the schema names
func (c *Config) Validate() error {
	for name, p := range c.Schemas {
		if name == "" || strings.EqualFold(name, "main") || strings.EqualFold(name, "temp") {
			return fmt.Errorf("invalid schema name %q", name)
		}
		if p == "" {
			return fmt.Errorf("schema %s has no path", name)
		}
	}
	return nil
}

// SaveOnShutdown reports whether dirty tables are saved before closing
func (c *Config) SaveOnShutdown() bool {
	return c.Shutdown.Save == nil || *c.Shutdown.Save
}

// SchemaNames returns the attached schema names in sorted order
func (c *Config) SchemaNames() []string {
	names := make([]string, 0, len(c.Schemas))
	for name := range c.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogSettings returns the parsed logging level and format
func (c *Config) LogSettings() (logging.Level, logging.Format) {
	return logging.ParseLevel(c.Logging.Level), logging.ParseFormat(c.Logging.Format)
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Database: %s\n", c.Database.Path)
	for _, name := range c.SchemaNames() {
		summary += fmt.Sprintf("Schema %s: %s\n", name, c.Schemas[name])
	}
	summary += fmt.Sprintf("Logging: %s/%s, save on shutdown: %t", c.Logging.Level, c.Logging.Format, c.SaveOnShutdown())
	return summary
}
