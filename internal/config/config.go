// Package config handles niftool configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/nifbridge/pkg/nifly"
)

// Config holds all tool settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Library LibraryConfig `yaml:"library" toml:"library"`
	Bridge  BridgeConfig  `yaml:"bridge" toml:"bridge"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
	Format  string `yaml:"format" toml:"format"` // console or json
}

// LibraryConfig holds model library settings.
type LibraryConfig struct {
	DefaultGame  string   `yaml:"default_game" toml:"default_game"`
	PackPaths    []string `yaml:"pack_paths" toml:"pack_paths"` // searched last to first
	StrictLoad   bool     `yaml:"strict_load" toml:"strict_load"`
	CacheEntries int      `yaml:"cache_entries" toml:"cache_entries"`
}

// BridgeConfig holds boundary settings.
type BridgeConfig struct {
	MaxHandles int `yaml:"max_handles" toml:"max_handles"` // 0 is unlimited
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Library: LibraryConfig{
			DefaultGame:  string(nifly.GameSkyrimSE),
			CacheEntries: 64,
		},
		Bridge: BridgeConfig{
			MaxHandles: 0,
		},
	}
}

// Validate reports settings no component could run with.
func (c *Config) Validate() error {
	if _, err := nifly.ParseGame(c.Library.DefaultGame); err != nil {
		return fmt.Errorf("library.default_game: %w", err)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	if c.Library.CacheEntries < 0 {
		return fmt.Errorf("library.cache_entries: %d is negative", c.Library.CacheEntries)
	}
	if c.Bridge.MaxHandles < 0 {
		return fmt.Errorf("bridge.max_handles: %d is negative", c.Bridge.MaxHandles)
	}
	return nil
}
