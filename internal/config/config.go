// Package config loads and validates pike-lsp configuration.
//
// Configuration comes from a TOML file (pike-lsp.toml), falling back to
// defaults when the file is absent. The PIKE_LSP_PIKE_BIN environment
// variable overrides the configured Pike binary, which is convenient for
// pointing the server at a development build of Pike.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvPikeBin overrides Pike.Bin when set.
const EnvPikeBin = "PIKE_LSP_PIKE_BIN"

// Config is the full pike-lsp configuration.
type Config struct {
	Pike    PikeConfig    `toml:"pike"`
	Bridge  BridgeConfig  `toml:"bridge"`
	Watcher WatcherConfig `toml:"watcher"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// PikeConfig describes the analyzer process to spawn.
type PikeConfig struct {
	// Bin is the Pike interpreter executable.
	Bin string `toml:"bin"`

	// AnalyzerScript is the Pike script implementing the analyzer
	// protocol, passed as the first argument.
	AnalyzerScript string `toml:"analyzer_script"`

	// Env are additional environment variables for the process.
	Env map[string]string `toml:"env"`

	// WorkDir is the process working directory.
	WorkDir string `toml:"workdir"`
}

// BridgeConfig tunes the request bridge.
type BridgeConfig struct {
	// RequestTimeoutMS is the default per-request budget.
	RequestTimeoutMS int `toml:"request_timeout_ms"`

	// StopGraceMS is how long a graceful stop waits before killing.
	StopGraceMS int `toml:"stop_grace_ms"`

	// CacheSize bounds the result cache entry count.
	CacheSize int `toml:"cache_size"`

	// Denylist holds filename patterns known to crash the analyzer.
	Denylist []string `toml:"denylist"`

	// RestartAfterTimeouts is the consecutive-timeout count at which a
	// restart is recommended.
	RestartAfterTimeouts int `toml:"restart_after_timeouts"`
}

// WatcherConfig tunes workspace file watching.
type WatcherConfig struct {
	// Enabled turns on-disk change tracking on.
	Enabled bool `toml:"enabled"`

	// Extensions are the file suffixes worth invalidating for.
	Extensions []string `toml:"extensions"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Pike: PikeConfig{
			Bin:            "pike",
			AnalyzerScript: "analyzer.pike",
		},
		Bridge: BridgeConfig{
			RequestTimeoutMS:     15000,
			StopGraceMS:          2000,
			CacheSize:            256,
			RestartAfterTimeouts: 3,
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			Extensions: []string{".pike", ".pmod", ".h"},
		},
		LogLevel: "info",
	}
}

// Load reads path if it exists, layering it over the defaults and then
// applying environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Missing file means defaults, not failure.
		case err != nil:
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	if bin := os.Getenv(EnvPikeBin); bin != "" {
		cfg.Pike.Bin = bin
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Pike.Bin == "" {
		return errors.New("pike.bin must not be empty")
	}
	if c.Pike.AnalyzerScript == "" {
		return errors.New("pike.analyzer_script must not be empty")
	}
	if c.Bridge.RequestTimeoutMS <= 0 {
		return fmt.Errorf("bridge.request_timeout_ms must be positive, got %d", c.Bridge.RequestTimeoutMS)
	}
	if c.Bridge.CacheSize <= 0 {
		return fmt.Errorf("bridge.cache_size must be positive, got %d", c.Bridge.CacheSize)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	return nil
}

// RequestTimeout returns the bridge request budget as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Bridge.RequestTimeoutMS) * time.Millisecond
}

// StopGrace returns the graceful-stop budget as a duration.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Bridge.StopGraceMS) * time.Millisecond
}
