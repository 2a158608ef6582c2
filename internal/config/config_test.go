package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "pike", cfg.Pike.Bin)
	assert.Equal(t, 15000, cfg.Bridge.RequestTimeoutMS)
	assert.Equal(t, 256, cfg.Bridge.CacheSize)
	assert.True(t, cfg.Watcher.Enabled)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pike-lsp.toml")
	data := `
log_level = "debug"

[pike]
bin = "/opt/pike/bin/pike"
analyzer_script = "/opt/pike-lsp/analyzer.pike"

[bridge]
request_timeout_ms = 30000
denylist = ["generated_*.pike"]

[watcher]
enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/pike/bin/pike", cfg.Pike.Bin)
	assert.Equal(t, "/opt/pike-lsp/analyzer.pike", cfg.Pike.AnalyzerScript)
	assert.Equal(t, 30000, cfg.Bridge.RequestTimeoutMS)
	assert.Equal(t, []string{"generated_*.pike"}, cfg.Bridge.Denylist)
	assert.False(t, cfg.Watcher.Enabled)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched sections keep their defaults.
	assert.Equal(t, 256, cfg.Bridge.CacheSize)
	assert.Equal(t, []string{".pike", ".pmod", ".h"}, cfg.Watcher.Extensions)
}

func TestLoad_EnvOverridesPikeBin(t *testing.T) {
	t.Setenv(EnvPikeBin, "/usr/local/bin/pike-dev")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/pike-dev", cfg.Pike.Bin)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pike\nbin ="), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"empty pike bin", func(c *Config) { c.Pike.Bin = "" }, "pike.bin"},
		{"empty analyzer script", func(c *Config) { c.Pike.AnalyzerScript = "" }, "analyzer_script"},
		{"zero timeout", func(c *Config) { c.Bridge.RequestTimeoutMS = 0 }, "request_timeout_ms"},
		{"negative cache", func(c *Config) { c.Bridge.CacheSize = -1 }, "cache_size"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 2*time.Second, cfg.StopGrace())
}
