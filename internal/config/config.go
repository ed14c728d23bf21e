// Package config provides configuration types and defaults for grove.
// Configuration lives in the root's .groverc file, which doubles as the
// root marker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grovekit/grove/internal/linkgraph"
	"github.com/grovekit/grove/internal/log"
	"github.com/grovekit/grove/internal/tracing"
)

// Config holds all configuration options for grove.
type Config struct {
	// LinkKind is the default materialization mechanism for new links:
	// "symlink", "junction", or "copy".
	LinkKind string `mapstructure:"link_kind"`

	// LockTimeout bounds how long mutations wait for the store lock.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	History HistoryConfig  `mapstructure:"history"`
	Tracing tracing.Config `mapstructure:"tracing"`

	// Color toggles styled terminal output.
	Color bool `mapstructure:"color"`
}

// HistoryConfig controls the local exec history database.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Limit is the default number of entries 'grove history' shows.
	Limit int `mapstructure:"limit"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		LinkKind:    string(linkgraph.KindSymlink),
		LockTimeout: 5 * time.Second,
		History: HistoryConfig{
			Enabled: true,
			Limit:   20,
		},
		Tracing: tracing.Config{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // derived from the root's gen/ dir at runtime
			OTLPEndpoint: "localhost:4317",
		},
		Color: true,
	}
}

// Validate checks the configuration for errors. Empty values fall back to
// defaults and are valid.
func (c Config) Validate() error {
	if c.LinkKind != "" && !linkgraph.ValidKind(linkgraph.Kind(c.LinkKind)) {
		return fmt.Errorf("link_kind must be \"symlink\", \"junction\", or \"copy\", got %q", c.LinkKind)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout must not be negative, got %s", c.LockTimeout)
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative, got %d", c.History.Limit)
	}
	switch c.Tracing.Exporter {
	case "", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"file\", \"stdout\", or \"otlp\", got %q", c.Tracing.Exporter)
	}
	return nil
}

// DefaultKind returns the configured default link kind.
func (c Config) DefaultKind() linkgraph.Kind {
	if c.LinkKind == "" {
		return linkgraph.KindSymlink
	}
	return linkgraph.Kind(c.LinkKind)
}

// DefaultConfigTemplate returns the default config as a YAML string with
// comments. This is what 'grove setup' writes into .groverc.
func DefaultConfigTemplate() string {
	return `# Grove root marker and configuration.
# Removing this file stops the directory from being a grove root.

# Default mechanism for new links: "symlink" (default), "junction"
# (windows), or "copy" (filesystems without link support).
link_kind: symlink

# How long mutations wait for the store lock before giving up.
lock_timeout: 5s

# Local exec history, stored in gen/history.db under this root.
history:
  enabled: true
  limit: 20         # Default number of entries 'grove history' shows

# Tracing around exec and reconcile. Disabled by default.
tracing:
  enabled: false
  # exporter: file          # "file" (JSONL under gen/), "stdout", or "otlp"
  # file_path:              # Defaults to gen/traces.jsonl
  # otlp_endpoint: localhost:4317

# Styled terminal output.
color: true
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
// Refuses to overwrite an existing file.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "writing default config", "path", configPath)

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o644); err != nil {
		log.ErrorErr(log.CatConfig, "failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "created default config", "path", configPath)
	return nil
}
