// Package config implements Parseltongue's layered configuration: defaults,
// overridden by an optional YAML file, overridden by environment variables
// — the same three-tier load the teacher's own config.Load follows.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"parseltongue/internal/plog"
)

// StoreConfig configures the persistent graph store (component E).
type StoreConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig configures the ingestion pipeline (component F).
type IngestConfig struct {
	Concurrency  int  `yaml:"concurrency"`
	ExcludeTests bool `yaml:"exclude_tests"`
}

// QueryConfig configures the query engine (component G).
type QueryConfig struct {
	MaxHops        int `yaml:"max_hops"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LoggingConfig configures component-scoped logging (internal/plog).
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// Config is Parseltongue's complete runtime configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Query   QueryConfig   `yaml:"query"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: ".parseltongue/graph.db",
		},
		Ingest: IngestConfig{
			Concurrency:  4,
			ExcludeTests: false,
		},
		Query: QueryConfig{
			MaxHops:        10,
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Dir:     ".parseltongue/logs",
			Level:   "info",
		},
	}
}

// Load reads cfg from path, falling back to defaults if the file is absent,
// then applies environment overrides. A present-but-malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the parent directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PARSELTONGUE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("PARSELTONGUE_INGEST_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ingest.Concurrency = n
		}
	}
	if v := os.Getenv("PARSELTONGUE_QUERY_MAX_HOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Query.MaxHops = n
		}
	}
	if v := os.Getenv("PARSELTONGUE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// PlogConfig adapts this config's Logging block into internal/plog's own
// Config shape, so main can call plog.Initialize(cfg.PlogConfig()) directly.
func (c *Config) PlogConfig() plog.Config {
	return plog.Config{
		Enabled:    c.Logging.Enabled,
		Dir:        c.Logging.Dir,
		Level:      c.Logging.Level,
		JSONFormat: c.Logging.JSONFormat,
		Categories: c.Logging.Categories,
	}
}
