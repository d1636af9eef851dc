package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/syssam/pgbucket/bucket"
	"github.com/syssam/pgbucket/service"
)

// Config is the CLI's YAML configuration. Connection settings fall back to
// the environment (after .env loading) so credentials can stay out of the
// file.
type Config struct {
	// Service names the PostgreSQL service; defaults to "pg".
	Service string `yaml:"service"`
	// Connection holds the DSN and statement logging knobs.
	Connection service.Config `yaml:"connection"`
	// Root is the directory holding per-module migration folders.
	Root string `yaml:"root"`
	// Schemas lists bucket schema YAML files or directories of them.
	Schemas []string `yaml:"schemas"`
}

// LoadConfig reads the YAML config, layering .env and environment
// fallbacks for the connection string.
func LoadConfig(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	} else {
		// A missing default .env is not an error.
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if cfg.Service == "" {
		cfg.Service = service.DefaultName
	}
	if cfg.Connection.DSN == "" {
		cfg.Connection.DSN = envOr("PGBUCKET_DSN", "DATABASE_URL")
	}
	if cfg.Connection.DSN == "" {
		return nil, fmt.Errorf("no connection string: set connection.dsn in the config file or PGBUCKET_DSN in the environment")
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	return cfg, nil
}

func envOr(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// LoadSchemas parses every bucket schema named by the config, expanding
// directories into their .yaml files.
func (c *Config) LoadSchemas() ([]*bucket.Schema, error) {
	var paths []string
	for _, p := range c.Schemas {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("schema path %s: %w", p, err)
		}
		if !info.IsDir() {
			paths = append(paths, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if ext == ".yaml" || ext == ".yml" {
				paths = append(paths, filepath.Join(p, e.Name()))
			}
		}
	}

	schemas := make([]*bucket.Schema, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		s := &bucket.Schema{}
		if err := yaml.Unmarshal(raw, s); err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", p, err)
		}
		schemas = append(schemas, s)
	}

	result := bucket.Validate(schemas, bucket.DefaultMeta())
	for _, w := range result.Warnings {
		slog.Warn("bucket schema", "issue", w.Error())
	}
	if result.HasErrors() {
		return nil, fmt.Errorf("invalid bucket schemas:\n%s", result)
	}
	return schemas, nil
}
