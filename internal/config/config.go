// Package config loads the operational configuration for the outer layers
// (audit log, session store, servers, logging). The decision core itself
// takes no configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/humanloop/internal/alert"
	"github.com/ppiankov/humanloop/internal/invariant"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlite_path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// ServerConfig configures the gRPC and metrics listeners.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Config holds every configurable parameter.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	AuditLog string         `yaml:"audit_log"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Alerts   []alert.Config `yaml:"alerts"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		AuditLog: filepath.Join(baseDir(), "audit.jsonl"),
		Store: StoreConfig{
			Backend:     BackendSQLite,
			SQLitePath:  filepath.Join(baseDir(), "sessions.db"),
			RedisPrefix: "humanloop:",
		},
		Server: ServerConfig{Port: 50061, MetricsAddr: ":9464"},
	}
}

// DefaultPath returns ~/.humanloop/config.yaml.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

// Load reads configuration from a YAML file and returns it with the
// SHA-256 of the raw bytes. Empty path falls back to DefaultPath.
// A missing file yields defaults (hash of empty input). Invalid YAML or a
// forbidden override directive is an error.
func Load(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashBytes(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	if err := invariant.ScanForbidden(path, data); err != nil {
		return nil, "", fmt.Errorf("refusing config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, hashBytes(data), nil
}

// Validate checks field values that YAML decoding cannot.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("config: store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q (want memory|sqlite|redis)", c.Store.Backend)
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLitePath == "" {
		return fmt.Errorf("config: store.sqlite_path is required for the sqlite backend")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	for i, a := range c.Alerts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("config: alerts[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *Config) expandPaths() {
	c.AuditLog = expandHome(c.AuditLog)
	c.Store.SQLitePath = expandHome(c.Store.SQLitePath)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "humanloop")
	}
	return filepath.Join(home, ".humanloop")
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultConfigYAML returns a commented YAML string for `humanloop init`.
func DefaultConfigYAML() string {
	return `# humanloop configuration
#
# The decision core takes no configuration: actor roles, trust zones,
# validation rules, and the workflow table are compiled in. This file
# only configures the layers around it.

log:
  level: info      # debug | info | warn | error
  format: text     # text | json

# Hash-chained JSONL audit trail of every validation, transition, and decision.
audit_log: ~/.humanloop/audit.jsonl

# Where workflow sessions are persisted.
store:
  backend: sqlite  # memory | sqlite | redis
  sqlite_path: ~/.humanloop/sessions.db
  redis_addr: ""
  redis_db: 0
  redis_prefix: "humanloop:"

server:
  port: 50061
  metrics_addr: ":9464"

# Webhooks notified when a session decision matches one of their events.
# alerts:
#   - url: https://hooks.slack.com/services/...
#     format: slack        # generic | slack | pagerduty
#     events: [ESCALATE, DENY]
alerts: []
`
}
