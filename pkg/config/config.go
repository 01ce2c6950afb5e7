// Package config provides unified configuration for the routeway client
// and its command line tools.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. .env file (never overrides variables already set in the process)
//  3. YAML config file (discovered or explicitly specified)
//  4. Environment variable overrides (ROUTEWAY_ prefix)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import (
	"net/http"
	"time"
)

// Config holds all configuration.
type Config struct {
	Client        ClientConfig        `yaml:"client"`
	Logging       LoggingConfig       `yaml:"logging"`
	Storage       StorageConfig       `yaml:"storage"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ClientConfig holds API connection settings.
type ClientConfig struct {
	BaseURL    string        `yaml:"base_url"`     // default: https://api.routeway.ai/v1
	APIKey     string        `yaml:"api_key"`      // optional, falls back to ROUTEWAY_API_KEY
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	Timeout    time.Duration `yaml:"timeout"`      // default: 0 (no limit)
	UserAgent  string        `yaml:"user_agent"`

	Headers map[string]string `yaml:"headers"`

	Retry RetryConfig `yaml:"retry"`
	JWT   JWTConfig   `yaml:"jwt"`
}

// RetryConfig holds transport-level retry settings.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"`      // default: 3
	Statuses        []int         `yaml:"statuses"`         // default: 429, 500, 502, 503, 504
	Methods         []string      `yaml:"methods"`          // default: GET, POST
	InitialInterval time.Duration `yaml:"initial_interval"` // default: 1s
	MaxInterval     time.Duration `yaml:"max_interval"`     // default: 30s
}

// JWTConfig enables minting short-lived bearer tokens instead of sending
// a static API key.
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	SecretFile string        `yaml:"secret_file"` // _file variant for secret
	Issuer     string        `yaml:"issuer"`
	Subject    string        `yaml:"subject"`
	Audience   string        `yaml:"audience"`
	TTL        time.Duration `yaml:"ttl"` // default: 5m
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR, TRACE; default: INFO
	Debug  string `yaml:"debug"`  // comma-separated debug categories or "all"
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// StorageConfig holds transcript recording settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "none"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport string            `yaml:"transport" json:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url" json:"url"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Addr    string `yaml:"addr"`    // default: ":9464"
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Client: ClientConfig{
			BaseURL: "https://api.routeway.ai/v1",
			Retry: RetryConfig{
				MaxRetries:      3,
				Statuses:        []int{429, 500, 502, 503, 504},
				Methods:         []string{http.MethodGet, http.MethodPost},
				InitialInterval: time.Second,
				MaxInterval:     30 * time.Second,
			},
			JWT: JWTConfig{
				TTL: 5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Storage: StorageConfig{
			Type:    "none",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Addr: ":9464",
				Path: "/metrics",
			},
		},
	}
}

// HTTPHeaders converts the configured default headers.
func (c ClientConfig) HTTPHeaders() http.Header {
	if len(c.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	return h
}
