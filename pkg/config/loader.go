package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/routeway/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. .env file (ROUTEWAY_ENV_FILE or ./.env)
//  3. YAML config file (explicit path, ROUTEWAY_CONFIG env, ./routeway.yaml, /etc/routeway/config.yaml)
//  4. Environment variable overrides
//  5. File reference resolution (_file suffix)
//  6. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs into the process environment. Variables
// that are already set keep their value. A missing ./.env is not an error;
// a missing file named by ROUTEWAY_ENV_FILE is.
func loadDotEnv() error {
	path := os.Getenv("ROUTEWAY_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil {
		debug.Log("config", "loaded env file", "path", path)
	}
	return err
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. ROUTEWAY_CONFIG environment variable
// 3. ./routeway.yaml in the current directory
// 4. /etc/routeway/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("ROUTEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"routeway.yaml",
		"/etc/routeway/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps ROUTEWAY_* environment variables to config fields.
// Malformed numeric values are reported rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	if v := os.Getenv("ROUTEWAY_API_KEY"); v != "" {
		cfg.Client.APIKey = v
	}
	if v := os.Getenv("ROUTEWAY_BASE_URL"); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := os.Getenv("ROUTEWAY_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ROUTEWAY_TIMEOUT: %w", err))
		} else {
			cfg.Client.Timeout = d
		}
	}
	if v := os.Getenv("ROUTEWAY_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ROUTEWAY_MAX_RETRIES: %w", err))
		} else {
			cfg.Client.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("ROUTEWAY_JWT_SECRET"); v != "" {
		cfg.Client.JWT.Secret = v
	}
	if v := os.Getenv("ROUTEWAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ROUTEWAY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ROUTEWAY_DEBUG"); v != "" {
		cfg.Logging.Debug = v
	}
	if v := os.Getenv("ROUTEWAY_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("ROUTEWAY_STORAGE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ROUTEWAY_STORAGE_SIZE: %w", err))
		} else {
			cfg.Storage.MaxSize = size
		}
	}
	if v := os.Getenv("ROUTEWAY_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("ROUTEWAY_METRICS_ADDR"); v != "" {
		cfg.Observability.Metrics.Enabled = true
		cfg.Observability.Metrics.Addr = v
	}

	// ROUTEWAY_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("ROUTEWAY_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err != nil {
			errs = append(errs, err)
		} else if len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}

	return errors.Join(errs...)
}

// parseDuration accepts Go duration syntax ("30s") or a plain number of
// seconds ("30", "2.5").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// client.api_key_file -> client.api_key
	if cfg.Client.APIKeyFile != "" && cfg.Client.APIKey == "" {
		val, err := readSecretFile(cfg.Client.APIKeyFile)
		if err != nil {
			return fmt.Errorf("client.api_key_file: %w", err)
		}
		cfg.Client.APIKey = val
	}

	// client.jwt.secret_file -> client.jwt.secret
	if cfg.Client.JWT.SecretFile != "" && cfg.Client.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Client.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("client.jwt.secret_file: %w", err)
		}
		cfg.Client.JWT.Secret = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
