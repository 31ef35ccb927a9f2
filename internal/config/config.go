package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type SandboxConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PythonBin     string        `yaml:"python_bin"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxTimeout    time.Duration `yaml:"max_timeout"`
	MaxOutputLen  int           `yaml:"max_output_len"`
	MaxCodeLen    int           `yaml:"max_code_len"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Directory string        `yaml:"directory"`
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type SecurityConfig struct {
	APIKeyHeader   string   `yaml:"api_key_header"`
	AllowedKeys    []string `yaml:"allowed_keys"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    65 * time.Second, // > max sandbox timeout + overhead
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB
		},
		Sandbox: SandboxConfig{
			Enabled:       true,
			PythonBin:     "python3",
			Timeout:       10 * time.Second,
			MaxTimeout:    60 * time.Second,
			MaxOutputLen:  10000,
			MaxCodeLen:    50000,
			MaxConcurrent: 100,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Directory: "cache",
			MaxSizeMB: 100,
			TTL:       24 * time.Hour,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Security: SecurityConfig{
			APIKeyHeader:   "X-API-Key",
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Sandbox.MaxTimeout > 60*time.Second {
		return fmt.Errorf("sandbox.max_timeout must be <= 60s, got %s", c.Sandbox.MaxTimeout)
	}
	if c.Sandbox.Timeout < time.Second || c.Sandbox.Timeout > c.Sandbox.MaxTimeout {
		return fmt.Errorf("sandbox.timeout must be between 1s and max_timeout (%s), got %s",
			c.Sandbox.MaxTimeout, c.Sandbox.Timeout)
	}
	if c.Sandbox.MaxOutputLen < 1 {
		return fmt.Errorf("sandbox.max_output_len must be >= 1, got %d", c.Sandbox.MaxOutputLen)
	}
	if c.Sandbox.MaxCodeLen < 1 {
		return fmt.Errorf("sandbox.max_code_len must be >= 1, got %d", c.Sandbox.MaxCodeLen)
	}
	if c.Sandbox.MaxConcurrent < 1 {
		return fmt.Errorf("sandbox.max_concurrent must be >= 1")
	}
	if c.Cache.Enabled {
		if c.Cache.Directory == "" {
			return fmt.Errorf("cache.directory is required when cache is enabled")
		}
		if c.Cache.MaxSizeMB < 1 {
			return fmt.Errorf("cache.max_size_mb must be >= 1, got %d", c.Cache.MaxSizeMB)
		}
		if c.Cache.TTL < time.Minute {
			return fmt.Errorf("cache.ttl must be >= 1m, got %s", c.Cache.TTL)
		}
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
