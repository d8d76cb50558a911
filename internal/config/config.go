// Package config loads client settings from YAML with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps so
// readers never observe a partially loaded configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration.
type Config struct {
	Vault       VaultConfig       `yaml:"vault"`
	Credentials CredentialsConfig `yaml:"credentials"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// VaultConfig contains connection settings for the secrets service.
type VaultConfig struct {
	Address          string        `yaml:"address"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig stops sending requests to a failing server.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// CredentialsConfig controls how the token is resolved.
type CredentialsConfig struct {
	EnvVar         string        `yaml:"env_var"`
	Property       string        `yaml:"property"`
	PropertiesFile string        `yaml:"properties_file"`
	TokenFile      string        `yaml:"token_file"`
	TokenFileTTL   time.Duration `yaml:"token_file_ttl"`
	ReuseLast      bool          `yaml:"reuse_last"`
}

// RateLimitConfig defines client-side request throttling.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Vault: VaultConfig{
			Timeout:          15 * time.Second,
			MaxRetries:       0,
			MaxResponseBytes: 4 << 20,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
		},
		Credentials: CredentialsConfig{
			EnvVar:       "VAULT_TOKEN",
			Property:     "vault.token",
			TokenFileTTL: time.Minute,
			ReuseLast:    true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			BurstSize:         10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "vaultclient",
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Vault.Address != "" {
		if err := ValidateAddress(c.Vault.Address); err != nil {
			return fmt.Errorf("vault.address: %w", err)
		}
	}
	if c.Vault.Timeout < 0 {
		return fmt.Errorf("vault.timeout cannot be negative")
	}
	if c.Vault.MaxRetries < 0 {
		return fmt.Errorf("vault.max_retries cannot be negative")
	}
	if c.Vault.MaxResponseBytes < 0 {
		return fmt.Errorf("vault.max_response_bytes cannot be negative")
	}
	if cb := c.Vault.CircuitBreaker; cb.Enabled && (cb.FailureThreshold <= 0 || cb.OpenTimeout <= 0) {
		return fmt.Errorf("vault.circuit_breaker needs a positive failure_threshold and open_timeout when enabled")
	}
	if c.Credentials.TokenFileTTL < 0 {
		return fmt.Errorf("credentials.token_file_ttl cannot be negative")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive when enabled")
		}
		if c.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive when enabled")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format)
	}

	return nil
}

// ValidateAddress checks that addr is an absolute http or https URL.
func ValidateAddress(addr string) error {
	u, err := url.Parse(strings.TrimSpace(addr))
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid address %q: scheme must be http or https", addr)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid address %q: missing host", addr)
	}
	return nil
}
