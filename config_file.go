package vaultclient

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/blueberrycongee/vaultclient/internal/config"
	"github.com/blueberrycongee/vaultclient/internal/observability"
	"github.com/blueberrycongee/vaultclient/internal/resilience"
	"github.com/blueberrycongee/vaultclient/pkg/credentials"
	"github.com/blueberrycongee/vaultclient/pkg/resolver"
)

// applyConfigFile loads c.configFile and copies its settings onto c.
func (c *ClientConfig) applyConfigFile() error {
	mgr, err := config.NewManager(c.configFile, c.Logger)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	cfg := mgr.Get()

	if cfg.Vault.Address != "" {
		c.Resolver = resolver.FromConfig(mgr)
	}
	if cfg.Vault.Timeout > 0 {
		c.Timeout = cfg.Vault.Timeout
	}
	c.MaxRetries = cfg.Vault.MaxRetries
	if cfg.Vault.MaxResponseBytes > 0 {
		c.MaxResponseBytes = cfg.Vault.MaxResponseBytes
	}

	if len(cfg.Vault.Headers) > 0 {
		c.Headers = make(map[string]string, len(cfg.Vault.Headers))
		for name, value := range cfg.Vault.Headers {
			c.Headers[name] = value
		}
	}

	if cb := cfg.Vault.CircuitBreaker; cb.Enabled {
		c.breaker = &resilience.CircuitBreakerConfig{
			FailureThreshold: cb.FailureThreshold,
			Timeout:          cb.OpenTimeout,
		}
	}

	chain, err := ChainFromConfig(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	c.Credentials = chain

	if cfg.RateLimit.Enabled {
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize)
	}

	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	c.Logger = observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     os.Stderr,
		JSONFormat: cfg.Logging.Format == "json",
	}, observability.NewRedactor())

	if cfg.Metrics.Enabled {
		c.MetricsRegisterer = prometheus.DefaultRegisterer
	}
	if cfg.Tracing.Enabled {
		c.Tracer = otel.Tracer(observability.TracerName)
	}

	c.manager = mgr
	return nil
}

// ChainFromConfig builds the credential chain described by cfg: the
// environment variable, then the property, then the token file when one is
// configured. Empty names skip the corresponding source.
func ChainFromConfig(cfg config.CredentialsConfig) (*credentials.Chain, error) {
	if cfg.PropertiesFile != "" {
		if err := credentials.LoadProperties(cfg.PropertiesFile); err != nil {
			return nil, err
		}
	}

	var sources []credentials.Source
	if cfg.EnvVar != "" {
		sources = append(sources, credentials.NewEnvironmentSource(cfg.EnvVar))
	}
	if cfg.Property != "" {
		sources = append(sources, credentials.NewPropertySource(cfg.Property))
	}
	if cfg.TokenFile != "" {
		var file credentials.Source = credentials.NewFileSource(cfg.TokenFile)
		if cfg.TokenFileTTL > 0 {
			file = credentials.Cached(file, cfg.TokenFileTTL)
		}
		sources = append(sources, file)
	}

	chain, err := credentials.NewChainFromList(sources)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	chain.SetReuseLastProvider(cfg.ReuseLast)
	return chain, nil
}
