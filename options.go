package vaultclient

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/blueberrycongee/vaultclient/internal/config"
	"github.com/blueberrycongee/vaultclient/internal/httputil"
	"github.com/blueberrycongee/vaultclient/internal/resilience"
	"github.com/blueberrycongee/vaultclient/pkg/credentials"
	"github.com/blueberrycongee/vaultclient/pkg/resolver"
)

// DefaultTimeout bounds every request unless WithTimeout overrides it.
const DefaultTimeout = 15 * time.Second

// ClientConfig holds all configuration for a Client.
type ClientConfig struct {
	// Resolver supplies the base URL for each request.
	Resolver resolver.URLResolver

	// Credentials supplies the token for each request.
	Credentials credentials.Source

	// OnCredentialFailure observes failed sources when Credentials is a
	// *credentials.Chain.
	OnCredentialFailure credentials.FailureHook

	// HTTP
	Headers          map[string]string
	Timeout          time.Duration
	MaxRetries       int
	MaxResponseBytes int64
	TLS              *vault.TLSConfig

	// Client-side throttling. Nil disables it.
	Limiter *rate.Limiter

	// Logging
	Logger *slog.Logger

	// Observability
	Tracer            trace.Tracer
	MetricsRegisterer prometheus.Registerer

	breaker    *resilience.CircuitBreakerConfig
	configFile string
	manager    *config.Manager
	err        error
}

// Option is a function that configures the Client.
type Option func(*ClientConfig)

// defaultConfig returns sensible defaults.
func defaultConfig() *ClientConfig {
	return &ClientConfig{
		Resolver:         resolver.Default(),
		Timeout:          DefaultTimeout,
		MaxRetries:       0,
		MaxResponseBytes: httputil.DefaultMaxResponseBodyBytes,
		Logger:           slog.Default(),
	}
}

func (c *ClientConfig) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// WithAddress pins the service address, e.g. "https://vault:8200".
func WithAddress(url string) Option {
	return func(c *ClientConfig) {
		r, err := resolver.Static(url)
		if err != nil {
			c.fail(fmt.Errorf("address: %w", err))
			return
		}
		c.Resolver = r
	}
}

// WithResolver sets a custom address resolver, consulted on every request.
func WithResolver(r resolver.URLResolver) Option {
	return func(c *ClientConfig) {
		c.Resolver = r
	}
}

// WithCredentials sets the token source. The default is
// credentials.DefaultChain().
func WithCredentials(source credentials.Source) Option {
	return func(c *ClientConfig) {
		c.Credentials = source
	}
}

// WithToken uses a fixed token.
func WithToken(token string) Option {
	return func(c *ClientConfig) {
		src, err := credentials.NewStaticSource(token)
		if err != nil {
			c.fail(fmt.Errorf("token: %w", err))
			return
		}
		c.Credentials = src
	}
}

// WithCredentialFailureHook registers a callback for failed credential
// sources. It only applies when the credential source is a chain.
func WithCredentialFailureHook(fn credentials.FailureHook) Option {
	return func(c *ClientConfig) {
		c.OnCredentialFailure = fn
	}
}

// WithHeaders adds default headers to every request. They cannot replace
// the token, Accept or Content-Type headers. Repeated calls merge.
func WithHeaders(headers map[string]string) Option {
	return func(c *ClientConfig) {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(headers))
		}
		for name, value := range headers {
			if strings.TrimSpace(name) == "" {
				c.fail(fmt.Errorf("headers: empty header name"))
				return
			}
			c.Headers[name] = value
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *ClientConfig) {
		c.Timeout = d
	}
}

// WithMaxRetries enables retries of 412, 429 and 5xx responses by the
// transport. Zero, the default, disables them.
func WithMaxRetries(n int) Option {
	return func(c *ClientConfig) {
		c.MaxRetries = n
	}
}

// WithMaxResponseBytes caps response bodies. Zero removes the cap.
func WithMaxResponseBytes(n int64) Option {
	return func(c *ClientConfig) {
		c.MaxResponseBytes = n
	}
}

// WithTLS configures CA and client certificates.
func WithTLS(caCert, clientCert, clientKey string) Option {
	return func(c *ClientConfig) {
		c.TLS = &vault.TLSConfig{
			CACert:     caCert,
			ClientCert: clientCert,
			ClientKey:  clientKey,
		}
	}
}

// WithRateLimit throttles requests to rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *ClientConfig) {
		if rps <= 0 || burst <= 0 {
			c.fail(fmt.Errorf("rate limit: rps and burst must be positive"))
			return
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker refuses requests locally for openFor once threshold
// consecutive requests failed in transport or with a 5xx status.
func WithCircuitBreaker(threshold int, openFor time.Duration) Option {
	return func(c *ClientConfig) {
		if threshold <= 0 || openFor <= 0 {
			c.fail(fmt.Errorf("circuit breaker: threshold and open duration must be positive"))
			return
		}
		c.breaker = &resilience.CircuitBreakerConfig{
			FailureThreshold: threshold,
			Timeout:          openFor,
		}
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *ClientConfig) {
		c.Tracer = tracer
	}
}

// WithMetrics registers Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *ClientConfig) {
		c.MetricsRegisterer = reg
	}
}

// WithConfigFile loads settings from a YAML file. The file is watched and
// the address follows edits until the client is closed. Options given after
// WithConfigFile take precedence.
func WithConfigFile(path string) Option {
	return func(c *ClientConfig) {
		c.configFile = path
		if err := c.applyConfigFile(); err != nil {
			c.fail(err)
		}
	}
}
