package vaultclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/vaultclient/internal/httputil"
	"github.com/blueberrycongee/vaultclient/internal/metrics"
	"github.com/blueberrycongee/vaultclient/internal/observability"
	"github.com/blueberrycongee/vaultclient/internal/resilience"
	"github.com/blueberrycongee/vaultclient/pkg/credentials"
	vaulterrors "github.com/blueberrycongee/vaultclient/pkg/errors"
	"github.com/blueberrycongee/vaultclient/pkg/resolver"
	"github.com/blueberrycongee/vaultclient/pkg/types"
)

// TokenHeader carries the token on every request.
const TokenHeader = "X-Vault-Token"

const (
	secretPrefix  = "v1/secret/"
	authPrefix    = "v1/auth/"
	sysPrefix     = "v1/sys/"
	transitPrefix = "v1/transit/"
)

// Client reads and writes secrets. It resolves the service address and a
// token on every request, so rotating either takes effect immediately.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	api      *vault.Client
	resolver resolver.URLResolver
	creds    credentials.Source
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	breaker  *resilience.CircuitBreaker
	config   *ClientConfig

	closeOnce sync.Once
	closers   []func() error
}

// New creates a client with the given options.
//
// Example:
//
//	client, err := vaultclient.New(
//	    vaultclient.WithAddress("https://vault:8200"),
//	    vaultclient.WithCredentials(chain),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("address resolver is nil")
	}
	if cfg.Credentials == nil {
		cfg.Credentials = credentials.DefaultChain()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(observability.TracerName)
	}

	apiConfig := vault.DefaultConfig()
	if apiConfig.Error != nil {
		return nil, fmt.Errorf("vault api config: %w", apiConfig.Error)
	}
	apiConfig.Timeout = cfg.Timeout
	apiConfig.MaxRetries = cfg.MaxRetries
	if cfg.Limiter != nil {
		apiConfig.Limiter = cfg.Limiter
	}
	if cfg.TLS != nil {
		if err := apiConfig.ConfigureTLS(cfg.TLS); err != nil {
			return nil, fmt.Errorf("configure tls: %w", err)
		}
	}

	api, err := vault.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault api client: %w", err)
	}
	// Tokens only ever come from the credential source.
	api.ClearToken()

	c := &Client{
		api:      api,
		resolver: cfg.Resolver,
		creds:    cfg.Credentials,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
		config:   cfg,
	}
	if cfg.MetricsRegisterer != nil {
		c.metrics = metrics.New(cfg.MetricsRegisterer)
	}

	if cfg.breaker != nil {
		c.breaker = resilience.NewCircuitBreaker("vault", *cfg.breaker)
		c.breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
			c.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}

	if chain, ok := cfg.Credentials.(*credentials.Chain); ok {
		remove := chain.AddFailureHook(c.credentialFailed)
		c.closers = append(c.closers, func() error {
			remove()
			return nil
		})
	}

	if cfg.manager != nil {
		ctx, cancel := context.WithCancel(context.Background())
		if err := cfg.manager.Watch(ctx); err != nil {
			cancel()
			return nil, fmt.Errorf("watch config file: %w", err)
		}
		c.closers = append(c.closers, func() error {
			cancel()
			return cfg.manager.Close()
		})
	}

	c.logger.Info("vault client initialized",
		"credentials", credentials.Describe(cfg.Credentials),
		"timeout", cfg.Timeout,
		"max_retries", cfg.MaxRetries,
		"rate_limited", cfg.Limiter != nil,
		"circuit_breaker", cfg.breaker != nil,
	)

	return c, nil
}

// Address returns the base URL the next request would use.
func (c *Client) Address() (string, error) {
	return c.resolver.Resolve()
}

// Credentials returns the token source.
func (c *Client) Credentials() credentials.Source {
	return c.creds
}

// Close releases resources such as the config file watcher.
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		for _, fn := range c.closers {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// List returns the keys under path. A missing path yields an empty list.
func (c *Client) List(ctx context.Context, path string) (*types.ListResponse, error) {
	resp, err := c.execute(ctx, &call{
		op:     "list",
		method: http.MethodGet,
		path:   secretPrefix + trimPath(path),
		list:   true,
		expect: []int{http.StatusOK, http.StatusNotFound},
	})
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return &types.ListResponse{Keys: []string{}}, nil
	}

	var out types.ListResponse
	if err := resp.decodeField("data", &out); err != nil {
		return nil, err
	}
	if out.Keys == nil {
		out.Keys = []string{}
	}
	return &out, nil
}

// Read returns the secret stored at path.
func (c *Client) Read(ctx context.Context, path string) (*types.SecretResponse, error) {
	resp, err := c.execute(ctx, &call{
		op:     "read",
		method: http.MethodGet,
		path:   secretPrefix + trimPath(path),
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.SecretResponse
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Write stores data at path, replacing what was there.
func (c *Client) Write(ctx context.Context, path string, data map[string]string) error {
	if data == nil {
		data = map[string]string{}
	}
	_, err := c.execute(ctx, &call{
		op:     "write",
		method: http.MethodPost,
		path:   secretPrefix + trimPath(path),
		body:   data,
		expect: []int{http.StatusNoContent},
	})
	return err
}

// Delete removes the secret at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.execute(ctx, &call{
		op:     "delete",
		method: http.MethodDelete,
		path:   secretPrefix + trimPath(path),
		expect: []int{http.StatusNoContent},
	})
	return err
}

// LookupSelf describes the token the client is currently using.
func (c *Client) LookupSelf(ctx context.Context) (*types.ClientTokenResponse, error) {
	resp, err := c.execute(ctx, &call{
		op:     "lookup_self",
		method: http.MethodGet,
		path:   authPrefix + "token/lookup-self",
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.ClientTokenResponse
	if err := resp.decodeField("data", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call describes one request to the service.
type call struct {
	op      string
	method  string
	path    string // relative, e.g. "v1/secret/app"
	logPath string // path as logged; defaults to path
	list    bool
	body    any
	expect  []int // nil accepts every status
}

type response struct {
	status int
	body   []byte
	call   *call
}

func (r *response) decode(v any) error {
	if err := httputil.DecodeJSON(r.body, v); err != nil {
		return &vaulterrors.ClientError{Message: "invalid response from " + r.call.logPath, StatusCode: r.status, Err: err}
	}
	return nil
}

func (r *response) decodeField(key string, v any) error {
	if err := httputil.DecodeField(r.body, key, v); err != nil {
		return &vaulterrors.ClientError{Message: "invalid response from " + r.call.logPath, StatusCode: r.status, Err: err}
	}
	return nil
}

// execute resolves the address and token, sends the request and checks the
// status against cl.expect. Credentials are resolved exactly once and a
// failure aborts before any network I/O.
func (c *Client) execute(ctx context.Context, cl *call) (*response, error) {
	if cl.logPath == "" {
		cl.logPath = cl.path
	}

	ctx, requestID := observability.GetOrCreateRequestID(ctx)
	ctx, span := observability.StartRequestSpan(ctx, c.tracer, cl.method, cl.logPath)
	defer span.End()

	base, err := c.resolver.Resolve()
	if err != nil {
		err = vaulterrors.NewClientError("resolve vault address", err)
		observability.RecordError(span, err)
		return nil, err
	}
	target, err := url.Parse(base)
	if err != nil {
		err = vaulterrors.NewClientError("resolve vault address", err)
		observability.RecordError(span, err)
		return nil, err
	}

	creds, source, err := c.resolveCredentials()
	if err != nil {
		c.metrics.ObserveCredentialError()
		err = vaulterrors.NewCredentialsError(err)
		observability.RecordError(span, err)
		c.logger.DebugContext(ctx, "vault request aborted", "op", cl.op, "error", err)
		return nil, err
	}
	observability.RecordCredentialSource(span, source)
	c.metrics.ObserveCredentialSource(source)

	payload, err := httputil.EncodeJSON(cl.body)
	if err != nil {
		err = vaulterrors.NewClientError("encode request body", err)
		observability.RecordError(span, err)
		return nil, err
	}

	if c.breaker != nil && !c.breaker.Allow() {
		err := vaulterrors.NewClientError("vault unavailable", resilience.ErrCircuitOpen)
		observability.RecordError(span, err)
		return nil, err
	}

	req := c.api.NewRequest(cl.method, "/"+cl.path)
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	req.URL.Path = strings.TrimRight(target.Path, "/") + "/" + cl.path
	req.Host = target.Host
	req.ClientToken = creds.Token()
	if req.Headers == nil {
		req.Headers = make(http.Header)
	}
	for name, value := range c.config.Headers {
		if http.CanonicalHeaderKey(name) == TokenHeader {
			continue
		}
		req.Headers.Set(name, value)
	}
	req.Headers.Set("Accept", "application/json")
	req.Headers.Set(observability.RequestIDHeader, requestID)
	if payload != nil {
		req.BodyBytes = payload
		req.Headers.Set("Content-Type", "application/json")
	}
	if cl.list {
		req.Params.Set("list", "true")
	}

	start := time.Now()
	// The api client reports non-2xx statuses as errors; those responses are
	// still returned and classified below.
	raw, sendErr := c.api.RawRequestWithContext(ctx, req)
	elapsed := time.Since(start)
	if raw == nil || raw.Response == nil {
		c.recordOutcome(0)
		c.metrics.ObserveRequest(cl.op, cl.method, 0, elapsed)
		err := vaulterrors.NewClientError("I/O error while communicating with vault", sendErr)
		observability.RecordError(span, err)
		c.logger.DebugContext(ctx, "vault request failed", "op", cl.op, "path", cl.logPath, "error", sendErr)
		return nil, err
	}
	defer raw.Body.Close()

	resp := &response{status: raw.StatusCode, call: cl}
	c.recordOutcome(resp.status)
	c.metrics.ObserveRequest(cl.op, cl.method, resp.status, elapsed)
	observability.RecordResponse(span, resp.status)

	resp.body, err = httputil.ReadLimitedBody(raw.Body, c.config.MaxResponseBytes)
	if err != nil {
		err = &vaulterrors.ClientError{Message: "read response body", StatusCode: resp.status, Err: err}
		observability.RecordError(span, err)
		return nil, err
	}

	c.logger.DebugContext(ctx, "vault request",
		"op", cl.op,
		"method", cl.method,
		"path", cl.logPath,
		"status", resp.status,
		"credentials", source,
		"duration", elapsed,
	)

	if !expected(cl.expect, resp.status) {
		serverErr := vaulterrors.NewServerError(resp.status, httputil.ErrorMessages(resp.body))
		serverErr.Method = cl.method
		serverErr.Path = cl.logPath
		observability.RecordError(span, serverErr)
		return nil, serverErr
	}
	return resp, nil
}

// recordOutcome feeds the circuit breaker. Status 0 is a transport failure.
func (c *Client) recordOutcome(status int) {
	if c.breaker == nil {
		return
	}
	if status == 0 || status >= http.StatusInternalServerError {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

// resolveCredentials returns the token and a label for the source that
// supplied it.
func (c *Client) resolveCredentials() (credentials.Credentials, string, error) {
	chain, ok := c.creds.(*credentials.Chain)
	if !ok {
		creds, err := c.creds.Resolve()
		return creds, credentials.Describe(c.creds), err
	}
	creds, src, err := chain.ResolveSource()
	if err != nil {
		return credentials.Credentials{}, "", err
	}
	return creds, credentials.Describe(src), nil
}

func (c *Client) credentialFailed(f credentials.SourceFailure) {
	name := credentials.Describe(f.Source)
	c.metrics.ObserveCredentialFailure(name, f.Cached)
	c.logger.Debug("credential source failed",
		"index", f.Index,
		"source", name,
		"cached", f.Cached,
		"error", f.Err,
	)
	if c.config.OnCredentialFailure != nil {
		c.config.OnCredentialFailure(f)
	}
}

func expected(codes []int, status int) bool {
	if codes == nil {
		return true
	}
	for _, code := range codes {
		if code == status {
			return true
		}
	}
	return false
}

func trimPath(p string) string {
	return strings.Trim(p, "/")
}
