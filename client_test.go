package vaultclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/vaultclient/internal/resilience"
	"github.com/blueberrycongee/vaultclient/pkg/credentials"
	vaulterrors "github.com/blueberrycongee/vaultclient/pkg/errors"
	"github.com/blueberrycongee/vaultclient/pkg/resolver"
)

// recordedRequest is what the fake server saw.
type recordedRequest struct {
	Method      string
	Path        string
	Query       string
	Token       string
	Accept      string
	ContentType string
	Header      http.Header
	Body        []byte
}

// fakeVault serves canned responses keyed by "METHOD /path".
type fakeVault struct {
	t        *testing.T
	mu       sync.Mutex
	routes   map[string]fakeRoute
	requests []recordedRequest
	server   *httptest.Server
}

type fakeRoute struct {
	status int
	body   string
}

func newFakeVault(t *testing.T) *fakeVault {
	t.Helper()
	fv := &fakeVault{t: t, routes: make(map[string]fakeRoute)}
	fv.server = httptest.NewServer(http.HandlerFunc(fv.serve))
	t.Cleanup(fv.server.Close)
	return fv
}

func (fv *fakeVault) on(method, path string, status int, body string) {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	fv.routes[method+" "+path] = fakeRoute{status: status, body: body}
}

func (fv *fakeVault) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	fv.mu.Lock()
	fv.requests = append(fv.requests, recordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.RawQuery,
		Token:       r.Header.Get(TokenHeader),
		Accept:      r.Header.Get("Accept"),
		ContentType: r.Header.Get("Content-Type"),
		Header:      r.Header.Clone(),
		Body:        body,
	})
	route, ok := fv.routes[r.Method+" "+r.URL.Path]
	fv.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[]}`))
		return
	}
	if route.body != "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(route.status)
	_, _ = w.Write([]byte(route.body))
}

func (fv *fakeVault) recorded() []recordedRequest {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	return append([]recordedRequest(nil), fv.requests...)
}

func (fv *fakeVault) last() recordedRequest {
	fv.t.Helper()
	reqs := fv.recorded()
	require.NotEmpty(fv.t, reqs, "no request reached the server")
	return reqs[len(reqs)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, fv *fakeVault, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithAddress(fv.server.URL),
		WithToken("test-token"),
		WithLogger(discardLogger()),
	}
	client, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew_OptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"address without scheme", WithAddress("vault:8200")},
		{"blank address", WithAddress(" ")},
		{"blank token", WithToken("   ")},
		{"zero rate limit", WithRateLimit(0, 1)},
		{"blank header name", WithHeaders(map[string]string{" ": "x"})},
		{"missing config file", WithConfigFile(filepath.Join(os.TempDir(), "does-not-exist.yaml"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt, WithLogger(discardLogger()))
			assert.Error(t, err)
		})
	}
}

func TestNew_DefaultsToDefaultChain(t *testing.T) {
	client, err := New(WithAddress("http://127.0.0.1:8200"), WithLogger(discardLogger()))
	require.NoError(t, err)
	defer client.Close()

	chain, ok := client.Credentials().(*credentials.Chain)
	require.True(t, ok, "default credentials should be a chain")
	assert.Len(t, chain.Sources(), 2)
	assert.True(t, chain.ReuseLastProvider())

	addr, err := client.Address()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8200", addr)
}

func TestList(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/app", http.StatusOK, `{"data":{"keys":["db","api/"]}}`)
	client := newTestClient(t, fv)

	resp, err := client.List(context.Background(), "/app/")
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "api/"}, resp.Keys)

	req := fv.last()
	assert.Equal(t, "list=true", req.Query)
	assert.Equal(t, "test-token", req.Token)
	assert.Equal(t, "application/json", req.Accept)
	assert.Empty(t, req.Body)
}

func TestList_NotFoundIsEmpty(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/missing", http.StatusNotFound, `{"errors":[]}`)
	client := newTestClient(t, fv)

	resp, err := client.List(context.Background(), "missing")
	require.NoError(t, err)
	require.NotNil(t, resp.Keys)
	assert.Empty(t, resp.Keys)
}

func TestRead(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/app/db", http.StatusOK,
		`{"lease_duration":2764800,"data":{"user":"app","password":"hunter2"}}`)
	client := newTestClient(t, fv)

	resp, err := client.Read(context.Background(), "app/db")
	require.NoError(t, err)
	password, ok := resp.Value("password")
	assert.True(t, ok)
	assert.Equal(t, "hunter2", password)
	assert.Empty(t, fv.last().Query)
}

func TestWrite(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("POST", "/v1/secret/app/db", http.StatusNoContent, "")
	client := newTestClient(t, fv)

	err := client.Write(context.Background(), "app/db", map[string]string{"password": "s3cret"})
	require.NoError(t, err)

	req := fv.last()
	assert.Equal(t, "application/json", req.ContentType)
	var sent map[string]string
	require.NoError(t, json.Unmarshal(req.Body, &sent))
	assert.Equal(t, map[string]string{"password": "s3cret"}, sent)
}

func TestWrite_UnexpectedStatus(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("POST", "/v1/secret/app/db", http.StatusOK, `{}`)
	client := newTestClient(t, fv)

	err := client.Write(context.Background(), "app/db", nil)
	var serverErr *vaulterrors.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusOK, serverErr.StatusCode)
	assert.Empty(t, serverErr.Errors)
}

func TestDelete(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("DELETE", "/v1/secret/app/db", http.StatusNoContent, "")
	client := newTestClient(t, fv)

	require.NoError(t, client.Delete(context.Background(), "app/db"))
	assert.Equal(t, "DELETE", fv.last().Method)
}

func TestLookupSelf(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/auth/token/lookup-self", http.StatusOK,
		`{"data":{"id":"test-token","policies":["root"],"path":"auth/token/root","meta":null,"display_name":"root","num_uses":0}}`)
	client := newTestClient(t, fv)

	resp, err := client.LookupSelf(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token", resp.ID)
	assert.Equal(t, []string{"root"}, resp.Policies)
	assert.Equal(t, "root", resp.DisplayName)
}

func TestServerError(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/locked", http.StatusForbidden, `{"errors":["permission denied"]}`)
	fv.on("GET", "/v1/secret/broken", http.StatusBadGateway, "")
	client := newTestClient(t, fv)

	_, err := client.Read(context.Background(), "locked")
	var serverErr *vaulterrors.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusForbidden, serverErr.StatusCode)
	assert.Equal(t, []string{"permission denied"}, serverErr.Errors)
	assert.Equal(t, vaulterrors.TypePermissionDenied, serverErr.Type)
	assert.Equal(t, "v1/secret/locked", serverErr.Path)
	assert.True(t, vaulterrors.IsAuthentication(err))

	_, err = client.Read(context.Background(), "broken")
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusBadGateway, serverErr.StatusCode)
	assert.NotNil(t, serverErr.Errors)
	assert.Empty(t, serverErr.Errors)
}

func TestInvalidBodyIsClientError(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/garbled", http.StatusOK, `not json`)
	client := newTestClient(t, fv)

	_, err := client.Read(context.Background(), "garbled")
	var clientErr *vaulterrors.ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, http.StatusOK, clientErr.StatusCode)
}

func TestResponseTooLarge(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/big", http.StatusOK, `{"data":{"blob":"`+strings.Repeat("x", 256)+`"}}`)
	client := newTestClient(t, fv, WithMaxResponseBytes(64))

	_, err := client.Read(context.Background(), "big")
	var clientErr *vaulterrors.ClientError
	require.ErrorAs(t, err, &clientErr)
}

func TestCredentialsFailureSkipsNetwork(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/app", http.StatusOK, `{"data":{}}`)

	empty := func(string) (string, bool) { return "", false }
	chain, err := credentials.NewChain(
		credentials.NewEnvironmentSourceWithLookup("VAULT_TOKEN", empty),
		credentials.NewPropertySourceWithLookup("vault.token", empty),
	)
	require.NoError(t, err)

	client, err := New(
		WithAddress(fv.server.URL),
		WithCredentials(chain),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Read(context.Background(), "app")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCredentials))
	assert.True(t, errors.Is(err, credentials.ErrAllSourcesExhausted))
	assert.True(t, vaulterrors.IsAuthentication(err))
	assert.Empty(t, fv.recorded(), "no request should be sent without credentials")
}

func TestStickyChainAcrossRequests(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("DELETE", "/v1/secret/x", http.StatusNoContent, "")

	var envCalls, propCalls atomic.Int32
	var envToken atomic.Value
	envToken.Store("")

	env := credentials.SourceFunc(func() (credentials.Credentials, error) {
		envCalls.Add(1)
		if tok := envToken.Load().(string); tok != "" {
			return credentials.NewTokenCredentials(tok), nil
		}
		return credentials.Credentials{}, credentials.ErrSourceExhausted
	})
	prop := credentials.SourceFunc(func() (credentials.Credentials, error) {
		propCalls.Add(1)
		return credentials.NewTokenCredentials("prop-token"), nil
	})
	chain, err := credentials.NewChain(env, prop)
	require.NoError(t, err)

	var failures []credentials.SourceFailure
	var mu sync.Mutex
	client, err := New(
		WithAddress(fv.server.URL),
		WithCredentials(chain),
		WithLogger(discardLogger()),
		WithCredentialFailureHook(func(f credentials.SourceFailure) {
			mu.Lock()
			failures = append(failures, f)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Delete(ctx, "x"))
	require.NoError(t, client.Delete(ctx, "x"))

	// The second request goes straight to the cached property source.
	assert.Equal(t, int32(1), envCalls.Load())
	assert.Equal(t, int32(2), propCalls.Load())

	envToken.Store("env-token")
	require.NoError(t, client.Delete(ctx, "x"))
	assert.Equal(t, "prop-token", fv.last().Token, "sticky source keeps winning while it succeeds")

	reqs := fv.recorded()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.Equal(t, "prop-token", r.Token)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	assert.Equal(t, 0, failures[0].Index)
	assert.False(t, failures[0].Cached)
}

func TestTransportErrorIsClientError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, err := New(WithAddress(addr), WithToken("t"), WithLogger(discardLogger()))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.List(context.Background(), "app")
	var clientErr *vaulterrors.ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, "I/O error while communicating with vault", clientErr.Message)
	assert.Zero(t, clientErr.StatusCode)
}

func TestResolverConsultedPerRequest(t *testing.T) {
	first := newFakeVault(t)
	second := newFakeVault(t)
	first.on("DELETE", "/v1/secret/k", http.StatusNoContent, "")
	second.on("DELETE", "/v1/secret/k", http.StatusNoContent, "")

	var current atomic.Value
	current.Store(first.server.URL)

	client, err := New(
		WithResolver(resolver.Func(func() (string, error) { return current.Load().(string), nil })),
		WithToken("t"),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Delete(context.Background(), "k"))
	current.Store(second.server.URL)
	require.NoError(t, client.Delete(context.Background(), "k"))

	assert.Len(t, first.recorded(), 1)
	assert.Len(t, second.recorded(), 1)
}

func TestResolverFailure(t *testing.T) {
	client, err := New(
		WithResolver(resolver.Func(func() (string, error) { return "", resolver.ErrNoAddress })),
		WithToken("t"),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Read(context.Background(), "app")
	assert.ErrorIs(t, err, resolver.ErrNoAddress)
}

func TestMetrics(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/app", http.StatusOK, `{"data":{"k":"v"}}`)

	reg := prometheus.NewRegistry()
	client := newTestClient(t, fv, WithMetrics(reg))

	_, err := client.Read(context.Background(), "app")
	require.NoError(t, err)
	_, err = client.Read(context.Background(), "missing")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "vaultclient_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per status")
}

func TestLogsNeverContainToken(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/app", http.StatusOK, `{"data":{"k":"v"}}`)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := newTestClient(t, fv, WithLogger(logger), WithToken("super-secret-token"))

	_, err := client.Read(context.Background(), "app")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "vault request")
	assert.NotContains(t, buf.String(), "super-secret-token")
}

func TestWithConfigFile(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/app", http.StatusOK, `{"data":{"k":"v"}}`)

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("file-token\n"), 0600))

	path := filepath.Join(t.TempDir(), "vaultclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vault:
  address: `+fv.server.URL+`
  timeout: 2s
  headers:
    X-Vault-Namespace: team-a
credentials:
  env_var: VAULTCLIENT_TEST_UNSET_TOKEN
  property: vaultclient.test.unset
  token_file: `+tokenFile+`
logging:
  level: error
`), 0600))

	client, err := New(WithConfigFile(path))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Read(context.Background(), "app")
	require.NoError(t, err)
	assert.Equal(t, "file-token", fv.last().Token)
	assert.Equal(t, "team-a", fv.last().Header.Get("X-Vault-Namespace"))
	assert.Equal(t, "2s", client.config.Timeout.String())
}

func TestCircuitBreakerFailsFast(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/flaky", http.StatusBadGateway, `{"errors":["upstream"]}`)
	fv.on("GET", "/v1/secret/missing", http.StatusNotFound, `{"errors":[]}`)
	client := newTestClient(t, fv, WithCircuitBreaker(2, time.Hour))
	ctx := context.Background()

	// 4xx answers come from a healthy server and never trip the breaker.
	for i := 0; i < 3; i++ {
		_, err := client.Read(ctx, "missing")
		require.Error(t, err)
	}

	for i := 0; i < 2; i++ {
		_, err := client.Read(ctx, "flaky")
		var serverErr *vaulterrors.ServerError
		require.ErrorAs(t, err, &serverErr)
	}
	require.Len(t, fv.recorded(), 5)

	_, err := client.Read(ctx, "flaky")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, fv.recorded(), 5, "an open circuit sends nothing")
}

func TestWithCircuitBreaker_RejectsInvalidSettings(t *testing.T) {
	_, err := New(WithAddress("http://127.0.0.1:8200"), WithToken("t"), WithCircuitBreaker(0, time.Second))
	assert.Error(t, err)
}

func TestWithHeaders(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("POST", "/v1/secret/app", http.StatusNoContent, "")

	client := newTestClient(t, fv,
		WithHeaders(map[string]string{"X-Team": "payments"}),
		WithHeaders(map[string]string{
			"X-Vault-Namespace": "ns1",
			"Accept":            "text/plain",
			"Content-Type":      "text/plain",
			"x-vault-token":     "not-the-token",
		}),
	)

	require.NoError(t, client.Write(context.Background(), "app", map[string]string{"k": "v"}))

	got := fv.last()
	assert.Equal(t, "payments", got.Header.Get("X-Team"))
	assert.Equal(t, "ns1", got.Header.Get("X-Vault-Namespace"))
	assert.Equal(t, "application/json", got.Accept)
	assert.Equal(t, "application/json", got.ContentType)
	assert.Equal(t, "test-token", got.Token)
}

func TestSharedChainNotifiesEveryClient(t *testing.T) {
	fv := newFakeVault(t)

	static, err := credentials.NewStaticSource("T")
	require.NoError(t, err)
	broken := credentials.SourceFunc(func() (credentials.Credentials, error) {
		return credentials.Credentials{}, errors.New("not configured")
	})
	chain, err := credentials.NewChain(broken, static)
	require.NoError(t, err)
	chain.SetReuseLastProvider(false)

	var callerCalls, aCalls, bCalls atomic.Int32
	chain.AddFailureHook(func(credentials.SourceFailure) { callerCalls.Add(1) })

	a, err := New(WithAddress(fv.server.URL), WithCredentials(chain), WithLogger(discardLogger()),
		WithCredentialFailureHook(func(credentials.SourceFailure) { aCalls.Add(1) }))
	require.NoError(t, err)
	b, err := New(WithAddress(fv.server.URL), WithCredentials(chain), WithLogger(discardLogger()),
		WithCredentialFailureHook(func(credentials.SourceFailure) { bCalls.Add(1) }))
	require.NoError(t, err)
	defer b.Close()

	_, err = chain.Resolve()
	require.NoError(t, err)
	assert.Equal(t, int32(1), callerCalls.Load())
	assert.Equal(t, int32(1), aCalls.Load())
	assert.Equal(t, int32(1), bCalls.Load())

	require.NoError(t, a.Close())
	_, err = chain.Resolve()
	require.NoError(t, err)
	assert.Equal(t, int32(2), callerCalls.Load())
	assert.Equal(t, int32(1), aCalls.Load(), "a closed client stops observing the chain")
	assert.Equal(t, int32(2), bCalls.Load())
}

func TestCredentialSourceMetricNamesWinner(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/secret/app", http.StatusOK, `{"data":{}}`)

	lookup := func(key string) (string, bool) {
		if key == "TEAM_TOKEN" {
			return "team-token", true
		}
		return "", false
	}
	chain, err := credentials.NewChain(
		credentials.NewEnvironmentSourceWithLookup("VAULT_TOKEN", lookup),
		credentials.NewEnvironmentSourceWithLookup("TEAM_TOKEN", lookup),
	)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	client, err := New(WithAddress(fv.server.URL), WithCredentials(chain), WithLogger(discardLogger()), WithMetrics(reg))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Read(context.Background(), "app")
	require.NoError(t, err)
	assert.Equal(t, "team-token", fv.last().Token)
	assert.Equal(t, 1.0, testutil.ToFloat64(client.metrics.CredentialAttempts.WithLabelValues("env:TEAM_TOKEN")))
}
