package vaultclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/blueberrycongee/vaultclient/pkg/types"
)

// AdminClient adds server administration, policy, token and audit
// operations. These usually need a privileged token.
type AdminClient struct {
	*Client
}

// NewAdmin creates an AdminClient with the given options.
func NewAdmin(opts ...Option) (*AdminClient, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return &AdminClient{Client: c}, nil
}

// Init initializes a new server, splitting the master key into shares of
// which threshold are needed to unseal.
func (a *AdminClient) Init(ctx context.Context, shares, threshold int) (*types.InitResponse, error) {
	if shares < 1 || threshold < 1 || threshold > shares {
		return nil, fmt.Errorf("invalid init parameters: %d shares, threshold %d", shares, threshold)
	}
	resp, err := a.execute(ctx, &call{
		op:     "init",
		method: http.MethodPut,
		path:   sysPrefix + "init",
		body:   &types.InitRequest{SecretShares: shares, SecretThreshold: threshold},
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.InitResponse
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether the server is initialized, sealed or on standby.
// Standby (429) and internal error (500) answers still carry a health body.
func (a *AdminClient) Health(ctx context.Context) (*types.HealthResponse, error) {
	resp, err := a.execute(ctx, &call{
		op:     "health",
		method: http.MethodGet,
		path:   sysPrefix + "health",
		expect: []int{http.StatusOK, http.StatusTooManyRequests, http.StatusInternalServerError},
	})
	if err != nil {
		return nil, err
	}

	var out types.HealthResponse
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SealStatus reports the seal state and unseal progress.
func (a *AdminClient) SealStatus(ctx context.Context) (*types.SealStatusResponse, error) {
	resp, err := a.execute(ctx, &call{
		op:     "seal_status",
		method: http.MethodGet,
		path:   sysPrefix + "seal-status",
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.SealStatusResponse
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unseal submits one key share. With reset set, previously submitted shares
// are discarded.
func (a *AdminClient) Unseal(ctx context.Context, key string, reset bool) (*types.SealStatusResponse, error) {
	resp, err := a.execute(ctx, &call{
		op:     "unseal",
		method: http.MethodPut,
		path:   sysPrefix + "unseal",
		body:   &types.UnsealRequest{Key: key, Reset: reset},
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.SealStatusResponse
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Policies lists the names of all policies.
func (a *AdminClient) Policies(ctx context.Context) ([]string, error) {
	resp, err := a.execute(ctx, &call{
		op:     "policies",
		method: http.MethodGet,
		path:   sysPrefix + "policy",
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.PoliciesResponse
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	if out.Policies == nil {
		out.Policies = []string{}
	}
	return out.Policies, nil
}

// Policy returns the named policy.
func (a *AdminClient) Policy(ctx context.Context, name string) (*types.Policy, error) {
	resp, err := a.execute(ctx, &call{
		op:     "policy",
		method: http.MethodGet,
		path:   sysPrefix + "policy/" + trimPath(name),
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.Policy
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutPolicy creates or replaces the named policy.
func (a *AdminClient) PutPolicy(ctx context.Context, name string, policy *types.Policy) error {
	if policy == nil {
		return fmt.Errorf("policy is nil")
	}
	_, err := a.execute(ctx, &call{
		op:     "put_policy",
		method: http.MethodPut,
		path:   sysPrefix + "policy/" + trimPath(name),
		body:   policy,
		expect: []int{http.StatusNoContent},
	})
	return err
}

// DeletePolicy removes the named policy.
func (a *AdminClient) DeletePolicy(ctx context.Context, name string) error {
	_, err := a.execute(ctx, &call{
		op:     "delete_policy",
		method: http.MethodDelete,
		path:   sysPrefix + "policy/" + trimPath(name),
		expect: []int{http.StatusNoContent},
	})
	return err
}

// CreateToken creates a child of the client's token.
func (a *AdminClient) CreateToken(ctx context.Context, req *types.TokenAuthRequest) (*types.AuthResponse, error) {
	return a.createToken(ctx, "create_token", "token/create", req)
}

// CreateOrphanToken creates a token without a parent.
func (a *AdminClient) CreateOrphanToken(ctx context.Context, req *types.TokenAuthRequest) (*types.AuthResponse, error) {
	return a.createToken(ctx, "create_orphan_token", "token/create-orphan", req)
}

func (a *AdminClient) createToken(ctx context.Context, op, endpoint string, req *types.TokenAuthRequest) (*types.AuthResponse, error) {
	if req == nil {
		req = &types.TokenAuthRequest{}
	}
	resp, err := a.execute(ctx, &call{
		op:     op,
		method: http.MethodPost,
		path:   authPrefix + endpoint,
		body:   req,
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.AuthResponse
	if err := resp.decodeField("auth", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeToken revokes token and all of its children.
func (a *AdminClient) RevokeToken(ctx context.Context, token string) error {
	return a.revoke(ctx, "revoke_token", "token/revoke", token)
}

// RevokeOrphanToken revokes token and orphans its children.
func (a *AdminClient) RevokeOrphanToken(ctx context.Context, token string) error {
	return a.revoke(ctx, "revoke_orphan_token", "token/revoke-orphan", token)
}

func (a *AdminClient) revoke(ctx context.Context, op, endpoint, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is empty")
	}
	_, err := a.execute(ctx, &call{
		op:     op,
		method: http.MethodPost,
		path:   authPrefix + endpoint,
		body:   &types.RevokeTokenRequest{Token: token},
		expect: []int{http.StatusNoContent},
	})
	return err
}

// LookupToken describes another token.
func (a *AdminClient) LookupToken(ctx context.Context, token string) (*types.ClientTokenResponse, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("token is empty")
	}
	resp, err := a.execute(ctx, &call{
		op:      "lookup_token",
		method:  http.MethodGet,
		path:    authPrefix + "token/lookup/" + trimPath(token),
		logPath: authPrefix + "token/lookup/[REDACTED]",
		expect:  []int{http.StatusOK},
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

// EnableAuditBackend mounts an audit backend at path.
func (a *AdminClient) EnableAuditBackend(ctx context.Context, path string, req *types.EnableAuditBackendRequest) error {
	if req == nil || req.Type == "" {
		return fmt.Errorf("audit backend type is required")
	}
	_, err := a.execute(ctx, &call{
		op:     "enable_audit",
		method: http.MethodPut,
		path:   sysPrefix + "audit/" + trimPath(path),
		body:   req,
		expect: []int{http.StatusNoContent},
	})
	return err
}

// DisableAuditBackend unmounts the audit backend at path.
func (a *AdminClient) DisableAuditBackend(ctx context.Context, path string) error {
	_, err := a.execute(ctx, &call{
		op:     "disable_audit",
		method: http.MethodDelete,
		path:   sysPrefix + "audit/" + trimPath(path),
		expect: []int{http.StatusNoContent},
	})
	return err
}

// RawResponse is the undecoded result of Execute.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// Execute sends an arbitrary request. path is relative to the server root,
// e.g. "v1/sys/mounts". body, when not nil, is encoded as JSON. Every status
// is returned as a RawResponse; only credential, address and transport
// failures are errors.
func (a *AdminClient) Execute(ctx context.Context, method, path string, body any) (*RawResponse, error) {
	if method == "" {
		return nil, fmt.Errorf("method is required")
	}
	resp, err := a.execute(ctx, &call{
		op:     "execute",
		method: strings.ToUpper(method),
		path:   trimPath(path),
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	return &RawResponse{StatusCode: resp.status, Body: resp.body}, nil
}
