package vaultclient

import (
	"context"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vaulterrors "github.com/blueberrycongee/vaultclient/pkg/errors"
	"github.com/blueberrycongee/vaultclient/pkg/types"
)

func newTestAdmin(t *testing.T, fv *fakeVault) *AdminClient {
	t.Helper()
	admin, err := NewAdmin(
		WithAddress(fv.server.URL),
		WithToken("root-token"),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	return admin
}

func TestNewAdmin_PropagatesOptionErrors(t *testing.T) {
	_, err := NewAdmin(WithAddress("nope"))
	assert.Error(t, err)
}

func TestAdminInit(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("PUT", "/v1/sys/init", http.StatusOK, `{"keys":["k1","k2","k3"],"root_token":"r00t"}`)
	admin := newTestAdmin(t, fv)

	resp, err := admin.Init(context.Background(), 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2", "k3"}, resp.Keys)
	assert.Equal(t, "r00t", resp.RootToken)

	var sent map[string]int
	require.NoError(t, json.Unmarshal(fv.last().Body, &sent))
	assert.Equal(t, map[string]int{"secret_shares": 3, "secret_threshold": 2}, sent)

	_, err = admin.Init(context.Background(), 1, 2)
	assert.Error(t, err)
	assert.Len(t, fv.recorded(), 1, "invalid parameters are rejected locally")
}

func TestAdminHealth(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusTooManyRequests, http.StatusInternalServerError} {
		fv := newFakeVault(t)
		fv.on("GET", "/v1/sys/health", status, `{"initialized":true,"sealed":false,"standby":true}`)
		admin := newTestAdmin(t, fv)

		resp, err := admin.Health(context.Background())
		require.NoError(t, err, "status %d", status)
		assert.True(t, resp.Initialized)
		assert.True(t, resp.Standby)
	}

	fv := newFakeVault(t)
	fv.on("GET", "/v1/sys/health", http.StatusServiceUnavailable, `{"initialized":true,"sealed":true}`)
	admin := newTestAdmin(t, fv)
	_, err := admin.Health(context.Background())
	var serverErr *vaulterrors.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, vaulterrors.TypeSealed, serverErr.Type)
}

func TestAdminUnsealAndSealStatus(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("PUT", "/v1/sys/unseal", http.StatusOK, `{"sealed":true,"t":2,"n":3,"progress":1}`)
	fv.on("GET", "/v1/sys/seal-status", http.StatusOK, `{"sealed":false,"t":2,"n":3,"progress":0}`)
	admin := newTestAdmin(t, fv)

	resp, err := admin.Unseal(context.Background(), "k1", false)
	require.NoError(t, err)
	assert.True(t, resp.Sealed)
	assert.Equal(t, 1, resp.Progress)
	assert.JSONEq(t, `{"key":"k1","reset":false}`, string(fv.last().Body))

	status, err := admin.SealStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Sealed)
	assert.Equal(t, 3, status.N)
}

func TestAdminPolicies(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/sys/policy", http.StatusOK, `{"policies":["default","root"]}`)
	fv.on("GET", "/v1/sys/policy/app", http.StatusOK, `{"name":"app","rules":"path \"secret/*\" {}"}`)
	fv.on("PUT", "/v1/sys/policy/app", http.StatusNoContent, "")
	fv.on("DELETE", "/v1/sys/policy/app", http.StatusNoContent, "")
	admin := newTestAdmin(t, fv)
	ctx := context.Background()

	names, err := admin.Policies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "root"}, names)

	policy, err := admin.Policy(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, `path "secret/*" {}`, policy.Rules)

	require.NoError(t, admin.PutPolicy(ctx, "app", &types.Policy{Rules: "x"}))
	assert.JSONEq(t, `{"rules":"x"}`, string(fv.last().Body))

	require.NoError(t, admin.DeletePolicy(ctx, "app"))
	assert.Equal(t, "DELETE", fv.last().Method)

	assert.Error(t, admin.PutPolicy(ctx, "app", nil))
}

func TestAdminTokens(t *testing.T) {
	fv := newFakeVault(t)
	auth := `{"auth":{"client_token":"child","policies":["default"],"metadata":{"team":"a"},"lease_duration":3600,"renewable":true}}`
	fv.on("POST", "/v1/auth/token/create", http.StatusOK, auth)
	fv.on("POST", "/v1/auth/token/create-orphan", http.StatusOK, auth)
	fv.on("POST", "/v1/auth/token/revoke", http.StatusNoContent, "")
	fv.on("POST", "/v1/auth/token/revoke-orphan", http.StatusNoContent, "")
	fv.on("GET", "/v1/auth/token/lookup/child", http.StatusOK, `{"data":{"id":"child","policies":["default"],"num_uses":5}}`)
	admin := newTestAdmin(t, fv)
	ctx := context.Background()

	created, err := admin.CreateToken(ctx, &types.TokenAuthRequest{Policies: []string{"default"}, TTL: "1h"})
	require.NoError(t, err)
	assert.Equal(t, "child", created.ClientToken)
	assert.Equal(t, 3600, created.LeaseDuration)
	assert.True(t, created.Renewable)
	assert.Equal(t, "/v1/auth/token/create", fv.last().Path)

	_, err = admin.CreateOrphanToken(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "/v1/auth/token/create-orphan", fv.last().Path)

	require.NoError(t, admin.RevokeToken(ctx, "child"))
	assert.JSONEq(t, `{"token":"child"}`, string(fv.last().Body))
	require.NoError(t, admin.RevokeOrphanToken(ctx, "child"))
	assert.Equal(t, "/v1/auth/token/revoke-orphan", fv.last().Path)
	assert.Error(t, admin.RevokeToken(ctx, " "))

	info, err := admin.LookupToken(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, 5, info.NumUses)
	assert.Equal(t, "root-token", fv.last().Token)
}

func TestAdminLookupTokenErrorHidesToken(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/auth/token/lookup/secret-child", http.StatusForbidden, `{"errors":["permission denied"]}`)
	admin := newTestAdmin(t, fv)

	_, err := admin.LookupToken(context.Background(), "secret-child")
	var serverErr *vaulterrors.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.NotContains(t, serverErr.Path, "secret-child")
}

func TestAdminAuditBackends(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("PUT", "/v1/sys/audit/file", http.StatusNoContent, "")
	fv.on("DELETE", "/v1/sys/audit/file", http.StatusNoContent, "")
	admin := newTestAdmin(t, fv)
	ctx := context.Background()

	err := admin.EnableAuditBackend(ctx, "file", &types.EnableAuditBackendRequest{
		Type:    "file",
		Options: map[string]string{"file_path": "/var/log/vault_audit.log"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"file","options":{"file_path":"/var/log/vault_audit.log"}}`, string(fv.last().Body))

	require.NoError(t, admin.DisableAuditBackend(ctx, "file"))
	assert.Error(t, admin.EnableAuditBackend(ctx, "file", nil))
}

func TestAdminExecute(t *testing.T) {
	fv := newFakeVault(t)
	fv.on("GET", "/v1/sys/mounts", http.StatusOK, `{"secret/":{"type":"kv"}}`)
	fv.on("POST", "/v1/sys/tools/random", http.StatusBadRequest, `{"errors":["bad format"]}`)
	admin := newTestAdmin(t, fv)
	ctx := context.Background()

	resp, err := admin.Execute(ctx, "get", "/v1/sys/mounts", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"secret/":{"type":"kv"}}`, string(resp.Body))

	resp, err = admin.Execute(ctx, http.MethodPost, "v1/sys/tools/random", map[string]string{"format": "nope"})
	require.NoError(t, err, "raw execution returns every status")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/json", fv.last().ContentType)

	_, err = admin.Execute(ctx, "", "v1/sys/mounts", nil)
	assert.Error(t, err)
}
