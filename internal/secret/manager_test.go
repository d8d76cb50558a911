package secret

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls  int
	closed bool
	value  string
	err    error
}

func (p *countingProvider) Get(_ context.Context, ref string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.value + ":" + ref, nil
}

func (p *countingProvider) Close() error {
	p.closed = true
	return nil
}

func TestManager_RoutesByScheme(t *testing.T) {
	m := NewManager()
	m.Register("vault", &countingProvider{value: "v"})
	m.Register("ENV", &countingProvider{value: "e"})
	ctx := context.Background()

	v, err := m.Get(ctx, "vault://app/db#password")
	require.NoError(t, err)
	assert.Equal(t, "v:app/db#password", v)

	v, err = m.Get(ctx, "Env://HOME")
	require.NoError(t, err)
	assert.Equal(t, "e:HOME", v)

	assert.Equal(t, []string{"env", "vault"}, m.Schemes())
}

func TestManager_LiteralsPassThrough(t *testing.T) {
	v, err := NewManager().Get(context.Background(), "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", v)
}

func TestManager_UnknownScheme(t *testing.T) {
	_, err := NewManager().Get(context.Background(), "aws://thing")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestManager_GetAll(t *testing.T) {
	m := NewManager()
	m.Register("env", ProviderFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "MISSING" {
			return "", errors.New("not set")
		}
		return "x-" + ref, nil
	}))

	out, err := m.GetAll(context.Background(), []string{"env://A", "lit"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x-A", "lit"}, out)

	_, err = m.GetAll(context.Background(), []string{"env://A", "env://MISSING"})
	assert.Error(t, err)
}

func TestManager_CloseClosesProviders(t *testing.T) {
	p := &countingProvider{}
	m := NewManager()
	m.Register("vault", p)
	require.NoError(t, m.Close())
	assert.True(t, p.closed)
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{value: "v"}
	p := NewCachedProvider(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := p.Get(ctx, "app#k")
		require.NoError(t, err)
		assert.Equal(t, "v:app#k", v)
	}
	assert.Equal(t, 1, inner.calls)

	p.Invalidate()
	_, err := p.Get(ctx, "app#k")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	require.NoError(t, p.Close())
	assert.True(t, inner.closed)
}

func TestCachedProvider_DoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{err: errors.New("boom")}
	p := NewCachedProvider(inner, time.Minute)

	_, err := p.Get(context.Background(), "x")
	assert.Error(t, err)
	_, err = p.Get(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
