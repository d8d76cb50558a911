package secret

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider remembers successful lookups of the wrapped provider for a
// fixed TTL. Failures are never cached.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache
}

// NewCachedProvider wraps inner so that values are reused for ttl.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: cache.New(ttl, ttl*2),
	}
}

// Get returns the cached value for ref or delegates to the wrapped provider.
func (p *CachedProvider) Get(ctx context.Context, ref string) (string, error) {
	if v, found := p.cache.Get(ref); found {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}

	v, err := p.inner.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	p.cache.SetDefault(ref, v)
	return v, nil
}

// Invalidate drops every cached value.
func (p *CachedProvider) Invalidate() {
	p.cache.Flush()
}

// Close closes the wrapped provider.
func (p *CachedProvider) Close() error {
	return p.inner.Close()
}
