package credentials

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const cachedCredentialsKey = "credentials"

// CachedSource decorates a Source with in-memory caching of its last
// successful result. Failures are never cached.
type CachedSource struct {
	inner Source
	ttl   time.Duration
	cache *cache.Cache
}

// Cached wraps inner so that a successful result is reused for ttl.
// Use it for sources that are expensive to read, such as a token file on a
// network mount. A ttl of zero or less disables caching and every call
// reads inner.
func Cached(inner Source, ttl time.Duration) *CachedSource {
	s := &CachedSource{inner: inner, ttl: ttl}
	if ttl > 0 {
		s.cache = cache.New(ttl, ttl*2)
	}
	return s
}

// Resolve returns the cached credentials or delegates to the inner source.
func (s *CachedSource) Resolve() (Credentials, error) {
	if s.cache == nil {
		return s.inner.Resolve()
	}
	if val, found := s.cache.Get(cachedCredentialsKey); found {
		if creds, ok := val.(Credentials); ok {
			return creds, nil
		}
	}

	creds, err := s.inner.Resolve()
	if err != nil {
		return Credentials{}, err
	}

	s.cache.Set(cachedCredentialsKey, creds, cache.DefaultExpiration)
	return creds, nil
}

// Invalidate drops the cached result so the next call reads the inner source.
func (s *CachedSource) Invalidate() {
	if s.cache == nil {
		return
	}
	s.cache.Delete(cachedCredentialsKey)
}

// String implements fmt.Stringer.
func (s *CachedSource) String() string {
	return "cached:" + Describe(s.inner)
}
