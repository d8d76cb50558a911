package credentials

import (
	"fmt"
	"sync"
)

// SourceFailure describes one failed attempt made by a Chain.
type SourceFailure struct {
	// Index is the position of the source in the chain.
	Index int
	// Source is the source that failed.
	Source Source
	// Err is the error returned by the source, or a *PanicError.
	Err error
	// Cached is true when the attempt was the shortcut through the last
	// successful source rather than part of the ordered walk.
	Cached bool
}

// FailureHook observes failed source attempts. It must not block.
type FailureHook func(SourceFailure)

// Chain resolves credentials by asking its sources in order.
//
// By default the chain remembers the last source that produced a token and
// asks it first on the next call. When that source fails the chain walks
// every source from the front, so a changed environment is picked up on the
// following call.
//
// Chain is safe for concurrent use. The source list is fixed at construction.
type Chain struct {
	sources []Source

	mu        sync.Mutex
	last      int // index into sources; -1 until a source succeeds
	reuseLast bool
	hooks     []hookEntry
	nextHook  uint64
}

type hookEntry struct {
	id uint64
	fn FailureHook
}

// NewChain creates a chain from the given sources in priority order.
// At least one source is required.
func NewChain(sources ...Source) (*Chain, error) {
	return NewChainFromList(sources)
}

// NewChainFromList creates a chain from a slice of sources in priority order.
// A nil or empty slice, or a nil element, fails with ErrConfiguration.
func NewChainFromList(sources []Source) (*Chain, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: a credentials chain requires at least one source", ErrConfiguration)
	}
	for i, s := range sources {
		if s == nil {
			return nil, fmt.Errorf("%w: source %d is nil", ErrConfiguration, i)
		}
	}

	owned := make([]Source, len(sources))
	copy(owned, sources)

	return &Chain{
		sources:   owned,
		last:      -1,
		reuseLast: true,
	}, nil
}

// DefaultChain returns the chain used when a client is built without explicit
// credentials: the VAULT_TOKEN environment variable, then the vault.token
// property.
func DefaultChain() *Chain {
	chain, _ := NewChain(
		NewEnvironmentSource(EnvToken),
		NewPropertySource(PropertyToken),
	)
	return chain
}

// Resolve returns credentials from the first source that can supply them.
// It fails with ErrAllSourcesExhausted when no source succeeds.
func (c *Chain) Resolve() (Credentials, error) {
	creds, _, err := c.resolve()
	return creds, err
}

// ResolveSource is Resolve that also returns the source which supplied the
// credentials. Unlike a later LastSource call, the answer cannot be changed
// by a concurrent Resolve.
func (c *Chain) ResolveSource() (Credentials, Source, error) {
	creds, i, err := c.resolve()
	if err != nil {
		return Credentials{}, nil, err
	}
	return creds, c.sources[i], nil
}

func (c *Chain) resolve() (Credentials, int, error) {
	c.mu.Lock()
	last, reuse := c.last, c.reuseLast
	c.mu.Unlock()

	if reuse && last >= 0 {
		creds, err := c.attempt(last)
		if err == nil {
			return creds, last, nil
		}
		c.notify(SourceFailure{Index: last, Source: c.sources[last], Err: err, Cached: true})
	}

	for i, source := range c.sources {
		creds, err := c.attempt(i)
		if err != nil {
			c.notify(SourceFailure{Index: i, Source: source, Err: err})
			continue
		}

		c.mu.Lock()
		c.last = i
		c.mu.Unlock()
		return creds, i, nil
	}

	return Credentials{}, -1, fmt.Errorf("%w (%d sources attempted)", ErrAllSourcesExhausted, len(c.sources))
}

// SetReuseLastProvider enables or disables trying the last successful source
// first. It takes effect on the next Resolve call.
func (c *Chain) SetReuseLastProvider(reuse bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reuseLast = reuse
}

// ReuseLastProvider reports whether the last successful source is tried first.
func (c *Chain) ReuseLastProvider() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reuseLast
}

// AddFailureHook registers fn to observe failed source attempts and returns
// a function that unregisters it. Hooks run in registration order and never
// change the outcome of Resolve. A nil fn is ignored.
func (c *Chain) AddFailureHook(fn FailureHook) (remove func()) {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	c.nextHook++
	id := c.nextHook
	c.hooks = append(c.hooks, hookEntry{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, h := range c.hooks {
				if h.id == id {
					c.hooks = append(c.hooks[:i:i], c.hooks[i+1:]...)
					return
				}
			}
		})
	}
}

// LastSource returns the source that succeeded most recently, if any.
func (c *Chain) LastSource() (Source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last < 0 {
		return nil, false
	}
	return c.sources[c.last], true
}

// Sources returns a copy of the chain's sources in priority order.
func (c *Chain) Sources() []Source {
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// attempt calls one source, converting panics and empty tokens into errors.
func (c *Chain) attempt(i int) (creds Credentials, err error) {
	defer func() {
		if r := recover(); r != nil {
			creds = Credentials{}
			err = &PanicError{Value: r}
		}
	}()

	creds, err = c.sources[i].Resolve()
	if err != nil {
		return Credentials{}, err
	}
	if isBlank(creds.Token()) {
		return Credentials{}, exhausted("source %s returned an empty token", Describe(c.sources[i]))
	}
	return creds, nil
}

func (c *Chain) notify(f SourceFailure) {
	c.mu.Lock()
	hooks := c.hooks
	c.mu.Unlock()

	for _, h := range hooks {
		h.fn(f)
	}
}

// Describe returns a short, token-free label for a source.
func Describe(s Source) string {
	if str, ok := s.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprintf("%T", s)
}

// String implements fmt.Stringer.
func (c *Chain) String() string {
	return fmt.Sprintf("chain(%d sources)", len(c.sources))
}
