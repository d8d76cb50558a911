package secret

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNoProvider is returned for references whose scheme has no provider.
var ErrNoProvider = errors.New("no secret provider registered")

// Manager routes references to providers by scheme.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Register installs provider for scheme, replacing any previous one.
func (m *Manager) Register(scheme string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[strings.ToLower(scheme)] = provider
}

// Schemes returns the registered schemes in sorted order.
func (m *Manager) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.providers))
	for scheme := range m.providers {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

// Get resolves ref. A value without "scheme://" is returned as-is so plain
// literals can stand wherever a reference is accepted.
func (m *Manager) Get(ctx context.Context, ref string) (string, error) {
	scheme, rest, ok := strings.Cut(ref, "://")
	if !ok {
		return ref, nil
	}

	m.mu.RLock()
	provider, found := m.providers[strings.ToLower(scheme)]
	m.mu.RUnlock()
	if !found {
		return "", fmt.Errorf("%w for scheme %q", ErrNoProvider, scheme)
	}
	return provider.Get(ctx, rest)
}

// GetAll resolves every reference, stopping at the first failure.
func (m *Manager) GetAll(ctx context.Context, refs []string) ([]string, error) {
	out := make([]string, len(refs))
	for i, ref := range refs {
		v, err := m.Get(ctx, ref)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Close closes every registered provider.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for scheme, p := range m.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", scheme, err))
		}
	}
	return errors.Join(errs...)
}
