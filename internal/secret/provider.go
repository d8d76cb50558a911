// Package secret resolves secret references such as "vault://app/db#password"
// or "env://DB_PASSWORD" to the values they point at.
package secret

import "context"

// Provider looks up the value behind a reference. The reference passed to Get
// has its scheme removed, e.g. "app/db#password".
type Provider interface {
	Get(ctx context.Context, ref string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ProviderFunc adapts a function to a Provider with a no-op Close.
type ProviderFunc func(ctx context.Context, ref string) (string, error)

// Get calls f.
func (f ProviderFunc) Get(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// Close implements Provider.
func (f ProviderFunc) Close() error {
	return nil
}
