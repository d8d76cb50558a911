// Package vault resolves "vault://path#key" secret references through a
// vaultclient.Client.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blueberrycongee/vaultclient/pkg/types"
)

// DefaultKey is read when a reference names no key.
const DefaultKey = "value"

// ErrKeyNotFound is returned when the secret exists but lacks the key.
var ErrKeyNotFound = errors.New("key not found in secret")

// Reader reads a secret by path. *vaultclient.Client satisfies it.
type Reader interface {
	Read(ctx context.Context, path string) (*types.SecretResponse, error)
}

// Provider resolves references against a Reader. The Reader is owned by the
// caller and is not closed by Close.
type Provider struct {
	reader Reader
}

// New creates a provider that reads through reader.
func New(reader Reader) *Provider {
	return &Provider{reader: reader}
}

// Get reads "path#key" and returns the key's value. Without "#key" the
// DefaultKey is used.
func (p *Provider) Get(ctx context.Context, ref string) (string, error) {
	path, key := ParseRef(ref)
	if path == "" {
		return "", fmt.Errorf("secret reference %q has no path", ref)
	}

	secret, err := p.reader.Read(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read secret %q: %w", path, err)
	}
	v, ok := secret.Value(key)
	if !ok {
		return "", fmt.Errorf("%w: %q in %q", ErrKeyNotFound, key, path)
	}
	return v, nil
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}

// ParseRef splits "path#key" at the last '#'.
func ParseRef(ref string) (path, key string) {
	path, key = ref, DefaultKey
	if idx := strings.LastIndex(ref, "#"); idx != -1 {
		path, key = ref[:idx], ref[idx+1:]
		if key == "" {
			key = DefaultKey
		}
	}
	return strings.Trim(path, "/"), key
}
