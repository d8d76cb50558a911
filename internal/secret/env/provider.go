// Package env resolves "env://NAME" secret references.
package env

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider reads secrets from environment variables.
type Provider struct {
	lookup func(string) (string, bool)
}

// New creates a provider backed by the process environment.
func New() *Provider {
	return &Provider{lookup: os.LookupEnv}
}

// NewWithLookup creates a provider backed by lookup.
func NewWithLookup(lookup func(string) (string, bool)) *Provider {
	return &Provider{lookup: lookup}
}

// Get returns the value of the variable named by ref. Unset and blank
// variables are errors.
func (p *Provider) Get(_ context.Context, ref string) (string, error) {
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("environment variable %q not set", ref)
	}
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("environment variable %q is blank", ref)
	}
	return v, nil
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
