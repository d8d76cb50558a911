// Package resolver supplies the base URL of the secrets service at request
// time.
package resolver

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/blueberrycongee/vaultclient/internal/config"
	"github.com/blueberrycongee/vaultclient/pkg/credentials"
)

// Names consulted by Default.
const (
	EnvAddress      = "VAULT_ADDR"
	PropertyAddress = "vault.addr"
)

// ErrNoAddress is returned when no base URL is configured.
var ErrNoAddress = errors.New("vault address not configured")

// URLResolver returns the base URL of the service, e.g. "https://vault:8200".
type URLResolver interface {
	Resolve() (string, error)
}

// Func adapts a function to URLResolver.
type Func func() (string, error)

// Resolve calls f.
func (f Func) Resolve() (string, error) { return f() }

// StaticResolver always returns the same URL.
type StaticResolver struct {
	url string
}

// Static validates url and returns a resolver for it.
func Static(url string) (*StaticResolver, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrNoAddress
	}
	if err := config.ValidateAddress(url); err != nil {
		return nil, err
	}
	return &StaticResolver{url: strings.TrimRight(url, "/")}, nil
}

// Resolve implements URLResolver.
func (s *StaticResolver) Resolve() (string, error) { return s.url, nil }

// LookupResolver reads the URL from the environment, then from the process
// property store, on every call.
type LookupResolver struct {
	env      credentials.LookupFunc
	property credentials.LookupFunc
}

// Default consults VAULT_ADDR and then the vault.addr property.
func Default() *LookupResolver {
	return &LookupResolver{env: os.LookupEnv, property: credentials.DefaultProperties.Lookup}
}

// NewLookupResolver is Default with injectable lookups.
func NewLookupResolver(env, property credentials.LookupFunc) *LookupResolver {
	return &LookupResolver{env: env, property: property}
}

// Resolve implements URLResolver.
func (r *LookupResolver) Resolve() (string, error) {
	if v, ok := lookup(r.env, EnvAddress); ok {
		return checked(EnvAddress, v)
	}
	if v, ok := lookup(r.property, PropertyAddress); ok {
		return checked(PropertyAddress, v)
	}
	return "", fmt.Errorf("%w: set %s or the %s property", ErrNoAddress, EnvAddress, PropertyAddress)
}

func lookup(fn credentials.LookupFunc, key string) (string, bool) {
	if fn == nil {
		return "", false
	}
	v, ok := fn(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func checked(source, url string) (string, error) {
	if err := config.ValidateAddress(url); err != nil {
		return "", fmt.Errorf("%s: %w", source, err)
	}
	return strings.TrimRight(url, "/"), nil
}

// ConfigResolver follows the address of a hot-reloaded configuration file.
type ConfigResolver struct {
	mgr *config.Manager
}

// FromConfig returns a resolver reading vault.address from mgr on every call.
func FromConfig(mgr *config.Manager) *ConfigResolver {
	return &ConfigResolver{mgr: mgr}
}

// Resolve implements URLResolver.
func (r *ConfigResolver) Resolve() (string, error) {
	addr := strings.TrimSpace(r.mgr.Get().Vault.Address)
	if addr == "" {
		return "", fmt.Errorf("%w: vault.address is empty", ErrNoAddress)
	}
	return strings.TrimRight(addr, "/"), nil
}
