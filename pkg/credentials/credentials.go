// Package credentials resolves the bearer token used to authenticate calls to
// the secrets service.
//
// A Chain holds an ordered list of Sources and asks each one in turn for a
// token. The chain remembers which source answered last and tries it first on
// the next call, falling back to a full ordered walk when it fails.
//
// Basic usage:
//
//	chain, err := credentials.NewChain(
//	    credentials.NewEnvironmentSource(credentials.EnvToken),
//	    credentials.NewPropertySource(credentials.PropertyToken),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	creds, err := chain.Resolve()
package credentials

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// EnvToken is the environment variable read by the default chain.
	EnvToken = "VAULT_TOKEN" // #nosec G101 -- variable name, not a credential.
	// PropertyToken is the process property read by the default chain.
	PropertyToken = "vault.token" // #nosec G101 -- property name, not a credential.
)

var (
	// ErrConfiguration is returned when a chain or source is constructed with
	// invalid arguments.
	ErrConfiguration = errors.New("credentials: invalid configuration")

	// ErrSourceExhausted is returned by a single source whose lookup key is
	// absent or blank.
	ErrSourceExhausted = errors.New("credentials: source has no token")

	// ErrAllSourcesExhausted is returned by a chain when every source failed
	// during one resolution attempt.
	ErrAllSourcesExhausted = errors.New("credentials: unable to resolve a token from any source in the chain")
)

// Credentials is an opaque bearer token. The zero value holds no token.
type Credentials struct {
	token string
}

// NewTokenCredentials wraps token as Credentials.
func NewTokenCredentials(token string) Credentials {
	return Credentials{token: token}
}

// Token returns the raw bearer token.
func (c Credentials) Token() string {
	return c.token
}

// String implements fmt.Stringer without revealing the token.
func (c Credentials) String() string {
	if c.token == "" {
		return "Credentials{}"
	}
	return "Credentials{token:[REDACTED]}"
}

// Source obtains credentials from one origin.
//
// A Chain treats credentials with a blank token as a failure even when the
// error is nil, and moves on to the next source. Implementations should
// still report a missing token as an error wrapping ErrSourceExhausted.
type Source interface {
	// Resolve returns credentials or an error describing why none are available.
	// Sources return an error wrapping ErrSourceExhausted when their key is
	// absent or blank.
	Resolve() (Credentials, error)
}

// SourceFunc adapts an ordinary function to the Source interface.
type SourceFunc func() (Credentials, error)

// Resolve calls f().
func (f SourceFunc) Resolve() (Credentials, error) {
	return f()
}

// LookupFunc reads a value by key and reports whether the key was present.
// os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// PanicError wraps a value recovered from a panicking source.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("credentials: source panicked: %v", e.Value)
}

// Unwrap exposes the recovered value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func exhausted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSourceExhausted, fmt.Sprintf(format, args...))
}
