package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvironmentSource reads a token from one environment variable.
// The variable is read on every call.
type EnvironmentSource struct {
	name   string
	lookup LookupFunc
}

// NewEnvironmentSource creates a source reading the named environment variable.
func NewEnvironmentSource(name string) *EnvironmentSource {
	return NewEnvironmentSourceWithLookup(name, os.LookupEnv)
}

// NewEnvironmentSourceWithLookup creates an environment source that reads
// through lookup instead of the process environment.
func NewEnvironmentSourceWithLookup(name string, lookup LookupFunc) *EnvironmentSource {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvironmentSource{name: name, lookup: lookup}
}

// Name returns the environment variable name.
func (s *EnvironmentSource) Name() string {
	return s.name
}

// Resolve implements Source.
func (s *EnvironmentSource) Resolve() (Credentials, error) {
	token, ok := s.lookup(s.name)
	if !ok || isBlank(token) {
		return Credentials{}, exhausted("environment variable %q is not set", s.name)
	}
	return NewTokenCredentials(token), nil
}

// String implements fmt.Stringer.
func (s *EnvironmentSource) String() string {
	return "env:" + s.name
}

// PropertySource reads a token from the process property store.
type PropertySource struct {
	key    string
	lookup LookupFunc
}

// NewPropertySource creates a source reading key from DefaultProperties.
func NewPropertySource(key string) *PropertySource {
	return NewPropertySourceWithLookup(key, DefaultProperties.Lookup)
}

// NewPropertySourceWithLookup creates a property source that reads through
// lookup instead of DefaultProperties.
func NewPropertySourceWithLookup(key string, lookup LookupFunc) *PropertySource {
	if lookup == nil {
		lookup = DefaultProperties.Lookup
	}
	return &PropertySource{key: key, lookup: lookup}
}

// Key returns the property key.
func (s *PropertySource) Key() string {
	return s.key
}

// Resolve implements Source.
func (s *PropertySource) Resolve() (Credentials, error) {
	token, ok := s.lookup(s.key)
	if !ok || isBlank(token) {
		return Credentials{}, exhausted("property %q is not set", s.key)
	}
	return NewTokenCredentials(token), nil
}

// String implements fmt.Stringer.
func (s *PropertySource) String() string {
	return "property:" + s.key
}

// StaticSource always returns the same token.
type StaticSource struct {
	creds Credentials
}

// NewStaticSource creates a source for a fixed token.
// A blank token is rejected with ErrConfiguration.
func NewStaticSource(token string) (*StaticSource, error) {
	if isBlank(token) {
		return nil, fmt.Errorf("%w: static token must not be blank", ErrConfiguration)
	}
	return &StaticSource{creds: NewTokenCredentials(token)}, nil
}

// Resolve implements Source. It never fails.
func (s *StaticSource) Resolve() (Credentials, error) {
	return s.creds, nil
}

// String implements fmt.Stringer.
func (s *StaticSource) String() string {
	return "static"
}

// FileSource reads a token from a file such as ~/.vault-token.
// The file is read on every call and surrounding whitespace is trimmed.
type FileSource struct {
	path     string
	readFile func(string) ([]byte, error)
}

// NewFileSource creates a source reading the token stored at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, readFile: os.ReadFile}
}

// DefaultTokenFile returns the conventional token file in the user's home
// directory, or an empty string when the home directory is unknown.
func DefaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".vault-token")
}

// Path returns the token file path.
func (s *FileSource) Path() string {
	return s.path
}

// Resolve implements Source. A missing or blank file exhausts the source;
// other read errors are returned as-is.
func (s *FileSource) Resolve() (Credentials, error) {
	if s.path == "" {
		return Credentials{}, exhausted("token file path is empty")
	}

	data, err := s.readFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, exhausted("token file %q does not exist", s.path)
		}
		return Credentials{}, fmt.Errorf("read token file %q: %w", s.path, err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return Credentials{}, exhausted("token file %q is empty", s.path)
	}
	return NewTokenCredentials(token), nil
}

// String implements fmt.Stringer.
func (s *FileSource) String() string {
	return "file:" + s.path
}
