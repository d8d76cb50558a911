package credentials

import (
	"fmt"
	"io"
	"sync"

	"github.com/joho/godotenv"
)

// Properties is a process-scoped key/value store kept apart from the
// environment. It backs PropertySource and the address property used by the
// default URL resolver.
//
// Properties is safe for concurrent use.
type Properties struct {
	mu     sync.RWMutex
	values map[string]string
}

// DefaultProperties is the store read by NewPropertySource.
var DefaultProperties = NewProperties()

// NewProperties creates an empty property store.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]string)}
}

// Lookup returns the value stored under key. It satisfies LookupFunc.
func (p *Properties) Lookup(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// Get returns the value stored under key, or "" when absent.
func (p *Properties) Get(key string) string {
	v, _ := p.Lookup(key)
	return v
}

// Set stores value under key.
func (p *Properties) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// Unset removes key.
func (p *Properties) Unset(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
}

// Clear removes every key.
func (p *Properties) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = make(map[string]string)
}

// Load reads KEY=VALUE files and stores their entries. Files are applied in
// order, so later files override earlier ones.
func (p *Properties) Load(paths ...string) error {
	for _, path := range paths {
		values, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("load properties %q: %w", path, err)
		}
		p.merge(values)
	}
	return nil
}

// LoadReader parses KEY=VALUE content from r and stores its entries.
func (p *Properties) LoadReader(r io.Reader) error {
	values, err := godotenv.Parse(r)
	if err != nil {
		return fmt.Errorf("parse properties: %w", err)
	}
	p.merge(values)
	return nil
}

func (p *Properties) merge(values map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range values {
		p.values[k] = v
	}
}

// SetProperty stores value under key in DefaultProperties.
func SetProperty(key, value string) {
	DefaultProperties.Set(key, value)
}

// ClearProperty removes key from DefaultProperties.
func ClearProperty(key string) {
	DefaultProperties.Unset(key)
}

// Property returns the value stored under key in DefaultProperties.
func Property(key string) string {
	return DefaultProperties.Get(key)
}

// LoadProperties loads KEY=VALUE files into DefaultProperties.
func LoadProperties(paths ...string) error {
	return DefaultProperties.Load(paths...)
}
