package connection

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/schaumb/streamlit/pkg/errors"
)

// Catalog maps configuration adapter keys to adapter factories. Keys and
// aliases are case-insensitive.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string
}

// Global catalog instance, populated by adapter packages' init functions
var defaultCatalog = NewCatalog()

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
	}
}

// Register adds a factory under key and optional aliases. Registering a key
// or alias twice is an error.
func (c *Catalog) Register(key string, factory Factory, aliases ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key = strings.ToLower(key)
	if c.taken(key) {
		return errors.Newf(errors.ErrorTypeConfig, "adapter %s already registered", key)
	}
	for _, a := range aliases {
		if c.taken(strings.ToLower(a)) {
			return errors.Newf(errors.ErrorTypeConfig, "adapter alias %s already registered", a)
		}
	}

	c.factories[key] = factory
	for _, a := range aliases {
		c.aliases[strings.ToLower(a)] = key
	}
	return nil
}

func (c *Catalog) taken(name string) bool {
	_, f := c.factories[name]
	_, a := c.aliases[name]
	return f || a
}

// MustRegister is Register that panics on error. For use in init functions.
func (c *Catalog) MustRegister(key string, factory Factory, aliases ...string) {
	if err := c.Register(key, factory, aliases...); err != nil {
		panic(err)
	}
}

// Lookup resolves key (or an alias) to its factory and canonical key.
func (c *Catalog) Lookup(key string) (Factory, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k := strings.ToLower(strings.TrimSpace(key))
	if canonical, ok := c.aliases[k]; ok {
		k = canonical
	}
	f, ok := c.factories[k]
	if !ok {
		return nil, "", &UnknownAdapterError{Adapter: key, Available: c.list()}
	}
	return f, k, nil
}

// List returns the canonical adapter keys, sorted.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list()
}

func (c *Catalog) list() []string {
	keys := make([]string, 0, len(c.factories))
	for k := range c.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Aliases returns the aliases registered for key, sorted.
func (c *Catalog) Aliases(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for a, k := range c.aliases {
		if k == strings.ToLower(key) {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

// UnknownAdapterError is returned when a descriptor names an adapter that is
// not in the catalog.
type UnknownAdapterError struct {
	Adapter   string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter %q (available: %s); check the adapter field of the connection in secrets",
		e.Adapter, strings.Join(e.Available, ", "))
}

// Register adds a factory to the default catalog.
func Register(key string, factory Factory, aliases ...string) error {
	return defaultCatalog.Register(key, factory, aliases...)
}

// MustRegister adds a factory to the default catalog and panics on error.
func MustRegister(key string, factory Factory, aliases ...string) {
	defaultCatalog.MustRegister(key, factory, aliases...)
}

// DefaultCatalog returns the process default catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}
