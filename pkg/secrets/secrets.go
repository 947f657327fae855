// Package secrets resolves connection descriptors from the app's secrets file.
//
// The secrets file is read with viper, so TOML (the default, as in
// .streamlit/secrets.toml), YAML and JSON are all accepted. Each connection is
// a table under the "connection" key:
//
//	[connection.warehouse]
//	adapter = "bigquery"
//	project = "analytics-prod"
//	credentials = "${GOOGLE_SERVICE_ACCOUNT_JSON}"
//
// String values may reference environment variables with ${NAME}.
package secrets

import (
	"bytes"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/logger"
)

const (
	// ConnectionKey is the top-level secrets key holding connection tables
	ConnectionKey = "connection"
	// AdapterField is the descriptor field naming the adapter
	AdapterField = "adapter"
	// DefaultPath is where the secrets file is looked up by default
	DefaultPath = ".streamlit/secrets.toml"
)

// Descriptor is a resolved connection configuration. It is read-only.
type Descriptor struct {
	// Name is the connection name
	Name string
	// Adapter is the adapter catalog key (or a registered alias)
	Adapter string
	// Params holds every field of the connection table except the adapter
	Params map[string]any
}

// Store resolves connection descriptors by name.
type Store interface {
	Connection(name string) (*Descriptor, error)
	Connections() []string
}

// FileStore is a Store backed by a secrets file. Keys are case-insensitive.
type FileStore struct {
	v      *viper.Viper
	path   string
	logger *zap.Logger

	mu          sync.RWMutex
	connections map[string]map[string]any
	listeners   []func()
}

// Load reads the secrets file at path. An empty path uses DefaultPath.
func Load(path string) (*FileStore, error) {
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "secrets file not found").WithDetail("path", path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read secrets file").WithDetail("path", path)
	}

	s := newFileStore(v, path)
	s.reload()
	return s, nil
}

// Parse reads secrets from raw bytes in the given format ("toml", "yaml", "json").
func Parse(data []byte, format string) (*FileStore, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse secrets")
	}

	s := newFileStore(v, "")
	s.reload()
	return s, nil
}

func newFileStore(v *viper.Viper, path string) *FileStore {
	return &FileStore{
		v:      v,
		path:   path,
		logger: logger.Get().With(zap.String("component", "secrets")),
	}
}

// reload snapshots the connection tables from viper.
func (s *FileStore) reload() {
	raw := s.v.GetStringMap(ConnectionKey)
	conns := make(map[string]map[string]any, len(raw))
	for name, table := range raw {
		fields, err := cast.ToStringMapE(table)
		if err != nil {
			s.logger.Warn("ignoring malformed connection table", zap.String("connection", name), zap.Error(err))
			continue
		}
		conns[strings.ToLower(name)] = expandAll(fields)
	}

	s.mu.Lock()
	s.connections = conns
	s.mu.Unlock()
}

// Connection returns the descriptor for name.
func (s *FileStore) Connection(name string) (*Descriptor, error) {
	s.mu.RLock()
	fields, ok := s.connections[strings.ToLower(name)]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connection %q not found in secrets", name).
			WithDetail("key", ConnectionKey+"."+name)
	}
	return newDescriptor(name, fields)
}

// Connections returns the configured connection names, sorted.
func (s *FileStore) Connections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.connections))
	for name := range s.connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnChange registers fn to run after the secrets file changed and was
// reloaded.
func (s *FileStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Watch starts watching the secrets file for changes. Each change reloads the
// snapshot and notifies OnChange listeners.
func (s *FileStore) Watch() {
	if s.path == "" {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.logger.Info("secrets file changed", zap.String("path", e.Name), zap.String("op", e.Op.String()))
		s.reload()

		s.mu.RLock()
		listeners := append([]func(){}, s.listeners...)
		s.mu.RUnlock()
		for _, fn := range listeners {
			fn()
		}
	})
	s.v.WatchConfig()
}

// MapStore is an in-memory Store, keyed by exact connection name.
type MapStore map[string]map[string]any

// Connection returns the descriptor for name.
func (m MapStore) Connection(name string) (*Descriptor, error) {
	fields, ok := m[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connection %q not found in secrets", name)
	}
	return newDescriptor(name, fields)
}

// Connections returns the configured connection names, sorted.
func (m MapStore) Connections() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newDescriptor(name string, fields map[string]any) (*Descriptor, error) {
	adapter := strings.TrimSpace(cast.ToString(fields[AdapterField]))
	if adapter == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "connection %q has no %s field", name, AdapterField)
	}

	params := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != AdapterField {
			params[k] = v
		}
	}
	return &Descriptor{Name: name, Adapter: adapter, Params: params}, nil
}

func expandAll(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = expandValue(v)
	}
	return out
}

func expandValue(v any) any {
	switch x := v.(type) {
	case string:
		return substituteEnvVars(x)
	case map[string]any:
		return expandAll(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = expandValue(e)
		}
		return out
	default:
		return v
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values in
// one pass. Substituted values are not expanded again, and a bare $ or an
// unterminated ${ is kept as is.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.IndexByte(content[start:], '}')
		if end == -1 {
			break
		}
		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : start+end]))
		content = content[start+end+1:]
	}
	b.WriteString(content)
	return b.String()
}
