package connection

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/conversion"
	"github.com/schaumb/streamlit/pkg/errors"
)

// Handle is the live client returned by an adapter, e.g. *sql.DB or
// *bigquery.Conn. Callers usually retrieve it with Get[T].
type Handle = any

// Adapter knows how to open and check one kind of data-source connection.
type Adapter interface {
	// Connect opens a connection using the merged descriptor parameters.
	Connect(ctx context.Context, params Params) (Handle, error)
	// IsConnected reports whether h is still usable.
	IsConnected(ctx context.Context, h Handle) bool
	// Close releases h.
	Close(ctx context.Context, h Handle) error
}

// Querier is implemented by adapters that can run a query string against
// their handle. The result must be a type the adapter registered a frame
// conversion for.
type Querier interface {
	Query(ctx context.Context, h Handle, query string) (any, error)
}

// Deps are handed to a Factory when an adapter is constructed. Factories
// register their result-type conversions on Conversions.
type Deps struct {
	Conversions *conversion.Registry
	Logger      *zap.Logger
}

// Factory constructs an adapter. It runs once per cache miss.
type Factory func(deps Deps) Adapter

// Params are the adapter parameters resolved from the secrets descriptor and
// the caller's overrides.
type Params map[string]any

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the string value of key, or "" when absent.
func (p Params) String(key string) string {
	return cast.ToString(p[key])
}

// StringOr returns the string value of key, or def when absent or empty.
func (p Params) StringOr(key, def string) string {
	if s := p.String(key); s != "" {
		return s
	}
	return def
}

// Require returns the string value of key or a config error naming it.
func (p Params) Require(key string) (string, error) {
	s := strings.TrimSpace(p.String(key))
	if s == "" {
		return "", errors.Newf(errors.ErrorTypeConfig, "missing required parameter %q", key)
	}
	return s, nil
}

// Int returns the integer value of key, or def when absent or not numeric.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// Bool returns the boolean value of key, or def when absent or malformed.
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns the duration value of key ("5s", or a number of
// nanoseconds), or def when absent or malformed.
func (p Params) Duration(key string, def time.Duration) time.Duration {
	v, ok := p[key]
	if !ok {
		return def
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}

// Map returns the nested table at key, or nil.
func (p Params) Map(key string) map[string]any {
	m, err := cast.ToStringMapE(p[key])
	if err != nil {
		return nil
	}
	return m
}

// StringMap returns the nested table at key with string values, or nil.
func (p Params) StringMap(key string) map[string]string {
	m, err := cast.ToStringMapStringE(p[key])
	if err != nil {
		return nil
	}
	return m
}

// StringSlice returns the list at key. A single string is split on commas.
func (p Params) StringSlice(key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	if s, isString := v.(string); isString {
		parts := strings.Split(s, ",")
		out := parts[:0]
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return cast.ToStringSlice(v)
}

// mergeParams overlays kwargs on the descriptor params. Only fields present
// in the descriptor can be overridden; other kwargs are ignored. Keys match
// case-insensitively because secrets keys are case-insensitive.
func mergeParams(secret map[string]any, kwargs map[string]any) Params {
	lower := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		lower[strings.ToLower(k)] = v
	}

	out := make(Params, len(secret))
	for k, v := range secret {
		if o, ok := kwargs[k]; ok {
			out[k] = o
		} else if o, ok := lower[strings.ToLower(k)]; ok {
			out[k] = o
		} else {
			out[k] = v
		}
	}
	return out
}
