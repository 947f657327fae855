// Package conversion implements the conversion registry: a table mapping the
// concrete Go type of a query result to functions that turn it into another
// representation, most commonly a *frame.Frame.
//
// Adapters populate the registry when they are constructed, so a conversion
// for a result type is only available after a connection using that adapter
// has been opened at least once:
//
//	conversion.Register(conv, conversion.TargetFrame, func(ctx context.Context, rows *sql.Rows) (any, error) {
//	    return sqlframe.FromRows(rows)
//	})
//
//	f, ok, err := conv.TryConvertToFrame(ctx, rows)
package conversion

import (
	"context"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/frame"
	"github.com/schaumb/streamlit/pkg/logger"
)

// Target identifies the representation a conversion produces.
type Target string

const (
	// TargetFrame produces a *frame.Frame
	TargetFrame Target = "frame"
	// TargetArrow produces an arrow.Record
	TargetArrow Target = "arrow"
)

// Func converts data into the target representation. The registry passes
// data through unchanged; its dynamic type always equals the registered type.
type Func func(ctx context.Context, data any) (any, error)

// Observer receives the outcome of each conversion attempt.
type Observer interface {
	ObserveConversion(target string, result string)
}

// Registry maps source types to target conversions. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	funcs    map[reflect.Type]map[Target]Func
	logger   *zap.Logger
	observer Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithObserver sets the conversion observer, usually a metrics collector.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry creates an empty conversion registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		funcs: make(map[reflect.Type]map[Target]Func),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	r.logger = r.logger.With(zap.String("component", "conversion_registry"))
	return r
}

// RegisterType upserts fn for (from, to). A later registration for the same
// pair silently replaces the earlier one.
func (r *Registry) RegisterType(from reflect.Type, to Target, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.funcs[from]
	if !ok {
		m = make(map[Target]Func)
		r.funcs[from] = m
	}
	m[to] = fn
	r.logger.Debug("conversion registered", zap.Stringer("from", from), zap.String("to", string(to)))
}

// Register upserts a statically typed conversion from T to the target.
func Register[T any](r *Registry, to Target, fn func(ctx context.Context, data T) (any, error)) {
	r.RegisterType(reflect.TypeFor[T](), to, func(ctx context.Context, data any) (any, error) {
		return fn(ctx, data.(T))
	})
}

// RegisterFrame upserts a typed conversion from T to *frame.Frame.
func RegisterFrame[T any](r *Registry, fn func(ctx context.Context, data T) (*frame.Frame, error)) {
	Register(r, TargetFrame, func(ctx context.Context, data T) (any, error) {
		return fn(ctx, data)
	})
}

func (r *Registry) lookup(data any, to Target) (Func, bool) {
	if data == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := reflect.TypeOf(data)
	if fn, ok := r.funcs[t][to]; ok {
		return fn, true
	}

	// Fall back to interface types data implements, e.g. pgx.Rows.
	var match reflect.Type
	for from, m := range r.funcs {
		if from.Kind() != reflect.Interface || m[to] == nil || !t.Implements(from) {
			continue
		}
		if match == nil || from.String() < match.String() {
			match = from
		}
	}
	if match == nil {
		return nil, false
	}
	return r.funcs[match][to], true
}

// CanConvert reports whether a conversion for data's type to the target is
// registered.
func (r *Registry) CanConvert(data any, to Target) bool {
	_, ok := r.lookup(data, to)
	return ok
}

// TryConvert converts data to the target. It returns ok=false and a nil error
// when no conversion is registered for data's type. Otherwise it returns the
// converter's result and error unmodified.
func (r *Registry) TryConvert(ctx context.Context, data any, to Target) (any, bool, error) {
	fn, ok := r.lookup(data, to)
	if !ok {
		r.observe(to, "miss")
		r.logger.Debug("no conversion registered",
			zap.String("type", typeName(data)),
			zap.String("to", string(to)))
		return nil, false, nil
	}

	out, err := fn(ctx, data)
	if err != nil {
		r.observe(to, "error")
		return nil, true, err
	}
	r.observe(to, "success")
	return out, true, nil
}

// TryConvertToFrame converts data to a *frame.Frame.
func (r *Registry) TryConvertToFrame(ctx context.Context, data any) (*frame.Frame, bool, error) {
	out, ok, err := r.TryConvert(ctx, data, TargetFrame)
	if !ok || err != nil {
		return nil, ok, err
	}
	f, isFrame := out.(*frame.Frame)
	if !isFrame {
		return nil, true, errors.Newf(errors.ErrorTypeData, "conversion of %s returned %T, want *frame.Frame", typeName(data), out)
	}
	return f, true, nil
}

// Clear removes every registered conversion.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs = make(map[reflect.Type]map[Target]Func)
}

// Len returns the number of registered (type, target) pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.funcs {
		n += len(m)
	}
	return n
}

// Types returns the names of the source types with at least one conversion.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for t := range r.funcs {
		names = append(names, t.String())
	}
	return names
}

func (r *Registry) observe(to Target, result string) {
	if r.observer != nil {
		r.observer.ObserveConversion(string(to), result)
	}
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
