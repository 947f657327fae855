// Package connection opens and memoizes data-source connections described in
// the secrets store.
//
// A Registry resolves a connection name to a secrets descriptor, looks up the
// descriptor's adapter in a Catalog, and caches the resulting handle keyed by
// name and caller overrides. A cached handle is liveness-checked on every
// access and rebuilt once when it has gone stale.
//
// Adapters self-register in the default catalog from their package init
// functions, so binaries enable them with blank imports:
//
//	import _ "github.com/schaumb/streamlit/pkg/adapters/sqlite"
//
//	reg := connection.NewRegistry(store)
//	db, err := connection.Get[*sql.DB](ctx, reg, "local", nil)
package connection

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/schaumb/streamlit/pkg/conversion"
	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/frame"
	"github.com/schaumb/streamlit/pkg/logger"
	"github.com/schaumb/streamlit/pkg/metrics"
	"github.com/schaumb/streamlit/pkg/observability"
	"github.com/schaumb/streamlit/pkg/secrets"
)

// Observer receives registry events. *metrics.Collector implements it.
type Observer interface {
	ObserveConnect(adapter string, d time.Duration, err error)
	ObserveReconnect(connection string)
	ObserveCacheHit(connection string)
	SetCached(n int)
}

// Registry owns the connection cache and the conversion registry populated
// by the adapters it constructs. It is safe for concurrent use.
type Registry struct {
	store       secrets.Store
	catalog     *Catalog
	conversions *conversion.Registry
	logger      *zap.Logger
	observer    Observer
	tracer      trace.Tracer

	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group
}

type entry struct {
	name       string
	adapterKey string
	adapter    Adapter
	handle     Handle
}

// Option configures a Registry.
type Option func(*Registry)

// WithCatalog sets the adapter catalog. Defaults to DefaultCatalog().
func WithCatalog(c *Catalog) Option {
	return func(r *Registry) { r.catalog = c }
}

// WithConversions sets the conversion registry adapters register into.
func WithConversions(c *conversion.Registry) Option {
	return func(r *Registry) { r.conversions = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the event observer.
func WithMetrics(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithTracer sets the tracer. Defaults to the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// NewRegistry creates a registry reading descriptors from store. If the
// store supports change notifications the registry clears itself whenever
// the secrets change.
func NewRegistry(store secrets.Store, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.catalog == nil {
		r.catalog = defaultCatalog
	}
	if r.logger == nil {
		r.logger = logger.With(zap.String("component", "connection_registry"))
	}
	if r.tracer == nil {
		r.tracer = observability.Tracer()
	}
	if r.conversions == nil {
		copts := []conversion.Option{conversion.WithLogger(r.logger)}
		if co, ok := r.observer.(conversion.Observer); ok {
			copts = append(copts, conversion.WithObserver(co))
		}
		r.conversions = conversion.NewRegistry(copts...)
	}

	if n, ok := store.(interface{ OnChange(func()) }); ok {
		n.OnChange(func() {
			r.logger.Info("secrets changed, clearing connection cache")
			r.Clear(context.Background())
		})
	}

	return r
}

// Conversions returns the conversion registry adapters register into.
func (r *Registry) Conversions() *conversion.Registry {
	return r.conversions
}

// Catalog returns the adapter catalog.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Connect returns a live handle for the named connection, opening it on
// first use. kwargs override descriptor fields of the same name and take
// part in the cache key.
func (r *Registry) Connect(ctx context.Context, name string, kwargs map[string]any) (Handle, error) {
	key, err := cacheKey(name, kwargs)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "connection.connect",
		trace.WithAttributes(attribute.String("connection.name", name)))
	defer span.End()

	e, err := r.connect(ctx, span, key, name, kwargs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return e.handle, nil
}

func (r *Registry) connect(ctx context.Context, span trace.Span, key, name string, kwargs map[string]any) (*entry, error) {
	if e, ok := r.cached(key); ok {
		span.SetAttributes(attribute.String("connection.adapter", e.adapterKey))
		if e.adapter.IsConnected(ctx, e.handle) {
			span.SetAttributes(attribute.Bool("connection.cache_hit", true))
			if r.observer != nil {
				r.observer.ObserveCacheHit(name)
			}
			return e, nil
		}

		r.logger.Warn("cached connection is no longer alive, reconnecting",
			append(observability.TraceFields(ctx),
				zap.String("connection", name),
				zap.String("adapter", e.adapterKey))...)
		span.AddEvent("reconnect")
		if r.observer != nil {
			r.observer.ObserveReconnect(name)
		}
		r.evict(ctx, key, e)
	}

	return r.build(ctx, key, name, kwargs)
}

// Query runs query on the named connection and converts the result to a
// frame. The adapter must implement Querier.
func (r *Registry) Query(ctx context.Context, name string, kwargs map[string]any, query string) (*frame.Frame, error) {
	key, err := cacheKey(name, kwargs)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "connection.query",
		trace.WithAttributes(attribute.String("connection.name", name)))
	defer span.End()

	f, err := r.query(ctx, span, key, name, kwargs, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("query.rows", f.NumRows()))
	return f, nil
}

func (r *Registry) query(ctx context.Context, span trace.Span, key, name string, kwargs map[string]any, query string) (*frame.Frame, error) {
	e, err := r.connect(ctx, span, key, name, kwargs)
	if err != nil {
		return nil, err
	}
	q, ok := e.adapter.(Querier)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "adapter %s does not support queries", e.adapterKey)
	}

	res, err := q.Query(ctx, e.handle, query)
	if err != nil {
		return nil, err
	}
	f, ok, err := r.conversions.TryConvertToFrame(ctx, res)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData, "no frame conversion registered for %T", res)
	}
	return f, nil
}

// Get returns the named connection's handle as T.
func Get[T any](ctx context.Context, r *Registry, name string, kwargs map[string]any) (T, error) {
	var zero T
	h, err := r.Connect(ctx, name, kwargs)
	if err != nil {
		return zero, err
	}
	t, ok := h.(T)
	if !ok {
		return zero, errors.Newf(errors.ErrorTypeValidation,
			"connection %q handle is %T, not %s", name, h, reflect.TypeFor[T]())
	}
	return t, nil
}

// Invalidate drops and closes the cache entry for (name, kwargs). It reports
// whether an entry existed.
func (r *Registry) Invalidate(ctx context.Context, name string, kwargs map[string]any) bool {
	key, err := cacheKey(name, kwargs)
	if err != nil {
		return false
	}
	e, ok := r.cached(key)
	if !ok {
		return false
	}
	return r.evict(ctx, key, e)
}

// Clear drops every cache entry, closing handles best-effort, and clears the
// conversion registry. Adapters re-register their conversions when they are
// next constructed.
func (r *Registry) Clear(ctx context.Context) {
	for _, err := range r.drain(ctx) {
		r.logger.Debug("failed to close connection during clear", zap.Error(err))
	}
	r.conversions.Clear()
}

// Close closes every cached handle and empties the cache.
func (r *Registry) Close(ctx context.Context) error {
	return errors.Join(r.drain(ctx)...)
}

// Len returns the number of cached connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cached returns the names of the cached connections, sorted. A name cached
// with different overrides appears once per entry.
func (r *Registry) Cached() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) cached(key string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}

// evict removes e if it is still the entry for key and closes its handle.
func (r *Registry) evict(ctx context.Context, key string, e *entry) bool {
	r.mu.Lock()
	cur, ok := r.entries[key]
	if ok && cur == e {
		delete(r.entries, key)
	}
	n := len(r.entries)
	r.mu.Unlock()

	if !ok || cur != e {
		return false
	}
	r.setCached(n)
	if err := e.adapter.Close(ctx, e.handle); err != nil {
		r.logger.Debug("failed to close stale connection",
			zap.String("connection", e.name), zap.Error(err))
	}
	return true
}

func (r *Registry) drain(ctx context.Context) []error {
	r.mu.Lock()
	old := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
	r.setCached(0)

	var errs []error
	for _, e := range old {
		if err := e.adapter.Close(ctx, e.handle); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeConnection, "close "+e.name))
		}
	}
	return errs
}

func (r *Registry) setCached(n int) {
	if r.observer != nil {
		r.observer.SetCached(n)
	}
}

// build opens the connection for key. Concurrent callers for the same key
// share one adapter construction, which runs detached from the cancellation
// of the caller that started it. Each caller stops waiting when its own ctx
// is done.
func (r *Registry) build(ctx context.Context, key, name string, kwargs map[string]any) (*entry, error) {
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		ctx := shared

		if e, ok := r.cached(key); ok {
			return e, nil
		}

		desc, err := r.store.Connection(name)
		if err != nil {
			return nil, err
		}
		factory, adapterKey, err := r.catalog.Lookup(desc.Adapter)
		if err != nil {
			return nil, err
		}

		op := observability.StartOperation(ctx, r.logger, "connect", name, adapterKey)
		op.LogStart("opening connection")

		adapter := factory(Deps{
			Conversions: r.conversions,
			Logger:      r.logger.With(zap.String("adapter", adapterKey)),
		})

		timer := metrics.NewTimer()
		handle, err := adapter.Connect(ctx, mergeParams(desc.Params, kwargs))
		if r.observer != nil {
			r.observer.ObserveConnect(adapterKey, timer.Elapsed(), err)
		}
		if err != nil {
			op.LogError("failed to open connection", err)
			return nil, err
		}

		e := &entry{name: name, adapterKey: adapterKey, adapter: adapter, handle: handle}
		r.mu.Lock()
		r.entries[key] = e
		n := len(r.entries)
		r.mu.Unlock()
		r.setCached(n)

		op.LogComplete("connection opened")
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry), nil
	}
}

// cacheKey identifies a (name, kwargs) pair. Map keys are marshaled in sorted
// order so equal kwargs produce equal keys.
func cacheKey(name string, kwargs map[string]any) (string, error) {
	if len(kwargs) == 0 {
		return name, nil
	}
	b, err := json.Marshal(kwargs)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "connection overrides must be serializable")
	}
	return name + "\x00" + string(b), nil
}
