package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/config"
	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/locale"
	"github.com/schaumb/streamlit/pkg/logger"
	"github.com/schaumb/streamlit/pkg/metrics"
	"github.com/schaumb/streamlit/pkg/observability"
	"github.com/schaumb/streamlit/pkg/secrets"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	secrets    string
	logLevel   string
	trace      bool
}

// app holds what a command needs once configuration is loaded.
type app struct {
	cfg       *config.AppConfig
	log       *zap.Logger
	promReg   *prometheus.Registry
	collector *metrics.Collector

	stopTracing observability.ShutdownFunc
	server      *http.Server
	registry    *connection.Registry
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.secrets != "" {
		cfg.Secrets.Path = flags.secrets
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.trace {
		cfg.Tracing.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.Log); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	log := logger.With(zap.String("component", "cli"))

	stop, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize tracing")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())

	return &app{
		cfg:         cfg,
		log:         log,
		promReg:     promReg,
		collector:   metrics.NewCollector(promReg),
		stopTracing: stop,
	}, nil
}

// connections opens the secrets file and returns a registry over it.
func (a *app) connections() (*connection.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	store, err := secrets.Load(a.cfg.Secrets.Path)
	if err != nil {
		return nil, err
	}
	if a.cfg.Secrets.Watch {
		store.Watch()
	}
	a.registry = connection.NewRegistry(store,
		connection.WithLogger(a.log.With(zap.String("component", "connection_registry"))),
		connection.WithMetrics(a.collector))
	return a.registry, nil
}

func (a *app) translator() *locale.Translator {
	return locale.New(a.cfg.Locale.Dir,
		locale.WithDomain(a.cfg.Locale.Domain),
		locale.WithLogger(a.log))
}

// serveMetrics exposes the Prometheus registry when metrics are enabled.
func (a *app) serveMetrics() {
	if !a.cfg.Metrics.Enabled || a.server != nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{}))
	a.server = &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("serving metrics",
			zap.String("address", a.cfg.Metrics.Address),
			zap.String("path", a.cfg.Metrics.Path))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.registry != nil {
		if err := a.registry.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.stopTracing != nil {
		if err := a.stopTracing(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	_ = logger.Sync() // stderr sync fails on some platforms
	return errors.Join(errs...)
}

func (a *app) secretsStore() (*secrets.FileStore, error) {
	return secrets.Load(a.cfg.Secrets.Path)
}
