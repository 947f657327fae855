// Package config loads the application configuration.
//
// Values come from, in increasing precedence: defaults, the config file
// (stconn.yaml), and STCONN_ environment variables:
//
//	STCONN_SECRETS_PATH=/etc/app/secrets.toml
//	STCONN_LOG_LEVEL=debug
//
// Example:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/logger"
	"github.com/schaumb/streamlit/pkg/observability"
	"github.com/schaumb/streamlit/pkg/secrets"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STCONN"

// AppConfig is the application configuration.
type AppConfig struct {
	Secrets SecretsConfig               `mapstructure:"secrets" yaml:"secrets"`
	Locale  LocaleConfig                `mapstructure:"locale" yaml:"locale"`
	Log     logger.Config               `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig               `mapstructure:"metrics" yaml:"metrics"`
	Tracing observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// SecretsConfig locates the secrets file.
type SecretsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Watch reloads the file on change and clears cached connections
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// LocaleConfig locates the message catalogs.
type LocaleConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Domain   string `mapstructure:"domain" yaml:"domain"`
	Language string `mapstructure:"language" yaml:"language"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// NewAppConfig returns the configuration defaults.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Secrets: SecretsConfig{
			Path: secrets.DefaultPath,
		},
		Locale: LocaleConfig{
			Dir:    "locales",
			Domain: "messages",
		},
		Log: logger.Config{
			Level:       "info",
			Encoding:    "console",
			OutputPaths: []string{"stderr"},
		},
		Metrics: MetricsConfig{
			Address: ":9090",
			Path:    "/metrics",
		},
		Tracing: observability.TracingConfig{
			ServiceName:  "stconn",
			Environment:  "development",
			SamplingRate: 1.0,
			Output:       "stderr",
		},
	}
}

// SearchPaths are tried in order when no config file is given.
var SearchPaths = []string{
	"stconn.yaml",
	"stconn.yml",
	filepath.Join(".streamlit", "stconn.yaml"),
}

// Load reads the configuration. An empty path searches SearchPaths; finding
// no file is not an error.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v, NewAppConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path == "" {
		for _, p := range SearchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}
	cfg.Secrets.Path = substituteEnvVars(cfg.Secrets.Path)
	cfg.Locale.Dir = substituteEnvVars(cfg.Locale.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("secrets.path", d.Secrets.Path)
	v.SetDefault("secrets.watch", d.Secrets.Watch)
	v.SetDefault("locale.dir", d.Locale.Dir)
	v.SetDefault("locale.domain", d.Locale.Domain)
	v.SetDefault("locale.language", d.Locale.Language)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.output_paths", d.Log.OutputPaths)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.service_version", d.Tracing.ServiceVersion)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.output", d.Tracing.Output)
}

// Validate checks the configuration for values that cannot work.
func (c *AppConfig) Validate() error {
	if c.Secrets.Path == "" {
		return errors.New(errors.ErrorTypeConfig, "secrets.path is required")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid log.level")
	}
	switch c.Log.Encoding {
	case "", "json", "console":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "log.encoding must be json or console, got %q", c.Log.Encoding)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.New(errors.ErrorTypeConfig, "metrics.address is required when metrics are enabled")
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.Newf(errors.ErrorTypeConfig, "metrics.path must start with /, got %q", c.Metrics.Path)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return errors.Newf(errors.ErrorTypeConfig, "tracing.sampling_rate must be within [0, 1], got %v", c.Tracing.SamplingRate)
	}
	return nil
}
