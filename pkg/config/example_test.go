package config_test

import (
	"fmt"

	"github.com/schaumb/streamlit/pkg/config"
)

// ExampleNewAppConfig shows the defaults used when no config file exists.
func ExampleNewAppConfig() {
	cfg := config.NewAppConfig()

	fmt.Printf("Secrets: %s\n", cfg.Secrets.Path)
	fmt.Printf("Log level: %s\n", cfg.Log.Level)
	fmt.Printf("Metrics: %s%s\n", cfg.Metrics.Address, cfg.Metrics.Path)

	// Output:
	// Secrets: .streamlit/secrets.toml
	// Log level: info
	// Metrics: :9090/metrics
}

// ExampleAppConfig_Validate shows how invalid values are reported.
func ExampleAppConfig_Validate() {
	cfg := config.NewAppConfig()
	cfg.Tracing.SamplingRate = 2

	fmt.Println(cfg.Validate())

	// Output:
	// config: tracing.sampling_rate must be within [0, 1], got 2
}
