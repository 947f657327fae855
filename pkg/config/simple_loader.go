package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/schaumb/streamlit/pkg/errors"
)

// Save writes the configuration to a YAML file.
func (c *AppConfig) Save(filePath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write config file").WithDetail("path", filePath)
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	return os.Expand(content, func(name string) string {
		return os.Getenv(name)
	})
}
