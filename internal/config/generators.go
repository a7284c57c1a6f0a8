package config

import (
	"fmt"
	"os"

	"github.com/min-zu/license-server-sub000/internal/license"
	"gopkg.in/yaml.v3"
)

// LoadGeneratorConfig reads the key generator configuration from a YAML file.
// An empty path returns the built-in defaults.
func LoadGeneratorConfig(path string) (license.GeneratorConfig, error) {
	cfg := license.DefaultGeneratorConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read generator config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse generator config: %w", err)
	}

	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = license.DefaultGeneratorConfig().TimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = license.DefaultGeneratorConfig().Timezone
	}
	return cfg, nil
}
