package layer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAlias is the alias connections use unless configured otherwise.
const DefaultAlias = "default"

// BackendConfig selects a backend and carries its configuration through untouched.
type BackendConfig struct {
	Backend string         `yaml:"backend"`
	Config  map[string]any `yaml:"config"`
}

// Config maps an alias to the backend serving it.
type Config map[string]BackendConfig

// LoadConfig reads a YAML channel layer configuration, expanding ${VAR}
// environment references first.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channel layer config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse channel layer config: %w", err)
	}
	return cfg, nil
}
