package config

import (
	"fmt"
	"os"

	"github.com/mettafore/evals-workshop/internal/suggest"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration for the server and the terminal
// client. Both binaries read the same file.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Client struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"client"`

	// Suggestion providers tried in order; the built-in heuristic is the
	// implicit last entry.
	Providers []suggest.ProviderConfig `yaml:"providers"`

	MaxFailuresBeforeSwitch int `yaml:"max_failures_before_switch"`
}

// Load reads configuration from a YAML file. A missing path yields the
// defaults so the binaries run without any config at all.
func Load(configPath string) (*Config, error) {
	config := &Config{}

	if configPath != "" {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if config.Server.Port == "" {
		config.Server.Port = "8002"
	}

	if config.Database.Path == "" {
		config.Database.Path = "./data/annotations.db"
	}

	if config.Client.BaseURL == "" {
		config.Client.BaseURL = "http://localhost:" + config.Server.Port
	}

	if config.MaxFailuresBeforeSwitch == 0 {
		config.MaxFailuresBeforeSwitch = 3
	}

	// Expand environment variables in provider API keys
	for i := range config.Providers {
		config.Providers[i].APIKey = os.ExpandEnv(config.Providers[i].APIKey)
	}

	return config, nil
}
