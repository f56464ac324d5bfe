package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file. Environment variables
// take precedence over values set here.
type FileConfig struct {
	APIBaseURL     string                      `yaml:"api_base_url"`
	RequestTimeout time.Duration               `yaml:"request_timeout"`
	StorePath      string                      `yaml:"store_path"`
	CallbackAddr   string                      `yaml:"callback_addr"`
	ExpiryHorizon  time.Duration               `yaml:"expiry_horizon"`
	ResendCooldown time.Duration               `yaml:"resend_cooldown"`
	Providers      map[string]ProviderSettings `yaml:"providers"`
}

// Validate checks the file for settings that can never work.
func (f *FileConfig) Validate() error {
	if f.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	for name, p := range f.Providers {
		if p.Issuer == "" {
			return fmt.Errorf("providers.%s.issuer is required", name)
		}
		if p.ClientID == "" {
			return fmt.Errorf("providers.%s.client_id is required", name)
		}
	}
	return nil
}

// Load reads the YAML file at path and layers it under the environment.
// An empty path behaves like New.
func Load(path string) (Config, error) {
	if path == "" {
		return New(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config Load] failed to read %s: %w", path, err)
	}

	var file FileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("[config Load] failed to parse %s: %w", path, err)
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("[config Load] invalid config: %w", err)
	}

	return newMainConfig(&file), nil
}
