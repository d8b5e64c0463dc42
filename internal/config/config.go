// Package config handles CLI configuration from environment variables and
// the optional pre-cache rules file
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all CLI configuration
type Config struct {
	APIKey     string        `env:"DEVKIT_API_KEY"`
	APIVersion string        `env:"DEVKIT_API_VERSION" envDefault:"v2.2"`
	APIURL     string        `env:"DEVKIT_API_URL" envDefault:"https://photorankapi-a.akamaihd.net"`
	PreCache   bool          `env:"DEVKIT_PRECACHE" envDefault:"true"`
	Debug      bool          `env:"DEVKIT_DEBUG"`
	HTTPCache  bool          `env:"DEVKIT_HTTP_CACHE"`
	Timeout    time.Duration `env:"DEVKIT_TIMEOUT" envDefault:"30s"`
	// RulesPath points at a YAML rules file; see LoadRules.
	RulesPath string `env:"DEVKIT_RULES"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate ensures the configuration can open a session
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("no API key configured - please set DEVKIT_API_KEY")
	}
	if c.APIURL == "" {
		return errors.New("DEVKIT_API_URL must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("DEVKIT_TIMEOUT must be positive, got %s", c.Timeout)
	}
	return nil
}
