// Package config resolves daemon configuration from the environment and
// an optional YAML file in the runtime directory.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"bashbuddy/internal/paths"
)

const (
	// DefaultModel is the generation model used when none is configured.
	DefaultModel = "gemini-2.0-flash"

	// DefaultGenerateTimeout bounds a single remote generation call. It
	// matches the client-side request timeout, which is sized to tolerate
	// upstream rate limiting.
	DefaultGenerateTimeout = 60 * time.Second

	// DefaultMaxConnections caps the number of IPC connections handled
	// concurrently by the daemon.
	DefaultMaxConnections = 32
)

// Config holds the resolved daemon configuration.
type Config struct {
	// APIKey authenticates against the remote generation service.
	APIKey string

	// Model is the generation model name.
	Model string

	// GenerateTimeout bounds each remote generation call.
	GenerateTimeout time.Duration

	// MaxConnections caps concurrently handled IPC connections.
	MaxConnections int

	// Debug enables debug-level daemon logging.
	Debug bool
}

// fileConfig is the YAML shape of the optional config file. All fields
// are optional; unset values keep their defaults.
type fileConfig struct {
	Model             string `yaml:"model"`
	GenerateTimeoutMS int    `yaml:"generate_timeout_ms"`
	MaxConnections    int    `yaml:"max_connections"`
	Debug             bool   `yaml:"debug"`
}

// Load resolves configuration with the following priority: environment
// variables, then the config file, then built-in defaults. The API key is
// required; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		Model:           DefaultModel,
		GenerateTimeout: DefaultGenerateTimeout,
		MaxConnections:  DefaultMaxConnections,
	}

	if err := applyFile(cfg); err != nil {
		return nil, err
	}

	if model := os.Getenv("BASHBUDDY_MODEL"); model != "" {
		cfg.Model = model
	}
	if os.Getenv("BASHBUDDY_DEBUG") != "" {
		cfg.Debug = true
	}
	cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	return cfg, nil
}

func applyFile(cfg *Config) error {
	path, err := paths.ConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path) //nolint:gosec // path from the runtime directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Model != "" {
		cfg.Model = fc.Model
	}
	if fc.GenerateTimeoutMS > 0 {
		cfg.GenerateTimeout = time.Duration(fc.GenerateTimeoutMS) * time.Millisecond
	}
	if fc.MaxConnections > 0 {
		cfg.MaxConnections = fc.MaxConnections
	}
	if fc.Debug {
		cfg.Debug = true
	}
	return nil
}
