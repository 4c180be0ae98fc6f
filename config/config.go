// Package config loads engine configuration from YAML files with
// environment variable expansion and duration parsing.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Backend BackendConfig `yaml:"backend"`
	Engine  EngineConfig  `yaml:"engine"`
	Persist PersistConfig `yaml:"persist"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig holds filesystem layout and locking configuration.
type StorageConfig struct {
	// DataDir is the root under which conversations, locks and artifacts
	// are kept.
	DataDir string `yaml:"data_dir"`

	LockTimeout    time.Duration `yaml:"-"`
	LockTimeoutRaw string        `yaml:"lock_timeout"`
}

// BackendConfig selects and configures the generation provider.
type BackendConfig struct {
	// Provider is "openai", "anthropic" or "mock".
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`
}

// EngineConfig holds turn pipeline tuning.
type EngineConfig struct {
	MaxConcurrentSources int  `yaml:"max_concurrent_sources"`
	EventBufferSize      int  `yaml:"event_buffer_size"`
	DefaultLookback      int  `yaml:"default_lookback"`
	Streaming            bool `yaml:"streaming"`

	PlannerTimeout    time.Duration `yaml:"-"`
	PlannerTimeoutRaw string        `yaml:"planner_timeout"`
}

// PersistConfig holds persistence tuning.
type PersistConfig struct {
	EnrichTimeout    time.Duration `yaml:"-"`
	EnrichTimeoutRaw string        `yaml:"enrich_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file and returns a parsed Config. Environment
// variables in the format ${VAR_NAME} are expanded before parsing; duration
// strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Engine.MaxConcurrentSources == 0 {
		c.Engine.MaxConcurrentSources = 4
	}
	if c.Engine.EventBufferSize == 0 {
		c.Engine.EventBufferSize = 100
	}
	if c.Engine.DefaultLookback == 0 {
		c.Engine.DefaultLookback = 8
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required fields are present and valid. Returns
// an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	switch c.Backend.Provider {
	case "openai", "anthropic", "mock":
	case "":
		return fmt.Errorf("backend.provider is required")
	default:
		return fmt.Errorf("backend.provider %q is not supported", c.Backend.Provider)
	}
	if c.Backend.Provider != "mock" && c.Backend.APIKey == "" {
		return fmt.Errorf("backend.api_key is required for provider %q", c.Backend.Provider)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Storage.LockTimeoutRaw != "" {
		cfg.Storage.LockTimeout, err = time.ParseDuration(cfg.Storage.LockTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing lock_timeout %q: %w", cfg.Storage.LockTimeoutRaw, err)
		}
	}

	if cfg.Engine.PlannerTimeoutRaw != "" {
		cfg.Engine.PlannerTimeout, err = time.ParseDuration(cfg.Engine.PlannerTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing planner_timeout %q: %w", cfg.Engine.PlannerTimeoutRaw, err)
		}
	}

	if cfg.Persist.EnrichTimeoutRaw != "" {
		cfg.Persist.EnrichTimeout, err = time.ParseDuration(cfg.Persist.EnrichTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing enrich_timeout %q: %w", cfg.Persist.EnrichTimeoutRaw, err)
		}
	}

	return nil
}
