package pipeflow

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables of a scene and of the pipeflow command.
type Config struct {
	Workers      int    `yaml:"workers" validate:"gte=1,lte=1024"`
	HistoryLimit int    `yaml:"historyLimit" validate:"gte=0"`
	LogLevel     string `yaml:"logLevel" validate:"oneof=debug info warn error"`
	LogFormat    string `yaml:"logFormat" validate:"oneof=text json human"`
}

// rawConfig distinguishes keys missing from the file from explicit zero
// values.
type rawConfig struct {
	Workers      *int    `yaml:"workers"`
	HistoryLimit *int    `yaml:"historyLimit"`
	LogLevel     *string `yaml:"logLevel"`
	LogFormat    *string `yaml:"logFormat"`
}

var configValidate = validator.New()

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.GOMAXPROCS(0),
		HistoryLimit: 256,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Validate checks the field constraints.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (got %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML config file. Keys missing from the file keep their
// defaults; a missing file yields DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if raw.Workers != nil {
		cfg.Workers = *raw.Workers
	}
	if raw.HistoryLimit != nil {
		cfg.HistoryLimit = *raw.HistoryLimit
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	if raw.LogFormat != nil {
		cfg.LogFormat = *raw.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
