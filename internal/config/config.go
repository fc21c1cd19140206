// Package config loads the application configuration: a YAML file, an
// optional .env file, and EPCORE_* environment overrides, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/EPC-MSU/EPCore/internal/measure"
)

// Environment variables that override file values.
const (
	EnvDatabase = "EPCORE_DB"
	EnvOptions  = "EPCORE_OPTIONS"
	EnvLogLevel = "EPCORE_LOG_LEVEL"
)

// KindVirtual is the only device kind this build can construct.
const KindVirtual = "virtual"

// Config is the application configuration.
type Config struct {
	// Database is the SQLite file for boards and captured curves.
	Database string `yaml:"database"`

	// Options is an options document path. Empty selects the embedded one.
	Options string `yaml:"options"`

	LogLevel       string        `yaml:"log_level"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`

	Measurers    []MeasurerConfig    `yaml:"measurers"`
	Multiplexers []MultiplexerConfig `yaml:"multiplexers"`
}

// MeasurerConfig describes one measurer.
type MeasurerConfig struct {
	ID          string  `yaml:"id"`
	Kind        string  `yaml:"kind"`
	Model       string  `yaml:"model"`
	Nominal     float64 `yaml:"nominal"`
	Trigger     string  `yaml:"trigger"`
	NoiseFactor float64 `yaml:"noise_factor"`
	Seed        *uint64 `yaml:"seed"`
}

// MultiplexerConfig describes one multiplexer.
type MultiplexerConfig struct {
	ID      string `yaml:"id"`
	Kind    string `yaml:"kind"`
	Modules int    `yaml:"modules"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database:       "epcore.db",
		LogLevel:       "info",
		CaptureTimeout: 10 * time.Second,
		PollInterval:   measure.DefaultPollInterval,
		Measurers: []MeasurerConfig{{
			ID:      "virtual-1",
			Kind:    KindVirtual,
			Model:   measure.ModelResistor,
			Nominal: 100,
			Trigger: "auto",
		}},
		Multiplexers: []MultiplexerConfig{{
			ID:      "virtual-mux-1",
			Kind:    KindVirtual,
			Modules: measure.DefaultVirtualModules,
		}},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv(EnvOptions); v != "" {
		cfg.Options = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Level returns the parsed log level.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Validate reports every problem in c.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.CaptureTimeout < 0 {
		errs = append(errs, errors.New("capture_timeout: must not be negative"))
	}
	if c.PollInterval < 0 {
		errs = append(errs, errors.New("poll_interval: must not be negative"))
	}
	if len(c.Measurers) == 0 {
		errs = append(errs, errors.New("measurers: at least one measurer is required"))
	}

	ids := make(map[string]bool)
	for i, m := range c.Measurers {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("measurers[%d].id: required", i))
		} else if ids[m.ID] {
			errs = append(errs, fmt.Errorf("measurers[%d].id: duplicate device id %q", i, m.ID))
		}
		ids[m.ID] = true
		if m.Kind != KindVirtual {
			errs = append(errs, fmt.Errorf("measurers[%d].kind: unsupported kind %q", i, m.Kind))
		}
		switch m.Model {
		case "", measure.ModelResistor, measure.ModelCapacitor:
		default:
			errs = append(errs, fmt.Errorf("measurers[%d].model: unknown model %q", i, m.Model))
		}
		switch m.Trigger {
		case "", "auto", "manual":
		default:
			errs = append(errs, fmt.Errorf("measurers[%d].trigger: must be auto or manual, got %q", i, m.Trigger))
		}
	}
	for i, m := range c.Multiplexers {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("multiplexers[%d].id: required", i))
		} else if ids[m.ID] {
			errs = append(errs, fmt.Errorf("multiplexers[%d].id: duplicate device id %q", i, m.ID))
		}
		ids[m.ID] = true
		if m.Kind != KindVirtual {
			errs = append(errs, fmt.Errorf("multiplexers[%d].kind: unsupported kind %q", i, m.Kind))
		}
		if m.Modules < 0 {
			errs = append(errs, fmt.Errorf("multiplexers[%d].modules: must not be negative", i))
		}
	}
	return errors.Join(errs...)
}
