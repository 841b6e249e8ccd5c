// Package config loads the integrator configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"gitlab.com/rogov-ks/integrator/orchestrator"
	"gitlab.com/rogov-ks/integrator/pipeline"
)

var ErrInvalidConfig = errors.New("config: invalid config")

// Config is the root of the configuration file.
type Config struct {
	Pipeline     pipeline.Options    `yaml:"pipeline"`
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	Log          LogConfig           `yaml:"log"`
	// StatusAddr is the listen address of the status server; empty disables it.
	StatusAddr string `yaml:"status_addr"`
}

// LogConfig настраивает zap логгер
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Pipeline:     pipeline.DefaultOptions(),
		Orchestrator: orchestrator.DefaultConfig(),
		Log:          LogConfig{Level: "info"},
	}
}

// Load reads the file at path on top of Default. Keys missing from the file
// keep their default values; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	// пустой файл означает конфигурацию по умолчанию
	if len(data) != 0 {
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("%w: pipeline: %w", ErrInvalidConfig, err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("%w: orchestrator: %w", ErrInvalidConfig, err)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Build creates the logger described by c.
func (c LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if c.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
