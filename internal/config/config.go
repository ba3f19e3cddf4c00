// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/genc-murat/crystalsignal/internal/util"
)

type Config struct {
	Environment string           `yaml:"environment"`
	Memory      MemoryConfig     `yaml:"memory"`
	Leak        LeakConfig       `yaml:"leak"`
	Batch       BatchConfig      `yaml:"batch"`
	Supervisor  SupervisorConfig `yaml:"supervisor"`
	Storage     StorageConfig    `yaml:"storage"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Logging     LoggingConfig    `yaml:"logging"`
}

type MemoryConfig struct {
	MaxMemory          string `yaml:"max_memory" validate:"required"`
	MemoryLimit        string `yaml:"memory_limit"`
	AdaptiveManagement bool   `yaml:"adaptive_management"`
}

type LeakConfig struct {
	GrowthThreshold float64 `yaml:"growth_threshold" validate:"gte=0"`
	Prevention      bool    `yaml:"prevention"`
}

type BatchConfig struct {
	MaxBatchSize int `yaml:"max_batch_size" validate:"gte=0"`
	FlushChunk   int `yaml:"flush_chunk" validate:"gte=0"`
}

type SupervisorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"required_if=Enabled true,gte=0"`
}

type StorageConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port" validate:"gte=0,lte=65535"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

var validate = validator.New()

var ErrProjectRootNotFound = errors.New("could not find project root (no config directory found)")

func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Memory: MemoryConfig{
			MaxMemory: "10mb",
		},
		Leak: LeakConfig{
			GrowthThreshold: 0.1,
		},
		Batch: BatchConfig{
			MaxBatchSize: 1000,
		},
		Supervisor: SupervisorConfig{
			Interval: 30 * time.Second,
		},
		Storage: StorageConfig{
			Path: "snapshots.jsonl",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// MaxMemoryBytes parses the hard budget.
func (c MemoryConfig) MaxMemoryBytes() (int, error) {
	return util.ParseSize(c.MaxMemory)
}

// MemoryLimitBytes parses the adaptive threshold, falling back to the hard
// budget when no distinct limit is configured.
func (c MemoryConfig) MemoryLimitBytes() (int, error) {
	if c.MemoryLimit == "" {
		return c.MaxMemoryBytes()
	}
	return util.ParseSize(c.MemoryLimit)
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	maxBytes, err := c.Memory.MaxMemoryBytes()
	if err != nil {
		return fmt.Errorf("invalid config: memory.max_memory: %w", err)
	}
	if maxBytes <= 0 {
		return fmt.Errorf("invalid config: memory.max_memory must be positive, got %q", c.Memory.MaxMemory)
	}
	limit, err := c.Memory.MemoryLimitBytes()
	if err != nil {
		return fmt.Errorf("invalid config: memory.memory_limit: %w", err)
	}
	if limit <= 0 {
		return fmt.Errorf("invalid config: memory.memory_limit must be positive, got %q", c.Memory.MemoryLimit)
	}
	return nil
}

func findProjectRoot() (string, error) {
	// Start from the current working directory
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find the config directory
	for {
		if _, err := os.Stat(filepath.Join(dir, "config")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrProjectRootNotFound
		}
		dir = parent
	}
}

func LoadConfig(env string) (*Config, error) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("error finding project root: %w", err)
	}

	// Try loading with .yaml extension first
	configPath := filepath.Join(projectRoot, "config", fmt.Sprintf("%s.yaml", env))
	if _, err := os.Stat(configPath); err != nil {
		configPath = filepath.Join(projectRoot, "config", fmt.Sprintf("%s.yml", env))
	}

	config, err := LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	config.Environment = env
	return config, nil
}

// LoadFile reads a yaml file on top of DefaultConfig, so omitted keys keep
// their defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
