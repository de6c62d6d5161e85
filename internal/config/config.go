// Package config loads and validates the application configuration from a
// yaml file, environment variables, and defaults, in that order of
// precedence via viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Annotation AnnotationConfig `mapstructure:"annotation" yaml:"annotation"`
	Export     ExportConfig     `mapstructure:"export" yaml:"export"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "console" for human-readable output or "json" for structured.
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	// LogFile, when set, tees logs into a rotated file.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the Postgres connection settings for the dataset store.
type DatabaseConfig struct {
	// URL is a pgx connection string. Empty disables persistence; the CLI
	// commands that need the store fail with a clear error instead.
	URL      string `mapstructure:"url" yaml:"url"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// AnnotationConfig tunes the trajectory builder and its memory manager.
type AnnotationConfig struct {
	// MemoryCapacity bounds the working-memory window.
	MemoryCapacity int `mapstructure:"memory_capacity" yaml:"memory_capacity"`
	// SummaryBudget is the character budget for episodic digests.
	SummaryBudget int `mapstructure:"summary_budget" yaml:"summary_budget"`
	// AllowEmptyTrajectory permits finalizing zero-step trajectories.
	AllowEmptyTrajectory bool `mapstructure:"allow_empty_trajectory" yaml:"allow_empty_trajectory"`
	// NormalizedTypeRequiresBox makes normalized type actions require an
	// accompanying start_box click position.
	NormalizedTypeRequiresBox bool `mapstructure:"normalized_type_requires_box" yaml:"normalized_type_requires_box"`
}

// ExportConfig tunes the sample exporter.
type ExportConfig struct {
	// InstructionTemplate is the human-turn prompt; %s receives the task.
	InstructionTemplate string `mapstructure:"instruction_template" yaml:"instruction_template"`
	// CoordinateVariant selects the ingestion grammar: pixel or normalized.
	CoordinateVariant string `mapstructure:"coordinate_variant" yaml:"coordinate_variant"`
}

// SetDefaults registers every default value on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "trajector")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("annotation.memory_capacity", 5)
	v.SetDefault("annotation.summary_budget", 200)
	v.SetDefault("annotation.allow_empty_trajectory", false)
	v.SetDefault("annotation.normalized_type_requires_box", false)

	v.SetDefault("export.instruction_template", "")
	v.SetDefault("export.coordinate_variant", "pixel")
}

// NewConfigFromViper creates a configuration instance from a viper object
// that already has its sources wired up.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", c.Logger.Format)
	}

	if c.Annotation.MemoryCapacity <= 0 {
		return fmt.Errorf("annotation.memory_capacity must be positive, got %d", c.Annotation.MemoryCapacity)
	}
	if c.Annotation.SummaryBudget <= 0 {
		return fmt.Errorf("annotation.summary_budget must be positive, got %d", c.Annotation.SummaryBudget)
	}

	switch c.Export.CoordinateVariant {
	case "pixel", "normalized":
	default:
		return fmt.Errorf("export.coordinate_variant must be \"pixel\" or \"normalized\", got %q", c.Export.CoordinateVariant)
	}

	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must not be negative, got %d", c.Database.MaxConns)
	}
	return nil
}
