// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all CLI configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Output  OutputConfig  `mapstructure:"output"`
	Decode  DecodeConfig  `mapstructure:"decode"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console, json
}

// OutputConfig holds FlatGeobuf output configuration.
type OutputConfig struct {
	Name         string `mapstructure:"name"` // layer name, defaults to the dataset name
	Description  string `mapstructure:"description"`
	IncludeIndex bool   `mapstructure:"include_index"`
	CRSCode      int    `mapstructure:"crs_code"` // EPSG code, 0 for none
}

// DecodeConfig holds structural decoding configuration.
type DecodeConfig struct {
	ErrorUnused bool `mapstructure:"error_unused"`
}

// Defaults sets the default configuration values on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("output.name", "")
	v.SetDefault("output.description", "")
	v.SetDefault("output.include_index", true)
	v.SetDefault("output.crs_code", 4326)

	v.SetDefault("decode.error_unused", false)
}

// Load loads configuration from the environment and an optional config file.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	Defaults(v)

	// Environment variable binding
	v.SetEnvPrefix("GEOSERDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("geoserde")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/geoserde")
	}

	// Try to read config file (not required unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if c.Output.CRSCode < 0 {
		return fmt.Errorf("invalid CRS code: %d", c.Output.CRSCode)
	}

	return nil
}
