// Package config provides configuration structures and loading logic for the
// trace aggregator service.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
}

// ServerConfig defines the HTTP listener settings.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// AggregatorConfig defines operational limits for queries.
type AggregatorConfig struct {
	SearchLimit int `mapstructure:"search_limit"`
	ReportLimit int `mapstructure:"report_limit"`
}

// SnapshotConfig defines the on-disk snapshot archive settings.
type SnapshotConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// Load reads configuration from config.yaml or environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/tracagg")

	// Allow environment variables to override config
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("aggregator.search_limit", 100)
	viper.SetDefault("aggregator.report_limit", 10)
	viper.SetDefault("snapshot.enabled", true)
	viper.SetDefault("snapshot.db_path", "data/snapshots.db")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
