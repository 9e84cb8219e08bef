package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the cdf configuration file (~/.config/cdf/config.yaml).
// Numeric fields are pointers so we can distinguish "not set" from zero
// values.
type Config struct {
	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Dump defaults
	Pretty      *bool  `yaml:"pretty"`
	RecordLimit *int64 `yaml:"record_limit"`

	// Server
	ServerAddress string `yaml:"server_address"`
	DataDir       string `yaml:"data_dir"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cdf", "config.yaml")
}

// applyLoggingConfig applies config file defaults to the logging
// variables when the corresponding CLI flag was not explicitly set.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyDumpConfig applies config file defaults to dump command variables.
func applyDumpConfig(c *cli.Command, cfg Config, pretty *bool, limit *int64) {
	if cfg.Pretty != nil && !c.IsSet("pretty") {
		*pretty = *cfg.Pretty
	}
	if cfg.RecordLimit != nil && !c.IsSet("limit") {
		*limit = *cfg.RecordLimit
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr, dataDir *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.DataDir != "" && !c.IsSet("data-dir") {
		*dataDir = cfg.DataDir
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
