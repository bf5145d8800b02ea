package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the charnet configuration file
// (~/.config/charnet/config.yaml). Numeric fields are pointers so we can
// distinguish "not set" from zero values.
type Config struct {
	// Training defaults
	Arch         string   `yaml:"arch"`
	HiddenSize   *int64   `yaml:"hidden_size"`
	LearningRate *float64 `yaml:"learning_rate"`
	Dropout      *float64 `yaml:"dropout"`
	Window       *int64   `yaml:"window"`
	Steps        *int64   `yaml:"steps"`
	Seed         *int64   `yaml:"seed"`
	SampleEvery  *int64   `yaml:"sample_every"`

	// Sampling defaults
	Temperature *float64 `yaml:"temperature"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "charnet", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing default file yields a zero Config; a missing
// explicit file is an error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyTrainConfig applies config file defaults to train options whose flag
// was not explicitly set.
func applyTrainConfig(c *cli.Command, cfg Config, o *trainOptions) {
	if cfg.Arch != "" && !c.IsSet("arch") {
		o.arch = cfg.Arch
	}
	if cfg.HiddenSize != nil && !c.IsSet("hidden") {
		o.hidden = *cfg.HiddenSize
	}
	if cfg.LearningRate != nil && !c.IsSet("lr") {
		o.lr = *cfg.LearningRate
	}
	if cfg.Dropout != nil && !c.IsSet("dropout") {
		o.dropout = *cfg.Dropout
	}
	if cfg.Window != nil && !c.IsSet("window") {
		o.window = *cfg.Window
	}
	if cfg.Steps != nil && !c.IsSet("steps") {
		o.steps = *cfg.Steps
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		o.seed = *cfg.Seed
	}
	if cfg.SampleEvery != nil && !c.IsSet("sample-every") {
		o.sampleEvery = *cfg.SampleEvery
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		o.temperature = *cfg.Temperature
	}
}

// applyGenerateConfig applies config file defaults to generate options.
func applyGenerateConfig(c *cli.Command, cfg Config, temp *float64, seed *int64) {
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		*temp = *cfg.Temperature
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
