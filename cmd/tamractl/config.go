// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds the settings tamractl run needs to build and drive a
// forest.
type Config struct {
	Shape struct {
		N1 int `mapstructure:"n1"`
		N2 int `mapstructure:"n2"`
		N3 int `mapstructure:"n3"`
	} `mapstructure:"shape"`
	MinLevel        int     `mapstructure:"min_level"`
	MaxLevel        int     `mapstructure:"max_level"`
	MaxPctUnbalance float64 `mapstructure:"max_pct_unbalance"`
	SFC             string  `mapstructure:"sfc"`
	NumProcs        int     `mapstructure:"num_procs"`
}

// loadConfig reads tamractl's configuration from configPath (if set) or
// the standard locations/env, falling back to defaults when no file is
// present.
func loadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setConfigDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tamractl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tamractl")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Fprintln(os.Stderr, "config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("tamractl: read config: %w", err)
		}
	}

	v.SetEnvPrefix("TAMRACTL")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("tamractl: unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tamractl: invalid config: %w", err)
	}
	return &cfg, nil
}

// loadConfigFromBytes loads YAML configuration from an in-memory buffer,
// for tests.
func loadConfigFromBytes(content []byte) (*Config, error) {
	v := viper.New()
	setConfigDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("tamractl: read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("tamractl: unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tamractl: invalid config: %w", err)
	}
	return &cfg, nil
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("shape.n1", 2)
	v.SetDefault("shape.n2", 2)
	v.SetDefault("shape.n3", 2)
	v.SetDefault("min_level", 1)
	v.SetDefault("max_level", 4)
	v.SetDefault("max_pct_unbalance", 0.1)
	v.SetDefault("sfc", "hilbert")
	v.SetDefault("num_procs", 2)
}

// Validate checks the loaded configuration for obviously broken values
// before a run is attempted.
func (c *Config) Validate() error {
	if c.MinLevel < 0 {
		return fmt.Errorf("min_level must be >= 0, got %d", c.MinLevel)
	}
	if c.MaxLevel < c.MinLevel {
		return fmt.Errorf("max_level (%d) must be >= min_level (%d)", c.MaxLevel, c.MinLevel)
	}
	if c.MaxPctUnbalance <= 0 || c.MaxPctUnbalance > 1 {
		return fmt.Errorf("max_pct_unbalance must be in (0,1], got %v", c.MaxPctUnbalance)
	}
	if c.SFC != "morton" && c.SFC != "hilbert" {
		return fmt.Errorf("unsupported sfc kind: %q (valid: morton, hilbert)", c.SFC)
	}
	if c.NumProcs < 1 {
		return fmt.Errorf("num_procs must be >= 1, got %d", c.NumProcs)
	}
	return nil
}
