// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package main

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	mpq "github.com/suprsokr/mpqkit"
)

const defaultNamesTableSize = 4096

// config mirrors the optional TOML file. Command line flags win over it.
type config struct {
	LogLevel       string `toml:"log_level"`
	HeaderName     string `toml:"header_name"`
	ArtifactDir    string `toml:"artifact_dir"`
	SkipOutOfRange bool   `toml:"skip_out_of_range"`
	HashTableSize  uint32 `toml:"hash_table_size"`
}

func loadConfig(path string) (*config, error) {
	cfg := &config{
		LogLevel:      "info",
		HashTableSize: defaultNamesTableSize,
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}
	return cfg, nil
}

// resolveConfig loads the config file named by --config and applies flag
// overrides.
func resolveConfig(c *cli.Context) (*config, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("skip-out-of-range") {
		cfg.SkipOutOfRange = c.Bool("skip-out-of-range")
	}
	if c.IsSet("table-size") {
		cfg.HashTableSize = uint32(c.Uint("table-size"))
	}
	if cfg.HashTableSize == 0 {
		return nil, errors.New("hash table size must be positive")
	}
	return cfg, nil
}

func (cfg *config) options() *mpq.Options {
	return &mpq.Options{
		Logger:         logrus.StandardLogger(),
		Cipher:         cipher,
		HeaderName:     cfg.HeaderName,
		ArtifactDir:    cfg.ArtifactDir,
		SkipOutOfRange: cfg.SkipOutOfRange,
	}
}

func setupLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	logrus.SetLevel(logLevel)
	return nil
}
