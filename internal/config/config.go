// Package config loads the optional vmbundle config file.
//
// The file seeds defaults for the decode command; flags given on the command
// line always win over file values.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the file-level configuration.
type Config struct {
	// Output is the bundle document path. Default "bundles.json".
	Output string `yaml:"output"`

	// Format is "strict" (valid JSON) or "compat" (legacy byte-compatible
	// framing). Default "strict".
	Format string `yaml:"format"`

	// DB is an optional SQLite bundle store path. Empty disables the store.
	DB string `yaml:"db"`

	// Verbose raises logging to debug level.
	Verbose bool `yaml:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Output: "bundles.json",
		Format: "strict",
	}
}

// Load reads a yaml config file and applies it over the defaults.
// Unknown keys are rejected to catch typos early.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Output == "" {
		cfg.Output = Default().Output
	}
	if cfg.Format == "" {
		cfg.Format = Default().Format
	}
	return cfg, nil
}
