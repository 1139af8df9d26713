// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the portal's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendGCS    = "gcs"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// PortalConfig is the full portal configuration.
type PortalConfig struct {
	Store    StoreConfig   `yaml:"store"`
	Cache    CacheConfig   `yaml:"cache"`
	Lineage  LineageConfig `yaml:"lineage"`
	LogLevel string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// LogDir enables JSON file logging alongside stderr when set.
	LogDir string `yaml:"log_dir"`
}

// StoreConfig selects and configures the durable tier.
type StoreConfig struct {
	// Backend is one of gcs, badger, memory.
	Backend string `yaml:"backend" validate:"required,oneof=gcs badger memory"`

	// GCS settings; required when Backend is gcs.
	Bucket      string `yaml:"bucket" validate:"required_if=Backend gcs"`
	Prefix      string `yaml:"prefix"`
	Credentials string `yaml:"credentials"` // service account key path; empty uses ADC

	// Badger settings; required when Backend is badger.
	Path string `yaml:"path" validate:"required_if=Backend badger"`
}

// Duration is a time.Duration that YAML-serializes as a string like "5m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// CacheConfig tunes the in-process memory tier.
type CacheConfig struct {
	TTL        Duration `yaml:"ttl"`
	MaxEntries int      `yaml:"max_entries" validate:"omitempty,min=1"`
}

// LineageConfig tunes the lineage builder and its process cache.
type LineageConfig struct {
	TTL           Duration `yaml:"ttl"`
	Workers       int      `yaml:"workers" validate:"omitempty,min=1,max=64"`
	FlatFileMatch bool     `yaml:"flat_file_match"`
}

// DefaultConfig returns the configuration written on first run: badger
// under the user's home directory, default TTLs, matching enabled.
func DefaultConfig() PortalConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return PortalConfig{
		Store: StoreConfig{
			Backend: BackendBadger,
			Path:    filepath.Join(home, ".qsportal", "store"),
		},
		Cache: CacheConfig{
			TTL: Duration(5 * time.Minute),
		},
		Lineage: LineageConfig{
			TTL:           Duration(30 * time.Minute),
			Workers:       8,
			FlatFileMatch: true,
		},
		LogLevel: "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".qsportal", "portal.yaml"), nil
}

// Load reads, parses, and validates the config at path. A missing file
// is created with defaults first.
//
// The loaded config is returned by value and threaded through
// constructors; there is no package-level singleton.
func Load(path string) (PortalConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return PortalConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return PortalConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PortalConfig{}, fmt.Errorf("failed to parse the config file: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return PortalConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
