// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cliconfig loads steerctl's persistent operator defaults from
// ~/.config/steeringkit.{yaml,json}, adapted from the teacher's
// internal/server/config.go ConfigFile pattern.
package cliconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigFile represents the persistent configuration file format.
type ConfigFile struct {
	VectorDir         string  `json:"vector-dir,omitempty" yaml:"vector-dir,omitempty"`
	BatchSize         int     `json:"batch-size,omitempty" yaml:"batch-size,omitempty"`
	MaxLength         int     `json:"max-length,omitempty" yaml:"max-length,omitempty"`
	ConflictThreshold float64 `json:"conflict-threshold,omitempty" yaml:"conflict-threshold,omitempty"`
	Device            string  `json:"device,omitempty" yaml:"device,omitempty"`
}

// Defaults returns the built-in fallback values applied when neither a
// flag nor the config file sets them.
func Defaults() ConfigFile {
	return ConfigFile{
		BatchSize:         8,
		MaxLength:         128,
		ConflictThreshold: 0.7,
		Device:            "cpu",
	}
}

var configMu sync.Mutex

// envOverride is the single environment-variable override this module
// recognizes, matching the teacher's one-override-variable convention
// (its HF_HOME-equivalent was a single endpoint/token override).
const envOverride = "STEERINGKIT_CONFIG"

// Path returns the config file to use: $STEERINGKIT_CONFIG if set,
// otherwise the first of steeringkit.json/.yaml/.yml under ~/.config that
// exists, defaulting to the JSON path if none exist.
func Path() string {
	if p := os.Getenv(envOverride); p != "" {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	configDir := filepath.Join(home, ".config")

	jsonPath := filepath.Join(configDir, "steeringkit.json")
	yamlPath := filepath.Join(configDir, "steeringkit.yaml")
	ymlPath := filepath.Join(configDir, "steeringkit.yml")

	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath
	}
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}
	return jsonPath
}

// Load reads the config file, returning Defaults() with no error if the
// file does not exist.
func Load() (*ConfigFile, error) {
	path := Path()
	if path == "" {
		d := Defaults()
		return &d, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			d := Defaults()
			return &d, nil
		}
		return nil, err
	}

	cfg := Defaults()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Save writes cfg to the config file, creating its parent directory if
// needed.
func Save(cfg *ConfigFile) error {
	configMu.Lock()
	defer configMu.Unlock()

	path := Path()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var data []byte
	var err error
	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Merge overlays non-zero fields of override onto base, matching the
// teacher's "flags override config, config overrides built-in defaults"
// precedence (internal/server/config.go's ApplyConfigToServer).
func Merge(base ConfigFile, override ConfigFile) ConfigFile {
	out := base
	if override.VectorDir != "" {
		out.VectorDir = override.VectorDir
	}
	if override.BatchSize > 0 {
		out.BatchSize = override.BatchSize
	}
	if override.MaxLength > 0 {
		out.MaxLength = override.MaxLength
	}
	if override.ConflictThreshold > 0 {
		out.ConflictThreshold = override.ConflictThreshold
	}
	if override.Device != "" {
		out.Device = override.Device
	}
	return out
}
