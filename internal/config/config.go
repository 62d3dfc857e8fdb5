// Copyright 2026 The Ember Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves a project's .ember/project.yaml (§3.1,
// §6.1), following the discovery rules a build tool needs: an explicit
// --config flag, then EMBER_CONFIG_PATH, then a walk up from the current
// directory looking for .ember/project.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/ember/internal/errors"
)

const (
	defaultConfigDir  = ".ember"
	defaultConfigFile = "project.yaml"
	configVersion      = "1"
)

// Config represents the .ember/project.yaml file: the project's package
// root name (§3.1) and default fuzzing behavior for `ember fuzz`. The
// Tracing section is loaded and saved, but no subcommand reads it.
type Config struct {
	Version string       `yaml:"version"`
	Package string       `yaml:"package"`
	Fuzz    FuzzConfig   `yaml:"fuzz,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty"`
}

// FuzzConfig controls `ember fuzz`'s case budget and seed when set to a
// non-zero value. CorpusDir is loaded and saved, but no subcommand reads it.
type FuzzConfig struct {
	CorpusDir  string `yaml:"corpus_dir,omitempty"`
	CaseBudget int    `yaml:"case_budget,omitempty"`
	Seed       int64  `yaml:"seed,omitempty"`
}

// TracingConfig mirrors mir.TracingConfig's three toggles (§4.3), each
// one of "off", "current-module", or "all".
type TracingConfig struct {
	RegisterFuzzables    string `yaml:"register_fuzzables,omitempty"`
	Calls                string `yaml:"calls,omitempty"`
	EvaluatedExpressions string `yaml:"evaluated_expressions,omitempty"`
}

// Default returns a Config with sensible defaults for pkg, the project's
// directory name.
func Default(pkg string) *Config {
	return &Config{
		Version: configVersion,
		Package: pkg,
		Fuzz: FuzzConfig{
			CorpusDir:  ".ember/corpus",
			CaseBudget: 1000,
		},
		Tracing: TracingConfig{
			RegisterFuzzables:    "all",
			Calls:                "off",
			EvaluatedExpressions: "off",
		},
	}
}

// Load loads the configuration from configPath, or discovers it via
// EMBER_CONFIG_PATH / an upward directory search when configPath is
// empty.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("EMBER_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors", configPath),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			fmt.Sprintf("Set version to '%s' in the configuration file", configVersion),
			nil,
		)
	}

	return &cfg, nil
}

// Save writes cfg to configPath as YAML, creating its directory if
// needed.
func Save(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternalError(
			"Cannot encode configuration",
			"YAML marshaling failed unexpectedly",
			"This is a bug. Please report it with your configuration details",
			err,
		)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Permission denied creating %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Permission denied writing to %s", configPath),
			"Check file permissions and ensure sufficient disk space",
			err,
		)
	}

	return nil
}

// Path returns the <dir>/.ember/project.yaml path.
func Path(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// Dir returns the <dir>/.ember path.
func Dir(dir string) string {
	return filepath.Join(dir, defaultConfigDir)
}

func findConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"Check system permissions and try again",
			err,
		)
	}

	for {
		candidate := Path(dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NewConfigError(
		"Configuration not found",
		"No .ember/project.yaml file found in current directory or any parent directory",
		"Create .ember/project.yaml in the project root",
		nil,
	)
}
