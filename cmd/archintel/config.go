// Copyright 2025 KrakLabs
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
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/archintel/internal/errors"
)

const (
	defaultConfigDir  = ".archintel"
	defaultConfigFile = "project.yaml"
	defaultStoreFile  = "archintel.db"
	configVersion     = "1"
)

// Config represents the .archintel/project.yaml configuration file.
type Config struct {
	Version   string          `yaml:"version"`
	ProjectID string          `yaml:"project_id"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	GitHub    GitHubConfig    `yaml:"github,omitempty"`
	Generator GeneratorConfig `yaml:"generator,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
}

// IndexingConfig contains graph-building settings.
type IndexingConfig struct {
	ParseWorkers int      `yaml:"parse_workers"` // parallel parser workers
	MaxFileSize  int64    `yaml:"max_file_size"` // bytes
	Exclude      []string `yaml:"exclude"`       // glob patterns added to the defaults
}

// GitHubConfig contains the discussion source settings.
type GitHubConfig struct {
	Repo  string `yaml:"repo"`            // "owner/name"
	Token string `yaml:"token,omitempty"` // usually set via ARCHINTEL_GITHUB_TOKEN instead
}

// GeneratorConfig holds generation backend settings for ask/doc.
type GeneratorConfig struct {
	Provider string `yaml:"provider"` // openai, mock, none
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"` // usually set via ARCHINTEL_LLM_API_KEY instead
}

// StoreConfig holds the store location.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // relative to the config directory
}

// DefaultConfig returns a config with sensible defaults for local use.
func DefaultConfig(projectID string) *Config {
	return &Config{
		Version:   configVersion,
		ProjectID: projectID,
		Indexing: IndexingConfig{
			ParseWorkers: 4,
			MaxFileSize:  1048576, // 1MB
		},
		Generator: GeneratorConfig{
			Provider: "mock",
			BaseURL:  getEnv("ARCHINTEL_LLM_URL", ""),
			Model:    getEnv("ARCHINTEL_LLM_MODEL", ""),
		},
		Store: StoreConfig{
			Path: defaultStoreFile,
		},
	}
}

// LoadConfig loads configuration from the specified path or finds it by
// walking up from the current directory. Environment variables override
// file values after loading.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("ARCHINTEL_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: Path comes from user config or discovery
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
			fmt.Sprintf("Edit %s to fix syntax errors, or run 'archintel init --force' to recreate", configPath),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			"Run 'archintel init --force' to regenerate the configuration file",
			nil,
		)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// SaveConfig writes the configuration as YAML, creating the .archintel
// directory if needed.
func SaveConfig(cfg *Config, configPath string) error {
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
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Permission denied creating %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Permission denied writing to %s", configPath),
			"Check file permissions and ensure sufficient disk space",
			err,
		)
	}

	return nil
}

// ConfigPath returns <dir>/.archintel/project.yaml.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// ConfigDir returns <dir>/.archintel.
func ConfigDir(dir string) string {
	return filepath.Join(dir, defaultConfigDir)
}

// findConfigFile searches for .archintel/project.yaml in the current and
// parent directories.
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
		configPath := ConfigPath(dir)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NewConfigError(
		"Configuration not found",
		"No .archintel/project.yaml file found in current directory or any parent directory",
		"Run 'archintel init' to create a new configuration",
		nil,
	)
}

// resolvedConfigPath resolves the effective config file path without
// requiring that it parses.
func resolvedConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return filepath.Abs(configPath)
	}
	if envPath := os.Getenv("ARCHINTEL_CONFIG_PATH"); envPath != "" {
		return filepath.Abs(envPath)
	}
	path, err := findConfigFile()
	if err != nil {
		return "", err
	}
	return filepath.Abs(path)
}

// storePath resolves the store file location: absolute paths are used as
// given, relative paths are anchored at the config directory.
func storePath(cfg *Config, configPath string) (string, error) {
	p := cfg.Store.Path
	if p == "" {
		p = defaultStoreFile
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}

	cfgFile, err := resolvedConfigPath(configPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(cfgFile), p), nil
}

// repoRoot returns the directory holding the .archintel directory, which
// is treated as the repository root for indexing.
func repoRoot(configPath string) (string, error) {
	cfgFile, err := resolvedConfigPath(configPath)
	if err != nil {
		return "", err
	}
	return filepath.Dir(filepath.Dir(cfgFile)), nil
}

// applyEnvOverrides applies environment variable overrides. Environment
// variables take precedence over file-based configuration.
func (c *Config) applyEnvOverrides() {
	if id := os.Getenv("ARCHINTEL_PROJECT_ID"); id != "" {
		c.ProjectID = id
	}
	if repo := os.Getenv("ARCHINTEL_GITHUB_REPO"); repo != "" {
		c.GitHub.Repo = repo
	}
	if token := os.Getenv("ARCHINTEL_GITHUB_TOKEN"); token != "" {
		c.GitHub.Token = token
	}
	if url := os.Getenv("ARCHINTEL_LLM_URL"); url != "" {
		c.Generator.BaseURL = url
		if c.Generator.Provider == "" || c.Generator.Provider == "mock" {
			c.Generator.Provider = "openai"
		}
	}
	if model := os.Getenv("ARCHINTEL_LLM_MODEL"); model != "" {
		c.Generator.Model = model
	}
	if key := os.Getenv("ARCHINTEL_LLM_API_KEY"); key != "" {
		c.Generator.APIKey = key
	}
}

// getEnv retrieves an environment variable or returns a fallback.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
