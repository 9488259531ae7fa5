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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/archintel/internal/errors"
	"github.com/kraklabs/archintel/internal/ui"
)

// runInit executes the 'init' CLI command, creating .archintel/project.yaml.
//
// Flags:
//   - --force: Overwrite existing configuration
//   - -y: Non-interactive mode, use all defaults
//   - --project-id: Project identifier (default: directory name)
//   - --github-repo: GitHub repository ("owner/name") for discussions
//   - --generator: Generation backend (openai, mock, none)
//   - --llm-url: OpenAI-compatible API URL
//   - --llm-model: Model name
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite existing configuration")
	nonInteractive := fs.BoolP("yes", "y", false, "Non-interactive mode (use defaults)")
	projectID := fs.String("project-id", "", "Project identifier")
	githubRepo := fs.String("github-repo", "", "GitHub repository for discussions (owner/name)")
	generator := fs.String("generator", "", "Generation backend (openai, mock, none)")
	llmURL := fs.String("llm-url", "", "OpenAI-compatible API URL for answer generation")
	llmModel := fs.String("llm-model", "", "Model name for answer generation")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: archintel init [options]

Description:
  Create a .archintel/project.yaml configuration file for the current
  repository.

  By default, runs in interactive mode with prompts for each setting.
  Use -y for non-interactive mode with sensible defaults.

  The configuration defines:
  - Project identifier and store location
  - Indexing behavior (exclusions, file size limits, worker count)
  - GitHub repository for the discussions command
  - Generation backend for ask/doc (openai, mock, none)

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Interactive setup with prompts
  archintel init

  # Use all defaults
  archintel init -y

  # Configure the discussion source and generator up front
  archintel init -y --github-repo acme/payments --generator openai --llm-url http://localhost:8001/v1

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"This is unexpected. Please report this issue if it persists",
			err,
		), false)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !*force {
		errors.FatalError(errors.NewInputError(
			"Configuration already exists",
			fmt.Sprintf("%s already exists in this directory", configPath),
			"Use 'archintel init --force' to overwrite the existing configuration",
		), false)
	}

	id := *projectID
	if id == "" {
		id = filepath.Base(cwd)
	}
	cfg := DefaultConfig(id)
	if *githubRepo != "" {
		cfg.GitHub.Repo = *githubRepo
	}
	if *generator != "" {
		cfg.Generator.Provider = *generator
	}
	if *llmURL != "" {
		cfg.Generator.BaseURL = *llmURL
		if cfg.Generator.Provider == "mock" {
			cfg.Generator.Provider = "openai"
		}
	}
	if *llmModel != "" {
		cfg.Generator.Model = *llmModel
	}

	if !*nonInteractive {
		runInteractiveConfig(bufio.NewReader(os.Stdin), cfg)
	}

	if err := SaveConfig(cfg, configPath); err != nil {
		errors.FatalError(err, false)
	}

	ui.Success("Configuration written to " + configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  archintel index      Build the dependency graph")
	fmt.Println("  archintel history    Mine commit history")
	if cfg.GitHub.Repo != "" {
		fmt.Println("  archintel discussions  Fetch and link PRs/issues")
	}
	fmt.Println("  archintel ask \"...\"  Ask a question about the codebase")
}

// runInteractiveConfig prompts for the settings most users change.
func runInteractiveConfig(reader *bufio.Reader, cfg *Config) {
	cfg.ProjectID = prompt(reader, "Project ID", cfg.ProjectID)
	cfg.GitHub.Repo = prompt(reader, "GitHub repository (owner/name, empty to skip)", cfg.GitHub.Repo)
	cfg.Generator.Provider = prompt(reader, "Generation backend (openai, mock, none)", cfg.Generator.Provider)
	if cfg.Generator.Provider == "openai" {
		cfg.Generator.BaseURL = prompt(reader, "OpenAI-compatible API URL", cfg.Generator.BaseURL)
		cfg.Generator.Model = prompt(reader, "Model name", cfg.Generator.Model)
	}
}

func prompt(reader *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}
