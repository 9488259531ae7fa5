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
// Package main implements the archintel CLI for indexing repositories and
// asking questions against the code intelligence store.
//
// Usage:
//
//	archintel init                    Create .archintel/project.yaml configuration
//	archintel index                   Build the dependency graph for the repository
//	archintel update                  Incrementally re-index changed files
//	archintel history                 Mine commit history into the store
//	archintel discussions             Fetch and link PRs/issues
//	archintel ask "<question>"        Answer a question about the codebase
//	archintel doc <path[:entity]>     Generate documentation for a file or entity
//	archintel status [--json]         Show project status
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/archintel/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool // Output in JSON format (for applicable commands)
	NoColor bool // Disable color output
	Verbose int  // Verbosity level: 0=normal, 1=-v (info), 2=-vv (debug)
	Quiet   bool // Suppress non-essential output (progress, info messages)
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .archintel/project.yaml (default: ./.archintel/project.yaml)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
	)

	// Stop parsing at the first non-flag argument (the command name) so
	// subcommand-specific flags like "index --full" reach the subcommand
	// handlers instead of being rejected by the global parser.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `archintel - Code Intelligence & Retrieval Engine

archintel indexes a repository's structure (functions, classes, call and
import edges), mines its git history, links PRs and issues to the code
they touch, and answers questions about the codebase with citations into
that evidence.

Usage:
  archintel <command> [options]

Commands:
  init          Create .archintel/project.yaml configuration
  index         Build the dependency graph for the repository
  update        Incrementally re-index files changed since the last index
  history       Mine commit history (also: --authors, --diff <hash>)
  discussions   Fetch GitHub PRs/issues and link them to code
  ask           Answer a question about the codebase
  doc           Generate documentation for a file or entity
  status        Show project status

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output (progress, info messages)
  -c, --config      Path to .archintel/project.yaml
  -V, --version     Show version and exit

Examples:
  archintel init -y                        Create configuration with defaults
  archintel index                          Index current repository
  archintel history                        Mine commit history
  archintel history --authors              Show per-author statistics
  archintel discussions --repo owner/name  Fetch and link GitHub issues/PRs
  archintel ask "why does auth retry?"     Ask a question
  archintel doc app/auth.py                Document a file
  archintel status --json                  Output status as JSON

Getting Started:
  1. Initialize configuration:  archintel init -y
  2. Index your repository:     archintel index
  3. Mine commit history:       archintel history
  4. Ask questions:             archintel ask "..."

Data Storage:
  The entity store lives in .archintel/archintel.db by default
  (configurable via store.path in project.yaml).

Environment Variables:
  ARCHINTEL_GITHUB_TOKEN   GitHub API token for the discussions command
  ARCHINTEL_LLM_URL        OpenAI-compatible API URL for answer generation
  ARCHINTEL_LLM_API_KEY    API key for the generation backend

For detailed command help: archintel <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("archintel version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	// Check NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	// JSON mode auto-enables quiet to prevent progress bars corrupting
	// JSON output
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "index":
		runIndex(cmdArgs, *configPath, globals)
	case "update":
		runUpdate(cmdArgs, *configPath, globals)
	case "history":
		runHistory(cmdArgs, *configPath, globals)
	case "discussions":
		runDiscussions(cmdArgs, *configPath, globals)
	case "ask":
		runAsk(cmdArgs, *configPath, globals)
	case "doc":
		runDoc(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
