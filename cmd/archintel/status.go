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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/archintel/internal/errors"
	"github.com/kraklabs/archintel/internal/ui"
	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// StatusResult represents the project status for JSON output.
type StatusResult struct {
	ProjectID   string    `json:"project_id"`
	StorePath   string    `json:"store_path"`
	Indexed     bool      `json:"indexed"`
	Entities    int       `json:"entities"`
	Functions   int       `json:"functions"`
	Classes     int       `json:"classes"`
	Edges       int       `json:"edges"`
	External    int       `json:"external_edges"`
	Commits     int       `json:"commits"`
	Discussions int       `json:"discussions"`
	IndexedAt   string    `json:"indexed_at_commit,omitempty"`
	MinedAt     string    `json:"mined_at_commit,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, displaying store statistics:
// entity and edge counts, mined commits, stored discussions, and the
// checkpoints the incremental commands resume from.
//
// Examples:
//
//	archintel status           Display formatted status
//	archintel status --json    Output as JSON for programmatic use
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: archintel status [options]

Description:
  Display the current status of the archintel project: entity, edge,
  commit, and discussion counts, plus the checkpoints that 'update' and
  'history' resume from.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Show human-readable status
  archintel status

  # Output as JSON for programmatic use
  archintel status --json

  # Pipe to jq for specific field extraction
  archintel status --json | jq '.entities'

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	dbPath, err := storePath(cfg, configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	result := &StatusResult{
		ProjectID: cfg.ProjectID,
		StorePath: dbPath,
		Timestamp: time.Now(),
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		result.Error = "Project not indexed yet. Run 'archintel index' first."
		if globals.JSON {
			outputStatusJSON(result)
		} else {
			ui.Warningf("Project '%s' not indexed yet.", cfg.ProjectID)
			ui.Info("Run 'archintel index' to index the repository.")
		}
		os.Exit(0)
	}

	st := openStore(cfg, configPath)
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	result.Indexed = true

	entities, err := st.Entities(ctx)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	result.Entities = len(entities)
	for _, e := range entities {
		switch e.Kind {
		case model.KindFunction, model.KindMethod:
			result.Functions++
		case model.KindClass:
			result.Classes++
		}
	}

	edges, err := st.Edges(ctx)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	result.Edges = len(edges)
	for _, e := range edges {
		if e.External() {
			result.External++
		}
	}

	commits, err := st.Commits(ctx)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	result.Commits = len(commits)

	discs, err := st.Discussions(ctx)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	result.Discussions = len(discs)

	result.IndexedAt, _ = st.GetMeta(ctx, store.MetaLastIndexedHash)
	result.MinedAt, _ = st.GetMeta(ctx, store.MetaLastMinedHash)

	if globals.JSON {
		outputStatusJSON(result)
	} else {
		printStatus(result)
	}
}

// outputStatusJSON writes the status result as formatted JSON to stdout.
func outputStatusJSON(result *StatusResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// printStatus prints the status result as formatted text to stdout.
func printStatus(result *StatusResult) {
	ui.Header("archintel Project Status")
	fmt.Printf("%s    %s\n", ui.Label("Project ID:"), result.ProjectID)
	fmt.Printf("%s         %s\n", ui.Label("Store:"), ui.DimText(result.StorePath))
	fmt.Println()

	ui.SubHeader("Graph:")
	fmt.Printf("  Entities:      %s", ui.CountText(result.Entities))
	_, _ = ui.Dim.Printf("  (%d functions/methods, %d classes)\n", result.Functions, result.Classes)
	fmt.Printf("  Edges:         %s", ui.CountText(result.Edges))
	_, _ = ui.Dim.Printf("  (%d external)\n", result.External)
	fmt.Println()

	ui.SubHeader("History & Discussions:")
	fmt.Printf("  Commits:       %s\n", ui.CountText(result.Commits))
	fmt.Printf("  Discussions:   %s\n", ui.CountText(result.Discussions))
	fmt.Println()

	ui.SubHeader("Checkpoints:")
	fmt.Printf("  Indexed at:    %s\n", ui.DimText(orUnset(shortHash(result.IndexedAt))))
	fmt.Printf("  Mined at:      %s\n", ui.DimText(orUnset(shortHash(result.MinedAt))))
}

func orUnset(s string) string {
	if s == "" {
		return "(never)"
	}
	return s
}
