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
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/archintel/internal/errors"
	"github.com/kraklabs/archintel/internal/ui"
	"github.com/kraklabs/archintel/pkg/graph"
	"github.com/kraklabs/archintel/pkg/history"
	"github.com/kraklabs/archintel/pkg/ingestion"
	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// runUpdate executes the 'update' CLI command, incrementally re-indexing
// files changed since the last index.
//
// The changed-file set comes from the git diff between the commit recorded
// at the last index/update and the current HEAD. Deleted and renamed files
// have their entities removed; edges elsewhere in the graph that pointed
// at removed entities become external references instead of being dropped.
func runUpdate(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: archintel update

Description:
  Incrementally re-index the repository: compute the set of files changed
  since the last 'archintel index' or 'archintel update' (via git diff),
  re-parse only those files, and repair edges across the rest of the
  graph.

  This requires the repository to be a git checkout and an initial
  'archintel index' to have been run.

Examples:
  # After pulling or committing changes
  archintel update

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	logger := newLogger(globals)

	root, err := repoRoot(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	git, err := history.NewGitExecutor(root)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Not a git repository",
			"Incremental updates need git to compute the changed-file set",
			"Run 'archintel index' instead for a full re-index",
		), globals.JSON)
	}

	st := openStore(cfg, configPath)
	defer func() { _ = st.Close() }()

	ctx := context.Background()

	last, err := st.GetMeta(ctx, store.MetaLastIndexedHash)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if last == "" {
		errors.FatalError(errors.NewInputError(
			"Repository not indexed yet",
			"No previous index checkpoint found in the store",
			"Run 'archintel index' first",
		), globals.JSON)
	}

	head, err := history.Head(ctx, git)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Cannot determine HEAD",
			"git rev-parse HEAD failed",
			"Make sure the repository has at least one commit",
		), globals.JSON)
	}

	var changes []model.FileChange
	if head != last {
		changes, err = history.ChangedFiles(ctx, git, last, head)
		if err != nil {
			errors.FatalError(errors.NewInputError(
				"Cannot compute changed files",
				fmt.Sprintf("git diff %s..%s failed", shortHash(last), shortHash(head)),
				"The last indexed commit may have been rewritten; run 'archintel index' for a full re-index",
			), globals.JSON)
		}
	}

	if len(changes) == 0 {
		ui.Success("Index up to date. No changes since " + shortHash(last) + ".")
		return
	}

	loader := ingestion.NewLoader(root, cfg.Indexing.Exclude, logger)
	if cfg.Indexing.MaxFileSize > 0 {
		loader.MaxFileSize = cfg.Indexing.MaxFileSize
	}
	builder := graph.NewBuilder(st, loader, logger)
	if cfg.Indexing.ParseWorkers > 0 {
		builder.ParseWorkers = cfg.Indexing.ParseWorkers
	}

	start := time.Now()
	result, err := builder.Update(ctx, changes)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Incremental update failed",
			"An error occurred while re-indexing changed files",
			"Re-run 'archintel update', or 'archintel index' for a full rebuild",
			err,
		), globals.JSON)
	}

	if err := st.SetMeta(ctx, store.MetaLastIndexedHash, head); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	ui.Header("Update Complete")
	fmt.Printf("Changed Files: %s\n", ui.CountText(len(changes)))
	fmt.Printf("Re-indexed: %s\n", ui.CountText(result.Files))
	fmt.Printf("Entities: %s\n", ui.CountText(result.Entities))
	fmt.Printf("Edges: %s\n", ui.CountText(result.Edges))
	if len(result.Summary.Skipped) > 0 {
		fmt.Printf("Degraded: %s\n", ui.CountText(len(result.Summary.Skipped)))
	}
	fmt.Println()
	fmt.Printf("Now at: %s\n", ui.DimText(shortHash(head)))
	fmt.Printf("Elapsed: %s\n", ui.DimText(time.Since(start).Round(time.Millisecond).String()))
}

func shortHash(hash string) string {
	if len(hash) > 10 {
		return hash[:10]
	}
	return hash
}
