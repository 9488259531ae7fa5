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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/archintel/internal/errors"
	"github.com/kraklabs/archintel/internal/ui"
	"github.com/kraklabs/archintel/pkg/history"
	"github.com/kraklabs/archintel/pkg/store"
)

// runHistory executes the 'history' CLI command. The default action mines
// commit history into the store; --authors and --diff are read-side views
// over already-mined history.
//
// Flags:
//   - --authors: Show per-author statistics instead of mining
//   - --path: Restrict --authors to commits touching one file
//   - --diff: Show the patch of one mined commit
//
// Examples:
//
//	archintel history                      Mine new commits
//	archintel history --authors            Per-author statistics
//	archintel history --authors --path app/auth.py
//	archintel history --diff deadbeef
func runHistory(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	authors := fs.Bool("authors", false, "Show per-author statistics instead of mining")
	path := fs.String("path", "", "Restrict --authors to commits touching this file")
	diffHash := fs.String("diff", "", "Show the patch of one mined commit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: archintel history [options]

Description:
  Mine the repository's commit history into the store: author, timestamp,
  full message, and per-file additions/deletions for every commit, walked
  oldest-first. Mining is incremental and resumable; re-running is a
  cheap no-op when no new commits exist.

  With --authors, shows per-author commit and line statistics from the
  mined history instead. With --diff <hash>, shows the patch of one
  mined commit.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Mine new commits (run after index)
  archintel history

  # Who worked on this codebase, and how much?
  archintel history --authors

  # Who touched the auth module?
  archintel history --authors --path app/auth.py

  # Inspect one commit's patch
  archintel history --diff deadbeefcafe

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	newLogger(globals)

	root, err := repoRoot(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	st := openStore(cfg, configPath)
	defer func() { _ = st.Close() }()

	ctx := context.Background()

	switch {
	case *authors:
		runAuthorStats(ctx, st, *path, globals)
	case *diffHash != "":
		runCommitDiff(ctx, st, root, *diffHash, globals)
	default:
		runMine(ctx, st, root, globals)
	}
}

func runMine(ctx context.Context, st store.Store, root string, globals GlobalFlags) {
	git, err := history.NewGitExecutor(root)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Not a git repository",
			"History mining needs a git checkout",
			"Run archintel from inside a git repository",
		), globals.JSON)
	}

	miner := history.NewMiner(git, st, nil)
	res, err := miner.Mine(ctx)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"History mining failed",
			err.Error(),
			"If the last mined commit was rewritten (rebase, force-push), delete the store and re-run",
		), globals.JSON)
	}

	if res.Mined == 0 {
		ui.Success("History up to date. No new commits.")
		return
	}

	ui.Header("History Mined")
	fmt.Printf("Commits: %s\n", ui.CountText(res.Mined))
	if len(res.Summary.Skipped) > 0 {
		ui.Warningf("Skipped %d unparseable commits", len(res.Summary.Skipped))
		for _, e := range res.Summary.Skipped {
			fmt.Printf("  %s: %s\n", shortHash(e.Item), ui.DimText(e.Reason))
		}
	}
	fmt.Printf("Checkpoint: %s\n", ui.DimText(shortHash(res.LastHash)))
}

func runAuthorStats(ctx context.Context, st store.Store, path string, globals GlobalFlags) {
	stats, err := history.AuthorStats(ctx, st, path)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		return
	}

	if len(stats) == 0 {
		ui.Warning("No mined history. Run 'archintel history' first.")
		return
	}

	if path != "" {
		ui.Header("Authors of " + path)
	} else {
		ui.Header("Authors")
	}
	for _, s := range stats {
		name := s.DisplayName
		if name == "" {
			name = s.Author
		}
		fmt.Printf("%s %s\n", ui.Label(name), ui.DimText("<"+s.Author+">"))
		fmt.Printf("  commits: %s  +%d -%d  %s → %s\n",
			ui.CountText(s.Commits), s.Additions, s.Deletions,
			s.FirstCommit.Format("2006-01-02"), s.LastCommit.Format("2006-01-02"))
	}
}

func runCommitDiff(ctx context.Context, st store.Store, root, hash string, globals GlobalFlags) {
	git, err := history.NewGitExecutor(root)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Not a git repository",
			"Diff retrieval needs a git checkout",
			"Run archintel from inside a git repository",
		), globals.JSON)
	}

	commit, patch, err := history.CommitDiff(ctx, git, st, hash)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Cannot retrieve commit diff",
			err.Error(),
			"Make sure the hash is fully mined: run 'archintel history' first",
		), globals.JSON)
	}

	ui.Header("Commit " + shortHash(commit.Hash))
	fmt.Printf("%s %s\n", ui.Label("Author:"), commit.Author)
	fmt.Printf("%s %s\n", ui.Label("Date:"), commit.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Println()
	fmt.Println(commit.Message)
	fmt.Println()
	fmt.Println(patch)
}
