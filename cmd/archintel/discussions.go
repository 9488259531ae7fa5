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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/archintel/internal/errors"
	"github.com/kraklabs/archintel/internal/ui"
	"github.com/kraklabs/archintel/pkg/discussions"
	"github.com/kraklabs/archintel/pkg/model"
)

// runDiscussions executes the 'discussions' CLI command: fetch GitHub
// issues and pull requests, ingest them into the store, and (re)link every
// stored discussion to the commits, files, and entities it talks about.
//
// Flags:
//   - --repo: GitHub repository (owner/name), overrides config
//   - --relink-only: Skip fetching, just recompute links
func runDiscussions(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("discussions", flag.ExitOnError)
	repo := fs.String("repo", "", "GitHub repository (owner/name), overrides config")
	relinkOnly := fs.Bool("relink-only", false, "Skip fetching, just recompute links against the current graph")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: archintel discussions [options]

Description:
  Fetch GitHub issues and pull requests for the configured repository,
  store them, and link each one to the code it references: commit hashes
  and file paths mentioned in the text, commits whose messages reference
  the issue ("fixes #42"), and entity names as a keyword fallback.

  Linking runs against the current graph and history, so re-run this
  after 'archintel index' or 'archintel history' to refresh the links
  (--relink-only skips the network fetch).

  Authentication uses the ARCHINTEL_GITHUB_TOKEN environment variable or
  github.token in project.yaml. Unauthenticated requests work for public
  repositories within GitHub's rate limits.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Fetch and link for the configured repository
  archintel discussions

  # Explicit repository
  archintel discussions --repo acme/payments

  # Recompute links after re-indexing, without hitting the network
  archintel discussions --relink-only

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

	st := openStore(cfg, configPath)
	defer func() { _ = st.Close() }()

	ctx := context.Background()

	if !*relinkOnly {
		repoName := *repo
		if repoName == "" {
			repoName = cfg.GitHub.Repo
		}
		if repoName == "" {
			errors.FatalError(errors.NewConfigError(
				"No GitHub repository configured",
				"The discussions command needs to know which repository to fetch",
				"Set github.repo in .archintel/project.yaml or pass --repo owner/name",
				nil,
			), globals.JSON)
		}

		client := discussions.NewGitHubClient(repoName, cfg.GitHub.Token, logger)
		fetched, err := client.FetchDiscussions(ctx)
		if err != nil {
			errors.FatalError(errors.NewNetworkError(
				"Cannot fetch discussions from GitHub",
				err.Error(),
				"Check the repository name, your network, and ARCHINTEL_GITHUB_TOKEN",
				err,
			), globals.JSON)
		}

		ingestor := discussions.NewIngestor(st, logger)
		ingested, err := ingestor.Ingest(ctx, fetched)
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}

		ui.Header("Discussions Fetched")
		fmt.Printf("%s %s\n", ui.Label("Repository:"), repoName)
		fmt.Printf("Fetched: %s\n", ui.CountText(len(fetched)))
		fmt.Printf("Stored: %s ", ui.CountText(ingested.Stored))
		_, _ = ui.Dim.Printf("(%d unchanged)\n", ingested.Unchanged)
		if len(ingested.Summary.Skipped) > 0 {
			ui.Warningf("Skipped %d malformed items", len(ingested.Summary.Skipped))
		}
	}

	linker := discussions.NewLinker(st, logger)
	linked, err := linker.Relink(ctx)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	ui.Header("Links Computed")
	fmt.Printf("Discussions: %s\n", ui.CountText(linked.Discussions))
	fmt.Printf("Links: %s\n", ui.CountText(linked.Links))
	for _, basis := range []model.LinkBasis{model.BasisExplicitReference, model.BasisCommitMessage, model.BasisKeyword} {
		if n := linked.ByBasis[basis]; n > 0 {
			fmt.Printf("  %s: %s\n", basis, ui.CountText(n))
		}
	}
}
