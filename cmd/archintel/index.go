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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/archintel/internal/errors"
	"github.com/kraklabs/archintel/internal/ui"
	"github.com/kraklabs/archintel/pkg/graph"
	"github.com/kraklabs/archintel/pkg/history"
	"github.com/kraklabs/archintel/pkg/ingestion"
	"github.com/kraklabs/archintel/pkg/store"
)

// runIndex executes the 'index' CLI command, building the dependency graph
// for the whole repository.
//
// Flags:
//   - --parse-workers: Number of parallel parser workers (default: from config)
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//
// Examples:
//
//	archintel index                       Index the repository
//	archintel index --parse-workers 8     Use 8 parallel parser workers
//	archintel index --metrics-addr :9090  Expose pipeline metrics
func runIndex(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	parseWorkers := fs.Int("parse-workers", 0, "Number of parallel parser workers (0 = from config)")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: archintel index [options]

Description:
  Index the current repository: parse every eligible source file with
  Tree-sitter, extract modules, classes, functions, and methods, resolve
  call/import/inherit references into a dependency graph, and persist the
  result in the local store.

  Indexing always covers the whole repository; files are replaced
  atomically, so an interrupted run leaves previously indexed files
  intact. Use 'archintel update' afterwards for cheap incremental
  re-indexing of changed files.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Index the repository
  archintel index

  # More parser parallelism on large repositories
  archintel index --parse-workers 8

  # Expose Prometheus pipeline metrics while indexing
  archintel index --metrics-addr :9090

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

	// Optional Prometheus metrics endpoint
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	st := openStore(cfg, configPath)
	defer func() { _ = st.Close() }()

	loader := ingestion.NewLoader(root, cfg.Indexing.Exclude, logger)
	if cfg.Indexing.MaxFileSize > 0 {
		loader.MaxFileSize = cfg.Indexing.MaxFileSize
	}

	builder := graph.NewBuilder(st, loader, logger)
	if *parseWorkers > 0 {
		builder.ParseWorkers = *parseWorkers
	} else if cfg.Indexing.ParseWorkers > 0 {
		builder.ParseWorkers = cfg.Indexing.ParseWorkers
	}

	var bar *progressbar.ProgressBar
	builder.Progress = func(done, total int64, stage string) {
		if bar == nil {
			bar = newProgressBar(globals, total, "Parsing files")
		}
		_ = bar.Set64(done)
	}

	start := time.Now()
	result, err := builder.Build(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Indexing failed",
			"An error occurred while building the dependency graph",
			"Check the error details above and re-run 'archintel index'",
			err,
		), globals.JSON)
	}

	// Remember which commit the graph reflects so 'archintel update' can
	// compute the changed-file delta. Best effort: not every indexed tree
	// is a git repository.
	if git, gerr := history.NewGitExecutor(root); gerr == nil {
		if head, herr := history.Head(ctx, git); herr == nil {
			_ = st.SetMeta(ctx, store.MetaLastIndexedHash, head)
		}
	}

	printIndexResult(cfg.ProjectID, result, time.Since(start))
}

// printIndexResult prints the build summary to stdout.
func printIndexResult(projectID string, result *graph.Result, elapsed time.Duration) {
	ui.Header("Indexing Complete")
	fmt.Printf("%s %s\n", ui.Label("Project ID:"), projectID)
	fmt.Printf("Files Indexed: %s\n", ui.CountText(result.Files))
	fmt.Printf("Entities: %s\n", ui.CountText(result.Entities))
	fmt.Printf("Edges: %s ", ui.CountText(result.Edges))
	if result.External > 0 {
		_, _ = ui.Dim.Printf("(%d external)\n", result.External)
	} else {
		fmt.Println()
	}

	if len(result.Summary.Skipped) > 0 {
		fmt.Println()
		ui.SubHeader("Degraded Files:")
		for _, e := range result.Summary.Skipped {
			fmt.Printf("  %s: %s\n", e.Item, ui.DimText(e.Reason))
		}
	}

	fmt.Println()
	fmt.Printf("Elapsed: %s\n", ui.DimText(elapsed.Round(time.Millisecond).String()))
}
