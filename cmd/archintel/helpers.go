// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/archintel/internal/errors"
	"github.com/kraklabs/archintel/pkg/answer"
	"github.com/kraklabs/archintel/pkg/store"
)

// newLogger builds the slog logger for a command run. Verbosity maps to
// level: quiet=warn, default=info only with -v, debug with -vv.
func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose == 1:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// openStore opens the SQLite store at the configured location.
func openStore(cfg *Config, configPath string) *store.SQLiteStore {
	path, err := storePath(cfg, configPath)
	if err != nil {
		errors.FatalError(err, false)
	}
	st, err := store.OpenSQLite(path)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot open archintel store",
			"The database file may be corrupted, locked by another process, or permission denied",
			"Close other archintel instances, or delete "+path+" and re-run 'archintel index'",
			err,
		), false)
	}
	return st
}

// newGenerator builds the configured generation backend, wrapped in the
// circuit breaker. Provider "none" (or unset) returns nil for
// extractive-only mode; an unknown provider is a configuration error.
func newGenerator(cfg *Config) (answer.Generator, error) {
	switch cfg.Generator.Provider {
	case "openai":
		gen := answer.NewOpenAIGenerator(answer.OpenAIConfig{
			BaseURL: cfg.Generator.BaseURL,
			APIKey:  cfg.Generator.APIKey,
			Model:   cfg.Generator.Model,
		})
		return answer.NewBreakerGenerator(gen), nil
	case "mock":
		return answer.NewBreakerGenerator(&answer.MockGenerator{}), nil
	case "none", "":
		return nil, nil
	default:
		return nil, errors.NewConfigError(
			fmt.Sprintf("Unknown generator provider %q", cfg.Generator.Provider),
			"generator.provider must be one of: openai, mock, none",
			"Fix generator.provider in .archintel/project.yaml or the --generator flag",
			nil,
		)
	}
}

// newProgressBar creates a progress bar for long pipeline stages, or a
// silent one in quiet mode.
func newProgressBar(globals GlobalFlags, total int64, description string) *progressbar.ProgressBar {
	if globals.Quiet {
		return progressbar.DefaultSilent(total, description)
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer: "=", SaucerHead: ">", SaucerPadding: " ",
			BarStart: "[", BarEnd: "]",
		}),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
