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

// Package history mines Git commit history into immutable commit records:
// who changed what, when, and how much, resumable across runs.
package history

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitRunner runs git subcommands against one repository. The miner and the
// delta helpers take this interface so tests can feed them canned output.
type GitRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
	RepoPath() string
}

// GitExecutor shells out to the git binary, rooted at the repository
// toplevel.
type GitExecutor struct {
	repoPath string
}

// NewGitExecutor locates the repository containing startPath via
// `git rev-parse --show-toplevel` and roots every later command there.
func NewGitExecutor(startPath string) (*GitExecutor, error) {
	if startPath == "" {
		return nil, fmt.Errorf("empty start path")
	}
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", startPath, err)
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = abs
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s is not inside a git repository: %s",
				startPath, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("run git: %w", err)
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return nil, fmt.Errorf("git reported no repository root for %s", startPath)
	}
	return &GitExecutor{repoPath: root}, nil
}

// RepoPath returns the repository root every command runs in.
func (g *GitExecutor) RepoPath() string { return g.repoPath }

// Run executes one git subcommand and returns its stdout. Stderr is folded
// into the error on failure; cancelling the context kills the process.
func (g *GitExecutor) Run(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("missing git subcommand")
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoPath
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("git %s: %w", args[0], ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
				return "", fmt.Errorf("git %s: %s", args[0], msg)
			}
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}
