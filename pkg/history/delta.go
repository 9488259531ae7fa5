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

package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/archintel/pkg/model"
)

// Head returns the current HEAD commit hash.
func Head(ctx context.Context, git GitRunner) (string, error) {
	out, err := git.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", &model.HistoryAccessError{Hash: "HEAD", Err: err}
	}
	return strings.TrimSpace(out), nil
}

// ChangedFiles lists the files changed between two commits using
// `git diff --name-status -M`. Renames carry both paths.
func ChangedFiles(ctx context.Context, git GitRunner, fromHash, toHash string) ([]model.FileChange, error) {
	out, err := git.Run(ctx, "diff", "--name-status", "-M", fromHash, toHash)
	if err != nil {
		return nil, &model.HistoryAccessError{Hash: fromHash, Err: err}
	}

	var changes []model.FileChange
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			return nil, &model.HistoryAccessError{Hash: fromHash, Err: fmt.Errorf("malformed name-status line: %q", line)}
		}

		status := cols[0]
		switch {
		case status == "A":
			changes = append(changes, model.FileChange{Path: cols[1], Type: model.ChangeAdded})
		case status == "M":
			changes = append(changes, model.FileChange{Path: cols[1], Type: model.ChangeModified})
		case status == "D":
			changes = append(changes, model.FileChange{Path: cols[1], Type: model.ChangeDeleted})
		case strings.HasPrefix(status, "R") && len(cols) >= 3:
			changes = append(changes, model.FileChange{Path: cols[2], OldPath: cols[1], Type: model.ChangeRenamed})
		case strings.HasPrefix(status, "C") && len(cols) >= 3:
			changes = append(changes, model.FileChange{Path: cols[2], Type: model.ChangeAdded})
		default:
			// Type changes (T) and unmerged (U) reduce to modified.
			changes = append(changes, model.FileChange{Path: cols[len(cols)-1], Type: model.ChangeModified})
		}
	}
	return changes, nil
}
