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
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// log record layout: unit separators between fields, record separator
// before each commit, so multi-line messages parse unambiguously.
const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"
	logFormat = "%x1e%H%x1f%ae%x1f%an%x1f%aI%x1f%B%x1f"
)

// Miner walks git history oldest-first and appends commit records to the
// store. Mining is resumable: the newest mined hash is checkpointed after
// every batch, and a later run continues from there.
type Miner struct {
	git    GitRunner
	store  store.Store
	logger *slog.Logger

	// BatchSize bounds commits per store append. Zero means 500.
	BatchSize int
}

// NewMiner creates a miner over a git runner and store.
func NewMiner(git GitRunner, st store.Store, logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{git: git, store: st, logger: logger, BatchSize: 500}
}

// MineResult summarizes one mining run.
type MineResult struct {
	Mined    int
	LastHash string
	Summary  model.BatchSummary
}

// Mine ingests commits newer than the checkpoint, oldest-first. A commit
// whose metadata cannot be parsed is skipped and reported; a commit whose
// diff stats are malformed is recorded with DiffUnavailable set. Only a
// store failure aborts the run.
func (m *Miner) Mine(ctx context.Context) (*MineResult, error) {
	last, err := m.store.GetMeta(ctx, store.MetaLastMinedHash)
	if err != nil {
		return nil, err
	}

	args := []string{"log", "--reverse", "--numstat", "--summary", "--date-order", "--pretty=format:" + logFormat}
	if last != "" {
		args = append(args, last+"..HEAD")
	}
	m.logger.Info("history.mine.start", "since", last)

	output, err := m.git.Run(ctx, args...)
	if err != nil {
		// An unknown checkpoint hash means history was rewritten; surface
		// it rather than silently re-mining.
		return nil, &model.HistoryAccessError{Hash: last, Err: err}
	}

	records := strings.Split(output, recordSep)
	res := &MineResult{}
	batchSize := m.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	var batch []model.CommitRecord
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := m.store.AppendCommits(ctx, batch); err != nil {
			return err
		}
		newest := batch[len(batch)-1].Hash
		if err := m.store.SetMeta(ctx, store.MetaLastMinedHash, newest); err != nil {
			return err
		}
		res.LastHash = newest
		batch = batch[:0]
		return nil
	}

	for _, record := range records {
		if strings.TrimSpace(record) == "" {
			continue
		}
		select {
		case <-ctx.Done():
			if err := flush(); err != nil {
				return nil, err
			}
			return res, ctx.Err()
		default:
		}

		commit, err := parseLogRecord(record)
		if err != nil {
			m.logger.Warn("history.mine.skip_commit", "err", err)
			res.Summary.Add(firstLine(record), err.Error())
			continue
		}

		batch = append(batch, *commit)
		res.Mined++
		res.Summary.Succeeded++

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	m.logger.Info("history.mine.done", "mined", res.Mined, "summary", res.Summary.String())
	return res, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

// parseLogRecord parses one commit record: five unit-separated fields
// followed by numstat and summary lines.
func parseLogRecord(record string) (*model.CommitRecord, error) {
	parts := strings.Split(record, fieldSep)
	if len(parts) < 6 {
		return nil, fmt.Errorf("malformed log record: %d fields", len(parts))
	}
	hash := strings.TrimSpace(parts[0])
	if hash == "" {
		return nil, fmt.Errorf("empty commit hash")
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[3]))
	if err != nil {
		return nil, fmt.Errorf("commit %s: bad timestamp: %w", hash, err)
	}

	commit := &model.CommitRecord{
		Hash:        hash,
		Author:      NormalizeAuthor(parts[1]),
		DisplayName: strings.TrimSpace(parts[2]),
		Timestamp:   ts.UTC(),
		Message:     strings.TrimSpace(parts[4]),
	}

	files, ok := parseStatBlock(hash, parts[5])
	if !ok {
		commit.DiffUnavailable = true
		return commit, nil
	}
	commit.Files = files
	return commit, nil
}

// NormalizeAuthor maps an author email to its canonical identity form:
// trimmed and lower-cased.
func NormalizeAuthor(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// parseStatBlock parses the numstat and summary lines trailing a commit
// header. Returns ok=false when a line is unparseable, in which case the
// commit is recorded without file changes.
func parseStatBlock(hash, block string) ([]model.FileChange, bool) {
	var files []model.FileChange
	index := make(map[string]int)

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// Summary lines refine the change type afterwards.
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "create mode ") ||
			strings.HasPrefix(trimmed, "delete mode ") ||
			strings.HasPrefix(trimmed, "rename ") ||
			strings.HasPrefix(trimmed, "copy ") ||
			strings.HasPrefix(trimmed, "mode change ") {
			applySummaryLine(trimmed, files, index)
			continue
		}

		cols := strings.SplitN(line, "\t", 3)
		if len(cols) != 3 {
			return nil, false
		}

		fc := model.FileChange{CommitHash: hash, Type: model.ChangeModified}

		// Binary files report "-" for both counters.
		if cols[0] != "-" {
			n, err := strconv.Atoi(cols[0])
			if err != nil {
				return nil, false
			}
			fc.Additions = n
		}
		if cols[1] != "-" {
			n, err := strconv.Atoi(cols[1])
			if err != nil {
				return nil, false
			}
			fc.Deletions = n
		}

		oldPath, newPath := splitRenamePath(cols[2])
		fc.Path = newPath
		if oldPath != "" {
			fc.OldPath = oldPath
			fc.Type = model.ChangeRenamed
		}

		index[fc.Path] = len(files)
		files = append(files, fc)
	}
	return files, true
}

// applySummaryLine upgrades modified entries to added/deleted using the
// --summary block.
func applySummaryLine(line string, files []model.FileChange, index map[string]int) {
	switch {
	case strings.HasPrefix(line, "create mode "):
		if path := pathAfterMode(line); path != "" {
			if i, ok := index[path]; ok {
				files[i].Type = model.ChangeAdded
			}
		}
	case strings.HasPrefix(line, "delete mode "):
		if path := pathAfterMode(line); path != "" {
			if i, ok := index[path]; ok {
				files[i].Type = model.ChangeDeleted
			}
		}
	}
}

// pathAfterMode extracts the path from "create mode 100644 path/to/file".
func pathAfterMode(line string) string {
	parts := strings.SplitN(line, " ", 4)
	if len(parts) != 4 {
		return ""
	}
	return parts[3]
}

// splitRenamePath handles numstat rename notations: "old => new" and the
// brace form "dir/{old => new}/file". Returns ("", path) for plain paths.
func splitRenamePath(path string) (oldPath, newPath string) {
	if open := strings.IndexByte(path, '{'); open >= 0 {
		if close := strings.IndexByte(path, '}'); close > open {
			inner := path[open+1 : close]
			if arrow := strings.Index(inner, " => "); arrow >= 0 {
				prefix := path[:open]
				suffix := path[close+1:]
				oldPath = cleanJoined(prefix + inner[:arrow] + suffix)
				newPath = cleanJoined(prefix + inner[arrow+4:] + suffix)
				return oldPath, newPath
			}
		}
	}
	if arrow := strings.Index(path, " => "); arrow >= 0 {
		return path[:arrow], path[arrow+4:]
	}
	return "", path
}

// cleanJoined collapses the "//" left behind when a brace segment is empty.
func cleanJoined(path string) string {
	return strings.ReplaceAll(path, "//", "/")
}
