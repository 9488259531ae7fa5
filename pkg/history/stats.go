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
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// AuthorStat aggregates one author's activity, keyed by normalized email.
type AuthorStat struct {
	Author      string // normalized email
	DisplayName string // most recent display name seen
	Commits     int
	Additions   int
	Deletions   int
	FirstCommit time.Time
	LastCommit  time.Time
}

// AuthorStats aggregates commit activity per author over stored history.
// When path is non-empty, only commits touching that path count. Results
// are ordered by commit count descending, ties by author ascending.
func AuthorStats(ctx context.Context, st store.Store, path string) ([]AuthorStat, error) {
	commits, err := st.Commits(ctx)
	if err != nil {
		return nil, err
	}

	byAuthor := make(map[string]*AuthorStat)
	for _, c := range commits {
		touched := path == ""
		var additions, deletions int
		for _, f := range c.Files {
			if path == "" || f.Path == path || f.OldPath == path {
				additions += f.Additions
				deletions += f.Deletions
				if f.Path == path || f.OldPath == path {
					touched = true
				}
			}
		}
		if !touched {
			continue
		}

		stat, ok := byAuthor[c.Author]
		if !ok {
			stat = &AuthorStat{Author: c.Author, FirstCommit: c.Timestamp}
			byAuthor[c.Author] = stat
		}
		stat.Commits++
		stat.Additions += additions
		stat.Deletions += deletions
		if c.Timestamp.Before(stat.FirstCommit) {
			stat.FirstCommit = c.Timestamp
		}
		if !c.Timestamp.Before(stat.LastCommit) {
			stat.LastCommit = c.Timestamp
			stat.DisplayName = c.DisplayName
		}
	}

	stats := make([]AuthorStat, 0, len(byAuthor))
	for _, s := range byAuthor {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Commits != stats[j].Commits {
			return stats[i].Commits > stats[j].Commits
		}
		return stats[i].Author < stats[j].Author
	})
	return stats, nil
}

// CommitDiff returns the patch text of one commit. The commit must already
// be mined; failures to produce the diff surface as HistoryAccessError.
func CommitDiff(ctx context.Context, git GitRunner, st store.Store, hash string) (*model.CommitRecord, string, error) {
	commit, ok, err := st.Commit(ctx, hash)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", &model.HistoryAccessError{Hash: hash, Err: errUnknownCommit}
	}

	patch, err := git.Run(ctx, "show", "--patch", "--format=", hash)
	if err != nil {
		return &commit, "", &model.HistoryAccessError{Hash: hash, Err: err}
	}
	return &commit, strings.TrimSpace(patch), nil
}

var errUnknownCommit = errNotMined("commit not mined")

type errNotMined string

func (e errNotMined) Error() string { return string(e) }
