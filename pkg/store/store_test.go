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

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/archintel/pkg/model"
)

// forEachStore runs the same contract test against both implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		st := NewMemoryStore()
		defer func() { _ = st.Close() }()
		fn(t, st)
	})

	t.Run("sqlite", func(t *testing.T) {
		st, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		defer func() { _ = st.Close() }()
		fn(t, st)
	})
}

func testEntity(path, qualifiedName string, kind model.EntityKind, line int) model.Entity {
	return model.Entity{
		ID:            model.EntityID(path, qualifiedName),
		Kind:          kind,
		Path:          path,
		Name:          qualifiedName,
		QualifiedName: qualifiedName,
		StartLine:     line,
		EndLine:       line + 5,
		StartCol:      1,
		EndCol:        1,
	}
}

func TestStore_ReplaceFileData(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		login := testEntity("app/auth.py", "login", model.KindFunction, 10)
		logout := testEntity("app/auth.py", "logout", model.KindFunction, 30)
		edge := model.Edge{
			Kind:       model.EdgeCalls,
			SourceID:   login.ID,
			TargetID:   model.ExternalTarget("verify"),
			TargetName: "verify",
			Line:       12,
		}
		require.NoError(t, st.ReplaceFileData(ctx, "app/auth.py", []model.Entity{login, logout}, []model.Edge{edge}))

		got, ok, err := st.Entity(ctx, login.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, login, got)

		byPath, err := st.EntitiesByPath(ctx, "app/auth.py")
		require.NoError(t, err)
		require.Len(t, byPath, 2)
		assert.Equal(t, "login", byPath[0].Name, "declaration order preserved")
		assert.Equal(t, "logout", byPath[1].Name)

		// Replacing the file drops the old entities and edges together.
		refresh := testEntity("app/auth.py", "login_v2", model.KindFunction, 10)
		require.NoError(t, st.ReplaceFileData(ctx, "app/auth.py", []model.Entity{refresh}, nil))

		_, ok, err = st.Entity(ctx, login.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		edges, err := st.Edges(ctx)
		require.NoError(t, err)
		assert.Empty(t, edges)

		// Empty slices remove the file entirely.
		require.NoError(t, st.ReplaceFileData(ctx, "app/auth.py", nil, nil))
		byPath, err = st.EntitiesByPath(ctx, "app/auth.py")
		require.NoError(t, err)
		assert.Empty(t, byPath)
	})
}

func TestStore_ReplaceFileDataDuplicateIDLastWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		first := testEntity("app/dup.py", "fetch", model.KindFunction, 1)
		second := testEntity("app/dup.py", "fetch", model.KindFunction, 5)
		require.NoError(t, st.ReplaceFileData(ctx, "app/dup.py", []model.Entity{first, second}, nil),
			"a batch carrying the same ID twice must not fail")

		byPath, err := st.EntitiesByPath(ctx, "app/dup.py")
		require.NoError(t, err)
		require.Len(t, byPath, 1)
		assert.Equal(t, 5, byPath[0].StartLine, "the later definition wins")
	})
}

func TestStore_EdgeQueries(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		a := testEntity("a.py", "a", model.KindFunction, 1)
		b := testEntity("b.py", "b", model.KindFunction, 1)
		require.NoError(t, st.ReplaceFileData(ctx, "a.py", []model.Entity{a}, []model.Edge{
			{Kind: model.EdgeCalls, SourceID: a.ID, TargetID: b.ID, TargetName: "b", Line: 3},
		}))
		require.NoError(t, st.ReplaceFileData(ctx, "b.py", []model.Entity{b}, []model.Edge{
			{Kind: model.EdgeCalls, SourceID: b.ID, TargetID: model.ExternalTarget("json.loads"), TargetName: "json.loads", Line: 7},
		}))

		from, err := st.EdgesFrom(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, from, 1)
		assert.Equal(t, b.ID, from[0].TargetID)

		to, err := st.EdgesTo(ctx, b.ID)
		require.NoError(t, err)
		require.Len(t, to, 1)
		assert.Equal(t, a.ID, to[0].SourceID)

		all, err := st.Edges(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestStore_RetargetEdges(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		a := testEntity("a.py", "a", model.KindFunction, 1)
		require.NoError(t, st.ReplaceFileData(ctx, "a.py", []model.Entity{a}, []model.Edge{
			{Kind: model.EdgeCalls, SourceID: a.ID, TargetID: model.ExternalTarget("helper"), TargetName: "helper", Line: 3},
		}))

		resolved := model.EntityID("b.py", "helper")
		require.NoError(t, st.RetargetEdges(ctx, []model.Edge{
			{Kind: model.EdgeCalls, SourceID: a.ID, TargetID: resolved, TargetName: "helper", Line: 3},
		}))

		from, err := st.EdgesFrom(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, from, 1)
		assert.Equal(t, resolved, from[0].TargetID)
		assert.False(t, from[0].External())
	})
}

func TestStore_CommitsAppendAndQuery(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		c1 := model.CommitRecord{
			Hash: "aaaa111", Author: "ana@example.com", DisplayName: "Ana",
			Timestamp: t0, Message: "add auth module",
			Files: []model.FileChange{
				{CommitHash: "aaaa111", Path: "app/auth.py", Type: model.ChangeAdded, Additions: 120},
			},
		}
		c2 := model.CommitRecord{
			Hash: "bbbb222", Author: "bob@example.com", DisplayName: "Bob",
			Timestamp: t0.Add(time.Hour), Message: "fix token refresh",
			Files: []model.FileChange{
				{CommitHash: "bbbb222", Path: "app/auth.py", Type: model.ChangeModified, Additions: 4, Deletions: 2},
				{CommitHash: "bbbb222", Path: "app/session.py", Type: model.ChangeModified, Additions: 1, Deletions: 1},
			},
		}
		require.NoError(t, st.AppendCommits(ctx, []model.CommitRecord{c1, c2}))

		// Re-appending an existing hash is a no-op.
		require.NoError(t, st.AppendCommits(ctx, []model.CommitRecord{c1}))

		all, err := st.Commits(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "aaaa111", all[0].Hash, "oldest first")
		assert.Equal(t, "bbbb222", all[1].Hash)
		assert.True(t, all[0].Timestamp.Equal(t0))

		got, ok, err := st.Commit(ctx, "bbbb222")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "fix token refresh", got.Message)
		assert.Len(t, got.Files, 2)

		_, ok, err = st.Commit(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)

		forAuth, err := st.CommitsForFile(ctx, "app/auth.py", 0)
		require.NoError(t, err)
		require.Len(t, forAuth, 2)
		assert.Equal(t, "bbbb222", forAuth[0].Hash, "newest first")

		capped, err := st.CommitsForFile(ctx, "app/auth.py", 1)
		require.NoError(t, err)
		require.Len(t, capped, 1)
		assert.Equal(t, "bbbb222", capped[0].Hash)
	})
}

func TestStore_DiscussionUpsert(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		old := model.Discussion{
			Source: model.SourceGitHubIssue, ExternalID: "42",
			Title: "Login loops forever", Author: "ana",
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		changed, err := st.UpsertDiscussion(ctx, old)
		require.NoError(t, err)
		assert.True(t, changed)

		// Same key, not newer: stored copy stays.
		stale := old
		stale.Title = "stale edit"
		changed, err = st.UpsertDiscussion(ctx, stale)
		require.NoError(t, err)
		assert.False(t, changed)

		got, ok, err := st.Discussion(ctx, model.SourceGitHubIssue, "42")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Login loops forever", got.Title)

		// Newer copy wins.
		newer := old
		newer.Title = "Login loops forever (still)"
		newer.CreatedAt = old.CreatedAt.Add(time.Hour)
		changed, err = st.UpsertDiscussion(ctx, newer)
		require.NoError(t, err)
		assert.True(t, changed)

		all, err := st.Discussions(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Login loops forever (still)", all[0].Title)
	})
}

func TestStore_LinksReplaceAtomically(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		require.NoError(t, st.ReplaceLinks(ctx, model.SourceGitHubPR, "7", []model.DiscussionLink{
			{Source: model.SourceGitHubPR, ExternalID: "7", TargetKind: model.TargetFile, Target: "app/auth.py", Basis: model.BasisExplicitReference},
			{Source: model.SourceGitHubPR, ExternalID: "7", TargetKind: model.TargetCommit, Target: "aaaa111", Basis: model.BasisCommitMessage},
		}))

		links, err := st.LinksForDiscussion(ctx, model.SourceGitHubPR, "7")
		require.NoError(t, err)
		assert.Len(t, links, 2)

		byTarget, err := st.LinksForTarget(ctx, model.TargetFile, "app/auth.py")
		require.NoError(t, err)
		require.Len(t, byTarget, 1)
		assert.Equal(t, model.BasisExplicitReference, byTarget[0].Basis)

		// Replacement drops links that are no longer computed.
		require.NoError(t, st.ReplaceLinks(ctx, model.SourceGitHubPR, "7", []model.DiscussionLink{
			{Source: model.SourceGitHubPR, ExternalID: "7", TargetKind: model.TargetCommit, Target: "aaaa111", Basis: model.BasisCommitMessage},
		}))
		byTarget, err = st.LinksForTarget(ctx, model.TargetFile, "app/auth.py")
		require.NoError(t, err)
		assert.Empty(t, byTarget)
	})
}

func TestStore_Meta(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		v, err := st.GetMeta(ctx, MetaLastMinedHash)
		require.NoError(t, err)
		assert.Empty(t, v, "unset key reads as empty")

		require.NoError(t, st.SetMeta(ctx, MetaLastMinedHash, "aaaa111"))
		require.NoError(t, st.SetMeta(ctx, MetaLastMinedHash, "bbbb222"))

		v, err = st.GetMeta(ctx, MetaLastMinedHash)
		require.NoError(t, err)
		assert.Equal(t, "bbbb222", v)
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	st, err := OpenSQLite(path)
	require.NoError(t, err)
	e := testEntity("a.py", "a", model.KindFunction, 1)
	require.NoError(t, st.ReplaceFileData(ctx, "a.py", []model.Entity{e}, nil))
	require.NoError(t, st.SetMeta(ctx, MetaLastIndexedHash, "cafe123"))
	require.NoError(t, st.Close())

	st, err = OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	got, ok, err := st.Entity(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e, got)

	v, err := st.GetMeta(ctx, MetaLastIndexedHash)
	require.NoError(t, err)
	assert.Equal(t, "cafe123", v)
}
