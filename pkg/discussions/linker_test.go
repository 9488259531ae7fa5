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

package discussions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

func seedEntity(t *testing.T, st store.Store, path, name string) model.Entity {
	t.Helper()
	e := model.Entity{
		ID:            model.EntityID(path, name),
		Kind:          model.KindFunction,
		Path:          path,
		Name:          name,
		QualifiedName: name,
	}
	require.NoError(t, st.ReplaceFileData(context.Background(), path, []model.Entity{e}, nil))
	return e
}

func seedCommit(t *testing.T, st store.Store, hash, message string, paths ...string) {
	t.Helper()
	c := model.CommitRecord{
		Hash:      hash,
		Author:    "ana@example.com",
		Timestamp: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Message:   message,
	}
	for _, p := range paths {
		c.Files = append(c.Files, model.FileChange{CommitHash: hash, Path: p, Type: model.ChangeModified})
	}
	require.NoError(t, st.AppendCommits(context.Background(), []model.CommitRecord{c}))
}

func seedDiscussion(t *testing.T, st store.Store, source model.DiscussionSource, id, title, body string) model.Discussion {
	t.Helper()
	d := model.Discussion{
		Source:     source,
		ExternalID: id,
		Title:      title,
		Body:       body,
		Author:     "ana",
		CreatedAt:  time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
	}
	_, err := st.UpsertDiscussion(context.Background(), d)
	require.NoError(t, err)
	return d
}

func linksByBasis(links []model.DiscussionLink, basis model.LinkBasis) []model.DiscussionLink {
	var out []model.DiscussionLink
	for _, l := range links {
		if l.Basis == basis {
			out = append(out, l)
		}
	}
	return out
}

func TestLinker_CommitMessageReferenceLinksTransitively(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	seedCommit(t, st, "deadbeefcafe1234deadbeefcafe1234deadbeef", "fix token expiry\n\nfixes #42", "app/auth.py")
	seedDiscussion(t, st, model.SourceGitHubIssue, "42", "Token expiry broken", "Sessions die too early.")

	linker := NewLinker(st, nil)
	res, err := linker.Relink(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Discussions)

	links, err := st.LinksForDiscussion(ctx, model.SourceGitHubIssue, "42")
	require.NoError(t, err)

	commitLinks := linksByBasis(links, model.BasisCommitMessage)
	require.Len(t, commitLinks, 2)

	var kinds []model.LinkTargetKind
	var targets []string
	for _, l := range commitLinks {
		kinds = append(kinds, l.TargetKind)
		targets = append(targets, l.Target)
	}
	assert.Contains(t, kinds, model.TargetCommit)
	assert.Contains(t, targets, "deadbeefcafe1234deadbeefcafe1234deadbeef")
	assert.Contains(t, kinds, model.TargetFile, "commit files link transitively")
	assert.Contains(t, targets, "app/auth.py")
}

func TestLinker_ExplicitReferencesOutrankKeyword(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	seedEntity(t, st, "app/auth.py", "authenticate_user")
	seedCommit(t, st, "deadbeefcafe1234deadbeefcafe1234deadbeef", "initial", "app/auth.py")
	seedDiscussion(t, st, model.SourceGitHubPR, "7",
		"Refactor authenticate_user",
		"See app/auth.py and commit deadbeefcafe for background.")

	linker := NewLinker(st, nil)
	_, err := linker.Relink(ctx)
	require.NoError(t, err)

	links, err := st.LinksForDiscussion(ctx, model.SourceGitHubPR, "7")
	require.NoError(t, err)

	explicit := linksByBasis(links, model.BasisExplicitReference)
	require.NotEmpty(t, explicit)

	var targets []string
	for _, l := range explicit {
		targets = append(targets, l.Target)
	}
	assert.Contains(t, targets, "app/auth.py", "file path named in body")
	assert.Contains(t, targets, "deadbeefcafe1234deadbeefcafe1234deadbeef", "abbreviated hash resolves")

	assert.Empty(t, linksByBasis(links, model.BasisKeyword), "keyword fallback suppressed by stronger bases")
}

func TestLinker_KeywordFallback(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	target := seedEntity(t, st, "app/auth.py", "authenticate_user")
	seedDiscussion(t, st, model.SourceGitHubIssue, "9", "authenticate_user hangs", "No stack trace available.")

	linker := NewLinker(st, nil)
	_, err := linker.Relink(ctx)
	require.NoError(t, err)

	links, err := st.LinksForDiscussion(ctx, model.SourceGitHubIssue, "9")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.BasisKeyword, links[0].Basis)
	assert.Equal(t, model.TargetEntity, links[0].TargetKind)
	assert.Equal(t, target.ID, links[0].Target)
}

func TestLinker_KeywordFallbackScansBody(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	target := seedEntity(t, st, "app/auth.py", "authenticate_user")
	// The title alone carries nothing linkable; the mention is buried in
	// the body.
	seedDiscussion(t, st, model.SourceGitHubIssue, "11", "Login is broken",
		"Bisected to authenticate_user returning early.")

	linker := NewLinker(st, nil)
	_, err := linker.Relink(ctx)
	require.NoError(t, err)

	links, err := st.LinksForDiscussion(ctx, model.SourceGitHubIssue, "11")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.BasisKeyword, links[0].Basis)
	assert.Equal(t, target.ID, links[0].Target)
}

func TestLinker_KeywordFallbackMatchesFileBasenames(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	seedEntity(t, st, "app/sessions.py", "expire")
	seedDiscussion(t, st, model.SourceGitHubIssue, "12", "Something off in sessions handling",
		"Repro steps attached.")

	linker := NewLinker(st, nil)
	_, err := linker.Relink(ctx)
	require.NoError(t, err)

	links, err := st.LinksForDiscussion(ctx, model.SourceGitHubIssue, "12")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.BasisKeyword, links[0].Basis)
	assert.Equal(t, model.TargetFile, links[0].TargetKind)
	assert.Equal(t, "app/sessions.py", links[0].Target)
}

func TestLinker_RelinkIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	seedCommit(t, st, "deadbeefcafe1234deadbeefcafe1234deadbeef", "fixes #42", "app/auth.py")
	seedDiscussion(t, st, model.SourceGitHubIssue, "42", "Bug", "")

	linker := NewLinker(st, nil)
	_, err := linker.Relink(ctx)
	require.NoError(t, err)
	first, err := st.LinksForDiscussion(ctx, model.SourceGitHubIssue, "42")
	require.NoError(t, err)

	_, err = linker.Relink(ctx)
	require.NoError(t, err)
	second, err := st.LinksForDiscussion(ctx, model.SourceGitHubIssue, "42")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIngestor_DedupeAndNewerWins(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	ingestor := NewIngestor(st, nil)

	older := model.Discussion{
		Source:     model.SourceGitHubIssue,
		ExternalID: "1",
		Title:      "old title",
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := older
	newer.Title = "new title"
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	res, err := ingestor.Ingest(ctx, []model.Discussion{older, newer, {Source: "", ExternalID: ""}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Len(t, res.Summary.Skipped, 1, "item without identity is skipped, not fatal")

	d, ok, err := st.Discussion(ctx, model.SourceGitHubIssue, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new title", d.Title)

	// Re-ingesting changes nothing.
	res, err = ingestor.Ingest(ctx, []model.Discussion{newer})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stored)
	assert.Equal(t, 1, res.Unchanged)
}
