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

package answer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/archintel/pkg/assemble"
	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

func seedStore(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()

	auth := model.Entity{
		ID:            model.EntityID("app/auth.py", "authenticate_user"),
		Kind:          model.KindFunction,
		Path:          "app/auth.py",
		Name:          "authenticate_user",
		QualifiedName: "authenticate_user",
		Signature:     "def authenticate_user(name, password)",
		Docstring:     "Check credentials and return a session.",
		StartLine:     10,
		EndLine:       30,
	}
	helper := model.Entity{
		ID:            model.EntityID("app/auth.py", "hash_password"),
		Kind:          model.KindFunction,
		Path:          "app/auth.py",
		Name:          "hash_password",
		QualifiedName: "hash_password",
		Signature:     "def hash_password(raw)",
	}
	edge := model.Edge{
		Kind:       model.EdgeCalls,
		SourceID:   auth.ID,
		TargetID:   helper.ID,
		TargetName: "hash_password",
		Line:       15,
	}
	require.NoError(t, st.ReplaceFileData(ctx, "app/auth.py", []model.Entity{auth, helper}, []model.Edge{edge}))

	require.NoError(t, st.AppendCommits(ctx, []model.CommitRecord{{
		Hash:      "deadbeefcafe1234deadbeefcafe1234deadbeef",
		Author:    "ana@example.com",
		Timestamp: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Message:   "harden authenticate_user against timing attacks",
		Files:     []model.FileChange{{Path: "app/auth.py", Type: model.ChangeModified, Additions: 4, Deletions: 1}},
	}}))

	_, err := st.UpsertDiscussion(ctx, model.Discussion{
		Source:     model.SourceGitHubIssue,
		ExternalID: "42",
		Title:      "authenticate_user hangs on empty password",
		Body:       "Observed in production.",
		CreatedAt:  time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return st
}

func newEngine(t *testing.T, gen Generator) (*Engine, store.Store) {
	t.Helper()
	st := seedStore(t)
	return NewEngine(st, assemble.NewAssembler(st, nil), gen, nil), st
}

func TestEngine_AskGeneratesWithCitations(t *testing.T) {
	eng, _ := newEngine(t, &MockGenerator{})

	ans, err := eng.Ask(context.Background(), "why does authenticate_user hang?")
	require.NoError(t, err)

	assert.False(t, ans.Degraded)
	assert.False(t, ans.NoContext)
	assert.NotEmpty(t, ans.RunID)
	assert.Contains(t, ans.Text, "mock answer:")
	require.NotEmpty(t, ans.Citations)

	// Citations come from the bundle, never from generated text.
	authID := model.EntityID("app/auth.py", "authenticate_user")
	var refs []string
	for _, c := range ans.Citations {
		refs = append(refs, c.Ref)
	}
	assert.Contains(t, refs, authID)
	assert.Contains(t, refs, "commit:deadbeefcafe1234deadbeefcafe1234deadbeef")
}

func TestEngine_BackendFailureDegrades(t *testing.T) {
	backendErr := &model.GenerationBackendError{Provider: "openai", Err: errors.New("connection refused")}
	eng, _ := newEngine(t, &MockGenerator{Fail: backendErr})

	ans, err := eng.Ask(context.Background(), "why does authenticate_user hang?")
	require.NoError(t, err, "backend failure degrades, it does not fail the operation")

	assert.True(t, ans.Degraded)
	assert.Contains(t, ans.DegradedReason, "connection refused")
	assert.Contains(t, ans.Text, "authenticate_user", "extractive fallback still carries the context")
	assert.NotEmpty(t, ans.Citations, "degraded answers keep their citations")
}

func TestEngine_NonBackendErrorPropagates(t *testing.T) {
	eng, _ := newEngine(t, &MockGenerator{Fail: errors.New("programming error")})

	_, err := eng.Ask(context.Background(), "authenticate_user")
	require.Error(t, err)
}

func TestEngine_NilGeneratorIsExtractive(t *testing.T) {
	eng, _ := newEngine(t, nil)

	ans, err := eng.Ask(context.Background(), "authenticate_user")
	require.NoError(t, err)
	assert.True(t, ans.Degraded)
	assert.Equal(t, "no generation backend configured", ans.DegradedReason)
	assert.Contains(t, ans.Text, "def authenticate_user(name, password)")
}

func TestEngine_NoContextAnswer(t *testing.T) {
	eng, _ := newEngine(t, &MockGenerator{})

	ans, err := eng.Ask(context.Background(), "zzznothing matches this zzzquery")
	require.NoError(t, err)
	assert.True(t, ans.NoContext)
	assert.Empty(t, ans.Citations)
	assert.False(t, ans.Degraded)
}

func TestEngine_DocumentFile(t *testing.T) {
	eng, _ := newEngine(t, &MockGenerator{})

	ans, err := eng.Document(context.Background(), "app/auth.py")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "mock answer:")
	assert.Contains(t, ans.Text, "app/auth.py")
}

func TestEngine_DocumentCitesLinkedDiscussions(t *testing.T) {
	eng, st := newEngine(t, &MockGenerator{})
	ctx := context.Background()

	// The discussion never mentions the file or its functions; only the
	// recorded link ties it to app/auth.py.
	_, err := st.UpsertDiscussion(ctx, model.Discussion{
		Source:     model.SourceGitHubIssue,
		ExternalID: "77",
		Title:      "Crash when token expires",
		CreatedAt:  time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, st.ReplaceLinks(ctx, model.SourceGitHubIssue, "77", []model.DiscussionLink{{
		Source:     model.SourceGitHubIssue,
		ExternalID: "77",
		TargetKind: model.TargetFile,
		Target:     "app/auth.py",
		Basis:      model.BasisCommitMessage,
	}}))

	ans, err := eng.Document(ctx, "app/auth.py")
	require.NoError(t, err)

	var refs []string
	for _, c := range ans.Citations {
		refs = append(refs, c.Ref)
	}
	assert.Contains(t, refs, model.EntityID("app/auth.py", "authenticate_user"))
	assert.Contains(t, refs, "commit:deadbeefcafe1234deadbeefcafe1234deadbeef")
	assert.Contains(t, refs, "disc:github_issue/77",
		"documentation cites discussions linked to the file")
}

func TestEngine_DocumentEntityNarrowing(t *testing.T) {
	eng, _ := newEngine(t, &MockGenerator{})

	ans, err := eng.Document(context.Background(), "app/auth.py:authenticate_user")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "authenticate_user")

	_, err = eng.Document(context.Background(), "app/auth.py:no_such_entity")
	require.Error(t, err)

	_, err = eng.Document(context.Background(), "app/missing.py")
	require.Error(t, err)
}

func TestEngine_RationalePrivilegesHistory(t *testing.T) {
	st := seedStore(t)
	asm := assemble.NewAssembler(st, nil)
	eng := NewEngine(st, asm, nil, nil)

	ans, err := eng.Rationale(context.Background(), "authenticate_user")
	require.NoError(t, err)

	var commitCited, discussionCited bool
	for _, c := range ans.Citations {
		if c.Ref == "commit:deadbeefcafe1234deadbeefcafe1234deadbeef" {
			commitCited = true
		}
		if c.Ref == "disc:github_issue/42" {
			discussionCited = true
		}
	}
	assert.True(t, commitCited)
	assert.True(t, discussionCited)
}

func TestBreakerGenerator_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &MockGenerator{Fail: errors.New("boom")}
	gen := NewBreakerGenerator(inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := gen.Generate(ctx, "sys", "prompt")
		require.Error(t, err)
		var backendErr *model.GenerationBackendError
		assert.False(t, errors.As(err, &backendErr), "closed circuit passes the raw error through")
	}

	// Circuit is open now: fail fast with a backend error the engine can
	// degrade on.
	_, err := gen.Generate(ctx, "sys", "prompt")
	require.Error(t, err)
	var backendErr *model.GenerationBackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "breaker", backendErr.Provider)
}

func TestBreakerGenerator_PassesThroughSuccess(t *testing.T) {
	gen := NewBreakerGenerator(&MockGenerator{})

	text, err := gen.Generate(context.Background(), "sys", "task line\nrest")
	require.NoError(t, err)
	assert.Equal(t, "mock answer: task line", text)
}
