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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// fakeGit replays canned output per leading git subcommand.
type fakeGit struct {
	responses map[string]string
	errors    map[string]error
	calls     []string
}

func (f *fakeGit) Run(_ context.Context, args ...string) (string, error) {
	key := args[0]
	f.calls = append(f.calls, strings.Join(args, " "))
	if err, ok := f.errors[key]; ok {
		return "", err
	}
	return f.responses[key], nil
}

func (f *fakeGit) RepoPath() string { return "/repo" }

func logRecord(hash, email, name, date, message, stats string) string {
	return "\x1e" + hash + "\x1f" + email + "\x1f" + name + "\x1f" + date + "\x1f" + message + "\x1f\n" + stats
}

func TestMiner_MinesOldestFirst(t *testing.T) {
	git := &fakeGit{responses: map[string]string{
		"log": logRecord("aaa111", "Ana@Example.com ", "Ana", "2026-01-02T10:00:00Z", "add auth module", "12\t0\tapp/auth.py\n create mode 100644 app/auth.py\n") +
			logRecord("bbb222", "bob@example.com", "Bob", "2026-01-03T11:00:00Z", "fix token expiry\n\nfixes #42", "3\t1\tapp/auth.py\n"),
	}}
	st := store.NewMemoryStore()
	miner := NewMiner(git, st, nil)

	res, err := miner.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Mined)
	assert.Equal(t, "bbb222", res.LastHash)

	ctx := context.Background()
	commits, err := st.Commits(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	first := commits[0]
	assert.Equal(t, "aaa111", first.Hash)
	assert.Equal(t, "ana@example.com", first.Author, "email normalized")
	assert.Equal(t, "Ana", first.DisplayName)
	require.Len(t, first.Files, 1)
	assert.Equal(t, model.ChangeAdded, first.Files[0].Type, "create mode upgrades to added")
	assert.Equal(t, 12, first.Files[0].Additions)

	second := commits[1]
	assert.Equal(t, "fix token expiry\n\nfixes #42", second.Message, "multi-line message preserved")
	assert.Equal(t, model.ChangeModified, second.Files[0].Type)

	// Checkpoint advanced to the newest hash.
	last, err := st.GetMeta(ctx, store.MetaLastMinedHash)
	require.NoError(t, err)
	assert.Equal(t, "bbb222", last)
}

func TestMiner_ResumesFromCheckpoint(t *testing.T) {
	git := &fakeGit{responses: map[string]string{
		"log": logRecord("ccc333", "ana@example.com", "Ana", "2026-01-04T09:00:00Z", "more", "1\t1\ta.py\n"),
	}}
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.SetMeta(ctx, store.MetaLastMinedHash, "bbb222"))

	miner := NewMiner(git, st, nil)
	res, err := miner.Mine(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Mined)

	require.Len(t, git.calls, 1)
	assert.Contains(t, git.calls[0], "bbb222..HEAD", "mining continues from the checkpoint")
}

func TestMiner_MineIsIdempotent(t *testing.T) {
	output := logRecord("aaa111", "ana@example.com", "Ana", "2026-01-02T10:00:00Z", "one", "1\t0\ta.py\n")
	git := &fakeGit{responses: map[string]string{"log": output}}
	st := store.NewMemoryStore()
	miner := NewMiner(git, st, nil)
	ctx := context.Background()

	_, err := miner.Mine(ctx)
	require.NoError(t, err)
	// Same commits delivered again (e.g. checkpoint lost between runs).
	_, err = miner.Mine(ctx)
	require.NoError(t, err)

	commits, err := st.Commits(ctx)
	require.NoError(t, err)
	assert.Len(t, commits, 1, "re-appending the same hash is a no-op")
}

func TestMiner_BinaryAndRenameStats(t *testing.T) {
	stats := "-\t-\tassets/logo.png\n5\t2\tsrc/{old => new}/mod.py\n"
	git := &fakeGit{responses: map[string]string{
		"log": logRecord("ddd444", "ana@example.com", "Ana", "2026-01-05T08:00:00Z", "move", stats),
	}}
	st := store.NewMemoryStore()
	miner := NewMiner(git, st, nil)

	_, err := miner.Mine(context.Background())
	require.NoError(t, err)

	commit, ok, err := st.Commit(context.Background(), "ddd444")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, commit.Files, 2)

	binary := commit.Files[0]
	assert.Equal(t, "assets/logo.png", binary.Path)
	assert.Zero(t, binary.Additions)
	assert.Zero(t, binary.Deletions)

	renamed := commit.Files[1]
	assert.Equal(t, model.ChangeRenamed, renamed.Type)
	assert.Equal(t, "src/new/mod.py", renamed.Path)
	assert.Equal(t, "src/old/mod.py", renamed.OldPath)
}

func TestMiner_MalformedStatsRecordsDiffUnavailable(t *testing.T) {
	git := &fakeGit{responses: map[string]string{
		"log": logRecord("eee555", "ana@example.com", "Ana", "2026-01-06T08:00:00Z", "odd", "not a stat line\n"),
	}}
	st := store.NewMemoryStore()
	miner := NewMiner(git, st, nil)

	res, err := miner.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Mined, "commit still recorded")

	commit, ok, err := st.Commit(context.Background(), "eee555")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, commit.DiffUnavailable)
	assert.Empty(t, commit.Files)
}

func TestMiner_SkipsUnparseableCommit(t *testing.T) {
	git := &fakeGit{responses: map[string]string{
		"log": logRecord("fff666", "ana@example.com", "Ana", "not-a-date", "bad", "1\t0\ta.py\n") +
			logRecord("abc777", "ana@example.com", "Ana", "2026-01-07T08:00:00Z", "good", "1\t0\ta.py\n"),
	}}
	st := store.NewMemoryStore()
	miner := NewMiner(git, st, nil)

	res, err := miner.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Mined)
	assert.Equal(t, 1, res.Summary.Succeeded)
	assert.Len(t, res.Summary.Skipped, 1)
	assert.Equal(t, "1 succeeded, 1 skipped", res.Summary.String())
}

func TestMiner_GitFailureSurfacesHistoryError(t *testing.T) {
	git := &fakeGit{errors: map[string]error{"log": fmt.Errorf("fatal: bad revision")}}
	st := store.NewMemoryStore()
	miner := NewMiner(git, st, nil)

	_, err := miner.Mine(context.Background())
	var haErr *model.HistoryAccessError
	require.ErrorAs(t, err, &haErr)
}

func TestChangedFiles(t *testing.T) {
	git := &fakeGit{responses: map[string]string{
		"diff": "A\tnew.py\nM\tmod.py\nD\tgone.py\nR087\told.py\trenamed.py\n",
	}}

	changes, err := ChangedFiles(context.Background(), git, "aaa", "bbb")
	require.NoError(t, err)
	require.Len(t, changes, 4)

	assert.Equal(t, model.FileChange{Path: "new.py", Type: model.ChangeAdded}, changes[0])
	assert.Equal(t, model.FileChange{Path: "mod.py", Type: model.ChangeModified}, changes[1])
	assert.Equal(t, model.FileChange{Path: "gone.py", Type: model.ChangeDeleted}, changes[2])
	assert.Equal(t, model.FileChange{Path: "renamed.py", OldPath: "old.py", Type: model.ChangeRenamed}, changes[3])
}

func TestAuthorStats(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	git := &fakeGit{responses: map[string]string{
		"log": logRecord("a1", "ana@example.com", "Ana", "2026-01-01T00:00:00Z", "one", "10\t2\tcore.py\n") +
			logRecord("b1", "bob@example.com", "Bob", "2026-01-02T00:00:00Z", "two", "1\t1\tother.py\n") +
			logRecord("a2", "ana@example.com", "Ana B", "2026-01-03T00:00:00Z", "three", "5\t5\tcore.py\n"),
	}}
	_, err := NewMiner(git, st, nil).Mine(ctx)
	require.NoError(t, err)

	stats, err := AuthorStats(ctx, st, "")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "ana@example.com", stats[0].Author)
	assert.Equal(t, 2, stats[0].Commits)
	assert.Equal(t, 15, stats[0].Additions)
	assert.Equal(t, "Ana B", stats[0].DisplayName, "latest display name wins")

	// Scoped to one file.
	scoped, err := AuthorStats(ctx, st, "core.py")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "ana@example.com", scoped[0].Author)
}
