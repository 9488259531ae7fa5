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

package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/archintel/pkg/ingestion"
	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

func writeRepoFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newTestBuilder(t *testing.T, root string) (*Builder, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	loader := ingestion.NewLoader(root, nil, nil)
	return NewBuilder(st, loader, nil), st
}

func TestBuilder_BuildIndexesRepo(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a.py", `import b

def run():
    b.helper()
`)
	writeRepoFile(t, root, "b.py", `def helper():
    pass
`)

	builder, st := newTestBuilder(t, root)
	res, err := builder.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, res.Summary.Succeeded)
	assert.Empty(t, res.Summary.Skipped)

	ctx := context.Background()
	aEntities, err := st.EntitiesByPath(ctx, "a.py")
	require.NoError(t, err)
	require.NotEmpty(t, aEntities)
	assert.Equal(t, model.KindModule, aEntities[0].Kind)

	run := findByQualifiedName(aEntities, "run")
	require.NotNil(t, run)

	edges, err := st.EdgesFrom(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.False(t, edges[0].External(), "b.helper resolves while b.py exists")

	helperID := model.EntityID("b.py", "helper")
	assert.Equal(t, helperID, edges[0].TargetID)
}

func TestBuilder_BuildIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a.py", "def one():\n    pass\n")

	builder, st := newTestBuilder(t, root)
	ctx := context.Background()

	_, err := builder.Build(ctx)
	require.NoError(t, err)
	first, err := st.Entities(ctx)
	require.NoError(t, err)

	_, err = builder.Build(ctx)
	require.NoError(t, err)
	second, err := st.Entities(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-running a build changes nothing")
}

func TestBuilder_DeletedFileFlipsEdgeExternal(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a.py", `import b

def run():
    b.helper()
`)
	writeRepoFile(t, root, "b.py", "def helper():\n    pass\n")

	builder, st := newTestBuilder(t, root)
	ctx := context.Background()
	_, err := builder.Build(ctx)
	require.NoError(t, err)

	// Remove b.py and apply the change incrementally.
	require.NoError(t, os.Remove(filepath.Join(root, "b.py")))
	_, err = builder.Update(ctx, []model.FileChange{
		{Path: "b.py", Type: model.ChangeDeleted},
	})
	require.NoError(t, err)

	// b.py's entities are gone.
	bEntities, err := st.EntitiesByPath(ctx, "b.py")
	require.NoError(t, err)
	assert.Empty(t, bEntities)

	// a.py's call edge survives as an external reference.
	run, ok, err := st.Entity(ctx, model.EntityID("a.py", "run"))
	require.NoError(t, err)
	require.True(t, ok)

	edges, err := st.EdgesFrom(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].External(), "dangling target becomes external, not dropped")
	assert.Equal(t, "b.helper", edges[0].TargetName)
}

func TestBuilder_FullRebuildRetiresDeletedFiles(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a.py", `import b

def run():
    b.helper()
`)
	writeRepoFile(t, root, "b.py", "def helper():\n    pass\n")

	builder, st := newTestBuilder(t, root)
	ctx := context.Background()
	_, err := builder.Build(ctx)
	require.NoError(t, err)

	// Delete b.py on disk and rebuild from scratch, without an
	// incremental change feed.
	require.NoError(t, os.Remove(filepath.Join(root, "b.py")))
	_, err = builder.Build(ctx)
	require.NoError(t, err)

	bEntities, err := st.EntitiesByPath(ctx, "b.py")
	require.NoError(t, err)
	assert.Empty(t, bEntities, "a full rebuild drops entities of files no longer on disk")

	_, ok, err := st.Entity(ctx, model.EntityID("b.py", "helper"))
	require.NoError(t, err)
	assert.False(t, ok)

	// a.py's call edge survives as an external reference.
	run, ok, err := st.Entity(ctx, model.EntityID("a.py", "run"))
	require.NoError(t, err)
	require.True(t, ok)
	edges, err := st.EdgesFrom(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].External())
}

func TestBuilder_RedefinedNameIndexesOnce(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "dup.py", `def fetch():
    return 1


def fetch():
    return 2
`)

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	builder := NewBuilder(st, ingestion.NewLoader(root, nil, nil), nil)

	ctx := context.Background()
	res, err := builder.Build(ctx)
	require.NoError(t, err, "a redefined name must not abort the build")
	assert.Equal(t, 1, res.Summary.Succeeded)

	entities, err := st.EntitiesByPath(ctx, "dup.py")
	require.NoError(t, err)
	var hits int
	for _, e := range entities {
		if e.ID == model.EntityID("dup.py", "fetch") {
			hits++
		}
	}
	assert.Equal(t, 1, hits)
}

func TestBuilder_RestoredFileReclaimsExternalEdge(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a.py", `import b

def run():
    b.helper()
`)

	builder, st := newTestBuilder(t, root)
	ctx := context.Background()
	_, err := builder.Build(ctx)
	require.NoError(t, err)

	// Initially external: b.py does not exist.
	run, ok, err := st.Entity(ctx, model.EntityID("a.py", "run"))
	require.NoError(t, err)
	require.True(t, ok)
	edges, err := st.EdgesFrom(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.True(t, edges[0].External())

	// Adding b.py re-resolves the edge to the concrete entity.
	writeRepoFile(t, root, "b.py", "def helper():\n    pass\n")
	_, err = builder.Update(ctx, []model.FileChange{
		{Path: "b.py", Type: model.ChangeAdded},
	})
	require.NoError(t, err)

	edges, err = st.EdgesFrom(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.False(t, edges[0].External())
	assert.Equal(t, model.EntityID("b.py", "helper"), edges[0].TargetID)
}

func TestBuilder_SyntaxErrorFileReportedSkipped(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "good.py", "def ok():\n    pass\n")
	writeRepoFile(t, root, "bad.py", "def broken(:\n    pass\n")

	builder, st := newTestBuilder(t, root)
	res, err := builder.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.Succeeded)
	require.Len(t, res.Summary.Skipped, 1)
	assert.Equal(t, "bad.py", res.Summary.Skipped[0].Item)

	// Partial entities from the degraded file are still indexed.
	entities, err := st.EntitiesByPath(context.Background(), "bad.py")
	require.NoError(t, err)
	assert.NotEmpty(t, entities)
}

func TestBuilder_RenameMovesEntities(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "old.py", "def keep():\n    pass\n")

	builder, st := newTestBuilder(t, root)
	ctx := context.Background()
	_, err := builder.Build(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Rename(filepath.Join(root, "old.py"), filepath.Join(root, "new.py")))
	_, err = builder.Update(ctx, []model.FileChange{
		{Path: "new.py", OldPath: "old.py", Type: model.ChangeRenamed},
	})
	require.NoError(t, err)

	oldEntities, err := st.EntitiesByPath(ctx, "old.py")
	require.NoError(t, err)
	assert.Empty(t, oldEntities)

	newEntities, err := st.EntitiesByPath(ctx, "new.py")
	require.NoError(t, err)
	assert.NotNil(t, findByQualifiedName(newEntities, "keep"))
}

func findByQualifiedName(entities []model.Entity, qualifiedName string) *model.Entity {
	for i := range entities {
		if entities[i].QualifiedName == qualifiedName {
			return &entities[i]
		}
	}
	return nil
}
