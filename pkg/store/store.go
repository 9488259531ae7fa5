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

// Package store defines the persistence contract shared by every pipeline
// component. The store is the single synchronization point of the system:
// writes are applied atomically per logical unit (one file's entities and
// edges together, one commit with its file changes together) so readers
// never observe a half-written graph.
package store

import (
	"context"

	"github.com/kraklabs/archintel/pkg/model"
)

// MetaLastMinedHash is the meta key holding the newest mined commit hash,
// used to resume incremental history mining.
const MetaLastMinedHash = "last_mined_hash"

// MetaLastIndexedHash is the meta key holding the commit hash the graph was
// last built against, for git-delta incremental updates.
const MetaLastIndexedHash = "last_indexed_hash"

// Store is the read/write contract for the entity/commit/discussion store.
// Components never reach into each other's in-memory structures; everything
// flows through this interface.
type Store interface {
	// ReplaceFileData atomically replaces the entities and edges owned by
	// one file. Passing empty slices removes the file from the graph.
	ReplaceFileData(ctx context.Context, path string, entities []model.Entity, edges []model.Edge) error

	// Entity returns the entity with the given ID, if present.
	Entity(ctx context.Context, id string) (model.Entity, bool, error)

	// EntitiesByPath returns a file's entities in declaration order.
	EntitiesByPath(ctx context.Context, path string) ([]model.Entity, error)

	// Entities returns every entity, ordered by (path, start line).
	Entities(ctx context.Context) ([]model.Entity, error)

	// EdgesFrom returns edges whose source is the given entity.
	EdgesFrom(ctx context.Context, sourceID string) ([]model.Edge, error)

	// EdgesTo returns edges whose target is the given entity.
	EdgesTo(ctx context.Context, targetID string) ([]model.Edge, error)

	// Edges returns every edge.
	Edges(ctx context.Context) ([]model.Edge, error)

	// RetargetEdges rewrites the targets of existing edges, matched by
	// (source ID, kind, target name, line). Used when incremental updates
	// re-resolve edges that pointed into a changed file.
	RetargetEdges(ctx context.Context, edges []model.Edge) error

	// AppendCommits appends mined commits oldest-first. Each commit and its
	// file changes are written as one atomic unit. Re-appending an existing
	// hash is a no-op (mining is resumable and idempotent).
	AppendCommits(ctx context.Context, commits []model.CommitRecord) error

	// Commit returns the commit with the given hash, if present.
	Commit(ctx context.Context, hash string) (model.CommitRecord, bool, error)

	// Commits returns all commits oldest-first.
	Commits(ctx context.Context) ([]model.CommitRecord, error)

	// CommitsForFile returns commits touching path, newest-first, capped at
	// limit (<=0 means no cap).
	CommitsForFile(ctx context.Context, path string, limit int) ([]model.CommitRecord, error)

	// UpsertDiscussion stores a discussion, deduplicated by (source,
	// external id). An existing copy is overwritten only when the incoming
	// record is newer. Returns true when the stored copy changed.
	UpsertDiscussion(ctx context.Context, d model.Discussion) (bool, error)

	// Discussion returns one discussion by its key, if present.
	Discussion(ctx context.Context, source model.DiscussionSource, externalID string) (model.Discussion, bool, error)

	// Discussions returns all discussions, newest-first.
	Discussions(ctx context.Context) ([]model.Discussion, error)

	// ReplaceLinks atomically replaces all links for one discussion.
	ReplaceLinks(ctx context.Context, source model.DiscussionSource, externalID string, links []model.DiscussionLink) error

	// LinksForTarget returns links pointing at a code target.
	LinksForTarget(ctx context.Context, kind model.LinkTargetKind, target string) ([]model.DiscussionLink, error)

	// LinksForDiscussion returns the links recorded for one discussion.
	LinksForDiscussion(ctx context.Context, source model.DiscussionSource, externalID string) ([]model.DiscussionLink, error)

	// GetMeta and SetMeta store small key/value state, e.g. the last mined
	// commit hash per repository.
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	Close() error
}
