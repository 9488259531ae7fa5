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

// Package model defines the shared record types of the knowledge graph:
// code entities and their edges, mined commit history, and ingested
// discussions with their links back into the code.
//
// All IDs are deterministic and stable across re-runs for idempotency.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// EntityKind is the closed set of code constructs the parser emits.
type EntityKind string

const (
	KindModule   EntityKind = "module"
	KindClass    EntityKind = "class"
	KindFunction EntityKind = "function"
	KindMethod   EntityKind = "method"
)

// Entity represents one parsed code construct.
//
// The ID is derived from (path, qualified name) only, never from the span or
// body, so an entity keeps its identity across edits that move it around
// within its file.
type Entity struct {
	ID            string     // Deterministic: hash(path|qualified_name)
	Kind          EntityKind // module, class, function, method
	Path          string     // Relative path from repo root
	Name          string     // Simple name (e.g., "authenticate_user")
	QualifiedName string     // Dotted name within the file (e.g., "Auth.login")
	ParentID      string     // Enclosing entity ID ("" for module-level)
	Signature     string     // Declaration text, language-specific
	Docstring     string     // Leading doc comment / docstring, if present
	StartLine     int        // 1-indexed
	EndLine       int        // 1-indexed
	StartCol      int        // 1-indexed
	EndCol        int        // 1-indexed
}

// EdgeKind is the closed set of structural relationships between entities.
type EdgeKind string

const (
	EdgeImports    EdgeKind = "imports"
	EdgeCalls      EdgeKind = "calls"
	EdgeInherits   EdgeKind = "inherits"
	EdgeReferences EdgeKind = "references"
)

// ExternalTargetPrefix marks edge targets that could not be resolved to an
// entity in the indexed repository. The dependency is preserved, not dropped.
const ExternalTargetPrefix = "ext:"

// Edge is a directed relationship between two entities. SourceID always
// references an existing Entity; TargetID may be an external target.
type Edge struct {
	Kind       EdgeKind
	SourceID   string
	TargetID   string // Entity ID, or ExternalTargetPrefix + target name
	TargetName string // Name as written at the reference site
	Line       int    // Line of the reference in the source file (0 = unknown)
}

// External reports whether the edge's target resolved outside the repository.
func (e Edge) External() bool {
	return strings.HasPrefix(e.TargetID, ExternalTargetPrefix)
}

// ExternalTarget builds the synthetic target ID for an unresolved name.
func ExternalTarget(name string) string {
	return ExternalTargetPrefix + name
}

// ChangeType describes how a commit touched a file.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// FileChange is one file touched by a commit. Binary files and files above
// the diff size threshold carry a change type but zero line stats.
type FileChange struct {
	CommitHash string
	Path       string
	OldPath    string // set for renames: the pre-rename path
	Type       ChangeType
	Additions  int
	Deletions  int
}

// CommitRecord is one mined Git commit. Records are immutable once created
// and appended oldest-first as history is mined incrementally.
type CommitRecord struct {
	Hash        string // Full commit hash, unique
	Author      string // Normalized email (trimmed, lower-cased)
	DisplayName string // Original author name, preserved for presentation
	Timestamp   time.Time
	Message     string
	Files       []FileChange

	// DiffUnavailable is set when the commit's diff could not be computed;
	// the commit is still recorded with an empty file list.
	DiffUnavailable bool
}

// DiscussionSource identifies the platform a discussion came from.
type DiscussionSource string

const (
	SourceGitHubPR    DiscussionSource = "github_pr"
	SourceGitHubIssue DiscussionSource = "github_issue"
)

// Discussion is one external conversation (PR or issue), immutable after
// ingestion and deduplicated by (Source, ExternalID).
type Discussion struct {
	Source     DiscussionSource
	ExternalID string
	Title      string
	Body       string
	Author     string
	URL        string
	CreatedAt  time.Time
}

// Key returns the deduplication key for the discussion.
func (d Discussion) Key() string {
	return string(d.Source) + "/" + d.ExternalID
}

// LinkBasis tags how a discussion was associated with a code target, in
// decreasing order of confidence.
type LinkBasis string

const (
	BasisExplicitReference LinkBasis = "explicit-reference"
	BasisCommitMessage     LinkBasis = "commit-message"
	BasisKeyword           LinkBasis = "keyword"
)

// Weight returns the ranking weight for the basis. Explicit references
// dominate heuristic keyword matches.
func (b LinkBasis) Weight() float64 {
	switch b {
	case BasisExplicitReference:
		return 1.0
	case BasisCommitMessage:
		return 0.8
	case BasisKeyword:
		return 0.5
	}
	return 0
}

// LinkTargetKind names what a DiscussionLink points at.
type LinkTargetKind string

const (
	TargetFile   LinkTargetKind = "file"
	TargetEntity LinkTargetKind = "entity"
	TargetCommit LinkTargetKind = "commit"
)

// DiscussionLink associates a discussion with a code target. Many discussions
// may link to one target and vice versa.
type DiscussionLink struct {
	Source     DiscussionSource
	ExternalID string
	TargetKind LinkTargetKind
	Target     string // file path, entity ID, or commit hash
	Basis      LinkBasis
}

// EntityID generates the deterministic ID for an entity.
func EntityID(path, qualifiedName string) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte("|"))
	h.Write([]byte(qualifiedName))
	return "ent:" + hex.EncodeToString(h.Sum(nil))[:16]
}
