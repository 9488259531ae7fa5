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
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/kraklabs/archintel/pkg/model"
)

// SQLiteStore is the default persistent Store, backed by a single SQLite
// database file. Writes go through transactions so each logical unit (one
// file's graph slice, one commit, one discussion's links) lands atomically.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dbPath and ensures the
// schema exists.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	path           TEXT NOT NULL,
	name           TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	parent_id      TEXT NOT NULL DEFAULT '',
	signature      TEXT NOT NULL DEFAULT '',
	docstring      TEXT NOT NULL DEFAULT '',
	start_line     INTEGER NOT NULL,
	end_line       INTEGER NOT NULL,
	start_col      INTEGER NOT NULL,
	end_col        INTEGER NOT NULL,
	decl_order     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_path ON entities(path);

CREATE TABLE IF NOT EXISTS edges (
	owner_path  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	target_name TEXT NOT NULL,
	line        INTEGER NOT NULL,
	PRIMARY KEY (source_id, kind, target_name, line)
);
CREATE INDEX IF NOT EXISTS idx_edges_owner ON edges(owner_path);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

CREATE TABLE IF NOT EXISTS commits (
	hash             TEXT PRIMARY KEY,
	author           TEXT NOT NULL,
	display_name     TEXT NOT NULL,
	ts               INTEGER NOT NULL,
	message          TEXT NOT NULL,
	diff_unavailable INTEGER NOT NULL DEFAULT 0,
	seq              INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_commits_seq ON commits(seq);

CREATE TABLE IF NOT EXISTS file_changes (
	hash        TEXT NOT NULL,
	path        TEXT NOT NULL,
	change_type TEXT NOT NULL,
	additions   INTEGER NOT NULL,
	deletions   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_changes_hash ON file_changes(hash);
CREATE INDEX IF NOT EXISTS idx_file_changes_path ON file_changes(path);

CREATE TABLE IF NOT EXISTS discussions (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	title       TEXT NOT NULL,
	body        TEXT NOT NULL,
	author      TEXT NOT NULL,
	url         TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (source, external_id)
);

CREATE TABLE IF NOT EXISTS discussion_links (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	target_kind TEXT NOT NULL,
	target      TEXT NOT NULL,
	basis       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_links_discussion ON discussion_links(source, external_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON discussion_links(target_kind, target);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, mapping connection failures to
// ErrStoreUnavailable.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", model.ErrStoreUnavailable, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", model.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceFileData(ctx context.Context, path string, entities []model.Entity, edges []model.Edge) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE path = ?`, path); err != nil {
			return fmt.Errorf("delete entities: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE owner_path = ?`, path); err != nil {
			return fmt.Errorf("delete edges: %w", err)
		}
		// OR REPLACE keeps the last write when a batch carries the same
		// entity ID twice, matching the memory store.
		for i, e := range entities {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO entities (id, kind, path, name, qualified_name, parent_id,
					signature, docstring, start_line, end_line, start_col, end_col, decl_order)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, string(e.Kind), e.Path, e.Name, e.QualifiedName, e.ParentID,
				e.Signature, e.Docstring, e.StartLine, e.EndLine, e.StartCol, e.EndCol, i,
			); err != nil {
				return fmt.Errorf("insert entity %s: %w", e.ID, err)
			}
		}
		for _, edge := range edges {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO edges (owner_path, kind, source_id, target_id, target_name, line)
				VALUES (?, ?, ?, ?, ?, ?)`,
				path, string(edge.Kind), edge.SourceID, edge.TargetID, edge.TargetName, edge.Line,
			); err != nil {
				return fmt.Errorf("insert edge: %w", err)
			}
		}
		return nil
	})
}

const entityColumns = `id, kind, path, name, qualified_name, parent_id, signature, docstring, start_line, end_line, start_col, end_col`

func scanEntities(rows *sql.Rows) ([]model.Entity, error) {
	defer rows.Close()
	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Path, &e.Name, &e.QualifiedName, &e.ParentID,
			&e.Signature, &e.Docstring, &e.StartLine, &e.EndLine, &e.StartCol, &e.EndCol); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Kind = model.EntityKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Entity(ctx context.Context, id string) (model.Entity, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	if err != nil {
		return model.Entity{}, false, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	list, err := scanEntities(rows)
	if err != nil || len(list) == 0 {
		return model.Entity{}, false, err
	}
	return list[0], true, nil
}

func (s *SQLiteStore) EntitiesByPath(ctx context.Context, path string) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE path = ? ORDER BY decl_order`, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return scanEntities(rows)
}

func (s *SQLiteStore) Entities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities ORDER BY path, start_line`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return scanEntities(rows)
}

const edgeColumns = `kind, source_id, target_id, target_name, line`

func scanEdges(rows *sql.Rows) ([]model.Edge, error) {
	defer rows.Close()
	var out []model.Edge
	for rows.Next() {
		var e model.Edge
		var kind string
		if err := rows.Scan(&kind, &e.SourceID, &e.TargetID, &e.TargetName, &e.Line); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Kind = model.EdgeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) EdgesFrom(ctx context.Context, sourceID string) ([]model.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE source_id = ? ORDER BY kind, target_name, line`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return scanEdges(rows)
}

func (s *SQLiteStore) EdgesTo(ctx context.Context, targetID string) ([]model.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE target_id = ? ORDER BY source_id, kind, target_name, line`, targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return scanEdges(rows)
}

func (s *SQLiteStore) Edges(ctx context.Context) ([]model.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM edges ORDER BY source_id, kind, target_name, line`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return scanEdges(rows)
}

func (s *SQLiteStore) RetargetEdges(ctx context.Context, edges []model.Edge) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx, `
				UPDATE edges SET target_id = ?
				WHERE source_id = ? AND kind = ? AND target_name = ? AND line = ?`,
				e.TargetID, e.SourceID, string(e.Kind), e.TargetName, e.Line,
			); err != nil {
				return fmt.Errorf("retarget edge: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) AppendCommits(ctx context.Context, commits []model.CommitRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM commits`).Scan(&seq); err != nil {
			return fmt.Errorf("max seq: %w", err)
		}
		for _, c := range commits {
			var exists int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(1) FROM commits WHERE hash = ?`, c.Hash).Scan(&exists); err != nil {
				return fmt.Errorf("check commit: %w", err)
			}
			if exists > 0 {
				continue
			}
			seq++
			unavailable := 0
			if c.DiffUnavailable {
				unavailable = 1
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO commits (hash, author, display_name, ts, message, diff_unavailable, seq)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.Hash, c.Author, c.DisplayName, c.Timestamp.Unix(), c.Message, unavailable, seq,
			); err != nil {
				return fmt.Errorf("insert commit %s: %w", c.Hash, err)
			}
			for _, fc := range c.Files {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO file_changes (hash, path, change_type, additions, deletions)
					VALUES (?, ?, ?, ?, ?)`,
					c.Hash, fc.Path, string(fc.Type), fc.Additions, fc.Deletions,
				); err != nil {
					return fmt.Errorf("insert file change: %w", err)
				}
			}
		}
		return nil
	})
}

func (s *SQLiteStore) scanCommitRows(ctx context.Context, rows *sql.Rows) ([]model.CommitRecord, error) {
	defer rows.Close()
	var out []model.CommitRecord
	for rows.Next() {
		var c model.CommitRecord
		var ts int64
		var unavailable int
		if err := rows.Scan(&c.Hash, &c.Author, &c.DisplayName, &ts, &c.Message, &unavailable); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		c.Timestamp = time.Unix(ts, 0).UTC()
		c.DiffUnavailable = unavailable != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		files, err := s.fileChanges(ctx, out[i].Hash)
		if err != nil {
			return nil, err
		}
		out[i].Files = files
	}
	return out, nil
}

func (s *SQLiteStore) fileChanges(ctx context.Context, hash string) ([]model.FileChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, path, change_type, additions, deletions FROM file_changes WHERE hash = ? ORDER BY path`, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var out []model.FileChange
	for rows.Next() {
		var fc model.FileChange
		var ct string
		if err := rows.Scan(&fc.CommitHash, &fc.Path, &ct, &fc.Additions, &fc.Deletions); err != nil {
			return nil, fmt.Errorf("scan file change: %w", err)
		}
		fc.Type = model.ChangeType(ct)
		out = append(out, fc)
	}
	return out, rows.Err()
}

const commitColumns = `hash, author, display_name, ts, message, diff_unavailable`

func (s *SQLiteStore) Commit(ctx context.Context, hash string) (model.CommitRecord, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commitColumns+` FROM commits WHERE hash = ?`, hash)
	if err != nil {
		return model.CommitRecord{}, false, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	list, err := s.scanCommitRows(ctx, rows)
	if err != nil || len(list) == 0 {
		return model.CommitRecord{}, false, err
	}
	return list[0], true, nil
}

func (s *SQLiteStore) Commits(ctx context.Context) ([]model.CommitRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commitColumns+` FROM commits ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return s.scanCommitRows(ctx, rows)
}

func (s *SQLiteStore) CommitsForFile(ctx context.Context, path string, limit int) ([]model.CommitRecord, error) {
	query := `
		SELECT ` + commitColumns + ` FROM commits
		WHERE hash IN (SELECT hash FROM file_changes WHERE path = ?)
		ORDER BY seq DESC`
	args := []any{path}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return s.scanCommitRows(ctx, rows)
}

func (s *SQLiteStore) UpsertDiscussion(ctx context.Context, d model.Discussion) (bool, error) {
	changed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx,
			`SELECT created_at FROM discussions WHERE source = ? AND external_id = ?`,
			string(d.Source), d.ExternalID).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			// new record
		case err != nil:
			return fmt.Errorf("check discussion: %w", err)
		default:
			if !d.CreatedAt.After(time.Unix(existing, 0)) {
				return nil
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO discussions (source, external_id, title, body, author, url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(d.Source), d.ExternalID, d.Title, d.Body, d.Author, d.URL, d.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("upsert discussion: %w", err)
		}
		changed = true
		return nil
	})
	return changed, err
}

const discussionColumns = `source, external_id, title, body, author, url, created_at`

func scanDiscussions(rows *sql.Rows) ([]model.Discussion, error) {
	defer rows.Close()
	var out []model.Discussion
	for rows.Next() {
		var d model.Discussion
		var source string
		var created int64
		if err := rows.Scan(&source, &d.ExternalID, &d.Title, &d.Body, &d.Author, &d.URL, &created); err != nil {
			return nil, fmt.Errorf("scan discussion: %w", err)
		}
		d.Source = model.DiscussionSource(source)
		d.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Discussion(ctx context.Context, source model.DiscussionSource, externalID string) (model.Discussion, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+discussionColumns+` FROM discussions WHERE source = ? AND external_id = ?`,
		string(source), externalID)
	if err != nil {
		return model.Discussion{}, false, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	list, err := scanDiscussions(rows)
	if err != nil || len(list) == 0 {
		return model.Discussion{}, false, err
	}
	return list[0], true, nil
}

func (s *SQLiteStore) Discussions(ctx context.Context) ([]model.Discussion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+discussionColumns+` FROM discussions ORDER BY created_at DESC, source, external_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return scanDiscussions(rows)
}

func (s *SQLiteStore) ReplaceLinks(ctx context.Context, source model.DiscussionSource, externalID string, links []model.DiscussionLink) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM discussion_links WHERE source = ? AND external_id = ?`,
			string(source), externalID); err != nil {
			return fmt.Errorf("delete links: %w", err)
		}
		for _, l := range links {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO discussion_links (source, external_id, target_kind, target, basis)
				VALUES (?, ?, ?, ?, ?)`,
				string(l.Source), l.ExternalID, string(l.TargetKind), l.Target, string(l.Basis),
			); err != nil {
				return fmt.Errorf("insert link: %w", err)
			}
		}
		return nil
	})
}

func scanLinks(rows *sql.Rows) ([]model.DiscussionLink, error) {
	defer rows.Close()
	var out []model.DiscussionLink
	for rows.Next() {
		var l model.DiscussionLink
		var source, kind, basis string
		if err := rows.Scan(&source, &l.ExternalID, &kind, &l.Target, &basis); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.Source = model.DiscussionSource(source)
		l.TargetKind = model.LinkTargetKind(kind)
		l.Basis = model.LinkBasis(basis)
		out = append(out, l)
	}
	return out, rows.Err()
}

const linkColumns = `source, external_id, target_kind, target, basis`

func (s *SQLiteStore) LinksForTarget(ctx context.Context, kind model.LinkTargetKind, target string) ([]model.DiscussionLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM discussion_links WHERE target_kind = ? AND target = ? ORDER BY source, external_id, basis`,
		string(kind), target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return scanLinks(rows)
}

func (s *SQLiteStore) LinksForDiscussion(ctx context.Context, source model.DiscussionSource, externalID string) ([]model.DiscussionLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM discussion_links WHERE source = ? AND external_id = ? ORDER BY target_kind, target`,
		string(source), externalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return scanLinks(rows)
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
