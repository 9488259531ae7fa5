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
	"sort"
	"sync"

	"github.com/kraklabs/archintel/pkg/model"
)

// MemoryStore is an in-memory Store used by tests and throwaway runs.
// All snapshot reads return copies, so callers cannot mutate stored state.
type MemoryStore struct {
	mu sync.RWMutex

	entities map[string]model.Entity   // entity ID -> entity
	byPath   map[string][]string       // file path -> entity IDs in declaration order
	edges    map[string][]model.Edge   // owner path -> edges whose source lives in that file
	commits  []model.CommitRecord      // oldest-first
	byHash   map[string]int            // commit hash -> index into commits
	disc     map[string]model.Discussion
	links    map[string][]model.DiscussionLink // discussion key -> links
	meta     map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]model.Entity),
		byPath:   make(map[string][]string),
		edges:    make(map[string][]model.Edge),
		byHash:   make(map[string]int),
		disc:     make(map[string]model.Discussion),
		links:    make(map[string][]model.DiscussionLink),
		meta:     make(map[string]string),
	}
}

func (s *MemoryStore) ReplaceFileData(_ context.Context, path string, entities []model.Entity, edges []model.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byPath[path] {
		delete(s.entities, id)
	}
	delete(s.byPath, path)
	delete(s.edges, path)

	if len(entities) == 0 && len(edges) == 0 {
		return nil
	}

	// Last write wins when a batch carries the same entity ID twice.
	last := make(map[string]int, len(entities))
	for i, e := range entities {
		last[e.ID] = i
	}
	ids := make([]string, 0, len(entities))
	for i, e := range entities {
		if last[e.ID] != i {
			continue
		}
		s.entities[e.ID] = e
		ids = append(ids, e.ID)
	}
	s.byPath[path] = ids
	if len(edges) > 0 {
		s.edges[path] = append([]model.Edge(nil), edges...)
	}
	return nil
}

func (s *MemoryStore) Entity(_ context.Context, id string) (model.Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok, nil
}

func (s *MemoryStore) EntitiesByPath(_ context.Context, path string) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPath[path]
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.entities[id])
	}
	return out, nil
}

func (s *MemoryStore) Entities(_ context.Context) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].StartLine < out[j].StartLine
	})
	return out, nil
}

func (s *MemoryStore) EdgesFrom(_ context.Context, sourceID string) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Edge
	for _, list := range s.edges {
		for _, e := range list {
			if e.SourceID == sourceID {
				out = append(out, e)
			}
		}
	}
	sortEdges(out)
	return out, nil
}

func (s *MemoryStore) EdgesTo(_ context.Context, targetID string) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Edge
	for _, list := range s.edges {
		for _, e := range list {
			if e.TargetID == targetID {
				out = append(out, e)
			}
		}
	}
	sortEdges(out)
	return out, nil
}

func (s *MemoryStore) Edges(_ context.Context) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Edge
	for _, list := range s.edges {
		out = append(out, list...)
	}
	sortEdges(out)
	return out, nil
}

func (s *MemoryStore) RetargetEdges(_ context.Context, edges []model.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, upd := range edges {
		for path, list := range s.edges {
			for i, e := range list {
				if e.SourceID == upd.SourceID && e.Kind == upd.Kind &&
					e.TargetName == upd.TargetName && e.Line == upd.Line {
					s.edges[path][i].TargetID = upd.TargetID
				}
			}
		}
	}
	return nil
}

func (s *MemoryStore) AppendCommits(_ context.Context, commits []model.CommitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range commits {
		if _, seen := s.byHash[c.Hash]; seen {
			continue
		}
		s.byHash[c.Hash] = len(s.commits)
		s.commits = append(s.commits, c)
	}
	return nil
}

func (s *MemoryStore) Commit(_ context.Context, hash string) (model.CommitRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byHash[hash]
	if !ok {
		return model.CommitRecord{}, false, nil
	}
	return s.commits[i], true, nil
}

func (s *MemoryStore) Commits(_ context.Context) ([]model.CommitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.CommitRecord(nil), s.commits...), nil
}

func (s *MemoryStore) CommitsForFile(_ context.Context, path string, limit int) ([]model.CommitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CommitRecord
	for i := len(s.commits) - 1; i >= 0; i-- {
		for _, fc := range s.commits[i].Files {
			if fc.Path == path {
				out = append(out, s.commits[i])
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertDiscussion(_ context.Context, d model.Discussion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := d.Key()
	if existing, ok := s.disc[key]; ok && !d.CreatedAt.After(existing.CreatedAt) {
		return false, nil
	}
	s.disc[key] = d
	return true, nil
}

func (s *MemoryStore) Discussion(_ context.Context, source model.DiscussionSource, externalID string) (model.Discussion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disc[string(source)+"/"+externalID]
	return d, ok, nil
}

func (s *MemoryStore) Discussions(_ context.Context) ([]model.Discussion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Discussion, 0, len(s.disc))
	for _, d := range s.disc {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out, nil
}

func (s *MemoryStore) ReplaceLinks(_ context.Context, source model.DiscussionSource, externalID string, links []model.DiscussionLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(source) + "/" + externalID
	if len(links) == 0 {
		delete(s.links, key)
		return nil
	}
	s.links[key] = append([]model.DiscussionLink(nil), links...)
	return nil
}

func (s *MemoryStore) LinksForTarget(_ context.Context, kind model.LinkTargetKind, target string) ([]model.DiscussionLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DiscussionLink
	for _, list := range s.links {
		for _, l := range list {
			if l.TargetKind == kind && l.Target == target {
				out = append(out, l)
			}
		}
	}
	sortLinks(out)
	return out, nil
}

func (s *MemoryStore) LinksForDiscussion(_ context.Context, source model.DiscussionSource, externalID string) ([]model.DiscussionLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]model.DiscussionLink(nil), s.links[string(source)+"/"+externalID]...)
	sortLinks(out)
	return out, nil
}

func (s *MemoryStore) GetMeta(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta[key], nil
}

func (s *MemoryStore) SetMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func sortEdges(edges []model.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		if edges[i].Kind != edges[j].Kind {
			return edges[i].Kind < edges[j].Kind
		}
		if edges[i].TargetName != edges[j].TargetName {
			return edges[i].TargetName < edges[j].TargetName
		}
		return edges[i].Line < edges[j].Line
	})
}

func sortLinks(links []model.DiscussionLink) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].Basis != links[j].Basis {
			return links[i].Basis.Weight() > links[j].Basis.Weight()
		}
		if links[i].Source != links[j].Source {
			return links[i].Source < links[j].Source
		}
		if links[i].ExternalID != links[j].ExternalID {
			return links[i].ExternalID < links[j].ExternalID
		}
		return links[i].Target < links[j].Target
	})
}
