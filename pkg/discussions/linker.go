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
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// Linker associates stored discussions with commits, files, and entities.
//
// Bases are tried strongest-first and all matches kept:
//  1. explicit-reference: the discussion text names a commit hash or a file
//     path that exists in the graph
//  2. commit-message: a mined commit message references the discussion
//     ("fixes #42"); the commit's files link transitively
//  3. keyword: fallback match of entity names and file basenames against
//     the discussion text, only when neither stronger basis produced
//     anything
//
// Relinking is a full recomputation per discussion, so it is idempotent.
type Linker struct {
	store  store.Store
	logger *slog.Logger
}

// NewLinker creates a linker.
func NewLinker(st store.Store, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{store: st, logger: logger}
}

// LinkResult summarizes one relink run.
type LinkResult struct {
	Discussions int
	Links       int
	ByBasis     map[model.LinkBasis]int
}

var (
	// Commit-ish hex tokens, 7 to 40 chars, standing alone.
	hashPattern = regexp.MustCompile(`\b[0-9a-f]{7,40}\b`)

	// Issue/PR references in commit messages: "fixes #42", "closes #7",
	// or a bare "#42".
	issueRefPattern = regexp.MustCompile(`(?i)(?:\b(?:fix(?:es|ed)?|close[sd]?|resolve[sd]?|see)\s+)?#(\d+)`)

	wordPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{3,}`)
)

// Relink recomputes links for every stored discussion.
func (l *Linker) Relink(ctx context.Context) (*LinkResult, error) {
	discussions, err := l.store.Discussions(ctx)
	if err != nil {
		return nil, err
	}
	commits, err := l.store.Commits(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := l.store.Entities(ctx)
	if err != nil {
		return nil, err
	}

	commitByHash := make(map[string]model.CommitRecord, len(commits))
	commitByPrefix := make(map[string]string)
	for _, c := range commits {
		commitByHash[c.Hash] = c
	}
	// Abbreviated hashes in text resolve when unambiguous.
	for _, c := range commits {
		for length := 7; length <= 12 && length <= len(c.Hash); length++ {
			prefix := c.Hash[:length]
			if _, taken := commitByPrefix[prefix]; taken {
				commitByPrefix[prefix] = "" // ambiguous
			} else {
				commitByPrefix[prefix] = c.Hash
			}
		}
	}

	knownPaths := make(map[string]bool)
	entityNames := make(map[string][]model.Entity)
	for _, e := range entities {
		knownPaths[e.Path] = true
		if e.Kind != model.KindModule {
			entityNames[e.Name] = append(entityNames[e.Name], e)
		}
	}
	for name := range entityNames {
		sortEntitiesStable(entityNames[name])
	}

	pathsByBase := make(map[string][]string)
	for path := range knownPaths {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		pathsByBase[base] = append(pathsByBase[base], path)
	}
	for base := range pathsByBase {
		sort.Strings(pathsByBase[base])
	}

	// discussion key -> commits whose messages reference it
	refsByDiscussion := make(map[string][]model.CommitRecord)
	for _, c := range commits {
		for _, match := range issueRefPattern.FindAllStringSubmatch(c.Message, -1) {
			refsByDiscussion[match[1]] = append(refsByDiscussion[match[1]], c)
		}
	}

	res := &LinkResult{ByBasis: make(map[model.LinkBasis]int)}
	for _, d := range discussions {
		links := l.linkOne(d, commitByHash, commitByPrefix, knownPaths, entityNames, pathsByBase, refsByDiscussion)
		if err := l.store.ReplaceLinks(ctx, d.Source, d.ExternalID, links); err != nil {
			return nil, err
		}
		res.Discussions++
		res.Links += len(links)
		for _, link := range links {
			res.ByBasis[link.Basis]++
		}
	}

	l.logger.Info("discussions.relink.done", "discussions", res.Discussions, "links", res.Links)
	return res, nil
}

func (l *Linker) linkOne(
	d model.Discussion,
	commitByHash map[string]model.CommitRecord,
	commitByPrefix map[string]string,
	knownPaths map[string]bool,
	entityNames map[string][]model.Entity,
	pathsByBase map[string][]string,
	refsByDiscussion map[string][]model.CommitRecord,
) []model.DiscussionLink {
	text := d.Title + "\n" + d.Body
	var links []model.DiscussionLink
	seen := make(map[string]bool)

	add := func(kind model.LinkTargetKind, target string, basis model.LinkBasis) {
		key := string(kind) + "|" + target
		if target == "" || seen[key] {
			return
		}
		seen[key] = true
		links = append(links, model.DiscussionLink{
			Source:     d.Source,
			ExternalID: d.ExternalID,
			TargetKind: kind,
			Target:     target,
			Basis:      basis,
		})
	}

	// 1. Explicit references: commit hashes and known file paths in text.
	for _, token := range hashPattern.FindAllString(text, -1) {
		if _, ok := commitByHash[token]; ok {
			add(model.TargetCommit, token, model.BasisExplicitReference)
			continue
		}
		if full, ok := commitByPrefix[token]; ok && full != "" {
			add(model.TargetCommit, full, model.BasisExplicitReference)
		}
	}
	for path := range knownPaths {
		if strings.Contains(text, path) {
			add(model.TargetFile, path, model.BasisExplicitReference)
		}
	}

	// 2. Commit messages referencing this discussion. Files touched by the
	// referencing commit link transitively.
	for _, c := range refsByDiscussion[d.ExternalID] {
		add(model.TargetCommit, c.Hash, model.BasisCommitMessage)
		for _, f := range c.Files {
			add(model.TargetFile, f.Path, model.BasisCommitMessage)
		}
	}

	// 3. Keyword fallback only when nothing stronger matched: identifier
	// words anywhere in title or body, against entity names and file
	// basenames.
	if len(links) == 0 {
		for _, word := range wordPattern.FindAllString(text, -1) {
			if matches, ok := entityNames[word]; ok {
				add(model.TargetEntity, matches[0].ID, model.BasisKeyword)
			}
			if paths, ok := pathsByBase[word]; ok {
				add(model.TargetFile, paths[0], model.BasisKeyword)
			}
		}
	}

	sortLinksStable(links)
	return links
}

func sortEntitiesStable(list []model.Entity) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Path != list[j].Path {
			return list[i].Path < list[j].Path
		}
		return list[i].QualifiedName < list[j].QualifiedName
	})
}

func sortLinksStable(links []model.DiscussionLink) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].TargetKind != links[j].TargetKind {
			return links[i].TargetKind < links[j].TargetKind
		}
		if links[i].Target != links[j].Target {
			return links[i].Target < links[j].Target
		}
		return links[i].Basis < links[j].Basis
	})
}
