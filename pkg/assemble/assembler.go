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

// Package assemble ranks stored entities, commits, and discussions against
// a query and packs the winners into a budgeted context bundle.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kraklabs/archintel/pkg/graph"
	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// ItemKind names what one bundle item carries.
type ItemKind string

const (
	ItemEntity     ItemKind = "entity"
	ItemCommit     ItemKind = "commit"
	ItemDiscussion ItemKind = "discussion"
)

// Item is one ranked piece of context. Exactly one of Entity, Commit,
// Discussion is set, matching Kind. Ref is a stable identifier used for
// citations and deterministic tie-breaking.
type Item struct {
	Kind  ItemKind
	Ref   string
	Score float64

	Entity     *model.Entity
	Commit     *model.CommitRecord
	Discussion *model.Discussion

	// Neighbors holds the one-hop expansion for entity items.
	Neighbors []graph.Neighbor
	// RecentCommits holds the latest commits touching an entity's file.
	RecentCommits []model.CommitRecord
}

func (it Item) timestamp() time.Time {
	switch {
	case it.Commit != nil:
		return it.Commit.Timestamp
	case it.Discussion != nil:
		return it.Discussion.CreatedAt
	}
	return time.Time{}
}

// Render flattens the item to the text form used for budget accounting and
// for feeding the answer engine.
func (it Item) Render() string {
	var b strings.Builder
	switch it.Kind {
	case ItemEntity:
		e := it.Entity
		fmt.Fprintf(&b, "[%s] %s (%s:%d-%d)\n", e.Kind, e.QualifiedName, e.Path, e.StartLine, e.EndLine)
		if e.Signature != "" {
			fmt.Fprintf(&b, "  %s\n", e.Signature)
		}
		if e.Docstring != "" {
			fmt.Fprintf(&b, "  %s\n", e.Docstring)
		}
		for _, n := range it.Neighbors {
			direction := "<-"
			if n.Outbound {
				direction = "->"
			}
			name := n.Edge.TargetName
			if n.Entity != nil {
				name = n.Entity.QualifiedName
			}
			fmt.Fprintf(&b, "  %s %s %s\n", direction, n.Edge.Kind, name)
		}
		for _, c := range it.RecentCommits {
			fmt.Fprintf(&b, "  commit %s %s: %s\n", shortHash(c.Hash), c.Timestamp.Format("2006-01-02"), firstLine(c.Message))
		}
	case ItemCommit:
		c := it.Commit
		fmt.Fprintf(&b, "[commit] %s %s %s\n  %s\n", shortHash(c.Hash), c.Timestamp.Format("2006-01-02"), c.Author, c.Message)
		for _, f := range c.Files {
			fmt.Fprintf(&b, "  %s %s (+%d -%d)\n", f.Type, f.Path, f.Additions, f.Deletions)
		}
	case ItemDiscussion:
		d := it.Discussion
		fmt.Fprintf(&b, "[%s #%s] %s\n", d.Source, d.ExternalID, d.Title)
		if d.Body != "" {
			fmt.Fprintf(&b, "  %s\n", d.Body)
		}
	}
	return b.String()
}

func shortHash(hash string) string {
	if len(hash) > 10 {
		return hash[:10]
	}
	return hash
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// Bundle is a budgeted, ranked context selection for one query.
type Bundle struct {
	Query  string
	Items  []Item
	Budget int // approximate token budget the bundle was packed against
	Used   int
	// Truncated is set when ranked items were dropped to honor the budget.
	Truncated bool
}

// Assembler builds context bundles from the store.
type Assembler struct {
	store  store.Store
	logger *slog.Logger

	// Budget is the approximate token budget per bundle. Zero means 4096.
	Budget int
	// MaxNeighbors bounds the one-hop expansion per entity. Zero means 8.
	MaxNeighbors int
	// MaxRecentCommits bounds per-entity commit context. Zero means 3.
	MaxRecentCommits int
	// MaxTimelineCommits bounds the file history in target bundles. Zero
	// means 10.
	MaxTimelineCommits int
}

// NewAssembler creates an assembler.
func NewAssembler(st store.Store, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		store:              st,
		logger:             logger,
		Budget:             4096,
		MaxNeighbors:       8,
		MaxRecentCommits:   3,
		MaxTimelineCommits: 10,
	}
}

// Assemble ranks everything in the store against the query, expands entity
// hits one hop, and packs the ranked list into the budget. Truncation is a
// hard cut after ranking: the best items always survive.
func (a *Assembler) Assemble(ctx context.Context, query string) (*Bundle, error) {
	tokens := Tokenize(query)
	bundle := &Bundle{Query: query, Budget: a.Budget}
	if bundle.Budget <= 0 {
		bundle.Budget = 4096
	}
	if len(tokens) == 0 {
		return bundle, nil
	}

	var items []Item

	entities, err := a.store.Entities(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entities {
		if e.Kind == model.KindModule {
			continue
		}
		score := ScoreEntity(e, tokens)
		if score <= 0 {
			continue
		}
		e := e
		items = append(items, Item{Kind: ItemEntity, Ref: e.ID, Score: score, Entity: &e})
	}

	commits, err := a.store.Commits(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range commits {
		score := ScoreCommit(c, tokens)
		if score <= 0 {
			continue
		}
		c := c
		items = append(items, Item{Kind: ItemCommit, Ref: "commit:" + c.Hash, Score: score, Commit: &c})
	}

	discussions, err := a.store.Discussions(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range discussions {
		links, err := a.store.LinksForDiscussion(ctx, d.Source, d.ExternalID)
		if err != nil {
			return nil, err
		}
		score := ScoreDiscussion(d, links, tokens)
		if score <= 0 {
			continue
		}
		d := d
		items = append(items, Item{Kind: ItemDiscussion, Ref: "disc:" + d.Key(), Score: score, Discussion: &d})
	}

	rankItems(items)

	// One-hop expansion for entity hits, done after ranking so expansion
	// cost never changes the order.
	for i := range items {
		if items[i].Kind != ItemEntity {
			continue
		}
		if err := a.expandEntity(ctx, &items[i]); err != nil {
			return nil, err
		}
	}

	// Hard budget cut. Cost is an approximation: one token per four bytes
	// of rendered text.
	for _, it := range items {
		cost := len(it.Render())/4 + 1
		if bundle.Used+cost > bundle.Budget {
			bundle.Truncated = true
			break
		}
		bundle.Used += cost
		bundle.Items = append(bundle.Items, it)
	}

	a.logger.Debug("assemble.done",
		"query", query,
		"candidates", len(items),
		"selected", len(bundle.Items),
		"used", bundle.Used,
		"truncated", bundle.Truncated,
	)
	return bundle, nil
}

// AssembleTarget builds a bundle anchored on one file instead of a lexical
// query. The given entities come first with their one-hop neighborhood,
// then the file's newest commits as a timeline, then every discussion
// linked to the file or to one of its entities. Linked discussions get in
// on the strength of their link alone; they do not need to share any
// vocabulary with the target.
func (a *Assembler) AssembleTarget(ctx context.Context, path string, entities []model.Entity) (*Bundle, error) {
	bundle := &Bundle{Query: path, Budget: a.Budget}
	if bundle.Budget <= 0 {
		bundle.Budget = 4096
	}

	var items []Item
	for _, e := range entities {
		e := e
		it := Item{Kind: ItemEntity, Ref: e.ID, Entity: &e}
		if err := a.expandEntity(ctx, &it); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	maxT := a.MaxTimelineCommits
	if maxT <= 0 {
		maxT = 10
	}
	timeline, err := a.store.CommitsForFile(ctx, path, maxT)
	if err != nil {
		return nil, err
	}
	for _, c := range timeline {
		c := c
		items = append(items, Item{Kind: ItemCommit, Ref: "commit:" + c.Hash, Commit: &c})
	}

	linked, err := a.linkedDiscussions(ctx, path, entities)
	if err != nil {
		return nil, err
	}
	items = append(items, linked...)

	for _, it := range items {
		cost := len(it.Render())/4 + 1
		if bundle.Used+cost > bundle.Budget {
			bundle.Truncated = true
			break
		}
		bundle.Used += cost
		bundle.Items = append(bundle.Items, it)
	}

	a.logger.Debug("assemble.target_done",
		"path", path,
		"entities", len(entities),
		"timeline", len(timeline),
		"discussions", len(linked),
		"selected", len(bundle.Items),
		"used", bundle.Used,
		"truncated", bundle.Truncated,
	)
	return bundle, nil
}

// linkedDiscussions resolves every discussion linked to the file or to one
// of its entities, deduplicated on the strongest basis and ordered
// strongest-basis first, newest first within a basis.
func (a *Assembler) linkedDiscussions(ctx context.Context, path string, entities []model.Entity) ([]Item, error) {
	type target struct {
		kind model.LinkTargetKind
		name string
	}
	targets := []target{{model.TargetFile, path}}
	for _, e := range entities {
		targets = append(targets, target{model.TargetEntity, e.ID})
	}

	best := make(map[string]float64)
	resolved := make(map[string]model.Discussion)
	for _, t := range targets {
		links, err := a.store.LinksForTarget(ctx, t.kind, t.name)
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			key := string(l.Source) + "/" + l.ExternalID
			w := l.Basis.Weight()
			if cur, ok := best[key]; ok {
				if w > cur {
					best[key] = w
				}
				continue
			}
			d, ok, err := a.store.Discussion(ctx, l.Source, l.ExternalID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			best[key] = w
			resolved[key] = d
		}
	}

	var items []Item
	for key, d := range resolved {
		d := d
		items = append(items, Item{Kind: ItemDiscussion, Ref: "disc:" + key, Score: best[key], Discussion: &d})
	}
	rankItems(items)
	return items, nil
}

func (a *Assembler) expandEntity(ctx context.Context, it *Item) error {
	neighbors, err := graph.Neighborhood(ctx, a.store, it.Entity.ID)
	if err != nil {
		return err
	}
	maxN := a.MaxNeighbors
	if maxN <= 0 {
		maxN = 8
	}
	if len(neighbors) > maxN {
		neighbors = neighbors[:maxN]
	}
	it.Neighbors = neighbors

	maxC := a.MaxRecentCommits
	if maxC <= 0 {
		maxC = 3
	}
	recent, err := a.store.CommitsForFile(ctx, it.Entity.Path, maxC)
	if err != nil {
		return err
	}
	it.RecentCommits = recent
	return nil
}
