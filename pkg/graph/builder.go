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

// Package graph builds and incrementally maintains the dependency graph:
// parsing files in parallel, resolving bare-name references against the
// repository-wide entity set, and persisting the result per file.
package graph

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kraklabs/archintel/pkg/ingestion"
	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// ProgressFunc reports per-stage progress. stage is "parsing" or "resolving".
type ProgressFunc func(done, total int64, stage string)

// Builder orchestrates full and incremental graph construction.
type Builder struct {
	store  store.Store
	parser *ingestion.Parser
	loader *ingestion.Loader
	logger *slog.Logger

	// ParseWorkers bounds parser concurrency. Zero means 4.
	ParseWorkers int

	// Progress, when set, receives per-file progress during parsing.
	Progress ProgressFunc
}

// NewBuilder creates a builder over a store and repository loader.
func NewBuilder(st store.Store, loader *ingestion.Loader, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		store:        st,
		parser:       ingestion.NewParser(logger),
		loader:       loader,
		logger:       logger,
		ParseWorkers: 4,
	}
}

// Result summarizes one build or update run.
type Result struct {
	Files    int
	Entities int
	Edges    int
	External int

	// Summary counts files that parsed cleanly vs. files skipped or
	// degraded by syntax errors and read failures.
	Summary model.BatchSummary
}

// parsedFile is the per-file output of the parse stage.
type parsedFile struct {
	path   string
	result *ingestion.ParseResult
	err    error
}

// Build indexes the whole repository from scratch. Parsing runs on a worker
// pool; resolution is a single pass over the combined entity set. Each
// file's entities and edges are replaced atomically, so a cancelled run
// leaves previously indexed files intact.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() { buildDurationSeconds.Observe(time.Since(start).Seconds()) }()

	paths, err := b.loader.List()
	if err != nil {
		return nil, err
	}
	b.logger.Info("graph.build.start", "files", len(paths))

	// A full build also retires indexed files the repository no longer
	// has: stored paths absent from the listing are removed like
	// deletions, and edges into them flip to external.
	stored, err := b.store.Entities(ctx)
	if err != nil {
		return nil, err
	}
	listed := make(map[string]bool, len(paths))
	for _, p := range paths {
		listed[p] = true
	}
	seen := make(map[string]bool)
	var removed []string
	for _, e := range stored {
		if listed[e.Path] || seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		removed = append(removed, e.Path)
	}
	sort.Strings(removed)

	parsed := b.parseParallel(ctx, paths)
	return b.persist(ctx, parsed, removed)
}

// Update re-indexes only the given file changes. Deleted and renamed-away
// paths have their entities removed; edges elsewhere that pointed at removed
// entities are retargeted to external rather than dropped.
func (b *Builder) Update(ctx context.Context, changes []model.FileChange) (*Result, error) {
	start := time.Now()
	defer func() { buildDurationSeconds.Observe(time.Since(start).Seconds()) }()

	var toParse []string
	var toRemove []string
	for _, ch := range changes {
		switch ch.Type {
		case model.ChangeAdded, model.ChangeModified:
			if b.loader.Eligible(ch.Path) {
				toParse = append(toParse, ch.Path)
			}
		case model.ChangeDeleted:
			toRemove = append(toRemove, ch.Path)
		case model.ChangeRenamed:
			toRemove = append(toRemove, ch.OldPath)
			if b.loader.Eligible(ch.Path) {
				toParse = append(toParse, ch.Path)
			}
		}
	}
	sort.Strings(toParse)
	b.logger.Info("graph.update.start", "parse", len(toParse), "remove", len(toRemove))

	parsed := b.parseParallel(ctx, toParse)
	return b.persist(ctx, parsed, toRemove)
}

// parseParallel runs the parse stage over a worker pool. Results keep the
// input ordering so downstream output is deterministic.
func (b *Builder) parseParallel(ctx context.Context, paths []string) []parsedFile {
	results := make([]parsedFile, len(paths))
	if len(paths) == 0 {
		return results
	}

	workers := b.ParseWorkers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan int, len(paths))
	var progress int64
	total := int64(len(paths))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				path := paths[i]
				content, err := b.loader.Read(path)
				if err != nil {
					b.logger.Warn("graph.parse.read_error", "path", path, "err", err)
					results[i] = parsedFile{path: path, err: err}
				} else {
					results[i] = parsedFile{
						path:   path,
						result: b.parser.Parse(path, content, ingestion.DetectLanguage(path)),
					}
					filesParsedTotal.Inc()
				}

				done := atomic.AddInt64(&progress, 1)
				if b.Progress != nil {
					b.Progress(done, total, "parsing")
				}
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// persist resolves candidates against the union of surviving stored
// entities and freshly parsed ones, then writes per-file replacements and
// repairs edges elsewhere in the graph.
func (b *Builder) persist(ctx context.Context, parsed []parsedFile, removed []string) (*Result, error) {
	res := &Result{}

	touched := make(map[string]bool, len(parsed)+len(removed))
	for _, p := range parsed {
		touched[p.path] = true
	}
	for _, path := range removed {
		touched[path] = true
	}

	// Entity universe: everything in the store except touched files, plus
	// the new parse results.
	stored, err := b.store.Entities(ctx)
	if err != nil {
		return nil, err
	}
	var universe []model.Entity
	for _, e := range stored {
		if !touched[e.Path] {
			universe = append(universe, e)
		}
	}

	newEntities := make(map[string][]model.Entity, len(parsed))
	var allCandidates []ingestion.EdgeCandidate
	for _, p := range parsed {
		if p.err != nil {
			res.Summary.Add(p.path, p.err.Error())
			parseErrorsTotal.Inc()
			continue
		}
		if p.result.Err != nil {
			// Partial results still index; the file is reported degraded.
			res.Summary.Add(p.path, p.result.Err.Reason)
			parseErrorsTotal.Inc()
		} else {
			res.Summary.Succeeded++
		}
		newEntities[p.path] = p.result.Entities
		universe = append(universe, p.result.Entities...)
		allCandidates = append(allCandidates, p.result.Candidates...)
		res.Files++
		res.Entities += len(p.result.Entities)
	}

	resolver := NewResolver(universe)
	edges := resolver.Resolve(allCandidates)

	// Group edges by their owning file (the file of the source entity).
	entityPath := make(map[string]string, len(universe))
	for _, e := range universe {
		entityPath[e.ID] = e.Path
	}
	edgesByPath := make(map[string][]model.Edge, len(newEntities))
	for _, e := range edges {
		path := entityPath[e.SourceID]
		edgesByPath[path] = append(edgesByPath[path], e)
		if e.External() {
			res.External++
			edgesResolvedTotal.WithLabelValues("external").Inc()
		} else {
			edgesResolvedTotal.WithLabelValues("internal").Inc()
		}
		res.Edges++
	}

	// Atomic per-file replacement, removed files first.
	for _, path := range removed {
		if err := b.store.ReplaceFileData(ctx, path, nil, nil); err != nil {
			return nil, err
		}
	}
	for _, p := range parsed {
		entities, ok := newEntities[p.path]
		if !ok {
			continue
		}
		if err := b.store.ReplaceFileData(ctx, p.path, entities, edgesByPath[p.path]); err != nil {
			return nil, err
		}
	}

	if err := b.repairEdges(ctx, resolver, touched); err != nil {
		return nil, err
	}

	b.logger.Info("graph.persist.done",
		"files", res.Files,
		"entities", res.Entities,
		"edges", res.Edges,
		"external", res.External,
		"summary", res.Summary.String(),
	)
	return res, nil
}

// repairEdges fixes edges owned by untouched files after the entity set
// changed: dangling targets flip to external, and external edges whose
// target name now resolves get re-pointed at the concrete entity.
func (b *Builder) repairEdges(ctx context.Context, resolver *Resolver, touched map[string]bool) error {
	allEdges, err := b.store.Edges(ctx)
	if err != nil {
		return err
	}

	var retarget []model.Edge
	for _, e := range allEdges {
		source, ok, err := b.store.Entity(ctx, e.SourceID)
		if err != nil || !ok || touched[source.Path] {
			continue
		}

		if !e.External() {
			if _, found, err := b.store.Entity(ctx, e.TargetID); err == nil && !found {
				e.TargetID = model.ExternalTarget(e.TargetName)
				retarget = append(retarget, e)
				edgesResolvedTotal.WithLabelValues("external").Inc()
			}
			continue
		}

		// External edge: see if the name resolves now.
		candidate := ingestion.EdgeCandidate{
			Kind:       e.Kind,
			SourceID:   e.SourceID,
			TargetName: e.TargetName,
			Line:       e.Line,
		}
		reresolved := resolver.resolveReference(candidate)
		if e.Kind == model.EdgeImports {
			reresolved = resolver.resolveImport(candidate)
		}
		if !reresolved.External() && reresolved.TargetID != e.TargetID {
			retarget = append(retarget, reresolved)
			edgesResolvedTotal.WithLabelValues("internal").Inc()
		}
	}

	if len(retarget) == 0 {
		return nil
	}
	b.logger.Debug("graph.repair_edges", "retargeted", len(retarget))
	return b.store.RetargetEdges(ctx, retarget)
}

// Neighbor is one entity adjacent to an anchor entity, tagged with the
// connecting edge. External targets appear with a nil entity.
type Neighbor struct {
	Edge   model.Edge
	Entity *model.Entity // nil for external targets
	// Outbound is true when the anchor entity is the edge source.
	Outbound bool
}

// Neighborhood collects the one-hop neighborhood of an entity, ordered
// outbound then inbound, each sorted by (kind, line).
func Neighborhood(ctx context.Context, st store.Store, entityID string) ([]Neighbor, error) {
	out, err := st.EdgesFrom(ctx, entityID)
	if err != nil {
		return nil, err
	}
	in, err := st.EdgesTo(ctx, entityID)
	if err != nil {
		return nil, err
	}

	sortEdgeList(out)
	sortEdgeList(in)

	neighbors := make([]Neighbor, 0, len(out)+len(in))
	for _, e := range out {
		n := Neighbor{Edge: e, Outbound: true}
		if !e.External() {
			if target, ok, err := st.Entity(ctx, e.TargetID); err == nil && ok {
				n.Entity = &target
			}
		}
		neighbors = append(neighbors, n)
	}
	for _, e := range in {
		n := Neighbor{Edge: e}
		if source, ok, err := st.Entity(ctx, e.SourceID); err == nil && ok {
			n.Entity = &source
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, nil
}

func sortEdgeList(edges []model.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Kind != edges[j].Kind {
			return edges[i].Kind < edges[j].Kind
		}
		if edges[i].Line != edges[j].Line {
			return edges[i].Line < edges[j].Line
		}
		return strings.Compare(edges[i].TargetName, edges[j].TargetName) < 0
	})
}
