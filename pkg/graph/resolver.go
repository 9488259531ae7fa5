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
	"sort"
	"strings"

	"github.com/kraklabs/archintel/pkg/ingestion"
	"github.com/kraklabs/archintel/pkg/model"
)

// Resolver turns bare-name edge candidates into edges against the
// repository-wide entity set.
//
// Resolution precedence for calls, inherits, and references:
//  1. an entity in the same file (qualified name first, then simple name)
//  2. an entity in a file whose module the source file imports
//  3. best-effort repo-wide match by name
//
// Unresolvable names become external edges ("ext:" targets) rather than
// being dropped, so the reference site survives for later re-resolution.
// Ties at any step go to the lexicographically smallest (path, qualified
// name) candidate, which keeps resolution deterministic across runs.
type Resolver struct {
	byID        map[string]model.Entity
	byPath      map[string][]model.Entity
	byName      map[string][]model.Entity
	byQualified map[string][]model.Entity

	// modulesByName: module entity name -> module entities carrying it
	modulesByName map[string][]model.Entity

	// importedPaths: source file path -> paths of files whose module it
	// imports. Populated while resolving import candidates, so import
	// resolution must run before call resolution.
	importedPaths map[string][]string

	// importedModuleByAlias: source file path -> local module name -> path
	importedModuleByAlias map[string]map[string]string
}

// NewResolver indexes the full entity set.
func NewResolver(entities []model.Entity) *Resolver {
	r := &Resolver{
		byID:                  make(map[string]model.Entity, len(entities)),
		byPath:                make(map[string][]model.Entity),
		byName:                make(map[string][]model.Entity),
		byQualified:           make(map[string][]model.Entity),
		modulesByName:         make(map[string][]model.Entity),
		importedPaths:         make(map[string][]string),
		importedModuleByAlias: make(map[string]map[string]string),
	}
	for _, e := range entities {
		r.byID[e.ID] = e
		r.byPath[e.Path] = append(r.byPath[e.Path], e)
		r.byName[e.Name] = append(r.byName[e.Name], e)
		r.byQualified[e.QualifiedName] = append(r.byQualified[e.QualifiedName], e)
		if e.Kind == model.KindModule {
			r.modulesByName[e.Name] = append(r.modulesByName[e.Name], e)
		}
	}
	for _, m := range []map[string][]model.Entity{r.byPath, r.byName, r.byQualified, r.modulesByName} {
		for _, list := range m {
			sortEntities(list)
		}
	}
	return r
}

func sortEntities(list []model.Entity) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Path != list[j].Path {
			return list[i].Path < list[j].Path
		}
		return list[i].QualifiedName < list[j].QualifiedName
	})
}

// Resolve converts candidates into edges. Import candidates are resolved
// first so that import targets inform call resolution.
func (r *Resolver) Resolve(candidates []ingestion.EdgeCandidate) []model.Edge {
	edges := make([]model.Edge, 0, len(candidates))
	seen := make(map[edgeKey]bool, len(candidates))

	appendEdge := func(e model.Edge) {
		k := edgeKey{e.SourceID, e.Kind, e.TargetName, e.Line}
		if seen[k] {
			return
		}
		seen[k] = true
		edges = append(edges, e)
	}

	for _, c := range candidates {
		if c.Kind == model.EdgeImports {
			appendEdge(r.resolveImport(c))
		}
	}
	for _, c := range candidates {
		if c.Kind != model.EdgeImports {
			appendEdge(r.resolveReference(c))
		}
	}
	return edges
}

type edgeKey struct {
	sourceID string
	kind     model.EdgeKind
	target   string
	line     int
}

// resolveImport matches an import string against module entities. The match
// compares the normalized import path against each module file's
// extension-less path suffix, falling back to a bare module-name match.
func (r *Resolver) resolveImport(c ingestion.EdgeCandidate) model.Edge {
	source, ok := r.byID[c.SourceID]
	edge := model.Edge{
		Kind:       model.EdgeImports,
		SourceID:   c.SourceID,
		TargetName: c.TargetName,
		Line:       c.Line,
	}
	if !ok {
		edge.TargetID = model.ExternalTarget(c.TargetName)
		return edge
	}

	segments := importSegments(c.TargetName)
	if len(segments) == 0 {
		edge.TargetID = model.ExternalTarget(c.TargetName)
		return edge
	}
	localName := segments[len(segments)-1]

	var target *model.Entity
	if mods, ok := r.modulesByName[localName]; ok {
		best := -1
		bestScore := -1
		for i, mod := range mods {
			if mod.Path == source.Path {
				continue
			}
			score := pathSuffixScore(mod.Path, segments)
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best >= 0 {
			target = &mods[best]
		}
	}

	if target == nil {
		edge.TargetID = model.ExternalTarget(c.TargetName)
		return edge
	}

	edge.TargetID = target.ID
	r.importedPaths[source.Path] = append(r.importedPaths[source.Path], target.Path)
	aliases := r.importedModuleByAlias[source.Path]
	if aliases == nil {
		aliases = make(map[string]string)
		r.importedModuleByAlias[source.Path] = aliases
	}
	aliases[localName] = target.Path
	return edge
}

// importSegments normalizes an import string ("app.auth", "./db",
// "github.com/x/y") to its path segments.
func importSegments(name string) []string {
	name = strings.TrimPrefix(name, "./")
	name = strings.ReplaceAll(name, ".", "/")
	var segments []string
	for _, s := range strings.Split(name, "/") {
		if s != "" && s != "." && s != ".." {
			segments = append(segments, s)
		}
	}
	return segments
}

// pathSuffixScore counts how many trailing import segments line up with the
// module file's extension-less path.
func pathSuffixScore(path string, segments []string) int {
	ext := ""
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		ext = path[idx:]
	}
	parts := strings.Split(strings.TrimSuffix(path, ext), "/")
	score := 0
	for i := 0; i < len(segments) && i < len(parts); i++ {
		if segments[len(segments)-1-i] != parts[len(parts)-1-i] {
			break
		}
		score++
	}
	return score
}

// resolveReference resolves calls, inherits, and references candidates.
func (r *Resolver) resolveReference(c ingestion.EdgeCandidate) model.Edge {
	edge := model.Edge{
		Kind:       c.Kind,
		SourceID:   c.SourceID,
		TargetName: c.TargetName,
		Line:       c.Line,
	}

	source, ok := r.byID[c.SourceID]
	if !ok {
		edge.TargetID = model.ExternalTarget(c.TargetName)
		return edge
	}

	simple := c.TargetName
	var qualifierPrefix string
	if idx := strings.LastIndexByte(c.TargetName, '.'); idx >= 0 {
		qualifierPrefix = c.TargetName[:idx]
		simple = c.TargetName[idx+1:]
	}

	// 1. Same file, qualified then simple name.
	if target := r.pickInPath(source.Path, c.TargetName, c.SourceID); target != nil {
		edge.TargetID = target.ID
		return edge
	}
	if target := r.pickInPathByName(source.Path, simple, c.SourceID); target != nil {
		edge.TargetID = target.ID
		return edge
	}

	// 2. Imported modules. A qualifier naming an imported module narrows the
	// search to that module's file.
	if qualifierPrefix != "" {
		if aliases, ok := r.importedModuleByAlias[source.Path]; ok {
			if path, ok := aliases[firstSegment(qualifierPrefix)]; ok {
				if target := r.pickInPathByName(path, simple, c.SourceID); target != nil {
					edge.TargetID = target.ID
					return edge
				}
			}
		}
	}
	for _, path := range r.importedPaths[source.Path] {
		if target := r.pickInPathByName(path, simple, c.SourceID); target != nil {
			edge.TargetID = target.ID
			return edge
		}
	}

	// 3. Repo-wide best effort: qualified match first ("Class.method"),
	// then simple name, smallest (path, qualified name) wins.
	if list := r.byQualified[c.TargetName]; len(list) > 0 {
		if target := firstOther(list, c.SourceID); target != nil {
			edge.TargetID = target.ID
			return edge
		}
	}
	if list := r.byName[simple]; len(list) > 0 {
		if target := firstOther(list, c.SourceID); target != nil {
			edge.TargetID = target.ID
			return edge
		}
	}

	edge.TargetID = model.ExternalTarget(c.TargetName)
	return edge
}

func firstSegment(name string) string {
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[:idx]
	}
	return name
}

// firstOther returns the first entity in a sorted list that is not the
// source itself and not a module entity (modules are only import targets).
func firstOther(list []model.Entity, sourceID string) *model.Entity {
	for i := range list {
		if list[i].ID == sourceID || list[i].Kind == model.KindModule {
			continue
		}
		return &list[i]
	}
	return nil
}

func (r *Resolver) pickInPath(path, qualifiedName, sourceID string) *model.Entity {
	for i, e := range r.byPath[path] {
		if e.QualifiedName == qualifiedName && e.ID != sourceID && e.Kind != model.KindModule {
			return &r.byPath[path][i]
		}
	}
	return nil
}

func (r *Resolver) pickInPathByName(path, name, sourceID string) *model.Entity {
	for i, e := range r.byPath[path] {
		if e.Name == name && e.ID != sourceID && e.Kind != model.KindModule {
			return &r.byPath[path][i]
		}
	}
	return nil
}
