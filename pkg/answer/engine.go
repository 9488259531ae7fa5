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

package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kraklabs/archintel/pkg/assemble"
	"github.com/kraklabs/archintel/pkg/model"
	"github.com/kraklabs/archintel/pkg/store"
)

// Citation points at one context item an answer is grounded on. Refs come
// from the bundle, never from generated text, so an answer can only cite
// context that actually existed.
type Citation struct {
	Ref         string
	Description string
}

// Answer is the result of one engine operation.
type Answer struct {
	RunID     string
	Question  string
	Text      string
	NoContext bool // nothing in the index matched the question
	Citations []Citation

	// Degraded is set when the generation backend was unavailable and the
	// text is an extractive summary of the context instead of prose.
	Degraded       bool
	DegradedReason string
}

// Engine answers questions, documents code, and reconstructs rationale
// from the assembled context.
type Engine struct {
	store     store.Store
	assembler *assemble.Assembler
	generator Generator
	logger    *slog.Logger
}

// NewEngine creates an engine. generator may be nil, in which case every
// answer is extractive.
func NewEngine(st store.Store, assembler *assemble.Assembler, generator Generator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, assembler: assembler, generator: generator, logger: logger}
}

// Ask answers a free-form question about the codebase.
func (e *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	bundle, err := e.assembler.Assemble(ctx, question)
	if err != nil {
		return nil, err
	}
	task := "Answer this question about the codebase: " + question
	return e.complete(ctx, question, task, bundle)
}

// Document produces documentation for a file or a single entity. The
// target is a file path, optionally narrowed to one entity by qualified
// name ("app/auth.py:authenticate_user"). The bundle is anchored on the
// target itself, so its history and linked discussions surface even when
// they never mention it by name.
func (e *Engine) Document(ctx context.Context, target string) (*Answer, error) {
	path, entities, err := e.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	bundle, err := e.assembler.AssembleTarget(ctx, path, entities)
	if err != nil {
		return nil, err
	}

	task := "Write reference documentation for " + target + ": purpose, structure, dependencies, and notable history."
	return e.complete(ctx, target, task, bundle)
}

// resolveTarget interprets target as "path" or "path:qualifiedName" against
// the index.
func (e *Engine) resolveTarget(ctx context.Context, target string) (string, []model.Entity, error) {
	path, qualifiedName, _ := strings.Cut(target, ":")

	entities, err := e.store.EntitiesByPath(ctx, path)
	if err != nil {
		return "", nil, err
	}
	if len(entities) == 0 {
		return "", nil, fmt.Errorf("nothing indexed at %q", path)
	}
	if qualifiedName == "" {
		return path, entities, nil
	}
	var narrowed []model.Entity
	for _, ent := range entities {
		if ent.QualifiedName == qualifiedName {
			narrowed = append(narrowed, ent)
		}
	}
	if len(narrowed) == 0 {
		return "", nil, fmt.Errorf("no entity %q in %s", qualifiedName, path)
	}
	return path, narrowed, nil
}

// Rationale reconstructs why a piece of code exists: the commits that
// shaped it and the discussions around them.
func (e *Engine) Rationale(ctx context.Context, target string) (*Answer, error) {
	// A target naming an indexed file gets the anchored bundle; anything
	// else is treated as a free-text query.
	var bundle *assemble.Bundle
	if path, entities, rerr := e.resolveTarget(ctx, target); rerr == nil {
		var err error
		bundle, err = e.assembler.AssembleTarget(ctx, path, entities)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		bundle, err = e.assembler.Assemble(ctx, target)
		if err != nil {
			return nil, err
		}
	}

	// Rationale privileges history over structure: keep commit and
	// discussion items, drop entities beyond the first few anchors.
	var filtered []assemble.Item
	anchors := 0
	for _, it := range bundle.Items {
		if it.Kind == assemble.ItemEntity {
			if anchors >= 2 {
				continue
			}
			anchors++
		}
		filtered = append(filtered, it)
	}
	bundle.Items = filtered

	task := "Explain why " + target + " exists and how it came to its current shape, based on the commit history and discussions."
	return e.complete(ctx, target, task, bundle)
}

// complete runs generation over the bundle, degrading to an extractive
// summary when the backend fails.
func (e *Engine) complete(ctx context.Context, question, task string, bundle *assemble.Bundle) (*Answer, error) {
	ans := &Answer{
		RunID:    uuid.NewString(),
		Question: question,
	}
	for _, it := range bundle.Items {
		ans.Citations = append(ans.Citations, Citation{Ref: it.Ref, Description: describeItem(it)})
	}

	if len(bundle.Items) == 0 {
		ans.NoContext = true
		ans.Text = "No indexed context matches this question. Try `archintel index` and `archintel history` first, or rephrase."
		return ans, nil
	}

	if e.generator == nil {
		ans.Degraded = true
		ans.DegradedReason = "no generation backend configured"
		ans.Text = extractiveAnswer(task, bundle)
		return ans, nil
	}

	text, err := e.generator.Generate(ctx, systemPrompt, buildPrompt(task, bundle))
	if err != nil {
		var backendErr *model.GenerationBackendError
		if errors.As(err, &backendErr) || errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn("answer.backend_degraded", "run_id", ans.RunID, "err", err)
			ans.Degraded = true
			ans.DegradedReason = err.Error()
			ans.Text = extractiveAnswer(task, bundle)
			return ans, nil
		}
		return nil, err
	}

	ans.Text = text
	return ans, nil
}

func describeItem(it assemble.Item) string {
	switch it.Kind {
	case assemble.ItemEntity:
		return fmt.Sprintf("%s %s at %s:%d", it.Entity.Kind, it.Entity.QualifiedName, it.Entity.Path, it.Entity.StartLine)
	case assemble.ItemCommit:
		return fmt.Sprintf("commit %.10s by %s", it.Commit.Hash, it.Commit.Author)
	case assemble.ItemDiscussion:
		return fmt.Sprintf("%s #%s: %s", it.Discussion.Source, it.Discussion.ExternalID, it.Discussion.Title)
	}
	return ""
}

// extractiveAnswer renders the ranked context directly. No generation, no
// claims beyond what the store holds.
func extractiveAnswer(task string, bundle *assemble.Bundle) string {
	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nGeneration backend unavailable; showing the ranked context instead:\n\n")
	for _, it := range bundle.Items {
		fmt.Fprintf(&b, "--- [%s]\n%s\n", it.Ref, it.Render())
	}
	return b.String()
}
