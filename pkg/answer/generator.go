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

// Package answer turns assembled context bundles into grounded answers,
// documentation, and rationale reports. A generation backend is optional:
// when it is absent or failing, answers degrade to extractive summaries of
// the same context instead of failing outright.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/archintel/pkg/assemble"
)

// Generator produces prose from a prompt. Implementations must be safe for
// concurrent use.
type Generator interface {
	// Generate returns the completion for the prompt, or an error that the
	// engine maps to degraded extractive output.
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// buildPrompt renders the bundle into a prompt that forbids claims beyond
// the supplied context. Each item is tagged with its citation ref so the
// backend can cite what it used.
func buildPrompt(task string, bundle *assemble.Bundle) string {
	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nUse ONLY the context below. If the context does not answer the question, say so. Cite items by their [ref] tag.\n\n")
	for _, it := range bundle.Items {
		fmt.Fprintf(&b, "[ref:%s]\n%s\n", it.Ref, it.Render())
	}
	return b.String()
}

const systemPrompt = "You are a code archaeology assistant. You answer questions about a codebase strictly from the provided context: entities, dependency edges, commit history, and linked discussions. Never invent files, functions, commits, or discussions that are not in the context."
