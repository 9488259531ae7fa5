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

package assemble

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kraklabs/archintel/pkg/model"
)

// Scoring weights. Name-level hits dominate prose hits so asking about a
// function by name surfaces the function before discussions that merely
// mention it.
const (
	scoreNameExact     = 10.0
	scoreNameSubstring = 6.0
	scoreSignatureHit  = 3.0
	scoreTitleHit      = 5.0
	scoreBodyHit       = 2.0
	scoreCommitHit     = 2.0
)

var tokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Tokenize lower-cases and splits a query into identifier-like tokens,
// dropping single-character noise.
func Tokenize(query string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(query), -1) {
		if len(tok) < 2 || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return tokens
}

// ScoreEntity rates an entity against query tokens: exact name match, name
// substring, then signature/docstring token hits.
func ScoreEntity(e model.Entity, tokens []string) float64 {
	name := strings.ToLower(e.Name)
	qualified := strings.ToLower(e.QualifiedName)
	haystack := strings.ToLower(e.Signature + " " + e.Docstring)

	var score float64
	for _, tok := range tokens {
		switch {
		case tok == name || tok == qualified:
			score += scoreNameExact
		case strings.Contains(name, tok) || strings.Contains(tok, name):
			score += scoreNameSubstring
		case strings.Contains(haystack, tok):
			score += scoreSignatureHit
		}
	}
	return score
}

// ScoreDiscussion rates a discussion: title hits outrank body hits, and the
// whole score is scaled by the discussion's strongest link basis. Unlinked
// discussions are dampened like keyword-linked ones.
func ScoreDiscussion(d model.Discussion, links []model.DiscussionLink, tokens []string) float64 {
	title := strings.ToLower(d.Title)
	body := strings.ToLower(d.Body)

	var score float64
	for _, tok := range tokens {
		switch {
		case strings.Contains(title, tok):
			score += scoreTitleHit
		case strings.Contains(body, tok):
			score += scoreBodyHit
		}
	}

	scale := model.BasisKeyword.Weight()
	for _, l := range links {
		if w := l.Basis.Weight(); w > scale {
			scale = w
		}
	}
	return score * scale
}

// ScoreCommit rates a commit by message token hits.
func ScoreCommit(c model.CommitRecord, tokens []string) float64 {
	message := strings.ToLower(c.Message)
	var score float64
	for _, tok := range tokens {
		if strings.Contains(message, tok) {
			score += scoreCommitHit
		}
	}
	return score
}

// rankItems orders items by score descending, ties broken by recency
// (newest first) and then lexicographic ref, so equal inputs always
// produce the same ordering.
func rankItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		ti, tj := items[i].timestamp(), items[j].timestamp()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return items[i].Ref < items[j].Ref
	})
}
