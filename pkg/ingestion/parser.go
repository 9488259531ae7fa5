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

// Package ingestion turns source files into ordered entity sequences and
// unresolved edge candidates using Tree-sitter.
//
// Supported languages: Go, Python, JavaScript, TypeScript. Unsupported
// languages yield an empty result, not an error; callers treat such files as
// opaque blobs that still participate in history and discussion linking.
package ingestion

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/archintel/pkg/model"
)

// EdgeCandidate is an intra-file edge whose target is still a bare name.
// Resolution against the whole-repository entity set happens in pkg/graph.
type EdgeCandidate struct {
	Kind       model.EdgeKind
	SourceID   string // Entity ID of the referencing entity
	TargetName string // Name as written at the reference site
	Line       int
}

// ParseResult holds everything extracted from one file. Entities appear in
// declaration order with the module entity first; nested entities carry a
// ParentID back to their enclosing class or module.
type ParseResult struct {
	Entities   []model.Entity
	Candidates []EdgeCandidate

	// Err is set when the file contained syntax errors. Entities extracted
	// before (and around) the error are still present: partial results beat
	// total failure, and the caller surfaces "analysis unavailable" status.
	Err *model.ParseError
}

// DetectLanguage maps a file path to a language tag, or "" when the
// extension is not supported.
func DetectLanguage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	}
	return ""
}

// Parser extracts entities and edge candidates from source files. It is safe
// for concurrent use; Tree-sitter parser instances are pooled per language
// because they are not thread-safe themselves.
type Parser struct {
	logger *slog.Logger

	goPool     sync.Pool
	pyPool     sync.Pool
	jsPool     sync.Pool
	tsPool     sync.Pool
	parserInit sync.Once
}

// NewParser creates a new parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func (p *Parser) initParsers() {
	p.parserInit.Do(func() {
		p.goPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(golang.GetLanguage())
			return parser
		}
		p.pyPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(python.GetLanguage())
			return parser
		}
		p.jsPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(javascript.GetLanguage())
			return parser
		}
		p.tsPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(typescript.GetLanguage())
			return parser
		}
	})
}

// Parse extracts the ordered entity sequence and unresolved edge candidates
// from one file. The language tag is normally chosen via DetectLanguage but
// callers may pass an explicit hint.
func (p *Parser) Parse(path string, content []byte, language string) *ParseResult {
	p.initParsers()

	var pool *sync.Pool
	switch language {
	case "go":
		pool = &p.goPool
	case "python":
		pool = &p.pyPool
	case "javascript":
		pool = &p.jsPool
	case "typescript":
		pool = &p.tsPool
	default:
		p.logger.Debug("parser.skip_unsupported_language", "path", path, "language", language)
		return &ParseResult{}
	}

	parser, ok := pool.Get().(*sitter.Parser)
	if !ok {
		return &ParseResult{Err: &model.ParseError{Path: path, Reason: "parser pool corrupted"}}
	}
	defer pool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return &ParseResult{Err: &model.ParseError{Path: path, Reason: err.Error()}}
	}
	defer tree.Close()

	root := tree.RootNode()

	var result *ParseResult
	switch language {
	case "go":
		result = p.parseGo(root, content, path)
	case "python":
		result = p.parsePython(root, content, path)
	case "javascript", "typescript":
		result = p.parseJavaScript(root, content, path)
	}

	if root.HasError() {
		if n := countErrors(root); n > 0 {
			p.logger.Warn("parser.syntax_errors", "path", path, "language", language, "error_count", n)
			result.Err = &model.ParseError{Path: path, Reason: "syntax errors in source"}
		}
	}
	result.Entities = dedupeEntities(result.Entities)
	return result
}

// dedupeEntities collapses redefinitions of the same qualified name within
// one file. The last definition wins, matching redefinition semantics in
// the supported languages, and takes its own position in declaration
// order. Edge candidates keep pointing at the shared ID.
func dedupeEntities(entities []model.Entity) []model.Entity {
	last := make(map[string]int, len(entities))
	duplicated := false
	for i, e := range entities {
		if _, ok := last[e.ID]; ok {
			duplicated = true
		}
		last[e.ID] = i
	}
	if !duplicated {
		return entities
	}
	out := entities[:0]
	for i, e := range entities {
		if last[e.ID] == i {
			out = append(out, e)
		}
	}
	return out
}

// countErrors counts ERROR nodes in the AST.
func countErrors(node *sitter.Node) int {
	count := 0
	if node.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

// moduleNameFromPath derives the module entity name from the file path (the
// Go parser overrides this with the package clause when present).
func moduleNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// newModuleEntity builds the file-level module entity that anchors every
// other entity in the file.
func newModuleEntity(path, name string, root *sitter.Node) model.Entity {
	return model.Entity{
		ID:            model.EntityID(path, name),
		Kind:          model.KindModule,
		Path:          path,
		Name:          name,
		QualifiedName: name,
		StartLine:     int(root.StartPoint().Row) + 1,
		EndLine:       int(root.EndPoint().Row) + 1,
		StartCol:      1,
		EndCol:        1,
	}
}

// spanEntity fills the positional fields of an entity from a node.
func spanEntity(e model.Entity, node *sitter.Node) model.Entity {
	e.StartLine = int(node.StartPoint().Row) + 1
	e.EndLine = int(node.EndPoint().Row) + 1
	e.StartCol = int(node.StartPoint().Column) + 1
	e.EndCol = int(node.EndPoint().Column) + 1
	return e
}
