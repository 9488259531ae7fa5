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

package ingestion

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/archintel/pkg/model"
)

// parseGo extracts entities from a Go source file.
//
// Produces:
//   - one module entity named after the package clause
//   - class entities for struct/interface type declarations
//   - function entities for top-level functions
//   - method entities (Receiver.Name) parented to their receiver's class
//     entity when it is declared in the same file
//
// Edge candidates: imports from the module entity, calls from function and
// method bodies, references for embedded types.
func (p *Parser) parseGo(root *sitter.Node, content []byte, path string) *ParseResult {
	modName := moduleNameFromPath(path)
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child.Type() == "package_clause" {
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				modName = nodeText(nameNode, content)
			} else if child.NamedChildCount() > 0 {
				modName = nodeText(child.NamedChild(0), content)
			}
			break
		}
	}

	module := newModuleEntity(path, modName, root)
	result := &ParseResult{Entities: []model.Entity{module}}

	// class name -> entity ID, for parenting methods to receiver types
	classIDs := make(map[string]string)
	var pendingDoc []string

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "comment":
			pendingDoc = append(pendingDoc, stripGoComment(nodeText(child, content)))
			continue
		case "import_declaration":
			p.extractGoImports(child, content, module.ID, result)
		case "type_declaration":
			p.extractGoTypes(child, content, path, module.ID, strings.Join(pendingDoc, "\n"), classIDs, result)
		case "function_declaration":
			p.extractGoFunction(child, content, path, module.ID, strings.Join(pendingDoc, "\n"), result)
		case "method_declaration":
			p.extractGoMethod(child, content, path, module.ID, strings.Join(pendingDoc, "\n"), result)
		}
		pendingDoc = nil
	}

	// Parent methods to their receiver's class entity when available.
	for i := range result.Entities {
		e := &result.Entities[i]
		if e.Kind != model.KindMethod {
			continue
		}
		if recv, _, found := strings.Cut(e.QualifiedName, "."); found {
			if classID, ok := classIDs[recv]; ok {
				e.ParentID = classID
			}
		}
	}

	return result
}

func (p *Parser) extractGoImports(node *sitter.Node, content []byte, moduleID string, result *ParseResult) {
	var specs []*sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import_spec":
			specs = append(specs, child)
		case "import_spec_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == "import_spec" {
					specs = append(specs, spec)
				}
			}
		}
	}
	for _, spec := range specs {
		pathNode := spec.ChildByFieldName("path")
		if pathNode == nil {
			continue
		}
		importPath := strings.Trim(nodeText(pathNode, content), `"`)
		result.Candidates = append(result.Candidates, EdgeCandidate{
			Kind:       model.EdgeImports,
			SourceID:   moduleID,
			TargetName: importPath,
			Line:       int(spec.StartPoint().Row) + 1,
		})
	}
}

func (p *Parser) extractGoTypes(node *sitter.Node, content []byte, path, moduleID, doc string, classIDs map[string]string, result *ParseResult) {
	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil || typeNode == nil {
			continue
		}
		name := nodeText(nameNode, content)

		entity := spanEntity(model.Entity{
			ID:            model.EntityID(path, name),
			Kind:          model.KindClass,
			Path:          path,
			Name:          name,
			QualifiedName: name,
			ParentID:      moduleID,
			Signature:     "type " + name + " " + typeNode.Type(),
			Docstring:     doc,
		}, spec)
		result.Entities = append(result.Entities, entity)
		classIDs[name] = entity.ID

		// Embedded types become reference candidates.
		for _, embedded := range goEmbeddedTypes(typeNode, content) {
			result.Candidates = append(result.Candidates, EdgeCandidate{
				Kind:       model.EdgeReferences,
				SourceID:   entity.ID,
				TargetName: embedded,
				Line:       entity.StartLine,
			})
		}
	}
}

// goEmbeddedTypes collects embedded field and interface names from a
// struct_type or interface_type node.
func goEmbeddedTypes(typeNode *sitter.Node, content []byte) []string {
	var names []string
	switch typeNode.Type() {
	case "struct_type":
		var walk func(n *sitter.Node)
		walk = func(n *sitter.Node) {
			if n.Type() == "field_declaration" {
				// Embedded fields have a type but no name child.
				if n.ChildByFieldName("name") == nil {
					if t := n.ChildByFieldName("type"); t != nil {
						names = append(names, strings.TrimPrefix(nodeText(t, content), "*"))
					}
				}
				return
			}
			for i := 0; i < int(n.ChildCount()); i++ {
				walk(n.Child(i))
			}
		}
		walk(typeNode)
	case "interface_type":
		for i := 0; i < int(typeNode.ChildCount()); i++ {
			child := typeNode.Child(i)
			if child.Type() == "type_identifier" || child.Type() == "qualified_type" {
				names = append(names, nodeText(child, content))
			}
		}
	}
	return names
}

func (p *Parser) extractGoFunction(node *sitter.Node, content []byte, path, moduleID, doc string, result *ParseResult) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	entity := spanEntity(model.Entity{
		ID:            model.EntityID(path, name),
		Kind:          model.KindFunction,
		Path:          path,
		Name:          name,
		QualifiedName: name,
		ParentID:      moduleID,
		Signature:     goSignature(node, content),
		Docstring:     doc,
	}, node)
	result.Entities = append(result.Entities, entity)

	p.extractGoCalls(node.ChildByFieldName("body"), content, entity.ID, result)
}

func (p *Parser) extractGoMethod(node *sitter.Node, content []byte, path, moduleID, doc string, result *ParseResult) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	receiver := ""
	if recvNode := node.ChildByFieldName("receiver"); recvNode != nil {
		receiver = goReceiverType(recvNode, content)
	}
	qualified := name
	if receiver != "" {
		qualified = receiver + "." + name
	}

	entity := spanEntity(model.Entity{
		ID:            model.EntityID(path, qualified),
		Kind:          model.KindMethod,
		Path:          path,
		Name:          name,
		QualifiedName: qualified,
		ParentID:      moduleID, // reparented to the class entity after the pass
		Signature:     goSignature(node, content),
		Docstring:     doc,
	}, node)
	result.Entities = append(result.Entities, entity)

	p.extractGoCalls(node.ChildByFieldName("body"), content, entity.ID, result)
}

// goSignature returns the declaration text up to the body.
func goSignature(node *sitter.Node, content []byte) string {
	body := node.ChildByFieldName("body")
	end := node.EndByte()
	if body != nil {
		end = body.StartByte()
	}
	return strings.TrimSpace(string(content[node.StartByte():end]))
}

// goReceiverType extracts the bare receiver type name, dropping pointer and
// generic decorations.
func goReceiverType(recvNode *sitter.Node, content []byte) string {
	var walk func(n *sitter.Node) string
	walk = func(n *sitter.Node) string {
		switch n.Type() {
		case "type_identifier":
			return nodeText(n, content)
		case "pointer_type", "generic_type", "parameter_declaration", "parameter_list":
			for i := 0; i < int(n.ChildCount()); i++ {
				if name := walk(n.Child(i)); name != "" {
					return name
				}
			}
		}
		return ""
	}
	return walk(recvNode)
}

func (p *Parser) extractGoCalls(body *sitter.Node, content []byte, sourceID string, result *ParseResult) {
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "call_expression" {
			if fn := n.ChildByFieldName("function"); fn != nil {
				if name := goCalleeName(fn, content); name != "" {
					result.Candidates = append(result.Candidates, EdgeCandidate{
						Kind:       model.EdgeCalls,
						SourceID:   sourceID,
						TargetName: name,
						Line:       int(n.StartPoint().Row) + 1,
					})
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
}

// goCalleeName renders the called expression as a dotted name, or "" for
// complex expressions (index chains, literals) that cannot name a target.
func goCalleeName(fn *sitter.Node, content []byte) string {
	switch fn.Type() {
	case "identifier":
		return nodeText(fn, content)
	case "selector_expression":
		operand := fn.ChildByFieldName("operand")
		field := fn.ChildByFieldName("field")
		if operand == nil || field == nil {
			return ""
		}
		left := goCalleeName(operand, content)
		if left == "" {
			return nodeText(field, content)
		}
		return left + "." + nodeText(field, content)
	}
	return ""
}

func stripGoComment(text string) string {
	text = strings.TrimPrefix(text, "//")
	text = strings.TrimPrefix(text, "/*")
	text = strings.TrimSuffix(text, "*/")
	return strings.TrimSpace(text)
}
