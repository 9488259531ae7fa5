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

// =============================================================================
// JAVASCRIPT / TYPESCRIPT PARSER
// =============================================================================

// parseJavaScript extracts entities from JavaScript or TypeScript source.
// Both grammars share node shapes for everything extracted here, so one
// walker covers both.
//
// Extracts:
//   - one module entity named after the file stem
//   - classes and TypeScript interfaces, with extends clauses as inherits
//     candidates
//   - function declarations and arrow/function expressions bound to const/let
//   - class methods (qualified "ClassName.method")
//   - imports and calls as edge candidates
func (p *Parser) parseJavaScript(root *sitter.Node, content []byte, path string) *ParseResult {
	module := newModuleEntity(path, moduleNameFromPath(path), root)
	result := &ParseResult{Entities: []model.Entity{module}}

	p.walkJSDefinitions(root, content, path, module.ID, "", result)
	return result
}

func (p *Parser) walkJSDefinitions(node *sitter.Node, content []byte, path, parentID, classPrefix string, result *ParseResult) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "import_statement":
		if srcNode := node.ChildByFieldName("source"); srcNode != nil {
			result.Candidates = append(result.Candidates, EdgeCandidate{
				Kind:       model.EdgeImports,
				SourceID:   result.Entities[0].ID,
				TargetName: strings.Trim(nodeText(srcNode, content), `'"`),
				Line:       int(node.StartPoint().Row) + 1,
			})
		}
		return

	case "export_statement":
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			p.walkJSDefinitions(decl, content, path, parentID, classPrefix, result)
		}
		return

	case "class_declaration", "interface_declaration":
		entity := p.extractJSClass(node, content, path, parentID, result)
		if entity == nil {
			return
		}
		if body := node.ChildByFieldName("body"); body != nil {
			p.walkJSDefinitions(body, content, path, entity.ID, entity.QualifiedName, result)
		}
		return

	case "function_declaration", "generator_function_declaration":
		p.extractJSFunction(node, content, path, parentID, result)
		return

	case "method_definition":
		p.extractJSMethod(node, content, path, parentID, classPrefix, result)
		return

	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() == "variable_declarator" {
				p.extractJSBoundFunction(child, content, path, parentID, result)
			}
		}
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkJSDefinitions(node.Child(i), content, path, parentID, classPrefix, result)
	}
}

func (p *Parser) extractJSClass(node *sitter.Node, content []byte, path, parentID string, result *ParseResult) *model.Entity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)

	keyword := "class"
	if node.Type() == "interface_declaration" {
		keyword = "interface"
	}

	entity := spanEntity(model.Entity{
		ID:            model.EntityID(path, name),
		Kind:          model.KindClass,
		Path:          path,
		Name:          name,
		QualifiedName: name,
		ParentID:      parentID,
		Signature:     keyword + " " + name,
	}, node)
	result.Entities = append(result.Entities, entity)

	for _, base := range jsHeritageNames(node, content) {
		result.Candidates = append(result.Candidates, EdgeCandidate{
			Kind:       model.EdgeInherits,
			SourceID:   entity.ID,
			TargetName: base,
			Line:       entity.StartLine,
		})
	}
	return &entity
}

// jsHeritageNames collects extends targets from class_heritage (JS) and
// extends_clause / extends_type_clause (TS) children.
func jsHeritageNames(node *sitter.Node, content []byte) []string {
	var names []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_heritage", "extends_clause", "extends_type_clause":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				switch child.Type() {
				case "identifier", "member_expression", "type_identifier", "nested_type_identifier", "generic_type":
					name := nodeText(child, content)
					if idx := strings.IndexByte(name, '<'); idx > 0 {
						name = name[:idx]
					}
					names = append(names, name)
				}
			}
		default:
			for i := 0; i < int(n.ChildCount()); i++ {
				walk(n.Child(i))
			}
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "class_body" && child.Type() != "interface_body" && child.Type() != "object_type" {
			walk(child)
		}
	}
	return names
}

func (p *Parser) extractJSFunction(node *sitter.Node, content []byte, path, parentID string, result *ParseResult) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	var params string
	if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
		params = nodeText(paramsNode, content)
	}

	entity := spanEntity(model.Entity{
		ID:            model.EntityID(path, name),
		Kind:          model.KindFunction,
		Path:          path,
		Name:          name,
		QualifiedName: name,
		ParentID:      parentID,
		Signature:     "function " + name + params,
	}, node)
	result.Entities = append(result.Entities, entity)

	p.extractJSCalls(node.ChildByFieldName("body"), content, entity.ID, result)
}

func (p *Parser) extractJSMethod(node *sitter.Node, content []byte, path, parentID, classPrefix string, result *ParseResult) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	qualified := name
	if classPrefix != "" {
		qualified = classPrefix + "." + name
	}

	var params string
	if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
		params = nodeText(paramsNode, content)
	}

	entity := spanEntity(model.Entity{
		ID:            model.EntityID(path, qualified),
		Kind:          model.KindMethod,
		Path:          path,
		Name:          name,
		QualifiedName: qualified,
		ParentID:      parentID,
		Signature:     name + params,
	}, node)
	result.Entities = append(result.Entities, entity)

	p.extractJSCalls(node.ChildByFieldName("body"), content, entity.ID, result)
}

// extractJSBoundFunction handles `const f = () => ...` and
// `const f = function(...) {...}` declarators.
func (p *Parser) extractJSBoundFunction(declarator *sitter.Node, content []byte, path, parentID string, result *ParseResult) {
	nameNode := declarator.ChildByFieldName("name")
	valueNode := declarator.ChildByFieldName("value")
	if nameNode == nil || valueNode == nil {
		return
	}
	switch valueNode.Type() {
	case "arrow_function", "function_expression", "function", "generator_function":
	default:
		return
	}
	name := nodeText(nameNode, content)

	var params string
	if paramsNode := valueNode.ChildByFieldName("parameters"); paramsNode != nil {
		params = nodeText(paramsNode, content)
	} else if paramNode := valueNode.ChildByFieldName("parameter"); paramNode != nil {
		params = "(" + nodeText(paramNode, content) + ")"
	}

	entity := spanEntity(model.Entity{
		ID:            model.EntityID(path, name),
		Kind:          model.KindFunction,
		Path:          path,
		Name:          name,
		QualifiedName: name,
		ParentID:      parentID,
		Signature:     "const " + name + " = " + params + " => ...",
	}, declarator)
	result.Entities = append(result.Entities, entity)

	p.extractJSCalls(valueNode.ChildByFieldName("body"), content, entity.ID, result)
}

func (p *Parser) extractJSCalls(body *sitter.Node, content []byte, sourceID string, result *ParseResult) {
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration", "method_definition", "class_declaration":
			return
		}
		if n.Type() == "call_expression" {
			if fn := n.ChildByFieldName("function"); fn != nil {
				if name := jsCalleeName(fn, content); name != "" {
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

// jsCalleeName renders the called expression as a dotted name.
func jsCalleeName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier":
		return nodeText(node, content)
	case "member_expression":
		objNode := node.ChildByFieldName("object")
		propNode := node.ChildByFieldName("property")
		if propNode == nil {
			return ""
		}
		prop := nodeText(propNode, content)
		if objNode == nil {
			return prop
		}
		if objNode.Type() == "this" {
			return "this." + prop
		}
		if left := jsCalleeName(objNode, content); left != "" {
			return left + "." + prop
		}
		return prop
	}
	return ""
}
