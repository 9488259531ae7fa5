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
// PYTHON PARSER
// =============================================================================

// parsePython extracts entities from Python source.
//
// Extracts:
//   - one module entity named after the file stem
//   - classes (class definitions), with base classes as inherits candidates
//   - functions (def statements)
//   - methods (functions within classes, qualified "ClassName.method")
//   - imports and function calls as edge candidates
//
// Docstrings come from the first string expression in a definition body.
func (p *Parser) parsePython(root *sitter.Node, content []byte, path string) *ParseResult {
	module := newModuleEntity(path, moduleNameFromPath(path), root)
	if doc := pythonDocstring(root, content); doc != "" {
		module.Docstring = doc
	}
	result := &ParseResult{Entities: []model.Entity{module}}

	p.walkPythonDefinitions(root, content, path, module.ID, "", result)
	return result
}

// walkPythonDefinitions recursively walks the AST collecting definitions and
// edge candidates. classPrefix carries the enclosing class name so methods
// get qualified names; parentID is the entity the next definition belongs to.
func (p *Parser) walkPythonDefinitions(node *sitter.Node, content []byte, path, parentID, classPrefix string, result *ParseResult) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "import_statement", "import_from_statement":
		p.extractPythonImport(node, content, result.Entities[0].ID, result)
		return

	case "class_definition":
		entity := p.extractPythonClass(node, content, path, parentID, classPrefix, result)
		if entity == nil {
			return
		}
		// Walk the class body with the class as parent.
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() == "block" {
				p.walkPythonDefinitions(child, content, path, entity.ID, entity.QualifiedName, result)
			}
		}
		return

	case "function_definition":
		entity := p.extractPythonFunction(node, content, path, parentID, classPrefix)
		if entity != nil {
			result.Entities = append(result.Entities, *entity)
			p.extractPythonCalls(node.ChildByFieldName("body"), content, entity.ID, result)
		}
		return

	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			p.walkPythonDefinitions(def, content, path, parentID, classPrefix, result)
		}
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkPythonDefinitions(node.Child(i), content, path, parentID, classPrefix, result)
	}
}

// extractPythonImport records an imports candidate per imported module name.
func (p *Parser) extractPythonImport(node *sitter.Node, content []byte, moduleID string, result *ParseResult) {
	line := int(node.StartPoint().Row) + 1

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		result.Candidates = append(result.Candidates, EdgeCandidate{
			Kind:       model.EdgeImports,
			SourceID:   moduleID,
			TargetName: name,
			Line:       line,
		})
	}

	if node.Type() == "import_from_statement" {
		if modNode := node.ChildByFieldName("module_name"); modNode != nil {
			add(nodeText(modNode, content))
		}
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			add(nodeText(child, content))
		case "aliased_import":
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				add(nodeText(nameNode, content))
			}
		}
	}
}

// extractPythonClass extracts a class definition and its base-class inherits
// candidates, returning the entity for body walking.
func (p *Parser) extractPythonClass(node *sitter.Node, content []byte, path, parentID, classPrefix string, result *ParseResult) *model.Entity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	qualified := name
	if classPrefix != "" {
		qualified = classPrefix + "." + name
	}

	signature := "class " + name
	var bases []string
	if superNode := node.ChildByFieldName("superclasses"); superNode != nil {
		signature += nodeText(superNode, content)
		for i := 0; i < int(superNode.ChildCount()); i++ {
			child := superNode.Child(i)
			switch child.Type() {
			case "identifier", "attribute":
				bases = append(bases, nodeText(child, content))
			}
		}
	}

	entity := spanEntity(model.Entity{
		ID:            model.EntityID(path, qualified),
		Kind:          model.KindClass,
		Path:          path,
		Name:          name,
		QualifiedName: qualified,
		ParentID:      parentID,
		Signature:     signature,
		Docstring:     pythonBodyDocstring(node, content),
	}, node)
	result.Entities = append(result.Entities, entity)

	for _, base := range bases {
		result.Candidates = append(result.Candidates, EdgeCandidate{
			Kind:       model.EdgeInherits,
			SourceID:   entity.ID,
			TargetName: base,
			Line:       entity.StartLine,
		})
	}
	return &entity
}

// extractPythonFunction extracts a function or method definition.
func (p *Parser) extractPythonFunction(node *sitter.Node, content []byte, path, parentID, classPrefix string) *model.Entity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)

	kind := model.KindFunction
	qualified := name
	if classPrefix != "" {
		kind = model.KindMethod
		qualified = classPrefix + "." + name
	}

	var params string
	if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
		params = nodeText(paramsNode, content)
	}
	signature := "def " + name + params
	if returnNode := node.ChildByFieldName("return_type"); returnNode != nil {
		signature += " -> " + nodeText(returnNode, content)
	}

	entity := spanEntity(model.Entity{
		ID:            model.EntityID(path, qualified),
		Kind:          kind,
		Path:          path,
		Name:          name,
		QualifiedName: qualified,
		ParentID:      parentID,
		Signature:     signature,
		Docstring:     pythonBodyDocstring(node, content),
	}, node)
	return &entity
}

// extractPythonCalls finds call expressions within a function body.
func (p *Parser) extractPythonCalls(body *sitter.Node, content []byte, sourceID string, result *ParseResult) {
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		// Nested definitions own their own calls.
		switch n.Type() {
		case "function_definition", "class_definition":
			return
		}
		if n.Type() == "call" {
			if fn := n.ChildByFieldName("function"); fn != nil {
				if name := pythonCalleeName(fn, content); name != "" {
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
	for i := 0; i < int(body.ChildCount()); i++ {
		walk(body.Child(i))
	}
}

// pythonCalleeName renders the called expression as a dotted name.
func pythonCalleeName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier":
		return nodeText(node, content)
	case "attribute":
		objNode := node.ChildByFieldName("object")
		attrNode := node.ChildByFieldName("attribute")
		if attrNode == nil {
			return ""
		}
		attr := nodeText(attrNode, content)
		if objNode == nil {
			return attr
		}
		if left := pythonCalleeName(objNode, content); left != "" {
			return left + "." + attr
		}
		return attr
	}
	return ""
}

// pythonBodyDocstring returns the docstring of a def/class node.
func pythonBodyDocstring(node *sitter.Node, content []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	return pythonDocstring(body, content)
}

// pythonDocstring returns the leading string literal of a block or module.
func pythonDocstring(block *sitter.Node, content []byte) string {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		if child.Type() != "expression_statement" || child.NamedChildCount() == 0 {
			return ""
		}
		str := child.NamedChild(0)
		if str.Type() != "string" {
			return ""
		}
		return stripPythonQuotes(nodeText(str, content))
	}
	return ""
}

func stripPythonQuotes(s string) string {
	for _, prefix := range []string{"r", "R", "b", "B", "u", "U", "f", "F"} {
		s = strings.TrimPrefix(s, prefix)
	}
	for _, quote := range []string{`"""`, "'''", `"`, "'"} {
		if strings.HasPrefix(s, quote) && strings.HasSuffix(s, quote) && len(s) >= 2*len(quote) {
			return strings.TrimSpace(s[len(quote) : len(s)-len(quote)])
		}
	}
	return strings.TrimSpace(s)
}
