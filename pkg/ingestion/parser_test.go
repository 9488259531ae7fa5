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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/archintel/pkg/model"
)

func findEntity(entities []model.Entity, qualifiedName string) *model.Entity {
	for i := range entities {
		if entities[i].QualifiedName == qualifiedName {
			return &entities[i]
		}
	}
	return nil
}

func candidateNames(candidates []EdgeCandidate, kind model.EdgeKind) []string {
	var names []string
	for _, c := range candidates {
		if c.Kind == kind {
			names = append(names, c.TargetName)
		}
	}
	return names
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"cmd/main.go", "go"},
		{"app/views.py", "python"},
		{"src/index.js", "javascript"},
		{"src/App.jsx", "javascript"},
		{"lib/util.mjs", "javascript"},
		{"src/server.ts", "typescript"},
		{"src/App.tsx", "typescript"},
		{"README.md", ""},
		{"Makefile", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.path), tt.path)
	}
}

func TestParseGo_EntitiesAndEdges(t *testing.T) {
	src := []byte(`package auth

import (
	"fmt"
	"strings"
)

// Service issues and validates tokens.
type Service struct {
	Store
}

// Validate checks a raw token.
func (s *Service) Validate(raw string) error {
	trimmed := strings.TrimSpace(raw)
	return checkFormat(trimmed)
}

// checkFormat rejects malformed tokens.
func checkFormat(raw string) error {
	if raw == "" {
		return fmt.Errorf("empty token")
	}
	return nil
}
`)

	p := NewParser(nil)
	result := p.Parse("internal/auth/service.go", src, "go")
	require.Nil(t, result.Err)

	// Module entity first, named from the package clause.
	require.NotEmpty(t, result.Entities)
	mod := result.Entities[0]
	assert.Equal(t, model.KindModule, mod.Kind)
	assert.Equal(t, "auth", mod.Name)

	svc := findEntity(result.Entities, "Service")
	require.NotNil(t, svc)
	assert.Equal(t, model.KindClass, svc.Kind)
	assert.Equal(t, mod.ID, svc.ParentID)
	assert.Equal(t, "Service issues and validates tokens.", svc.Docstring)

	validate := findEntity(result.Entities, "Service.Validate")
	require.NotNil(t, validate)
	assert.Equal(t, model.KindMethod, validate.Kind)
	assert.Equal(t, svc.ID, validate.ParentID, "method parented to receiver type")
	assert.Contains(t, validate.Signature, "func (s *Service) Validate(raw string) error")
	assert.Equal(t, "Validate checks a raw token.", validate.Docstring)

	check := findEntity(result.Entities, "checkFormat")
	require.NotNil(t, check)
	assert.Equal(t, model.KindFunction, check.Kind)
	assert.Equal(t, mod.ID, check.ParentID)

	assert.ElementsMatch(t, []string{"fmt", "strings"}, candidateNames(result.Candidates, model.EdgeImports))
	assert.Contains(t, candidateNames(result.Candidates, model.EdgeCalls), "checkFormat")
	assert.Contains(t, candidateNames(result.Candidates, model.EdgeCalls), "strings.TrimSpace")
	assert.Contains(t, candidateNames(result.Candidates, model.EdgeReferences), "Store", "embedded field")
}

func TestParseGo_DeclarationOrder(t *testing.T) {
	src := []byte(`package order

func First() {}

type Middle struct{}

func Last() {}
`)
	p := NewParser(nil)
	result := p.Parse("order.go", src, "go")
	require.Nil(t, result.Err)

	var names []string
	for _, e := range result.Entities {
		names = append(names, e.QualifiedName)
	}
	assert.Equal(t, []string{"order", "First", "Middle", "Last"}, names)
}

func TestParsePython_ClassesAndMethods(t *testing.T) {
	src := []byte(`"""Authentication helpers."""
import hashlib
from datetime import datetime


class TokenService(BaseService):
    """Issues session tokens."""

    def issue(self, user_id: str) -> str:
        """Create a token for a user."""
        digest = hashlib.sha256(user_id.encode())
        return digest.hexdigest()


def authenticate_user(name, password):
    """Check credentials and return a session."""
    service = TokenService()
    return service.issue(name)
`)

	p := NewParser(nil)
	result := p.Parse("app/auth.py", src, "python")
	require.Nil(t, result.Err)

	mod := result.Entities[0]
	assert.Equal(t, model.KindModule, mod.Kind)
	assert.Equal(t, "auth", mod.Name)
	assert.Equal(t, "Authentication helpers.", mod.Docstring)

	cls := findEntity(result.Entities, "TokenService")
	require.NotNil(t, cls)
	assert.Equal(t, model.KindClass, cls.Kind)
	assert.Equal(t, "Issues session tokens.", cls.Docstring)

	issue := findEntity(result.Entities, "TokenService.issue")
	require.NotNil(t, issue)
	assert.Equal(t, model.KindMethod, issue.Kind)
	assert.Equal(t, cls.ID, issue.ParentID)
	assert.Contains(t, issue.Signature, "def issue(self, user_id: str) -> str")

	fn := findEntity(result.Entities, "authenticate_user")
	require.NotNil(t, fn)
	assert.Equal(t, model.KindFunction, fn.Kind)
	assert.Equal(t, mod.ID, fn.ParentID)
	assert.Equal(t, "Check credentials and return a session.", fn.Docstring)

	assert.ElementsMatch(t, []string{"hashlib", "datetime"}, candidateNames(result.Candidates, model.EdgeImports))
	assert.Equal(t, []string{"BaseService"}, candidateNames(result.Candidates, model.EdgeInherits))
	assert.Contains(t, candidateNames(result.Candidates, model.EdgeCalls), "TokenService")
	assert.Contains(t, candidateNames(result.Candidates, model.EdgeCalls), "service.issue")
}

func TestParsePython_RedefinitionKeepsLastDefinition(t *testing.T) {
	src := []byte(`def fetch():
    return 1


def fetch():
    """Second definition shadows the first."""
    return 2
`)
	p := NewParser(nil)
	result := p.Parse("app/dup.py", src, "python")
	require.Nil(t, result.Err)

	dupID := model.EntityID("app/dup.py", "fetch")
	var hits []model.Entity
	for _, e := range result.Entities {
		if e.ID == dupID {
			hits = append(hits, e)
		}
	}
	require.Len(t, hits, 1, "a redefined name yields one entity, not two rows with the same ID")
	assert.Equal(t, "Second definition shadows the first.", hits[0].Docstring)
	assert.Equal(t, 5, hits[0].StartLine)
}

func TestParsePython_SyntaxErrorKeepsPartialResult(t *testing.T) {
	src := []byte(`def good():
    return 1

def broken(:
    pass
`)
	p := NewParser(nil)
	result := p.Parse("bad.py", src, "python")

	require.NotNil(t, result.Err)
	assert.Equal(t, "bad.py", result.Err.Path)
	assert.NotNil(t, findEntity(result.Entities, "good"), "entities before the error survive")
}

func TestParseJavaScript_ClassesAndFunctions(t *testing.T) {
	src := []byte(`import { db } from './db';

class SessionStore extends BaseStore {
  load(id) {
    return db.get(id);
  }
}

function createSession(user) {
  const store = new SessionStore();
  return store.load(user.id);
}

const destroySession = (id) => {
  return db.remove(id);
};
`)

	p := NewParser(nil)
	result := p.Parse("src/session.js", src, "javascript")
	require.Nil(t, result.Err)

	mod := result.Entities[0]
	assert.Equal(t, "session", mod.Name)

	cls := findEntity(result.Entities, "SessionStore")
	require.NotNil(t, cls)
	assert.Equal(t, model.KindClass, cls.Kind)

	load := findEntity(result.Entities, "SessionStore.load")
	require.NotNil(t, load)
	assert.Equal(t, model.KindMethod, load.Kind)
	assert.Equal(t, cls.ID, load.ParentID)

	create := findEntity(result.Entities, "createSession")
	require.NotNil(t, create)
	assert.Equal(t, model.KindFunction, create.Kind)

	destroy := findEntity(result.Entities, "destroySession")
	require.NotNil(t, destroy, "arrow function bound to const")
	assert.Equal(t, model.KindFunction, destroy.Kind)

	assert.Equal(t, []string{"./db"}, candidateNames(result.Candidates, model.EdgeImports))
	assert.Equal(t, []string{"BaseStore"}, candidateNames(result.Candidates, model.EdgeInherits))
	assert.Contains(t, candidateNames(result.Candidates, model.EdgeCalls), "db.get")
	assert.Contains(t, candidateNames(result.Candidates, model.EdgeCalls), "store.load")
}

func TestParseTypeScript_Interfaces(t *testing.T) {
	src := []byte(`export interface Repository extends Closeable {
  find(id: string): Entity;
}

export function openRepository(path: string): Repository {
  return connect(path);
}
`)

	p := NewParser(nil)
	result := p.Parse("src/repo.ts", src, "typescript")
	require.Nil(t, result.Err)

	iface := findEntity(result.Entities, "Repository")
	require.NotNil(t, iface)
	assert.Equal(t, model.KindClass, iface.Kind)
	assert.Contains(t, iface.Signature, "interface Repository")

	open := findEntity(result.Entities, "openRepository")
	require.NotNil(t, open)
	assert.Contains(t, candidateNames(result.Candidates, model.EdgeCalls), "connect")
	assert.Contains(t, candidateNames(result.Candidates, model.EdgeInherits), "Closeable")
}

func TestParse_UnsupportedLanguage(t *testing.T) {
	p := NewParser(nil)
	result := p.Parse("README.md", []byte("# hello"), "")
	assert.Nil(t, result.Err)
	assert.Empty(t, result.Entities)
	assert.Empty(t, result.Candidates)
}

func TestParse_Deterministic(t *testing.T) {
	src := []byte(`package p

func A() { B() }

func B() {}
`)
	p := NewParser(nil)
	first := p.Parse("p.go", src, "go")
	second := p.Parse("p.go", src, "go")
	assert.Equal(t, first.Entities, second.Entities)
	assert.Equal(t, first.Candidates, second.Candidates)
}
