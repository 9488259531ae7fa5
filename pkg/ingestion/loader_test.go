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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, content, 0o644))
}

func TestLoader_ListSkipsExcludedAndBinary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", []byte("package main\n"))
	writeFile(t, root, "app/views.py", []byte("x = 1\n"))
	writeFile(t, root, "node_modules/pkg/index.js", []byte("module.exports = {}\n"))
	writeFile(t, root, "vendor/lib/lib.go", []byte("package lib\n"))
	writeFile(t, root, "assets/logo.png", []byte{0x89, 'P', 'N', 'G', 0x00, 0x01})
	writeFile(t, root, "bundle.min.js", []byte("var a=1;\n"))

	loader := NewLoader(root, nil, nil)
	paths, err := loader.List()
	require.NoError(t, err)

	assert.Equal(t, []string{"app/views.py", "main.go"}, paths)
}

func TestLoader_ExtraGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.go", []byte("package keep\n"))
	writeFile(t, root, "generated/out.go", []byte("package out\n"))

	loader := NewLoader(root, []string{"generated/**"}, nil)
	paths, err := loader.List()
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.go"}, paths)
}

func TestLoader_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", []byte("package small\n"))
	writeFile(t, root, "big.go", make([]byte, 64))

	loader := NewLoader(root, nil, nil)
	loader.MaxFileSize = 32
	paths, err := loader.List()
	require.NoError(t, err)

	assert.Equal(t, []string{"small.go"}, paths)
}

func TestMatchesGlob(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"node_modules/react/index.js", "node_modules/**", true},
		{"src/node_modules_like.js", "node_modules/**", false},
		{"a/b/bin/tool", "**/bin/**", true},
		{"deep/dir/file.min.js", "*.min.js", true},
		{"go.sum", "go.sum", true},
		{"pkg/go.sum", "go.sum", true},
		{"src/main.go", "vendor/**", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesGlob(tt.path, tt.pattern), "%s vs %s", tt.path, tt.pattern)
	}
}
