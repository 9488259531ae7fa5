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
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExcludeGlobs are path patterns that never contain code worth
// indexing. Project config may extend (not replace) this list.
var DefaultExcludeGlobs = []string{
	// Version control
	".git/**",
	// Dependencies
	"node_modules/**", "vendor/**",
	// Build outputs
	"dist/**", "build/**", "bin/**", "**/bin/**", "out/**",
	// IDE and editor
	".idea/**", ".vscode/**", "*.swp", "*.swo",
	// Framework caches
	".next/**", ".nuxt/**",
	// Our own workspace
	".archintel/**",
	// Compiled artifacts
	"*.o", "*.so", "*.dylib", "*.exe", "*.dll", "*.a",
	// Caches and coverage
	".cache/**", "coverage/**", "tmp/**", ".tmp/**",
	// Minified files
	"*.min.js", "*.min.css",
	// Lock files
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum",
}

// DefaultMaxFileSizeBytes caps the size of files the parser will read.
const DefaultMaxFileSizeBytes int64 = 1048576 // 1MB

// Loader walks a repository root and yields the relative paths of files
// eligible for parsing.
type Loader struct {
	RootPath     string
	ExcludeGlobs []string
	MaxFileSize  int64

	logger *slog.Logger
}

// NewLoader creates a loader with default exclusions plus any extra globs.
func NewLoader(rootPath string, extraGlobs []string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	globs := make([]string, 0, len(DefaultExcludeGlobs)+len(extraGlobs))
	globs = append(globs, DefaultExcludeGlobs...)
	globs = append(globs, extraGlobs...)
	return &Loader{
		RootPath:     rootPath,
		ExcludeGlobs: globs,
		MaxFileSize:  DefaultMaxFileSizeBytes,
		logger:       logger,
	}
}

// List returns the sorted relative (slash-separated) paths of all eligible
// files under the root. Symlinks, binaries, oversize files, and excluded
// paths are skipped.
func (l *Loader) List() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.RootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(l.RootPath, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !l.include(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !l.Eligible(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Eligible reports whether a relative path should be parsed: not excluded,
// a regular file, within the size cap, and not binary.
func (l *Loader) Eligible(rel string) bool {
	rel = filepath.ToSlash(rel)
	if !l.include(rel) {
		return false
	}
	fullPath := filepath.Join(l.RootPath, filepath.FromSlash(rel))
	info, err := os.Lstat(fullPath)
	if err != nil {
		return false
	}
	if info.Mode()&os.ModeSymlink != 0 || info.IsDir() {
		return false
	}
	if l.MaxFileSize > 0 && info.Size() > l.MaxFileSize {
		l.logger.Debug("loader.skip_oversize", "path", rel, "size", info.Size())
		return false
	}
	return !isBinaryFile(fullPath)
}

// Read returns the content of a relative path under the root.
func (l *Loader) Read(rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(l.RootPath, filepath.FromSlash(rel))) //nolint:gosec // G304: rel comes from our own walk
}

func (l *Loader) include(rel string) bool {
	trimmed := strings.TrimSuffix(rel, "/")
	for _, pattern := range l.ExcludeGlobs {
		if matchesGlob(trimmed, pattern) {
			return false
		}
		// A directory is excluded when a "dir/**" pattern names it.
		if strings.HasSuffix(rel, "/") && strings.HasSuffix(pattern, "/**") &&
			matchesGlob(trimmed, strings.TrimSuffix(pattern, "/**")) {
			return false
		}
	}
	return true
}

// isBinaryFile checks if file appears to be binary by scanning for NUL bytes.
func isBinaryFile(fullPath string) bool {
	f, err := os.Open(fullPath) //nolint:gosec // G304: path validated by caller
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()
	const sniff = 8192
	buf := make([]byte, sniff)
	n, _ := io.ReadFull(f, buf)
	if n <= 0 {
		return false
	}
	return bytes.IndexByte(buf[:n], 0x00) >= 0
}

// matchesGlob matches slash-separated paths against patterns where "**"
// spans path separators and "*" stays within one segment. A bare filename
// pattern (no slash) matches the path's base name anywhere in the tree.
func matchesGlob(path, pattern string) bool {
	if !strings.Contains(pattern, "/") && !strings.Contains(pattern, "**") {
		ok, _ := filepath.Match(pattern, filepath.Base(path))
		return ok
	}
	return matchSegments(strings.Split(path, "/"), strings.Split(pattern, "/"))
}

func matchSegments(path, pattern []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		// "**" matches zero or more segments.
		for i := 0; i <= len(path); i++ {
			if matchSegments(path[i:], pattern[1:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	if ok, _ := filepath.Match(pattern[0], path[0]); !ok {
		return false
	}
	return matchSegments(path[1:], pattern[1:])
}
