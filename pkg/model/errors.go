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

package model

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable is the only fatal failure class in the core: the
// persistence backend cannot be reached. It aborts the current operation;
// everything else is collected per item and reported in batch summaries.
var ErrStoreUnavailable = errors.New("store unavailable")

// ParseError reports that a file's structure could not be (fully) analyzed.
// Partial entities extracted before the failure are still returned alongside.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

// HistoryAccessError reports that a single commit's data was unreadable.
// The mining run records the commit as diff-unavailable and continues.
type HistoryAccessError struct {
	Hash string
	Err  error
}

func (e *HistoryAccessError) Error() string {
	return fmt.Sprintf("history access for %s: %v", e.Hash, e.Err)
}

func (e *HistoryAccessError) Unwrap() error { return e.Err }

// GenerationBackendError reports a failed or timed-out generation call.
// The answer engine degrades to extractive output instead of propagating it.
type GenerationBackendError struct {
	Provider string
	Err      error
}

func (e *GenerationBackendError) Error() string {
	return fmt.Sprintf("generation backend %s: %v", e.Provider, e.Err)
}

func (e *GenerationBackendError) Unwrap() error { return e.Err }

// ItemError is one skipped item inside a batch operation.
type ItemError struct {
	Item   string // file path, commit hash, or discussion key
	Reason string
}

// BatchSummary reports "N succeeded, M skipped (reasons)" for batch
// operations. Per-item failures never abort the batch.
type BatchSummary struct {
	Succeeded int
	Skipped   []ItemError
}

// Add records one skipped item.
func (s *BatchSummary) Add(item, reason string) {
	s.Skipped = append(s.Skipped, ItemError{Item: item, Reason: reason})
}

func (s *BatchSummary) String() string {
	return fmt.Sprintf("%d succeeded, %d skipped", s.Succeeded, len(s.Skipped))
}
