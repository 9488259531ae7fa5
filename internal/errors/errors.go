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

// Package errors provides user-facing CLI errors. A UserError carries a
// short title, a one-line detail, and an actionable hint, so command
// failures tell the user what to do next instead of dumping a stack.
package errors

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Kind classifies a user error for exit codes and JSON output.
type Kind string

const (
	KindConfig     Kind = "config"
	KindInput      Kind = "input"
	KindPermission Kind = "permission"
	KindDatabase   Kind = "database"
	KindNetwork    Kind = "network"
	KindInternal   Kind = "internal"
)

// UserError is an error with presentation fields for the CLI.
type UserError struct {
	Kind   Kind
	Title  string
	Detail string
	Hint   string
	Err    error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *UserError) Unwrap() error { return e.Err }

func newError(kind Kind, title, detail, hint string, err error) *UserError {
	return &UserError{Kind: kind, Title: title, Detail: detail, Hint: hint, Err: err}
}

// NewConfigError reports a missing or invalid configuration.
func NewConfigError(title, detail, hint string, err error) *UserError {
	return newError(KindConfig, title, detail, hint, err)
}

// NewInputError reports invalid command arguments or state.
func NewInputError(title, detail, hint string) *UserError {
	return newError(KindInput, title, detail, hint, nil)
}

// NewPermissionError reports filesystem permission problems.
func NewPermissionError(title, detail, hint string, err error) *UserError {
	return newError(KindPermission, title, detail, hint, err)
}

// NewDatabaseError reports store open/query failures.
func NewDatabaseError(title, detail, hint string, err error) *UserError {
	return newError(KindDatabase, title, detail, hint, err)
}

// NewNetworkError reports unreachable remote services.
func NewNetworkError(title, detail, hint string, err error) *UserError {
	return newError(KindNetwork, title, detail, hint, err)
}

// NewInternalError reports unexpected failures that are likely bugs.
func NewInternalError(title, detail, hint string, err error) *UserError {
	return newError(KindInternal, title, detail, hint, err)
}

// FatalError prints the error and exits with status 1. In JSON mode the
// error is emitted as a machine-readable object on stdout; otherwise it is
// formatted for humans on stderr with the hint on its own line.
func FatalError(err error, jsonOutput bool) {
	if jsonOutput {
		printJSON(err)
		os.Exit(1)
	}

	if ue, ok := err.(*UserError); ok {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "Error: %s\n", ue.Title)
		if ue.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ue.Detail)
		}
		if ue.Err != nil {
			dim := color.New(color.Faint)
			_, _ = dim.Fprintf(os.Stderr, "  cause: %v\n", ue.Err)
		}
		if ue.Hint != "" {
			fmt.Fprintf(os.Stderr, "\n  %s\n", ue.Hint)
		}
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func printJSON(err error) {
	payload := map[string]string{"error": err.Error()}
	if ue, ok := err.(*UserError); ok {
		payload = map[string]string{
			"error":  ue.Title,
			"kind":   string(ue.Kind),
			"detail": ue.Detail,
			"hint":   ue.Hint,
		}
		if ue.Err != nil {
			payload["cause"] = ue.Err.Error()
		}
	}
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(payload)
}
