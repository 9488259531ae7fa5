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

// Package ui provides terminal output helpers for the CLI: colored
// headers, labels, and status lines. Colors degrade to plain text when
// stdout is not a TTY or when disabled via --no-color / NO_COLOR.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Shared color printers. Commands use these directly for inline styling.
var (
	Bold   = color.New(color.Bold)
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Cyan   = color.New(color.FgCyan)
	Dim    = color.New(color.Faint)
)

// InitColors enables or disables colored output. Color is off when noColor
// is set or stdout is not a terminal.
func InitColors(noColor bool) {
	if noColor || !isTerminal() {
		color.NoColor = true
	}
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Header prints a bold section header with an underline.
func Header(text string) {
	fmt.Println()
	_, _ = Bold.Println(text)
	_, _ = Bold.Println(underline(len(text)))
}

// SubHeader prints a bold sub-section header.
func SubHeader(text string) {
	_, _ = Bold.Println(text)
}

// Label returns a cyan field label for aligned key/value output.
func Label(text string) string {
	return Cyan.Sprint(text)
}

// CountText formats a count in green (non-zero) or dim (zero).
func CountText(n int) string {
	if n == 0 {
		return Dim.Sprint("0")
	}
	return Green.Sprintf("%d", n)
}

// DimText renders secondary detail (paths, durations) in faint style.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// Success prints a green checkmarked line.
func Success(text string) {
	_, _ = Green.Printf("✓ %s\n", text)
}

// Info prints a plain informational line.
func Info(text string) {
	fmt.Println(text)
}

// Warning prints a yellow warning line.
func Warning(text string) {
	_, _ = Yellow.Printf("⚠ %s\n", text)
}

// Warningf prints a formatted yellow warning line.
func Warningf(format string, args ...any) {
	_, _ = Yellow.Printf("⚠ "+format+"\n", args...)
}

// Errorf prints a formatted red error line to stderr.
func Errorf(format string, args ...any) {
	_, _ = Red.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func underline(n int) string {
	line := make([]byte, n)
	for i := range line {
		line[i] = '='
	}
	return string(line)
}
