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

package answer

import (
	"context"
	"strings"
)

// MockGenerator is a deterministic offline backend for tests and for
// running without an API key. It echoes a fixed-form summary of the prompt
// rather than generating prose.
type MockGenerator struct {
	// Fail, when set, makes every call return this error instead.
	Fail error
}

func (m *MockGenerator) Generate(_ context.Context, _ string, prompt string) (string, error) {
	if m.Fail != nil {
		return "", m.Fail
	}
	// First prompt line is the task; echo it with a marker so tests can
	// assert the backend was consulted.
	task := prompt
	if idx := strings.IndexByte(task, '\n'); idx >= 0 {
		task = task[:idx]
	}
	return "mock answer: " + task, nil
}
