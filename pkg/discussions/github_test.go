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

package discussions

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/archintel/pkg/model"
)

func TestGitHubClient_FetchDiscussions(t *testing.T) {
	var sawAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		require.Equal(t, "/repos/krak/demo/issues", r.URL.Path)

		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `[
				{"number": 42, "title": "Token expiry broken", "body": "details",
				 "html_url": "https://example.com/42", "created_at": "2026-01-09T00:00:00Z",
				 "user": {"login": "ana"}},
				{"number": 43, "title": "Refactor auth", "body": "",
				 "html_url": "https://example.com/43", "created_at": "2026-01-10T00:00:00Z",
				 "user": {"login": "bob"}, "pull_request": {}}
			]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
	defer server.Close()

	client := NewGitHubClient("krak/demo", "tok123", nil)
	client.BaseURL = server.URL

	discussions, err := client.FetchDiscussions(context.Background())
	require.NoError(t, err)
	require.Len(t, discussions, 2)

	assert.Equal(t, "Bearer tok123", sawAuth)

	issue := discussions[0]
	assert.Equal(t, model.SourceGitHubIssue, issue.Source)
	assert.Equal(t, "42", issue.ExternalID)
	assert.Equal(t, "ana", issue.Author)

	pr := discussions[1]
	assert.Equal(t, model.SourceGitHubPR, pr.Source, "pull_request marker flips the source")
	assert.Equal(t, "43", pr.ExternalID)
}

func TestGitHubClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "rate limited"}`)
	}))
	defer server.Close()

	client := NewGitHubClient("krak/demo", "", nil)
	client.BaseURL = server.URL

	_, err := client.FetchDiscussions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
