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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kraklabs/archintel/pkg/model"
)

// GitHubClient fetches pull requests and issues from the GitHub REST API.
type GitHubClient struct {
	// BaseURL defaults to the public API; overridable for GitHub
	// Enterprise and tests.
	BaseURL string
	Token   string
	Repo    string // "owner/name"

	HTTPClient *http.Client
	Logger     *slog.Logger

	// PerPage bounds page size; GitHub caps at 100.
	PerPage int
}

// NewGitHubClient creates a client for one repository.
func NewGitHubClient(repo, token string, logger *slog.Logger) *GitHubClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubClient{
		BaseURL:    "https://api.github.com",
		Token:      token,
		Repo:       repo,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
		PerPage:    100,
	}
}

// ghIssue is the subset of the issue/PR payload we keep.
type ghIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	// Present only when the "issue" is actually a pull request.
	PullRequest *struct{} `json:"pull_request"`
}

// FetchDiscussions retrieves all issues and pull requests for the
// repository, newest-first as delivered by the API. Items from the issues
// endpoint that are pull requests are reported as such, not dropped.
func (c *GitHubClient) FetchDiscussions(ctx context.Context) ([]model.Discussion, error) {
	var discussions []model.Discussion

	for page := 1; ; page++ {
		issues, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(issues) == 0 {
			break
		}
		for _, issue := range issues {
			source := model.SourceGitHubIssue
			if issue.PullRequest != nil {
				source = model.SourceGitHubPR
			}
			discussions = append(discussions, model.Discussion{
				Source:     source,
				ExternalID: strconv.Itoa(issue.Number),
				Title:      issue.Title,
				Body:       issue.Body,
				Author:     issue.User.Login,
				URL:        issue.HTMLURL,
				CreatedAt:  issue.CreatedAt.UTC(),
			})
		}
	}

	c.Logger.Info("discussions.github.fetched", "repo", c.Repo, "count", len(discussions))
	return discussions, nil
}

func (c *GitHubClient) fetchPage(ctx context.Context, page int) ([]ghIssue, error) {
	perPage := c.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	url := fmt.Sprintf("%s/repos/%s/issues?state=all&per_page=%d&page=%d", c.BaseURL, c.Repo, perPage, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github fetch %s page %d: %w", c.Repo, page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("github read %s page %d: %w", c.Repo, page, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github fetch %s page %d: status %d: %s", c.Repo, page, resp.StatusCode, trimForError(string(body)))
	}

	var issues []ghIssue
	if err := json.Unmarshal(body, &issues); err != nil {
		return nil, fmt.Errorf("github decode %s page %d: %w", c.Repo, page, err)
	}
	return issues, nil
}

func trimForError(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
