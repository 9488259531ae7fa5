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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kraklabs/archintel/pkg/model"
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIGenerator calls an OpenAI-compatible chat/completions endpoint.
type OpenAIGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIGenerator creates a generator from config.
func NewOpenAIGenerator(config OpenAIConfig) *OpenAIGenerator {
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	return &OpenAIGenerator{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		model:      config.Model,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate sends one chat completion request. All failures are wrapped as
// GenerationBackendError so callers can degrade uniformly.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody := struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float64       `json:"temperature"`
	}{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &model.GenerationBackendError{Provider: "openai", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", &model.GenerationBackendError{Provider: "openai", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", &model.GenerationBackendError{Provider: "openai", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", &model.GenerationBackendError{Provider: "openai", Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &model.GenerationBackendError{Provider: "openai", Err: fmt.Errorf("status %d: %s", resp.StatusCode, bodyBytes)}
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", &model.GenerationBackendError{Provider: "openai", Err: fmt.Errorf("decode response: %w", err)}
	}
	if apiResp.Error.Message != "" {
		return "", &model.GenerationBackendError{Provider: "openai", Err: fmt.Errorf("%s", apiResp.Error.Message)}
	}
	if len(apiResp.Choices) == 0 {
		return "", &model.GenerationBackendError{Provider: "openai", Err: fmt.Errorf("empty choices")}
	}
	return apiResp.Choices[0].Message.Content, nil
}
