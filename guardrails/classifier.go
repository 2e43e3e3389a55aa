// Copyright 2025 XXAI
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"xxai/platform/shared/types"
)

// ClassifierVerdict is the parsed output of one classifier call
type ClassifierVerdict struct {
	Safe     bool
	Category types.Category
	// Score is the model's sensitivity score in [0,1]; 1.0 when the model
	// does not report one.
	Score float64
	// Raw is the assistant content verbatim, kept for the detection record
	Raw string
}

// Classifier calls the guardrail model's OpenAI-compatible chat completions
// endpoint. The model answers with exactly "safe" or "unsafe\n<Sxx>"; the
// sensitivity score rides on choices[0].sensitivity_score.
type Classifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClassifier creates a classifier client. 15s connect, 3 minute read.
func NewClassifier(baseURL, apiKey string) *Classifier {
	return &Classifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 3 * time.Minute,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 15 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 32,
			},
		},
	}
}

type classifierRequest struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
}

type classifierChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	SensitivityScore *float64 `json:"sensitivity_score,omitempty"`
}

type classifierResponse struct {
	Choices []classifierChoice `json:"choices"`
}

// Check classifies the messages. vision selects the VL model when image parts
// are present.
func (c *Classifier) Check(ctx context.Context, messages []types.Message, vision bool) (*ClassifierVerdict, error) {
	model := types.ModelText
	if vision {
		model = types.ModelVision
	}

	body, err := json.Marshal(classifierRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed classifierResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("classifier returned no choices")
	}

	choice := parsed.Choices[0]
	verdict := parseVerdict(choice.Message.Content)
	if choice.SensitivityScore != nil {
		verdict.Score = *choice.SensitivityScore
	}
	return verdict, nil
}

// parseVerdict interprets the model's short answer. Anything other than a
// well-formed "unsafe\n<Sxx>" is treated as safe.
func parseVerdict(content string) *ClassifierVerdict {
	v := &ClassifierVerdict{Safe: true, Score: 1.0, Raw: strings.TrimSpace(content)}
	lines := strings.Split(v.Raw, "\n")
	if len(lines) < 2 || strings.TrimSpace(strings.ToLower(lines[0])) != "unsafe" {
		return v
	}
	code := strings.TrimSpace(lines[1])
	if !types.ValidCategory(code) {
		return v
	}
	v.Safe = false
	v.Category = types.Category(code)
	return v
}
