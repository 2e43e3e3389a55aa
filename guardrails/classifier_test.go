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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/shared/types"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		safe     bool
		category types.Category
	}{
		{"safe", "safe", true, ""},
		{"unsafe with category", "unsafe\nS9", false, types.CategoryS9},
		{"unsafe uppercase", "UNSAFE\nS2", false, types.CategoryS2},
		{"unsafe with padding", "  unsafe  \n  S5  ", false, types.CategoryS5},
		{"unknown category treated safe", "unsafe\nS99", true, ""},
		{"missing category treated safe", "unsafe", true, ""},
		{"garbage treated safe", "I cannot determine", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := parseVerdict(tt.content)
			assert.Equal(t, tt.safe, v.Safe)
			assert.Equal(t, tt.category, v.Category)
		})
	}
}

func classifierServer(t *testing.T, content string, score *float64, capture *classifierRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		choice := map[string]interface{}{
			"message": map[string]string{"content": content},
		}
		if score != nil {
			choice["sensitivity_score"] = *score
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{choice},
		})
	}))
}

func TestClassifierCheck(t *testing.T) {
	score := 0.42
	var captured classifierRequest
	srv := classifierServer(t, "unsafe\nS9", &score, &captured)
	defer srv.Close()

	c := NewClassifier(srv.URL, "test-key")
	verdict, err := c.Check(context.Background(), []types.Message{types.UserMessage("hello")}, false)
	require.NoError(t, err)

	assert.False(t, verdict.Safe)
	assert.Equal(t, types.CategoryS9, verdict.Category)
	assert.Equal(t, 0.42, verdict.Score)
	assert.Equal(t, "unsafe\nS9", verdict.Raw)
	assert.Equal(t, types.ModelText, captured.Model)
}

func TestClassifierSelectsVisionModel(t *testing.T) {
	var captured classifierRequest
	srv := classifierServer(t, "safe", nil, &captured)
	defer srv.Close()

	c := NewClassifier(srv.URL, "")
	verdict, err := c.Check(context.Background(), []types.Message{types.UserMessage("hi")}, true)
	require.NoError(t, err)

	assert.True(t, verdict.Safe)
	// No reported score defaults to 1.0
	assert.Equal(t, 1.0, verdict.Score)
	assert.Equal(t, types.ModelVision, captured.Model)
}

func TestClassifierUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClassifier(srv.URL, "")
	_, err := c.Check(context.Background(), []types.Message{types.UserMessage("hi")}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClassifierNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClassifier(srv.URL, "")
	_, err := c.Check(context.Background(), []types.Message{types.UserMessage("hi")}, false)
	assert.Error(t, err)
}
