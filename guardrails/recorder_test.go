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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
)

func TestRecorderLogMode(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(dir, nil, logger.New("test"))

	created := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec.Enqueue(&types.DetectionRecord{
			RequestID:     fmt.Sprintf("guardrails-%d", i),
			TenantID:      "tenant-1",
			Content:       "some\x00content\nwith control\x1b chars",
			SuggestAction: "pass",
			CreatedAt:     created,
		})
	}
	rec.Close()

	path := filepath.Join(dir, "detection_20250314.jsonl")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var lines []types.DetectionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r types.DetectionRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		lines = append(lines, r)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 3)

	assert.Equal(t, "guardrails-0", lines[0].RequestID)
	// Control characters are stripped, newlines flatten to spaces
	assert.Equal(t, "somecontent with control chars", lines[0].Content)
	assert.NotContains(t, lines[0].Content, "\n")
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"clean", "hello world", "hello world"},
		{"flattens newline and tab", "a\nb\tc", "a b c"},
		{"strips nul and escape", "a\x00b\x1bc", "abc"},
		{"strips del", "a\x7fb", "ab"},
		{"keeps unicode", "你好 мир", "你好 мир"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeText(tt.in))
		})
	}
}

func TestRecordToResult(t *testing.T) {
	score := 0.83
	rec := &types.DetectionRecord{
		RequestID:          "guardrails-abc",
		TenantID:           "tenant-1",
		Content:            "text",
		SuggestAction:      "replace",
		SuggestAnswer:      "substitute",
		SecurityRiskLevel:  "high_risk",
		SecurityCategories: []string{"S9"},
		SensitivityScore:   &score,
		HasImage:           true,
		ImageCount:         2,
		CreatedAt:          time.Now().UTC(),
	}
	result := recordToResult(rec)
	assert.Equal(t, rec.RequestID, result.RequestID)
	assert.Equal(t, rec.TenantID, result.TenantID)
	assert.Equal(t, rec.SuggestAnswer, result.SuggestAnswer)
	assert.Equal(t, rec.SecurityCategories, result.SecurityCategories)
	assert.Equal(t, &score, result.SensitivityScore)
	assert.Equal(t, 2, result.ImageCount)
}
