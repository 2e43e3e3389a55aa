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
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
)

var entityColumns = []string{
	"id", "tenant_id", "entity_type", "display_name", "category", "recognition_config",
	"anonymization_method", "anonymization_config", "is_active", "is_global", "created_at", "updated_at",
}

func entityRow(rows *sqlmock.Rows, id, entityType, displayName, category, recognition, method, config string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "tenant-1", entityType, displayName, category, recognition, method, config, true, false, now, now)
}

func TestScannerMasksMatches(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := entityRow(sqlmock.NewRows(entityColumns),
		"e1", "phone_number", "Phone Number", "high",
		`{"pattern":"1[3-9]\\d{9}","check_input":true,"check_output":true}`,
		"mask", `{"mask_char":"*","keep_prefix":3,"keep_suffix":2}`)
	mock.ExpectQuery("FROM data_security_entity_types").WillReturnRows(rows)

	scanner := NewScanner(repo, nil, logger.New("test"))
	result := scanner.Scan(context.Background(), "tenant-1", "call me at 13812345678 please", DirectionInput)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "13812345678", result.Matches[0].Original)
	assert.Equal(t, types.RiskHigh, result.RiskLevel)
	assert.Equal(t, []string{"Phone Number"}, result.Categories)
	assert.Equal(t, "call me at 138******78 please", result.Anonymized)
}

func TestScannerReplaceAndHash(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows(entityColumns)
	rows = entityRow(rows, "e1", "email", "Email", "medium",
		`{"pattern":"[a-z]+@[a-z]+\\.com","check_input":true,"check_output":true}`,
		"replace", `{"replacement":"<EMAIL>"}`)
	rows = entityRow(rows, "e2", "id_card", "ID Card", "high",
		`{"pattern":"\\d{17}[0-9X]","check_input":true,"check_output":true}`,
		"hash", `{}`)
	mock.ExpectQuery("FROM data_security_entity_types").WillReturnRows(rows)

	scanner := NewScanner(repo, nil, logger.New("test"))
	result := scanner.Scan(context.Background(), "tenant-1",
		"mail bob@example.com id 11010519491231002X", DirectionOutput)

	require.Len(t, result.Matches, 2)
	assert.Equal(t, types.RiskHigh, result.RiskLevel)
	assert.Contains(t, result.Anonymized, "<EMAIL>")
	assert.NotContains(t, result.Anonymized, "11010519491231002X")
	// Hashed values are a 16-char hex prefix of the digest
	for _, field := range strings.Fields(result.Anonymized) {
		if len(field) == 16 {
			assert.Regexp(t, "^[0-9a-f]{16}$", field)
		}
	}
}

func TestScannerDirectionFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := entityRow(sqlmock.NewRows(entityColumns),
		"e1", "phone_number", "Phone Number", "high",
		`{"pattern":"1[3-9]\\d{9}","check_input":false,"check_output":true}`,
		"mask", `{}`)
	mock.ExpectQuery("FROM data_security_entity_types").WillReturnRows(rows)

	scanner := NewScanner(repo, nil, logger.New("test"))
	result := scanner.Scan(context.Background(), "tenant-1", "13812345678", DirectionInput)

	assert.Empty(t, result.Matches)
	assert.Equal(t, types.RiskNone, result.RiskLevel)
	assert.Equal(t, "13812345678", result.Anonymized)
}

func TestScannerSkipsBadPattern(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows(entityColumns)
	rows = entityRow(rows, "e1", "broken", "Broken", "high",
		`{"pattern":"([unclosed","check_input":true,"check_output":true}`, "mask", `{}`)
	rows = entityRow(rows, "e2", "phone_number", "Phone Number", "low",
		`{"pattern":"1[3-9]\\d{9}","check_input":true,"check_output":true}`, "replace", `{}`)
	mock.ExpectQuery("FROM data_security_entity_types").WillReturnRows(rows)

	scanner := NewScanner(repo, nil, logger.New("test"))
	result := scanner.Scan(context.Background(), "tenant-1", "13812345678", DirectionInput)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "phone_number", result.Matches[0].EntityType)
	assert.Equal(t, "<phone_number>", result.Anonymized)
}

func TestScannerCachesAndInvalidates(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM data_security_entity_types").WillReturnRows(sqlmock.NewRows(entityColumns))

	scanner := NewScanner(repo, nil, logger.New("test"))
	scanner.Scan(context.Background(), "tenant-1", "text", DirectionInput)
	// Second scan is served from the compiled-entity cache
	scanner.Scan(context.Background(), "tenant-1", "text", DirectionInput)
	assert.NoError(t, mock.ExpectationsWereMet())

	scanner.Invalidate("tenant-1")
	mock.ExpectQuery("FROM data_security_entity_types").WillReturnRows(sqlmock.NewRows(entityColumns))
	scanner.Scan(context.Background(), "tenant-1", "text", DirectionInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name     string
		original string
		config   map[string]interface{}
		want     string
	}{
		{"default full mask", "secret", nil, "******"},
		{"keep edges", "13812345678", map[string]interface{}{"keep_prefix": 3, "keep_suffix": 2}, "138******78"},
		{"custom char", "abcd", map[string]interface{}{"mask_char": "#"}, "####"},
		{"keeps exceed length", "ab", map[string]interface{}{"keep_prefix": 2, "keep_suffix": 2}, "**"},
		{"float config from json", "13812345678", map[string]interface{}{"keep_prefix": float64(3), "keep_suffix": float64(2)}, "138******78"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskValue(tt.original, tt.config))
		})
	}
}

func TestRandomValuePreservesCharacterClasses(t *testing.T) {
	out := randomValue("Ab1-Cd2")
	require.Len(t, out, 7)
	assert.Regexp(t, `^[A-Z][a-z][0-9]-[A-Z][a-z][0-9]$`, out)
}

func TestShuffleValuePreservesCharacters(t *testing.T) {
	original := "abc123"
	shuffled := shuffleValue(original)

	a := strings.Split(original, "")
	b := strings.Split(shuffled, "")
	sort.Strings(a)
	sort.Strings(b)
	assert.Equal(t, a, b)
}
