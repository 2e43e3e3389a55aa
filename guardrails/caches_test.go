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
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
	"xxai/platform/store"
)

func newMockRepo(t *testing.T) (*store.ConfigRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewConfigRepository(&store.DB{DB: db, Driver: "postgres"}), mock
}

func keywordColumns() []string {
	return []string{"id", "tenant_id", "name", "keywords", "is_active", "created_at", "updated_at"}
}

func TestKeywordCacheSnapshot(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery("FROM blacklists").WillReturnRows(
		sqlmock.NewRows(keywordColumns()).
			AddRow("l1", "tenant-1", "weapons", `["Bomb"," rifle "]`, true, now, now).
			AddRow("l2", "tenant-1", "broken", `not-json`, true, now, now).
			AddRow("l3", "tenant-2", "other", `["x"]`, true, now, now))
	mock.ExpectQuery("FROM whitelists").WillReturnRows(
		sqlmock.NewRows(keywordColumns()).
			AddRow("w1", "tenant-1", "medical", `["surgery"]`, true, now, now))

	cache := NewKeywordCache(repo, logger.New("test"))
	ctx := context.Background()

	black := cache.Blacklists(ctx, "tenant-1")
	require.Len(t, black, 1)
	// Keywords are lowercased and trimmed; the malformed list is skipped
	assert.Equal(t, []string{"bomb", "rifle"}, black["weapons"])

	white := cache.Whitelists(ctx, "tenant-1")
	assert.Equal(t, []string{"surgery"}, white["medical"])

	// A second read serves the snapshot without touching the database
	assert.NotNil(t, cache.Blacklists(ctx, "tenant-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeywordCacheInvalidateReloads(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery("FROM blacklists").WillReturnRows(sqlmock.NewRows(keywordColumns()))
	mock.ExpectQuery("FROM whitelists").WillReturnRows(sqlmock.NewRows(keywordColumns()))

	cache := NewKeywordCache(repo, logger.New("test"))
	ctx := context.Background()
	assert.Nil(t, cache.Blacklists(ctx, "tenant-1"))

	cache.Invalidate()

	mock.ExpectQuery("FROM blacklists").WillReturnRows(
		sqlmock.NewRows(keywordColumns()).
			AddRow("l1", "tenant-1", "fresh", `["new"]`, true, now, now))
	mock.ExpectQuery("FROM whitelists").WillReturnRows(sqlmock.NewRows(keywordColumns()))

	assert.Equal(t, []string{"new"}, cache.Blacklists(ctx, "tenant-1")["fresh"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func templateColumns() []string {
	return []string{"id", "tenant_id", "category", "risk_level", "template_content", "is_default", "is_active", "created_at", "updated_at"}
}

func TestTemplateResolverOrder(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery("FROM response_templates").WillReturnRows(
		sqlmock.NewRows(templateColumns()).
			AddRow("t1", "tenant-1", "S9", "high_risk", "tenant S9 answer", false, true, now, now).
			AddRow("t2", nil, "S9", "high_risk", "global S9 answer", true, true, now, now).
			AddRow("t3", nil, "S8", "low_risk", "global S8 answer", true, true, now, now).
			AddRow("t4", nil, "default", "low_risk", "global default answer", true, true, now, now))

	resolver := NewTemplateResolver(NewTemplateCache(repo, logger.New("test")), nil, logger.New("test"))
	ctx := context.Background()

	// Tenant template beats global for the same category
	got := resolver.Resolve(ctx, "tenant-1", []types.Category{types.CategoryS9}, "")
	assert.Equal(t, "tenant S9 answer", got)

	// Higher-risk category resolves first: S9 (high) before S8 (low)
	got = resolver.Resolve(ctx, "tenant-2", []types.Category{types.CategoryS8, types.CategoryS9}, "")
	assert.Equal(t, "global S9 answer", got)

	// Unmatched categories fall through to the global default
	got = resolver.Resolve(ctx, "tenant-2", []types.Category{types.CategoryS1}, "")
	assert.Equal(t, "global default answer", got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateResolverHardcodedFallback(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM response_templates").WillReturnRows(sqlmock.NewRows(templateColumns()))

	resolver := NewTemplateResolver(NewTemplateCache(repo, logger.New("test")), nil, logger.New("test"))
	got := resolver.Resolve(context.Background(), "tenant-1", []types.Category{types.CategoryS5}, "")
	assert.Equal(t, HardcodedRefusal, got)
}

func TestRiskConfigCacheDefaults(t *testing.T) {
	repo, mock := newMockRepo(t)

	// Unconfigured tenant resolves to the default-open config
	mock.ExpectQuery("FROM risk_type_configs").WillReturnError(sql.ErrNoRows)

	cache := NewRiskConfigCache(repo, logger.New("test"))
	cfg := cache.Get(context.Background(), "tenant-1")
	for _, c := range types.AllCategories() {
		assert.True(t, cfg.Enabled[c])
	}
	assert.Equal(t, types.DefaultMediumThreshold, cfg.Threshold())
}

func TestRiskConfigCacheStoredRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery("FROM risk_type_configs").WillReturnRows(
		sqlmock.NewRows([]string{
			"enabled_types", "high_sensitivity_threshold", "medium_sensitivity_threshold",
			"low_sensitivity_threshold", "sensitivity_trigger_level", "updated_at",
		}).AddRow(`{"S1":false,"S9":true,"bogus":true}`, 0.30, 0.55, 0.90, "high", now))

	cache := NewRiskConfigCache(repo, logger.New("test"))
	cfg := cache.Get(context.Background(), "tenant-1")

	assert.False(t, cfg.Enabled[types.CategoryS1])
	assert.True(t, cfg.Enabled[types.CategoryS9])
	// Unknown category codes are ignored, the rest stay enabled
	assert.True(t, cfg.Enabled[types.CategoryS2])
	assert.Equal(t, types.SensitivityHigh, cfg.TriggerLevel)
	assert.InDelta(t, 0.30, cfg.Threshold(), 1e-9)

	// Invalidate drops the entry so the next Get reloads
	cache.Invalidate("tenant-1")
	mock.ExpectQuery("FROM risk_type_configs").WillReturnError(sql.ErrNoRows)
	cfg = cache.Get(context.Background(), "tenant-1")
	assert.True(t, cfg.Enabled[types.CategoryS1])
	assert.NoError(t, mock.ExpectationsWereMet())
}
