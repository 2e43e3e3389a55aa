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

package auth

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/shared/logger"
	"xxai/platform/store"
)

func newMockLimits(t *testing.T) (*store.RateLimitRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewRateLimitRepository(&store.DB{DB: db, Driver: "postgres"}), mock
}

func limitRow(rps int, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"requests_per_second", "is_active", "updated_at"}).
		AddRow(rps, active, time.Now())
}

func TestRedisLimiterEnforcesCap(t *testing.T) {
	mr := miniredis.RunT(t)
	limits, mock := newMockLimits(t)
	// The cap is cached for 30s, so one config read serves the whole test
	mock.ExpectQuery("FROM user_rate_limits").WillReturnRows(limitRow(3, true))

	limiter, err := NewRedisLimiter("redis://"+mr.Addr(), limits, logger.New("test"))
	require.NoError(t, err)
	defer func() { _ = limiter.Close() }()

	ctx := context.Background()
	allowedCount := 0
	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "tenant-1")
		require.NoError(t, err)
		if allowed {
			allowedCount++
		}
	}
	assert.Equal(t, 3, allowedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiterUnlimitedWithoutRow(t *testing.T) {
	mr := miniredis.RunT(t)
	limits, mock := newMockLimits(t)
	mock.ExpectQuery("FROM user_rate_limits").WillReturnError(sql.ErrNoRows)

	limiter, err := NewRedisLimiter("redis://"+mr.Addr(), limits, logger.New("test"))
	require.NoError(t, err)
	defer func() { _ = limiter.Close() }()

	for i := 0; i < 20; i++ {
		allowed, err := limiter.Allow(context.Background(), "tenant-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestRedisLimiterInactiveCapIsUnlimited(t *testing.T) {
	mr := miniredis.RunT(t)
	limits, mock := newMockLimits(t)
	mock.ExpectQuery("FROM user_rate_limits").WillReturnRows(limitRow(1, false))

	limiter, err := NewRedisLimiter("redis://"+mr.Addr(), limits, logger.New("test"))
	require.NoError(t, err)
	defer func() { _ = limiter.Close() }()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(context.Background(), "tenant-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestRedisLimiterInvalidateDropsCachedCap(t *testing.T) {
	mr := miniredis.RunT(t)
	limits, mock := newMockLimits(t)
	mock.ExpectQuery("FROM user_rate_limits").WillReturnError(sql.ErrNoRows)

	limiter, err := NewRedisLimiter("redis://"+mr.Addr(), limits, logger.New("test"))
	require.NoError(t, err)
	defer func() { _ = limiter.Close() }()

	allowed, err := limiter.Allow(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	limiter.Invalidate("tenant-1")
	mock.ExpectQuery("FROM user_rate_limits").WillReturnRows(limitRow(10, true))

	_, err = limiter.Allow(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisLimiterBadURL(t *testing.T) {
	limits, _ := newMockLimits(t)
	_, err := NewRedisLimiter("not-a-url", limits, logger.New("test"))
	assert.Error(t, err)
}

func TestDBLimiterFailsOpenOnConfigError(t *testing.T) {
	limits, mock := newMockLimits(t)
	mock.ExpectQuery("FROM user_rate_limits").WillReturnError(fmt.Errorf("connection refused"))

	limiter := NewDBLimiter(limits, logger.New("test"))
	allowed, err := limiter.Allow(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDBLimiterFixedWindow(t *testing.T) {
	limits, mock := newMockLimits(t)
	mock.ExpectQuery("FROM user_rate_limits").WillReturnRows(limitRow(5, true))

	// First request of the window inserts the counter row
	mock.ExpectBegin()
	mock.ExpectQuery("FROM user_rate_limit_counters").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO user_rate_limit_counters").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	limiter := NewDBLimiter(limits, logger.New("test"))
	allowed, err := limiter.Allow(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	// At the cap within the same window the request is rejected
	mock.ExpectBegin()
	mock.ExpectQuery("FROM user_rate_limit_counters").WillReturnRows(
		sqlmock.NewRows([]string{"current_count", "window_start"}).
			AddRow(5, time.Now().UTC().Truncate(time.Second)))
	mock.ExpectCommit()

	allowed, err = limiter.Allow(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
