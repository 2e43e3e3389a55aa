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

package store

import (
	"context"
	"database/sql"
	"time"
)

// RateLimitRepository stores per-tenant request caps and the fixed-window
// counters that enforce them when no Redis backend is configured.
type RateLimitRepository struct {
	db *DB
}

// NewRateLimitRepository creates a rate-limit repository
func NewRateLimitRepository(db *DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// GetLimit loads the tenant's configured requests-per-second cap.
// Returns ErrNotFound when no row exists; 0 means unlimited.
func (r *RateLimitRepository) GetLimit(ctx context.Context, tenantID string) (*UserRateLimit, error) {
	l := &UserRateLimit{TenantID: tenantID}
	err := r.db.QueryRowContext(ctx, `
		SELECT requests_per_second, is_active, updated_at
		FROM user_rate_limits WHERE tenant_id = $1`, tenantID).
		Scan(&l.RequestsPerSecond, &l.IsActive, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// UpsertLimit writes the tenant's requests-per-second cap
func (r *RateLimitRepository) UpsertLimit(ctx context.Context, l *UserRateLimit) error {
	l.UpdatedAt = time.Now().UTC()
	if r.db.Driver == "mysql" {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO user_rate_limits (tenant_id, requests_per_second, is_active, updated_at)
			VALUES ($1, $2, $3, $4)
			ON DUPLICATE KEY UPDATE requests_per_second = VALUES(requests_per_second),
				is_active = VALUES(is_active), updated_at = VALUES(updated_at)`,
			l.TenantID, l.RequestsPerSecond, l.IsActive, l.UpdatedAt)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_rate_limits (tenant_id, requests_per_second, is_active, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE SET requests_per_second = EXCLUDED.requests_per_second,
			is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`,
		l.TenantID, l.RequestsPerSecond, l.IsActive, l.UpdatedAt)
	return err
}

// ListLimits returns every configured rate limit (super-admin view)
func (r *RateLimitRepository) ListLimits(ctx context.Context) ([]*UserRateLimit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, requests_per_second, is_active, updated_at
		FROM user_rate_limits ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*UserRateLimit
	for rows.Next() {
		l := &UserRateLimit{}
		if err := rows.Scan(&l.TenantID, &l.RequestsPerSecond, &l.IsActive, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLimit removes the tenant's rate limit, reverting to unlimited
func (r *RateLimitRepository) DeleteLimit(ctx context.Context, tenantID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_rate_limits WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Allow consumes one request against the tenant's fixed one-second window.
// limit <= 0 means unlimited. The counter row is locked for the duration of
// the transaction so concurrent workers see a consistent count.
func (r *RateLimitRepository) Allow(ctx context.Context, tenantID string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	windowStart := now.Truncate(time.Second)

	var count int
	var start time.Time
	err = tx.QueryRowContext(ctx, r.db.rebind(`
		SELECT current_count, window_start FROM user_rate_limit_counters
		WHERE tenant_id = $1 FOR UPDATE`), tenantID).Scan(&count, &start)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, r.db.rebind(`
			INSERT INTO user_rate_limit_counters (tenant_id, current_count, window_start, last_updated)
			VALUES ($1, 1, $2, $3)`), tenantID, windowStart, now)
		if err != nil {
			return false, err
		}
		return true, tx.Commit()
	case err != nil:
		return false, err
	}

	if !start.Equal(windowStart) {
		// New second, reset the window
		_, err = tx.ExecContext(ctx, r.db.rebind(`
			UPDATE user_rate_limit_counters SET current_count = 1, window_start = $1, last_updated = $2
			WHERE tenant_id = $3`), windowStart, now, tenantID)
		if err != nil {
			return false, err
		}
		return true, tx.Commit()
	}

	if count >= limit {
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, r.db.rebind(`
		UPDATE user_rate_limit_counters SET current_count = current_count + 1, last_updated = $1
		WHERE tenant_id = $2`), now, tenantID)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}
