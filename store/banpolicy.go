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

	"github.com/google/uuid"
)

// BanRepository stores ban policies, per-user risk triggers and ban records
type BanRepository struct {
	db *DB
}

// NewBanRepository creates a ban repository
func NewBanRepository(db *DB) *BanRepository {
	return &BanRepository{db: db}
}

// GetPolicy loads the tenant's ban policy, ErrNotFound when unset
func (r *BanRepository) GetPolicy(ctx context.Context, tenantID string) (*BanPolicy, error) {
	p := &BanPolicy{TenantID: tenantID}
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled, risk_level, trigger_count, time_window_minutes, ban_duration_minutes, updated_at
		FROM ban_policies WHERE tenant_id = $1`, tenantID).
		Scan(&p.Enabled, &p.RiskLevel, &p.TriggerCount, &p.TimeWindowMinutes, &p.BanDurationMinutes, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertPolicy writes the tenant's singleton ban policy
func (r *BanRepository) UpsertPolicy(ctx context.Context, p *BanPolicy) error {
	p.UpdatedAt = time.Now().UTC()
	if r.db.Driver == "mysql" {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO ban_policies (tenant_id, enabled, risk_level, trigger_count, time_window_minutes, ban_duration_minutes, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON DUPLICATE KEY UPDATE enabled = VALUES(enabled), risk_level = VALUES(risk_level),
				trigger_count = VALUES(trigger_count), time_window_minutes = VALUES(time_window_minutes),
				ban_duration_minutes = VALUES(ban_duration_minutes), updated_at = VALUES(updated_at)`,
			p.TenantID, p.Enabled, p.RiskLevel, p.TriggerCount, p.TimeWindowMinutes, p.BanDurationMinutes, p.UpdatedAt)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ban_policies (tenant_id, enabled, risk_level, trigger_count, time_window_minutes, ban_duration_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET enabled = EXCLUDED.enabled, risk_level = EXCLUDED.risk_level,
			trigger_count = EXCLUDED.trigger_count, time_window_minutes = EXCLUDED.time_window_minutes,
			ban_duration_minutes = EXCLUDED.ban_duration_minutes, updated_at = EXCLUDED.updated_at`,
		p.TenantID, p.Enabled, p.RiskLevel, p.TriggerCount, p.TimeWindowMinutes, p.BanDurationMinutes, p.UpdatedAt)
	return err
}

// RecordTrigger appends one risk trigger for an end user
func (r *BanRepository) RecordTrigger(ctx context.Context, t *UserRiskTrigger) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.TriggeredAt.IsZero() {
		t.TriggeredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_risk_triggers (id, tenant_id, end_user_id, risk_level, triggered_at, detection_result_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.TenantID, t.EndUserID, t.RiskLevel, t.TriggeredAt, nullIfEmpty(t.DetectionResultID))
	return err
}

// CountTriggers counts an end user's triggers at the given risk level inside
// the policy's time window.
func (r *BanRepository) CountTriggers(ctx context.Context, tenantID, endUserID, riskLevel string, window time.Duration) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_risk_triggers
		WHERE tenant_id = $1 AND end_user_id = $2 AND risk_level = $3 AND triggered_at > $4`,
		tenantID, endUserID, riskLevel, time.Now().UTC().Add(-window)).Scan(&count)
	return count, err
}

// ActiveBan returns the end user's live ban, or ErrNotFound when there is none
func (r *BanRepository) ActiveBan(ctx context.Context, tenantID, endUserID string) (*UserBanRecord, error) {
	b := &UserBanRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, end_user_id, banned_at, ban_until, trigger_count, risk_level, reason, is_active
		FROM user_ban_records
		WHERE tenant_id = $1 AND end_user_id = $2 AND is_active = TRUE AND ban_until > $3
		ORDER BY ban_until DESC LIMIT 1`,
		tenantID, endUserID, time.Now().UTC()).
		Scan(&b.ID, &b.TenantID, &b.EndUserID, &b.BannedAt, &b.BanUntil, &b.TriggerCount, &b.RiskLevel, &b.Reason, &b.IsActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Ban inserts a ban record unless the user already carries a live one, in
// which case the existing record is returned and no row is written.
func (r *BanRepository) Ban(ctx context.Context, b *UserBanRecord) (*UserBanRecord, error) {
	if existing, err := r.ActiveBan(ctx, b.TenantID, b.EndUserID); err == nil {
		return existing, nil
	} else if err != ErrNotFound {
		return nil, err
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.BannedAt.IsZero() {
		b.BannedAt = time.Now().UTC()
	}
	b.IsActive = true
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_ban_records (id, tenant_id, end_user_id, banned_at, ban_until, trigger_count, risk_level, reason, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)`,
		b.ID, b.TenantID, b.EndUserID, b.BannedAt, b.BanUntil, b.TriggerCount, b.RiskLevel, b.Reason)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Unban lifts an end user's live bans
func (r *BanRepository) Unban(ctx context.Context, tenantID, endUserID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_ban_records SET is_active = FALSE
		WHERE tenant_id = $1 AND end_user_id = $2 AND is_active = TRUE`,
		tenantID, endUserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBans pages the tenant's ban records newest first
func (r *BanRepository) ListBans(ctx context.Context, tenantID string, limit, offset int) ([]*UserBanRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, end_user_id, banned_at, ban_until, trigger_count, risk_level, reason, is_active
		FROM user_ban_records WHERE tenant_id = $1 ORDER BY banned_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*UserBanRecord
	for rows.Next() {
		b := &UserBanRecord{}
		if err := rows.Scan(&b.ID, &b.TenantID, &b.EndUserID, &b.BannedAt, &b.BanUntil,
			&b.TriggerCount, &b.RiskLevel, &b.Reason, &b.IsActive); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
