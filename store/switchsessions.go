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
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// SwitchSessionRepository stores super-admin impersonation sessions
type SwitchSessionRepository struct {
	db *DB
}

// NewSwitchSessionRepository creates a switch-session repository
func NewSwitchSessionRepository(db *DB) *SwitchSessionRepository {
	return &SwitchSessionRepository{db: db}
}

// Create opens a switch session from admin to target, valid for ttl
func (r *SwitchSessionRepository) Create(ctx context.Context, adminTenantID, targetTenantID string, ttl time.Duration) (*TenantSwitch, error) {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	s := &TenantSwitch{
		ID:             uuid.NewString(),
		AdminTenantID:  adminTenantID,
		TargetTenantID: targetTenantID,
		SessionToken:   hex.EncodeToString(buf),
		ExpiresAt:      time.Now().UTC().Add(ttl),
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenant_switch_sessions (id, admin_tenant_id, target_tenant_id, session_token, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)`,
		s.ID, s.AdminTenantID, s.TargetTenantID, s.SessionToken, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByToken resolves a live session token. Expired or deactivated sessions
// return ErrNotFound.
func (r *SwitchSessionRepository) GetByToken(ctx context.Context, token string) (*TenantSwitch, error) {
	s := &TenantSwitch{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, admin_tenant_id, target_tenant_id, session_token, expires_at, is_active, created_at
		FROM tenant_switch_sessions
		WHERE session_token = $1 AND is_active = TRUE AND expires_at > $2`,
		token, time.Now().UTC()).
		Scan(&s.ID, &s.AdminTenantID, &s.TargetTenantID, &s.SessionToken, &s.ExpiresAt, &s.IsActive, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close deactivates one session owned by the admin
func (r *SwitchSessionRepository) Close(ctx context.Context, adminTenantID, token string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tenant_switch_sessions SET is_active = FALSE
		WHERE session_token = $1 AND admin_tenant_id = $2 AND is_active = TRUE`,
		token, adminTenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseAll deactivates every live session opened by the admin
func (r *SwitchSessionRepository) CloseAll(ctx context.Context, adminTenantID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tenant_switch_sessions SET is_active = FALSE
		WHERE admin_tenant_id = $1 AND is_active = TRUE`, adminTenantID)
	return err
}
