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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKeyPrefix marks every tenant API key
const APIKeyPrefix = "sk-xxai-"

// TenantRepository provides tenant, login-attempt and verification-code access
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GenerateAPIKey mints a fresh sk-xxai- key
func GenerateAPIKey() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	return APIKeyPrefix + hex.EncodeToString(buf)
}

const tenantColumns = `id, email, password_hash, api_key, is_active, is_verified, is_super_admin, created_at, updated_at`

func scanTenant(row *sql.Row) (*Tenant, error) {
	t := &Tenant{}
	err := row.Scan(&t.ID, &t.Email, &t.PasswordHash, &t.APIKey,
		&t.IsActive, &t.IsVerified, &t.IsSuperAdmin, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts a new tenant. A fresh API key is generated when empty.
func (r *TenantRepository) Create(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.APIKey == "" {
		t.APIKey = GenerateAPIKey()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Email, t.PasswordHash, t.APIKey,
		t.IsActive, t.IsVerified, t.IsSuperAdmin, t.CreatedAt, t.UpdatedAt)
	if isDuplicateErr(err) {
		return fmt.Errorf("%w: email or api key already exists", ErrDuplicate)
	}
	return err
}

// GetByID looks a tenant up by id
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

// GetByEmail looks a tenant up by email
func (r *TenantRepository) GetByEmail(ctx context.Context, email string) (*Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE email = $1`, email))
}

// GetByAPIKey looks a tenant up by exact API key match
func (r *TenantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE api_key = $1`, apiKey))
}

// List returns tenants ordered by creation time (super-admin operation)
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Tenant
	for rows.Next() {
		t := &Tenant{}
		if err := rows.Scan(&t.ID, &t.Email, &t.PasswordHash, &t.APIKey,
			&t.IsActive, &t.IsVerified, &t.IsSuperAdmin, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RotateAPIKey replaces the tenant's API key and returns the new one
func (r *TenantRepository) RotateAPIKey(ctx context.Context, tenantID string) (string, error) {
	key := GenerateAPIKey()
	res, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET api_key = $1, updated_at = $2 WHERE id = $3`,
		key, time.Now().UTC(), tenantID)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrNotFound
	}
	return key, nil
}

// SetVerified marks a tenant's email as verified and activates it
func (r *TenantRepository) SetVerified(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET is_verified = TRUE, is_active = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), tenantID)
	return err
}

// SetActive toggles a tenant on or off
func (r *TenantRepository) SetActive(ctx context.Context, tenantID string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET is_active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now().UTC(), tenantID)
	return err
}

// RecordLoginAttempt appends one login attempt row
func (r *TenantRepository) RecordLoginAttempt(ctx context.Context, email, ip string, success bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_attempts (id, email, ip, success, attempted_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), email, ip, success, time.Now().UTC())
	return err
}

// CountRecentFailures counts failed logins for (email, ip) inside the window
func (r *TenantRepository) CountRecentFailures(ctx context.Context, email, ip string, window time.Duration) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND ip = $2 AND success = FALSE AND attempted_at > $3`,
		email, ip, time.Now().UTC().Add(-window)).Scan(&count)
	return count, err
}

// CreateVerificationCode stores a fresh 6-digit code with a 10-minute TTL
func (r *TenantRepository) CreateVerificationCode(ctx context.Context, email, code string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_codes (id, email, code, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)`,
		uuid.NewString(), email, code, now.Add(10*time.Minute), now)
	return err
}

// ConsumeVerificationCode validates and burns a code. Returns ErrNotFound when
// no live matching code exists.
func (r *TenantRepository) ConsumeVerificationCode(ctx context.Context, email, code string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_codes SET used = TRUE
		WHERE email = $1 AND code = $2 AND used = FALSE AND expires_at > $3`,
		email, code, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
