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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProxyConfigRepository stores per-tenant upstream model configurations
type ProxyConfigRepository struct {
	db *DB
}

// NewProxyConfigRepository creates a proxy-config repository
func NewProxyConfigRepository(db *DB) *ProxyConfigRepository {
	return &ProxyConfigRepository{db: db}
}

const proxyConfigColumns = `id, tenant_id, config_name, api_base_url, api_key_encrypted, model_name,
	enabled, block_on_input_risk, block_on_output_risk, enable_reasoning_detection, stream_chunk_size,
	created_at, updated_at`

// Create inserts a proxy model config. (tenant_id, config_name) is unique.
func (r *ProxyConfigRepository) Create(ctx context.Context, c *ProxyModelConfig) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.StreamChunkSize <= 0 {
		c.StreamChunkSize = 50
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO proxy_model_configs (`+proxyConfigColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.TenantID, c.ConfigName, c.APIBaseURL, c.APIKeyEncrypted, c.ModelName,
		c.Enabled, c.BlockOnInputRisk, c.BlockOnOutputRisk, c.EnableReasoningDetection, c.StreamChunkSize,
		c.CreatedAt, c.UpdatedAt)
	if isDuplicateErr(err) {
		return fmt.Errorf("%w: config name already exists", ErrDuplicate)
	}
	return err
}

// Update rewrites a proxy model config owned by the tenant
func (r *ProxyConfigRepository) Update(ctx context.Context, c *ProxyModelConfig) error {
	if c.StreamChunkSize <= 0 {
		c.StreamChunkSize = 50
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE proxy_model_configs
		SET config_name = $1, api_base_url = $2, api_key_encrypted = $3, model_name = $4,
			enabled = $5, block_on_input_risk = $6, block_on_output_risk = $7,
			enable_reasoning_detection = $8, stream_chunk_size = $9, updated_at = $10
		WHERE id = $11 AND tenant_id = $12`,
		c.ConfigName, c.APIBaseURL, c.APIKeyEncrypted, c.ModelName,
		c.Enabled, c.BlockOnInputRisk, c.BlockOnOutputRisk,
		c.EnableReasoningDetection, c.StreamChunkSize, time.Now().UTC(),
		c.ID, c.TenantID)
	if isDuplicateErr(err) {
		return fmt.Errorf("%w: config name already exists", ErrDuplicate)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a proxy model config owned by the tenant
func (r *ProxyConfigRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM proxy_model_configs WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID loads one config owned by the tenant
func (r *ProxyConfigRepository) GetByID(ctx context.Context, tenantID, id string) (*ProxyModelConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+proxyConfigColumns+` FROM proxy_model_configs WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	configs, err := scanProxyConfigs(rows)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, ErrNotFound
	}
	return configs[0], nil
}

// List returns the tenant's configs ordered by creation time
func (r *ProxyConfigRepository) List(ctx context.Context, tenantID string) ([]*ProxyModelConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+proxyConfigColumns+` FROM proxy_model_configs WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanProxyConfigs(rows)
}

// Resolve picks the enabled config whose model_name matches the requested
// model, falling back to the tenant's first enabled config. ErrNotFound when
// the tenant has no enabled config at all.
func (r *ProxyConfigRepository) Resolve(ctx context.Context, tenantID, model string) (*ProxyModelConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+proxyConfigColumns+` FROM proxy_model_configs
		WHERE tenant_id = $1 AND enabled = TRUE ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	configs, err := scanProxyConfigs(rows)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, ErrNotFound
	}
	for _, c := range configs {
		if c.ModelName == model {
			return c, nil
		}
	}
	return configs[0], nil
}

func scanProxyConfigs(rows *sql.Rows) ([]*ProxyModelConfig, error) {
	var out []*ProxyModelConfig
	for rows.Next() {
		c := &ProxyModelConfig{}
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ConfigName, &c.APIBaseURL, &c.APIKeyEncrypted, &c.ModelName,
			&c.Enabled, &c.BlockOnInputRisk, &c.BlockOnOutputRisk, &c.EnableReasoningDetection, &c.StreamChunkSize,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
