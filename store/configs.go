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
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ConfigRepository provides access to tenant guardrail configuration:
// keyword lists, response templates, risk-type configs, data-security entity
// types and knowledge bases.
type ConfigRepository struct {
	db *DB
}

// NewConfigRepository creates a config repository
func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func keywordTable(blacklist bool) string {
	if blacklist {
		return "blacklists"
	}
	return "whitelists"
}

// CreateKeywordList inserts a blacklist or whitelist
func (r *ConfigRepository) CreateKeywordList(ctx context.Context, blacklist bool, l *KeywordList) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	keywords, err := json.Marshal(l.Keywords)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO `+keywordTable(blacklist)+` (id, tenant_id, name, keywords, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.TenantID, l.Name, string(keywords), l.IsActive, l.CreatedAt, l.UpdatedAt)
	return err
}

// UpdateKeywordList updates name, keywords and active flag within the tenant
func (r *ConfigRepository) UpdateKeywordList(ctx context.Context, blacklist bool, l *KeywordList) error {
	keywords, err := json.Marshal(l.Keywords)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE `+keywordTable(blacklist)+`
		SET name = $1, keywords = $2, is_active = $3, updated_at = $4
		WHERE id = $5 AND tenant_id = $6`,
		l.Name, string(keywords), l.IsActive, time.Now().UTC(), l.ID, l.TenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteKeywordList removes a list owned by the tenant
func (r *ConfigRepository) DeleteKeywordList(ctx context.Context, blacklist bool, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM `+keywordTable(blacklist)+` WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListKeywordLists returns the tenant's lists
func (r *ConfigRepository) ListKeywordLists(ctx context.Context, blacklist bool, tenantID string) ([]*KeywordList, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, keywords, is_active, created_at, updated_at
		FROM `+keywordTable(blacklist)+` WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanKeywordLists(rows)
}

// LoadActiveKeywordLists returns every active list for every tenant, for the
// keyword cache's full snapshot load.
func (r *ConfigRepository) LoadActiveKeywordLists(ctx context.Context, blacklist bool) ([]*KeywordList, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, keywords, is_active, created_at, updated_at
		FROM `+keywordTable(blacklist)+` WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanKeywordLists(rows)
}

func scanKeywordLists(rows *sql.Rows) ([]*KeywordList, error) {
	var out []*KeywordList
	for rows.Next() {
		l := &KeywordList{}
		var keywords string
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Name, &keywords, &l.IsActive, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(keywords), &l.Keywords); err != nil {
			// Malformed keywords are skipped, not fatal
			continue
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateTemplate inserts a response template. TenantID empty creates a global
// template (super-admin only, enforced by the handler).
func (r *ConfigRepository) CreateTemplate(ctx context.Context, t *ResponseTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO response_templates (id, tenant_id, category, risk_level, template_content, is_default, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, nullIfEmpty(t.TenantID), t.Category, t.RiskLevel, t.TemplateContent, t.IsDefault, t.IsActive, t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTemplate updates content and flags of a template
func (r *ConfigRepository) UpdateTemplate(ctx context.Context, t *ResponseTemplate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE response_templates
		SET category = $1, risk_level = $2, template_content = $3, is_default = $4, is_active = $5, updated_at = $6
		WHERE id = $7 AND tenant_id IS NOT DISTINCT FROM $8`,
		t.Category, t.RiskLevel, t.TemplateContent, t.IsDefault, t.IsActive, time.Now().UTC(),
		t.ID, nullIfEmpty(t.TenantID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTemplate removes a template
func (r *ConfigRepository) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM response_templates WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2`,
		id, nullIfEmpty(tenantID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTemplates returns the tenant's templates plus the global ones
func (r *ConfigRepository) ListTemplates(ctx context.Context, tenantID string) ([]*ResponseTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, category, risk_level, template_content, is_default, is_active, created_at, updated_at
		FROM response_templates WHERE tenant_id = $1 OR tenant_id IS NULL ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTemplates(rows)
}

// LoadActiveTemplates returns every active template for the template cache
func (r *ConfigRepository) LoadActiveTemplates(ctx context.Context) ([]*ResponseTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, category, risk_level, template_content, is_default, is_active, created_at, updated_at
		FROM response_templates WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTemplates(rows)
}

func scanTemplates(rows *sql.Rows) ([]*ResponseTemplate, error) {
	var out []*ResponseTemplate
	for rows.Next() {
		t := &ResponseTemplate{}
		var tenantID sql.NullString
		if err := rows.Scan(&t.ID, &tenantID, &t.Category, &t.RiskLevel, &t.TemplateContent,
			&t.IsDefault, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.TenantID = tenantID.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetRiskTypeConfig loads the tenant's risk-type config, ErrNotFound when unset
func (r *ConfigRepository) GetRiskTypeConfig(ctx context.Context, tenantID string) (*RiskTypeConfig, error) {
	c := &RiskTypeConfig{TenantID: tenantID}
	var enabled string
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled_types, high_sensitivity_threshold, medium_sensitivity_threshold,
		       low_sensitivity_threshold, sensitivity_trigger_level, updated_at
		FROM risk_type_configs WHERE tenant_id = $1`, tenantID).
		Scan(&enabled, &c.HighSensitivityThreshold, &c.MediumSensitivityThreshold,
			&c.LowSensitivityThreshold, &c.SensitivityTriggerLevel, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(enabled), &c.Enabled); err != nil {
		return nil, err
	}
	return c, nil
}

// UpsertRiskTypeConfig writes the tenant's singleton risk-type config
func (r *ConfigRepository) UpsertRiskTypeConfig(ctx context.Context, c *RiskTypeConfig) error {
	enabled, err := json.Marshal(c.Enabled)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	if r.db.Driver == "mysql" {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO risk_type_configs (tenant_id, enabled_types, high_sensitivity_threshold,
				medium_sensitivity_threshold, low_sensitivity_threshold, sensitivity_trigger_level, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON DUPLICATE KEY UPDATE enabled_types = VALUES(enabled_types),
				high_sensitivity_threshold = VALUES(high_sensitivity_threshold),
				medium_sensitivity_threshold = VALUES(medium_sensitivity_threshold),
				low_sensitivity_threshold = VALUES(low_sensitivity_threshold),
				sensitivity_trigger_level = VALUES(sensitivity_trigger_level),
				updated_at = VALUES(updated_at)`,
			c.TenantID, string(enabled), c.HighSensitivityThreshold,
			c.MediumSensitivityThreshold, c.LowSensitivityThreshold, c.SensitivityTriggerLevel, c.UpdatedAt)
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO risk_type_configs (tenant_id, enabled_types, high_sensitivity_threshold,
			medium_sensitivity_threshold, low_sensitivity_threshold, sensitivity_trigger_level, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET enabled_types = EXCLUDED.enabled_types,
			high_sensitivity_threshold = EXCLUDED.high_sensitivity_threshold,
			medium_sensitivity_threshold = EXCLUDED.medium_sensitivity_threshold,
			low_sensitivity_threshold = EXCLUDED.low_sensitivity_threshold,
			sensitivity_trigger_level = EXCLUDED.sensitivity_trigger_level,
			updated_at = EXCLUDED.updated_at`,
		c.TenantID, string(enabled), c.HighSensitivityThreshold,
		c.MediumSensitivityThreshold, c.LowSensitivityThreshold, c.SensitivityTriggerLevel, c.UpdatedAt)
	return err
}

// CreateEntityType inserts a data-security entity type
func (r *ConfigRepository) CreateEntityType(ctx context.Context, e *DataSecurityEntityType) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	recognition, err := json.Marshal(e.Recognition)
	if err != nil {
		return err
	}
	anonymization, err := json.Marshal(e.AnonymizationConfig)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO data_security_entity_types (id, tenant_id, entity_type, display_name, category,
			recognition_config, anonymization_method, anonymization_config, is_active, is_global, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, nullIfEmpty(e.TenantID), e.EntityType, e.DisplayName, e.Category,
		string(recognition), e.AnonymizationMethod, string(anonymization), e.IsActive, e.IsGlobal,
		e.CreatedAt, e.UpdatedAt)
	return err
}

// UpdateEntityType updates a data-security entity type
func (r *ConfigRepository) UpdateEntityType(ctx context.Context, e *DataSecurityEntityType) error {
	recognition, err := json.Marshal(e.Recognition)
	if err != nil {
		return err
	}
	anonymization, err := json.Marshal(e.AnonymizationConfig)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE data_security_entity_types
		SET display_name = $1, category = $2, recognition_config = $3,
			anonymization_method = $4, anonymization_config = $5, is_active = $6, updated_at = $7
		WHERE id = $8 AND tenant_id IS NOT DISTINCT FROM $9`,
		e.DisplayName, e.Category, string(recognition),
		e.AnonymizationMethod, string(anonymization), e.IsActive, time.Now().UTC(),
		e.ID, nullIfEmpty(e.TenantID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEntityType removes an entity type
func (r *ConfigRepository) DeleteEntityType(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM data_security_entity_types WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2`,
		id, nullIfEmpty(tenantID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadActiveEntityTypes returns the tenant's active entity types plus globals
func (r *ConfigRepository) LoadActiveEntityTypes(ctx context.Context, tenantID string) ([]*DataSecurityEntityType, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, entity_type, display_name, category, recognition_config,
			anonymization_method, anonymization_config, is_active, is_global, created_at, updated_at
		FROM data_security_entity_types
		WHERE is_active = TRUE AND (tenant_id = $1 OR tenant_id IS NULL)`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*DataSecurityEntityType
	for rows.Next() {
		e := &DataSecurityEntityType{}
		var tenantID sql.NullString
		var recognition string
		var anonymization sql.NullString
		if err := rows.Scan(&e.ID, &tenantID, &e.EntityType, &e.DisplayName, &e.Category,
			&recognition, &e.AnonymizationMethod, &anonymization, &e.IsActive, &e.IsGlobal,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.TenantID = tenantID.String
		if err := json.Unmarshal([]byte(recognition), &e.Recognition); err != nil {
			continue
		}
		if anonymization.Valid && anonymization.String != "" {
			_ = json.Unmarshal([]byte(anonymization.String), &e.AnonymizationConfig)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountGlobalEntityTypes reports how many global entity types exist, used to
// decide whether the built-in defaults need seeding.
func (r *ConfigRepository) CountGlobalEntityTypes(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM data_security_entity_types WHERE tenant_id IS NULL`).Scan(&count)
	return count, err
}

// ListKnowledgeBases returns the tenant's active knowledge bases plus globals
func (r *ConfigRepository) ListKnowledgeBases(ctx context.Context, tenantID string) ([]*KnowledgeBase, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, category, file_path, vector_file_path, total_qa_pairs, is_active, is_global, created_at
		FROM knowledge_bases WHERE is_active = TRUE AND (tenant_id = $1 OR is_global = TRUE)`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*KnowledgeBase
	for rows.Next() {
		kb := &KnowledgeBase{}
		if err := rows.Scan(&kb.ID, &kb.TenantID, &kb.Category, &kb.FilePath, &kb.VectorFilePath,
			&kb.TotalQAPairs, &kb.IsActive, &kb.IsGlobal, &kb.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, kb)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
