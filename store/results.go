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

// ResultRepository stores detection results and proxy request logs
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a result repository
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// InsertResult inserts one detection result. Duplicate request_ids are
// swallowed so the JSONL import stays idempotent.
func (r *ResultRepository) InsertResult(ctx context.Context, dr *DetectionResult) error {
	if dr.ID == "" {
		dr.ID = uuid.NewString()
	}
	if dr.CreatedAt.IsZero() {
		dr.CreatedAt = time.Now().UTC()
	}
	secCats, _ := json.Marshal(dr.SecurityCategories)
	compCats, _ := json.Marshal(dr.ComplianceCategories)
	dataCats, _ := json.Marshal(dr.DataCategories)
	imagePaths, _ := json.Marshal(dr.ImagePaths)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO detection_results (id, request_id, tenant_id, content, suggest_action, suggest_answer,
			model_response, security_risk_level, security_categories, compliance_risk_level, compliance_categories,
			data_risk_level, data_categories, sensitivity_level, sensitivity_score, has_image, image_count,
			image_paths, hit_keywords, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		dr.ID, dr.RequestID, dr.TenantID, dr.Content, dr.SuggestAction, dr.SuggestAnswer,
		dr.ModelResponse, dr.SecurityRiskLevel, string(secCats), dr.ComplianceRiskLevel, string(compCats),
		dr.DataRiskLevel, string(dataCats), dr.SensitivityLevel, dr.SensitivityScore, dr.HasImage, dr.ImageCount,
		string(imagePaths), dr.HitKeywords, dr.IPAddress, dr.UserAgent, dr.CreatedAt)
	if isDuplicateErr(err) {
		return ErrDuplicate
	}
	return err
}

// ResultExists reports whether a request_id is already stored
func (r *ResultRepository) ResultExists(ctx context.Context, requestID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM detection_results WHERE request_id = $1`, requestID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const resultColumns = `id, request_id, tenant_id, content, suggest_action, suggest_answer,
	model_response, security_risk_level, security_categories, compliance_risk_level, compliance_categories,
	data_risk_level, data_categories, sensitivity_level, sensitivity_score, has_image, image_count,
	image_paths, hit_keywords, ip_address, user_agent, created_at`

// GetResult fetches one detection result by request_id within the tenant
func (r *ResultRepository) GetResult(ctx context.Context, tenantID, requestID string) (*DetectionResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM detection_results WHERE tenant_id = $1 AND request_id = $2`,
		tenantID, requestID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results[0], nil
}

// ListResults pages the tenant's detection results newest first
func (r *ResultRepository) ListResults(ctx context.Context, tenantID string, limit, offset int) ([]*DetectionResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM detection_results
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanResults(rows)
}

// CountResults counts the tenant's detection results
func (r *ResultRepository) CountResults(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM detection_results WHERE tenant_id = $1`, tenantID).Scan(&count)
	return count, err
}

func scanResults(rows *sql.Rows) ([]*DetectionResult, error) {
	var out []*DetectionResult
	for rows.Next() {
		dr := &DetectionResult{}
		var secCats, compCats, dataCats, imagePaths sql.NullString
		var suggestAnswer, modelResponse, sensitivityLevel, hitKeywords, ip, ua sql.NullString
		var score sql.NullFloat64
		if err := rows.Scan(&dr.ID, &dr.RequestID, &dr.TenantID, &dr.Content, &dr.SuggestAction,
			&suggestAnswer, &modelResponse, &dr.SecurityRiskLevel, &secCats, &dr.ComplianceRiskLevel,
			&compCats, &dr.DataRiskLevel, &dataCats, &sensitivityLevel, &score, &dr.HasImage,
			&dr.ImageCount, &imagePaths, &hitKeywords, &ip, &ua, &dr.CreatedAt); err != nil {
			return nil, err
		}
		dr.SuggestAnswer = suggestAnswer.String
		dr.ModelResponse = modelResponse.String
		dr.SensitivityLevel = sensitivityLevel.String
		dr.HitKeywords = hitKeywords.String
		dr.IPAddress = ip.String
		dr.UserAgent = ua.String
		if score.Valid {
			v := score.Float64
			dr.SensitivityScore = &v
		}
		_ = json.Unmarshal([]byte(secCats.String), &dr.SecurityCategories)
		_ = json.Unmarshal([]byte(compCats.String), &dr.ComplianceCategories)
		_ = json.Unmarshal([]byte(dataCats.String), &dr.DataCategories)
		_ = json.Unmarshal([]byte(imagePaths.String), &dr.ImagePaths)
		out = append(out, dr)
	}
	return out, rows.Err()
}

// InsertProxyLog writes one proxy request log row
func (r *ResultRepository) InsertProxyLog(ctx context.Context, l *ProxyRequestLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO proxy_request_logs (id, request_id, tenant_id, proxy_config_id, model_requested, model_used,
			input_detection_id, output_detection_id, input_blocked, output_blocked,
			prompt_tokens, completion_tokens, total_tokens, response_time_ms, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		l.ID, l.RequestID, l.TenantID, nullIfEmpty(l.ProxyConfigID), l.ModelRequested, l.ModelUsed,
		nullIfEmpty(l.InputDetectionID), nullIfEmpty(l.OutputDetectionID), l.InputBlocked, l.OutputBlocked,
		l.PromptTokens, l.CompletionTokens, l.TotalTokens, l.ResponseTimeMs, l.Status, l.ErrorMessage, l.CreatedAt)
	return err
}

// ListProxyLogs pages the tenant's proxy request logs newest first
func (r *ResultRepository) ListProxyLogs(ctx context.Context, tenantID string, limit, offset int) ([]*ProxyRequestLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, tenant_id, proxy_config_id, model_requested, model_used,
			input_detection_id, output_detection_id, input_blocked, output_blocked,
			prompt_tokens, completion_tokens, total_tokens, response_time_ms, status, error_message, created_at
		FROM proxy_request_logs WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*ProxyRequestLog
	for rows.Next() {
		l := &ProxyRequestLog{}
		var configID, inputDet, outputDet, errMsg sql.NullString
		if err := rows.Scan(&l.ID, &l.RequestID, &l.TenantID, &configID, &l.ModelRequested, &l.ModelUsed,
			&inputDet, &outputDet, &l.InputBlocked, &l.OutputBlocked,
			&l.PromptTokens, &l.CompletionTokens, &l.TotalTokens, &l.ResponseTimeMs, &l.Status, &errMsg, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ProxyConfigID = configID.String
		l.InputDetectionID = inputDet.String
		l.OutputDetectionID = outputDet.String
		l.ErrorMessage = errMsg.String
		out = append(out, l)
	}
	return out, rows.Err()
}
