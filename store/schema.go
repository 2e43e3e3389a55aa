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

import "strings"

// Schema notes: identifiers are UUID strings, JSON-encoded arrays/objects go
// into TEXT columns so the DDL stays portable between PostgreSQL and MySQL.

const createTables = `
CREATE TABLE IF NOT EXISTS tenants (
	id VARCHAR(36) PRIMARY KEY,
	email VARCHAR(255) NOT NULL UNIQUE,
	password_hash VARCHAR(255) NOT NULL,
	api_key VARCHAR(64) NOT NULL UNIQUE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_verified BOOLEAN NOT NULL DEFAULT FALSE,
	is_super_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tenant_switch_sessions (
	id VARCHAR(36) PRIMARY KEY,
	admin_tenant_id VARCHAR(36) NOT NULL,
	target_tenant_id VARCHAR(36) NOT NULL,
	session_token VARCHAR(64) NOT NULL UNIQUE,
	expires_at TIMESTAMP NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS blacklists (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(36) NOT NULL,
	name VARCHAR(255) NOT NULL,
	keywords TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS whitelists (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(36) NOT NULL,
	name VARCHAR(255) NOT NULL,
	keywords TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS response_templates (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(36),
	category VARCHAR(16) NOT NULL,
	risk_level VARCHAR(16) NOT NULL,
	template_content TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS knowledge_bases (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(36) NOT NULL,
	category VARCHAR(16) NOT NULL,
	file_path TEXT NOT NULL,
	vector_file_path TEXT NOT NULL,
	total_qa_pairs INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_global BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_type_configs (
	tenant_id VARCHAR(36) PRIMARY KEY,
	enabled_types TEXT NOT NULL,
	high_sensitivity_threshold DOUBLE PRECISION NOT NULL,
	medium_sensitivity_threshold DOUBLE PRECISION NOT NULL,
	low_sensitivity_threshold DOUBLE PRECISION NOT NULL,
	sensitivity_trigger_level VARCHAR(16) NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS data_security_entity_types (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(36),
	entity_type VARCHAR(64) NOT NULL,
	display_name VARCHAR(255) NOT NULL,
	category VARCHAR(16) NOT NULL,
	recognition_config TEXT NOT NULL,
	anonymization_method VARCHAR(16) NOT NULL,
	anonymization_config TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_global BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS proxy_model_configs (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(36) NOT NULL,
	config_name VARCHAR(255) NOT NULL,
	api_base_url TEXT NOT NULL,
	api_key_encrypted TEXT NOT NULL,
	model_name VARCHAR(255) NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	block_on_input_risk BOOLEAN NOT NULL DEFAULT FALSE,
	block_on_output_risk BOOLEAN NOT NULL DEFAULT FALSE,
	enable_reasoning_detection BOOLEAN NOT NULL DEFAULT FALSE,
	stream_chunk_size INTEGER NOT NULL DEFAULT 50,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	CONSTRAINT uq_proxy_config_name UNIQUE (tenant_id, config_name)
);

CREATE TABLE IF NOT EXISTS proxy_request_logs (
	id VARCHAR(36) PRIMARY KEY,
	request_id VARCHAR(64) NOT NULL,
	tenant_id VARCHAR(36) NOT NULL,
	proxy_config_id VARCHAR(36),
	model_requested VARCHAR(255),
	model_used VARCHAR(255),
	input_detection_id VARCHAR(64),
	output_detection_id VARCHAR(64),
	input_blocked BOOLEAN NOT NULL DEFAULT FALSE,
	output_blocked BOOLEAN NOT NULL DEFAULT FALSE,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	response_time_ms BIGINT NOT NULL DEFAULT 0,
	status VARCHAR(32) NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS detection_results (
	id VARCHAR(36) PRIMARY KEY,
	request_id VARCHAR(64) NOT NULL UNIQUE,
	tenant_id VARCHAR(36) NOT NULL,
	content TEXT NOT NULL,
	suggest_action VARCHAR(16) NOT NULL,
	suggest_answer TEXT,
	model_response TEXT,
	security_risk_level VARCHAR(16) NOT NULL,
	security_categories TEXT,
	compliance_risk_level VARCHAR(16) NOT NULL,
	compliance_categories TEXT,
	data_risk_level VARCHAR(16) NOT NULL,
	data_categories TEXT,
	sensitivity_level VARCHAR(16),
	sensitivity_score DOUBLE PRECISION,
	has_image BOOLEAN NOT NULL DEFAULT FALSE,
	image_count INTEGER NOT NULL DEFAULT 0,
	image_paths TEXT,
	hit_keywords TEXT,
	ip_address VARCHAR(64),
	user_agent TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS user_rate_limits (
	tenant_id VARCHAR(36) PRIMARY KEY,
	requests_per_second INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS user_rate_limit_counters (
	tenant_id VARCHAR(36) PRIMARY KEY,
	current_count INTEGER NOT NULL,
	window_start TIMESTAMP NOT NULL,
	last_updated TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS ban_policies (
	tenant_id VARCHAR(36) PRIMARY KEY,
	enabled BOOLEAN NOT NULL DEFAULT FALSE,
	risk_level VARCHAR(16) NOT NULL,
	trigger_count INTEGER NOT NULL,
	time_window_minutes INTEGER NOT NULL,
	ban_duration_minutes INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS user_risk_triggers (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(36) NOT NULL,
	end_user_id VARCHAR(255) NOT NULL,
	risk_level VARCHAR(16) NOT NULL,
	triggered_at TIMESTAMP NOT NULL,
	detection_result_id VARCHAR(64)
);

CREATE TABLE IF NOT EXISTS user_ban_records (
	id VARCHAR(36) PRIMARY KEY,
	tenant_id VARCHAR(36) NOT NULL,
	end_user_id VARCHAR(255) NOT NULL,
	banned_at TIMESTAMP NOT NULL,
	ban_until TIMESTAMP NOT NULL,
	trigger_count INTEGER NOT NULL,
	risk_level VARCHAR(16) NOT NULL,
	reason TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS login_attempts (
	id VARCHAR(36) PRIMARY KEY,
	email VARCHAR(255) NOT NULL,
	ip VARCHAR(64) NOT NULL,
	success BOOLEAN NOT NULL,
	attempted_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS verification_codes (
	id VARCHAR(36) PRIMARY KEY,
	email VARCHAR(255) NOT NULL,
	code VARCHAR(6) NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	used BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL
);
`

// Secondary indexes. MySQL has no CREATE INDEX IF NOT EXISTS, so the MySQL
// backend runs with primary keys and unique constraints only.
const createIndexesPostgres = `
CREATE INDEX IF NOT EXISTS idx_blacklists_tenant ON blacklists(tenant_id);
CREATE INDEX IF NOT EXISTS idx_whitelists_tenant ON whitelists(tenant_id);
CREATE INDEX IF NOT EXISTS idx_templates_tenant ON response_templates(tenant_id);
CREATE INDEX IF NOT EXISTS idx_entity_types_tenant ON data_security_entity_types(tenant_id);
CREATE INDEX IF NOT EXISTS idx_proxy_configs_tenant ON proxy_model_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_proxy_logs_tenant ON proxy_request_logs(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_results_tenant ON detection_results(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_triggers_lookup ON user_risk_triggers(tenant_id, end_user_id, triggered_at);
CREATE INDEX IF NOT EXISTS idx_bans_lookup ON user_ban_records(tenant_id, end_user_id, is_active);
CREATE INDEX IF NOT EXISTS idx_login_attempts_lookup ON login_attempts(email, ip, attempted_at);
CREATE INDEX IF NOT EXISTS idx_switch_sessions_token ON tenant_switch_sessions(session_token);
`

func schemaStatements(driver string) []string {
	stmts := splitStatements(createTables)
	if driver == "postgres" {
		stmts = append(stmts, splitStatements(createIndexesPostgres)...)
	}
	return stmts
}

func splitStatements(ddl string) []string {
	var out []string
	for _, s := range strings.Split(ddl, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
