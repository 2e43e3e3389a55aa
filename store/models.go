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

import "time"

// Tenant is a principal holding API keys and owning all configuration
type Tenant struct {
	ID           string
	Email        string
	PasswordHash string
	APIKey       string
	IsActive     bool
	IsVerified   bool
	IsSuperAdmin bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TenantSwitch is a super-admin impersonation session
type TenantSwitch struct {
	ID             string
	AdminTenantID  string
	TargetTenantID string
	SessionToken   string
	ExpiresAt      time.Time
	IsActive       bool
	CreatedAt      time.Time
}

// KeywordList is a blacklist or whitelist of keywords owned by a tenant
type KeywordList struct {
	ID        string
	TenantID  string
	Name      string
	Keywords  []string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResponseTemplate is a substitute-answer template for a risk category.
// TenantID empty means a global default writable only by the super-admin.
type ResponseTemplate struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id,omitempty"`
	Category        string    `json:"category"`
	RiskLevel       string    `json:"risk_level"`
	TemplateContent string    `json:"template_content"`
	IsDefault       bool      `json:"is_default"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// KnowledgeBase points at an external QA retrieval index for a category
type KnowledgeBase struct {
	ID             string
	TenantID       string
	Category       string
	FilePath       string
	VectorFilePath string
	TotalQAPairs   int
	IsActive       bool
	IsGlobal       bool
	CreatedAt      time.Time
}

// RiskTypeConfig is the per-tenant singleton of category toggles and thresholds
type RiskTypeConfig struct {
	TenantID                   string          `json:"tenant_id"`
	Enabled                    map[string]bool `json:"enabled"` // category code -> enabled
	HighSensitivityThreshold   float64         `json:"high_sensitivity_threshold"`
	MediumSensitivityThreshold float64         `json:"medium_sensitivity_threshold"`
	LowSensitivityThreshold    float64         `json:"low_sensitivity_threshold"`
	SensitivityTriggerLevel    string          `json:"sensitivity_trigger_level"`
	UpdatedAt                  time.Time       `json:"updated_at"`
}

// RecognitionConfig controls how a data-security entity type matches
type RecognitionConfig struct {
	Pattern     string `json:"pattern"`
	CheckInput  bool   `json:"check_input"`
	CheckOutput bool   `json:"check_output"`
}

// DataSecurityEntityType is a regex-recognized sensitive entity definition.
// TenantID empty means a global type writable only by the super-admin.
type DataSecurityEntityType struct {
	ID                  string                 `json:"id"`
	TenantID            string                 `json:"tenant_id,omitempty"`
	EntityType          string                 `json:"entity_type"`
	DisplayName         string                 `json:"display_name"`
	Category            string                 `json:"category"` // low, medium, high
	Recognition         RecognitionConfig      `json:"recognition_config"`
	AnonymizationMethod string                 `json:"anonymization_method"` // replace, mask, hash, encrypt, shuffle, random
	AnonymizationConfig map[string]interface{} `json:"anonymization_config"`
	IsActive            bool                   `json:"is_active"`
	IsGlobal            bool                   `json:"is_global"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// ProxyModelConfig maps a tenant-facing model name onto an upstream provider
type ProxyModelConfig struct {
	ID                        string
	TenantID                  string
	ConfigName                string
	APIBaseURL                string
	APIKeyEncrypted           string
	ModelName                 string
	Enabled                   bool
	BlockOnInputRisk          bool
	BlockOnOutputRisk         bool
	EnableReasoningDetection  bool
	StreamChunkSize           int
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// ProxyRequestLog is the per-request record written by the proxy service
type ProxyRequestLog struct {
	ID                string    `json:"id"`
	RequestID         string    `json:"request_id"`
	TenantID          string    `json:"tenant_id"`
	ProxyConfigID     string    `json:"proxy_config_id,omitempty"`
	ModelRequested    string    `json:"model_requested"`
	ModelUsed         string    `json:"model_used"`
	InputDetectionID  string    `json:"input_detection_id,omitempty"`
	OutputDetectionID string    `json:"output_detection_id,omitempty"`
	InputBlocked      bool      `json:"input_blocked"`
	OutputBlocked     bool      `json:"output_blocked"`
	PromptTokens      int       `json:"prompt_tokens"`
	CompletionTokens  int       `json:"completion_tokens"`
	TotalTokens       int       `json:"total_tokens"`
	ResponseTimeMs    int64     `json:"response_time_ms"`
	Status            string    `json:"status"` // success, blocked, stream_success, stream_blocked, error
	ErrorMessage      string    `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// DetectionResult is the durable row imported from the detection JSONL log
type DetectionResult struct {
	ID                   string    `json:"id"`
	RequestID            string    `json:"request_id"`
	TenantID             string    `json:"tenant_id"`
	Content              string    `json:"content"`
	SuggestAction        string    `json:"suggest_action"`
	SuggestAnswer        string    `json:"suggest_answer,omitempty"`
	ModelResponse        string    `json:"model_response,omitempty"`
	SecurityRiskLevel    string    `json:"security_risk_level"`
	SecurityCategories   []string  `json:"security_categories"`
	ComplianceRiskLevel  string    `json:"compliance_risk_level"`
	ComplianceCategories []string  `json:"compliance_categories"`
	DataRiskLevel        string    `json:"data_risk_level"`
	DataCategories       []string  `json:"data_categories"`
	SensitivityLevel     string    `json:"sensitivity_level,omitempty"`
	SensitivityScore     *float64  `json:"sensitivity_score,omitempty"`
	HasImage             bool      `json:"has_image"`
	ImageCount           int       `json:"image_count"`
	ImagePaths           []string  `json:"image_paths,omitempty"`
	HitKeywords          string    `json:"hit_keywords,omitempty"`
	IPAddress            string    `json:"ip_address,omitempty"`
	UserAgent            string    `json:"user_agent,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// UserRateLimit is the per-tenant requests-per-second cap (0 = unlimited)
type UserRateLimit struct {
	TenantID          string    `json:"tenant_id"`
	RequestsPerSecond int       `json:"requests_per_second"`
	IsActive          bool      `json:"is_active"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BanPolicy configures automatic end-user bans per tenant
type BanPolicy struct {
	TenantID           string    `json:"tenant_id"`
	Enabled            bool      `json:"enabled"`
	RiskLevel          string    `json:"risk_level"`
	TriggerCount       int       `json:"trigger_count"`
	TimeWindowMinutes  int       `json:"time_window_minutes"`
	BanDurationMinutes int       `json:"ban_duration_minutes"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// UserRiskTrigger is one risky request attributed to an end user
type UserRiskTrigger struct {
	ID                string
	TenantID          string
	EndUserID         string
	RiskLevel         string
	TriggeredAt       time.Time
	DetectionResultID string
}

// UserBanRecord is an active or expired end-user ban
type UserBanRecord struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	EndUserID    string    `json:"end_user_id"`
	BannedAt     time.Time `json:"banned_at"`
	BanUntil     time.Time `json:"ban_until"`
	TriggerCount int       `json:"trigger_count"`
	RiskLevel    string    `json:"risk_level"`
	Reason       string    `json:"reason"`
	IsActive     bool      `json:"is_active"`
}

// LoginAttempt records a login try for brute-force limiting
type LoginAttempt struct {
	ID          string
	Email       string
	IP          string
	Success     bool
	AttemptedAt time.Time
}

// VerificationCode is a pending email verification code (6 digits, 10 min TTL)
type VerificationCode struct {
	ID        string
	Email     string
	Code      string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
