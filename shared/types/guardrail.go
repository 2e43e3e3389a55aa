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

package types

import "time"

// Classifier model names
const (
	ModelText   = "Xiangxin-Guardrails-Text"
	ModelVision = "Xiangxin-Guardrails-VL"
)

// GuardrailRequest is the body of POST /v1/guardrails
type GuardrailRequest struct {
	Model     string     `json:"model,omitempty"`
	Messages  []Message  `json:"messages"`
	ExtraBody *ExtraBody `json:"extra_body,omitempty"`
}

// ExtraBody carries out-of-band request parameters.
// XXAIAppUserID names the downstream end user for the ban policy; it is
// distinct from the acting tenant.
type ExtraBody struct {
	XXAIAppUserID string `json:"xxai_app_user_id,omitempty"`
}

// InputCheckRequest is the body of POST /v1/guardrails/input
type InputCheckRequest struct {
	Input         string `json:"input"`
	Model         string `json:"model,omitempty"`
	XXAIAppUserID string `json:"xxai_app_user_id,omitempty"`
}

// OutputCheckRequest is the body of POST /v1/guardrails/output
type OutputCheckRequest struct {
	Input         string `json:"input"`
	Output        string `json:"output"`
	XXAIAppUserID string `json:"xxai_app_user_id,omitempty"`
}

// RiskDimension is one axis of the verdict (compliance, security or data)
type RiskDimension struct {
	RiskLevel  RiskLevel `json:"risk_level"`
	Categories []string  `json:"categories"`
}

// GuardrailResult groups the three risk dimensions
type GuardrailResult struct {
	Compliance RiskDimension `json:"compliance"`
	Security   RiskDimension `json:"security"`
	Data       RiskDimension `json:"data"`
}

// GuardrailResponse is the structured verdict returned by the detection API
type GuardrailResponse struct {
	ID               string           `json:"id"`
	Result           GuardrailResult  `json:"result"`
	OverallRiskLevel RiskLevel        `json:"overall_risk_level"`
	SuggestAction    SuggestAction    `json:"suggest_action"`
	SuggestAnswer    string           `json:"suggest_answer,omitempty"`
	SensitivityScore *float64         `json:"sensitivity_score,omitempty"`
	SensitivityLevel SensitivityLevel `json:"sensitivity_level,omitempty"`
}

// IsSafe reports whether all three dimensions are risk free
func (r *GuardrailResponse) IsSafe() bool {
	return r.OverallRiskLevel == RiskNone
}

// Blocked reports whether the action cuts or replaces the content
func (r *GuardrailResponse) Blocked() bool {
	return r.SuggestAction == ActionReject || r.SuggestAction == ActionReplace
}

// DetectionRecord is one line of the daily detection JSONL file, later
// imported into the detection_results table keyed by RequestID.
type DetectionRecord struct {
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

// ErrorDetail is the generic JSON error body: {"detail": "..."}
type ErrorDetail struct {
	Detail string `json:"detail"`
}

// BanError is the 403 body returned while a ban is in effect
type BanError struct {
	Error    string    `json:"error"`
	BanUntil time.Time `json:"ban_until"`
	Reason   string    `json:"reason"`
}
