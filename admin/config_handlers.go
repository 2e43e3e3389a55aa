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

package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"xxai/platform/auth"
	"xxai/platform/shared/types"
	"xxai/platform/store"
)

// Keyword lists (blacklist=true selects the blacklist tables)

type keywordListBody struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	IsActive *bool    `json:"is_active"`
}

// ListKeywordLists returns the tenant's blacklists or whitelists
func (h *Handler) ListKeywordLists(blacklist bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := auth.IdentityFrom(r.Context())
		lists, err := h.Configs.ListKeywordLists(r.Context(), blacklist, identity.TenantID)
		if err != nil {
			h.internalError(w, identity.TenantID, "keyword list query failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"lists": lists2JSON(lists)})
	}
}

// CreateKeywordList adds a keyword list and invalidates the keyword cache
func (h *Handler) CreateKeywordList(blacklist bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := auth.IdentityFrom(r.Context())
		var body keywordListBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" || len(body.Keywords) == 0 {
			auth.WriteJSONError(w, http.StatusBadRequest, "name and keywords are required")
			return
		}
		l := &store.KeywordList{
			TenantID: identity.TenantID,
			Name:     body.Name,
			Keywords: body.Keywords,
			IsActive: body.IsActive == nil || *body.IsActive,
		}
		if err := h.Configs.CreateKeywordList(r.Context(), blacklist, l); err != nil {
			h.internalError(w, identity.TenantID, "keyword list creation failed", err)
			return
		}
		h.Keywords.Invalidate()
		writeJSON(w, http.StatusCreated, keywordList2JSON(l))
	}
}

// UpdateKeywordList rewrites a keyword list and invalidates the keyword cache
func (h *Handler) UpdateKeywordList(blacklist bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := auth.IdentityFrom(r.Context())
		var body keywordListBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			auth.WriteJSONError(w, http.StatusBadRequest, "name is required")
			return
		}
		l := &store.KeywordList{
			ID:       mux.Vars(r)["id"],
			TenantID: identity.TenantID,
			Name:     body.Name,
			Keywords: body.Keywords,
			IsActive: body.IsActive == nil || *body.IsActive,
		}
		if err := h.Configs.UpdateKeywordList(r.Context(), blacklist, l); err == store.ErrNotFound {
			auth.WriteJSONError(w, http.StatusNotFound, "keyword list not found")
			return
		} else if err != nil {
			h.internalError(w, identity.TenantID, "keyword list update failed", err)
			return
		}
		h.Keywords.Invalidate()
		writeJSON(w, http.StatusOK, keywordList2JSON(l))
	}
}

// DeleteKeywordList removes a keyword list and invalidates the keyword cache
func (h *Handler) DeleteKeywordList(blacklist bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := auth.IdentityFrom(r.Context())
		err := h.Configs.DeleteKeywordList(r.Context(), blacklist, identity.TenantID, mux.Vars(r)["id"])
		if err == store.ErrNotFound {
			auth.WriteJSONError(w, http.StatusNotFound, "keyword list not found")
			return
		}
		if err != nil {
			h.internalError(w, identity.TenantID, "keyword list deletion failed", err)
			return
		}
		h.Keywords.Invalidate()
		w.WriteHeader(http.StatusNoContent)
	}
}

// Response templates

type templateBody struct {
	Category        string `json:"category"`
	RiskLevel       string `json:"risk_level"`
	TemplateContent string `json:"template_content"`
	IsDefault       bool   `json:"is_default"`
	IsActive        *bool  `json:"is_active"`
	IsGlobal        bool   `json:"is_global"`
}

// ListTemplates returns the tenant's response templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	templates, err := h.Configs.ListTemplates(r.Context(), identity.TenantID)
	if err != nil {
		h.internalError(w, identity.TenantID, "template query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

// CreateTemplate adds a response template. is_global requires super admin
// and writes a template visible to every tenant.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	var body templateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Category == "" || body.TemplateContent == "" {
		auth.WriteJSONError(w, http.StatusBadRequest, "category and template_content are required")
		return
	}
	tenantID, ok := h.scopeFor(w, identity, body.IsGlobal)
	if !ok {
		return
	}

	t := &store.ResponseTemplate{
		TenantID:        tenantID,
		Category:        body.Category,
		RiskLevel:       body.RiskLevel,
		TemplateContent: body.TemplateContent,
		IsDefault:       body.IsDefault,
		IsActive:        body.IsActive == nil || *body.IsActive,
	}
	if err := h.Configs.CreateTemplate(r.Context(), t); err != nil {
		h.internalError(w, identity.TenantID, "template creation failed", err)
		return
	}
	h.Templates.Invalidate()
	writeJSON(w, http.StatusCreated, t)
}

// UpdateTemplate rewrites a response template
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	var body templateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tenantID, ok := h.scopeFor(w, identity, body.IsGlobal)
	if !ok {
		return
	}

	t := &store.ResponseTemplate{
		ID:              mux.Vars(r)["id"],
		TenantID:        tenantID,
		Category:        body.Category,
		RiskLevel:       body.RiskLevel,
		TemplateContent: body.TemplateContent,
		IsDefault:       body.IsDefault,
		IsActive:        body.IsActive == nil || *body.IsActive,
	}
	if err := h.Configs.UpdateTemplate(r.Context(), t); err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "template not found")
		return
	} else if err != nil {
		h.internalError(w, identity.TenantID, "template update failed", err)
		return
	}
	h.Templates.Invalidate()
	writeJSON(w, http.StatusOK, t)
}

// DeleteTemplate removes a response template
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	err := h.Configs.DeleteTemplate(r.Context(), identity.TenantID, mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "template not found")
		return
	}
	if err != nil {
		h.internalError(w, identity.TenantID, "template deletion failed", err)
		return
	}
	h.Templates.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// Risk type configuration

// GetRiskConfig returns the tenant's risk type configuration (defaults when unset)
func (h *Handler) GetRiskConfig(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	cfg, err := h.Configs.GetRiskTypeConfig(r.Context(), identity.TenantID)
	if err == store.ErrNotFound {
		writeJSON(w, http.StatusOK, defaultRiskConfigJSON(identity.TenantID))
		return
	}
	if err != nil {
		h.internalError(w, identity.TenantID, "risk config query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutRiskConfig writes the tenant's risk type configuration and invalidates
// its cache entry
func (h *Handler) PutRiskConfig(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	var cfg store.RiskTypeConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for code := range cfg.Enabled {
		if !types.ValidCategory(code) {
			auth.WriteJSONError(w, http.StatusBadRequest, "unknown risk category "+code)
			return
		}
	}
	cfg.TenantID = identity.TenantID
	if err := h.Configs.UpsertRiskTypeConfig(r.Context(), &cfg); err != nil {
		h.internalError(w, identity.TenantID, "risk config write failed", err)
		return
	}
	h.RiskCfgs.Invalidate(identity.TenantID)
	writeJSON(w, http.StatusOK, cfg)
}

// Data security entity types

type entityTypeBody struct {
	EntityType          string                   `json:"entity_type"`
	DisplayName         string                   `json:"display_name"`
	Category            string                   `json:"category"`
	Recognition         store.RecognitionConfig  `json:"recognition_config"`
	AnonymizationMethod string                   `json:"anonymization_method"`
	AnonymizationConfig map[string]interface{}   `json:"anonymization_config"`
	IsActive            *bool                    `json:"is_active"`
	IsGlobal            bool                     `json:"is_global"`
}

// ListEntityTypes returns the entity types visible to the tenant
func (h *Handler) ListEntityTypes(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	entities, err := h.Configs.LoadActiveEntityTypes(r.Context(), identity.TenantID)
	if err != nil {
		h.internalError(w, identity.TenantID, "entity type query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entity_types": entities})
}

// CreateEntityType adds a sensitive-entity definition
func (h *Handler) CreateEntityType(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	var body entityTypeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.EntityType == "" || body.Recognition.Pattern == "" {
		auth.WriteJSONError(w, http.StatusBadRequest, "entity_type and recognition_config.pattern are required")
		return
	}
	tenantID, ok := h.scopeFor(w, identity, body.IsGlobal)
	if !ok {
		return
	}

	e := &store.DataSecurityEntityType{
		TenantID:            tenantID,
		EntityType:          body.EntityType,
		DisplayName:         body.DisplayName,
		Category:            body.Category,
		Recognition:         body.Recognition,
		AnonymizationMethod: body.AnonymizationMethod,
		AnonymizationConfig: body.AnonymizationConfig,
		IsActive:            body.IsActive == nil || *body.IsActive,
		IsGlobal:            body.IsGlobal,
	}
	if err := h.Configs.CreateEntityType(r.Context(), e); err != nil {
		h.internalError(w, identity.TenantID, "entity type creation failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateEntityType rewrites a sensitive-entity definition
func (h *Handler) UpdateEntityType(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	var body entityTypeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tenantID, ok := h.scopeFor(w, identity, body.IsGlobal)
	if !ok {
		return
	}

	e := &store.DataSecurityEntityType{
		ID:                  mux.Vars(r)["id"],
		TenantID:            tenantID,
		EntityType:          body.EntityType,
		DisplayName:         body.DisplayName,
		Category:            body.Category,
		Recognition:         body.Recognition,
		AnonymizationMethod: body.AnonymizationMethod,
		AnonymizationConfig: body.AnonymizationConfig,
		IsActive:            body.IsActive == nil || *body.IsActive,
		IsGlobal:            body.IsGlobal,
	}
	if err := h.Configs.UpdateEntityType(r.Context(), e); err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "entity type not found")
		return
	} else if err != nil {
		h.internalError(w, identity.TenantID, "entity type update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteEntityType removes a sensitive-entity definition
func (h *Handler) DeleteEntityType(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	err := h.Configs.DeleteEntityType(r.Context(), identity.TenantID, mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "entity type not found")
		return
	}
	if err != nil {
		h.internalError(w, identity.TenantID, "entity type deletion failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Proxy model configs

type proxyConfigBody struct {
	ConfigName               string `json:"config_name"`
	APIBaseURL               string `json:"api_base_url"`
	APIKey                   string `json:"api_key"`
	ModelName                string `json:"model_name"`
	Enabled                  *bool  `json:"enabled"`
	BlockOnInputRisk         bool   `json:"block_on_input_risk"`
	BlockOnOutputRisk        bool   `json:"block_on_output_risk"`
	EnableReasoningDetection bool   `json:"enable_reasoning_detection"`
	StreamChunkSize          int    `json:"stream_chunk_size"`
}

// ListProxyConfigs returns the tenant's proxy model configs, keys omitted
func (h *Handler) ListProxyConfigs(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	configs, err := h.ProxyCfg.List(r.Context(), identity.TenantID)
	if err != nil {
		h.internalError(w, identity.TenantID, "proxy config query failed", err)
		return
	}
	out := make([]map[string]interface{}, 0, len(configs))
	for _, c := range configs {
		out = append(out, proxyConfig2JSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"configs": out})
}

// CreateProxyConfig adds a proxy model config; the upstream key is encrypted
// at rest
func (h *Handler) CreateProxyConfig(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	var body proxyConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.ConfigName == "" || body.APIBaseURL == "" || body.APIKey == "" || body.ModelName == "" {
		auth.WriteJSONError(w, http.StatusBadRequest, "config_name, api_base_url, api_key and model_name are required")
		return
	}
	if body.StreamChunkSize < 0 || body.StreamChunkSize > 500 {
		auth.WriteJSONError(w, http.StatusBadRequest, "stream_chunk_size must be between 1 and 500")
		return
	}

	encrypted, err := h.Crypter.Encrypt(body.APIKey)
	if err != nil {
		h.internalError(w, identity.TenantID, "api key encryption failed", err)
		return
	}
	c := &store.ProxyModelConfig{
		TenantID:                 identity.TenantID,
		ConfigName:               body.ConfigName,
		APIBaseURL:               body.APIBaseURL,
		APIKeyEncrypted:          encrypted,
		ModelName:                body.ModelName,
		Enabled:                  body.Enabled == nil || *body.Enabled,
		BlockOnInputRisk:         body.BlockOnInputRisk,
		BlockOnOutputRisk:        body.BlockOnOutputRisk,
		EnableReasoningDetection: body.EnableReasoningDetection,
		StreamChunkSize:          body.StreamChunkSize,
	}
	if err := h.ProxyCfg.Create(r.Context(), c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			auth.WriteJSONError(w, http.StatusConflict, "config name already exists")
			return
		}
		h.internalError(w, identity.TenantID, "proxy config creation failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, proxyConfig2JSON(c))
}

// UpdateProxyConfig rewrites a proxy model config. An empty api_key keeps the
// stored one.
func (h *Handler) UpdateProxyConfig(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	var body proxyConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.StreamChunkSize < 0 || body.StreamChunkSize > 500 {
		auth.WriteJSONError(w, http.StatusBadRequest, "stream_chunk_size must be between 1 and 500")
		return
	}

	existing, err := h.ProxyCfg.GetByID(r.Context(), identity.TenantID, mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "proxy config not found")
		return
	}
	if err != nil {
		h.internalError(w, identity.TenantID, "proxy config lookup failed", err)
		return
	}

	keyEncrypted := existing.APIKeyEncrypted
	if body.APIKey != "" {
		if keyEncrypted, err = h.Crypter.Encrypt(body.APIKey); err != nil {
			h.internalError(w, identity.TenantID, "api key encryption failed", err)
			return
		}
	}
	c := &store.ProxyModelConfig{
		ID:                       existing.ID,
		TenantID:                 identity.TenantID,
		ConfigName:               body.ConfigName,
		APIBaseURL:               body.APIBaseURL,
		APIKeyEncrypted:          keyEncrypted,
		ModelName:                body.ModelName,
		Enabled:                  body.Enabled == nil || *body.Enabled,
		BlockOnInputRisk:         body.BlockOnInputRisk,
		BlockOnOutputRisk:        body.BlockOnOutputRisk,
		EnableReasoningDetection: body.EnableReasoningDetection,
		StreamChunkSize:          body.StreamChunkSize,
	}
	if err := h.ProxyCfg.Update(r.Context(), c); err != nil {
		h.internalError(w, identity.TenantID, "proxy config update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, proxyConfig2JSON(c))
}

// DeleteProxyConfig removes a proxy model config
func (h *Handler) DeleteProxyConfig(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	err := h.ProxyCfg.Delete(r.Context(), identity.TenantID, mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "proxy config not found")
		return
	}
	if err != nil {
		h.internalError(w, identity.TenantID, "proxy config deletion failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rate limits

// GetRateLimit returns a tenant's requests-per-second cap
func (h *Handler) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	tenantID := h.targetTenant(r, identity)

	limit, err := h.Limits.GetLimit(r.Context(), tenantID)
	if err == store.ErrNotFound {
		writeJSON(w, http.StatusOK, map[string]interface{}{"tenant_id": tenantID, "requests_per_second": 0})
		return
	}
	if err != nil {
		h.internalError(w, identity.TenantID, "rate limit query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":           limit.TenantID,
		"requests_per_second": limit.RequestsPerSecond,
	})
}

// PutRateLimit sets a tenant's requests-per-second cap (super admin)
func (h *Handler) PutRateLimit(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if !identity.IsSuperAdmin {
		auth.WriteJSONError(w, http.StatusForbidden, "super admin required")
		return
	}
	var body struct {
		TenantID          string `json:"tenant_id"`
		RequestsPerSecond int    `json:"requests_per_second"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TenantID == "" || body.RequestsPerSecond < 0 {
		auth.WriteJSONError(w, http.StatusBadRequest, "tenant_id and a non-negative requests_per_second are required")
		return
	}
	limit := &store.UserRateLimit{
		TenantID:          body.TenantID,
		RequestsPerSecond: body.RequestsPerSecond,
		IsActive:          true,
	}
	if err := h.Limits.UpsertLimit(r.Context(), limit); err != nil {
		h.internalError(w, identity.TenantID, "rate limit write failed", err)
		return
	}
	h.Limiter.Invalidate(body.TenantID)
	writeJSON(w, http.StatusOK, limit)
}

// Ban policy and ban records

// GetBanPolicy returns the tenant's ban policy (disabled default when unset)
func (h *Handler) GetBanPolicy(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	policy, err := h.Bans.GetPolicy(r.Context(), identity.TenantID)
	if err == store.ErrNotFound {
		writeJSON(w, http.StatusOK, &store.BanPolicy{
			TenantID:           identity.TenantID,
			RiskLevel:          string(types.RiskHigh),
			TriggerCount:       3,
			TimeWindowMinutes:  10,
			BanDurationMinutes: 60,
		})
		return
	}
	if err != nil {
		h.internalError(w, identity.TenantID, "ban policy query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// PutBanPolicy writes the tenant's ban policy
func (h *Handler) PutBanPolicy(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	var policy store.BanPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if types.RiskLevel(policy.RiskLevel).Priority() <= 0 {
		auth.WriteJSONError(w, http.StatusBadRequest, "risk_level must be low_risk, medium_risk or high_risk")
		return
	}
	if policy.TriggerCount <= 0 || policy.TimeWindowMinutes <= 0 || policy.BanDurationMinutes <= 0 {
		auth.WriteJSONError(w, http.StatusBadRequest, "trigger_count, time_window_minutes and ban_duration_minutes must be positive")
		return
	}
	policy.TenantID = identity.TenantID
	if err := h.Bans.UpsertPolicy(r.Context(), &policy); err != nil {
		h.internalError(w, identity.TenantID, "ban policy write failed", err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// ListBans pages the tenant's ban records
func (h *Handler) ListBans(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	limit, offset := pageParams(r)
	bans, err := h.Bans.ListBans(r.Context(), identity.TenantID, limit, offset)
	if err != nil {
		h.internalError(w, identity.TenantID, "ban record query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bans": bans})
}

// Unban lifts an end user's active bans
func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	endUser := mux.Vars(r)["end_user_id"]
	err := h.Bans.Unban(r.Context(), identity.TenantID, endUser)
	if err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "no active ban for this user")
		return
	}
	if err != nil {
		h.internalError(w, identity.TenantID, "unban failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scopeFor resolves the write scope: global writes demand super admin
func (h *Handler) scopeFor(w http.ResponseWriter, identity *auth.Identity, global bool) (string, bool) {
	if !global {
		return identity.TenantID, true
	}
	if !identity.IsSuperAdmin {
		auth.WriteJSONError(w, http.StatusForbidden, "super admin required for global entries")
		return "", false
	}
	return "", true
}

// targetTenant lets a super admin address another tenant via ?tenant_id=
func (h *Handler) targetTenant(r *http.Request, identity *auth.Identity) string {
	if identity.IsSuperAdmin {
		if t := r.URL.Query().Get("tenant_id"); t != "" {
			return t
		}
	}
	return identity.TenantID
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func defaultRiskConfigJSON(tenantID string) *store.RiskTypeConfig {
	enabled := map[string]bool{}
	for _, c := range types.AllCategories() {
		enabled[string(c)] = true
	}
	return &store.RiskTypeConfig{
		TenantID:                   tenantID,
		Enabled:                    enabled,
		HighSensitivityThreshold:   types.DefaultHighThreshold,
		MediumSensitivityThreshold: types.DefaultMediumThreshold,
		LowSensitivityThreshold:    types.DefaultLowThreshold,
		SensitivityTriggerLevel:    string(types.SensitivityMedium),
	}
}

func keywordList2JSON(l *store.KeywordList) map[string]interface{} {
	return map[string]interface{}{
		"id":        l.ID,
		"name":      l.Name,
		"keywords":  l.Keywords,
		"is_active": l.IsActive,
	}
}

func lists2JSON(lists []*store.KeywordList) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(lists))
	for _, l := range lists {
		out = append(out, keywordList2JSON(l))
	}
	return out
}

func proxyConfig2JSON(c *store.ProxyModelConfig) map[string]interface{} {
	return map[string]interface{}{
		"id":                         c.ID,
		"config_name":                c.ConfigName,
		"api_base_url":               c.APIBaseURL,
		"model_name":                 c.ModelName,
		"enabled":                    c.Enabled,
		"block_on_input_risk":        c.BlockOnInputRisk,
		"block_on_output_risk":       c.BlockOnOutputRisk,
		"enable_reasoning_detection": c.EnableReasoningDetection,
		"stream_chunk_size":          c.StreamChunkSize,
	}
}
