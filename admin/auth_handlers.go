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
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"xxai/platform/auth"
	"xxai/platform/store"
)

// Brute-force limit: five failed logins per (email, ip) in five minutes
const (
	maxLoginFailures   = 5
	loginFailureWindow = 5 * time.Minute
)

// maxSwitchSessionTTL caps super-admin impersonation sessions
const maxSwitchSessionTTL = 2 * time.Hour

// SendCode issues a registration verification code
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validEmail(req.Email) {
		auth.WriteJSONError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	if _, err := h.Tenants.GetByEmail(r.Context(), req.Email); err == nil {
		auth.WriteJSONError(w, http.StatusConflict, "email already registered")
		return
	} else if err != store.ErrNotFound {
		h.internalError(w, req.Email, "verification code lookup failed", err)
		return
	}

	code := generateCode()
	if err := h.Tenants.CreateVerificationCode(r.Context(), req.Email, code); err != nil {
		h.internalError(w, req.Email, "failed to store verification code", err)
		return
	}
	if err := h.Codes.Send(req.Email, code); err != nil {
		h.internalError(w, req.Email, "failed to deliver verification code", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "verification code sent"})
}

// RegisterTenant creates a tenant from a verified email and password
func (h *Handler) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validEmail(req.Email) {
		auth.WriteJSONError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		auth.WriteJSONError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if err := h.Tenants.ConsumeVerificationCode(r.Context(), req.Email, req.Code); err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid or expired verification code")
		return
	} else if err != nil {
		h.internalError(w, req.Email, "verification code check failed", err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.internalError(w, req.Email, "password hashing failed", err)
		return
	}
	tenant := &store.Tenant{
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
		IsVerified:   true,
	}
	if err := h.Tenants.Create(r.Context(), tenant); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			auth.WriteJSONError(w, http.StatusConflict, "email already registered")
			return
		}
		h.internalError(w, req.Email, "tenant creation failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"tenant_id": tenant.ID,
		"api_key":   tenant.APIKey,
	})
}

// Login verifies the password and returns a JWT
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		auth.WriteJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	ip := requestIP(r)

	failures, err := h.Tenants.CountRecentFailures(r.Context(), req.Email, ip, loginFailureWindow)
	if err != nil {
		h.internalError(w, req.Email, "login failure count failed", err)
		return
	}
	if failures >= maxLoginFailures {
		auth.WriteJSONError(w, http.StatusTooManyRequests, "too many failed logins, try again later")
		return
	}

	tenant, err := h.Tenants.GetByEmail(r.Context(), req.Email)
	if err == store.ErrNotFound || (err == nil && !auth.VerifyPassword(tenant.PasswordHash, req.Password)) {
		_ = h.Tenants.RecordLoginAttempt(r.Context(), req.Email, ip, false)
		auth.WriteJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.internalError(w, req.Email, "login lookup failed", err)
		return
	}
	if !tenant.IsActive {
		auth.WriteJSONError(w, http.StatusForbidden, "account is disabled")
		return
	}

	_ = h.Tenants.RecordLoginAttempt(r.Context(), req.Email, ip, true)
	token, err := h.Issuer.Issue(tenant.ID, tenant.Email, tenant.IsSuperAdmin)
	if err != nil {
		h.internalError(w, req.Email, "token issuance failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":   token,
		"token_type":     "bearer",
		"tenant_id":      tenant.ID,
		"is_super_admin": tenant.IsSuperAdmin,
	})
}

// Me returns the caller's tenant profile
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	tenant, err := h.Tenants.GetByID(r.Context(), identity.TenantID)
	if err != nil {
		h.internalError(w, identity.TenantID, "tenant lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":      tenant.ID,
		"email":          tenant.Email,
		"api_key":        tenant.APIKey,
		"is_super_admin": tenant.IsSuperAdmin,
		"switched":       identity.Switched(),
	})
}

// RotateAPIKey mints a fresh API key and drops the old one from the auth cache
func (h *Handler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	tenant, err := h.Tenants.GetByID(r.Context(), identity.TenantID)
	if err != nil {
		h.internalError(w, identity.TenantID, "tenant lookup failed", err)
		return
	}

	key, err := h.Tenants.RotateAPIKey(r.Context(), identity.TenantID)
	if err != nil {
		h.internalError(w, identity.TenantID, "api key rotation failed", err)
		return
	}
	h.Resolver.Invalidate(tenant.APIKey)
	writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
}

// OpenSwitchSession lets a super-admin start acting as another tenant
func (h *Handler) OpenSwitchSession(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if !identity.IsSuperAdmin || identity.Switched() {
		auth.WriteJSONError(w, http.StatusForbidden, "super admin required")
		return
	}

	var req struct {
		TargetTenantID string `json:"target_tenant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetTenantID == "" {
		auth.WriteJSONError(w, http.StatusBadRequest, "target_tenant_id is required")
		return
	}
	if _, err := h.Tenants.GetByID(r.Context(), req.TargetTenantID); err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "target tenant not found")
		return
	} else if err != nil {
		h.internalError(w, identity.TenantID, "target tenant lookup failed", err)
		return
	}

	session, err := h.Switches.Create(r.Context(), identity.TenantID, req.TargetTenantID, maxSwitchSessionTTL)
	if err != nil {
		h.internalError(w, identity.TenantID, "switch session creation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_token":    session.SessionToken,
		"target_tenant_id": session.TargetTenantID,
		"expires_at":       session.ExpiresAt.Format(time.RFC3339),
	})
}

// CloseSwitchSessions ends one session (by token) or all of the admin's
func (h *Handler) CloseSwitchSessions(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	admin := identity.TenantID
	if identity.Switched() {
		admin = identity.AdminTenantID
	}

	var err error
	if token := mux.Vars(r)["token"]; token != "" {
		err = h.Switches.Close(r.Context(), admin, token)
	} else {
		err = h.Switches.CloseAll(r.Context(), admin)
	}
	if err != nil && err != store.ErrNotFound {
		h.internalError(w, admin, "switch session close failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTenants pages all tenants (super admin)
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if !identity.IsSuperAdmin {
		auth.WriteJSONError(w, http.StatusForbidden, "super admin required")
		return
	}
	limit, offset := pageParams(r)
	tenants, err := h.Tenants.List(r.Context(), limit, offset)
	if err != nil {
		h.internalError(w, identity.TenantID, "tenant list failed", err)
		return
	}

	out := make([]map[string]interface{}, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, map[string]interface{}{
			"tenant_id":      t.ID,
			"email":          t.Email,
			"is_active":      t.IsActive,
			"is_verified":    t.IsVerified,
			"is_super_admin": t.IsSuperAdmin,
			"created_at":     t.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tenants": out})
}

// SetTenantActive toggles a tenant on or off (super admin)
func (h *Handler) SetTenantActive(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if !identity.IsSuperAdmin {
		auth.WriteJSONError(w, http.StatusForbidden, "super admin required")
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Tenants.SetActive(r.Context(), mux.Vars(r)["id"], req.Active); err != nil {
		h.internalError(w, identity.TenantID, "tenant activation update failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

func requestIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
