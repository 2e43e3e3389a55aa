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
	"net/http"

	"github.com/gorilla/mux"

	"xxai/platform/auth"
	"xxai/platform/store"
)

// ListResults pages the tenant's detection results newest first
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	tenantID := h.targetTenant(r, identity)
	limit, offset := pageParams(r)

	results, err := h.Results.ListResults(r.Context(), tenantID, limit, offset)
	if err != nil {
		h.internalError(w, identity.TenantID, "detection result query failed", err)
		return
	}
	total, err := h.Results.CountResults(r.Context(), tenantID)
	if err != nil {
		h.internalError(w, identity.TenantID, "detection result count failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   total,
	})
}

// GetResult returns one detection result by request id
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	tenantID := h.targetTenant(r, identity)

	result, err := h.Results.GetResult(r.Context(), tenantID, mux.Vars(r)["request_id"])
	if err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "detection result not found")
		return
	}
	if err != nil {
		h.internalError(w, identity.TenantID, "detection result lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListProxyLogs pages the tenant's proxy request logs newest first
func (h *Handler) ListProxyLogs(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	tenantID := h.targetTenant(r, identity)
	limit, offset := pageParams(r)

	logs, err := h.Results.ListProxyLogs(r.Context(), tenantID, limit, offset)
	if err != nil {
		h.internalError(w, identity.TenantID, "proxy log query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}
