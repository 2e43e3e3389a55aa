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

package detection

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"xxai/platform/auth"
	"xxai/platform/guardrails"
	"xxai/platform/media"
	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
)

// Handler serves the detection API
type Handler struct {
	Pipeline *guardrails.Pipeline
	Media    *media.Service
	Recorder *guardrails.Recorder
	Mw       *auth.Middleware
	Log      *logger.Logger
}

// Register mounts the detection routes behind the authenticated chain
func (h *Handler) Register(r *mux.Router, authed func(http.Handler) http.Handler) {
	r.Handle("/v1/guardrails", authed(http.HandlerFunc(h.CheckConversation))).Methods("POST")
	r.Handle("/v1/guardrails/input", authed(http.HandlerFunc(h.CheckInput))).Methods("POST")
	r.Handle("/v1/guardrails/output", authed(http.HandlerFunc(h.CheckOutput))).Methods("POST")
	r.HandleFunc("/v1/guardrails/health", h.Health).Methods("GET")
	r.HandleFunc("/v1/guardrails/models", h.Models).Methods("GET")
}

// CheckConversation inspects a full message list, ingesting any image parts
func (h *Handler) CheckConversation(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		auth.WriteJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	var req types.GuardrailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	endUser := ""
	if req.ExtraBody != nil {
		endUser = req.ExtraBody.XXAIAppUserID
	}
	if endUser == "" {
		endUser = identity.TenantID
	}
	if h.denyIfBanned(w, r, identity.TenantID, endUser) {
		return
	}

	imagePaths, err := h.ingestImages(r, identity.TenantID, req.Messages)
	if err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome := h.Pipeline.Check(r.Context(), &guardrails.CheckRequest{
		TenantID:   identity.TenantID,
		Messages:   req.Messages,
		Direction:  guardrails.DirectionInput,
		ImagePaths: imagePaths,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	h.complete(r, identity.TenantID, endUser, outcome)
	writeJSON(w, http.StatusOK, outcome.Response)
}

// CheckInput inspects a bare user input string
func (h *Handler) CheckInput(w http.ResponseWriter, r *http.Request) {
	h.checkText(w, r, true)
}

// CheckOutput inspects a model output in the context of its input
func (h *Handler) CheckOutput(w http.ResponseWriter, r *http.Request) {
	h.checkText(w, r, false)
}

func (h *Handler) checkText(w http.ResponseWriter, r *http.Request, inputOnly bool) {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		auth.WriteJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	var input, output, endUser string
	direction := guardrails.DirectionInput
	if inputOnly {
		var req types.InputCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		input, endUser = req.Input, req.XXAIAppUserID
	} else {
		var req types.OutputCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		input, output, endUser = req.Input, req.Output, req.XXAIAppUserID
		direction = guardrails.DirectionOutput
		if strings.TrimSpace(output) == "" {
			auth.WriteJSONError(w, http.StatusBadRequest, "output must not be empty")
			return
		}
	}
	if strings.TrimSpace(input) == "" {
		auth.WriteJSONError(w, http.StatusBadRequest, "input must not be empty")
		return
	}

	if endUser == "" {
		endUser = identity.TenantID
	}
	if h.denyIfBanned(w, r, identity.TenantID, endUser) {
		return
	}

	outcome := h.Pipeline.CheckText(r.Context(), &guardrails.CheckRequest{
		TenantID:  identity.TenantID,
		Direction: direction,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}, input, output)
	h.complete(r, identity.TenantID, endUser, outcome)
	writeJSON(w, http.StatusOK, outcome.Response)
}

// Health is unauthenticated so load balancers can probe it
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "detection"})
}

// Models lists the classifier models in the OpenAI models shape
func (h *Handler) Models(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data": []map[string]string{
			{"id": types.ModelText, "object": "model", "owned_by": "xxai"},
			{"id": types.ModelVision, "object": "model", "owned_by": "xxai"},
		},
	})
}

// denyIfBanned writes the 403 ban body and reports whether it did
func (h *Handler) denyIfBanned(w http.ResponseWriter, r *http.Request, tenantID, endUser string) bool {
	ban, err := h.Mw.CheckBan(r.Context(), tenantID, endUser)
	if err != nil {
		// Ban lookup failures let the request through
		h.Log.Warn(tenantID, "", "ban lookup failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	if ban == nil {
		return false
	}
	auth.WriteBanError(w, ban)
	return true
}

// complete enqueues the detection record and applies the tenant's ban policy
func (h *Handler) complete(r *http.Request, tenantID, endUser string, outcome *guardrails.CheckOutcome) {
	h.Recorder.Enqueue(outcome.Record)
	h.Mw.ApplyBanPolicy(r.Context(), tenantID, endUser, outcome.Record.RequestID, outcome.Response.OverallRiskLevel)
}

// ingestImages stores every image part and rewrites its URL to the reference
// the classifier should fetch. Returns the stored keys for the log record.
func (h *Handler) ingestImages(r *http.Request, tenantID string, messages []types.Message) ([]string, error) {
	var paths []string
	for mi := range messages {
		content := &messages[mi].Content
		if !content.IsParts {
			continue
		}
		for pi := range content.Parts {
			part := &content.Parts[pi]
			if part.Type != types.PartTypeImageURL || part.ImageURL == nil {
				continue
			}
			saved, err := h.Media.Ingest(r.Context(), tenantID, part.ImageURL.URL)
			if err != nil {
				return nil, fmt.Errorf("invalid image in message %d: %w", mi, err)
			}
			part.ImageURL.URL = saved.ClassifierRef
			paths = append(paths, saved.Key)
		}
	}
	return paths, nil
}

// validateMessages enforces the request shape rules shared by the detection
// and proxy inspection entry points
func validateMessages(messages []types.Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range messages {
		switch m.Role {
		case types.RoleSystem, types.RoleUser, types.RoleAssistant:
		default:
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
	}
	return nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
