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

package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"xxai/platform/auth"
	"xxai/platform/guardrails"
	"xxai/platform/shared/keycrypt"
	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
	"xxai/platform/store"
)

// ProxyRequestLog statuses
const (
	statusSuccess       = "success"
	statusBlocked       = "blocked"
	statusStreamSuccess = "stream_success"
	statusStreamBlocked = "stream_blocked"
	statusError         = "error"
)

// asyncInspectTimeout bounds fire-and-forget inspections detached from the
// client request
const asyncInspectTimeout = 4 * time.Minute

// Handler serves the OpenAI-compatible proxy surface
type Handler struct {
	Configs  *store.ProxyConfigRepository
	Results  *store.ResultRepository
	Pipeline *guardrails.Pipeline
	Recorder *guardrails.Recorder
	Crypter  *keycrypt.Crypter
	Mw       *auth.Middleware
	Log      *logger.Logger

	upstream *http.Client
}

// NewHandler creates the proxy handler with the upstream HTTP client
// (15 s connect, 5 min total read, per upstream forward policy)
func NewHandler(configs *store.ProxyConfigRepository, results *store.ResultRepository,
	pipeline *guardrails.Pipeline, recorder *guardrails.Recorder, crypter *keycrypt.Crypter,
	mw *auth.Middleware, log *logger.Logger) *Handler {
	return &Handler{
		Configs:  configs,
		Results:  results,
		Pipeline: pipeline,
		Recorder: recorder,
		Crypter:  crypter,
		Mw:       mw,
		Log:      log,
		upstream: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 15 * time.Second}).DialContext,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Register mounts the proxy routes behind the authenticated chain
func (h *Handler) Register(r *mux.Router, authed func(http.Handler) http.Handler) {
	r.Handle("/v1/chat/completions", authed(http.HandlerFunc(h.ChatCompletions))).Methods("POST")
	r.Handle("/v1/completions", authed(http.HandlerFunc(h.Completions))).Methods("POST")
	r.Handle("/v1/models", authed(http.HandlerFunc(h.Models))).Methods("GET")
	r.HandleFunc("/v1/health", h.Health).Methods("GET")
}

// Health is unauthenticated for load balancer probes
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "proxy"})
}

// Models lists the tenant's enabled proxy model configs in the OpenAI shape
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		auth.WriteJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	configs, err := h.Configs.List(r.Context(), identity.TenantID)
	if err != nil {
		h.Log.Error(identity.TenantID, "", "failed to list proxy configs", map[string]interface{}{"error": err.Error()})
		auth.WriteJSONError(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	data := []map[string]interface{}{}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		data = append(data, map[string]interface{}{
			"id":       cfg.ModelName,
			"object":   "model",
			"owned_by": cfg.ConfigName,
			"created":  cfg.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"object": "list", "data": data})
}

// ChatCompletions proxies POST /v1/chat/completions with policy enforcement
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, false)
}

// Completions proxies the legacy POST /v1/completions surface. The prompt is
// inspected as a single user message.
func (h *Handler) Completions(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, true)
}

func (h *Handler) proxy(w http.ResponseWriter, r *http.Request, legacy bool) {
	start := time.Now()
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		auth.WriteJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	tenantID := identity.TenantID

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var model string
	_ = json.Unmarshal(raw["model"], &model)

	messages, err := inspectionMessages(raw, legacy)
	if err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	stream := false
	if v, ok := raw["stream"]; ok {
		_ = json.Unmarshal(v, &stream)
	}

	endUser := endUserID(raw, tenantID)
	if ban, err := h.Mw.CheckBan(r.Context(), tenantID, endUser); err == nil && ban != nil {
		auth.WriteBanError(w, ban)
		return
	}

	cfg, err := h.Configs.Resolve(r.Context(), tenantID, model)
	if err == store.ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "no proxy model configuration found")
		return
	}
	if err != nil {
		h.Log.Error(tenantID, "", "proxy config lookup failed", map[string]interface{}{"error": err.Error()})
		auth.WriteJSONError(w, http.StatusInternalServerError, "proxy configuration unavailable")
		return
	}

	apiKey, err := h.Crypter.Decrypt(cfg.APIKeyEncrypted)
	if err != nil {
		h.Log.Error(tenantID, "", "failed to decrypt upstream api key", map[string]interface{}{"config": cfg.ConfigName, "error": err.Error()})
		auth.WriteJSONError(w, http.StatusInternalServerError, "proxy configuration unavailable")
		return
	}

	plog := &store.ProxyRequestLog{
		RequestID:      "proxy-" + uuid.NewString(),
		TenantID:       tenantID,
		ProxyConfigID:  cfg.ID,
		ModelRequested: model,
		ModelUsed:      cfg.ModelName,
	}
	ip, ua := clientIP(r), r.UserAgent()

	// Input inspection: sync-serial blocks on risk, async-bypass never does
	if cfg.BlockOnInputRisk {
		outcome := h.inspect(r.Context(), tenantID, messages, guardrails.DirectionInput, "", ip, ua)
		plog.InputDetectionID = outcome.Record.RequestID
		h.Mw.ApplyBanPolicy(r.Context(), tenantID, endUser, outcome.Record.RequestID, outcome.Response.OverallRiskLevel)
		if outcome.Response.Blocked() {
			plog.InputBlocked = true
			plog.Status = statusBlocked
			if stream {
				writeBlockedStream(w, model, legacy, outcome)
			} else {
				writeBlockedCompletion(w, model, legacy, outcome)
			}
			h.writeLog(plog, start)
			return
		}
	} else {
		plog.InputDetectionID = h.inspectAsync(tenantID, endUser, cloneMessages(messages), guardrails.DirectionInput, ip, ua)
	}

	resp, err := h.forward(r.Context(), cfg, apiKey, raw, legacy, stream)
	if err != nil {
		plog.Status = statusError
		plog.ErrorMessage = err.Error()
		h.writeLog(plog, start)
		writeUpstreamError(w, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		plog.Status = statusError
		plog.ErrorMessage = fmt.Sprintf("upstream status %d", resp.StatusCode)
		h.writeLog(plog, start)
		relayUpstreamBody(w, resp.StatusCode, body)
		return
	}

	if stream {
		det := &streamDetector{
			handler:    h,
			cfg:        cfg,
			tenantID:   tenantID,
			endUser:    endUser,
			messagesIn: messages,
			model:      model,
			legacy:     legacy,
			ip:         ip,
			ua:         ua,
		}
		det.Run(r.Context(), w, resp.Body)
		det.fillLog(plog)
		h.writeLog(plog, start)
		return
	}

	h.completeNonStream(w, r, cfg, plog, messages, endUser, ip, ua, resp, start, legacy)
}

// completeNonStream runs output inspection on a buffered upstream response
func (h *Handler) completeNonStream(w http.ResponseWriter, r *http.Request, cfg *store.ProxyModelConfig,
	plog *store.ProxyRequestLog, messages []types.Message, endUser, ip, ua string,
	resp *http.Response, start time.Time, legacy bool) {
	tenantID := plog.TenantID

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		plog.Status = statusError
		plog.ErrorMessage = err.Error()
		h.writeLog(plog, start)
		writeUpstreamError(w, err)
		return
	}

	content, usage := extractCompletion(body, legacy)
	if usage != nil {
		plog.PromptTokens = usage.PromptTokens
		plog.CompletionTokens = usage.CompletionTokens
		plog.TotalTokens = usage.TotalTokens
	}

	if content != "" {
		outMessages := append(cloneMessages(messages), types.AssistantMessage(content))
		if cfg.BlockOnOutputRisk {
			outcome := h.inspect(r.Context(), tenantID, outMessages, guardrails.DirectionOutput, "", ip, ua)
			plog.OutputDetectionID = outcome.Record.RequestID
			h.Mw.ApplyBanPolicy(r.Context(), tenantID, endUser, outcome.Record.RequestID, outcome.Response.OverallRiskLevel)
			if outcome.Response.Blocked() {
				plog.OutputBlocked = true
				plog.Status = statusBlocked
				h.writeLog(plog, start)
				if rewritten, ok := rewriteBlockedCompletion(body, legacy, outcome); ok {
					relayUpstreamBody(w, http.StatusOK, rewritten)
				} else {
					writeBlockedCompletion(w, plog.ModelRequested, legacy, outcome)
				}
				return
			}
		} else {
			plog.OutputDetectionID = h.inspectAsync(tenantID, endUser, outMessages, guardrails.DirectionOutput, ip, ua)
		}
	}

	plog.Status = statusSuccess
	h.writeLog(plog, start)
	relayUpstreamBody(w, http.StatusOK, body)
}

// forward posts the client body upstream with the model rewritten
func (h *Handler) forward(ctx context.Context, cfg *store.ProxyModelConfig, apiKey string,
	raw map[string]json.RawMessage, legacy, stream bool) (*http.Response, error) {
	modelJSON, _ := json.Marshal(cfg.ModelName)
	raw["model"] = modelJSON
	delete(raw, "extra_body")

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upstream request: %w", err)
	}

	path := "/chat/completions"
	if legacy {
		path = "/completions"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(cfg.APIBaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return h.upstream.Do(req)
}

// inspect runs the pipeline and enqueues the detection record
func (h *Handler) inspect(ctx context.Context, tenantID string, messages []types.Message,
	dir guardrails.Direction, requestID, ip, ua string) *guardrails.CheckOutcome {
	outcome := h.Pipeline.Check(ctx, &guardrails.CheckRequest{
		TenantID:  tenantID,
		Messages:  messages,
		Direction: dir,
		RequestID: requestID,
		IPAddress: ip,
		UserAgent: ua,
	})
	h.Recorder.Enqueue(outcome.Record)
	return outcome
}

// inspectAsync fires an inspection detached from the request and returns the
// detection id minted for it. The inspection outlives a client disconnect.
func (h *Handler) inspectAsync(tenantID, endUser string, messages []types.Message,
	dir guardrails.Direction, ip, ua string) string {
	requestID := "guardrails-" + uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncInspectTimeout)
		defer cancel()
		outcome := h.inspect(ctx, tenantID, messages, dir, requestID, ip, ua)
		h.Mw.ApplyBanPolicy(ctx, tenantID, endUser, requestID, outcome.Response.OverallRiskLevel)
	}()
	return requestID
}

// writeLog persists the proxy request log; every terminal path goes through it
func (h *Handler) writeLog(plog *store.ProxyRequestLog, start time.Time) {
	plog.ResponseTimeMs = time.Since(start).Milliseconds()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Results.InsertProxyLog(ctx, plog); err != nil {
		h.Log.Error(plog.TenantID, plog.RequestID, "failed to write proxy request log", map[string]interface{}{"error": err.Error()})
	}
}

// inspectionMessages extracts the messages to inspect from the raw body:
// the messages array, or a single user message holding the legacy prompt
func inspectionMessages(raw map[string]json.RawMessage, legacy bool) ([]types.Message, error) {
	if legacy {
		var prompt string
		if err := json.Unmarshal(raw["prompt"], &prompt); err != nil || strings.TrimSpace(prompt) == "" {
			return nil, fmt.Errorf("prompt must be a non-empty string")
		}
		return []types.Message{types.UserMessage(prompt)}, nil
	}
	var messages []types.Message
	if err := json.Unmarshal(raw["messages"], &messages); err != nil || len(messages) == 0 {
		return nil, fmt.Errorf("messages must be a non-empty array")
	}
	return messages, nil
}

// endUserID reads extra_body.xxai_app_user_id, defaulting to the tenant
func endUserID(raw map[string]json.RawMessage, tenantID string) string {
	if v, ok := raw["extra_body"]; ok {
		var extra types.ExtraBody
		if err := json.Unmarshal(v, &extra); err == nil && extra.XXAIAppUserID != "" {
			return extra.XXAIAppUserID
		}
	}
	return tenantID
}

func cloneMessages(messages []types.Message) []types.Message {
	out := make([]types.Message, len(messages))
	copy(out, messages)
	return out
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

// writeUpstreamError reports an unreachable or failed upstream
func writeUpstreamError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"message": err.Error(),
			"type":    "upstream_error",
		},
	})
}

// relayUpstreamBody passes an upstream JSON body through verbatim
func relayUpstreamBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
