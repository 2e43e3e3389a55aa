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
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/auth"
	"xxai/platform/guardrails"
	"xxai/platform/media"
	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
	"xxai/platform/store"
)

type testHarness struct {
	router *mux.Router
	mock   sqlmock.Sqlmock
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	wrapped := &store.DB{DB: db, Driver: "postgres"}
	repo := store.NewConfigRepository(wrapped)

	classifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{map[string]interface{}{
				"message":           map[string]string{"content": "safe"},
				"sensitivity_score": 1.0,
			}},
		})
	}))
	t.Cleanup(classifier.Close)

	log := logger.New("test")
	pipeline := &guardrails.Pipeline{
		Keywords:         guardrails.NewKeywordCache(repo, log),
		RiskConfigs:      guardrails.NewRiskConfigCache(repo, log),
		Scanner:          guardrails.NewScanner(repo, nil, log),
		Classifier:       guardrails.NewClassifier(classifier.URL, ""),
		Resolver:         guardrails.NewTemplateResolver(guardrails.NewTemplateCache(repo, log), nil, log),
		Log:              log,
		MaxContextLength: 4096,
	}

	blobs, err := media.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	recorder := guardrails.NewRecorder(t.TempDir(), nil, log)
	t.Cleanup(recorder.Close)

	h := &Handler{
		Pipeline: pipeline,
		Media:    media.NewService(blobs, media.NewSigner("test-secret"), log),
		Recorder: recorder,
		Mw:       auth.NewMiddleware("test", nil, nil, store.NewBanRepository(wrapped), 10, log),
		Log:      log,
	}

	authed := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{TenantID: "tenant-1"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	router := mux.NewRouter()
	h.Register(router, authed)
	return &testHarness{router: router, mock: mock}
}

// expectCleanPipeline queues the empty-config reads a pass verdict performs
func (h *testHarness) expectCleanPipeline() {
	h.mock.ExpectQuery("FROM user_ban_records").WillReturnError(sql.ErrNoRows)
	h.mock.ExpectQuery("FROM blacklists").WillReturnRows(
		sqlmock.NewRows([]string{"id", "tenant_id", "name", "keywords", "is_active", "created_at", "updated_at"}))
	h.mock.ExpectQuery("FROM whitelists").WillReturnRows(
		sqlmock.NewRows([]string{"id", "tenant_id", "name", "keywords", "is_active", "created_at", "updated_at"}))
	h.mock.ExpectQuery("FROM data_security_entity_types").WillReturnRows(
		sqlmock.NewRows([]string{"id", "tenant_id", "entity_type", "display_name", "category", "recognition_config",
			"anonymization_method", "anonymization_config", "is_active", "is_global", "created_at", "updated_at"}))
	h.mock.ExpectQuery("FROM risk_type_configs").WillReturnError(sql.ErrNoRows)
}

func postJSON(router *mux.Router, path string, body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckConversationPass(t *testing.T) {
	h := newTestHarness(t)
	h.expectCleanPipeline()

	rec := postJSON(h.router, "/v1/guardrails", types.GuardrailRequest{
		Messages: []types.Message{types.UserMessage("hello there")},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp types.GuardrailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.RiskNone, resp.OverallRiskLevel)
	assert.Equal(t, types.ActionPass, resp.SuggestAction)
	assert.True(t, resp.IsSafe())
}

func TestCheckConversationValidation(t *testing.T) {
	h := newTestHarness(t)

	rec := postJSON(h.router, "/v1/guardrails", types.GuardrailRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(h.router, "/v1/guardrails", types.GuardrailRequest{
		Messages: []types.Message{{Role: "tool", Content: types.StringContent("x")}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/v1/guardrails", bytes.NewReader([]byte("{not json")))
	rec2 := httptest.NewRecorder()
	h.router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestCheckConversationBannedUser(t *testing.T) {
	h := newTestHarness(t)

	until := time.Now().UTC().Add(time.Hour)
	h.mock.ExpectQuery("FROM user_ban_records").WillReturnRows(
		sqlmock.NewRows([]string{
			"id", "tenant_id", "end_user_id", "banned_at", "ban_until", "trigger_count", "risk_level", "reason", "is_active",
		}).AddRow("b1", "tenant-1", "user-7", time.Now(), until, 3, "high_risk", "repeat offender", true))

	rec := postJSON(h.router, "/v1/guardrails", types.GuardrailRequest{
		Messages:  []types.Message{types.UserMessage("hello")},
		ExtraBody: &types.ExtraBody{XXAIAppUserID: "user-7"},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	var banBody types.BanError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &banBody))
	assert.Equal(t, "repeat offender", banBody.Reason)
}

func TestCheckInput(t *testing.T) {
	h := newTestHarness(t)
	h.expectCleanPipeline()

	rec := postJSON(h.router, "/v1/guardrails/input", types.InputCheckRequest{Input: "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Empty input is rejected before any inspection
	rec = postJSON(h.router, "/v1/guardrails/input", types.InputCheckRequest{Input: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckOutputRequiresOutput(t *testing.T) {
	h := newTestHarness(t)

	rec := postJSON(h.router, "/v1/guardrails/output", types.OutputCheckRequest{Input: "q", Output: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(h.router, "/v1/guardrails/output", types.OutputCheckRequest{Input: "", Output: "a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndModels(t *testing.T) {
	h := newTestHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/guardrails/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/guardrails/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var models struct {
		Object string `json:"object"`
		Data   []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	assert.Equal(t, "list", models.Object)
	require.Len(t, models.Data, 2)
	assert.Equal(t, types.ModelText, models.Data[0].ID)
}

func TestValidateMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []types.Message
		wantErr  bool
	}{
		{"empty", nil, true},
		{"valid roles", []types.Message{
			{Role: types.RoleSystem, Content: types.StringContent("s")},
			{Role: types.RoleUser, Content: types.StringContent("u")},
			{Role: types.RoleAssistant, Content: types.StringContent("a")},
		}, false},
		{"invalid role", []types.Message{{Role: "function", Content: types.StringContent("x")}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMessages(tt.messages)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "bare-host"
	assert.Equal(t, "bare-host", clientIP(req))
}
