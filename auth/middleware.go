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

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
	"xxai/platform/store"
)

var (
	promConcurrentRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardrails_concurrent_requests",
			Help: "Requests currently in flight per service",
		},
		[]string{"service"},
	)
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardrails_requests_total",
			Help: "Total requests accepted per service",
		},
		[]string{"service"},
	)
	promRejectedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardrails_rejected_requests_total",
			Help: "Requests rejected because the concurrency cap was reached",
		},
		[]string{"service"},
	)
	promMaxConcurrencyReached = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardrails_max_concurrency_reached_total",
			Help: "Times the concurrency cap was hit per service",
		},
		[]string{"service"},
	)
	promRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardrails_rate_limited_total",
			Help: "Requests rejected by the per-tenant rate limiter",
		},
		[]string{"service"},
	)
)

func init() {
	prometheus.MustRegister(promConcurrentRequests)
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRejectedRequests)
	prometheus.MustRegister(promMaxConcurrencyReached)
	prometheus.MustRegister(promRateLimited)
}

type contextKey string

const identityKey contextKey = "identity"

// IdentityFrom extracts the authenticated identity placed by Middleware
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// WithIdentity returns a context carrying the identity; used by handlers and tests
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Middleware is the shared per-service middleware chain
type Middleware struct {
	Service  string
	Resolver *Resolver
	Limiter  Limiter
	Bans     *store.BanRepository
	Log      *logger.Logger

	sem chan struct{}
}

// NewMiddleware creates the middleware chain for one service, capping
// concurrent in-flight requests at maxConcurrent.
func NewMiddleware(service string, resolver *Resolver, limiter Limiter, bans *store.BanRepository, maxConcurrent int, log *logger.Logger) *Middleware {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Middleware{
		Service:  service,
		Resolver: resolver,
		Limiter:  limiter,
		Bans:     bans,
		Log:      log,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// Concurrency rejects requests over the in-flight cap with 429
func (m *Middleware) Concurrency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case m.sem <- struct{}{}:
			promRequestsTotal.WithLabelValues(m.Service).Inc()
			promConcurrentRequests.WithLabelValues(m.Service).Inc()
			defer func() {
				promConcurrentRequests.WithLabelValues(m.Service).Dec()
				<-m.sem
			}()
			next.ServeHTTP(w, r)
		default:
			promRejectedRequests.WithLabelValues(m.Service).Inc()
			promMaxConcurrencyReached.WithLabelValues(m.Service).Inc()
			WriteJSONError(w, http.StatusTooManyRequests, "service overloaded, please retry")
		}
	})
}

// Authenticate resolves the bearer credential and stores the identity on the
// request context. 401 without a valid credential.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.Resolver.Resolve(r.Context(), r)
		if err == ErrUnauthorized {
			WriteJSONError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		if err != nil {
			m.Log.Error("", "", "auth resolution failed", map[string]interface{}{"error": err.Error()})
			WriteJSONError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RateLimit enforces the tenant's requests-per-second cap with 429
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFrom(r.Context())
		if identity == nil || m.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, err := m.Limiter.Allow(r.Context(), identity.TenantID)
		if err != nil {
			// Limiters fail open internally; an error here is unexpected
			m.Log.Warn(identity.TenantID, "", "rate limiter error", map[string]interface{}{"error": err.Error()})
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			promRateLimited.WithLabelValues(m.Service).Inc()
			WriteJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CheckBan returns the tenant end-user's active ban, nil when none. Handlers
// call this with the request's resolved end-user id before inspecting.
func (m *Middleware) CheckBan(ctx context.Context, tenantID, endUserID string) (*store.UserBanRecord, error) {
	if m.Bans == nil || endUserID == "" {
		return nil, nil
	}
	ban, err := m.Bans.ActiveBan(ctx, tenantID, endUserID)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ban, nil
}

// ApplyBanPolicy records a risk trigger when the verdict meets the tenant's
// policy level and bans the end user once the trigger count fills the window.
// Callers invoke it after every inspection; failures are logged, never fatal.
func (m *Middleware) ApplyBanPolicy(ctx context.Context, tenantID, endUserID, requestID string, overall types.RiskLevel) {
	if m.Bans == nil || endUserID == "" || overall == types.RiskNone {
		return
	}

	policy, err := m.Bans.GetPolicy(ctx, tenantID)
	if err == store.ErrNotFound {
		return
	}
	if err != nil {
		m.Log.Warn(tenantID, requestID, "ban policy lookup failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if !policy.Enabled || overall.Priority() < types.RiskLevel(policy.RiskLevel).Priority() {
		return
	}

	trigger := &store.UserRiskTrigger{
		TenantID:          tenantID,
		EndUserID:         endUserID,
		RiskLevel:         policy.RiskLevel,
		DetectionResultID: requestID,
	}
	if err := m.Bans.RecordTrigger(ctx, trigger); err != nil {
		m.Log.Warn(tenantID, requestID, "failed to record risk trigger", map[string]interface{}{"error": err.Error()})
		return
	}

	window := time.Duration(policy.TimeWindowMinutes) * time.Minute
	count, err := m.Bans.CountTriggers(ctx, tenantID, endUserID, policy.RiskLevel, window)
	if err != nil {
		m.Log.Warn(tenantID, requestID, "failed to count risk triggers", map[string]interface{}{"error": err.Error()})
		return
	}
	if count < policy.TriggerCount {
		return
	}

	ban := &store.UserBanRecord{
		TenantID:     tenantID,
		EndUserID:    endUserID,
		BanUntil:     time.Now().UTC().Add(time.Duration(policy.BanDurationMinutes) * time.Minute),
		TriggerCount: count,
		RiskLevel:    policy.RiskLevel,
		Reason: fmt.Sprintf("triggered %s %d times within %d minutes",
			policy.RiskLevel, count, policy.TimeWindowMinutes),
	}
	if _, err := m.Bans.Ban(ctx, ban); err != nil {
		m.Log.Error(tenantID, requestID, "failed to ban end user", map[string]interface{}{"error": err.Error()})
		return
	}
	m.Log.Info(tenantID, requestID, "end user banned", map[string]interface{}{
		"end_user_id": endUserID,
		"ban_until":   ban.BanUntil.Format(time.RFC3339),
	})
}

// WriteBanError writes the 403 ban response body
func WriteBanError(w http.ResponseWriter, ban *store.UserBanRecord) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     "user is banned",
		"ban_until": ban.BanUntil.UTC().Format(time.RFC3339),
		"reason":    ban.Reason,
	})
}

// WriteJSONError writes a {"detail": ...} error body
func WriteJSONError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
