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

// Package admin is the management service: tenant registration and login,
// guardrail configuration CRUD, detection result queries, and the JSONL
// log-to-database importer. It is also the only service that runs schema
// initialization and seeds the default data-security entity types.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"xxai/platform/auth"
	"xxai/platform/guardrails"
	"xxai/platform/shared/config"
	"xxai/platform/shared/keycrypt"
	"xxai/platform/shared/logger"
	"xxai/platform/store"
)

// Limiter is the rate limiter surface the admin service needs: the shared
// Allow check plus cache invalidation after a cap update
type Limiter interface {
	auth.Limiter
	Invalidate(tenantID string)
}

// Handler carries the repositories and caches behind the admin API
type Handler struct {
	Tenants  *store.TenantRepository
	Configs  *store.ConfigRepository
	Limits   *store.RateLimitRepository
	Bans     *store.BanRepository
	Results  *store.ResultRepository
	ProxyCfg *store.ProxyConfigRepository
	Switches *store.SwitchSessionRepository

	Resolver *auth.Resolver
	Issuer   *auth.TokenIssuer
	Limiter  Limiter

	Keywords  *guardrails.KeywordCache
	Templates *guardrails.TemplateCache
	RiskCfgs  *guardrails.RiskConfigCache

	Crypter *keycrypt.Crypter
	Codes   CodeSender
	Log     *logger.Logger
}

// Register mounts the admin API. The registration and login endpoints are
// open; everything else sits behind the auth chain.
func (h *Handler) Register(r *mux.Router, authed func(http.Handler) http.Handler) {
	r.HandleFunc("/api/v1/auth/register/send-code", h.SendCode).Methods("POST")
	r.HandleFunc("/api/v1/auth/register", h.RegisterTenant).Methods("POST")
	r.HandleFunc("/api/v1/auth/login", h.Login).Methods("POST")
	r.HandleFunc("/api/v1/health", h.Health).Methods("GET")

	s := r.PathPrefix("/api/v1").Subrouter()
	s.Use(authed)

	s.HandleFunc("/auth/me", h.Me).Methods("GET")
	s.HandleFunc("/auth/rotate-api-key", h.RotateAPIKey).Methods("POST")
	s.HandleFunc("/auth/switch", h.OpenSwitchSession).Methods("POST")
	s.HandleFunc("/auth/switch", h.CloseSwitchSessions).Methods("DELETE")
	s.HandleFunc("/auth/switch/{token}", h.CloseSwitchSessions).Methods("DELETE")

	s.HandleFunc("/tenants", h.ListTenants).Methods("GET")
	s.HandleFunc("/tenants/{id}/active", h.SetTenantActive).Methods("PUT")

	s.HandleFunc("/config/blacklists", h.ListKeywordLists(true)).Methods("GET")
	s.HandleFunc("/config/blacklists", h.CreateKeywordList(true)).Methods("POST")
	s.HandleFunc("/config/blacklists/{id}", h.UpdateKeywordList(true)).Methods("PUT")
	s.HandleFunc("/config/blacklists/{id}", h.DeleteKeywordList(true)).Methods("DELETE")
	s.HandleFunc("/config/whitelists", h.ListKeywordLists(false)).Methods("GET")
	s.HandleFunc("/config/whitelists", h.CreateKeywordList(false)).Methods("POST")
	s.HandleFunc("/config/whitelists/{id}", h.UpdateKeywordList(false)).Methods("PUT")
	s.HandleFunc("/config/whitelists/{id}", h.DeleteKeywordList(false)).Methods("DELETE")

	s.HandleFunc("/config/templates", h.ListTemplates).Methods("GET")
	s.HandleFunc("/config/templates", h.CreateTemplate).Methods("POST")
	s.HandleFunc("/config/templates/{id}", h.UpdateTemplate).Methods("PUT")
	s.HandleFunc("/config/templates/{id}", h.DeleteTemplate).Methods("DELETE")

	s.HandleFunc("/config/risk-types", h.GetRiskConfig).Methods("GET")
	s.HandleFunc("/config/risk-types", h.PutRiskConfig).Methods("PUT")

	s.HandleFunc("/config/entity-types", h.ListEntityTypes).Methods("GET")
	s.HandleFunc("/config/entity-types", h.CreateEntityType).Methods("POST")
	s.HandleFunc("/config/entity-types/{id}", h.UpdateEntityType).Methods("PUT")
	s.HandleFunc("/config/entity-types/{id}", h.DeleteEntityType).Methods("DELETE")

	s.HandleFunc("/config/proxy-models", h.ListProxyConfigs).Methods("GET")
	s.HandleFunc("/config/proxy-models", h.CreateProxyConfig).Methods("POST")
	s.HandleFunc("/config/proxy-models/{id}", h.UpdateProxyConfig).Methods("PUT")
	s.HandleFunc("/config/proxy-models/{id}", h.DeleteProxyConfig).Methods("DELETE")

	s.HandleFunc("/config/rate-limit", h.GetRateLimit).Methods("GET")
	s.HandleFunc("/config/rate-limit", h.PutRateLimit).Methods("PUT")

	s.HandleFunc("/config/ban-policy", h.GetBanPolicy).Methods("GET")
	s.HandleFunc("/config/ban-policy", h.PutBanPolicy).Methods("PUT")
	s.HandleFunc("/bans", h.ListBans).Methods("GET")
	s.HandleFunc("/bans/{end_user_id}", h.Unban).Methods("DELETE")

	s.HandleFunc("/results", h.ListResults).Methods("GET")
	s.HandleFunc("/results/{request_id}", h.GetResult).Methods("GET")
	s.HandleFunc("/proxy-logs", h.ListProxyLogs).Methods("GET")
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) internalError(w http.ResponseWriter, tenantID, message string, err error) {
	h.Log.Error(tenantID, "", message, map[string]interface{}{"error": err.Error()})
	auth.WriteJSONError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Run starts the admin service and blocks until shutdown
func Run() error {
	log := logger.New("admin-service")

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := settings.EnsureDirs(); err != nil {
		return err
	}

	db, err := store.Open(settings.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelInit()
	if err := db.InitSchema(initCtx); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	tenants := store.NewTenantRepository(db)
	configs := store.NewConfigRepository(db)
	limits := store.NewRateLimitRepository(db)
	bans := store.NewBanRepository(db)
	results := store.NewResultRepository(db)
	proxyCfg := store.NewProxyConfigRepository(db)
	switches := store.NewSwitchSessionRepository(db)

	if err := configs.SeedDefaultEntityTypes(initCtx); err != nil {
		return fmt.Errorf("entity type seeding failed: %w", err)
	}
	if err := bootstrapSuperAdmin(initCtx, tenants, settings, log); err != nil {
		return err
	}

	issuer := auth.NewTokenIssuer(settings.JWTSecretKey, settings.JWTExpiry())
	resolver := auth.NewResolver(tenants, switches, issuer, settings.SuperAdminUsername)

	var limiter Limiter
	if settings.RedisURL != "" {
		redisLimiter, err := auth.NewRedisLimiter(settings.RedisURL, limits, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = redisLimiter.Close() }()
		limiter = redisLimiter
	} else {
		limiter = auth.NewDBLimiter(limits, log)
	}

	crypter, err := keycrypt.Load(settings.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load encryption key: %w", err)
	}

	handler := &Handler{
		Tenants:   tenants,
		Configs:   configs,
		Limits:    limits,
		Bans:      bans,
		Results:   results,
		ProxyCfg:  proxyCfg,
		Switches:  switches,
		Resolver:  resolver,
		Issuer:    issuer,
		Limiter:   limiter,
		Keywords:  guardrails.NewKeywordCache(configs, log),
		Templates: guardrails.NewTemplateCache(configs, log),
		RiskCfgs:  guardrails.NewRiskConfigCache(configs, log),
		Crypter:   crypter,
		Codes:     &LogCodeSender{Log: log},
		Log:       log,
	}

	// The importer runs inside the admin process so exactly one instance
	// consumes the shared detection log directory
	var importer *Importer
	if settings.StoreDetectionResults {
		importer = NewImporter(settings.DetectionLogDir, settings.DataDir, results, log)
		importer.Start()
		defer importer.Stop()
		log.Info("", "", "detection log importer started", map[string]interface{}{"dir": settings.DetectionLogDir})
	}

	mw := auth.NewMiddleware("admin", resolver, limiter, bans, settings.AdminMaxConcurrentRequests, log)
	authed := func(next http.Handler) http.Handler {
		return mw.Concurrency(mw.Authenticate(next))
	}

	router := mux.NewRouter()
	handler.Register(router, authed)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(router)

	addr := settings.Host + ":" + settings.AdminPort
	server := &http.Server{
		Addr:         addr,
		Handler:      corsHandler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "", "admin service listening", map[string]interface{}{"addr": addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("", "", "shutting down", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// bootstrapSuperAdmin creates the configured super admin account if absent
func bootstrapSuperAdmin(ctx context.Context, tenants *store.TenantRepository, settings *config.Settings, log *logger.Logger) error {
	if settings.SuperAdminUsername == "" || settings.SuperAdminPassword == "" {
		return nil
	}
	if _, err := tenants.GetByEmail(ctx, settings.SuperAdminUsername); err == nil {
		return nil
	} else if err != store.ErrNotFound {
		return fmt.Errorf("super admin lookup failed: %w", err)
	}

	hash, err := auth.HashPassword(settings.SuperAdminPassword)
	if err != nil {
		return fmt.Errorf("super admin password hashing failed: %w", err)
	}
	tenant := &store.Tenant{
		Email:        settings.SuperAdminUsername,
		PasswordHash: hash,
		IsActive:     true,
		IsVerified:   true,
		IsSuperAdmin: true,
	}
	if err := tenants.Create(ctx, tenant); err != nil {
		return fmt.Errorf("super admin creation failed: %w", err)
	}
	log.Info(tenant.ID, "", "super admin account created", map[string]interface{}{"email": tenant.Email})
	return nil
}
