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

// Package proxy is the OpenAI-compatible policy-enforcing gateway: it fronts
// tenant-configured upstream models and runs guardrails inspection on inputs
// and outputs, including windowed inspection of streaming responses.
package proxy

import (
	"context"
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

// Run starts the proxy service and blocks until shutdown
func Run() error {
	log := logger.New("proxy-service")

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

	tenants := store.NewTenantRepository(db)
	configs := store.NewConfigRepository(db)
	limits := store.NewRateLimitRepository(db)
	bans := store.NewBanRepository(db)
	results := store.NewResultRepository(db)
	proxyConfigs := store.NewProxyConfigRepository(db)
	switches := store.NewSwitchSessionRepository(db)

	issuer := auth.NewTokenIssuer(settings.JWTSecretKey, settings.JWTExpiry())
	resolver := auth.NewResolver(tenants, switches, issuer, settings.SuperAdminUsername)

	var limiter auth.Limiter
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

	pipeline := &guardrails.Pipeline{
		Keywords:         guardrails.NewKeywordCache(configs, log),
		RiskConfigs:      guardrails.NewRiskConfigCache(configs, log),
		Scanner:          guardrails.NewScanner(configs, crypter, log),
		Classifier:       guardrails.NewClassifier(settings.GuardrailsModelAPIURL, settings.GuardrailsModelAPIKey),
		Resolver:         guardrails.NewTemplateResolver(guardrails.NewTemplateCache(configs, log), nil, log),
		Log:              log,
		MaxContextLength: settings.MaxDetectionContextLength,
	}

	var directResults *store.ResultRepository
	if !settings.StoreDetectionResults {
		directResults = results
	}
	recorder := guardrails.NewRecorder(settings.DetectionLogDir, directResults, log)
	defer recorder.Close()

	mw := auth.NewMiddleware("proxy", resolver, limiter, bans, settings.ProxyMaxConcurrentRequests, log)
	authed := func(next http.Handler) http.Handler {
		return mw.Concurrency(mw.Authenticate(mw.RateLimit(next)))
	}

	handler := NewHandler(proxyConfigs, results, pipeline, recorder, crypter, mw, log)

	router := mux.NewRouter()
	handler.Register(router, authed)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(router)

	addr := settings.Host + ":" + settings.ProxyPort
	server := &http.Server{
		Addr:        addr,
		Handler:     corsHandler,
		ReadTimeout: 60 * time.Second,
		// Streams can legitimately run for minutes; no write timeout
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "", "proxy service listening", map[string]interface{}{"addr": addr})
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
