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

// Package detection is the high-throughput guardrails detection service:
// POST /v1/guardrails and its input/output variants, backed by the
// inspection pipeline and an async detection-record writer.
package detection

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
	"xxai/platform/media"
	"xxai/platform/shared/config"
	"xxai/platform/shared/keycrypt"
	"xxai/platform/shared/logger"
	"xxai/platform/store"
)

// Run starts the detection service and blocks until shutdown
func Run() error {
	log := logger.New("detection-service")

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
		log.Info("", "", "rate limiting via redis sliding window", nil)
	} else {
		limiter = auth.NewDBLimiter(limits, log)
		log.Info("", "", "rate limiting via database fixed window", nil)
	}

	crypter, err := keycrypt.Load(settings.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load encryption key: %w", err)
	}

	blobStore, err := media.OpenStore(context.Background(), settings.MediaStorage, settings.MediaDir, settings.MediaBucket)
	if err != nil {
		return fmt.Errorf("failed to open media store: %w", err)
	}
	mediaService := media.NewService(blobStore, media.NewSigner(settings.MediaSigningSecret), log)

	pipeline := &guardrails.Pipeline{
		Keywords:         guardrails.NewKeywordCache(configs, log),
		RiskConfigs:      guardrails.NewRiskConfigCache(configs, log),
		Scanner:          guardrails.NewScanner(configs, crypter, log),
		Classifier:       guardrails.NewClassifier(settings.GuardrailsModelAPIURL, settings.GuardrailsModelAPIKey),
		Resolver:         guardrails.NewTemplateResolver(guardrails.NewTemplateCache(configs, log), nil, log),
		Log:              log,
		MaxContextLength: settings.MaxDetectionContextLength,
	}

	// STORE_DETECTION_RESULTS=false short-circuits the JSONL log and importer
	var directResults *store.ResultRepository
	if !settings.StoreDetectionResults {
		directResults = results
		log.Info("", "", "detection results will be written directly to the database", nil)
	}
	recorder := guardrails.NewRecorder(settings.DetectionLogDir, directResults, log)
	defer recorder.Close()

	mw := auth.NewMiddleware("detection", resolver, limiter, bans, settings.DetectionMaxConcurrentRequests, log)
	authed := func(next http.Handler) http.Handler {
		return mw.Concurrency(mw.Authenticate(mw.RateLimit(next)))
	}

	handler := &Handler{
		Pipeline: pipeline,
		Media:    mediaService,
		Recorder: recorder,
		Mw:       mw,
		Log:      log,
	}

	router := mux.NewRouter()
	handler.Register(router, authed)
	(&media.Handler{Service: mediaService}).Register(router, authed)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(router)

	addr := settings.Host + ":" + settings.DetectionPort
	server := &http.Server{
		Addr:         addr,
		Handler:      corsHandler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "", "detection service listening", map[string]interface{}{"addr": addr})
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
