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

// Package config loads platform settings from the environment, with an
// optional YAML overlay file for deployments that prefer files over env vars.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds configuration shared by the three services
type Settings struct {
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	GuardrailsModelAPIURL string `yaml:"guardrails_model_api_url"`
	GuardrailsModelAPIKey string `yaml:"guardrails_model_api_key"`

	DataDir         string `yaml:"data_dir"`
	LogDir          string `yaml:"log_dir"`
	DetectionLogDir string `yaml:"detection_log_dir"`
	MediaDir        string `yaml:"media_dir"`

	JWTSecretKey             string `yaml:"jwt_secret_key"`
	JWTAlgorithm             string `yaml:"jwt_algorithm"`
	JWTAccessTokenExpireMins int    `yaml:"jwt_access_token_expire_minutes"`

	SuperAdminUsername string `yaml:"super_admin_username"`
	SuperAdminPassword string `yaml:"super_admin_password"`

	Host          string `yaml:"host"`
	AdminPort     string `yaml:"admin_port"`
	DetectionPort string `yaml:"detection_port"`
	ProxyPort     string `yaml:"proxy_port"`

	AdminMaxConcurrentRequests     int `yaml:"admin_max_concurrent_requests"`
	DetectionMaxConcurrentRequests int `yaml:"detection_max_concurrent_requests"`
	ProxyMaxConcurrentRequests     int `yaml:"proxy_max_concurrent_requests"`

	MaxDetectionContextLength int  `yaml:"max_detection_context_length"`
	StoreDetectionResults     bool `yaml:"store_detection_results"`

	// Media storage backend: local, s3, gcs or azure
	MediaStorage       string `yaml:"media_storage"`
	MediaSigningSecret string `yaml:"media_signing_secret"`
	MediaBucket        string `yaml:"media_bucket"`
}

// Load reads settings from the environment. When CONFIG_FILE points at a YAML
// file its values are applied first and env vars override them.
func Load() (*Settings, error) {
	s := &Settings{}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	s.DatabaseURL = getEnv("DATABASE_URL", s.DatabaseURL)
	s.RedisURL = getEnv("REDIS_URL", s.RedisURL)

	s.GuardrailsModelAPIURL = getEnv("GUARDRAILS_MODEL_API_URL", defaultStr(s.GuardrailsModelAPIURL, "http://localhost:58002/v1"))
	s.GuardrailsModelAPIKey = getEnv("GUARDRAILS_MODEL_API_KEY", s.GuardrailsModelAPIKey)

	s.DataDir = getEnv("DATA_DIR", defaultStr(s.DataDir, "/var/lib/xxai"))
	s.LogDir = getEnv("LOG_DIR", defaultStr(s.LogDir, filepath.Join(s.DataDir, "logs")))
	s.DetectionLogDir = getEnv("DETECTION_LOG_DIR", defaultStr(s.DetectionLogDir, s.LogDir))
	s.MediaDir = getEnv("MEDIA_DIR", defaultStr(s.MediaDir, filepath.Join(s.DataDir, "media")))

	s.JWTSecretKey = getEnv("JWT_SECRET_KEY", s.JWTSecretKey)
	s.JWTAlgorithm = getEnv("JWT_ALGORITHM", defaultStr(s.JWTAlgorithm, "HS256"))
	s.JWTAccessTokenExpireMins = getEnvInt("JWT_ACCESS_TOKEN_EXPIRE_MINUTES", defaultInt(s.JWTAccessTokenExpireMins, 1440))

	s.SuperAdminUsername = getEnv("SUPER_ADMIN_USERNAME", s.SuperAdminUsername)
	s.SuperAdminPassword = getEnv("SUPER_ADMIN_PASSWORD", s.SuperAdminPassword)

	s.Host = getEnv("HOST", defaultStr(s.Host, "0.0.0.0"))
	s.AdminPort = getEnv("ADMIN_PORT", defaultStr(s.AdminPort, "5000"))
	s.DetectionPort = getEnv("DETECTION_PORT", defaultStr(s.DetectionPort, "5001"))
	s.ProxyPort = getEnv("PROXY_PORT", defaultStr(s.ProxyPort, "5002"))

	s.AdminMaxConcurrentRequests = getEnvInt("ADMIN_MAX_CONCURRENT_REQUESTS", defaultInt(s.AdminMaxConcurrentRequests, 100))
	s.DetectionMaxConcurrentRequests = getEnvInt("DETECTION_MAX_CONCURRENT_REQUESTS", defaultInt(s.DetectionMaxConcurrentRequests, 1000))
	s.ProxyMaxConcurrentRequests = getEnvInt("PROXY_MAX_CONCURRENT_REQUESTS", defaultInt(s.ProxyMaxConcurrentRequests, 500))

	s.MaxDetectionContextLength = getEnvInt("MAX_DETECTION_CONTEXT_LENGTH", defaultInt(s.MaxDetectionContextLength, 8000))
	s.StoreDetectionResults = getEnvBool("STORE_DETECTION_RESULTS", s.StoreDetectionResults || os.Getenv("STORE_DETECTION_RESULTS") == "")

	s.MediaStorage = getEnv("MEDIA_STORAGE", defaultStr(s.MediaStorage, "local"))
	s.MediaSigningSecret = getEnv("MEDIA_SIGNING_SECRET", defaultStr(s.MediaSigningSecret, s.JWTSecretKey))
	s.MediaBucket = getEnv("MEDIA_BUCKET", s.MediaBucket)

	if s.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY is required")
	}

	return s, nil
}

// JWTExpiry returns the configured access token lifetime
func (s *Settings) JWTExpiry() time.Duration {
	return time.Duration(s.JWTAccessTokenExpireMins) * time.Minute
}

// EnsureDirs creates the writable directories, failing only on unwritable targets
func (s *Settings) EnsureDirs() error {
	for _, dir := range []string{s.DataDir, s.LogDir, s.DetectionLogDir, s.MediaDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func defaultStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func defaultInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}
