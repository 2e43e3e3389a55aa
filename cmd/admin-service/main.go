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

// Package main is the entry point for the XXAI admin service.
//
// The admin service manages tenants and guardrail configuration:
// - Tenant registration, login, and API key rotation
// - Keyword lists, response templates, risk types, and entity types
// - Proxy model configurations, rate limits, and ban policies
// - Detection result queries and the detection log importer
//
// Usage:
//
//	./admin-service
//
// Environment Variables:
//
//	ADMIN_PORT - HTTP server port (default: 5000)
//	DATABASE_URL - PostgreSQL or MySQL connection string
//	JWT_SECRET_KEY - secret for admin JWTs (required)
//	SUPER_ADMIN_USERNAME / SUPER_ADMIN_PASSWORD - bootstrap account (optional)
package main

import (
	"fmt"
	"os"

	"xxai/platform/admin"
)

func main() {
	if err := admin.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "admin service failed: %v\n", err)
		os.Exit(1)
	}
}
