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

// Package main is the entry point for the XXAI detection service.
//
// The detection service runs the guardrail inspection pipeline over
// conversations submitted by API key:
// - POST /v1/guardrails and its input/output variants
// - Keyword blacklists and whitelists, data-security scanning,
//   classifier risk categories, and substitute-answer templates
// - Async JSONL detection logging and signed media uploads
//
// Usage:
//
//	./detection-service
//
// Environment Variables:
//
//	DETECTION_PORT - HTTP server port (default: 5001)
//	DATABASE_URL - PostgreSQL or MySQL connection string
//	GUARDRAILS_MODEL_API_URL - classifier endpoint
//	REDIS_URL - optional shared rate limit backend
package main

import (
	"fmt"
	"os"

	"xxai/platform/detection"
)

func main() {
	if err := detection.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "detection service failed: %v\n", err)
		os.Exit(1)
	}
}
