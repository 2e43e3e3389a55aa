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

// Package main is the entry point for the XXAI proxy service.
//
// The proxy service is an OpenAI-compatible gateway that inspects
// prompts and completions with the guardrail pipeline before and after
// forwarding them to the tenant's configured upstream provider:
// - POST /v1/chat/completions and /v1/completions, streaming included
// - Mid-stream blocking with a content_filter stop chunk
// - Per-request proxy logs with token usage and detection references
//
// Usage:
//
//	./proxy-service
//
// Environment Variables:
//
//	PROXY_PORT - HTTP server port (default: 5002)
//	DATABASE_URL - PostgreSQL or MySQL connection string
//	GUARDRAILS_MODEL_API_URL - classifier endpoint
//	REDIS_URL - optional shared rate limit backend
package main

import (
	"fmt"
	"os"

	"xxai/platform/proxy"
)

func main() {
	if err := proxy.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "proxy service failed: %v\n", err)
		os.Exit(1)
	}
}
