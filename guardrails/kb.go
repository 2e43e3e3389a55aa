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

package guardrails

import "context"

// Retriever answers a user query from a tenant's knowledge base for a risk
// category. The embedding index behind it is external; implementations return
// ok=false when no sufficiently similar answer exists.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, category, query string) (answer string, ok bool, err error)
}

// NopRetriever is used when no knowledge-base backend is configured
type NopRetriever struct{}

// Retrieve always misses
func (NopRetriever) Retrieve(ctx context.Context, tenantID, category, query string) (string, bool, error) {
	return "", false, nil
}
