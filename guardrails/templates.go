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

import (
	"context"
	"sort"

	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
)

// DefaultCategory is the catch-all template category
const DefaultCategory = "default"

// HardcodedRefusal is the last-resort substitute answer when no template matches
const HardcodedRefusal = "I'm sorry, I can't help with that request."

// TemplateResolver picks the substitute answer for a set of triggered
// categories: knowledge base first, then tenant-specific templates, then
// global defaults, then the hard-coded refusal.
type TemplateResolver struct {
	Templates *TemplateCache
	KB        Retriever
	Log       *logger.Logger
}

// NewTemplateResolver creates a resolver; kb may be nil
func NewTemplateResolver(templates *TemplateCache, kb Retriever, log *logger.Logger) *TemplateResolver {
	if kb == nil {
		kb = NopRetriever{}
	}
	return &TemplateResolver{Templates: templates, KB: kb, Log: log}
}

// Resolve returns the substitute answer for the triggered categories, sorted
// by risk priority descending. userQuery feeds the KB retriever when present.
func (r *TemplateResolver) Resolve(ctx context.Context, tenantID string, categories []types.Category, userQuery string) string {
	ordered := make([]types.Category, len(categories))
	copy(ordered, categories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Risk().Priority() > ordered[j].Risk().Priority()
	})

	for _, cat := range ordered {
		if userQuery != "" {
			answer, ok, err := r.KB.Retrieve(ctx, tenantID, string(cat), userQuery)
			if err != nil {
				r.Log.Warn(tenantID, "", "kb retrieval failed", map[string]interface{}{
					"category": string(cat),
					"error":    err.Error(),
				})
			} else if ok {
				return answer
			}
		}
		// Tenant non-default, tenant default, then global default for the category
		if content, ok := r.Templates.Lookup(ctx, tenantID, string(cat), false); ok {
			return content
		}
		if content, ok := r.Templates.Lookup(ctx, tenantID, string(cat), true); ok {
			return content
		}
		if content, ok := r.Templates.Lookup(ctx, GlobalKey, string(cat), true); ok {
			return content
		}
	}

	// Catch-all "default" category, tenant before global
	for _, isDefault := range []bool{false, true} {
		if content, ok := r.Templates.Lookup(ctx, tenantID, DefaultCategory, isDefault); ok {
			return content
		}
	}
	for _, isDefault := range []bool{true, false} {
		if content, ok := r.Templates.Lookup(ctx, GlobalKey, DefaultCategory, isDefault); ok {
			return content
		}
	}

	return HardcodedRefusal
}
