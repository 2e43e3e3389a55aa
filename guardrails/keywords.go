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
	"fmt"
	"strings"
)

// KeywordHit is the result of a blacklist or whitelist prefilter match
type KeywordHit struct {
	ListName string
	Keywords []string
}

// matchLists runs a case-insensitive substring match of every list's keywords
// over content and returns the first list with hits.
func matchLists(lists map[string][]string, content string) *KeywordHit {
	if len(lists) == 0 || content == "" {
		return nil
	}
	lowered := strings.ToLower(content)
	for name, keywords := range lists {
		var hits []string
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				hits = append(hits, kw)
			}
		}
		if len(hits) > 0 {
			return &KeywordHit{ListName: name, Keywords: hits}
		}
	}
	return nil
}

// MatchBlacklist checks the tenant's active blacklists against content
func (c *KeywordCache) MatchBlacklist(ctx context.Context, tenantID, content string) *KeywordHit {
	return matchLists(c.Blacklists(ctx, tenantID), content)
}

// MatchWhitelist checks the tenant's active whitelists against content
func (c *KeywordCache) MatchWhitelist(ctx context.Context, tenantID, content string) *KeywordHit {
	return matchLists(c.Whitelists(ctx, tenantID), content)
}

// BlacklistRefusal is the substitute answer for a blacklist hit
func BlacklistRefusal(listName string) string {
	return fmt.Sprintf("Sorry, I can't provide content involving %s.", listName)
}
