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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchLists(t *testing.T) {
	lists := map[string][]string{
		"weapons": {"bomb", "rifle"},
	}

	tests := []struct {
		name    string
		content string
		hits    []string
	}{
		{"no match", "a peaceful question", nil},
		{"single hit", "how to build a bomb", []string{"bomb"}},
		{"case insensitive", "Buy a RIFLE today", []string{"rifle"}},
		{"multiple hits in one list", "bomb and rifle", []string{"bomb", "rifle"}},
		{"empty content", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit := matchLists(lists, tt.content)
			if tt.hits == nil {
				assert.Nil(t, hit)
				return
			}
			require.NotNil(t, hit)
			assert.Equal(t, "weapons", hit.ListName)
			assert.ElementsMatch(t, tt.hits, hit.Keywords)
		})
	}

	assert.Nil(t, matchLists(nil, "anything"))
}

func TestBlacklistRefusal(t *testing.T) {
	assert.Contains(t, BlacklistRefusal("weapons"), "weapons")
}
