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

package admin

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"user@example.com", true},
		{"a@b", true},
		{"@example.com", false},
		{"user@", false},
		{"no-at-sign", false},
		{"spaced user@example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, validEmail(tt.email), tt.email)
	}
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code := generateCode()
		assert.Regexp(t, `^\d{6}$`, code)
		seen[code] = true
	}
	// 50 draws over a million values collide only pathologically
	assert.Greater(t, len(seen), 1)
}

func TestPageParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/results?limit=25&offset=50", nil)
	limit, offset := pageParams(r)
	assert.Equal(t, 25, limit)
	assert.Equal(t, 50, offset)

	r = httptest.NewRequest("GET", "/api/v1/results?offset=-5", nil)
	limit, offset = pageParams(r)
	assert.Equal(t, 0, limit)
	assert.Equal(t, 0, offset)

	r = httptest.NewRequest("GET", "/api/v1/results?limit=abc", nil)
	limit, _ = pageParams(r)
	assert.Equal(t, 0, limit)
}

func TestRequestIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.4:9999"
	assert.Equal(t, "192.0.2.4", requestIP(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 192.0.2.4")
	assert.Equal(t, "198.51.100.7", requestIP(r))
}
