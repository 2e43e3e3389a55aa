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

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("tenant-1", "admin@example.com", true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.True(t, claims.IsSuperAdmin)
}

func TestTokenIssuerRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)
	token, err := issuer.Issue("tenant-1", "a@b.c", false)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}

func TestTokenIssuerRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", time.Hour).Issue("tenant-1", "a@b.c", false)
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestTokenIssuerRejectsGarbage(t *testing.T) {
	_, err := NewTokenIssuer("secret", time.Hour).Verify("not-a-jwt")
	assert.Error(t, err)
}
