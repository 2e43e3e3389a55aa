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
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/store"
)

func newMockResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	wrapped := &store.DB{DB: db, Driver: "postgres"}
	issuer := NewTokenIssuer("test-secret", time.Hour)
	resolver := NewResolver(store.NewTenantRepository(wrapped), store.NewSwitchSessionRepository(wrapped),
		issuer, "admin@example.com")
	return resolver, mock
}

func tenantRow(id, email, apiKey string, active, superAdmin bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "api_key", "is_active", "is_verified", "is_super_admin", "created_at", "updated_at",
	}).AddRow(id, email, "hash", apiKey, active, true, superAdmin, now, now)
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest("POST", "/v1/guardrails", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestResolverAPIKey(t *testing.T) {
	resolver, mock := newMockResolver(t)
	key := store.APIKeyPrefix + "abc123"
	mock.ExpectQuery("FROM tenants").WillReturnRows(tenantRow("tenant-1", "u@example.com", key, true, false))

	identity, err := resolver.Resolve(context.Background(), authedRequest(key))
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", identity.TenantID)
	assert.True(t, identity.ViaAPIKey)
	assert.False(t, identity.Switched())

	// Second resolve is served from the credential cache
	identity, err = resolver.Resolve(context.Background(), authedRequest(key))
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", identity.TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolverRejectsUnknownKey(t *testing.T) {
	resolver, mock := newMockResolver(t)
	mock.ExpectQuery("FROM tenants").WillReturnError(sql.ErrNoRows)

	_, err := resolver.Resolve(context.Background(), authedRequest(store.APIKeyPrefix+"nope"))
	assert.Equal(t, ErrUnauthorized, err)
}

func TestResolverRejectsInactiveTenant(t *testing.T) {
	resolver, mock := newMockResolver(t)
	key := store.APIKeyPrefix + "abc"
	mock.ExpectQuery("FROM tenants").WillReturnRows(tenantRow("tenant-1", "u@example.com", key, false, false))

	_, err := resolver.Resolve(context.Background(), authedRequest(key))
	assert.Equal(t, ErrUnauthorized, err)
}

func TestResolverJWT(t *testing.T) {
	resolver, mock := newMockResolver(t)
	token, err := NewTokenIssuer("test-secret", time.Hour).Issue("tenant-1", "admin@example.com", true)
	require.NoError(t, err)

	mock.ExpectQuery("FROM tenants").WillReturnRows(
		tenantRow("tenant-1", "admin@example.com", store.APIKeyPrefix+"k", true, true))

	identity, err := resolver.Resolve(context.Background(), authedRequest(token))
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", identity.TenantID)
	assert.True(t, identity.IsSuperAdmin)
	assert.False(t, identity.ViaAPIKey)
}

func TestResolverSuperAdminFromConfiguredEmail(t *testing.T) {
	resolver, mock := newMockResolver(t)

	// A stored is_super_admin flag does not grant rights on its own
	key := store.APIKeyPrefix + "flagged"
	mock.ExpectQuery("FROM tenants").WillReturnRows(tenantRow("tenant-2", "other@example.com", key, true, true))
	identity, err := resolver.Resolve(context.Background(), authedRequest(key))
	require.NoError(t, err)
	assert.False(t, identity.IsSuperAdmin)

	// Only the configured email does, regardless of the flag
	adminKey := store.APIKeyPrefix + "admin"
	mock.ExpectQuery("FROM tenants").WillReturnRows(tenantRow("tenant-1", "admin@example.com", adminKey, true, false))
	identity, err = resolver.Resolve(context.Background(), authedRequest(adminKey))
	require.NoError(t, err)
	assert.True(t, identity.IsSuperAdmin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolverRejectsMissingOrMalformedHeader(t *testing.T) {
	resolver, _ := newMockResolver(t)

	req := httptest.NewRequest("GET", "/", nil)
	_, err := resolver.Resolve(context.Background(), req)
	assert.Equal(t, ErrUnauthorized, err)

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err = resolver.Resolve(context.Background(), req)
	assert.Equal(t, ErrUnauthorized, err)
}

func TestResolverInvalidate(t *testing.T) {
	resolver, mock := newMockResolver(t)
	key := store.APIKeyPrefix + "rotated"
	mock.ExpectQuery("FROM tenants").WillReturnRows(tenantRow("tenant-1", "u@example.com", key, true, false))

	_, err := resolver.Resolve(context.Background(), authedRequest(key))
	require.NoError(t, err)

	resolver.Invalidate(key)
	mock.ExpectQuery("FROM tenants").WillReturnError(sql.ErrNoRows)
	_, err = resolver.Resolve(context.Background(), authedRequest(key))
	assert.Equal(t, ErrUnauthorized, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
