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

// Package auth resolves bearer credentials (tenant API keys and admin JWTs)
// into tenant identities and provides the shared HTTP middleware chain:
// authentication, concurrency capping, rate limiting and ban enforcement.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by admin console JWTs
type Claims struct {
	TenantID     string `json:"tenant_id"`
	Email        string `json:"email"`
	IsSuperAdmin bool   `json:"is_super_admin"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 JWTs for the admin console
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
}

// NewTokenIssuer creates a token issuer. Only HS256 is supported.
func NewTokenIssuer(secret string, expiry time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), expiry: expiry}
}

// Issue signs a token for the tenant
func (i *TokenIssuer) Issue(tenantID, email string, isSuperAdmin bool) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		TenantID:     tenantID,
		Email:        email,
		IsSuperAdmin: isSuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses and validates a token, returning its claims
func (i *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token invalid: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	return claims, nil
}
