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
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"xxai/platform/store"
)

// ErrUnauthorized is returned when no valid credential is presented
var ErrUnauthorized = errors.New("invalid credentials")

// SwitchHeader carries a super-admin impersonation session token
const SwitchHeader = "X-Switch-Session"

// Identity is the resolved per-request auth context. When a switch session is
// in effect TenantID points at the impersonated tenant and AdminTenantID at
// the super-admin who opened the session.
type Identity struct {
	TenantID      string
	Email         string
	IsSuperAdmin  bool
	AdminTenantID string
	ViaAPIKey     bool
}

// Switched reports whether this identity is an impersonation session
func (id *Identity) Switched() bool { return id.AdminTenantID != "" }

type cacheEntry struct {
	identity  *Identity
	expiresAt time.Time
}

// Resolver turns bearer credentials into identities. Successful API-key
// lookups are cached for a short TTL to keep the hot path off the database.
// Super-admin status is derived from the configured admin email; the tenant
// row's flag is advisory only.
type Resolver struct {
	tenants    *store.TenantRepository
	switches   *store.SwitchSessionRepository
	issuer     *TokenIssuer
	superAdmin string

	mu    sync.RWMutex
	cache map[string]*cacheEntry
	ttl   time.Duration
}

// NewResolver creates a resolver with a 10-second credential cache.
// superAdminEmail names the one account granted super-admin rights; empty
// means no account has them.
func NewResolver(tenants *store.TenantRepository, switches *store.SwitchSessionRepository,
	issuer *TokenIssuer, superAdminEmail string) *Resolver {
	return &Resolver{
		tenants:    tenants,
		switches:   switches,
		issuer:     issuer,
		superAdmin: superAdminEmail,
		cache:      make(map[string]*cacheEntry),
		ttl:        10 * time.Second,
	}
}

func (r *Resolver) isSuperAdmin(email string) bool {
	return r.superAdmin != "" && strings.EqualFold(email, r.superAdmin)
}

// Resolve authenticates the request. Bearer sk-xxai- keys are matched exactly
// against tenants; anything else is treated as an admin JWT. A valid
// X-Switch-Session header rewrites the identity onto the target tenant.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Identity, error) {
	token := bearerToken(req)
	if token == "" {
		return nil, ErrUnauthorized
	}

	identity, err := r.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if switchToken := req.Header.Get(SwitchHeader); switchToken != "" && identity.IsSuperAdmin {
		session, err := r.switches.GetByToken(ctx, switchToken)
		if err == nil && session.AdminTenantID == identity.TenantID {
			target, err := r.tenants.GetByID(ctx, session.TargetTenantID)
			if err == nil && target.IsActive {
				return &Identity{
					TenantID:      target.ID,
					Email:         target.Email,
					AdminTenantID: identity.TenantID,
				}, nil
			}
		}
		// A dead switch session falls back to the admin's own identity
	}

	return identity, nil
}

func (r *Resolver) resolveToken(ctx context.Context, token string) (*Identity, error) {
	if cached := r.lookup(token); cached != nil {
		return cached, nil
	}

	var identity *Identity
	if strings.HasPrefix(token, store.APIKeyPrefix) {
		tenant, err := r.tenants.GetByAPIKey(ctx, token)
		if err == store.ErrNotFound {
			return nil, ErrUnauthorized
		}
		if err != nil {
			return nil, err
		}
		if !tenant.IsActive {
			return nil, ErrUnauthorized
		}
		identity = &Identity{
			TenantID:     tenant.ID,
			Email:        tenant.Email,
			IsSuperAdmin: r.isSuperAdmin(tenant.Email),
			ViaAPIKey:    true,
		}
	} else {
		claims, err := r.issuer.Verify(token)
		if err != nil {
			return nil, ErrUnauthorized
		}
		tenant, err := r.tenants.GetByEmail(ctx, claims.Email)
		if err == store.ErrNotFound {
			return nil, ErrUnauthorized
		}
		if err != nil {
			return nil, err
		}
		if !tenant.IsActive {
			return nil, ErrUnauthorized
		}
		identity = &Identity{
			TenantID:     tenant.ID,
			Email:        tenant.Email,
			IsSuperAdmin: r.isSuperAdmin(tenant.Email),
		}
	}

	r.storeEntry(token, identity)
	return identity, nil
}

func (r *Resolver) lookup(token string) *Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.identity
}

func (r *Resolver) storeEntry(token string, identity *Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Opportunistic sweep keeps the map from growing unbounded
	if len(r.cache) > 10000 {
		now := time.Now()
		for k, e := range r.cache {
			if now.After(e.expiresAt) {
				delete(r.cache, k)
			}
		}
	}
	r.cache[token] = &cacheEntry{identity: identity, expiresAt: time.Now().Add(r.ttl)}
}

// Invalidate drops a credential from the cache, e.g. after key rotation
func (r *Resolver) Invalidate(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, token)
}

func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
