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

package media

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultSignedURLTTL is how long issued media URLs stay valid
const DefaultSignedURLTTL = 24 * time.Hour

// Signer issues and verifies HMAC tokens for media URLs. The token covers
// (tenant_id, filename, expires) so a URL cannot be replayed for another
// tenant's file or past its expiry.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer from the server-side secret
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) token(tenantID, filename string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s||%s||%d", tenantID, filename, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns (token, expires) valid for ttl from now
func (s *Signer) Sign(tenantID, filename string, ttl time.Duration) (string, int64) {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	expires := time.Now().Add(ttl).Unix()
	return s.token(tenantID, filename, expires), expires
}

// SignedURL builds the full media URL path with query parameters
func (s *Signer) SignedURL(tenantID, filename string, ttl time.Duration) string {
	token, expires := s.Sign(tenantID, filename, ttl)
	return fmt.Sprintf("/api/v1/media/image/%s/%s?token=%s&expires=%d", tenantID, filename, token, expires)
}

// Verify checks the token in constant time and that the URL has not expired
func (s *Signer) Verify(token, tenantID, filename string, expires int64) bool {
	if time.Now().Unix() > expires {
		return false
	}
	expected := s.token(tenantID, filename, expires)
	return hmac.Equal([]byte(token), []byte(expected))
}
