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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("test-secret")

	token, expires := s.Sign("tenant-1", "a.png", time.Hour)
	assert.True(t, s.Verify(token, "tenant-1", "a.png", expires))

	// The token binds tenant and filename
	assert.False(t, s.Verify(token, "tenant-2", "a.png", expires))
	assert.False(t, s.Verify(token, "tenant-1", "b.png", expires))
	assert.False(t, s.Verify("bogus", "tenant-1", "a.png", expires))
}

func TestSignerRejectsExpired(t *testing.T) {
	s := NewSigner("test-secret")
	expires := time.Now().Add(-time.Minute).Unix()
	token := s.token("tenant-1", "a.png", expires)
	assert.False(t, s.Verify(token, "tenant-1", "a.png", expires))
}

func TestSignerRejectsTamperedExpiry(t *testing.T) {
	s := NewSigner("test-secret")
	token, expires := s.Sign("tenant-1", "a.png", time.Minute)
	// Pushing the expiry forward invalidates the signature
	assert.False(t, s.Verify(token, "tenant-1", "a.png", expires+3600))
}

func TestSignedURLFormat(t *testing.T) {
	s := NewSigner("test-secret")
	url := s.SignedURL("tenant-1", "a.png", time.Hour)
	assert.Regexp(t, `^/api/v1/media/image/tenant-1/a\.png\?token=[0-9a-f]{64}&expires=\d+$`, url)
}

func TestSignerSecretsAreIndependent(t *testing.T) {
	token, expires := NewSigner("secret-a").Sign("tenant-1", "a.png", time.Hour)
	assert.False(t, NewSigner("secret-b").Verify(token, "tenant-1", "a.png", expires))
}

func TestSignDefaultTTL(t *testing.T) {
	s := NewSigner("test-secret")
	_, expires := s.Sign("tenant-1", "a.png", 0)
	want := time.Now().Add(DefaultSignedURLTTL).Unix()
	assert.InDelta(t, want, expires, 5, fmt.Sprintf("expires %d not near %d", expires, want))
}
