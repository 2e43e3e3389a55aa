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

// Package media handles image intake for multimodal inspection: saving data
// URIs and remote images under per-tenant keys, issuing HMAC-signed URLs, and
// serving the media endpoints. Storage is pluggable behind BlobStore with
// local disk, S3, GCS and Azure Blob backends.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore persists image blobs under keys of the form <tenant_id>/<filename>
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// LocalStore keeps blobs on the shared media directory
type LocalStore struct {
	root string
}

// NewLocalStore creates a disk-backed store rooted at dir
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media dir not writable: %w", err)
	}
	return &LocalStore{root: dir}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid media key: %s", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes the blob, creating the tenant subdirectory on demand
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create media subdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}
	return nil
}

// Get reads the blob
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}
	return data, nil
}

// Delete removes the blob
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// ErrNotFound is returned for missing blobs
var ErrNotFound = fmt.Errorf("media object not found")
