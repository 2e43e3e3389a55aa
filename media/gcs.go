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
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps blobs in a Google Cloud Storage bucket. Credentials come
// from application default credentials or MEDIA_GCS_CREDENTIALS_FILE.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore connects to the bucket
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("media bucket is required for gcs storage")
	}

	var opts []option.ClientOption
	if credsFile := os.Getenv("MEDIA_GCS_CREDENTIALS_FILE"); credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Put uploads one blob
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs write failed: %w", err)
	}
	return nil
}

// Get downloads one blob
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err == storage.ErrObjectNotExist {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read failed: %w", err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// Delete removes one blob
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err == storage.ErrObjectNotExist {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("gcs delete failed: %w", err)
	}
	return nil
}
