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
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"xxai/platform/shared/logger"
)

// MaxImageBytes caps downloaded and uploaded images at 10 MiB
const MaxImageBytes = 10 << 20

// allowedImageTypes whitelists image content types and their extensions
var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/webp": "webp",
	"image/tiff": "tiff",
}

// ErrUnsupportedImage is returned for oversized or non-whitelisted images
var ErrUnsupportedImage = fmt.Errorf("unsupported or oversized image")

// Service saves inbound images and resolves references for the classifier
type Service struct {
	Store  BlobStore
	Signer *Signer
	Log    *logger.Logger

	httpClient *http.Client
}

// NewService creates a media service
func NewService(store BlobStore, signer *Signer, log *logger.Logger) *Service {
	return &Service{
		Store:  store,
		Signer: signer,
		Log:    log,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SavedImage records where an inbound image ended up
type SavedImage struct {
	// Key is <tenant_id>/<uuid>.<ext>, recorded on the detection record
	Key string
	// ClassifierRef is what the classifier should see: the original base64
	// data URI, or a signed URL for downloaded content
	ClassifierRef string
}

// Ingest saves one image reference for the tenant. Accepts data: URIs,
// http(s) URLs, and file:// paths.
func (s *Service) Ingest(ctx context.Context, tenantID, url string) (*SavedImage, error) {
	switch {
	case strings.HasPrefix(url, "data:"):
		return s.ingestDataURI(ctx, tenantID, url)
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return s.ingestRemote(ctx, tenantID, url)
	case strings.HasPrefix(url, "file://"):
		return s.ingestLocal(ctx, tenantID, strings.TrimPrefix(url, "file://"))
	default:
		return nil, fmt.Errorf("unsupported image reference")
	}
}

// ingestDataURI decodes and saves a base64 data URI. The classifier receives
// the original URI verbatim.
func (s *Service) ingestDataURI(ctx context.Context, tenantID, uri string) (*SavedImage, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URI")
	}
	contentType := strings.TrimSuffix(meta, ";base64")
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrUnsupportedImage
	}

	key, err := s.save(ctx, tenantID, ext, contentType, data)
	if err != nil {
		return nil, err
	}
	return &SavedImage{Key: key, ClassifierRef: uri}, nil
}

// ingestRemote downloads the image, enforcing the size cap and content-type
// whitelist, and hands the classifier a signed service URL.
func (s *Service) ingestRemote(ctx context.Context, tenantID, url string) (*SavedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download failed: status %d", resp.StatusCode)
	}
	contentType := strings.Split(resp.Header.Get("Content-Type"), ";")[0]
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedImage
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("image download failed: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrUnsupportedImage
	}

	key, err := s.save(ctx, tenantID, ext, contentType, data)
	if err != nil {
		return nil, err
	}
	filename := key[strings.LastIndex(key, "/")+1:]
	return &SavedImage{
		Key:           key,
		ClassifierRef: s.Signer.SignedURL(tenantID, filename, DefaultSignedURLTTL),
	}, nil
}

// ingestLocal copies a local file into the media store
func (s *Service) ingestLocal(ctx context.Context, tenantID, path string) (*SavedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read local image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrUnsupportedImage
	}
	contentType := http.DetectContentType(data)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedImage
	}
	key, err := s.save(ctx, tenantID, ext, contentType, data)
	if err != nil {
		return nil, err
	}
	return &SavedImage{
		Key:           key,
		ClassifierRef: "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (s *Service) save(ctx context.Context, tenantID, ext, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%s.%s", tenantID, uuid.NewString(), ext)
	if err := s.Store.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return key, nil
}
