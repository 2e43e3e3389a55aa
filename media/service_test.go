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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/shared/logger"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-png-payload")

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewService(store, NewSigner("test-secret"), logger.New("test"))
}

func TestIngestDataURI(t *testing.T) {
	svc := newTestService(t)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	saved, err := svc.Ingest(context.Background(), "tenant-1", uri)
	require.NoError(t, err)

	// The classifier sees the original data URI, the blob lands under the tenant
	assert.Equal(t, uri, saved.ClassifierRef)
	assert.True(t, strings.HasPrefix(saved.Key, "tenant-1/"))
	assert.True(t, strings.HasSuffix(saved.Key, ".png"))

	data, err := svc.Store.Get(context.Background(), saved.Key)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestIngestDataURIErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "tenant-1", "data:image/png;base64")
	assert.Error(t, err)

	_, err = svc.Ingest(ctx, "tenant-1", "data:application/pdf;base64,AAAA")
	assert.Equal(t, ErrUnsupportedImage, err)

	_, err = svc.Ingest(ctx, "tenant-1", "data:image/png;base64,!!!not-base64!!!")
	assert.Error(t, err)
}

func TestIngestRemote(t *testing.T) {
	svc := newTestService(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	saved, err := svc.Ingest(context.Background(), "tenant-1", srv.URL+"/img.png")
	require.NoError(t, err)

	// Downloaded images are re-served through a signed URL
	assert.True(t, strings.HasPrefix(saved.ClassifierRef, "/api/v1/media/image/tenant-1/"))
	assert.Contains(t, saved.ClassifierRef, "token=")

	data, err := svc.Store.Get(context.Background(), saved.Key)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestIngestRemoteErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>"))
		}
	}))
	defer srv.Close()

	_, err := svc.Ingest(ctx, "tenant-1", srv.URL+"/missing")
	assert.Error(t, err)

	_, err = svc.Ingest(ctx, "tenant-1", srv.URL+"/page.html")
	assert.Equal(t, ErrUnsupportedImage, err)
}

func TestIngestRejectsUnknownScheme(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Ingest(context.Background(), "tenant-1", "ftp://host/image.png")
	assert.Error(t, err)
}
