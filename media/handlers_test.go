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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/auth"
)

func newTestRouter(t *testing.T) (*mux.Router, *Service) {
	t.Helper()
	svc := newTestService(t)
	h := &Handler{Service: svc}

	// Inject a fixed identity the way the auth middleware would
	authed := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{TenantID: "tenant-1"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	r := mux.NewRouter()
	h.Register(r, authed)
	return r, svc
}

func multipartUpload(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestUploadAndFetchImage(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := multipartUpload(t, "file", "pic.png", pngBytes)
	req := httptest.NewRequest("POST", "/api/v1/media/upload/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Filename string `json:"filename"`
		URL      string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Filename)

	// The returned signed URL serves the image back
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", resp.URL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())
}

func TestUploadRejectsNonImage(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := multipartUpload(t, "file", "doc.txt", []byte("just text"))
	req := httptest.NewRequest("POST", "/api/v1/media/upload/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRequiresFileField(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := multipartUpload(t, "wrong", "pic.png", pngBytes)
	req := httptest.NewRequest("POST", "/api/v1/media/upload/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetImageRejectsBadToken(t *testing.T) {
	router, svc := newTestRouter(t)
	require.NoError(t, svc.Store.Put(context.Background(), "tenant-1/a.png", pngBytes, "image/png"))

	expires := time.Now().Add(time.Hour).Unix()
	url := fmt.Sprintf("/api/v1/media/image/tenant-1/a.png?token=%s&expires=%d", "deadbeef", expires)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", url, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Valid token for a different tenant's file fails too
	token, exp := svc.Signer.Sign("tenant-2", "a.png", time.Hour)
	url = fmt.Sprintf("/api/v1/media/image/tenant-1/a.png?token=%s&expires=%d", token, exp)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", url, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetImageMissingFile(t *testing.T) {
	router, svc := newTestRouter(t)

	token, expires := svc.Signer.Sign("tenant-1", "gone.png", time.Hour)
	url := fmt.Sprintf("/api/v1/media/image/tenant-1/gone.png?token=%s&expires=%d", token, expires)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", url, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteImage(t *testing.T) {
	router, svc := newTestRouter(t)
	require.NoError(t, svc.Store.Put(context.Background(), "tenant-1/a.png", pngBytes, "image/png"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/v1/media/image/a.png", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := svc.Store.Get(context.Background(), "tenant-1/a.png")
	assert.Equal(t, ErrNotFound, err)

	// Deleting again reports not found
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/v1/media/image/a.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
