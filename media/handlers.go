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
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"xxai/platform/auth"
)

// Handler serves the media HTTP surface. Upload and delete require the
// caller's tenant identity; image GET is authenticated solely by its signed
// token so it can be embedded in classifier payloads.
type Handler struct {
	Service *Service
}

// Register mounts the media routes. authed wraps routes that need a resolved
// identity; the signed GET endpoint is mounted raw.
func (h *Handler) Register(r *mux.Router, authed func(http.Handler) http.Handler) {
	r.Handle("/api/v1/media/upload/image", authed(http.HandlerFunc(h.Upload))).Methods("POST")
	r.HandleFunc("/api/v1/media/image/{tenant_id}/{filename}", h.GetImage).Methods("GET")
	r.Handle("/api/v1/media/image/{filename}", authed(http.HandlerFunc(h.Delete))).Methods("DELETE")
}

// Upload accepts a multipart image upload and returns its signed URL
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		auth.WriteJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil || len(data) > MaxImageBytes {
		auth.WriteJSONError(w, http.StatusBadRequest, "image too large")
		return
	}
	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		contentType = http.DetectContentType(data)
		if ext, ok = allowedImageTypes[contentType]; !ok {
			auth.WriteJSONError(w, http.StatusBadRequest, "unsupported image type")
			return
		}
	}

	key, err := h.Service.save(r.Context(), identity.TenantID, ext, contentType, data)
	if err != nil {
		h.Service.Log.Error(identity.TenantID, "", "media upload failed", map[string]interface{}{"error": err.Error()})
		auth.WriteJSONError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	filename := key[strings.LastIndex(key, "/")+1:]
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"filename": filename,
		"url":      h.Service.Signer.SignedURL(identity.TenantID, filename, DefaultSignedURLTTL),
	})
}

// GetImage serves a stored image when its token checks out
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, filename := vars["tenant_id"], vars["filename"]
	token := r.URL.Query().Get("token")
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil || !h.Service.Signer.Verify(token, tenantID, filename, expires) {
		auth.WriteJSONError(w, http.StatusForbidden, "invalid or expired token")
		return
	}

	data, err := h.Service.Store.Get(r.Context(), tenantID+"/"+filename)
	if err == ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		auth.WriteJSONError(w, http.StatusInternalServerError, "failed to read image")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}

// Delete removes an image owned by the caller's tenant
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		auth.WriteJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	filename := mux.Vars(r)["filename"]
	if strings.Contains(filename, "/") || strings.Contains(filename, "..") {
		auth.WriteJSONError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	err := h.Service.Store.Delete(r.Context(), identity.TenantID+"/"+filename)
	if err == ErrNotFound {
		auth.WriteJSONError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		auth.WriteJSONError(w, http.StatusInternalServerError, "failed to delete image")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
