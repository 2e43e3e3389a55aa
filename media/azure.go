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

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore keeps blobs in an Azure Blob container. A connection string in
// MEDIA_AZURE_CONNECTION_STRING wins; otherwise MEDIA_AZURE_ACCOUNT with the
// default Azure credential chain.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore connects to the container
func NewAzureStore(ctx context.Context, container string) (*AzureStore, error) {
	if container == "" {
		return nil, fmt.Errorf("media bucket is required for azure storage")
	}

	if connStr := os.Getenv("MEDIA_AZURE_CONNECTION_STRING"); connStr != "" {
		client, err := azblob.NewClientFromConnectionString(connStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}
		return &AzureStore{client: client, container: container}, nil
	}

	account := os.Getenv("MEDIA_AZURE_ACCOUNT")
	if account == "" {
		return nil, fmt.Errorf("MEDIA_AZURE_CONNECTION_STRING or MEDIA_AZURE_ACCOUNT is required for azure storage")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build azure credential: %w", err)
	}
	client, err := azblob.NewClient(fmt.Sprintf("https://%s.blob.core.windows.net/", account), cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}
	return &AzureStore{client: client, container: container}, nil
}

// Put uploads one blob
func (s *AzureStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{})
	if err != nil {
		return fmt.Errorf("azure upload failed: %w", err)
	}
	return nil
}

// Get downloads one blob
func (s *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("azure download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

// Delete removes one blob
func (s *AzureStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("azure delete failed: %w", err)
	}
	return nil
}
