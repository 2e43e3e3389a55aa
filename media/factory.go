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
)

// OpenStore selects the blob backend named by MEDIA_STORAGE
func OpenStore(ctx context.Context, storage, mediaDir, bucket string) (BlobStore, error) {
	switch storage {
	case "", "local":
		return NewLocalStore(mediaDir)
	case "s3":
		return NewS3Store(ctx, bucket)
	case "gcs":
		return NewGCSStore(ctx, bucket)
	case "azure":
		return NewAzureStore(ctx, bucket)
	default:
		return nil, fmt.Errorf("unsupported media storage backend: %s", storage)
	}
}
