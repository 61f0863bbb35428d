// Package storage keeps uploaded vehicle documents in a blob store.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/fleet-registry/internal/config"
	"github.com/ukydev/fleet-registry/internal/models"
)

// BlobStore persists document files by opaque key.
type BlobStore interface {
	// Put stores size bytes read from r under key, replacing any previous blob.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get writes the blob stored under key to w. A missing key yields errs.ErrNotFound.
	Get(ctx context.Context, key string, w io.Writer) error

	// Delete removes the blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// PresignGet returns a URL that downloads the blob as fileName until ttl elapses.
	PresignGet(ctx context.Context, key, fileName string, ttl time.Duration) (string, error)
}

// ObjectKey builds a fresh key for a document upload. The original file
// extension is kept so presigned downloads carry a sensible content type.
func ObjectKey(vehicle models.Vehicle, category models.DocumentCategory, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return path.Join("vehicles", vehicle.Key(), string(category), uuid.NewString()+ext)
}

// ContentDisposition is the attachment header used for downloads of fileName.
func ContentDisposition(fileName string) string {
	name := strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(fileName)
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}

// NewFromConfig creates a BlobStore based on the storage config type.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore("memory"), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 storage requires S3_BUCKET to be set")
		}
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
