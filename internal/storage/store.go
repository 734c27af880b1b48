// Package storage holds booking attachments. Keys are opaque to callers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hugh/roombook/pkg/config"
)

var ErrNotFound = errors.New("object not found")

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	case "gcs":
		return NewGCSStore(ctx, cfg)
	case "minio":
		return NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
