// Package storage persists sanitized images to object storage. Drivers exist
// for MinIO, S3 and Google Cloud Storage; the Uploader wraps whichever one is
// configured.
package storage

import (
	"context"
	"fmt"
	"strings"

	"mediaingest/internal/config"
)

// Object is a single immutable blob to store.
type Object struct {
	Name         string
	Data         []byte
	ContentType  string
	CacheControl string
}

type ObjectStore interface {
	Bucket() string
	// EnsureBucket creates the bucket when it does not exist yet.
	EnsureBucket(ctx context.Context) error
	// Put uploads obj and returns its public URL.
	Put(ctx context.Context, obj Object) (string, error)
	Ping(ctx context.Context) error
}

// New builds the driver selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	var (
		store ObjectStore
		err   error
	)
	switch cfg.Driver {
	case "minio", "":
		store, err = NewMinioStore(cfg)
	case "s3":
		store, err = NewS3Store(ctx, cfg)
	case "gcs":
		store, err = NewGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func joinURL(base, bucket, name string, includeBucket bool) string {
	base = strings.TrimSuffix(base, "/")
	if includeBucket {
		return fmt.Sprintf("%s/%s/%s", base, bucket, name)
	}
	return fmt.Sprintf("%s/%s", base, name)
}
