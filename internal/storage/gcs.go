package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"mediaingest/internal/config"
)

type GCSStore struct {
	client *storage.Client
	cfg    config.StorageConfig
}

// NewGCSStore authenticates with application default credentials. A custom
// endpoint is treated as an unauthenticated emulator.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init gcs: %w", err)
	}
	return &GCSStore{client: client, cfg: cfg}, nil
}

func (s *GCSStore) Bucket() string {
	return s.cfg.Bucket
}

func (s *GCSStore) EnsureBucket(ctx context.Context) error {
	bucket := s.client.Bucket(s.cfg.Bucket)
	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("bucket attrs %s: %w", s.cfg.Bucket, err)
	}
	if err := bucket.Create(ctx, s.cfg.ProjectID, &storage.BucketAttrs{Location: s.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
	}
	return nil
}

func (s *GCSStore) Put(ctx context.Context, obj Object) (string, error) {
	w := s.client.Bucket(s.cfg.Bucket).Object(obj.Name).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.CacheControl = obj.CacheControl
	if _, err := w.Write(obj.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", obj.Name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", obj.Name, err)
	}
	return s.publicURL(obj.Name), nil
}

func (s *GCSStore) Ping(ctx context.Context) error {
	_, err := s.client.Bucket(s.cfg.Bucket).Attrs(ctx)
	return err
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) publicURL(name string) string {
	if s.cfg.PublicBaseURL != "" {
		return joinURL(s.cfg.PublicBaseURL, s.cfg.Bucket, name, false)
	}
	return joinURL("https://storage.googleapis.com", s.cfg.Bucket, name, true)
}
