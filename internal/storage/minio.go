package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mediaingest/internal/config"
)

type MinioStore struct {
	client *minio.Client
	cfg    config.StorageConfig
	secure bool
	host   string
}

func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &MinioStore{
		client: client,
		cfg:    cfg,
		secure: useSSL,
		host:   endpoint,
	}, nil
}

func (s *MinioStore) Bucket() string {
	return s.cfg.Bucket
}

func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		// Another instance may have created it in the meantime.
		if resp := minio.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, obj Object) (string, error) {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, obj.Name, bytes.NewReader(obj.Data), int64(len(obj.Data)), minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		CacheControl: obj.CacheControl,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", obj.Name, err)
	}
	return s.publicURL(obj.Name), nil
}

func (s *MinioStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	return err
}

func (s *MinioStore) publicURL(name string) string {
	if s.cfg.PublicBaseURL != "" {
		return joinURL(s.cfg.PublicBaseURL, s.cfg.Bucket, name, false)
	}
	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	return joinURL(scheme+"://"+s.host, s.cfg.Bucket, name, true)
}
