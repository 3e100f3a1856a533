package storage

import (
	"context"
	"fmt"
	"path"
	"sync/atomic"
	"time"

	"mediaingest/internal/ids"
	"mediaingest/internal/models"
)

const DefaultCacheControl = "public, max-age=31536000, immutable"

// TransientError is an upload failure that may succeed when retried by the
// caller. The uploader itself never retries.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func (e *TransientError) Retryable() bool {
	return true
}

type Uploader struct {
	store        ObjectStore
	cacheControl string
	timeout      time.Duration
	bucketReady  atomic.Bool
}

func NewUploader(store ObjectStore, cacheControl string, timeout time.Duration) *Uploader {
	if cacheControl == "" {
		cacheControl = DefaultCacheControl
	}
	return &Uploader{store: store, cacheControl: cacheControl, timeout: timeout}
}

func (u *Uploader) Bucket() string {
	return u.store.Bucket()
}

// Store uploads data under objectName and returns the public URL. The bucket
// is created on first use; concurrent first calls may both try, which is
// harmless since creation is idempotent.
func (u *Uploader) Store(ctx context.Context, data []byte, objectName, mimeType string) (string, error) {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	if !u.bucketReady.Load() {
		if err := u.store.EnsureBucket(ctx); err != nil {
			return "", &TransientError{Op: "ensure bucket", Err: err}
		}
		u.bucketReady.Store(true)
	}

	url, err := u.store.Put(ctx, Object{
		Name:         objectName,
		Data:         data,
		ContentType:  mimeType,
		CacheControl: u.cacheControl,
	})
	if err != nil {
		return "", &TransientError{Op: "put", Err: err}
	}
	return url, nil
}

// NewObjectName returns <purpose prefix>/<yyyy>/<mm>/<dd>/<ksuid>.<ext>.
// KSUIDs carry 128 random bits, so names never collide across requests.
func NewObjectName(purpose models.MediaPurpose, ext string, now time.Time) string {
	return path.Join(purpose.StoragePrefix(), now.UTC().Format("2006/01/02"), ids.New()+"."+ext)
}
