package storage

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"mediaingest/internal/config"
	"mediaingest/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	ensured   int
	ensureErr error
	putErr    error
	objects   map[string]Object
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]Object{}}
}

func (f *fakeStore) Bucket() string { return "photos" }

func (f *fakeStore) EnsureBucket(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	return f.ensureErr
}

func (f *fakeStore) Put(_ context.Context, obj Object) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	f.objects[obj.Name] = obj
	return "https://cdn.example.com/" + obj.Name, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func TestUploaderStore(t *testing.T) {
	store := newFakeStore()
	u := NewUploader(store, "", time.Second)

	url, err := u.Store(context.Background(), []byte("jpeg bytes"), "avatars/2024/01/02/abc.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/avatars/2024/01/02/abc.jpg", url)

	obj := store.objects["avatars/2024/01/02/abc.jpg"]
	assert.Equal(t, "image/jpeg", obj.ContentType)
	assert.Equal(t, DefaultCacheControl, obj.CacheControl)
	assert.Equal(t, []byte("jpeg bytes"), obj.Data)

	_, err = u.Store(context.Background(), []byte("more"), "avatars/2024/01/02/def.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, 1, store.ensured, "bucket is ensured once")
}

func TestUploaderTransientErrors(t *testing.T) {
	store := newFakeStore()
	store.ensureErr = errors.New("dial tcp: connection refused")
	u := NewUploader(store, "public, max-age=60", time.Second)

	_, err := u.Store(context.Background(), []byte("x"), "a.jpg", "image/jpeg")
	var terr *TransientError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "ensure bucket", terr.Op)
	assert.True(t, terr.Retryable())
	assert.Empty(t, store.objects)

	store.ensureErr = nil
	store.putErr = errors.New("503 slow down")
	_, err = u.Store(context.Background(), []byte("x"), "a.jpg", "image/jpeg")
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "put", terr.Op)
	assert.Equal(t, 2, store.ensured, "failed ensure is retried on the next call")

	store.putErr = nil
	_, err = u.Store(context.Background(), []byte("x"), "a.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "public, max-age=60", store.objects["a.jpg"].CacheControl)
}

var objectNamePattern = regexp.MustCompile(`^posts/2024/03/09/[0-9A-Za-z]{27}\.webp$`)

func TestNewObjectName(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	name := NewObjectName(models.PurposePostMedia, "webp", now)
	assert.Regexp(t, objectNamePattern, name)

	assert.True(t, strings.HasPrefix(NewObjectName(models.PurposeAvatar, "jpg", now), "avatars/"))
	assert.True(t, strings.HasPrefix(NewObjectName(models.PurposeProfileBanner, "jpg", now), "banners/"))
}

func TestObjectNamesUniqueUnderConcurrency(t *testing.T) {
	const uploads = 10000

	store := newFakeStore()
	u := NewUploader(store, "", time.Second)
	now := time.Now()

	var g errgroup.Group
	g.SetLimit(64)
	names := make([]string, uploads)
	for i := 0; i < uploads; i++ {
		i := i
		g.Go(func() error {
			name := NewObjectName(models.AllMediaPurposes[i%len(models.AllMediaPurposes)], "jpg", now)
			names[i] = name
			_, err := u.Store(context.Background(), []byte{byte(i)}, name, "image/jpeg")
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]struct{}, uploads)
	for _, n := range names {
		_, dup := seen[n]
		require.False(t, dup, "duplicate object name %s", n)
		seen[n] = struct{}{}
	}
	assert.Len(t, store.objects, uploads)
}

func TestPublicURLs(t *testing.T) {
	m, err := NewMinioStore(config.StorageConfig{Endpoint: "https://minio.internal:9000", Bucket: "photos", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "https://minio.internal:9000/photos/avatars/x.jpg", m.publicURL("avatars/x.jpg"))

	m.cfg.PublicBaseURL = "https://img.example.com/"
	assert.Equal(t, "https://img.example.com/avatars/x.jpg", m.publicURL("avatars/x.jpg"))

	s3store := &S3Store{cfg: config.StorageConfig{Bucket: "photos", Region: "eu-west-1"}}
	assert.Equal(t, "https://photos.s3.eu-west-1.amazonaws.com/a/b.jpg", s3store.publicURL("a/b.jpg"))

	gcs := &GCSStore{cfg: config.StorageConfig{Bucket: "photos"}}
	assert.Equal(t, "https://storage.googleapis.com/photos/a/b.jpg", gcs.publicURL("a/b.jpg"))
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}
