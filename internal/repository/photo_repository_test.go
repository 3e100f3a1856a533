package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaingest/internal/models"
)

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

type fakeDB struct {
	sql  string
	args []any
	row  pgx.Row
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql = sql
	f.args = args
	return f.row
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func newPhotoInput() models.NewPhoto {
	return models.NewPhoto{
		UserID:           "user-7",
		Purpose:          models.PurposeGallery,
		Bucket:           "photos",
		ObjectName:       "galleries/2024/05/01/abc.jpg",
		URL:              "https://cdn.example.com/galleries/2024/05/01/abc.jpg",
		OriginalSize:     2 << 20,
		ProcessedSize:    300 << 10,
		Width:            1024,
		Height:           768,
		MIMEType:         "image/jpeg",
		OriginalMIMEType: "image/png",
		Moderation: models.ModerationVerdict{
			Decision:   models.DecisionNeedsReview,
			Category:   "violence",
			Confidence: 0.8,
		},
		TraceID: "trace-1",
	}
}

func TestPersistInsertsSingleRow(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{row: scanFunc(func(dest ...any) error {
		require.Len(t, dest, 1)
		*(dest[0].(*time.Time)) = created
		return nil
	})}

	repo := NewPhotoRepository(db, time.Second)
	photo, err := repo.Persist(context.Background(), newPhotoInput())
	require.NoError(t, err)

	assert.Contains(t, db.sql, "INSERT INTO photos")
	assert.Contains(t, db.sql, "RETURNING created_at")
	require.Len(t, db.args, 16)
	assert.Equal(t, photo.ID, db.args[0])
	assert.Equal(t, "gallery", db.args[2])
	assert.Equal(t, "NEEDS_REVIEW", db.args[12])

	assert.NotEmpty(t, photo.ID)
	assert.Equal(t, created, photo.CreatedAt)
	assert.Equal(t, models.DecisionNeedsReview, photo.ModerationDecision)
	assert.Equal(t, int64(2<<20), photo.OriginalSize)
}

func TestPersistPropagatesErrors(t *testing.T) {
	db := &fakeDB{row: scanFunc(func(...any) error { return errors.New("connection reset") })}

	_, err := NewPhotoRepository(db, 0).Persist(context.Background(), newPhotoInput())
	assert.EqualError(t, err, "connection reset")
}

func TestGetByIDNotFound(t *testing.T) {
	db := &fakeDB{row: scanFunc(func(...any) error { return pgx.ErrNoRows })}

	_, err := NewPhotoRepository(db, time.Second).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPhotoNotFound)
	assert.Equal(t, []any{"missing"}, db.args)
}
