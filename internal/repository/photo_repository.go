package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"mediaingest/internal/ids"
	"mediaingest/internal/models"
)

var ErrPhotoNotFound = errors.New("photo not found")

// DBTX is the subset of pgxpool.Pool (and pgx.Tx) the repository needs.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PhotoRepository struct {
	db      DBTX
	timeout time.Duration
}

func NewPhotoRepository(db DBTX, timeout time.Duration) *PhotoRepository {
	return &PhotoRepository{db: db, timeout: timeout}
}

func (r *PhotoRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Persist inserts one photo row. It is a single statement, so it either
// fully succeeds or leaves nothing behind.
func (r *PhotoRepository) Persist(ctx context.Context, p models.NewPhoto) (models.Photo, error) {
	const query = `
		INSERT INTO photos (
			id, user_id, purpose, bucket, object_name, url, original_size, processed_size,
			width, height, mime_type, original_mime_type,
			moderation_decision, moderation_category, moderation_confidence, trace_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16, NOW()
		)
		RETURNING created_at
	`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	photo := models.Photo{
		ID:                   ids.New(),
		UserID:               p.UserID,
		Purpose:              p.Purpose,
		Bucket:               p.Bucket,
		ObjectName:           p.ObjectName,
		URL:                  p.URL,
		OriginalSize:         p.OriginalSize,
		ProcessedSize:        p.ProcessedSize,
		Width:                p.Width,
		Height:               p.Height,
		MIMEType:             p.MIMEType,
		OriginalMIMEType:     p.OriginalMIMEType,
		ModerationDecision:   p.Moderation.Decision,
		ModerationCategory:   p.Moderation.Category,
		ModerationConfidence: p.Moderation.Confidence,
		TraceID:              p.TraceID,
	}

	err := r.db.QueryRow(ctx, query,
		photo.ID,
		photo.UserID,
		string(photo.Purpose),
		photo.Bucket,
		photo.ObjectName,
		photo.URL,
		photo.OriginalSize,
		photo.ProcessedSize,
		photo.Width,
		photo.Height,
		photo.MIMEType,
		photo.OriginalMIMEType,
		string(photo.ModerationDecision),
		photo.ModerationCategory,
		photo.ModerationConfidence,
		photo.TraceID,
	).Scan(&photo.CreatedAt)
	if err != nil {
		return models.Photo{}, err
	}
	return photo, nil
}

const photoColumns = `
	id, user_id, purpose, bucket, object_name, url, original_size, processed_size,
	width, height, mime_type, original_mime_type,
	moderation_decision, moderation_category, moderation_confidence, trace_id, created_at
`

func scanPhoto(row pgx.Row) (models.Photo, error) {
	var (
		photo    models.Photo
		purpose  string
		decision string
	)
	err := row.Scan(
		&photo.ID,
		&photo.UserID,
		&purpose,
		&photo.Bucket,
		&photo.ObjectName,
		&photo.URL,
		&photo.OriginalSize,
		&photo.ProcessedSize,
		&photo.Width,
		&photo.Height,
		&photo.MIMEType,
		&photo.OriginalMIMEType,
		&decision,
		&photo.ModerationCategory,
		&photo.ModerationConfidence,
		&photo.TraceID,
		&photo.CreatedAt,
	)
	photo.Purpose = models.MediaPurpose(purpose)
	photo.ModerationDecision = models.ModerationDecision(decision)
	return photo, err
}

func (r *PhotoRepository) GetByID(ctx context.Context, id string) (models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	photo, err := scanPhoto(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Photo{}, ErrPhotoNotFound
		}
		return models.Photo{}, err
	}
	return photo, nil
}

func (r *PhotoRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Photo, error) {
	query := `SELECT ` + photoColumns + `
		FROM photos
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}
