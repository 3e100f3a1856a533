package service

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"mediaingest/internal/models"
)

// RedisEventPublisher appends an "ingested" entry to a Redis stream for
// downstream consumers such as review queues or feed fan-out.
type RedisEventPublisher struct {
	client *redis.Client
	stream string
}

func NewRedisEventPublisher(client *redis.Client, stream string) *RedisEventPublisher {
	if stream == "" {
		stream = "media:ingest"
	}
	return &RedisEventPublisher{client: client, stream: stream}
}

func (p *RedisEventPublisher) PublishIngested(ctx context.Context, photo models.Photo) error {
	if p.client == nil {
		return nil
	}

	payload := map[string]any{
		"type":       "ingested",
		"photoId":    photo.ID,
		"userId":     photo.UserID,
		"purpose":    string(photo.Purpose),
		"bucket":     photo.Bucket,
		"object":     photo.ObjectName,
		"mime":       photo.MIMEType,
		"decision":   string(photo.ModerationDecision),
		"confidence": strconv.FormatFloat(photo.ModerationConfidence, 'f', 4, 64),
		"traceId":    photo.TraceID,
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: payload,
	}).Err()
}
