package models

import "time"

// Photo is the durable record of a successfully ingested image.
type Photo struct {
	ID                   string
	UserID               string
	Purpose              MediaPurpose
	Bucket               string
	ObjectName           string
	URL                  string
	OriginalSize         int64
	ProcessedSize        int64
	Width                int
	Height               int
	MIMEType             string
	OriginalMIMEType     string
	ModerationDecision   ModerationDecision
	ModerationCategory   string
	ModerationConfidence float64
	TraceID              string
	CreatedAt            time.Time
}

// NewPhoto carries everything the recorder needs to insert a Photo.
type NewPhoto struct {
	UserID           string
	Purpose          MediaPurpose
	Bucket           string
	ObjectName       string
	URL              string
	OriginalSize     int64
	ProcessedSize    int64
	Width            int
	Height           int
	MIMEType         string
	OriginalMIMEType string
	Moderation       ModerationVerdict
	TraceID          string
}
