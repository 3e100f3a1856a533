package models

import (
	"fmt"
	"strings"
)

// MediaPurpose is the semantic role of an uploaded image.
type MediaPurpose string

const (
	PurposeAvatar        MediaPurpose = "avatar"
	PurposePostMedia     MediaPurpose = "post_media"
	PurposeGallery       MediaPurpose = "gallery"
	PurposeProfileBanner MediaPurpose = "profile_banner"
)

// AllMediaPurposes lists every supported purpose. New purposes must be added here.
var AllMediaPurposes = []MediaPurpose{
	PurposeAvatar,
	PurposePostMedia,
	PurposeGallery,
	PurposeProfileBanner,
}

func (p MediaPurpose) Valid() bool {
	switch p {
	case PurposeAvatar, PurposePostMedia, PurposeGallery, PurposeProfileBanner:
		return true
	}
	return false
}

// StoragePrefix is the object name prefix used for blobs of this purpose.
func (p MediaPurpose) StoragePrefix() string {
	switch p {
	case PurposeAvatar:
		return "avatars"
	case PurposePostMedia:
		return "posts"
	case PurposeGallery:
		return "galleries"
	case PurposeProfileBanner:
		return "banners"
	}
	return "misc"
}

func ParseMediaPurpose(s string) (MediaPurpose, error) {
	p := MediaPurpose(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown media purpose %q", s)
	}
	return p, nil
}

// UploadRequest is a single fully buffered upload handed to the pipeline.
type UploadRequest struct {
	Data         []byte
	DeclaredMIME string
	DeclaredSize int64
	Filename     string
	UserID       string
	TraceID      string
	Purpose      MediaPurpose
}

type ValidationOutcome struct {
	Passed    bool
	Reason    string
	Width     int
	Height    int
	MediaType string
	Animated  bool
}

// ProcessedImage is the sanitized output of the normalizer.
type ProcessedImage struct {
	Data      []byte
	MIME      string
	Extension string
	Width     int
	Height    int
	Frames    int
}
