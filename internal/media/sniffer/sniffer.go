package sniffer

import (
	"bytes"
	"errors"
	"mime"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
)

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

var mimeByType = map[MediaType]string{
	TypeJPEG: "image/jpeg",
	TypePNG:  "image/png",
	TypeGIF:  "image/gif",
	TypeWEBP: "image/webp",
}

var extensionByMIME = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

var mimeByExtension = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	var t MediaType
	switch {
	case isJPEG(head):
		t = TypeJPEG
	case isPNG(head):
		t = TypePNG
	case isGIF(head):
		t = TypeGIF
	case isWEBP(head):
		t = TypeWEBP
	default:
		return Result{}, ErrUnknownType
	}

	return Result{Type: t, MIME: mimeByType[t]}, nil
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

// NormalizeMIME lowercases a declared content type, drops parameters and maps
// common aliases onto their canonical form.
func NormalizeMIME(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
		if idx := strings.Index(mediaType, ";"); idx >= 0 {
			mediaType = mediaType[:idx]
		}
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	switch mediaType {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	case "image/x-png":
		return "image/png"
	}
	return mediaType
}

// ExtensionFor returns the canonical file extension, without dot, for a MIME type.
func ExtensionFor(mimeType string) string {
	return extensionByMIME[NormalizeMIME(mimeType)]
}

// MIMEForExtension maps a file extension, with or without the dot, to the
// MIME type it names. Unknown extensions map to "".
func MIMEForExtension(ext string) string {
	return mimeByExtension[strings.ToLower(strings.TrimPrefix(ext, "."))]
}
