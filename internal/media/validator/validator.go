// Package validator checks an upload before any processing: size, declared
// type, extension, magic bytes and pixel dimensions, in that order.
package validator

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"

	"mediaingest/internal/config"
	"mediaingest/internal/media/metadata"
	"mediaingest/internal/media/sniffer"
	"mediaingest/internal/models"
)

const (
	CheckSize       = "size"
	CheckMIMEType   = "mime_type"
	CheckExtension  = "extension"
	CheckSignature  = "signature"
	CheckDimensions = "dimensions"
	CheckDecode     = "decode"
)

// Error names the first check an upload failed.
type Error struct {
	Check  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Check, e.Reason)
}

func fail(check, format string, args ...any) *Error {
	return &Error{Check: check, Reason: fmt.Sprintf(format, args...)}
}

type Validator struct {
	minBytes   int64
	maxBytes   int64
	minDim     int
	maxDim     int
	mimes      map[string]struct{}
	extensions map[string]struct{}
}

func New(cfg config.UploadConfig) *Validator {
	v := &Validator{
		minBytes:   cfg.MinBytes,
		maxBytes:   cfg.MaxBytes,
		minDim:     cfg.MinDimension,
		maxDim:     cfg.MaxDimension,
		mimes:      make(map[string]struct{}, len(cfg.AllowedMIMETypes)),
		extensions: make(map[string]struct{}, len(cfg.AllowedExtensions)),
	}
	for _, m := range cfg.AllowedMIMETypes {
		v.mimes[sniffer.NormalizeMIME(m)] = struct{}{}
	}
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		v.extensions[ext] = struct{}{}
	}
	return v
}

// Validate runs every check and returns on the first failure. The returned
// error is always a *Error.
func (v *Validator) Validate(req models.UploadRequest) (models.ValidationOutcome, error) {
	size := int64(len(req.Data))
	if req.DeclaredSize > 0 && req.DeclaredSize != size {
		return models.ValidationOutcome{}, fail(CheckSize, "declared size %d does not match received %d bytes", req.DeclaredSize, size)
	}
	if size < v.minBytes {
		return models.ValidationOutcome{}, fail(CheckSize, "file is %d bytes, minimum is %d", size, v.minBytes)
	}
	if size > v.maxBytes {
		return models.ValidationOutcome{}, fail(CheckSize, "file is %d bytes, maximum is %d", size, v.maxBytes)
	}

	declared := sniffer.NormalizeMIME(req.DeclaredMIME)
	if _, ok := v.mimes[declared]; !ok {
		return models.ValidationOutcome{}, fail(CheckMIMEType, "type %q is not allowed", req.DeclaredMIME)
	}

	if req.Filename != "" {
		ext := strings.ToLower(filepath.Ext(req.Filename))
		if _, ok := v.extensions[ext]; !ok {
			return models.ValidationOutcome{}, fail(CheckExtension, "extension %q is not allowed", ext)
		}
	}

	sniffed, err := sniffer.DetectHead(req.Data)
	if err != nil {
		return models.ValidationOutcome{}, fail(CheckSignature, "content does not match declared type %s", declared)
	}
	if sniffed.MIME != declared {
		return models.ValidationOutcome{}, fail(CheckSignature, "content is %s, declared %s", sniffed.MIME, declared)
	}

	// Checked after the signature so renamed content is still reported as
	// a signature mismatch.
	if req.Filename != "" {
		ext := strings.ToLower(filepath.Ext(req.Filename))
		if named := sniffer.MIMEForExtension(ext); named != declared {
			return models.ValidationOutcome{}, fail(CheckExtension, "extension %q does not match type %s", ext, declared)
		}
	}

	width, height, err := probeDimensions(req.Data, declared)
	if err != nil {
		return models.ValidationOutcome{}, fail(CheckDecode, "cannot read image header")
	}
	if width < v.minDim || height < v.minDim || width > v.maxDim || height > v.maxDim {
		return models.ValidationOutcome{}, fail(CheckDimensions, "%dx%d is outside %d..%d px", width, height, v.minDim, v.maxDim)
	}

	animated, err := isAnimated(req.Data, declared)
	if err != nil {
		return models.ValidationOutcome{}, fail(CheckDecode, "cannot read image container")
	}

	return models.ValidationOutcome{
		Passed:    true,
		Width:     width,
		Height:    height,
		MediaType: sniffed.MIME,
		Animated:  animated,
	}, nil
}

// probeDimensions reads only the image header. Extended WebP files carry
// the canvas size in VP8X, which also covers animations.
func probeDimensions(data []byte, mimeType string) (int, int, error) {
	if mimeType == "image/webp" {
		if w, h, ok := metadata.WebPCanvasSize(data); ok {
			return w, h, nil
		}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func isAnimated(data []byte, mimeType string) (bool, error) {
	switch mimeType {
	case "image/webp":
		return metadata.AnimatedWebP(data), nil
	case "image/gif":
		frames, err := metadata.FrameCount(data, mimeType)
		if err != nil {
			return false, err
		}
		return frames > 1, nil
	}
	return false, nil
}
