// Package normalizer strips identifying metadata from uploaded images and
// re-encodes them into a canonical form.
package normalizer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"mediaingest/internal/media/metadata"
	"mediaingest/internal/media/sniffer"
	"mediaingest/internal/models"
)

const (
	CanonicalMIME = "image/jpeg"

	DefaultQuality   = 85
	DefaultMaxFrames = 300
)

var (
	// ErrMetadataRetained means the output still carried a metadata block
	// after normalization. The output must not be stored.
	ErrMetadataRetained = errors.New("normalized image retains metadata")
	ErrUnsupported      = errors.New("unsupported image type")
	ErrTooManyFrames    = errors.New("animation has too many frames")
)

// DecodeError reports input that passed header validation but could not be
// decoded. It is a client error.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type Normalizer struct {
	quality   int
	maxFrames int
}

func New(quality, maxFrames int) *Normalizer {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	return &Normalizer{quality: quality, maxFrames: maxFrames}
}

// Normalize returns a metadata-free copy of data. Animated GIF and WebP keep
// their format and frames; everything else becomes a JPEG at the configured
// quality. The output is verified with metadata.Scan before it is returned.
func (n *Normalizer) Normalize(data []byte, mimeType string) (models.ProcessedImage, error) {
	var (
		out models.ProcessedImage
		err error
	)

	switch mimeType {
	case "image/gif":
		frames, ferr := metadata.FrameCount(data, mimeType)
		if ferr != nil {
			return models.ProcessedImage{}, &DecodeError{Err: ferr}
		}
		if frames > 1 {
			out, err = n.animatedGIF(data)
		} else {
			out, err = n.static(data, mimeType)
		}
	case "image/webp":
		if metadata.AnimatedWebP(data) {
			out, err = n.animatedWebP(data)
		} else {
			out, err = n.static(data, mimeType)
		}
	case "image/jpeg", "image/png":
		out, err = n.static(data, mimeType)
	default:
		return models.ProcessedImage{}, fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
	}
	if err != nil {
		return models.ProcessedImage{}, err
	}

	if err := verifyClean(out); err != nil {
		return models.ProcessedImage{}, err
	}
	return out, nil
}

func verifyClean(out models.ProcessedImage) error {
	findings, err := metadata.Scan(out.Data, out.MIME)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMetadataRetained, err)
	}
	if len(findings) > 0 {
		return fmt.Errorf("%w: %v", ErrMetadataRetained, findings)
	}
	return nil
}

func (n *Normalizer) static(data []byte, mimeType string) (models.ProcessedImage, error) {
	source := data
	orientation := 1
	clean := false
	if mimeType == "image/jpeg" {
		findings, err := metadata.Scan(data, mimeType)
		clean = err == nil && len(findings) == 0
		orientation = metadata.JPEGOrientation(data)
		stripped, err := metadata.StripJPEG(data)
		if err != nil {
			return models.ProcessedImage{}, &DecodeError{Err: err}
		}
		source = stripped
	}

	img, err := imaging.Decode(bytes.NewReader(source))
	if err != nil {
		return models.ProcessedImage{}, &DecodeError{Err: err}
	}
	img = applyOrientation(img, orientation)

	if mimeType != "image/jpeg" {
		// JPEG has no alpha channel; composite onto white instead of letting
		// transparent pixels turn black.
		bounds := img.Bounds()
		canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
		img = imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(n.quality)); err != nil {
		return models.ProcessedImage{}, fmt.Errorf("encode jpeg: %w", err)
	}

	encoded := buf.Bytes()
	// Input that arrived without any metadata is already canonical; keep it
	// when smaller so normalizing normalized output never grows it. Anything
	// that carried metadata is always re-encoded.
	if clean && orientation == 1 && len(data) <= len(encoded) {
		encoded = data
	}

	bounds := img.Bounds()
	return models.ProcessedImage{
		Data:      encoded,
		MIME:      CanonicalMIME,
		Extension: sniffer.ExtensionFor(CanonicalMIME),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Frames:    1,
	}, nil
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

// animatedGIF re-encodes every frame with its delay, disposal and the loop
// count. Comment, XMP and other application extensions are not carried over.
func (n *Normalizer) animatedGIF(data []byte) (models.ProcessedImage, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return models.ProcessedImage{}, &DecodeError{Err: err}
	}
	if len(g.Image) > n.maxFrames {
		return models.ProcessedImage{}, fmt.Errorf("%w: %d > %d", ErrTooManyFrames, len(g.Image), n.maxFrames)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return models.ProcessedImage{}, fmt.Errorf("encode gif: %w", err)
	}

	encoded := buf.Bytes()
	if len(encoded) > len(data) {
		if findings, err := metadata.Scan(data, "image/gif"); err == nil && len(findings) == 0 {
			encoded = data
		}
	}

	width, height := g.Config.Width, g.Config.Height
	if width == 0 || height == 0 {
		b := g.Image[0].Bounds()
		width, height = b.Dx(), b.Dy()
	}
	return models.ProcessedImage{
		Data:      encoded,
		MIME:      "image/gif",
		Extension: sniffer.ExtensionFor("image/gif"),
		Width:     width,
		Height:    height,
		Frames:    len(g.Image),
	}, nil
}

// animatedWebP re-muxes the RIFF container; frame bitstreams are copied as is.
func (n *Normalizer) animatedWebP(data []byte) (models.ProcessedImage, error) {
	frames, err := metadata.FrameCount(data, "image/webp")
	if err != nil {
		return models.ProcessedImage{}, &DecodeError{Err: err}
	}
	if frames > n.maxFrames {
		return models.ProcessedImage{}, fmt.Errorf("%w: %d > %d", ErrTooManyFrames, frames, n.maxFrames)
	}
	stripped, err := metadata.StripWebP(data)
	if err != nil {
		return models.ProcessedImage{}, &DecodeError{Err: err}
	}
	width, height, ok := metadata.WebPCanvasSize(stripped)
	if !ok {
		return models.ProcessedImage{}, &DecodeError{Err: errors.New("missing VP8X canvas")}
	}
	return models.ProcessedImage{
		Data:      stripped,
		MIME:      "image/webp",
		Extension: sniffer.ExtensionFor("image/webp"),
		Width:     width,
		Height:    height,
		Frames:    frames,
	}, nil
}
