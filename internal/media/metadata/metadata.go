// Package metadata walks image containers (JPEG segments, PNG chunks, GIF
// blocks, WebP RIFF chunks) to find and remove blocks that can carry EXIF, XMP,
// ICC, IPTC or free-form comments.
package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed image container")

// Finding is one metadata-bearing block found in an image.
type Finding struct {
	Kind   string
	Offset int
}

func (f Finding) String() string {
	return fmt.Sprintf("%s@%d", f.Kind, f.Offset)
}

// Scan reports every metadata container in data. mime selects the container
// format; unknown formats return ErrMalformed.
func Scan(data []byte, mime string) ([]Finding, error) {
	switch mime {
	case "image/jpeg":
		return scanJPEG(data)
	case "image/png":
		return scanPNG(data)
	case "image/gif":
		findings, _, err := walkGIF(data)
		return findings, err
	case "image/webp":
		findings, _, err := walkWebP(data)
		return findings, err
	}
	return nil, fmt.Errorf("%w: unsupported type %s", ErrMalformed, mime)
}

// FrameCount returns the number of frames in a GIF or WebP, or 1 for other
// formats.
func FrameCount(data []byte, mime string) (int, error) {
	switch mime {
	case "image/gif":
		_, frames, err := walkGIF(data)
		return frames, err
	case "image/webp":
		_, info, err := walkWebP(data)
		if err != nil {
			return 0, err
		}
		if info.frames == 0 {
			return 1, nil
		}
		return info.frames, nil
	}
	return 1, nil
}

// --- JPEG ---

const (
	markerSOI   = 0xd8
	markerEOI   = 0xd9
	markerSOS   = 0xda
	markerAPP0  = 0xe0
	markerAPP1  = 0xe1
	markerAPP2  = 0xe2
	markerAPP13 = 0xed
	markerAPP14 = 0xee
	markerAPP15 = 0xef
	markerCOM   = 0xfe
)

type jpegSegment struct {
	marker byte
	start  int // offset of the 0xFF byte
	end    int // offset just past the segment (and its entropy data for SOS)
	body   []byte
}

func walkJPEG(data []byte) ([]jpegSegment, error) {
	if len(data) < 4 || data[0] != 0xff || data[1] != markerSOI {
		return nil, fmt.Errorf("%w: missing SOI", ErrMalformed)
	}

	var segments []jpegSegment
	i := 2
	for i < len(data) {
		if data[i] != 0xff {
			return nil, fmt.Errorf("%w: expected marker at %d", ErrMalformed, i)
		}
		start := i
		for i < len(data) && data[i] == 0xff {
			i++
		}
		if i >= len(data) {
			return nil, fmt.Errorf("%w: truncated marker", ErrMalformed)
		}
		marker := data[i]
		i++

		if marker == markerEOI {
			segments = append(segments, jpegSegment{marker: marker, start: start, end: i})
			return segments, nil
		}
		if (marker >= 0xd0 && marker <= 0xd7) || marker == 0x01 {
			segments = append(segments, jpegSegment{marker: marker, start: start, end: i})
			continue
		}

		if i+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated segment length", ErrMalformed)
		}
		length := int(binary.BigEndian.Uint16(data[i : i+2]))
		if length < 2 || i+length > len(data) {
			return nil, fmt.Errorf("%w: segment length %d out of range", ErrMalformed, length)
		}
		body := data[i+2 : i+length]
		i += length

		if marker == markerSOS {
			i = skipEntropyData(data, i)
		}
		segments = append(segments, jpegSegment{marker: marker, start: start, end: i, body: body})
	}

	// Missing EOI: tolerate, many encoders in the wild truncate.
	return segments, nil
}

// skipEntropyData advances past entropy-coded data to the next real marker.
func skipEntropyData(data []byte, i int) int {
	for i < len(data)-1 {
		if data[i] == 0xff {
			next := data[i+1]
			if next != 0x00 && !(next >= 0xd0 && next <= 0xd7) && next != 0xff {
				return i
			}
		}
		i++
	}
	return len(data)
}

func jpegSegmentKind(seg jpegSegment) string {
	switch {
	case seg.marker == markerCOM:
		return "comment"
	case seg.marker == markerAPP1 && bytes.HasPrefix(seg.body, []byte("Exif\x00")):
		return "exif"
	case seg.marker == markerAPP1 && bytes.HasPrefix(seg.body, []byte("http://ns.adobe.com/xap/1.0/")):
		return "xmp"
	case seg.marker == markerAPP2 && bytes.HasPrefix(seg.body, []byte("ICC_PROFILE\x00")):
		return "icc"
	case seg.marker == markerAPP13:
		return "iptc"
	case seg.marker == markerAPP0 || seg.marker == markerAPP14:
		return ""
	case seg.marker >= markerAPP1 && seg.marker <= markerAPP15:
		return fmt.Sprintf("app%d", seg.marker-markerAPP0)
	}
	return ""
}

func scanJPEG(data []byte) ([]Finding, error) {
	segments, err := walkJPEG(data)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, seg := range segments {
		if kind := jpegSegmentKind(seg); kind != "" {
			findings = append(findings, Finding{Kind: kind, Offset: seg.start})
		}
	}
	return findings, nil
}

// StripJPEG removes every APPn (except JFIF APP0 and Adobe APP14) and COM
// segment. Image data is copied verbatim.
func StripJPEG(data []byte) ([]byte, error) {
	segments, err := walkJPEG(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data))
	out = append(out, data[:2]...)
	for _, seg := range segments {
		if jpegSegmentKind(seg) != "" {
			continue
		}
		out = append(out, data[seg.start:seg.end]...)
	}
	// Anything after EOI is not copied.
	return out, nil
}

// --- PNG ---

var pngMetadataChunks = map[string]string{
	"eXIf": "exif",
	"tEXt": "text",
	"iTXt": "text",
	"zTXt": "text",
	"tIME": "timestamp",
	"iCCP": "icc",
}

func scanPNG(data []byte) ([]Finding, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")) {
		return nil, fmt.Errorf("%w: missing png signature", ErrMalformed)
	}
	var findings []Finding
	i := 8
	for i+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[i : i+4]))
		chunkType := string(data[i+4 : i+8])
		end := i + 12 + length
		if end > len(data) {
			return nil, fmt.Errorf("%w: chunk %q overruns buffer", ErrMalformed, chunkType)
		}
		if kind, ok := pngMetadataChunks[chunkType]; ok {
			findings = append(findings, Finding{Kind: kind, Offset: i})
		}
		if chunkType == "IEND" {
			break
		}
		i = end
	}
	return findings, nil
}

// --- GIF ---

func gifColorTableSize(packed byte) int {
	if packed&0x80 == 0 {
		return 0
	}
	return 3 * (1 << ((packed & 0x07) + 1))
}

// skipSubBlocks returns the offset just past a sub-block chain terminator.
func skipSubBlocks(data []byte, i int) (int, error) {
	for {
		if i >= len(data) {
			return 0, fmt.Errorf("%w: truncated gif sub-block", ErrMalformed)
		}
		size := int(data[i])
		i++
		if size == 0 {
			return i, nil
		}
		i += size
	}
}

func walkGIF(data []byte) ([]Finding, int, error) {
	if len(data) < 13 || (!bytes.HasPrefix(data, []byte("GIF87a")) && !bytes.HasPrefix(data, []byte("GIF89a"))) {
		return nil, 0, fmt.Errorf("%w: missing gif header", ErrMalformed)
	}
	i := 13 + gifColorTableSize(data[10])

	var findings []Finding
	frames := 0
	for i < len(data) {
		switch data[i] {
		case 0x3b:
			return findings, frames, nil
		case 0x2c:
			if i+10 > len(data) {
				return nil, 0, fmt.Errorf("%w: truncated image descriptor", ErrMalformed)
			}
			frames++
			packed := data[i+9]
			i += 10 + gifColorTableSize(packed)
			i++ // LZW minimum code size
			next, err := skipSubBlocks(data, i)
			if err != nil {
				return nil, 0, err
			}
			i = next
		case 0x21:
			if i+2 > len(data) {
				return nil, 0, fmt.Errorf("%w: truncated extension", ErrMalformed)
			}
			start := i
			label := data[i+1]
			i += 2
			switch label {
			case 0xfe:
				findings = append(findings, Finding{Kind: "comment", Offset: start})
			case 0x01:
				findings = append(findings, Finding{Kind: "plaintext", Offset: start})
			case 0xff:
				if i+12 <= len(data) && data[i] == 11 {
					appID := string(data[i+1 : i+12])
					switch appID {
					case "NETSCAPE2.0", "ANIMEXTS1.0":
					case "XMP DataXMP":
						findings = append(findings, Finding{Kind: "xmp", Offset: start})
					default:
						findings = append(findings, Finding{Kind: "application", Offset: start})
					}
				}
			}
			next, err := skipSubBlocks(data, i)
			if err != nil {
				return nil, 0, err
			}
			i = next
		default:
			return nil, 0, fmt.Errorf("%w: unexpected gif block 0x%02x at %d", ErrMalformed, data[i], i)
		}
	}
	return findings, frames, nil
}

// --- WebP ---

const (
	vp8xAnimationBit = 1 << 1
	vp8xXMPBit       = 1 << 2
	vp8xEXIFBit      = 1 << 3
	vp8xICCBit       = 1 << 5
)

type webpInfo struct {
	animated bool
	frames   int
}

type riffChunk struct {
	fourCC string
	start  int
	end    int
	body   []byte
}

func walkRIFF(data []byte) ([]riffChunk, error) {
	if len(data) < 12 || !bytes.Equal(data[:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WEBP")) {
		return nil, fmt.Errorf("%w: missing riff/webp header", ErrMalformed)
	}
	var chunks []riffChunk
	i := 12
	for i+8 <= len(data) {
		fourCC := string(data[i : i+4])
		size := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		end := i + 8 + size + size&1
		if i+8+size > len(data) {
			return nil, fmt.Errorf("%w: chunk %q overruns buffer", ErrMalformed, fourCC)
		}
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, riffChunk{fourCC: fourCC, start: i, end: end, body: data[i+8 : i+8+size]})
		i = end
	}
	return chunks, nil
}

var webpMetadataChunks = map[string]string{
	"EXIF": "exif",
	"XMP ": "xmp",
	"ICCP": "icc",
}

func walkWebP(data []byte) ([]Finding, webpInfo, error) {
	chunks, err := walkRIFF(data)
	if err != nil {
		return nil, webpInfo{}, err
	}
	var (
		findings []Finding
		info     webpInfo
	)
	for _, c := range chunks {
		switch c.fourCC {
		case "VP8X":
			if len(c.body) > 0 && c.body[0]&vp8xAnimationBit != 0 {
				info.animated = true
			}
		case "ANMF":
			info.frames++
		}
		if kind, ok := webpMetadataChunks[c.fourCC]; ok {
			findings = append(findings, Finding{Kind: kind, Offset: c.start})
		}
	}
	return findings, info, nil
}

// AnimatedWebP reports whether the VP8X header declares an animation.
func AnimatedWebP(data []byte) bool {
	_, info, err := walkWebP(data)
	return err == nil && info.animated
}

// StripWebP rewrites the RIFF container keeping only image-bearing chunks and
// clearing the VP8X metadata flags.
func StripWebP(data []byte) ([]byte, error) {
	chunks, err := walkRIFF(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 12, len(data))
	copy(out, data[:12])
	for _, c := range chunks {
		switch c.fourCC {
		case "VP8X":
			chunk := append([]byte(nil), data[c.start:c.end]...)
			if len(chunk) > 8 {
				chunk[8] &^= vp8xXMPBit | vp8xEXIFBit | vp8xICCBit
			}
			out = append(out, chunk...)
		case "VP8 ", "VP8L", "ALPH", "ANIM", "ANMF":
			out = append(out, data[c.start:c.end]...)
		}
	}
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out, nil
}

// WebPCanvasSize returns the VP8X canvas dimensions of an extended WebP.
func WebPCanvasSize(data []byte) (width, height int, ok bool) {
	chunks, err := walkRIFF(data)
	if err != nil {
		return 0, 0, false
	}
	for _, c := range chunks {
		if c.fourCC != "VP8X" || len(c.body) < 10 {
			continue
		}
		w := int(c.body[4]) | int(c.body[5])<<8 | int(c.body[6])<<16
		h := int(c.body[7]) | int(c.body[8])<<8 | int(c.body[9])<<16
		return w + 1, h + 1, true
	}
	return 0, 0, false
}
