// Package testutil builds image fixtures for tests: encoded images with
// injected EXIF, XMP and comment blocks.
package testutil

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand"
)

// Well-known values planted in EXIF fixtures so tests can assert they vanish.
const (
	FixtureSerial   = "SN-CAMERA-0042-XYZ"
	FixtureDateTime = "2023:07:14 09:26:53"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

// JPEG encodes a smooth gradient.
func JPEG(w, h, quality int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// NoiseJPEG encodes deterministic noise, which compresses poorly and yields
// large files.
func NoiseJPEG(w, h, quality int) []byte {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNG encodes a gradient; with alpha the left half is fully transparent.
func PNG(w, h int, alpha bool) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := uint8(255)
			if alpha && x < w/2 {
				a = 0
			}
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: 64, B: uint8(y * 255 / h), A: a})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// AnimatedGIF encodes frames of alternating colors with 10cs delays.
func AnimatedGIF(w, h, frames int) []byte {
	g := &gif.GIF{LoopCount: 0}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9)
		c := uint8((i * 37) % len(palette.Plan9))
		for p := range frame.Pix {
			frame.Pix[p] = c
		}
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WithGIFComment inserts a comment extension before the GIF trailer.
func WithGIFComment(data []byte, comment string) []byte {
	block := []byte{0x21, 0xfe, byte(len(comment))}
	block = append(block, comment...)
	block = append(block, 0x00)

	out := append([]byte(nil), data[:len(data)-1]...)
	out = append(out, block...)
	return append(out, 0x3b)
}

// WithJPEGSegment inserts a marker segment right after SOI.
func WithJPEGSegment(data []byte, marker byte, payload []byte) []byte {
	seg := []byte{0xff, marker, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	seg = append(seg, payload...)

	out := make([]byte, 0, len(data)+len(seg))
	out = append(out, data[:2]...)
	out = append(out, seg...)
	return append(out, data[2:]...)
}

// WithEXIF inserts an APP1 Exif block carrying GPS coordinates, a body serial
// number, capture timestamps and the given orientation.
func WithEXIF(data []byte, orientation int) []byte {
	payload := append([]byte("Exif\x00\x00"), EXIFBlock(orientation)...)
	return WithJPEGSegment(data, 0xe1, payload)
}

// WithXMP inserts an APP1 XMP packet.
func WithXMP(data []byte) []byte {
	payload := append([]byte("http://ns.adobe.com/xap/1.0/\x00"),
		[]byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"><exif:GPSLatitude>52,31.2N</exif:GPSLatitude></x:xmpmeta>`)...)
	return WithJPEGSegment(data, 0xe1, payload)
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

const (
	tiffASCII    = 2
	tiffShort    = 3
	tiffLong     = 4
	tiffRational = 5
)

func asciiEntry(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: tiffASCII, count: uint32(len(b)), data: b}
}

func longEntry(tag uint16, v uint32) ifdEntry {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return ifdEntry{tag: tag, typ: tiffLong, count: 1, data: b}
}

func ifdSize(entries []ifdEntry) int {
	n := 2 + 12*len(entries) + 4
	for _, e := range entries {
		if len(e.data) > 4 {
			n += len(e.data) + len(e.data)%2
		}
	}
	return n
}

func encodeIFD(start int, entries []ifdEntry) []byte {
	head := make([]byte, 2+12*len(entries)+4)
	binary.BigEndian.PutUint16(head, uint16(len(entries)))
	var extra []byte
	for i, e := range entries {
		off := 2 + 12*i
		binary.BigEndian.PutUint16(head[off:], e.tag)
		binary.BigEndian.PutUint16(head[off+2:], e.typ)
		binary.BigEndian.PutUint32(head[off+4:], e.count)
		if len(e.data) <= 4 {
			copy(head[off+8:off+12], e.data)
			continue
		}
		binary.BigEndian.PutUint32(head[off+8:], uint32(start+len(head)+len(extra)))
		extra = append(extra, e.data...)
		if len(e.data)%2 == 1 {
			extra = append(extra, 0)
		}
	}
	return append(head, extra...)
}

// EXIFBlock builds a big-endian TIFF structure with IFD0, Exif and GPS IFDs.
func EXIFBlock(orientation int) []byte {
	orient := make([]byte, 2)
	binary.BigEndian.PutUint16(orient, uint16(orientation))

	rationals := make([]byte, 24)
	for i, v := range []uint32{52, 31, 12} {
		binary.BigEndian.PutUint32(rationals[i*8:], v)
		binary.BigEndian.PutUint32(rationals[i*8+4:], 1)
	}

	exifIFD := []ifdEntry{
		asciiEntry(0x9003, FixtureDateTime),
		asciiEntry(0xa431, FixtureSerial),
	}
	gpsIFD := []ifdEntry{
		asciiEntry(0x0001, "N"),
		{tag: 0x0002, typ: tiffRational, count: 3, data: rationals},
	}
	ifd0 := []ifdEntry{
		{tag: 0x0112, typ: tiffShort, count: 1, data: orient},
		asciiEntry(0x0132, FixtureDateTime),
		longEntry(0x8769, 0),
		longEntry(0x8825, 0),
	}

	ifd0Start := 8
	exifStart := ifd0Start + ifdSize(ifd0)
	gpsStart := exifStart + ifdSize(exifIFD)
	ifd0[2] = longEntry(0x8769, uint32(exifStart))
	ifd0[3] = longEntry(0x8825, uint32(gpsStart))

	tiff := []byte{'M', 'M', 0, 42, 0, 0, 0, 8}
	tiff = append(tiff, encodeIFD(ifd0Start, ifd0)...)
	tiff = append(tiff, encodeIFD(exifStart, exifIFD)...)
	tiff = append(tiff, encodeIFD(gpsStart, gpsIFD)...)
	return tiff
}

// AnimatedWebP assembles an extended WebP container with an animation header,
// two frames and EXIF/XMP chunks. Frame payloads are opaque filler; the result
// is only meaningful to container-level code.
func AnimatedWebP(w, h int) []byte {
	chunk := func(fourCC string, body []byte) []byte {
		out := []byte(fourCC)
		size := make([]byte, 4)
		binary.LittleEndian.PutUint32(size, uint32(len(body)))
		out = append(out, size...)
		out = append(out, body...)
		if len(body)%2 == 1 {
			out = append(out, 0)
		}
		return out
	}
	put24 := func(b []byte, v int) {
		b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
	}

	vp8x := make([]byte, 10)
	vp8x[0] = 0x02 | 0x04 | 0x08 // animation, XMP, EXIF
	put24(vp8x[4:], w-1)
	put24(vp8x[7:], h-1)

	anim := []byte{0xff, 0xff, 0xff, 0xff, 0, 0}

	frame := func(duration int) []byte {
		hdr := make([]byte, 16)
		put24(hdr[6:], w-1)
		put24(hdr[9:], h-1)
		put24(hdr[12:], duration)
		return append(hdr, chunk("VP8 ", bytes.Repeat([]byte{0x9d}, 31))...)
	}

	body := []byte("WEBP")
	body = append(body, chunk("VP8X", vp8x)...)
	body = append(body, chunk("ANIM", anim)...)
	body = append(body, chunk("ANMF", frame(100))...)
	body = append(body, chunk("ANMF", frame(120))...)
	body = append(body, chunk("EXIF", EXIFBlock(1))...)
	body = append(body, chunk("XMP ", []byte("<x:xmpmeta>"+FixtureSerial+"</x:xmpmeta>"))...)

	size := make([]byte, 4)
	binary.LittleEndian.PutUint32(size, uint32(len(body)))
	out := append([]byte("RIFF"), size...)
	return append(out, body...)
}
