package metadata

import (
	"bytes"
	"encoding/binary"
)

const tagOrientation = 0x0112

// JPEGOrientation reads the EXIF orientation tag (1-8) of a JPEG. It returns 1
// when the image carries no EXIF block or the tag is absent or unreadable.
func JPEGOrientation(data []byte) int {
	segments, err := walkJPEG(data)
	if err != nil {
		return 1
	}
	for _, seg := range segments {
		if seg.marker != markerAPP1 || !bytes.HasPrefix(seg.body, []byte("Exif\x00\x00")) {
			continue
		}
		if o := tiffOrientation(seg.body[6:]); o >= 1 && o <= 8 {
			return o
		}
		return 1
	}
	return 1
}

func tiffOrientation(tiff []byte) int {
	if len(tiff) < 8 {
		return 0
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return 0
	}
	ifd := int(order.Uint32(tiff[4:8]))
	if ifd+2 > len(tiff) {
		return 0
	}
	count := int(order.Uint16(tiff[ifd : ifd+2]))
	for n := 0; n < count; n++ {
		entry := ifd + 2 + n*12
		if entry+12 > len(tiff) {
			return 0
		}
		if order.Uint16(tiff[entry:entry+2]) == tagOrientation {
			return int(order.Uint16(tiff[entry+8 : entry+10]))
		}
	}
	return 0
}
