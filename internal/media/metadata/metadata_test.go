package metadata

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaingest/internal/testutil"
)

func kinds(findings []Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Kind)
	}
	return out
}

func TestScanJPEGClean(t *testing.T) {
	findings, err := Scan(testutil.JPEG(64, 48, 90), "image/jpeg")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScanJPEGFindsMetadata(t *testing.T) {
	data := testutil.JPEG(64, 48, 90)
	data = testutil.WithEXIF(data, 1)
	data = testutil.WithXMP(data)
	data = testutil.WithJPEGSegment(data, 0xfe, []byte("shot on my phone"))
	data = testutil.WithJPEGSegment(data, 0xe2, []byte("ICC_PROFILE\x00\x01\x01"))

	findings, err := Scan(data, "image/jpeg")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"exif", "xmp", "comment", "icc"}, kinds(findings))
}

func TestStripJPEG(t *testing.T) {
	clean := testutil.JPEG(64, 48, 90)
	dirty := testutil.WithXMP(testutil.WithEXIF(clean, 1))
	dirty = append(dirty, []byte("trailing-garbage")...)

	stripped, err := StripJPEG(dirty)
	require.NoError(t, err)

	findings, err := Scan(stripped, "image/jpeg")
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Equal(t, clean, stripped)
	assert.False(t, bytes.Contains(stripped, []byte(testutil.FixtureSerial)))
}

func TestScanJPEGMalformed(t *testing.T) {
	_, err := Scan([]byte("not a jpeg at all"), "image/jpeg")
	assert.ErrorIs(t, err, ErrMalformed)

	truncated := testutil.WithEXIF(testutil.JPEG(16, 16, 90), 1)[:30]
	_, err = Scan(truncated, "image/jpeg")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestJPEGOrientation(t *testing.T) {
	base := testutil.JPEG(32, 16, 90)
	assert.Equal(t, 1, JPEGOrientation(base))
	for _, o := range []int{1, 3, 6, 8} {
		assert.Equal(t, o, JPEGOrientation(testutil.WithEXIF(base, o)))
	}
}

func TestScanPNG(t *testing.T) {
	findings, err := Scan(testutil.PNG(20, 20, false), "image/png")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestWalkGIF(t *testing.T) {
	data := testutil.AnimatedGIF(24, 24, 3)

	frames, err := FrameCount(data, "image/gif")
	require.NoError(t, err)
	assert.Equal(t, 3, frames)

	findings, err := Scan(data, "image/gif")
	require.NoError(t, err)
	assert.Empty(t, findings, "loop extension is not metadata")

	commented := testutil.WithGIFComment(data, "taken at 52N 13E")
	findings, err = Scan(commented, "image/gif")
	require.NoError(t, err)
	assert.Equal(t, []string{"comment"}, kinds(findings))
}

func TestWebPContainer(t *testing.T) {
	data := testutil.AnimatedWebP(40, 30)

	assert.True(t, AnimatedWebP(data))
	w, h, ok := WebPCanvasSize(data)
	require.True(t, ok)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)

	frames, err := FrameCount(data, "image/webp")
	require.NoError(t, err)
	assert.Equal(t, 2, frames)

	findings, err := Scan(data, "image/webp")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"exif", "xmp"}, kinds(findings))

	stripped, err := StripWebP(data)
	require.NoError(t, err)
	findings, err = Scan(stripped, "image/webp")
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.True(t, AnimatedWebP(stripped))
	assert.False(t, bytes.Contains(stripped, []byte(testutil.FixtureSerial)))

	frames, err = FrameCount(stripped, "image/webp")
	require.NoError(t, err)
	assert.Equal(t, 2, frames)
}
