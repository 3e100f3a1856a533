package validator

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaingest/internal/config"
	"mediaingest/internal/models"
	"mediaingest/internal/testutil"
)

func testConfig() config.UploadConfig {
	return config.UploadConfig{
		MinBytes:          100,
		MaxBytes:          5 << 20,
		MinDimension:      10,
		MaxDimension:      8000,
		AllowedMIMETypes:  []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", "webp"},
		JPEGQuality:       85,
	}
}

func requireCheck(t *testing.T, err error, check string) *Error {
	t.Helper()
	require.Error(t, err)
	var verr *Error
	require.True(t, errors.As(err, &verr), "expected *validator.Error, got %T", err)
	assert.Equal(t, check, verr.Check)
	return verr
}

func TestValidateAcceptsSupportedImages(t *testing.T) {
	v := New(testConfig())

	cases := []struct {
		name     string
		data     []byte
		mime     string
		filename string
		width    int
		height   int
		animated bool
	}{
		{name: "jpeg", data: testutil.JPEG(64, 48, 90), mime: "image/jpeg", filename: "holiday.JPG", width: 64, height: 48},
		{name: "jpeg alias with params", data: testutil.JPEG(20, 30, 90), mime: "image/jpg; charset=binary", width: 20, height: 30},
		{name: "png", data: testutil.PNG(40, 12, true), mime: "image/png", filename: "logo.png", width: 40, height: 12},
		{name: "animated gif", data: testutil.AnimatedGIF(24, 24, 3), mime: "image/gif", filename: "wave.gif", width: 24, height: 24, animated: true},
		{name: "static gif", data: testutil.AnimatedGIF(30, 16, 1), mime: "image/gif", width: 30, height: 16},
		{name: "animated webp", data: testutil.AnimatedWebP(40, 30), mime: "image/webp", filename: "loop.webp", width: 40, height: 30, animated: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome, err := v.Validate(models.UploadRequest{
				Data:         tc.data,
				DeclaredMIME: tc.mime,
				DeclaredSize: int64(len(tc.data)),
				Filename:     tc.filename,
			})
			require.NoError(t, err)
			assert.True(t, outcome.Passed)
			assert.Empty(t, outcome.Reason)
			assert.Equal(t, tc.width, outcome.Width)
			assert.Equal(t, tc.height, outcome.Height)
			assert.Equal(t, tc.animated, outcome.Animated)
		})
	}
}

func TestValidateSignatureMismatch(t *testing.T) {
	v := New(testConfig())

	text := bytes.Repeat([]byte("this is definitely not a picture\n"), 10)
	_, err := v.Validate(models.UploadRequest{Data: text, DeclaredMIME: "image/jpeg", Filename: "cat.jpg"})
	requireCheck(t, err, CheckSignature)

	// A real PNG declared as JPEG fails regardless of which extension it carries.
	pngData := testutil.PNG(32, 32, false)
	for _, name := range []string{"", "a.jpg", "a.png", "a.gif"} {
		_, err := v.Validate(models.UploadRequest{Data: pngData, DeclaredMIME: "image/jpeg", Filename: name})
		verr := requireCheck(t, err, CheckSignature)
		assert.Contains(t, verr.Reason, "image/png")
	}
}

func TestValidateSize(t *testing.T) {
	v := New(testConfig())

	_, err := v.Validate(models.UploadRequest{Data: make([]byte, 6<<20), DeclaredMIME: "image/jpeg"})
	requireCheck(t, err, CheckSize)

	_, err = v.Validate(models.UploadRequest{Data: []byte{0xff, 0xd8, 0xff}, DeclaredMIME: "image/jpeg"})
	requireCheck(t, err, CheckSize)

	data := testutil.JPEG(32, 32, 90)
	_, err = v.Validate(models.UploadRequest{Data: data, DeclaredMIME: "image/jpeg", DeclaredSize: int64(len(data)) + 1})
	requireCheck(t, err, CheckSize)
}

func TestValidateMIMEAndExtension(t *testing.T) {
	v := New(testConfig())
	data := testutil.JPEG(32, 32, 90)

	_, err := v.Validate(models.UploadRequest{Data: data, DeclaredMIME: "image/svg+xml"})
	requireCheck(t, err, CheckMIMEType)

	_, err = v.Validate(models.UploadRequest{Data: data, DeclaredMIME: ""})
	requireCheck(t, err, CheckMIMEType)

	_, err = v.Validate(models.UploadRequest{Data: data, DeclaredMIME: "image/jpeg", Filename: "payload.exe"})
	requireCheck(t, err, CheckExtension)

	_, err = v.Validate(models.UploadRequest{Data: data, DeclaredMIME: "image/jpeg", Filename: "noextension"})
	requireCheck(t, err, CheckExtension)
}

func TestValidateExtensionMustMatchType(t *testing.T) {
	v := New(testConfig())
	jpegData := testutil.JPEG(32, 32, 90)

	for _, name := range []string{"a.png", "a.gif", "a.webp"} {
		_, err := v.Validate(models.UploadRequest{Data: jpegData, DeclaredMIME: "image/jpeg", Filename: name})
		verr := requireCheck(t, err, CheckExtension)
		assert.Contains(t, verr.Reason, "does not match")
	}

	for _, name := range []string{"a.jpg", "a.JPEG"} {
		_, err := v.Validate(models.UploadRequest{Data: jpegData, DeclaredMIME: "image/jpeg", Filename: name})
		require.NoError(t, err, name)
	}
}

func TestValidateDimensions(t *testing.T) {
	v := New(testConfig())

	_, err := v.Validate(models.UploadRequest{Data: testutil.JPEG(8, 8, 90), DeclaredMIME: "image/jpeg"})
	requireCheck(t, err, CheckDimensions)

	_, err = v.Validate(models.UploadRequest{Data: testutil.JPEG(8001, 10, 50), DeclaredMIME: "image/jpeg"})
	requireCheck(t, err, CheckDimensions)
}

func TestValidateUnreadableHeader(t *testing.T) {
	v := New(testConfig())

	data := append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x00}, make([]byte, 200)...)
	_, err := v.Validate(models.UploadRequest{Data: data, DeclaredMIME: "image/jpeg"})
	requireCheck(t, err, CheckDecode)
}
