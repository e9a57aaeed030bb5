package snapshot

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFrame builds a frame with a simple gradient so JPEG encoding has
// something non-trivial to chew on.
func testFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7 % 256), G: uint8(y * 5 % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestCompositeNilFrameFails(t *testing.T) {
	_, err := Composite(nil, nil, DefaultQuality)
	require.Error(t, err)
}

func TestCompositePlainFrameWithoutOverlay(t *testing.T) {
	frame := testFrame(320, 240)
	out, err := Composite(frame, nil, DefaultQuality)
	require.NoError(t, err)

	decoded := decodeJPEG(t, out)
	assert.Equal(t, 320, decoded.Bounds().Dx())
	assert.Equal(t, 240, decoded.Bounds().Dy())
}

func TestCompositeEmptyOverlayMatchesNoOverlay(t *testing.T) {
	frame := testFrame(320, 240)
	transparent := image.NewRGBA(image.Rect(0, 0, 160, 120))

	plain, err := Composite(frame, nil, DefaultQuality)
	require.NoError(t, err)
	withEmpty, err := Composite(frame, transparent, DefaultQuality)
	require.NoError(t, err)

	assert.Equal(t, plain, withEmpty)
}

func TestCompositeScalesOverlayToNativeResolution(t *testing.T) {
	// 640x480 native frame, 320x240 display overlay with an opaque red
	// square in its top-left quadrant. After compositing, the red area must
	// cover the frame's top-left quadrant at native scale.
	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			frame.Set(x, y, color.RGBA{B: 255, A: 255})
		}
	}

	ov := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			ov.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	out, err := Composite(frame, ov, DefaultQuality)
	require.NoError(t, err)
	decoded := decodeJPEG(t, out)

	r, _, b, _ := decoded.At(100, 100).RGBA()
	assert.Greater(t, r, b, "top-left quadrant should be red after scaling")

	r, _, b, _ = decoded.At(500, 400).RGBA()
	assert.Greater(t, b, r, "bottom-right quadrant stays the frame's blue")
}

func TestCompressFitsBudgetAndCapsDimensions(t *testing.T) {
	img := testFrame(2000, 1000)

	encoded, err := Compress(img, 200, DefaultMaxDimension)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(encoded), 200*1024)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	decoded := decodeJPEG(t, raw)

	assert.LessOrEqual(t, decoded.Bounds().Dx(), DefaultMaxDimension)
	assert.LessOrEqual(t, decoded.Bounds().Dy(), DefaultMaxDimension)
	// Aspect ratio of 2:1 survives the resize.
	assert.InDelta(t, 2.0, float64(decoded.Bounds().Dx())/float64(decoded.Bounds().Dy()), 0.05)
}

func TestCompressSmallImagePassesThrough(t *testing.T) {
	img := testFrame(100, 80)

	encoded, err := Compress(img, DefaultMaxSizeKB, DefaultMaxDimension)
	require.NoError(t, err)

	raw, err := DecodeBase64Image(encoded)
	require.NoError(t, err)
	decoded := decodeJPEG(t, raw)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 80, decoded.Bounds().Dy())
}

func TestDecodeBase64ImageRejectsGarbage(t *testing.T) {
	_, err := DecodeBase64Image("not-base64!!!")
	require.Error(t, err)
}
