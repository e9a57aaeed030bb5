// Package snapshot flattens a captured video frame with its detection
// overlay into one raster image and compresses captures to fit the document
// store's size budget.
package snapshot

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/disintegration/imaging"

	"github.com/teascan/teascan-go/internal/errors"
)

// DefaultQuality is the JPEG quality used for composited captures.
const DefaultQuality = 95

// Composite merges the raw frame and the rendered overlay into a single
// JPEG at the frame's native resolution. The overlay, which is sized to the
// displayed dimensions, is scaled by the native-to-displayed ratio so boxes
// align pixel for pixel with the underlying frame. A nil overlay yields the
// plain frame.
func Composite(frame, overlay image.Image, quality int) ([]byte, error) {
	if frame == nil {
		return nil, errors.Newf("composite: nil frame").
			Component("snapshot").
			Category(errors.CategoryImageProcessing).
			Build()
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	native := frame.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, native.Dx(), native.Dy()))
	draw.Draw(canvas, canvas.Bounds(), frame, native.Min, draw.Src)

	if overlay != nil {
		ob := overlay.Bounds()
		if ob.Dx() > 0 && ob.Dy() > 0 {
			scaled := overlay
			if ob.Dx() != native.Dx() || ob.Dy() != native.Dy() {
				scaled = imaging.Resize(overlay, native.Dx(), native.Dy(), imaging.Lanczos)
			}
			draw.Draw(canvas, canvas.Bounds(), scaled, scaled.Bounds().Min, draw.Over)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.New(err).
			Component("snapshot").
			Category(errors.CategoryImageProcessing).
			Build()
	}

	return buf.Bytes(), nil
}

// DecodeJPEG decodes JPEG bytes back into an image, typically to feed a
// composited capture into Compress.
func DecodeJPEG(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).
			Component("snapshot").
			Category(errors.CategoryImageProcessing).
			Build()
	}
	return img, nil
}
