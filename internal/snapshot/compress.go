package snapshot

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"

	"github.com/teascan/teascan-go/internal/errors"
)

const (
	// DefaultMaxSizeKB is the byte budget for a stored base64 image,
	// chosen to keep a full scan document under the store's 1 MB limit.
	DefaultMaxSizeKB = 800

	// DefaultMaxDimension caps the longest image side before compression.
	DefaultMaxDimension = 1200

	startQuality = 80
	minQuality   = 30
	qualityStep  = 10
)

// Compress resizes and re-encodes an image until its base64 JPEG form fits
// maxSizeKB, returning the base64 string. It first caps the longest side at
// maxDimension, then steps the JPEG quality down, and as a last resort
// shrinks the dimensions by a further 30%.
func Compress(img image.Image, maxSizeKB, maxDimension int) (string, error) {
	if img == nil {
		return "", errors.Newf("compress: nil image").
			Component("snapshot").
			Category(errors.CategoryImageProcessing).
			Build()
	}
	if maxSizeKB <= 0 {
		maxSizeKB = DefaultMaxSizeKB
	}
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width > maxDimension || height > maxDimension {
		if width > height {
			img = imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
		}
	}

	budget := maxSizeKB * 1024

	encoded, err := encodeBase64JPEG(img, startQuality)
	if err != nil {
		return "", err
	}
	for quality := startQuality; len(encoded) > budget && quality > minQuality; {
		quality -= qualityStep
		encoded, err = encodeBase64JPEG(img, quality)
		if err != nil {
			return "", err
		}
	}

	if len(encoded) > budget {
		// Quality floor was not enough, give up some resolution instead.
		b := img.Bounds()
		img = imaging.Resize(img, b.Dx()*7/10, b.Dy()*7/10, imaging.Lanczos)
		encoded, err = encodeBase64JPEG(img, 70)
		if err != nil {
			return "", err
		}
	}

	return encoded, nil
}

// encodeBase64JPEG encodes img as JPEG at the given quality and returns the
// standard base64 representation.
func encodeBase64JPEG(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", errors.New(err).
			Component("snapshot").
			Category(errors.CategoryImageProcessing).
			Build()
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBase64Image decodes a stored base64 image back into raw bytes.
func DecodeBase64Image(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New(err).
			Component("snapshot").
			Category(errors.CategoryImageProcessing).
			Build()
	}
	return data, nil
}
