package overlay

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teascan/teascan-go/internal/detection"
)

func TestMapRectFullReferenceCoversDisplay(t *testing.T) {
	sizes := []image.Point{
		{X: 320, Y: 320},
		{X: 1280, Y: 720},
		{X: 1920, Y: 1080},
		{X: 333, Y: 777},
		{X: 1, Y: 1},
	}

	full := detection.NewBoundingBox(0, 0, 640, 640)
	for _, size := range sizes {
		m := NewMapper(size.X, size.Y)
		got := m.MapRect(full)
		assert.Equal(t, image.Rect(0, 0, size.X, size.Y), got, "display %v", size)
	}
}

func TestMapRectScalesIndependentlyPerAxis(t *testing.T) {
	// 320x320 display against the 640 reference frame halves both axes.
	m := NewMapper(320, 320)
	got := m.MapRect(detection.NewBoundingBox(10, 20, 110, 220))

	assert.Equal(t, image.Pt(5, 10), got.Min)
	assert.Equal(t, 50, got.Dx())
	assert.Equal(t, 100, got.Dy())
}

func TestMapRectNonSquareDisplay(t *testing.T) {
	m := NewMapper(1280, 720)
	got := m.MapRect(detection.NewBoundingBox(320, 320, 640, 640))

	assert.Equal(t, image.Rect(640, 360, 1280, 720), got)
}
