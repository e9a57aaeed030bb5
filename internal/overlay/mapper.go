// Package overlay translates detections from the fixed 640x640 reference
// frame into display pixels and paints bounding boxes with labels onto a
// transparent drawing surface aligned with the video frame.
package overlay

import (
	"image"
	"math"

	"github.com/teascan/teascan-go/internal/detection"
)

// Mapper converts reference frame coordinates into on-screen pixels for one
// display size. Mappers are cheap value types; build a fresh one from the
// current display size on every render so rectangles are never derived from a
// stale size.
type Mapper struct {
	ScaleX float64
	ScaleY float64
}

// NewMapper returns a mapper for a display surface of the given pixel size.
func NewMapper(displayWidth, displayHeight int) Mapper {
	return Mapper{
		ScaleX: float64(displayWidth) / detection.ReferenceSize,
		ScaleY: float64(displayHeight) / detection.ReferenceSize,
	}
}

// MapRect scales a reference frame box to display pixels. The full reference
// frame maps exactly onto the full display surface.
func (m Mapper) MapRect(b detection.BoundingBox) image.Rectangle {
	return image.Rect(
		int(math.Round(b.X1*m.ScaleX)),
		int(math.Round(b.Y1*m.ScaleY)),
		int(math.Round(b.X2*m.ScaleX)),
		int(math.Round(b.Y2*m.ScaleY)),
	)
}
