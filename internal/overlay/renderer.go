package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/teascan/teascan-go/internal/detection"
)

var labelFont *truetype.Font

// init parses the font used for label tags.
func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

const (
	defaultLineWidth = 3.0
	labelFontSize    = 14.0
	labelPadding     = 5.0
	labelTagHeight   = 20.0
)

// Renderer draws stroked detection rectangles and filled label tags onto a
// transparent surface matching the current display size of the video element.
type Renderer struct {
	dc        *gg.Context
	mapper    Mapper
	lineWidth float64
}

// NewRenderer allocates a transparent drawing surface for the given display
// size. The display size must be positive.
func NewRenderer(displayWidth, displayHeight int) (*Renderer, error) {
	if displayWidth <= 0 || displayHeight <= 0 {
		return nil, fmt.Errorf("invalid display size %dx%d", displayWidth, displayHeight)
	}

	dc := gg.NewContext(displayWidth, displayHeight)
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: labelFontSize}))

	return &Renderer{
		dc:        dc,
		mapper:    NewMapper(displayWidth, displayHeight),
		lineWidth: defaultLineWidth,
	}, nil
}

// Render fully clears the surface and draws every valid detection: a stroked
// rectangle in the category color and a "<category> <confidence%>" tag above
// the box top edge, clamped so the tag never leaves the surface. Detections
// with malformed geometry are skipped, not reported.
func (r *Renderer) Render(dets []detection.Detection) {
	r.Clear()

	for i := range dets {
		d := &dets[i]
		if !d.Box.Valid() {
			continue
		}
		r.drawDetection(d)
	}
}

// drawDetection paints one rectangle and its label tag.
func (r *Renderer) drawDetection(d *detection.Detection) {
	rect := r.mapper.MapRect(d.Box)
	boxColor := CategoryColor(d.Category)

	r.dc.SetColor(boxColor)
	r.dc.SetLineWidth(r.lineWidth)
	r.dc.DrawRectangle(
		float64(rect.Min.X), float64(rect.Min.Y),
		float64(rect.Dx()), float64(rect.Dy()),
	)
	r.dc.Stroke()

	label := fmt.Sprintf("%s %.0f%%", d.Category, d.Confidence*100)
	textWidth, _ := r.dc.MeasureString(label)

	// Tag sits immediately above the box, clamped to the surface top.
	tagTop := float64(rect.Min.Y) - labelTagHeight - labelPadding
	if tagTop < 0 {
		tagTop = 0
	}

	r.dc.SetColor(boxColor)
	r.dc.DrawRectangle(float64(rect.Min.X), tagTop, textWidth+labelPadding*2, labelTagHeight+labelPadding)
	r.dc.Fill()

	r.dc.SetColor(color.White)
	r.dc.DrawString(label, float64(rect.Min.X)+labelPadding, tagTop+labelTagHeight)
}

// Clear wipes the surface back to full transparency.
func (r *Renderer) Clear() {
	r.dc.SetRGBA(0, 0, 0, 0)
	r.dc.Clear()
}

// Image returns the drawing surface. The returned image is reused by the next
// Render call.
func (r *Renderer) Image() image.Image {
	return r.dc.Image()
}

// Bounds returns the pixel bounds of the drawing surface.
func (r *Renderer) Bounds() image.Rectangle {
	return r.dc.Image().Bounds()
}
