// Package detection defines the data model shared by the inference client,
// the realtime scanner and the datastore: bounding boxes in the fixed 640x640
// reference frame, per-category detections and whole-frame results, plus the
// sliding window stabilization that smooths frame-to-frame flicker.
package detection

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ReferenceSize is the fixed pixel size of the coordinate space in which the
// inference endpoint reports bounding boxes, independent of display size.
const ReferenceSize = 640.0

// BoundingBox is an axis-aligned rectangle in the 640x640 reference frame.
// The wire format is either a 4-element array [x1,y1,x2,y2] or an object
// {"x1":..,"y1":..,"x2":..,"y2":..}. A malformed box unmarshals without error
// but reports !Valid() so the detection can be skipped rather than rejected.
type BoundingBox struct {
	X1, Y1, X2, Y2 float64
	valid          bool
}

// NewBoundingBox returns a valid box with the given reference frame corners.
func NewBoundingBox(x1, y1, x2, y2 float64) BoundingBox {
	return BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2, valid: true}
}

// Valid reports whether the box carried a well-formed geometry.
func (b *BoundingBox) Valid() bool {
	return b.valid
}

// UnmarshalJSON accepts both wire forms of a bounding box. Malformed
// geometries are tolerated and flagged invalid instead of failing the
// surrounding result.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	b.valid = false

	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 4 {
			return nil
		}
		b.X1, b.Y1, b.X2, b.Y2 = arr[0], arr[1], arr[2], arr[3]
		b.valid = true
		return nil
	}

	var obj struct {
		X1 *float64 `json:"x1"`
		Y1 *float64 `json:"y1"`
		X2 *float64 `json:"x2"`
		Y2 *float64 `json:"y2"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	if obj.X1 == nil || obj.Y1 == nil || obj.X2 == nil || obj.Y2 == nil {
		return nil
	}

	b.X1, b.Y1, b.X2, b.Y2 = *obj.X1, *obj.Y1, *obj.X2, *obj.Y2
	b.valid = true
	return nil
}

// MarshalJSON always emits the array form.
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

// Detection is a single disease or deficiency finding. The wire field for the
// category name is "disease" in both lists, matching the inference endpoint.
type Detection struct {
	Category   string      `json:"disease"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bbox"`
}

// Key returns the case-insensitive identity of the detection's category.
func (d *Detection) Key() string {
	return strings.ToLower(d.Category)
}

// Result is one complete answer from the inference endpoint for one frame.
type Result struct {
	IsTeaLeaf       bool        `json:"is_tea_leaf"`
	TeaConfidence   float64     `json:"tea_confidence"`
	IsHealthy       bool        `json:"is_healthy"`
	TotalDetections int         `json:"total_detections"`
	Diseases        []Detection `json:"diseases"`
	Deficiencies    []Detection `json:"deficiencies"`
	InferenceTime   float64     `json:"inference_time"`
	Engine          string      `json:"inference_engine"`
}

// AllDetections returns diseases followed by deficiencies as one slice.
func (r *Result) AllDetections() []Detection {
	all := make([]Detection, 0, len(r.Diseases)+len(r.Deficiencies))
	all = append(all, r.Diseases...)
	all = append(all, r.Deficiencies...)
	return all
}

// Label names for results without a category to report.
const (
	LabelNotTeaLeaf = "Not a Tea Leaf"
	LabelHealthy    = "Healthy"
	LabelUnknown    = "Unknown"
)

// Label derives the single best display label for the result: the
// top-confidence category, or one of the fixed labels when the frame is not a
// tea leaf, is healthy, or carries no detections.
func (r *Result) Label() string {
	if !r.IsTeaLeaf {
		return LabelNotTeaLeaf
	}
	if r.IsHealthy {
		return LabelHealthy
	}

	var top *Detection
	for _, d := range r.AllDetections() {
		d := d
		if top == nil || d.Confidence > top.Confidence {
			top = &d
		}
	}
	if top == nil {
		return LabelUnknown
	}
	return capitalize(top.Category)
}

// OverallConfidence derives the single confidence figure persisted with a
// scan: tea detection confidence for non-leaf and healthy frames, otherwise
// the highest detection confidence.
func (r *Result) OverallConfidence() float64 {
	if !r.IsTeaLeaf || r.IsHealthy {
		return r.TeaConfidence
	}

	best := 0.0
	for _, d := range r.AllDetections() {
		if d.Confidence > best {
			best = d.Confidence
		}
	}
	return best
}

// capitalize upper-cases the first rune of s.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
