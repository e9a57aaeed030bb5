// model.go this code defines the data model for the application
package datastore

import (
	"time"

	"github.com/teascan/teascan-go/internal/detection"
)

// Detection kinds stored with each scan.
const (
	KindDisease    = "disease"
	KindDeficiency = "deficiency"
)

// ScanRecord represents a single saved scan with its detection results.
type ScanRecord struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"index:idx_scans_user;index:idx_scans_user_created"`
	CreatedAt time.Time `gorm:"index:idx_scans_user_created"`

	Label      string `gorm:"index:idx_scans_label"`
	Confidence float64

	IsTeaLeaf       bool
	TeaConfidence   float64
	IsHealthy       bool
	TotalDetections int
	InferenceTime   float64
	InferenceEngine string

	Source       string // "realtime" or "image"
	LocationName string
	Latitude     float64
	Longitude    float64

	ImageB64 string `gorm:"type:text"` // base64 JPEG of the annotated capture

	Detections []ScanDetection `gorm:"foreignKey:ScanID;constraint:OnDelete:CASCADE"`
}

// ScanDetection is one detected disease or deficiency, linked to a ScanRecord.
type ScanDetection struct {
	ID         uint   `gorm:"primaryKey"`
	ScanID     string `gorm:"index;not null"`
	Kind       string `gorm:"type:varchar(20)"` // KindDisease or KindDeficiency
	Category   string
	Confidence float64

	// Bounding box in 640x640 model reference coordinates.
	X1, Y1, X2, Y2 float64
	BoxValid       bool
}

// Detection converts the stored row back into the wire-format detection.
func (d *ScanDetection) Detection() detection.Detection {
	det := detection.Detection{
		Category:   d.Category,
		Confidence: d.Confidence,
	}
	if d.BoxValid {
		det.Box = detection.NewBoundingBox(d.X1, d.Y1, d.X2, d.Y2)
	}
	return det
}

// NewScanDetection converts a wire-format detection into a storable row.
func NewScanDetection(scanID, kind string, det *detection.Detection) ScanDetection {
	row := ScanDetection{
		ScanID:     scanID,
		Kind:       kind,
		Category:   det.Category,
		Confidence: det.Confidence,
	}
	if det.Box.Valid() {
		row.X1, row.Y1, row.X2, row.Y2 = det.Box.X1, det.Box.Y1, det.Box.X2, det.Box.Y2
		row.BoxValid = true
	}
	return row
}

// Diseases returns the stored disease detections in wire format.
func (s *ScanRecord) Diseases() []detection.Detection {
	return s.detectionsOfKind(KindDisease)
}

// Deficiencies returns the stored deficiency detections in wire format.
func (s *ScanRecord) Deficiencies() []detection.Detection {
	return s.detectionsOfKind(KindDeficiency)
}

func (s *ScanRecord) detectionsOfKind(kind string) []detection.Detection {
	var out []detection.Detection
	for i := range s.Detections {
		if s.Detections[i].Kind == kind {
			out = append(out, s.Detections[i].Detection())
		}
	}
	return out
}

// UserProfile represents the station operator a scan belongs to.
type UserProfile struct {
	UserID      string `gorm:"primaryKey"`
	DisplayName string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
