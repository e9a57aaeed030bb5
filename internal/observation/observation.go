// Package observation builds storable scan records out of detection results.
package observation

import (
	"time"

	"github.com/google/uuid"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/detection"
)

// New creates a ScanRecord from a detection result and the annotated capture.
// The label and overall confidence are derived from the result so the history
// view can display a scan without re-reading every detection. Location fields
// come from the station settings; locationName is the reverse geocoded place
// name, already resolved or fallen back by the caller.
func New(settings *conf.Settings, result *detection.Result, imageB64, source, locationName string) datastore.ScanRecord {
	id := uuid.New().String()

	scan := datastore.ScanRecord{
		ID:        id,
		UserID:    settings.Station.UserID,
		CreatedAt: time.Now(),

		Label:      result.Label(),
		Confidence: result.OverallConfidence(),

		IsTeaLeaf:       result.IsTeaLeaf,
		TeaConfidence:   result.TeaConfidence,
		IsHealthy:       result.IsHealthy,
		TotalDetections: result.TotalDetections,
		InferenceTime:   result.InferenceTime,
		InferenceEngine: result.Engine,

		Source:       source,
		LocationName: locationName,
		Latitude:     settings.Station.Latitude,
		Longitude:    settings.Station.Longitude,

		ImageB64: imageB64,
	}

	for i := range result.Diseases {
		scan.Detections = append(scan.Detections,
			datastore.NewScanDetection(id, datastore.KindDisease, &result.Diseases[i]))
	}
	for i := range result.Deficiencies {
		scan.Detections = append(scan.Detections,
			datastore.NewScanDetection(id, datastore.KindDeficiency, &result.Deficiencies[i]))
	}

	return scan
}
