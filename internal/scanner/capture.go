package scanner

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/errors"
	"github.com/teascan/teascan-go/internal/geocode"
	"github.com/teascan/teascan-go/internal/observation"
	"github.com/teascan/teascan-go/internal/overlay"
	"github.com/teascan/teascan-go/internal/snapshot"
)

// ScanSource marks records produced by the realtime session.
const ScanSource = "realtime"

// CaptureAndSave freezes the session on the current frame, composites it
// with the detection overlay, compresses the annotated image and persists
// it as a scan record. Sampling stays paused afterwards; Resume re-enables
// it.
//
// When persistence fails the composed record is retained, so calling
// CaptureAndSave again retries the save without re-capturing.
func (s *Session) CaptureAndSave(ctx context.Context) (*datastore.ScanRecord, error) {
	s.Pause()

	s.pendingMu.Lock()
	pending := s.pending
	s.pendingMu.Unlock()

	if pending == nil {
		record, err := s.compose(ctx)
		if err != nil {
			s.recordCapture("failed")
			return nil, err
		}
		pending = record
	}

	if s.store == nil {
		s.recordCapture("failed")
		return nil, errors.New(fmt.Errorf("no datastore configured")).
			Component("scanner").
			Category(errors.CategoryConfiguration).
			Build()
	}

	start := time.Now()
	err := s.store.Save(pending)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.Datastore.RecordOperation("save", status, time.Since(start).Seconds())
	}
	if err != nil {
		// Keep the capture so the save can be retried.
		s.pendingMu.Lock()
		s.pending = pending
		s.pendingMu.Unlock()
		s.recordCapture("failed")
		serviceLogger.Error("Failed to persist scan, capture retained", "scan_id", pending.ID, "error", err)
		return nil, err
	}

	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()
	s.recordCapture("saved")
	serviceLogger.Info("Scan saved", "scan_id", pending.ID, "label", pending.Label)
	return pending, nil
}

// compose builds the scan record for the frozen frame: overlay rendering,
// compositing, compression and reverse geocoding.
func (s *Session) compose(ctx context.Context) (*datastore.ScanRecord, error) {
	s.resultMu.RLock()
	frame := s.lastFrame
	result := s.current
	s.resultMu.RUnlock()

	if frame == nil {
		return nil, errors.New(fmt.Errorf("no frame captured yet")).
			Component("scanner").
			Category(errors.CategoryState).
			Build()
	}
	if result == nil {
		return nil, errors.New(fmt.Errorf("no detection result yet")).
			Component("scanner").
			Category(errors.CategoryState).
			Build()
	}

	renderer, err := overlay.NewRenderer(frame.Width, frame.Height)
	if err != nil {
		return nil, err
	}
	renderer.Render(result.AllDetections())

	quality := s.settings.Snapshot.Quality
	if quality <= 0 {
		quality = snapshot.DefaultQuality
	}
	jpegBytes, err := snapshot.Composite(frame.Image, renderer.Image(), quality)
	if err != nil {
		return nil, err
	}

	annotated, err := snapshot.DecodeJPEG(jpegBytes)
	if err != nil {
		return nil, err
	}

	imageB64, err := snapshot.Compress(annotated, s.settings.Snapshot.MaxSizeKB, s.settings.Snapshot.MaxDimension)
	if err != nil {
		return nil, err
	}

	locationName := geocode.UnknownLocation
	if s.geocoder != nil {
		geoCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		locationName = s.geocoder.LocationName(geoCtx, s.settings.Station.Latitude, s.settings.Station.Longitude)
		cancel()
	}

	record := observation.New(s.settings, result, imageB64, ScanSource, locationName)
	return &record, nil
}

func (s *Session) recordCapture(status string) {
	if s.metrics != nil {
		s.metrics.Scanner.RecordCapture(status)
	}
}

// LastFrame returns the most recent frame image, or nil before the first
// frame arrives. Used by the API layer for live preview snapshots.
func (s *Session) LastFrame() image.Image {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	if s.lastFrame == nil {
		return nil
	}
	return s.lastFrame.Image
}
