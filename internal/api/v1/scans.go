package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/errors"
	"github.com/teascan/teascan-go/internal/geocode"
	"github.com/teascan/teascan-go/internal/observation"
	"github.com/teascan/teascan-go/internal/snapshot"
)

// maxUploadBytes caps the size of an uploaded image.
const maxUploadBytes = 10 << 20

// ScanSourceImage marks scans created from an uploaded image rather than
// the realtime camera loop.
const ScanSourceImage = "image"

// initScanRoutes registers the scan persistence endpoints.
func (c *Controller) initScanRoutes() {
	c.Group.GET("/scans", c.ListScans)
	c.Group.GET("/scans/stats", c.GetScanStats)
	c.Group.GET("/scans/:id", c.GetScan)
	c.Group.DELETE("/scans/:id", c.DeleteScan)
	c.Group.POST("/scans", c.UploadScan)
}

// DetectionDTO is one detected disease or deficiency region.
type DetectionDTO struct {
	Kind       string  `json:"kind"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	BoxValid   bool    `json:"box_valid"`
}

// ScanResponse is a saved scan in API form. The base64 image is only
// populated on single-scan fetches to keep list payloads small.
type ScanResponse struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	CreatedAt       time.Time      `json:"created_at"`
	Label           string         `json:"label"`
	Confidence      float64        `json:"confidence"`
	IsTeaLeaf       bool           `json:"is_tea_leaf"`
	TeaConfidence   float64        `json:"tea_confidence"`
	IsHealthy       bool           `json:"is_healthy"`
	TotalDetections int            `json:"total_detections"`
	InferenceTime   float64        `json:"inference_time"`
	InferenceEngine string         `json:"inference_engine,omitempty"`
	Source          string         `json:"source"`
	LocationName    string         `json:"location_name"`
	Latitude        float64        `json:"latitude"`
	Longitude       float64        `json:"longitude"`
	ImageB64        string         `json:"image_b64,omitempty"`
	Detections      []DetectionDTO `json:"detections"`
}

// PaginatedResponse wraps list results with paging metadata. Total is the
// number of matches in the store, not the page size.
type PaginatedResponse struct {
	Data        any   `json:"data"`
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
	Offset      int   `json:"offset"`
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
}

func scanToResponse(scan *datastore.ScanRecord, includeImage bool) ScanResponse {
	resp := ScanResponse{
		ID:              scan.ID,
		UserID:          scan.UserID,
		CreatedAt:       scan.CreatedAt,
		Label:           scan.Label,
		Confidence:      scan.Confidence,
		IsTeaLeaf:       scan.IsTeaLeaf,
		TeaConfidence:   scan.TeaConfidence,
		IsHealthy:       scan.IsHealthy,
		TotalDetections: scan.TotalDetections,
		InferenceTime:   scan.InferenceTime,
		InferenceEngine: scan.InferenceEngine,
		Source:          scan.Source,
		LocationName:    scan.LocationName,
		Latitude:        scan.Latitude,
		Longitude:       scan.Longitude,
		Detections:      make([]DetectionDTO, 0, len(scan.Detections)),
	}
	if includeImage {
		resp.ImageB64 = scan.ImageB64
	}
	for i := range scan.Detections {
		d := &scan.Detections[i]
		resp.Detections = append(resp.Detections, DetectionDTO{
			Kind:       d.Kind,
			Category:   d.Category,
			Confidence: d.Confidence,
			X1:         d.X1,
			Y1:         d.Y1,
			X2:         d.X2,
			Y2:         d.Y2,
			BoxValid:   d.BoxValid,
		})
	}
	return resp
}

// ListScans returns the station's scans, newest first. An optional search
// query matches against the scan label and location name.
func (c *Controller) ListScans(ctx echo.Context) error {
	limit, err := strconv.Atoi(ctx.QueryParam("limit"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(ctx.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	query := ctx.QueryParam("search")

	scans, err := c.DS.SearchScans(c.Settings.Station.UserID, query, limit, offset)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list scans", http.StatusInternalServerError)
	}
	total, err := c.DS.CountScans(c.Settings.Station.UserID, query)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count scans", http.StatusInternalServerError)
	}

	data := make([]ScanResponse, 0, len(scans))
	for i := range scans {
		data = append(data, scanToResponse(&scans[i], false))
	}
	return ctx.JSON(http.StatusOK, PaginatedResponse{
		Data:        data,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		CurrentPage: offset/limit + 1,
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
	})
}

// GetScan returns one scan with its image and detections.
func (c *Controller) GetScan(ctx echo.Context) error {
	id := ctx.Param("id")
	scan, err := c.DS.Get(id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Scan not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to get scan", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, scanToResponse(&scan, true))
}

// DeleteScan removes a scan and its detections.
func (c *Controller) DeleteScan(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := c.DS.Delete(id); err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Scan not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to delete scan", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// GetScanStats returns the aggregate analytics for the station's scans.
func (c *Controller) GetScanStats(ctx echo.Context) error {
	stats, err := c.DS.ScanStats(c.Settings.Station.UserID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute scan statistics", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, stats)
}

// UploadScan runs inference on an uploaded image and persists the result.
// The multipart field name is "image".
func (c *Controller) UploadScan(ctx echo.Context) error {
	if c.Inference == nil {
		return c.HandleError(ctx, nil, "Inference is not configured", http.StatusServiceUnavailable)
	}

	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, err, "Missing image upload", http.StatusBadRequest)
	}
	if fileHeader.Size > maxUploadBytes {
		return c.HandleError(ctx, nil, "Image exceeds the upload size limit", http.StatusRequestEntityTooLarge)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read image upload", http.StatusBadRequest)
	}
	defer func() { _ = file.Close() }()

	jpegData, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read image upload", http.StatusBadRequest)
	}

	img, err := snapshot.DecodeJPEG(jpegData)
	if err != nil {
		return c.HandleError(ctx, err, "Uploaded file is not a valid JPEG image", http.StatusBadRequest)
	}

	result, err := c.Inference.Predict(ctx.Request().Context(), jpegData)
	if err != nil {
		return c.HandleError(ctx, err, "Inference failed", http.StatusBadGateway)
	}

	imageB64, err := snapshot.Compress(img, c.Settings.Snapshot.MaxSizeKB, c.Settings.Snapshot.MaxDimension)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compress image", http.StatusInternalServerError)
	}

	locationName := geocode.UnknownLocation
	if c.Geocoder != nil {
		geoCtx, cancel := context.WithTimeout(ctx.Request().Context(), 15*time.Second)
		locationName = c.Geocoder.LocationName(geoCtx, c.Settings.Station.Latitude, c.Settings.Station.Longitude)
		cancel()
	}

	record := observation.New(c.Settings, result, imageB64, ScanSourceImage, locationName)
	if c.DS == nil {
		return c.HandleError(ctx, nil, "No datastore is configured", http.StatusServiceUnavailable)
	}
	if err := c.DS.Save(&record); err != nil {
		return c.HandleError(ctx, err, "Failed to save scan", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusCreated, scanToResponse(&record, true))
}
