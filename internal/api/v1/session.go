package api

import (
	"bytes"
	"image/jpeg"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/teascan/teascan-go/internal/camera"
	"github.com/teascan/teascan-go/internal/detection"
	"github.com/teascan/teascan-go/internal/errors"
	"github.com/teascan/teascan-go/internal/inference"
	"github.com/teascan/teascan-go/internal/scanner"
)

// initSessionRoutes registers the realtime session control endpoints.
func (c *Controller) initSessionRoutes() {
	c.Group.GET("/session/status", c.GetSessionStatus)
	c.Group.GET("/session/frame", c.GetSessionFrame)
	c.Group.POST("/session/start", c.StartSession)
	c.Group.POST("/session/stop", c.StopSession)
	c.Group.POST("/session/pause", c.PauseSession)
	c.Group.POST("/session/resume", c.ResumeSession)
	c.Group.POST("/session/capture", c.CaptureSession)
}

// SessionStatusResponse reports the live state of the scanning session.
type SessionStatusResponse struct {
	State          scanner.State     `json:"state"`
	FPS            int               `json:"fps"`
	EndpointOnline bool              `json:"endpoint_online"`
	Result         *detection.Result `json:"result,omitempty"`
}

// requireSession answers 503 when no realtime session is configured.
func (c *Controller) requireSession(ctx echo.Context) error {
	if c.Session == nil {
		return c.HandleError(ctx, nil, "No realtime session is configured", http.StatusServiceUnavailable)
	}
	return nil
}

// GetSessionStatus returns the session state, throughput and the latest
// stabilized result.
func (c *Controller) GetSessionStatus(ctx echo.Context) error {
	if err := c.requireSession(ctx); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SessionStatusResponse{
		State:          c.Session.State(),
		FPS:            c.Session.FPS(),
		EndpointOnline: inference.Online(),
		Result:         c.Session.CurrentResult(),
	})
}

// GetSessionFrame serves the most recent camera frame as a JPEG preview.
func (c *Controller) GetSessionFrame(ctx echo.Context) error {
	if err := c.requireSession(ctx); err != nil {
		return err
	}
	frame := c.Session.LastFrame()
	if frame == nil {
		return c.HandleError(ctx, nil, "No frame has been received yet", http.StatusNotFound)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 85}); err != nil {
		return c.HandleError(ctx, err, "Failed to encode frame", http.StatusInternalServerError)
	}
	return ctx.Blob(http.StatusOK, "image/jpeg", buf.Bytes())
}

// StartSession opens the camera and starts the detection loop. Camera
// acquisition failures map to dedicated status codes so the client can show
// a specific recovery hint.
func (c *Controller) StartSession(ctx echo.Context) error {
	if err := c.requireSession(ctx); err != nil {
		return err
	}
	if err := c.Session.Start(ctx.Request().Context()); err != nil {
		var acqErr *camera.AcquisitionError
		switch {
		case errors.As(err, &acqErr):
			return c.HandleError(ctx, err, "Camera acquisition failed", acquisitionStatusCode(acqErr))
		case errors.IsCategory(err, errors.CategoryState):
			return c.HandleError(ctx, err, "Session is already running", http.StatusConflict)
		default:
			return c.HandleError(ctx, err, "Failed to start session", http.StatusInternalServerError)
		}
	}
	return c.GetSessionStatus(ctx)
}

func acquisitionStatusCode(err *camera.AcquisitionError) int {
	switch err.Kind {
	case camera.PermissionDenied:
		return http.StatusForbidden
	case camera.DeviceNotFound:
		return http.StatusNotFound
	case camera.DeviceBusy:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// StopSession ends the detection loop and releases the camera.
func (c *Controller) StopSession(ctx echo.Context) error {
	if err := c.requireSession(ctx); err != nil {
		return err
	}
	if err := c.Session.Stop(); err != nil {
		return c.HandleError(ctx, err, "Failed to stop session", http.StatusInternalServerError)
	}
	return c.GetSessionStatus(ctx)
}

// PauseSession freezes the detection loop without releasing the camera.
func (c *Controller) PauseSession(ctx echo.Context) error {
	if err := c.requireSession(ctx); err != nil {
		return err
	}
	c.Session.Pause()
	return c.GetSessionStatus(ctx)
}

// ResumeSession unfreezes the detection loop and discards any capture that
// has not been saved.
func (c *Controller) ResumeSession(ctx echo.Context) error {
	if err := c.requireSession(ctx); err != nil {
		return err
	}
	c.Session.Resume()
	return c.GetSessionStatus(ctx)
}

// CaptureSession pauses the loop, composites the current frame with its
// detection overlay and saves the scan. The session stays paused so the
// client can review the capture; resume discards it.
func (c *Controller) CaptureSession(ctx echo.Context) error {
	if err := c.requireSession(ctx); err != nil {
		return err
	}
	record, err := c.Session.CaptureAndSave(ctx.Request().Context())
	if err != nil {
		if errors.IsCategory(err, errors.CategoryState) {
			return c.HandleError(ctx, err, "Nothing to capture yet", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "Failed to capture scan", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusCreated, scanToResponse(record, true))
}
