package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/teascan/teascan-go/internal/inference"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// statusInterval is how often session status events are pushed while a
// realtime session is configured.
const statusInterval = time.Second

// initStreamRoutes registers the server-sent events endpoint.
func (c *Controller) initStreamRoutes() {
	c.Group.GET("/scans/stream", c.StreamScans)
}

// StreamScans pushes every newly saved scan to the client as a server-sent
// event, plus periodic session status events while a realtime session is
// configured. The image payload is stripped to keep events small; clients
// fetch the full scan by ID when they need the image.
func (c *Controller) StreamScans(ctx echo.Context) error {
	if c.DS == nil {
		return c.HandleError(ctx, nil, "No datastore is configured", http.StatusServiceUnavailable)
	}

	w := ctx.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	scans, cancel := c.DS.Subscribe()
	defer cancel()

	c.streamWG.Add(1)
	defer c.streamWG.Done()

	if c.apiLogger != nil {
		c.apiLogger.Info("SSE client connected", "ip", ctx.RealIP())
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	// Session status ticks only fire when a session exists.
	var statusTicks <-chan time.Time
	if c.Session != nil {
		status := time.NewTicker(statusInterval)
		defer status.Stop()
		statusTicks = status.C
	}

	reqCtx := ctx.Request().Context()
	for {
		select {
		case <-reqCtx.Done():
			return nil
		case <-c.shutdownCtx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case <-statusTicks:
			payload, err := json.Marshal(SessionStatusResponse{
				State:          c.Session.State(),
				FPS:            c.Session.FPS(),
				EndpointOnline: inference.Online(),
				Result:         c.Session.CurrentResult(),
			})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			w.Flush()
		case scan, ok := <-scans:
			if !ok {
				return nil
			}
			resp := scanToResponse(&scan, false)
			payload, err := json.Marshal(resp)
			if err != nil {
				if c.apiLogger != nil {
					c.apiLogger.Error("Failed to marshal scan event", "error", err.Error())
				}
				continue
			}
			if _, err := fmt.Fprintf(w, "event: scan\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
