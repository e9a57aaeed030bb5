// Package api implements the HTTP API for the scanning station. All routes
// are served under /api/v1 by a single Controller that owns the datastore,
// the inference client and the realtime scanning session.
package api

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/geocode"
	"github.com/teascan/teascan-go/internal/inference"
	"github.com/teascan/teascan-go/internal/logging"
	"github.com/teascan/teascan-go/internal/observability"
	"github.com/teascan/teascan-go/internal/scanner"
)

// Controller manages the API routes and dependencies.
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	DS        datastore.Interface
	Settings  *conf.Settings
	Session   *scanner.Session
	Inference *inference.Client
	Geocoder  *geocode.Client
	Metrics   *observability.Metrics

	apiLogger      *slog.Logger
	apiLoggerClose func() error
	startTime      time.Time
	streamWG       sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// New creates the API controller and registers all routes on the given echo
// instance. The session, geocoder and metrics may be nil; the corresponding
// endpoints then report the feature as unavailable.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	session *scanner.Session, client *inference.Client,
	geocoder *geocode.Client, metrics *observability.Metrics) *Controller {

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Echo:           e,
		DS:             ds,
		Settings:       settings,
		Session:        session,
		Inference:      client,
		Geocoder:       geocoder,
		Metrics:        metrics,
		startTime:      time.Now(),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	logFilePath := filepath.Join("logs", "web-api.log")
	var err error
	c.apiLogger, c.apiLoggerClose, err = logging.NewFileLogger(logFilePath, "web-api", slog.LevelInfo)
	if err != nil {
		log.Printf("Failed to initialize web-api file logger at %s: %v. Service logging disabled.", logFilePath, err)
		c.apiLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		c.apiLoggerClose = func() error { return nil }
	}

	c.Group = e.Group("/api/v1")
	c.Group.Use(c.LoggingMiddleware())
	c.initRoutes()
	return c
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.initScanRoutes()
	c.initProfileRoutes()
	c.initSessionRoutes()
	c.initStreamRoutes()
}

// Shutdown stops background stream goroutines and closes the API logger.
func (c *Controller) Shutdown() {
	c.shutdownCancel()
	c.streamWG.Wait()
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			log.Printf("Failed to close web-api log file: %v", err)
		}
	}
}

// LoggingMiddleware logs every API request to the service log.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if c.apiLogger == nil {
				return err
			}

			req := ctx.Request()
			res := ctx.Response()
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("query", req.URL.RawQuery),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "API Request", attrs...)
			return err
		}
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates an error response with a generated correlation ID.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	resp := &ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Error = message
	}
	return resp
}

// generateCorrelationID creates a short random identifier for error tracing.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs the error and writes the standard JSON error envelope.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	if c.apiLogger != nil {
		var errorStr string
		if err != nil {
			errorStr = err.Error()
		} else {
			errorStr = message
		}
		c.apiLogger.Error("API Error",
			"correlation_id", errorResp.CorrelationID,
			"message", message,
			"error", errorStr,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ctx.RealIP(),
		)
	}

	return ctx.JSON(code, errorResp)
}

// Debug logs a formatted message when debug mode is enabled.
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings != nil && c.Settings.Debug {
		msg := fmt.Sprintf(format, v...)
		if c.apiLogger != nil {
			c.apiLogger.Debug(msg)
		}
	}
}

// HealthCheck reports the state of the API, the datastore and the inference
// endpoint. It always answers 200 so load balancers can scrape it; degraded
// components are reported in the body.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	status := map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(c.startTime).Seconds()),
		"station":        c.Settings.Main.Name,
	}

	dbStatus := "connected"
	if c.DS == nil {
		dbStatus = "disabled"
	} else if _, err := c.DS.ScanStats(c.Settings.Station.UserID); err != nil {
		dbStatus = "error"
		status["status"] = "degraded"
	}
	status["database"] = dbStatus

	status["inference"] = map[string]any{
		"online":     inference.Online(),
		"checked":    inference.Checked(),
		"last_check": inference.LastCheck().UTC().Format(time.RFC3339),
	}
	if inference.Checked() && !inference.Online() {
		status["status"] = "degraded"
	}

	return ctx.JSON(http.StatusOK, status)
}
