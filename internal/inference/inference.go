// Package inference implements the HTTP client for the tea leaf disease
// detection endpoint. It uploads JPEG frames and decodes prediction results.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/detection"
	"github.com/teascan/teascan-go/internal/errors"
	"github.com/teascan/teascan-go/internal/httpclient"
	"github.com/teascan/teascan-go/internal/logging"
)

// Package-level logger specific to the inference service
var serviceLogger *slog.Logger

func init() {
	var err error
	logFilePath := filepath.Join("logs", "inference.log")
	serviceLogger, _, err = logging.NewFileLogger(logFilePath, "inference", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize inference file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// Sentinel errors classifying prediction failures. ErrEndpointOffline covers
// transport failures and non-2xx responses, both of which mean the endpoint
// is unreachable or unhealthy and a later attempt may succeed.
// ErrMalformedResponse covers 2xx responses whose body cannot be trusted.
var (
	ErrEndpointOffline   = errors.NewStd("inference endpoint offline")
	ErrMalformedResponse = errors.NewStd("malformed inference response")
)

// predictResponse is the JSON envelope returned by the detection endpoint.
type predictResponse struct {
	Success bool `json:"success"`
	detection.Result
}

// Client uploads frames to the detection endpoint and decodes the results.
type Client struct {
	Settings *conf.Settings
	BaseURL  string
	HTTP     *httpclient.Client
}

// New creates an inference client from the given settings. The underlying
// HTTP client applies the configured request timeout to every call that
// arrives without its own deadline.
func New(settings *conf.Settings) *Client {
	timeout := time.Duration(settings.Inference.Timeout) * time.Second
	serviceLogger.Info("Creating new inference client",
		"url", settings.Inference.URL,
		"timeout", timeout)
	return &Client{
		Settings: settings,
		BaseURL:  strings.TrimRight(settings.Inference.URL, "/"),
		HTTP:     httpclient.New(&httpclient.Config{DefaultTimeout: timeout}),
	}
}

// Predict uploads a JPEG-encoded frame and returns the decoded detection
// result. The endpoint health flag is updated on every attempt, so callers
// can observe connectivity without extra probes.
func (c *Client) Predict(ctx context.Context, jpegData []byte) (*detection.Result, error) {
	if len(jpegData) == 0 {
		return nil, errors.New(fmt.Errorf("frame data is empty")).
			Component("inference").
			Category(errors.CategoryValidation).
			Build()
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to create multipart form: %w", err)).
			Component("inference").
			Category(errors.CategoryInferenceTransport).
			Build()
	}
	if _, err := part.Write(jpegData); err != nil {
		return nil, errors.New(fmt.Errorf("failed to write frame data: %w", err)).
			Component("inference").
			Category(errors.CategoryInferenceTransport).
			Build()
	}
	if err := writer.Close(); err != nil {
		return nil, errors.New(fmt.Errorf("failed to finalize multipart form: %w", err)).
			Component("inference").
			Category(errors.CategoryInferenceTransport).
			Build()
	}

	predictURL := c.BaseURL + "/predict"
	serviceLogger.Debug("Uploading frame", "url", predictURL, "size", len(jpegData))

	resp, err := c.HTTP.Post(ctx, predictURL, writer.FormDataContentType(), body.Bytes())
	if err != nil {
		SetOnline(false)
		serviceLogger.Error("Frame upload request failed", "url", predictURL, "error", err)
		return nil, errors.New(fmt.Errorf("%w: %w", ErrEndpointOffline, err)).
			Component("inference").
			Category(errors.CategoryInferenceTransport).
			Context("url", predictURL).
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			serviceLogger.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		SetOnline(false)
		serviceLogger.Error("Prediction request rejected", "url", predictURL, "status_code", resp.StatusCode)
		return nil, errors.New(fmt.Errorf("%w: unexpected status %d", ErrEndpointOffline, resp.StatusCode)).
			Component("inference").
			Category(errors.CategoryInferenceTransport).
			Context("url", predictURL).
			Context("status_code", resp.StatusCode).
			Build()
	}

	// The endpoint answered; request-shaped failures from here on are
	// structural, not connectivity.
	SetOnline(true)

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: failed to read body: %w", ErrMalformedResponse, err)).
			Component("inference").
			Category(errors.CategoryInferenceResponse).
			Build()
	}

	if c.Settings.Inference.Debug {
		serviceLogger.Debug("Prediction response body", "body", string(responseBody))
	}

	var pdata predictResponse
	if err := json.Unmarshal(responseBody, &pdata); err != nil {
		serviceLogger.Error("Failed to decode prediction JSON response",
			"url", predictURL, "status_code", resp.StatusCode, "error", err)
		return nil, errors.New(fmt.Errorf("%w: failed to decode JSON: %w", ErrMalformedResponse, err)).
			Component("inference").
			Category(errors.CategoryInferenceResponse).
			Build()
	}

	if !pdata.Success {
		serviceLogger.Error("Prediction reported failure", "url", predictURL)
		return nil, errors.New(fmt.Errorf("%w: endpoint reported failure", ErrMalformedResponse)).
			Component("inference").
			Category(errors.CategoryInferenceResponse).
			Build()
	}

	if err := validateResult(&pdata.Result); err != nil {
		serviceLogger.Error("Prediction result failed validation", "url", predictURL, "error", err)
		return nil, errors.New(fmt.Errorf("%w: %w", ErrMalformedResponse, err)).
			Component("inference").
			Category(errors.CategoryInferenceResponse).
			Build()
	}

	serviceLogger.Debug("Prediction decoded",
		"is_tea_leaf", pdata.IsTeaLeaf,
		"is_healthy", pdata.IsHealthy,
		"detections", pdata.TotalDetections)
	return &pdata.Result, nil
}

// CheckHealth probes the endpoint health route and updates the shared
// online flag. Intended to run once at session start before the
// detection loop begins sampling frames.
func (c *Client) CheckHealth(ctx context.Context) error {
	healthURL := c.BaseURL + "/health"
	resp, err := c.HTTP.Get(ctx, healthURL)
	if err != nil {
		SetOnline(false)
		serviceLogger.Warn("Health check failed", "url", healthURL, "error", err)
		return errors.New(fmt.Errorf("%w: %w", ErrEndpointOffline, err)).
			Component("inference").
			Category(errors.CategoryInferenceTransport).
			Context("url", healthURL).
			Build()
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		SetOnline(false)
		serviceLogger.Warn("Health check returned non-OK status", "url", healthURL, "status_code", resp.StatusCode)
		return errors.New(fmt.Errorf("%w: health status %d", ErrEndpointOffline, resp.StatusCode)).
			Component("inference").
			Category(errors.CategoryInferenceTransport).
			Context("status_code", resp.StatusCode).
			Build()
	}

	SetOnline(true)
	serviceLogger.Info("Inference endpoint healthy", "url", healthURL)
	return nil
}

// Close releases idle connections held by the underlying HTTP client.
func (c *Client) Close() {
	c.HTTP.Close()
}

// validateResult rejects results whose confidence fields fall outside the
// [0, 1] range the model is defined over.
func validateResult(r *detection.Result) error {
	if r.TeaConfidence < 0 || r.TeaConfidence > 1 {
		return fmt.Errorf("tea confidence %f out of range", r.TeaConfidence)
	}
	for _, d := range r.AllDetections() {
		if d.Confidence < 0 || d.Confidence > 1 {
			return fmt.Errorf("detection %q confidence %f out of range", d.Category, d.Confidence)
		}
	}
	if r.TotalDetections < 0 {
		return fmt.Errorf("negative detection count %d", r.TotalDetections)
	}
	return nil
}
