package camera

import (
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"sync"
	"time"
)

// MJPEGSource pulls frames from a multipart/x-mixed-replace MJPEG stream,
// the usual transport for IP and networked USB cameras. The stream stays
// open for the lifetime of the session.
type MJPEGSource struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	frames chan Frame
	done   chan struct{}
	opened bool
}

// NewMJPEGSource creates a source for the given stream URL. The HTTP
// client has a dial timeout but no overall request timeout, since the
// response body is a stream that never ends on its own.
func NewMJPEGSource(url string) *MJPEGSource {
	return &MJPEGSource{
		url: url,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ResponseHeaderTimeout: 15 * time.Second,
			},
		},
	}
}

// Open connects to the stream and starts the frame reader. Connection and
// HTTP-level failures are reported as typed acquisition errors so the
// caller can tell a permission problem from an unreachable device.
func (s *MJPEGSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return newAcquisitionError(DeviceBusy, fmt.Errorf("stream already open"))
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		cancel()
		return newAcquisitionError(Unknown, err)
	}

	serviceLogger.Info("Opening MJPEG stream", "url", s.url)
	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		kind := classifyConnError(err)
		serviceLogger.Error("MJPEG stream connection failed", "url", s.url, "kind", kind, "error", err)
		return newAcquisitionError(kind, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		kind := classifyHTTPStatus(resp.StatusCode)
		serviceLogger.Error("MJPEG stream rejected", "url", s.url, "status_code", resp.StatusCode, "kind", kind)
		return newAcquisitionError(kind, fmt.Errorf("stream returned status %d", resp.StatusCode))
	}

	boundary, err := streamBoundary(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		cancel()
		return newAcquisitionError(Unknown, err)
	}

	s.cancel = cancel
	s.frames = make(chan Frame, 1)
	s.done = make(chan struct{})
	s.opened = true

	go s.readLoop(resp.Body, boundary)
	return nil
}

// Frames returns the frame delivery channel. Only the most recent frame is
// buffered; a slow consumer sees frames dropped, never queued.
func (s *MJPEGSource) Frames() <-chan Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close stops the reader and waits for it to exit. Safe to call more than
// once and before Open.
func (s *MJPEGSource) Close() error {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return nil
	}
	s.opened = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	serviceLogger.Info("MJPEG stream closed", "url", s.url)
	return nil
}

// readLoop decodes JPEG parts off the multipart stream until the body ends
// or the stream context is cancelled.
func (s *MJPEGSource) readLoop(body io.ReadCloser, boundary string) {
	defer close(s.done)
	defer close(s.frames)
	defer body.Close()

	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if err != nil {
			if err != io.EOF {
				serviceLogger.Warn("MJPEG stream ended", "url", s.url, "error", err)
			}
			return
		}

		img, err := jpeg.Decode(part)
		part.Close()
		if err != nil {
			// Torn frames happen on lossy links, skip and keep reading.
			serviceLogger.Debug("Skipping undecodable frame", "url", s.url, "error", err)
			continue
		}

		deliver(s.frames, newFrame(img))
	}
}

// streamBoundary extracts the multipart boundary from the stream's
// Content-Type header.
func streamBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("invalid stream content type %q: %w", contentType, err)
	}
	if mediaType != "multipart/x-mixed-replace" {
		return "", fmt.Errorf("unexpected stream content type %q", mediaType)
	}
	boundary, ok := params["boundary"]
	if !ok {
		return "", fmt.Errorf("stream content type missing boundary")
	}
	return boundary, nil
}
