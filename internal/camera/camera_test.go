package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teascan/teascan-go/internal/errors"
)

// encodeTestJPEG renders a small solid-color frame as JPEG bytes.
func encodeTestJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func requireAcquisitionKind(t *testing.T, err error, kind AcquisitionKind) {
	t.Helper()
	require.Error(t, err)
	var acq *AcquisitionError
	require.ErrorAs(t, err, &acq)
	assert.Equal(t, kind, acq.Kind)
	assert.True(t, errors.IsCategory(err, errors.CategoryCamera))
}

func TestFileSource(t *testing.T) {
	t.Run("replays_frames", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), encodeTestJPEG(t, 64, 48, color.White), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), encodeTestJPEG(t, 64, 48, color.Black), 0o644))

		src := NewFileSource(dir, 10*time.Millisecond)
		require.NoError(t, src.Open(context.Background()))
		defer src.Close()

		// The source loops, so more frames than files must arrive.
		for i := 0; i < 3; i++ {
			select {
			case frame, ok := <-src.Frames():
				require.True(t, ok)
				assert.Equal(t, 64, frame.Width)
				assert.Equal(t, 48, frame.Height)
				assert.False(t, frame.Timestamp.IsZero())
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for replay frame")
			}
		}
	})

	t.Run("missing_directory", func(t *testing.T) {
		src := NewFileSource(filepath.Join(t.TempDir(), "nope"), time.Millisecond)
		err := src.Open(context.Background())
		requireAcquisitionKind(t, err, DeviceNotFound)
	})

	t.Run("empty_directory", func(t *testing.T) {
		src := NewFileSource(t.TempDir(), time.Millisecond)
		err := src.Open(context.Background())
		requireAcquisitionKind(t, err, DeviceNotFound)
	})

	t.Run("double_open_is_busy", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), encodeTestJPEG(t, 8, 8, color.White), 0o644))

		src := NewFileSource(dir, 10*time.Millisecond)
		require.NoError(t, src.Open(context.Background()))
		defer src.Close()

		requireAcquisitionKind(t, src.Open(context.Background()), DeviceBusy)
	})

	t.Run("close_is_idempotent", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), encodeTestJPEG(t, 8, 8, color.White), 0o644))

		src := NewFileSource(dir, 10*time.Millisecond)
		require.NoError(t, src.Close(), "close before open should be a no-op")
		require.NoError(t, src.Open(context.Background()))
		require.NoError(t, src.Close())
		require.NoError(t, src.Close())

		_, ok := <-src.Frames()
		assert.False(t, ok, "frame channel should be closed after Close")
	})
}

// mjpegHandler streams n JPEG parts then leaves the connection open until
// the client goes away.
func mjpegHandler(t *testing.T, n int) http.HandlerFunc {
	t.Helper()
	frame := encodeTestJPEG(t, 32, 24, color.White)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < n; i++ {
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame))
			_, _ = w.Write(frame)
			fmt.Fprint(w, "\r\n")
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
		<-r.Context().Done()
	}
}

func TestMJPEGSource(t *testing.T) {
	t.Run("decodes_stream_frames", func(t *testing.T) {
		srv := httptest.NewServer(mjpegHandler(t, 50))
		defer srv.Close()

		src := NewMJPEGSource(srv.URL)
		require.NoError(t, src.Open(context.Background()))
		defer src.Close()

		select {
		case frame, ok := <-src.Frames():
			require.True(t, ok)
			assert.Equal(t, 32, frame.Width)
			assert.Equal(t, 24, frame.Height)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stream frame")
		}
	})

	t.Run("unauthorized_is_permission_denied", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		src := NewMJPEGSource(srv.URL)
		requireAcquisitionKind(t, src.Open(context.Background()), PermissionDenied)
	})

	t.Run("not_found_is_device_not_found", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		src := NewMJPEGSource(srv.URL)
		requireAcquisitionKind(t, src.Open(context.Background()), DeviceNotFound)
	})

	t.Run("conflict_is_device_busy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		src := NewMJPEGSource(srv.URL)
		requireAcquisitionKind(t, src.Open(context.Background()), DeviceBusy)
	})

	t.Run("refused_connection_is_device_not_found", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close() // nothing listens on the URL anymore

		src := NewMJPEGSource(srv.URL)
		requireAcquisitionKind(t, src.Open(context.Background()), DeviceNotFound)
	})

	t.Run("wrong_content_type", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		src := NewMJPEGSource(srv.URL)
		requireAcquisitionKind(t, src.Open(context.Background()), Unknown)
	})

	t.Run("close_ends_stream", func(t *testing.T) {
		srv := httptest.NewServer(mjpegHandler(t, 1000))
		defer srv.Close()

		src := NewMJPEGSource(srv.URL)
		require.NoError(t, src.Open(context.Background()))
		require.NoError(t, src.Close())
		require.NoError(t, src.Close())

		// Drain: the channel must be closed once the reader exits.
		for range src.Frames() {
		}
	})
}
