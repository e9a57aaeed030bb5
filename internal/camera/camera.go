// Package camera provides frame sources for the detection loop. A source
// delivers decoded frames over a channel until it is closed; the scanner
// owns exactly one open source per session.
package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/logging"
)

var serviceLogger *slog.Logger

func init() {
	var err error
	logFilePath := filepath.Join("logs", "camera.log")
	serviceLogger, _, err = logging.NewFileLogger(logFilePath, "camera", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize camera file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// Frame is a single decoded camera frame with its native dimensions.
type Frame struct {
	Image     image.Image
	Width     int
	Height    int
	Timestamp time.Time
}

// Source delivers frames from a camera or replay device. Open starts
// acquisition, Frames returns the delivery channel and Close tears the
// stream down. The channel is closed when the stream ends for any reason.
type Source interface {
	Open(ctx context.Context) error
	Frames() <-chan Frame
	Close() error
}

// New builds the frame source selected in the settings.
func New(settings *conf.Settings) (Source, error) {
	switch settings.Realtime.Camera.Source {
	case conf.CameraSourceMJPEG:
		return NewMJPEGSource(settings.Realtime.Camera.MJPEG.URL), nil
	case conf.CameraSourceFile:
		interval := time.Duration(settings.Realtime.Camera.File.Interval) * time.Millisecond
		return NewFileSource(settings.Realtime.Camera.File.Path, interval), nil
	default:
		return nil, fmt.Errorf("unknown camera source %q", settings.Realtime.Camera.Source)
	}
}

// newFrame wraps a decoded image with its bounds and a capture timestamp.
func newFrame(img image.Image) Frame {
	b := img.Bounds()
	return Frame{
		Image:     img,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Timestamp: time.Now(),
	}
}

// deliver hands a frame to the channel, replacing a stale undelivered frame
// so the consumer always sees the most recent one.
func deliver(frames chan Frame, f Frame) {
	for {
		select {
		case frames <- f:
			return
		default:
		}
		select {
		case <-frames:
		default:
		}
	}
}
