package camera

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultReplayInterval is used when no replay interval is configured.
const DefaultReplayInterval = 500 * time.Millisecond

// FileSource replays still JPEGs from a directory at a fixed rate. It
// stands in for a live camera during development and in tests, looping
// over the directory until closed.
type FileSource struct {
	dir      string
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	frames chan Frame
	done   chan struct{}
	opened bool
}

// NewFileSource creates a replay source over the JPEG files in dir.
func NewFileSource(dir string, interval time.Duration) *FileSource {
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	return &FileSource{dir: dir, interval: interval}
}

// Open lists the directory and starts the replay loop. A missing or empty
// directory is a DeviceNotFound acquisition error.
func (s *FileSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return newAcquisitionError(DeviceBusy, fmt.Errorf("replay already running"))
	}

	files, err := listJPEGs(s.dir)
	if err != nil {
		if os.IsPermission(err) {
			return newAcquisitionError(PermissionDenied, err)
		}
		return newAcquisitionError(DeviceNotFound, err)
	}
	if len(files) == 0 {
		return newAcquisitionError(DeviceNotFound, fmt.Errorf("no JPEG files in %s", s.dir))
	}

	replayCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.frames = make(chan Frame, 1)
	s.done = make(chan struct{})
	s.opened = true

	serviceLogger.Info("Starting file replay", "dir", s.dir, "files", len(files), "interval", s.interval)
	go s.replayLoop(replayCtx, files)
	return nil
}

// Frames returns the frame delivery channel.
func (s *FileSource) Frames() <-chan Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close stops the replay loop and waits for it to exit. Safe to call more
// than once and before Open.
func (s *FileSource) Close() error {
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
	return nil
}

func (s *FileSource) replayLoop(ctx context.Context, files []string) {
	defer close(s.done)
	defer close(s.frames)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		path := files[i%len(files)]
		i++

		img, err := decodeJPEGFile(path)
		if err != nil {
			serviceLogger.Warn("Skipping unreadable replay file", "path", path, "error", err)
			continue
		}

		deliver(s.frames, newFrame(img))
	}
}

func decodeJPEGFile(path string) (img image.Image, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return jpeg.Decode(f)
}

// listJPEGs returns the JPEG files in dir sorted by name so replay order
// is stable.
func listJPEGs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
