// Package scanner runs the realtime detection session: it pulls frames from
// a camera source, throttles them into the inference endpoint, stabilizes
// the results over a sliding window and serves the latest annotated state.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teascan/teascan-go/internal/camera"
	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/detection"
	"github.com/teascan/teascan-go/internal/errors"
	"github.com/teascan/teascan-go/internal/geocode"
	"github.com/teascan/teascan-go/internal/inference"
	"github.com/teascan/teascan-go/internal/logging"
	"github.com/teascan/teascan-go/internal/observability"
)

var serviceLogger *slog.Logger

func init() {
	var err error
	logFilePath := filepath.Join("logs", "scanner.log")
	serviceLogger, _, err = logging.NewFileLogger(logFilePath, "scanner", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize scanner file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// State is the lifecycle state of a detection session.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateLive      State = "live"
	StatePaused    State = "paused"
)

// sampleJPEGQuality is the encode quality for frames posted to inference.
// Capture snapshots use the higher quality configured in the settings.
const sampleJPEGQuality = 80

// Session drives one realtime scanning session over a single camera source.
type Session struct {
	settings *conf.Settings
	source   camera.Source
	client   *inference.Client
	geocoder *geocode.Client
	store    datastore.Interface
	metrics  *observability.Metrics // nil disables metric recording

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	loopDone chan struct{}

	limiter  *rate.Limiter
	busy     atomic.Bool
	paused   atomic.Bool
	fps      atomic.Int64
	sampleWG sync.WaitGroup

	resultMu  sync.RWMutex
	history   *detection.History
	current   *detection.Result
	lastFrame *camera.Frame

	pendingMu sync.Mutex
	pending   *datastore.ScanRecord
}

// NewSession wires a session from its dependencies. The geocoder, store and
// metrics may be nil; capture then stores the fallback location name, fails
// persistence, or skips metric recording respectively.
func NewSession(settings *conf.Settings, source camera.Source, client *inference.Client,
	geocoder *geocode.Client, store datastore.Interface, metrics *observability.Metrics) *Session {

	interval := time.Duration(settings.Realtime.Scanner.Interval) * time.Millisecond
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	historySize := settings.Realtime.Scanner.HistorySize
	if historySize <= 0 {
		historySize = detection.DefaultHistorySize
	}

	return &Session{
		settings: settings,
		source:   source,
		client:   client,
		geocoder: geocoder,
		store:    store,
		metrics:  metrics,
		state:    StateIdle,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		history:  detection.NewHistory(historySize),
	}
}

// Start opens the camera source and begins the detection loop. Camera
// failures surface as typed acquisition errors and leave the session idle;
// there is no automatic retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return errors.New(fmt.Errorf("session already running in state %s", s.state)).
			Component("scanner").
			Category(errors.CategoryState).
			Build()
	}

	s.state = StateAcquiring
	serviceLogger.Info("Acquiring camera source")

	if err := s.source.Open(ctx); err != nil {
		s.state = StateIdle
		serviceLogger.Error("Camera acquisition failed", "error", err)
		return err
	}

	// One probe so the endpoint status is meaningful before the first
	// sample. The loop runs regardless of the outcome.
	healthCtx, cancelHealth := context.WithTimeout(ctx, 10*time.Second)
	if err := s.client.CheckHealth(healthCtx); err != nil {
		serviceLogger.Warn("Inference endpoint health check failed", "error", err)
	}
	cancelHealth()

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.paused.Store(false)
	s.state = StateLive

	go s.run(loopCtx)
	serviceLogger.Info("Detection session live",
		"interval_ms", s.settings.Realtime.Scanner.Interval,
		"history_size", s.settings.Realtime.Scanner.HistorySize)
	return nil
}

// Stop tears the session down: it cancels the loop, closes the frame source
// and waits for the loop to exit before returning. Idempotent and reachable
// from any state.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.loopDone
	s.state = StateIdle
	s.cancel = nil
	s.loopDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := s.source.Close()
	if done != nil {
		<-done
	}
	// An in-flight sample must finish before state is reset, otherwise a
	// Predict that completed just before the cancel could repopulate the
	// history after the reset below.
	s.sampleWG.Wait()

	s.paused.Store(false)
	s.fps.Store(0)
	s.resultMu.Lock()
	s.history.Reset()
	s.current = nil
	s.lastFrame = nil
	s.resultMu.Unlock()

	serviceLogger.Info("Detection session stopped")
	return err
}

// Pause suspends sampling while frames keep flowing, so the FPS counter and
// the last frame stay current.
func (s *Session) Pause() {
	if s.setPaused(true) {
		serviceLogger.Debug("Sampling paused")
	}
}

// Resume re-enables sampling and discards any capture retained from a
// failed save.
func (s *Session) Resume() {
	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()
	if s.setPaused(false) {
		serviceLogger.Debug("Sampling resumed")
	}
}

func (s *Session) setPaused(paused bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateLive:
		if !paused {
			return false
		}
		s.state = StatePaused
	case StatePaused:
		if paused {
			return false
		}
		s.state = StateLive
	default:
		return false
	}
	s.paused.Store(paused)
	return true
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FPS returns the number of frames received in the last whole second.
func (s *Session) FPS() int {
	return int(s.fps.Load())
}

// CurrentResult returns the latest stabilized result, or nil before the
// first successful sample.
func (s *Session) CurrentResult() *detection.Result {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	return s.current
}

// run is the throttle loop: one pass per frame delivered by the source,
// gated by the rate limiter, with at most one inference in flight.
func (s *Session) run(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	frames := s.source.Frames()
	frameCount := 0

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			s.fps.Store(int64(frameCount))
			if s.metrics != nil {
				s.metrics.Scanner.FPS.Set(float64(frameCount))
			}
			if s.settings.Realtime.Scanner.Debug {
				serviceLogger.Debug("Frame rate", "fps", frameCount)
			}
			frameCount = 0

		case frame, ok := <-frames:
			if !ok {
				serviceLogger.Warn("Frame source closed, ending detection loop")
				return
			}
			frameCount++
			if s.metrics != nil {
				s.metrics.Scanner.FramesReceived.Inc()
			}

			s.resultMu.Lock()
			s.lastFrame = &frame
			s.resultMu.Unlock()

			if s.paused.Load() {
				s.skip("paused")
				continue
			}
			if s.busy.Load() {
				s.skip("busy")
				continue
			}
			if !s.limiter.Allow() {
				s.skip("throttled")
				continue
			}

			s.busy.Store(true)
			if s.metrics != nil {
				s.metrics.Scanner.SamplesSubmitted.Inc()
			}
			s.sampleWG.Add(1)
			go func() {
				defer s.sampleWG.Done()
				s.sample(ctx, frame)
			}()
		}
	}
}

func (s *Session) skip(reason string) {
	if s.metrics != nil {
		s.metrics.Scanner.RecordSkip(reason)
	}
}

// sample sends one frame through inference and folds the result into the
// history. Failures are absorbed: the displayed result stays unchanged and
// the loop keeps ticking.
func (s *Session) sample(ctx context.Context, frame camera.Frame) {
	defer s.busy.Store(false)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: sampleJPEGQuality}); err != nil {
		serviceLogger.Error("Failed to encode frame for inference", "error", err)
		return
	}

	start := time.Now()
	result, err := s.client.Predict(ctx, buf.Bytes())
	elapsed := time.Since(start).Seconds()

	if s.metrics != nil {
		s.metrics.Inference.RecordRequest(predictStatus(err), elapsed)
		s.metrics.Inference.UpdateEndpointStatus(inference.Online())
	}

	if err != nil {
		serviceLogger.Warn("Inference sample failed", "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	s.resultMu.Lock()
	s.history.Push(result)
	stabilized := detection.Stabilize(s.history)
	s.current = stabilized
	s.resultMu.Unlock()

	if s.metrics != nil && stabilized != nil {
		s.metrics.Scanner.RecordDetection(stabilized.Label())
	}
}

func predictStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, inference.ErrMalformedResponse):
		return "malformed"
	default:
		return "offline"
	}
}
