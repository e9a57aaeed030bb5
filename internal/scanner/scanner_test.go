package scanner

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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teascan/teascan-go/internal/camera"
	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/inference"
)

const predictionBody = `{
	"success": true,
	"is_tea_leaf": true,
	"tea_confidence": 0.95,
	"is_healthy": false,
	"total_detections": 1,
	"diseases": [{"disease": "Algal Spot", "confidence": 0.8, "bbox": [10, 20, 110, 220]}],
	"deficiencies": [],
	"inference_engine": "tflite"
}`

func testSettings(inferenceURL string) *conf.Settings {
	s := &conf.Settings{}
	s.Station.UserID = "station-1"
	s.Realtime.Scanner.Interval = 100
	s.Realtime.Scanner.HistorySize = 3
	s.Inference.URL = inferenceURL
	s.Inference.Timeout = 5
	s.Snapshot.MaxSizeKB = 800
	s.Snapshot.MaxDimension = 1200
	s.Snapshot.Quality = 95
	return s
}

// frameDir writes a couple of small JPEG frames for the file source.
func frameDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{G: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	for i := 0; i < 2; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("frame%d.jpg", i)), buf.Bytes(), 0o644))
	}
	return dir
}

func inferenceServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Cleanup(inference.ResetStatus)
	return srv
}

func okInferenceServer(t *testing.T) *httptest.Server {
	return inferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(predictionBody))
	})
}

// stubStore implements datastore.Interface in memory with optional
// injected save failures.
type stubStore struct {
	mu        sync.Mutex
	saved     []*datastore.ScanRecord
	saveCalls int
	failSaves int
}

func (s *stubStore) Open() error  { return nil }
func (s *stubStore) Close() error { return nil }

func (s *stubStore) Save(scan *datastore.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.failSaves > 0 {
		s.failSaves--
		return fmt.Errorf("injected save failure")
	}
	s.saved = append(s.saved, scan)
	return nil
}

func (s *stubStore) Get(id string) (datastore.ScanRecord, error) {
	return datastore.ScanRecord{}, fmt.Errorf("not implemented")
}
func (s *stubStore) Delete(id string) error { return nil }
func (s *stubStore) GetUserScans(userID string, limit int) ([]datastore.ScanRecord, error) {
	return nil, nil
}
func (s *stubStore) GetAllScans(limit int) ([]datastore.ScanRecord, error) { return nil, nil }
func (s *stubStore) SearchScans(userID, query string, limit, offset int) ([]datastore.ScanRecord, error) {
	return nil, nil
}
func (s *stubStore) CountScans(userID, query string) (int64, error) { return 0, nil }
func (s *stubStore) ScanStats(userID string) (datastore.ScanStats, error) {
	return datastore.ScanStats{}, nil
}
func (s *stubStore) SaveUserProfile(profile *datastore.UserProfile) error { return nil }
func (s *stubStore) GetUserProfile(userID string) (datastore.UserProfile, error) {
	return datastore.UserProfile{}, fmt.Errorf("not implemented")
}
func (s *stubStore) Subscribe() (<-chan datastore.ScanRecord, func()) {
	ch := make(chan datastore.ScanRecord)
	return ch, func() { close(ch) }
}

func newTestSession(t *testing.T, store datastore.Interface, srv *httptest.Server) *Session {
	t.Helper()
	settings := testSettings(srv.URL)
	source := camera.NewFileSource(frameDir(t), 20*time.Millisecond)
	client := inference.New(settings)
	t.Cleanup(client.Close)
	session := NewSession(settings, source, client, nil, store, nil)
	t.Cleanup(func() { _ = session.Stop() })
	return session
}

func TestSessionLifecycle(t *testing.T) {
	srv := okInferenceServer(t)
	session := newTestSession(t, &stubStore{}, srv)

	assert.Equal(t, StateIdle, session.State())
	require.NoError(t, session.Start(context.Background()))
	assert.Equal(t, StateLive, session.State())

	require.Eventually(t, func() bool {
		return session.CurrentResult() != nil
	}, 5*time.Second, 20*time.Millisecond, "a stabilized result should appear")

	result := session.CurrentResult()
	assert.True(t, result.IsTeaLeaf)
	assert.Equal(t, "Algal Spot", result.Label())
	assert.True(t, inference.Online())

	require.NoError(t, session.Stop())
	assert.Equal(t, StateIdle, session.State())
	assert.Nil(t, session.CurrentResult(), "stop clears the displayed result")
	require.NoError(t, session.Stop(), "stop is idempotent")
}

func TestStartWhileRunning(t *testing.T) {
	srv := okInferenceServer(t)
	session := newTestSession(t, &stubStore{}, srv)

	require.NoError(t, session.Start(context.Background()))
	require.Error(t, session.Start(context.Background()))
}

func TestStartCameraFailure(t *testing.T) {
	srv := okInferenceServer(t)
	settings := testSettings(srv.URL)
	source := camera.NewFileSource(filepath.Join(t.TempDir(), "missing"), time.Millisecond)
	client := inference.New(settings)
	t.Cleanup(client.Close)
	t.Cleanup(inference.ResetStatus)
	session := NewSession(settings, source, client, nil, &stubStore{}, nil)

	err := session.Start(context.Background())
	require.Error(t, err)
	var acq *camera.AcquisitionError
	assert.ErrorAs(t, err, &acq)
	assert.Equal(t, StateIdle, session.State(), "failed acquisition leaves the session idle")
}

func TestInferenceFailuresAreAbsorbed(t *testing.T) {
	srv := inferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	session := newTestSession(t, &stubStore{}, srv)

	require.NoError(t, session.Start(context.Background()))

	// The loop must keep running and the displayed result stay empty.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, StateLive, session.State())
	assert.Nil(t, session.CurrentResult())
	assert.False(t, inference.Online())

	require.NoError(t, session.Stop())
}

func TestStopClearsInFlightSample(t *testing.T) {
	var inFlight atomic.Int64
	srv := inferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		inFlight.Add(1)
		time.Sleep(400 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, predictionBody)
	})
	session := newTestSession(t, &stubStore{}, srv)

	require.NoError(t, session.Start(context.Background()))
	require.Eventually(t, func() bool {
		return inFlight.Load() > 0
	}, 5*time.Second, 10*time.Millisecond, "a sample should be in flight")

	// Stop must join the in-flight sample: a Predict finishing around the
	// cancel may not leave a result behind in an idle session.
	require.NoError(t, session.Stop())
	assert.Equal(t, StateIdle, session.State())
	assert.Nil(t, session.CurrentResult())
	assert.Equal(t, 0, session.FPS())
}

func TestSamplingThrottle(t *testing.T) {
	var total atomic.Int64
	var concurrent, maxConcurrent atomic.Int64
	srv := inferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		now := concurrent.Add(1)
		defer concurrent.Add(-1)
		for {
			observed := maxConcurrent.Load()
			if now <= observed || maxConcurrent.CompareAndSwap(observed, now) {
				break
			}
		}
		total.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, predictionBody)
	})

	// Frames arrive every 20ms, far faster than the 250ms sampling interval.
	settings := testSettings(srv.URL)
	settings.Realtime.Scanner.Interval = 250
	source := camera.NewFileSource(frameDir(t), 20*time.Millisecond)
	client := inference.New(settings)
	t.Cleanup(client.Close)
	t.Cleanup(inference.ResetStatus)
	session := NewSession(settings, source, client, nil, &stubStore{}, nil)
	t.Cleanup(func() { _ = session.Stop() })

	require.NoError(t, session.Start(context.Background()))
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, session.Stop())

	// ~55 frames arrive in the window; only one sample per 250ms may pass,
	// with one extra allowed for scheduling jitter around the stop.
	assert.LessOrEqual(t, total.Load(), int64(6), "at most one sample per interval")
	assert.GreaterOrEqual(t, total.Load(), int64(2), "sampling should keep running")
	assert.Equal(t, int64(1), maxConcurrent.Load(), "never more than one outstanding inference call")
}

func TestPauseResume(t *testing.T) {
	srv := okInferenceServer(t)
	session := newTestSession(t, &stubStore{}, srv)

	session.Pause() // no-op while idle
	assert.Equal(t, StateIdle, session.State())

	require.NoError(t, session.Start(context.Background()))
	session.Pause()
	assert.Equal(t, StatePaused, session.State())
	session.Resume()
	assert.Equal(t, StateLive, session.State())
}

func TestCaptureAndSave(t *testing.T) {
	srv := okInferenceServer(t)
	store := &stubStore{}
	session := newTestSession(t, store, srv)

	require.NoError(t, session.Start(context.Background()))
	require.Eventually(t, func() bool {
		return session.CurrentResult() != nil
	}, 5*time.Second, 20*time.Millisecond)

	record, err := session.CaptureAndSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePaused, session.State(), "capture pauses sampling")
	assert.Equal(t, "station-1", record.UserID)
	assert.Equal(t, ScanSource, record.Source)
	assert.Equal(t, "Algal Spot", record.Label)
	assert.Equal(t, "tflite", record.InferenceEngine)
	assert.NotEmpty(t, record.ImageB64)
	require.Len(t, record.Detections, 1, "overlay and record carry the stabilized detections")
	assert.Equal(t, datastore.KindDisease, record.Detections[0].Kind)
	require.Len(t, store.saved, 1)

	session.Resume()
	assert.Equal(t, StateLive, session.State())
}

func TestCaptureWithoutResult(t *testing.T) {
	srv := inferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	session := newTestSession(t, &stubStore{}, srv)

	require.NoError(t, session.Start(context.Background()))
	_, err := session.CaptureAndSave(context.Background())
	require.Error(t, err)
}

func TestCaptureRetriesAfterSaveFailure(t *testing.T) {
	srv := okInferenceServer(t)
	store := &stubStore{failSaves: 1}
	session := newTestSession(t, store, srv)

	require.NoError(t, session.Start(context.Background()))
	require.Eventually(t, func() bool {
		return session.CurrentResult() != nil
	}, 5*time.Second, 20*time.Millisecond)

	_, err := session.CaptureAndSave(context.Background())
	require.Error(t, err)

	record, err := session.CaptureAndSave(context.Background())
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, record.ID, store.saved[0].ID)
	assert.Equal(t, 2, store.saveCalls, "retry reuses the captured record without re-composing")
}
