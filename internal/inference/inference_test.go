package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/errors"
)

// testSettings builds settings pointing the client at the given base URL.
func testSettings(url string) *conf.Settings {
	s := &conf.Settings{}
	s.Inference.URL = url
	s.Inference.Timeout = 5
	return s
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := New(testSettings(srv.URL))
	t.Cleanup(client.Close)
	t.Cleanup(ResetStatus)
	return client
}

const validPrediction = `{
	"success": true,
	"is_tea_leaf": true,
	"tea_confidence": 0.97,
	"is_healthy": false,
	"total_detections": 2,
	"diseases": [
		{"disease": "Algal Spot", "confidence": 0.82, "bbox": [12, 24, 180, 260]},
		{"disease": "Gray Blight", "confidence": 0.41, "bbox": {"x1": 300, "y1": 80, "x2": 420, "y2": 200}}
	],
	"deficiencies": [],
	"inference_time": 0.184,
	"inference_engine": "onnx"
}`

func TestPredict(t *testing.T) {
	t.Run("decodes_valid_response", func(t *testing.T) {
		var gotContentType string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotContentType = r.Header.Get("Content-Type")
			require.NoError(t, r.ParseMultipartForm(1<<20))
			file, header, err := r.FormFile("image")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "frame.jpg", header.Filename)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(validPrediction))
		})

		result, err := client.Predict(context.Background(), []byte{0xff, 0xd8, 0xff})
		require.NoError(t, err)
		assert.Contains(t, gotContentType, "multipart/form-data")

		assert.True(t, result.IsTeaLeaf)
		assert.InDelta(t, 0.97, result.TeaConfidence, 1e-9)
		assert.False(t, result.IsHealthy)
		assert.Equal(t, 2, result.TotalDetections)
		require.Len(t, result.Diseases, 2)
		assert.Equal(t, "Algal Spot", result.Diseases[0].Category)
		assert.True(t, result.Diseases[0].Box.Valid())
		assert.True(t, result.Diseases[1].Box.Valid())
		assert.True(t, Online(), "successful prediction should mark the endpoint online")
	})

	t.Run("non_2xx_is_offline", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		})

		_, err := client.Predict(context.Background(), []byte{0x01})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEndpointOffline)
		assert.False(t, Online())
	})

	t.Run("transport_error_is_offline", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close() // no listener left behind the URL
		client := New(testSettings(srv.URL))
		t.Cleanup(client.Close)
		t.Cleanup(ResetStatus)

		_, err := client.Predict(context.Background(), []byte{0x01})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEndpointOffline)
		assert.False(t, Online())
	})

	t.Run("bad_json_is_malformed", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success": tru`))
		})

		_, err := client.Predict(context.Background(), []byte{0x01})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedResponse)
		// The endpoint answered, so connectivity is fine.
		assert.True(t, Online())
	})

	t.Run("reported_failure_is_malformed", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success": false}`))
		})

		_, err := client.Predict(context.Background(), []byte{0x01})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("out_of_range_confidence_is_malformed", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{
				"success": true,
				"is_tea_leaf": true,
				"tea_confidence": 1.7,
				"total_detections": 0
			}`))
		})

		_, err := client.Predict(context.Background(), []byte{0x01})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("empty_frame_rejected_locally", func(t *testing.T) {
		called := false
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			called = true
		})

		_, err := client.Predict(context.Background(), nil)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		assert.False(t, called, "empty frames should never reach the endpoint")
	})
}

func TestCheckHealth(t *testing.T) {
	t.Run("healthy_endpoint", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})

		require.NoError(t, client.CheckHealth(context.Background()))
		assert.True(t, Online())
		assert.True(t, Checked())
		assert.False(t, LastCheck().IsZero())
	})

	t.Run("unhealthy_endpoint", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		err := client.CheckHealth(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEndpointOffline)
		assert.False(t, Online())
		assert.True(t, Checked())
	})
}
