package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	require.NotNil(t, m.Scanner)
	require.NotNil(t, m.Inference)
	require.NotNil(t, m.Datastore)

	// Two instances must not clash, each carries its own registry.
	_, err = NewMetrics()
	require.NoError(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Scanner.FramesReceived.Inc()
	m.Scanner.RecordSkip("throttled")
	m.Inference.RecordRequest("ok", 0.12)
	m.Inference.UpdateEndpointStatus(true)
	m.Datastore.RecordOperation("save", "ok", 0.004)

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "scanner_frames_received_total 1")
	assert.Contains(t, body, `scanner_samples_skipped_total{reason="throttled"} 1`)
	assert.Contains(t, body, `inference_requests_total{status="ok"} 1`)
	assert.Contains(t, body, "inference_endpoint_online 1")
	assert.Contains(t, body, `datastore_operations_total{operation="save",status="ok"} 1`)
}
