package geocode

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/errors"
)

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	orig := RetryDelay
	RetryDelay = time.Millisecond
	t.Cleanup(func() { RetryDelay = orig })
}

func testSettings(enabled bool) *conf.Settings {
	s := &conf.Settings{}
	s.Geocode.Enabled = enabled
	s.Geocode.URL = "https://nominatim.openstreetmap.org"
	s.Geocode.CacheTTL = 60
	return s
}

func TestResolve(t *testing.T) {
	t.Run("returns_display_name", func(t *testing.T) {
		setupHTTPMock(t)
		httpmock.RegisterResponder("GET", `=~^https://nominatim\.openstreetmap\.org/reverse`,
			func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, UserAgent, req.Header.Get("User-Agent"))
				assert.Equal(t, "json", req.URL.Query().Get("format"))
				return httpmock.NewStringResponse(http.StatusOK,
					`{"display_name": "Ella, Badulla District, Uva Province, Sri Lanka"}`), nil
			})

		client := New(testSettings(true))
		name, err := client.Resolve(context.Background(), 6.8667, 81.0466)
		require.NoError(t, err)
		assert.Equal(t, "Ella, Badulla District, Uva Province, Sri Lanka", name)
	})

	t.Run("caches_by_coordinates", func(t *testing.T) {
		setupHTTPMock(t)
		httpmock.RegisterResponder("GET", `=~^https://nominatim\.openstreetmap\.org/reverse`,
			httpmock.NewStringResponder(http.StatusOK, `{"display_name": "Kandy, Sri Lanka"}`))

		client := New(testSettings(true))
		for i := 0; i < 3; i++ {
			name, err := client.Resolve(context.Background(), 7.2906, 80.6337)
			require.NoError(t, err)
			assert.Equal(t, "Kandy, Sri Lanka", name)
		}
		assert.Equal(t, 1, httpmock.GetTotalCallCount(), "repeat lookups should be served from cache")
	})

	t.Run("retries_transient_failures", func(t *testing.T) {
		setupHTTPMock(t)
		calls := 0
		httpmock.RegisterResponder("GET", `=~^https://nominatim\.openstreetmap\.org/reverse`,
			func(req *http.Request) (*http.Response, error) {
				calls++
				if calls < 3 {
					return httpmock.NewStringResponse(http.StatusBadGateway, ""), nil
				}
				return httpmock.NewStringResponse(http.StatusOK, `{"display_name": "Nuwara Eliya"}`), nil
			})

		client := New(testSettings(true))
		name, err := client.Resolve(context.Background(), 6.9497, 80.7891)
		require.NoError(t, err)
		assert.Equal(t, "Nuwara Eliya", name)
		assert.Equal(t, 3, calls)
	})

	t.Run("persistent_failure_is_categorized", func(t *testing.T) {
		setupHTTPMock(t)
		httpmock.RegisterResponder("GET", `=~^https://nominatim\.openstreetmap\.org/reverse`,
			httpmock.NewStringResponder(http.StatusInternalServerError, ""))

		client := New(testSettings(true))
		_, err := client.Resolve(context.Background(), 1, 2)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryGeocoding))
	})

	t.Run("disabled_returns_fallback", func(t *testing.T) {
		setupHTTPMock(t)
		client := New(testSettings(false))
		name, err := client.Resolve(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.Equal(t, UnknownLocation, name)
		assert.Equal(t, 0, httpmock.GetTotalCallCount())
	})

	t.Run("empty_display_name_is_fallback", func(t *testing.T) {
		setupHTTPMock(t)
		httpmock.RegisterResponder("GET", `=~^https://nominatim\.openstreetmap\.org/reverse`,
			httpmock.NewStringResponder(http.StatusOK, `{}`))

		client := New(testSettings(true))
		name, err := client.Resolve(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.Equal(t, UnknownLocation, name)
	})
}

func TestLocationName(t *testing.T) {
	t.Run("absorbs_errors", func(t *testing.T) {
		setupHTTPMock(t)
		httpmock.RegisterResponder("GET", `=~^https://nominatim\.openstreetmap\.org/reverse`,
			httpmock.NewStringResponder(http.StatusInternalServerError, ""))

		client := New(testSettings(true))
		name := client.LocationName(context.Background(), 1, 2)
		assert.Equal(t, UnknownLocation, name)
	})

	t.Run("passes_through_resolved_name", func(t *testing.T) {
		setupHTTPMock(t)
		httpmock.RegisterResponder("GET", `=~^https://nominatim\.openstreetmap\.org/reverse`,
			httpmock.NewStringResponder(http.StatusOK, `{"display_name": "Hatton, Sri Lanka"}`))

		client := New(testSettings(true))
		name := client.LocationName(context.Background(), 6.8916, 80.5955)
		assert.Equal(t, "Hatton, Sri Lanka", name)
	})
}
