// Package geocode resolves scan coordinates to human readable place names
// using a Nominatim-style reverse geocoding service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/errors"
	"github.com/teascan/teascan-go/internal/logging"
)

const (
	// UnknownLocation is the place name stored when resolution fails or
	// geocoding is disabled. Scan records must always carry a usable name.
	UnknownLocation = "Unknown Location"

	// UserAgent identifies this client to the geocoding service, which
	// rejects anonymous requests.
	UserAgent = "TeaScan-Go"

	RequestTimeout = 10 * time.Second
	MaxRetries     = 3
)

// RetryDelay is the pause between retries, a variable so tests can shorten it.
var RetryDelay = 2 * time.Second

var serviceLogger *slog.Logger

func init() {
	var err error
	logFilePath := filepath.Join("logs", "geocode.log")
	serviceLogger, _, err = logging.NewFileLogger(logFilePath, "geocode", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize geocode file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// nominatimResponse is the subset of the reverse geocoding response we use.
type nominatimResponse struct {
	DisplayName string `json:"display_name"`
}

// Client resolves coordinates to place names with an in-process TTL cache
// in front of the geocoding service. Stations do not move, so the same
// coordinates repeat on every capture.
type Client struct {
	Settings   *conf.Settings
	BaseURL    string
	HTTPClient *http.Client
	cache      *gocache.Cache
}

// New creates a geocoding client from the given settings.
func New(settings *conf.Settings) *Client {
	ttl := time.Duration(settings.Geocode.CacheTTL) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Client{
		Settings:   settings,
		BaseURL:    strings.TrimRight(settings.Geocode.URL, "/"),
		HTTPClient: &http.Client{Timeout: RequestTimeout},
		cache:      gocache.New(ttl, 2*ttl),
	}
}

// Resolve returns the display name for the given coordinates, hitting the
// cache first. The error carries categorized metadata for logging; most
// callers want LocationName instead, which absorbs it.
func (c *Client) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	if !c.Settings.Geocode.Enabled {
		return UnknownLocation, nil
	}

	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if name, found := c.cache.Get(key); found {
		return name.(string), nil
	}

	name, err := c.fetch(ctx, lat, lon)
	if err != nil {
		return "", err
	}

	c.cache.Set(key, name, gocache.DefaultExpiration)
	return name, nil
}

// LocationName resolves coordinates to a place name, falling back to
// UnknownLocation when the service is unreachable or returns nothing.
func (c *Client) LocationName(ctx context.Context, lat, lon float64) string {
	name, err := c.Resolve(ctx, lat, lon)
	if err != nil {
		serviceLogger.Warn("Reverse geocoding failed, using fallback name",
			"lat", lat, "lon", lon, "error", err)
		return UnknownLocation
	}
	return name
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (string, error) {
	url := fmt.Sprintf("%s/reverse?lat=%.6f&lon=%.6f&format=json", c.BaseURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", errors.New(fmt.Errorf("error creating request: %w", err)).
			Component("geocode").
			Category(errors.CategoryGeocoding).
			Build()
	}
	req.Header.Set("User-Agent", UserAgent)

	var body []byte
	for i := 0; i < MaxRetries; i++ {
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if i == MaxRetries-1 {
				return "", errors.New(fmt.Errorf("error fetching location name: %w", err)).
					Component("geocode").
					Category(errors.CategoryGeocoding).
					Build()
			}
			time.Sleep(RetryDelay)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if i == MaxRetries-1 {
				return "", errors.New(fmt.Errorf("received non-200 response: %d", resp.StatusCode)).
					Component("geocode").
					Category(errors.CategoryGeocoding).
					Context("status_code", resp.StatusCode).
					Build()
			}
			time.Sleep(RetryDelay)
			continue
		}

		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", errors.New(fmt.Errorf("error reading response body: %w", err)).
				Component("geocode").
				Category(errors.CategoryGeocoding).
				Build()
		}
		break
	}

	var data nominatimResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", errors.New(fmt.Errorf("error unmarshaling geocode response: %w", err)).
			Component("geocode").
			Category(errors.CategoryGeocoding).
			Build()
	}

	if data.DisplayName == "" {
		serviceLogger.Debug("Geocoding returned no display name", "lat", lat, "lon", lon)
		return UnknownLocation, nil
	}

	serviceLogger.Debug("Resolved location", "lat", lat, "lon", lon, "name", data.DisplayName)
	return data.DisplayName, nil
}
