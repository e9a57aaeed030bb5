// config.go: settings struct and functions to load and access the application configuration.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // path to the log file
	Rotation RotationType // type of log rotation
	MaxSize  int64        // max size in bytes for RotationSize
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// StationSettings identifies the scanning station and its fixed location.
// Saved scans are owned by the station's user ID.
type StationSettings struct {
	UserID    string  // identity that owns persisted scans
	Name      string  // human readable station name
	Latitude  float64 // station latitude, used when no per-scan fix is available
	Longitude float64 // station longitude
}

// Supported camera source types.
const (
	CameraSourceMJPEG = "mjpeg"
	CameraSourceFile  = "file"
)

// CameraSettings selects and configures the frame source for realtime scanning.
type CameraSettings struct {
	Source string // frame source type, "mjpeg" or "file"
	MJPEG  struct {
		URL string // URL of the multipart/x-mixed-replace MJPEG stream
	}
	File struct {
		Path     string // directory of JPEG frames to replay
		Interval int    // milliseconds between replayed frames
	}
}

// ScannerSettings contains settings for the realtime detection loop.
type ScannerSettings struct {
	Interval    int  // minimum milliseconds between inference samples
	HistorySize int  // sliding window length for result stabilization
	Debug       bool // true to enable scanner debug log
}

// InferenceSettings contains settings for the remote inference endpoint.
type InferenceSettings struct {
	URL     string // base URL of the inference service
	Timeout int    // request timeout in seconds
	Debug   bool   // true to enable inference debug log
}

// GeocodeSettings contains settings for reverse geocoding of scan locations.
type GeocodeSettings struct {
	Enabled  bool   // true to resolve scan coordinates to a place name
	URL      string // base URL of the nominatim-style geocoder
	CacheTTL int    // cache lifetime for resolved names, in minutes
}

// SnapshotSettings contains settings for captured scan images.
type SnapshotSettings struct {
	MaxSizeKB    int // byte budget for the stored base64 image
	MaxDimension int // longest image side before compression kicks in
	Quality      int // JPEG quality for composited captures
}

// MQTTSettings contains settings for publishing saved scans over MQTT.
type MQTTSettings struct {
	Enabled  bool   // true to enable MQTT publication
	Broker   string // broker URL, e.g. tcp://localhost:1883
	Topic    string // topic to publish scan summaries to
	Username string // broker username
	Password string // broker password
}

// NotifySettings contains settings for push notifications on unhealthy scans.
type NotifySettings struct {
	Enabled bool     // true to enable push notifications
	URLs    []string // shoutrrr service URLs
}

// TelemetrySettings contains settings for the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to enable Prometheus telemetry endpoint
	Listen  string // listen address and port of the telemetry endpoint
}

// WebServerSettings contains settings for the HTTP API server.
type WebServerSettings struct {
	Enabled bool      // true to enable the API server
	Port    string    // port for the API server
	Log     LogConfig // logging configuration for the API server
}

// RealtimeSettings groups everything the realtime scanning session needs.
type RealtimeSettings struct {
	Camera    CameraSettings    // frame source configuration
	Scanner   ScannerSettings   // detection loop configuration
	MQTT      MQTTSettings      // MQTT integration
	Notify    NotifySettings    // push notification integration
	Telemetry TelemetrySettings // metrics endpoint
}

// Settings is the root configuration for teascan-go.
type Settings struct {
	Debug bool // true to enable debug output

	Main struct {
		Name string    // name of the node running this instance
		Log  LogConfig // main log configuration
	}

	Station   StationSettings   // station identity and location
	Realtime  RealtimeSettings  // realtime scanning settings
	Inference InferenceSettings // inference endpoint settings
	Geocode   GeocodeSettings   // reverse geocoding settings
	Snapshot  SnapshotSettings  // capture and compression settings

	Output struct {
		SQLite struct {
			Enabled bool   // true to enable sqlite output
			Path    string // path to sqlite database
		}
		MySQL struct {
			Enabled  bool   // true to enable mysql output
			Username string // username for mysql database
			Password string // password for mysql database
			Database string // database name for mysql database
			Host     string // host for mysql database
			Port     string // port for mysql database
		}
	}

	WebServer WebServerSettings // HTTP API server settings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// initViper sets up viper with config name, paths and defaults.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("TEASCAN")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults and flags cover everything.
	}

	return nil
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	if _, err := Load(); err != nil {
		return &Settings{}
	}

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the list of directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", "teascan-go"),
		"/etc/teascan-go",
	}, nil
}
