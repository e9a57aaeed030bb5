// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateInferenceSettings(&settings.Inference); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateCameraSettings(&settings.Realtime.Camera); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateScannerSettings(&settings.Realtime.Scanner); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateSnapshotSettings(&settings.Snapshot); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateInferenceSettings validates the inference endpoint settings
func validateInferenceSettings(settings *InferenceSettings) error {
	var errs []string

	if settings.URL == "" {
		errs = append(errs, "inference URL must not be empty")
	} else if u, err := url.Parse(settings.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("inference URL is not a valid absolute URL: %s", settings.URL))
	}

	if settings.Timeout <= 0 {
		errs = append(errs, "inference timeout must be a positive number of seconds")
	}

	if len(errs) > 0 {
		return fmt.Errorf("inference settings errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateCameraSettings validates the frame source settings
func validateCameraSettings(settings *CameraSettings) error {
	var errs []string

	switch settings.Source {
	case "mjpeg":
		// An empty URL is allowed at load time, the realtime command
		// rejects it when a session is actually started.
	case "file":
		if settings.File.Path == "" {
			errs = append(errs, "camera file path must not be empty for file source")
		}
		if settings.File.Interval <= 0 {
			errs = append(errs, "camera file interval must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported camera source: %s", settings.Source))
	}

	if len(errs) > 0 {
		return fmt.Errorf("camera settings errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateScannerSettings validates the detection loop settings
func validateScannerSettings(settings *ScannerSettings) error {
	var errs []string

	if settings.Interval < 100 {
		errs = append(errs, "scanner interval must be at least 100 milliseconds")
	}

	if settings.HistorySize < 1 {
		errs = append(errs, "scanner history size must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("scanner settings errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateSnapshotSettings validates capture and compression settings
func validateSnapshotSettings(settings *SnapshotSettings) error {
	var errs []string

	if settings.MaxSizeKB <= 0 {
		errs = append(errs, "snapshot max size must be positive")
	}

	if settings.MaxDimension <= 0 {
		errs = append(errs, "snapshot max dimension must be positive")
	}

	if settings.Quality < 1 || settings.Quality > 100 {
		errs = append(errs, "snapshot quality must be between 1 and 100")
	}

	if len(errs) > 0 {
		return fmt.Errorf("snapshot settings errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateWebServerSettings validates the HTTP API server settings
func validateWebServerSettings(settings *WebServerSettings) error {
	var errs []string

	if settings.Enabled {
		if port, err := strconv.Atoi(settings.Port); err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("invalid web server port: %s", settings.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("webserver settings errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
