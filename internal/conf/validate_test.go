package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSettings returns a Settings struct that passes validation.
func validSettings() *Settings {
	s := &Settings{}
	s.Inference.URL = "http://localhost:8000"
	s.Inference.Timeout = 45
	s.Realtime.Camera.Source = "mjpeg"
	s.Realtime.Scanner.Interval = 1500
	s.Realtime.Scanner.HistorySize = 3
	s.Snapshot.MaxSizeKB = 800
	s.Snapshot.MaxDimension = 1200
	s.Snapshot.Quality = 95
	s.WebServer.Enabled = true
	s.WebServer.Port = "8080"
	return s
}

func TestValidateSettingsValid(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:    "empty inference URL",
			mutate:  func(s *Settings) { s.Inference.URL = "" },
			wantErr: "inference URL",
		},
		{
			name:    "relative inference URL",
			mutate:  func(s *Settings) { s.Inference.URL = "/predict" },
			wantErr: "not a valid absolute URL",
		},
		{
			name:    "zero inference timeout",
			mutate:  func(s *Settings) { s.Inference.Timeout = 0 },
			wantErr: "timeout",
		},
		{
			name:    "unknown camera source",
			mutate:  func(s *Settings) { s.Realtime.Camera.Source = "v4l2" },
			wantErr: "unsupported camera source",
		},
		{
			name: "file source without path",
			mutate: func(s *Settings) {
				s.Realtime.Camera.Source = "file"
				s.Realtime.Camera.File.Path = ""
				s.Realtime.Camera.File.Interval = 200
			},
			wantErr: "file path",
		},
		{
			name:    "interval too small",
			mutate:  func(s *Settings) { s.Realtime.Scanner.Interval = 50 },
			wantErr: "at least 100",
		},
		{
			name:    "zero history size",
			mutate:  func(s *Settings) { s.Realtime.Scanner.HistorySize = 0 },
			wantErr: "history size",
		},
		{
			name:    "bad snapshot quality",
			mutate:  func(s *Settings) { s.Snapshot.Quality = 0 },
			wantErr: "quality",
		},
		{
			name:    "bad web server port",
			mutate:  func(s *Settings) { s.WebServer.Port = "http" },
			wantErr: "port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
