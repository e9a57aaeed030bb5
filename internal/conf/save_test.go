package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	settings := &Settings{}
	settings.Main.Name = "test-station"
	settings.Station.UserID = "station-42"
	settings.Inference.URL = "http://localhost:8000"
	settings.Realtime.Scanner.Interval = 1500

	require.NoError(t, SaveYAMLConfig(configPath, settings))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)

	var loaded Settings
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, "test-station", loaded.Main.Name)
	assert.Equal(t, "station-42", loaded.Station.UserID)
	assert.Equal(t, 1500, loaded.Realtime.Scanner.Interval)
}

func TestSaveYAMLConfigCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "nested", "config.yaml")

	require.NoError(t, SaveYAMLConfig(configPath, &Settings{}))

	_, err := os.Stat(configPath)
	assert.NoError(t, err)
}

func TestSaveSettingsWithoutLoadFails(t *testing.T) {
	settingsMutex.Lock()
	prev := settingsInstance
	settingsInstance = nil
	settingsMutex.Unlock()
	t.Cleanup(func() {
		settingsMutex.Lock()
		settingsInstance = prev
		settingsMutex.Unlock()
	})

	assert.Error(t, SaveSettings())
}
