package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FIREWATCH_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("FIREWATCH_CONFIG", "")
	return dir
}

func TestLoad_DefaultValues(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "eim", cfg.ModelBackend)
	assert.Equal(t, 96, cfg.ResizeWidth)
	assert.Equal(t, 96, cfg.ResizeHeight)
	assert.Equal(t, 5, cfg.FrameSkip)
	assert.Equal(t, 3.0, cfg.DarknessThreshold)
	assert.Equal(t, 100, cfg.MotionThreshold)
	assert.Equal(t, 60, cfg.GasThreshold)
	assert.Equal(t, 40*time.Second, cfg.ConfirmWindow)
	assert.Equal(t, time.Second, cfg.ConfirmPollInterval)
	assert.Equal(t, 5, cfg.GPSRetries)
	assert.Equal(t, 2*time.Second, cfg.GPSRetryDelay)
	assert.Equal(t, 10*time.Second, cfg.GPSTimeout)
	assert.Equal(t, time.Second, cfg.CycleDelay)
	assert.Equal(t, 90*time.Second, cfg.AlertTimeout)
	assert.Equal(t, []string{"sudo", "python3", "-u", "read_gas_value.py"}, cfg.SensorCommand)
	assert.False(t, cfg.SaveFrames)

	require.Len(t, cfg.HazardLabels, 2)
	assert.Equal(t, LabelThreshold{Label: "Normal_Fire", Kind: "Normal", Threshold: 0.9}, cfg.HazardLabels[0])
	assert.Equal(t, LabelThreshold{Label: "Wild_Fire", Kind: "Wild", Threshold: 0.9}, cfg.HazardLabels[1])
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	isolate(t)
	t.Setenv("FRAME_SKIP", "2")
	t.Setenv("CONFIRM_WINDOW", "15s")
	t.Setenv("GAS_THRESHOLD", "75")
	t.Setenv("SENSOR_COMMAND", "python3 -u mq2.py")
	t.Setenv("HAZARD_LABELS", "Wild_Fire:Wild:0.8")
	t.Setenv("SAVE_FRAMES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.FrameSkip)
	assert.Equal(t, 15*time.Second, cfg.ConfirmWindow)
	assert.Equal(t, 75, cfg.GasThreshold)
	assert.Equal(t, []string{"python3", "-u", "mq2.py"}, cfg.SensorCommand)
	assert.Equal(t, []LabelThreshold{{Label: "Wild_Fire", Kind: "Wild", Threshold: 0.8}}, cfg.HazardLabels)
	assert.True(t, cfg.SaveFrames)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, "firewatch.env")
	require.NoError(t, os.WriteFile(envFile, []byte("STREAM_SOURCE=udp://:9000\nGPS_RETRIES=3\n"), 0644))
	t.Setenv("FIREWATCH_ENV_FILE", envFile)
	// godotenv never overrides variables that are already set
	t.Setenv("STREAM_SOURCE", "")
	os.Unsetenv("STREAM_SOURCE")
	t.Setenv("GPS_RETRIES", "")
	os.Unsetenv("GPS_RETRIES")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "udp://:9000", cfg.StreamSource)
	assert.Equal(t, 3, cfg.GPSRetries)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "firewatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("motion_threshold: 250\nmodel_backend: dnn\n"), 0644))
	t.Setenv("FIREWATCH_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.MotionThreshold)
	assert.Equal(t, "dnn", cfg.ModelBackend)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero frame skip", "FRAME_SKIP", "0"},
		{"unknown backend", "MODEL_BACKEND", "tflite"},
		{"zero retries", "GPS_RETRIES", "0"},
		{"malformed labels", "HAZARD_LABELS", "Wild_Fire:0.9"},
		{"threshold above one", "HAZARD_LABELS", "Wild_Fire:Wild:1.5"},
		{"empty sensor command", "SENSOR_COMMAND", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseHazardLabels_KeepsPriorityOrder(t *testing.T) {
	labels, err := ParseHazardLabels(" Smoke:Smoke:0.7 , Normal_Fire:Normal:0.9,,Wild_Fire:Wild:0.95")
	require.NoError(t, err)

	require.Len(t, labels, 3)
	assert.Equal(t, "Smoke", labels[0].Label)
	assert.Equal(t, "Normal", labels[1].Kind)
	assert.Equal(t, 0.95, labels[2].Threshold)
}
