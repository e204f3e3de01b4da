package sensor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/logger"
	"firewatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wildFire = model.HazardVerdict{Kind: "Wild", Label: "Wild_Fire", Score: 0.95}

func newTestSupervisor(script string, window time.Duration) *Supervisor {
	cfg := &config.Config{
		SensorCommand:       []string{"sh", "-c", script},
		GasThreshold:        60,
		ConfirmWindow:       window,
		ConfirmPollInterval: 20 * time.Millisecond,
		ConfirmGracePeriod:  200 * time.Millisecond,
	}
	return NewSupervisor(cfg, logger.NewNop())
}

func TestConfirm_ConfirmsOnFirstHighReading(t *testing.T) {
	supervisor := newTestSupervisor("echo 40; sleep 0.05; echo 75; sleep 30", 5*time.Second)

	start := time.Now()
	reading, err := supervisor.Confirm(context.Background(), wildFire)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, reading)
	assert.Equal(t, 75, reading.Value)
	assert.Less(t, elapsed, 2*time.Second, "confirmation must not wait for the window")
}

func TestConfirm_ThresholdIsExclusive(t *testing.T) {
	supervisor := newTestSupervisor("echo 60; echo 60; sleep 30", 300*time.Millisecond)

	reading, err := supervisor.Confirm(context.Background(), wildFire)
	require.NoError(t, err)
	assert.Nil(t, reading)
}

func TestConfirm_JustAboveThreshold(t *testing.T) {
	supervisor := newTestSupervisor("echo 61; sleep 30", 5*time.Second)

	reading, err := supervisor.Confirm(context.Background(), wildFire)
	require.NoError(t, err)
	require.NotNil(t, reading)
	assert.Equal(t, 61, reading.Value)
}

func TestConfirm_ReturnsWithinWindow(t *testing.T) {
	window := 300 * time.Millisecond
	supervisor := newTestSupervisor("while true; do echo 10; sleep 0.02; done", window)

	start := time.Now()
	reading, err := supervisor.Confirm(context.Background(), wildFire)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, reading)
	assert.GreaterOrEqual(t, elapsed, window)
	// window + one poll interval + teardown of a cooperative reader
	assert.Less(t, elapsed, window+supervisor.poll+supervisor.grace+500*time.Millisecond)
}

func TestWatch_FloodingReaderStillBoundedByWindow(t *testing.T) {
	supervisor := newTestSupervisor("true", 100*time.Millisecond)

	lines := make(chan string, 64)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case lines <- "10":
			case <-stop:
				return
			}
		}
	}()

	start := time.Now()
	reading, err := supervisor.watch(context.Background(), lines)
	require.NoError(t, err)
	assert.Nil(t, reading)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConfirm_IgnoresMalformedLines(t *testing.T) {
	supervisor := newTestSupervisor(`echo abc; echo -5; echo 12.5; echo ""; echo "  80  "; sleep 30`, 5*time.Second)

	reading, err := supervisor.Confirm(context.Background(), wildFire)
	require.NoError(t, err)
	require.NotNil(t, reading)
	assert.Equal(t, 80, reading.Value)
}

func TestConfirm_KillsReaderIgnoringTerm(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "reader.pid")
	script := "trap '' TERM; echo $$ > " + pidFile + "; while true; do echo 5; sleep 0.02; done"
	supervisor := newTestSupervisor(script, 200*time.Millisecond)

	start := time.Now()
	reading, err := supervisor.Confirm(context.Background(), wildFire)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, reading)
	assert.GreaterOrEqual(t, elapsed, supervisor.window+supervisor.grace)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestConfirm_ReaderCannotStart(t *testing.T) {
	supervisor := newTestSupervisor("", time.Second)
	supervisor.command = []string{"/nonexistent/read_gas_value"}

	reading, err := supervisor.Confirm(context.Background(), wildFire)
	assert.Nil(t, reading)
	assert.ErrorIs(t, err, ErrSensorUnavailable)
}

func TestConfirm_ReaderExitsWithoutReading(t *testing.T) {
	supervisor := newTestSupervisor("echo 'sensor not found' >&2; echo garbage; exit 1", 5*time.Second)

	start := time.Now()
	reading, err := supervisor.Confirm(context.Background(), wildFire)

	assert.Nil(t, reading)
	assert.ErrorIs(t, err, ErrSensorUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConfirm_ReaderExitsAfterLowReadings(t *testing.T) {
	supervisor := newTestSupervisor("echo 12; echo 20", 5*time.Second)

	reading, err := supervisor.Confirm(context.Background(), wildFire)
	require.NoError(t, err)
	assert.Nil(t, reading)
}

func TestConfirm_StopsOnContextCancel(t *testing.T) {
	supervisor := newTestSupervisor("while true; do echo 1; sleep 0.02; done", 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := supervisor.Confirm(ctx, wildFire)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestParseReading(t *testing.T) {
	tests := []struct {
		line  string
		value int
		ok    bool
	}{
		{"75", 75, true},
		{" 0 \r", 0, true},
		{"", 0, false},
		{"-3", 0, false},
		{"+3", 0, false},
		{"4.2", 0, false},
		{"Gas: 70", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tt := range tests {
		value, ok := parseReading(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.value, value, tt.line)
	}
}
