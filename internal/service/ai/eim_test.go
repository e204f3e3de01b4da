package ai

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"testing"
	"time"

	"firewatch/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The test binary doubles as a fake model runner: StartEIM executes it with
// the socket path as its only argument.
func TestMain(m *testing.M) {
	if os.Getenv("FIREWATCH_FAKE_EIM") == "1" && len(os.Args) == 2 {
		serveFakeRunner(os.Args[1])
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func serveFakeRunner(socketPath string) {
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		os.Exit(1)
	}
	defer listener.Close()

	conn, err := listener.Accept()
	if err != nil {
		os.Exit(1)
	}
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	for {
		var req map[string]any
		if err := decoder.Decode(&req); err != nil {
			return
		}

		resp := map[string]any{"id": req["id"], "success": true}
		features, _ := req["classify"].([]any)
		switch {
		case len(features) == 1 && features[0].(float64) < 0:
			// Stay silent to simulate a hung model.
			continue
		case req["hello"] != nil:
			resp["model_parameters"] = map[string]any{"labels": []string{"Normal_Fire", "Wild_Fire"}}
		case len(features) > 0:
			mean := 0.0
			for _, f := range features {
				mean += f.(float64)
			}
			mean /= float64(len(features))
			resp["result"] = map[string]any{"classification": map[string]float64{
				"Normal_Fire": 0.01,
				"Wild_Fire":   mean / 255,
			}}
		default:
			resp = map[string]any{"id": req["id"], "success": false, "error": "empty features"}
		}

		payload, _ := json.Marshal(resp)
		conn.Write(append(payload, 0))
	}
}

func startFakeRunner(t *testing.T) *EIMRunner {
	t.Helper()
	t.Setenv("FIREWATCH_FAKE_EIM", "1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runner, err := StartEIM(ctx, os.Args[0], logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { runner.Close() })
	return runner
}

func TestEIMRunner_HandshakeReadsLabels(t *testing.T) {
	runner := startFakeRunner(t)
	assert.Equal(t, []string{"Normal_Fire", "Wild_Fire"}, runner.Labels())
}

func TestEIMRunner_Classify(t *testing.T) {
	runner := startFakeRunner(t)

	scores, err := runner.Classify(context.Background(), []float64{255, 255, 255, 255})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scores["Wild_Fire"], 1e-9)
	assert.InDelta(t, 0.01, scores["Normal_Fire"], 1e-9)
}

func TestEIMRunner_ReportsRunnerErrors(t *testing.T) {
	runner := startFakeRunner(t)

	_, err := runner.Classify(context.Background(), nil)
	assert.ErrorContains(t, err, "empty features")

	// The connection stays usable after an error response.
	scores, err := runner.Classify(context.Background(), []float64{0, 0})
	require.NoError(t, err)
	assert.Zero(t, scores["Wild_Fire"])
}

func TestEIMRunner_CancelUnblocksSilentRunner(t *testing.T) {
	runner := startFakeRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := runner.Classify(ctx, []float64{-1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The next request still gets its own answer.
	scores, err := runner.Classify(context.Background(), []float64{255, 255})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scores["Wild_Fire"], 1e-9)
}

func TestStartEIM_MissingModel(t *testing.T) {
	_, err := StartEIM(context.Background(), "/nonexistent/model.eim", logger.NewNop())
	assert.Error(t, err)
}
