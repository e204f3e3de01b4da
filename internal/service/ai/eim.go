package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"firewatch/internal/logger"
	"firewatch/internal/model"
)

const (
	eimStartTimeout = 10 * time.Second
	eimPollInterval = 100 * time.Millisecond
)

type eimRequest struct {
	ID       int       `json:"id"`
	Hello    int       `json:"hello,omitempty"`
	Classify []float64 `json:"classify,omitempty"`
}

type eimResponse struct {
	ID              int    `json:"id"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	ModelParameters *struct {
		Labels []string `json:"labels"`
	} `json:"model_parameters,omitempty"`
	Result *struct {
		Classification map[string]float64 `json:"classification"`
	} `json:"result,omitempty"`
}

// EIMRunner drives an Edge Impulse Linux model executable. The executable is
// started with a unix socket path and answers NUL-terminated JSON messages.
type EIMRunner struct {
	cmd    *exec.Cmd
	conn   net.Conn
	reader *bufio.Reader
	tmpDir string
	labels []string
	logger *logger.Logger

	mu     sync.Mutex
	nextID int
}

// StartEIM launches the model executable and performs the hello handshake.
func StartEIM(ctx context.Context, modelPath string, logger *logger.Logger) (*EIMRunner, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", modelPath, err)
	}
	absPath, err := filepath.Abs(modelPath)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "firewatch-eim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "runner.sock")

	cmd := exec.Command(absPath, socketPath)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start model runner: %w", err)
	}

	r := &EIMRunner{cmd: cmd, tmpDir: tmpDir, logger: logger}

	conn, err := dialWhenReady(ctx, socketPath, eimStartTimeout)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.conn = conn
	r.reader = bufio.NewReader(conn)

	resp, err := r.roundTrip(ctx, eimRequest{Hello: 1})
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("model handshake failed: %w", err)
	}
	if resp.ModelParameters != nil {
		r.labels = resp.ModelParameters.Labels
	}

	logger.Info("🧠 Model runner started: %s (labels: %v)", modelPath, r.labels)
	return r, nil
}

// dialWhenReady polls for the runner's socket until it accepts a connection.
func dialWhenReady(ctx context.Context, socketPath string, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	for {
		if _, err := os.Stat(socketPath); err == nil {
			conn, err := dialer.DialContext(ctx, "unix", socketPath)
			if err == nil {
				return conn, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("model runner socket %s not ready: %w", socketPath, ctx.Err())
		case <-time.After(eimPollInterval):
		}
	}
}

func (r *EIMRunner) Labels() []string {
	return r.labels
}

// Classify sends one feature vector and returns the per-label scores.
func (r *EIMRunner) Classify(ctx context.Context, features []float64) (model.Scores, error) {
	resp, err := r.roundTrip(ctx, eimRequest{Classify: features})
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, nil
	}
	return model.Scores(resp.Result.Classification), nil
}

func (r *EIMRunner) roundTrip(ctx context.Context, req eimRequest) (*eimResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	req.ID = r.nextID

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		r.conn.SetDeadline(deadline)
	} else {
		r.conn.SetDeadline(time.Time{})
	}
	// Cancellation unblocks a runner that is alive but not answering.
	stop := context.AfterFunc(ctx, func() {
		r.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := r.conn.Write(payload); err != nil {
		return nil, r.ioError(ctx, "write to", err)
	}

	for {
		raw, err := r.reader.ReadBytes(0)
		if err != nil {
			return nil, r.ioError(ctx, "read from", err)
		}
		raw = bytes.TrimSuffix(raw, []byte{0})

		var resp eimResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("malformed model runner response: %w", err)
		}
		// Late answers to requests that were cancelled earlier.
		if resp.ID != req.ID {
			r.logger.Debug("Discarding stale model runner response %d (want %d)", resp.ID, req.ID)
			continue
		}
		if !resp.Success {
			if resp.Error == "" {
				resp.Error = "unknown error"
			}
			return nil, errors.New(resp.Error)
		}
		return &resp, nil
	}
}

func (r *EIMRunner) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("failed to %s model runner: %w", op, ctxErr)
	}
	return fmt.Errorf("failed to %s model runner: %w", op, err)
}

// Close stops the runner process and removes its socket.
func (r *EIMRunner) Close() error {
	if r.conn != nil {
		r.conn.Close()
	}
	if r.cmd != nil && r.cmd.Process != nil {
		r.cmd.Process.Kill()
		r.cmd.Wait()
	}
	return os.RemoveAll(r.tmpDir)
}
