package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/logger"
	"firewatch/internal/model"
)

// ErrSensorUnavailable is returned when the reader cannot be started or exits
// before producing a single valid reading.
var ErrSensorUnavailable = errors.New("gas sensor unavailable")

// reapTimeout bounds the wait for the process after SIGKILL.
const reapTimeout = 2 * time.Second

// Supervisor runs the gas reader for one confirmation window at a time.
type Supervisor struct {
	command   []string
	threshold int
	window    time.Duration
	poll      time.Duration
	grace     time.Duration
	logger    *logger.Logger

	mu sync.Mutex
}

func NewSupervisor(cfg *config.Config, logger *logger.Logger) *Supervisor {
	return &Supervisor{
		command:   cfg.SensorCommand,
		threshold: cfg.GasThreshold,
		window:    cfg.ConfirmWindow,
		poll:      cfg.ConfirmPollInterval,
		grace:     cfg.ConfirmGracePeriod,
		logger:    logger,
	}
}

// Confirm starts the reader and waits up to the confirmation window for a
// reading strictly above the threshold. It returns the first such reading, or
// nil with a nil error when the window ends without one. The reader is always
// torn down before Confirm returns.
func (s *Supervisor) Confirm(ctx context.Context, verdict model.HazardVerdict) (*model.SensorReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.command) == 0 {
		return nil, fmt.Errorf("%w: no reader command configured", ErrSensorUnavailable)
	}

	cmd := exec.Command(s.command[0], s.command[1:]...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create stdout pipe: %w", ErrSensorUnavailable, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create stderr pipe: %w", ErrSensorUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start reader: %w", ErrSensorUnavailable, err)
	}

	s.logger.Info("🔥 %s fire detected, verifying with gas sensor for %v (pid %d)", verdict, s.window, cmd.Process.Pid)

	lines := make(chan string, 64)
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		scanLines(stdout, lines)
	}()
	go func() {
		defer readers.Done()
		s.logStderr(stderr)
	}()

	// Wait must not run before the pipes are fully read.
	exited := make(chan error, 1)
	go func() {
		readers.Wait()
		exited <- cmd.Wait()
	}()
	defer s.teardown(cmd, exited)
	// Keep the scanner unblocked so the pipes reach EOF after teardown.
	defer func() {
		go func() {
			for range lines {
			}
		}()
	}()

	return s.watch(ctx, lines)
}

func (s *Supervisor) watch(ctx context.Context, lines <-chan string) (*model.SensorReading, error) {
	windowCtx, cancel := context.WithTimeout(ctx, s.window)
	defer cancel()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	readings := 0
	for {
		select {
		case <-windowCtx.Done():
			return s.windowClosed(ctx, readings)
		case <-ticker.C:
		}

	drain:
		for {
			// A reader that floods output must not outlive the window.
			if windowCtx.Err() != nil {
				return s.windowClosed(ctx, readings)
			}
			select {
			case line, ok := <-lines:
				if !ok {
					if readings == 0 {
						return nil, fmt.Errorf("%w: reader exited without a reading", ErrSensorUnavailable)
					}
					s.logger.Warning("Gas reader exited after %d readings below threshold", readings)
					return nil, nil
				}
				value, ok := parseReading(line)
				if !ok {
					s.logger.Debug("Ignoring gas reader output %q", line)
					continue
				}
				readings++
				s.logger.Info("Gas value: %d", value)
				if value > s.threshold {
					s.logger.Info("✅ Gas level %d is above %d, hazard confirmed", value, s.threshold)
					return &model.SensorReading{Value: value, ReadAt: time.Now()}, nil
				}
			default:
				break drain
			}
		}
	}
}

func (s *Supervisor) windowClosed(ctx context.Context, readings int) (*model.SensorReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Info("Gas levels stayed at or below %d for %v (%d readings)", s.threshold, s.window, readings)
	return nil, nil
}

// teardown asks the reader group to exit, then kills it after the grace period.
func (s *Supervisor) teardown(cmd *exec.Cmd, exited <-chan error) {
	select {
	case <-exited:
		return
	default:
	}

	if err := terminate(cmd); err != nil {
		s.logger.Debug("Failed to signal gas reader: %v", err)
	}

	select {
	case <-exited:
		return
	case <-time.After(s.grace):
	}

	s.logger.Warning("Gas reader ignored termination for %v, killing it", s.grace)
	if err := kill(cmd); err != nil {
		s.logger.Error("Failed to kill gas reader: %v", err)
	}
	select {
	case <-exited:
	case <-time.After(reapTimeout):
		s.logger.Error("Gas reader pid %d did not exit after kill", cmd.Process.Pid)
	}
}

func (s *Supervisor) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			s.logger.Warning("Gas reader: %s", line)
		}
	}
}

// scanLines forwards stdout lines and closes out at EOF.
func scanLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// parseReading accepts a line that trims to a non-negative decimal integer.
func parseReading(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}
	for _, r := range line {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	value, err := strconv.Atoi(line)
	if err != nil {
		return 0, false
	}
	return value, true
}
