package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/logger"
	"firewatch/internal/model"

	"gocv.io/x/gocv"
)

// ErrStreamOpen is returned when the stream cannot be opened at startup.
var ErrStreamOpen = errors.New("failed to open stream")

// stopTimeout bounds how long Stop waits for an in-flight Read to return.
// The capture is only released by the acquisition goroutine itself.
const stopTimeout = 5 * time.Second

// Capture is a blocking frame reader. *gocv.VideoCapture satisfies it.
type Capture interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Open opens the configured stream. "udp://host:port" listens for JPEG frames
// pushed over UDP; anything else goes to OpenCV (URL, file or device id).
func Open(source string) (Capture, error) {
	if addr, ok := strings.CutPrefix(source, "udp://"); ok {
		capture, err := ListenUDP(addr)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrStreamOpen, source, err)
		}
		return capture, nil
	}

	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrStreamOpen, source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w %s: capture not opened", ErrStreamOpen, source)
	}
	// Keep only the newest frame in OpenCV's own buffer.
	capture.Set(gocv.VideoCaptureBufferSize, 1)
	return capture, nil
}

// Source runs the acquisition loop and exposes the newest frame.
type Source struct {
	capture     Capture
	retryDelay  time.Duration
	stopTimeout time.Duration
	logger      *logger.Logger

	slot   mailbox
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}

	framesRead   atomic.Uint64
	readFailures atomic.Uint64
}

// NewSource wraps an opened capture. Call Start to begin acquisition.
func NewSource(capture Capture, cfg *config.Config, logger *logger.Logger) *Source {
	return &Source{
		capture:     capture,
		retryDelay:  cfg.ReadRetryDelay,
		stopTimeout: stopTimeout,
		logger:      logger,
	}
}

// Start launches the acquisition goroutine. It stops when ctx is cancelled or
// Stop is called.
func (s *Source) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	s.logger.Info("📹 Frame acquisition started")
}

// Stop signals the acquisition goroutine and waits for it. The goroutine
// releases the capture on exit, so a Read stuck past stopTimeout keeps the
// handle alive until it returns.
func (s *Source) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()

	select {
	case <-s.done:
	case <-time.After(s.stopTimeout):
		s.logger.Warning("Frame acquisition did not stop within %v, capture is released when the read returns", s.stopTimeout)
	}

	s.slot.close()
	s.logger.Info("🛑 Frame acquisition stopped (read=%d failures=%d dropped=%d)",
		s.framesRead.Load(), s.readFailures.Load(), s.slot.dropped.Load())
}

// Latest hands the newest frame to the caller, who then owns it. It returns
// false when no frame arrived since the previous call.
func (s *Source) Latest() (*model.Frame, bool) {
	f := s.slot.take()
	return f, f != nil
}

// Stats returns counters for the status endpoint.
func (s *Source) Stats() (read, failures, dropped uint64) {
	return s.framesRead.Load(), s.readFailures.Load(), s.slot.dropped.Load()
}

func (s *Source) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if err := s.capture.Close(); err != nil {
			s.logger.Error("Error closing capture: %v", err)
		}
	}()

	failing := false
	for {
		if ctx.Err() != nil {
			return
		}

		mat := gocv.NewMat()
		if ok := s.capture.Read(&mat); !ok || mat.Empty() {
			mat.Close()
			s.readFailures.Add(1)
			if !failing {
				s.logger.Warning("Frame read failed, retrying every %v", s.retryDelay)
				failing = true
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}

		if failing {
			s.logger.Info("Frame reads recovered")
			failing = false
		}

		s.seq++
		s.framesRead.Add(1)
		s.slot.put(&model.Frame{Mat: mat, Seq: s.seq, CapturedAt: time.Now()})
	}
}
