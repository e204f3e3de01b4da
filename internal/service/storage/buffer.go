package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/logger"

	"gocv.io/x/gocv"
)

const timestampLayout = "2006-01-02_15-04_05.000"

type bufferedImage struct {
	Timestamp string
	Seq       uint64
	Data      []byte
}

// BufferService keeps the classified frames in memory and periodically
// flushes them to disk as JPEG files.
type BufferService struct {
	imagesDir string
	limit     int
	images    []bufferedImage
	mu        sync.Mutex
	logger    *logger.Logger
}

func NewBufferService(cfg *config.Config, logger *logger.Logger) *BufferService {
	limit := cfg.FrameBufferLimit
	if limit < 1 {
		limit = 1
	}
	return &BufferService{
		imagesDir: cfg.FrameDirectory,
		limit:     limit,
		images:    make([]bufferedImage, 0, limit),
		logger:    logger,
	}
}

// Run flushes the buffer every interval and once more when ctx is cancelled.
func (s *BufferService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushImages()
			return
		case <-ticker.C:
			s.FlushImages()
		}
	}
}

// Save encodes mat as JPEG and buffers it. Frames past the buffer limit are
// dropped until the next flush.
func (s *BufferService) Save(mat gocv.Mat, seq uint64) {
	if mat.Empty() {
		return
	}

	s.mu.Lock()
	full := len(s.images) >= s.limit
	s.mu.Unlock()
	if full {
		return
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		s.logger.Error("Failed to encode frame %d: %v", seq, err)
		return
	}
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	buf.Close()

	s.AddImage(data, seq)
}

// AddImage appends encoded image bytes to the buffer.
func (s *BufferService) AddImage(data []byte, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.images) >= s.limit {
		return
	}
	s.images = append(s.images, bufferedImage{
		Timestamp: time.Now().Format(timestampLayout),
		Seq:       seq,
		Data:      data,
	})
	s.logger.Debug("Frame buffer size: %d/%d", len(s.images), s.limit)
}

// Len returns the number of buffered images.
func (s *BufferService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// FlushImages writes buffered images to disk and resets the buffer.
func (s *BufferService) FlushImages() int {
	s.mu.Lock()
	images := s.images
	s.images = make([]bufferedImage, 0, s.limit)
	s.mu.Unlock()

	if len(images) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	savedCount := 0
	for _, image := range images {
		filename := fmt.Sprintf("%s_frame_%d.jpg", image.Timestamp, image.Seq)
		if err := os.WriteFile(filepath.Join(s.imagesDir, filename), image.Data, 0644); err != nil {
			s.logger.Error("Error saving image %s: %v", filename, err)
			continue
		}
		savedCount++
	}

	s.logger.Info("Flushed %d frames to disk", savedCount)
	return savedCount
}
