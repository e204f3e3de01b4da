package ai

import (
	"context"
	"errors"
	"fmt"
	"image"

	"firewatch/internal/config"
	"firewatch/internal/logger"
	"firewatch/internal/model"

	"gocv.io/x/gocv"
)

var (
	// ErrClassification wraps any engine failure during Classify.
	ErrClassification = errors.New("classification failed")
	// ErrNoResult is returned when the engine produced no scores.
	ErrNoResult = errors.New("classification produced no result")
)

// Engine runs a loaded image model on a flattened feature vector.
type Engine interface {
	Labels() []string
	Classify(ctx context.Context, features []float64) (model.Scores, error)
	Close() error
}

// FrameSaver receives the resized colour frame of every classified cycle. The
// saver must copy what it keeps; the Mat is closed after Save returns.
type FrameSaver interface {
	Save(mat gocv.Mat, seq uint64)
}

// Classifier preprocesses frames and maps engine scores to a verdict.
type Classifier struct {
	engine  Engine
	size    image.Point
	hazards []config.LabelThreshold
	saver   FrameSaver
	logger  *logger.Logger
}

func NewClassifier(engine Engine, cfg *config.Config, logger *logger.Logger) *Classifier {
	return &Classifier{
		engine:  engine,
		size:    image.Pt(cfg.ResizeWidth, cfg.ResizeHeight),
		hazards: cfg.HazardLabels,
		logger:  logger,
	}
}

// SetFrameSaver enables saving of preprocessed frames.
func (c *Classifier) SetFrameSaver(saver FrameSaver) {
	c.saver = saver
}

// Classify runs one frame through the engine.
func (c *Classifier) Classify(ctx context.Context, frame *model.Frame) (model.Scores, error) {
	resized, gray, err := c.prepare(frame.Mat)
	defer resized.Close()
	defer gray.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassification, err)
	}

	if c.saver != nil {
		c.saver.Save(resized, frame.Seq)
	}

	scores, err := c.engine.Classify(ctx, Flatten(gray))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassification, err)
	}
	if len(scores) == 0 {
		return nil, ErrNoResult
	}
	return scores, nil
}

// Preprocess resizes to the model input size and converts to single channel
// grayscale. The caller closes the returned Mat.
func (c *Classifier) Preprocess(src gocv.Mat) (gocv.Mat, error) {
	resized, gray, err := c.prepare(src)
	resized.Close()
	return gray, err
}

// prepare returns the resized frame in its original colour space and its
// grayscale version. Both Mats are valid even on error.
func (c *Classifier) prepare(src gocv.Mat) (gocv.Mat, gocv.Mat, error) {
	resized := gocv.NewMat()
	gray := gocv.NewMat()
	if src.Empty() {
		return resized, gray, errors.New("empty frame")
	}

	if err := gocv.Resize(src, &resized, c.size, 0, 0, gocv.InterpolationLinear); err != nil {
		return resized, gray, fmt.Errorf("failed to resize image: %w", err)
	}

	switch resized.Channels() {
	case 1:
		if err := resized.CopyTo(&gray); err != nil {
			return resized, gray, fmt.Errorf("failed to copy image: %w", err)
		}
	case 4:
		if err := gocv.CvtColor(resized, &gray, gocv.ColorBGRAToGray); err != nil {
			return resized, gray, fmt.Errorf("failed to convert image to grayscale: %w", err)
		}
	default:
		if err := gocv.CvtColor(resized, &gray, gocv.ColorBGRToGray); err != nil {
			return resized, gray, fmt.Errorf("failed to convert image to grayscale: %w", err)
		}
	}
	return resized, gray, nil
}

// Verdict walks the hazard labels in priority order and returns the first one
// whose score is strictly above its threshold.
func (c *Classifier) Verdict(scores model.Scores) model.HazardVerdict {
	return Verdict(c.hazards, scores)
}

func Verdict(hazards []config.LabelThreshold, scores model.Scores) model.HazardVerdict {
	for _, h := range hazards {
		score, ok := scores[h.Label]
		if ok && score > h.Threshold {
			return model.HazardVerdict{Kind: h.Kind, Label: h.Label, Score: score}
		}
	}
	return model.NoHazard
}

// Flatten returns the raw 0-255 intensities of an 8-bit Mat in row-major order.
func Flatten(mat gocv.Mat) []float64 {
	data := mat.ToBytes()
	features := make([]float64, len(data))
	for i, b := range data {
		features[i] = float64(b)
	}
	return features
}

// Close releases the engine.
func (c *Classifier) Close() error {
	return c.engine.Close()
}
