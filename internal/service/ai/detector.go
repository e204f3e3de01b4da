package ai

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"firewatch/internal/logger"
	"firewatch/internal/model"

	"gocv.io/x/gocv"
)

// DNNEngine runs an OpenCV-readable classification network (ONNX, TFLite,
// Caffe, ...) with one output per label.
type DNNEngine struct {
	net    gocv.Net
	labels []string
	size   image.Point
	scale  float64
	logger *logger.Logger
	mu     sync.Mutex
}

// NewDNNEngine loads the network and its labels file. The input is a single
// channel image of size w x h; features are multiplied by scale before the
// forward pass.
func NewDNNEngine(modelPath, configPath, labelsPath string, w, h int, scale float64, logger *logger.Logger) (*DNNEngine, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	}

	labels, err := readLabels(labelsPath)
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, errors.New("failed to load network")
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, errors.New("failed to set preferable backend or target")
	}

	if scale == 0 {
		scale = 1
	}
	logger.Info("🧠 Detection network initialized: %s (%d labels)", modelPath, len(labels))
	return &DNNEngine{
		net:    net,
		labels: labels,
		size:   image.Pt(w, h),
		scale:  scale,
		logger: logger,
	}, nil
}

func readLabels(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer file.Close()

	var labels []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if label := strings.TrimSpace(scanner.Text()); label != "" {
			labels = append(labels, label)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

func (e *DNNEngine) Labels() []string {
	return e.labels
}

// Classify rebuilds the image from the feature vector and runs a forward pass.
func (e *DNNEngine) Classify(ctx context.Context, features []float64) (model.Scores, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(features) != e.size.X*e.size.Y {
		return nil, fmt.Errorf("expected %d features, got %d", e.size.X*e.size.Y, len(features))
	}

	input := gocv.NewMatWithSize(e.size.Y, e.size.X, gocv.MatTypeCV32F)
	defer input.Close()
	for i, v := range features {
		input.SetFloatAt(i/e.size.X, i%e.size.X, float32(v))
	}

	blob := gocv.BlobFromImage(input, e.scale, e.size, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.mu.Lock()
	e.net.SetInput(blob, "")
	output := e.net.Forward("")
	e.mu.Unlock()
	defer output.Close()

	flat := output.Reshape(1, 1)
	defer flat.Close()
	if flat.Cols() < len(e.labels) {
		return nil, fmt.Errorf("network produced %d outputs for %d labels", flat.Cols(), len(e.labels))
	}

	scores := make(model.Scores, len(e.labels))
	for i, label := range e.labels {
		scores[label] = float64(flat.GetFloatAt(0, i))
	}
	return scores, nil
}

func (e *DNNEngine) Close() error {
	return e.net.Close()
}
