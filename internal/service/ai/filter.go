package ai

import (
	"firewatch/internal/config"
	"firewatch/internal/model"

	"gocv.io/x/gocv"
)

// Decision is the outcome of ChangeFilter.Accept.
type Decision int

const (
	Accepted Decision = iota
	Dark
	Duplicate
	Skipped
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Dark:
		return "dark"
	case Duplicate:
		return "duplicate"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// ChangeFilter drops frames that are too dark or nearly identical to the last
// informative frame, and lets only every Nth observed frame through to
// classification. It is owned by a single goroutine.
type ChangeFilter struct {
	darkness float64
	motion   int
	skip     uint64

	previous    gocv.Mat
	hasPrevious bool
	observed    uint64
}

func NewChangeFilter(cfg *config.Config) *ChangeFilter {
	skip := cfg.FrameSkip
	if skip < 1 {
		skip = 1
	}
	return &ChangeFilter{
		darkness: cfg.DarknessThreshold,
		motion:   cfg.MotionThreshold,
		skip:     uint64(skip),
	}
}

// Accept evaluates one frame. The skip counter advances on every call. A
// frame that passes the darkness and difference checks becomes the new
// baseline even when it is then skipped.
func (f *ChangeFilter) Accept(frame *model.Frame) Decision {
	f.observed++

	if MeanIntensity(frame.Mat) < f.darkness {
		return Dark
	}

	if f.hasPrevious && sameShape(f.previous, frame.Mat) {
		changed, ok := changedElements(f.previous, frame.Mat)
		if ok && changed < f.motion {
			return Duplicate
		}
	}

	if f.hasPrevious {
		f.previous.Close()
	}
	f.previous = frame.Mat.Clone()
	f.hasPrevious = true

	if f.observed%f.skip != 0 {
		return Skipped
	}
	return Accepted
}

// Observed returns how many frames Accept has seen.
func (f *ChangeFilter) Observed() uint64 {
	return f.observed
}

// Close releases the baseline frame.
func (f *ChangeFilter) Close() {
	if f.hasPrevious {
		f.previous.Close()
		f.hasPrevious = false
	}
}

// MeanIntensity averages all channels of all pixels.
func MeanIntensity(mat gocv.Mat) float64 {
	channels := mat.Channels()
	if mat.Empty() || channels == 0 {
		return 0
	}
	mean := mat.Mean()
	values := []float64{mean.Val1, mean.Val2, mean.Val3, mean.Val4}
	if channels > len(values) {
		channels = len(values)
	}
	sum := 0.0
	for _, v := range values[:channels] {
		sum += v
	}
	return sum / float64(channels)
}

// changedElements counts non-zero elements of |a-b| across all channels.
func changedElements(a, b gocv.Mat) (int, bool) {
	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.AbsDiff(a, b, &diff); err != nil {
		return 0, false
	}

	flat := diff.Reshape(1, 0)
	defer flat.Close()
	return gocv.CountNonZero(flat), true
}

func sameShape(a, b gocv.Mat) bool {
	return a.Rows() == b.Rows() && a.Cols() == b.Cols() && a.Type() == b.Type()
}
