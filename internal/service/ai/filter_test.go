package ai

import (
	"testing"

	"firewatch/internal/config"
	"firewatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func solidFrame(v float64, rows, cols int) *model.Frame {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
	return &model.Frame{Mat: mat}
}

func filterConfig(skip int) *config.Config {
	return &config.Config{FrameSkip: skip, DarknessThreshold: 3, MotionThreshold: 100}
}

func TestChangeFilter_RejectsDarkFrames(t *testing.T) {
	filter := NewChangeFilter(filterConfig(1))
	defer filter.Close()

	dark := solidFrame(1, 32, 32)
	defer dark.Close()
	assert.Equal(t, Dark, filter.Accept(dark))

	// A dark frame never becomes the baseline, so the next bright one is not
	// compared against it.
	bright := solidFrame(200, 32, 32)
	defer bright.Close()
	assert.Equal(t, Accepted, filter.Accept(bright))
}

func TestChangeFilter_DarkWinsOverLargeDifference(t *testing.T) {
	filter := NewChangeFilter(filterConfig(1))
	defer filter.Close()

	bright := solidFrame(200, 32, 32)
	defer bright.Close()
	require.Equal(t, Accepted, filter.Accept(bright))

	// Every element differs from the baseline, yet the frame is too dark.
	dark := solidFrame(1, 32, 32)
	defer dark.Close()
	assert.Equal(t, Dark, filter.Accept(dark))

	// The baseline is still the bright frame.
	again := solidFrame(200, 32, 32)
	defer again.Close()
	assert.Equal(t, Duplicate, filter.Accept(again))
}

func TestChangeFilter_RejectsIdenticalFrames(t *testing.T) {
	filter := NewChangeFilter(filterConfig(1))
	defer filter.Close()

	first := solidFrame(120, 32, 32)
	defer first.Close()
	second := solidFrame(120, 32, 32)
	defer second.Close()

	assert.Equal(t, Accepted, filter.Accept(first))
	assert.Equal(t, Duplicate, filter.Accept(second))
	assert.Equal(t, Duplicate, filter.Accept(second))
}

func TestChangeFilter_SmallChangeBelowMotionFloor(t *testing.T) {
	filter := NewChangeFilter(filterConfig(1))
	defer filter.Close()

	base := solidFrame(120, 32, 32)
	defer base.Close()
	assert.Equal(t, Accepted, filter.Accept(base))

	// 3x3 pixels x 3 channels = 27 changed elements, under 100.
	changed := base.Mat.Clone()
	defer changed.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 9; c++ {
			changed.SetUCharAt(r, c, 10)
		}
	}
	assert.Equal(t, Duplicate, filter.Accept(&model.Frame{Mat: changed}))

	different := solidFrame(30, 32, 32)
	defer different.Close()
	assert.Equal(t, Accepted, filter.Accept(different))
}

func TestChangeFilter_SkipCountsEveryObservedFrame(t *testing.T) {
	filter := NewChangeFilter(filterConfig(5))
	defer filter.Close()

	var decisions []Decision
	for i := 1; i <= 10; i++ {
		frame := solidFrame(float64(20*i), 16, 16)
		decisions = append(decisions, filter.Accept(frame))
		frame.Close()
	}

	assert.Equal(t, Accepted, decisions[4])
	assert.Equal(t, Accepted, decisions[9])
	for i, d := range decisions {
		if i != 4 && i != 9 {
			assert.Equal(t, Skipped, d, "frame %d", i+1)
		}
	}
	assert.Equal(t, uint64(10), filter.Observed())
}

func TestChangeFilter_SkippedFrameBecomesBaseline(t *testing.T) {
	filter := NewChangeFilter(filterConfig(2))
	defer filter.Close()

	first := solidFrame(100, 16, 16)
	defer first.Close()
	assert.Equal(t, Skipped, filter.Accept(first))

	same := solidFrame(100, 16, 16)
	defer same.Close()
	assert.Equal(t, Duplicate, filter.Accept(same))
}

func TestChangeFilter_ResetsBaselineOnSizeChange(t *testing.T) {
	filter := NewChangeFilter(filterConfig(1))
	defer filter.Close()

	small := solidFrame(100, 16, 16)
	defer small.Close()
	large := solidFrame(100, 32, 32)
	defer large.Close()

	assert.Equal(t, Accepted, filter.Accept(small))
	assert.Equal(t, Accepted, filter.Accept(large))
}

func TestMeanIntensity(t *testing.T) {
	frame := solidFrame(90, 8, 8)
	defer frame.Close()
	assert.InDelta(t, 90.0, MeanIntensity(frame.Mat), 0.001)

	empty := gocv.NewMat()
	defer empty.Close()
	assert.Zero(t, MeanIntensity(empty))
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "dark", Dark.String())
	assert.Equal(t, "duplicate", Duplicate.String())
	assert.Equal(t, "skipped", Skipped.String())
}
