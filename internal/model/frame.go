package model

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is a decoded camera image. Whoever holds the pointer owns the Mat and
// must Close it once done; frames are never kept past one pipeline cycle.
type Frame struct {
	Mat        gocv.Mat
	Seq        uint64
	CapturedAt time.Time
}

// Close releases the underlying Mat. Safe to call on a nil frame.
func (f *Frame) Close() {
	if f == nil {
		return
	}
	f.Mat.Close()
}
