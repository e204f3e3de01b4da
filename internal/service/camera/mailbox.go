package camera

import (
	"sync"
	"sync/atomic"

	"firewatch/internal/model"
)

// mailbox is a single-slot buffer between the acquisition goroutine and the
// pipeline. put overwrites, take moves the frame out. The lock is held only
// for the pointer swap; frames replaced before being taken are closed outside
// the lock.
type mailbox struct {
	mu     sync.Mutex
	frame  *model.Frame
	closed bool

	dropped atomic.Uint64
}

func (m *mailbox) put(f *model.Frame) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		f.Close()
		return
	}
	old := m.frame
	m.frame = f
	m.mu.Unlock()

	if old != nil {
		m.dropped.Add(1)
		old.Close()
	}
}

// take transfers ownership of the newest frame to the caller.
func (m *mailbox) take() *model.Frame {
	m.mu.Lock()
	f := m.frame
	m.frame = nil
	m.mu.Unlock()
	return f
}

// close drops the pending frame and makes further puts no-ops.
func (m *mailbox) close() {
	m.mu.Lock()
	f := m.frame
	m.frame = nil
	m.closed = true
	m.mu.Unlock()
	f.Close()
}
