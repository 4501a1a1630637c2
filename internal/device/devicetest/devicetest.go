// Package devicetest provides deterministic device doubles for tests.
package devicetest

import (
	"sync"

	"github.com/campusquest/companion/internal/device"
)

// Frames is a device.FrameClock that only fires when told to.
type Frames struct {
	mu      sync.Mutex
	next    device.FrameID
	pending map[device.FrameID]func()
}

func NewFrames() *Frames {
	return &Frames{pending: make(map[device.FrameID]func())}
}

func (f *Frames) RequestFrame(fn func()) device.FrameID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.pending[f.next] = fn
	return f.next
}

func (f *Frames) CancelFrame(id device.FrameID) {
	f.mu.Lock()
	delete(f.pending, id)
	f.mu.Unlock()
}

// Fire runs every pending callback once and reports how many ran.
func (f *Frames) Fire() int {
	f.mu.Lock()
	fns := f.pending
	f.pending = make(map[device.FrameID]func())
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Pending reports outstanding frame requests.
func (f *Frames) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
