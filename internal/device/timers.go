package device

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Timers hands out one-shot timers on clk and counts the ones still armed,
// so callers and tests can check that every exit path cleared its timer.
type Timers struct {
	clk clock.Clock

	mu   sync.Mutex
	live int
}

func NewTimers(clk clock.Clock) *Timers {
	if clk == nil {
		clk = clock.New()
	}
	return &Timers{clk: clk}
}

func (t *Timers) Now() time.Time {
	return t.clk.Now()
}

// AfterFunc arms a timer running fn after d. The returned stop function
// disarms it; calling it after the timer fired is a no-op.
func (t *Timers) AfterFunc(d time.Duration, fn func()) (stop func()) {
	var once sync.Once
	release := func() {
		once.Do(func() {
			t.mu.Lock()
			t.live--
			t.mu.Unlock()
		})
	}

	t.mu.Lock()
	t.live++
	t.mu.Unlock()

	timer := t.clk.AfterFunc(d, func() {
		release()
		fn()
	})
	return func() {
		timer.Stop()
		release()
	}
}

// Pending reports armed timers.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}
