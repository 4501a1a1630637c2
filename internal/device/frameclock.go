package device

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TickClock is a FrameClock that fires requested callbacks after one
// frame interval of clk.
type TickClock struct {
	clk      clock.Clock
	interval time.Duration

	mu      sync.Mutex
	next    FrameID
	pending map[FrameID]*clock.Timer
}

func NewTickClock(clk clock.Clock, fps int) *TickClock {
	if fps <= 0 {
		fps = 60
	}
	return &TickClock{
		clk:      clk,
		interval: time.Second / time.Duration(fps),
		pending:  make(map[FrameID]*clock.Timer),
	}
}

func (c *TickClock) RequestFrame(fn func()) FrameID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	c.pending[id] = c.clk.AfterFunc(c.interval, func() {
		c.mu.Lock()
		_, live := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if live {
			fn()
		}
	})
	return id
}

func (c *TickClock) CancelFrame(id FrameID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.pending[id]; ok {
		t.Stop()
		delete(c.pending, id)
	}
}

// Pending reports how many frame requests are outstanding.
func (c *TickClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
