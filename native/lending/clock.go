package lending

import (
	"sync"
	"time"
)

// Clock supplies the unix timestamp used for interest and due-date math.
type Clock interface {
	Now() uint64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

func (f ClockFunc) Now() uint64 { return f() }

// SystemClock reads wall time and never moves backwards.
type SystemClock struct {
	mu   sync.Mutex
	last uint64
}

func (c *SystemClock) Now() uint64 {
	now := uint64(time.Now().Unix())
	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}
