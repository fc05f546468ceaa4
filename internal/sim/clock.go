package sim

import (
	"sync"
	"time"
)

// Clock is advanced explicitly by the frame loop. World time stops while the
// world is paused; app time never does.
type Clock struct {
	mu          sync.Mutex
	app         float64
	world       float32
	worldPaused bool
}

// NewClock starts both clocks at start seconds.
func NewClock(start float64) *Clock {
	return &Clock{app: start, world: float32(start)}
}

func (c *Clock) Advance(dt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.app += dt.Seconds()
	if !c.worldPaused {
		c.world += float32(dt.Seconds())
	}
}

func (c *Clock) AppTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app
}

func (c *Clock) WorldTime() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world
}

func (c *Clock) SetWorldPaused(paused bool) {
	c.mu.Lock()
	c.worldPaused = paused
	c.mu.Unlock()
}
