package streaming

import "time"

// MemoryStats is a snapshot of graphics memory as reported by the GPU pool.
type MemoryStats struct {
	TotalGraphicsMemory int64
	AllocatedMemorySize int64
	// TexturePoolSize is the pool the GPU reports, 0 or less when unlimited.
	TexturePoolSize int64
}

// GPUPool is the graphics memory the streamed mips live in.
type GPUPool interface {
	MemoryStats() MemoryStats
	// Flush blocks until pending resource releases have been processed.
	Flush()
}

// Clock supplies the app time used for render recency and the world time
// used for visibility.
type Clock interface {
	// AppTime is monotonic seconds, the same base assets report render times in.
	AppTime() float64
	// WorldTime is the game world time in seconds.
	WorldTime() float32
}

// SystemClock measures both times from its creation.
type SystemClock struct{ start time.Time }

func NewSystemClock() *SystemClock { return &SystemClock{start: time.Now()} }

func (c *SystemClock) AppTime() float64   { return time.Since(c.start).Seconds() }
func (c *SystemClock) WorldTime() float32 { return float32(time.Since(c.start).Seconds()) }

// unlimitedPool reports no limit; used when no GPU pool is configured.
type unlimitedPool struct{}

func (unlimitedPool) MemoryStats() MemoryStats { return MemoryStats{} }
func (unlimitedPool) Flush()                   {}
