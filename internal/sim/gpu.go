package sim

import (
	"sync"

	"texstream/internal/streaming"
)

// GPU accounts the memory of the textures created through it plus a fixed
// amount of non-streaming allocations.
type GPU struct {
	mu           sync.Mutex
	totalMemory  int64
	poolSize     int64
	nonStreaming int64
	textures     []*Texture
	flushes      int
}

// NewGPU returns a pool of poolSize bytes (0: unlimited) on a card with
// totalMemory bytes.
func NewGPU(totalMemory, poolSize int64) *GPU {
	return &GPU{totalMemory: totalMemory, poolSize: poolSize}
}

// SetPoolSize resizes the texture pool; the streamer picks it up next cycle.
func (g *GPU) SetPoolSize(bytes int64) {
	g.mu.Lock()
	g.poolSize = bytes
	g.mu.Unlock()
}

// SetNonStreaming sets the bytes allocated by everything but streamed mips.
func (g *GPU) SetNonStreaming(bytes int64) {
	g.mu.Lock()
	g.nonStreaming = bytes
	g.mu.Unlock()
}

func (g *GPU) track(t *Texture) {
	g.mu.Lock()
	g.textures = append(g.textures, t)
	g.mu.Unlock()
}

// MemoryStats implements streaming.GPUPool. A texture being resized holds
// both its old and its new mips.
func (g *GPU) MemoryStats() streaming.MemoryStats {
	g.mu.Lock()
	textures := g.textures
	s := streaming.MemoryStats{
		TotalGraphicsMemory: g.totalMemory,
		TexturePoolSize:     g.poolSize,
		AllocatedMemorySize: g.nonStreaming,
	}
	g.mu.Unlock()
	for _, t := range textures {
		s.AllocatedMemorySize += t.Allocated()
	}
	return s
}

// Flush completes every pending stream out, releasing its memory.
func (g *GPU) Flush() {
	g.mu.Lock()
	g.flushes++
	textures := g.textures
	g.mu.Unlock()
	for _, t := range textures {
		t.completeStreamOut()
	}
}

// Flushes counts Flush calls.
func (g *GPU) Flushes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flushes
}

var _ streaming.GPUPool = (*GPU)(nil)
