package instance

import (
	"math"
	"sync/atomic"

	"texstream/internal/texture"
)

const none = -1

type element struct {
	primitive   Primitive
	texture     texture.Asset
	boundsIndex int
	texelFactor float32
	forceLoad   bool
	prevTexture int
	nextTexture int
	nextOwner   int
}

// store is the arena shared by a State and the Views created from it.
// Render times and removed flags are accessed atomically so that a frozen
// static state can keep refreshing them while views are being read.
type store struct {
	bounds []Bounds4
	// owners[i] is the primitive owning bounds i, nil when the slot is free.
	owners      []Primitive
	renderTimes []uint32
	removed     []uint32

	elements []element
	// textures maps a texture to the head of its element chain.
	textures map[texture.Asset]int

	maxTexelFactor float32
}

func newStore() *store {
	return &store{textures: make(map[texture.Asset]int)}
}

func (s *store) clone() *store {
	c := &store{
		bounds:         append([]Bounds4(nil), s.bounds...),
		owners:         append([]Primitive(nil), s.owners...),
		renderTimes:    make([]uint32, len(s.renderTimes)),
		removed:        make([]uint32, len(s.removed)),
		elements:       append([]element(nil), s.elements...),
		textures:       make(map[texture.Asset]int, len(s.textures)),
		maxTexelFactor: s.maxTexelFactor,
	}
	for i := range s.renderTimes {
		c.renderTimes[i] = atomic.LoadUint32(&s.renderTimes[i])
		c.removed[i] = atomic.LoadUint32(&s.removed[i])
	}
	for t, head := range s.textures {
		c.textures[t] = head
	}
	return c
}

func (s *store) numBounds() int { return len(s.owners) }

func (s *store) getBounds(i int) Bounds { return s.bounds[i/4].Get(i % 4) }

func (s *store) setBounds(i int, b Bounds) { s.bounds[i/4].Set(i%4, b) }

func (s *store) clearBounds(i int) { s.bounds[i/4].Clear(i % 4) }

func (s *store) lastRenderTime(i int) float32 {
	return math.Float32frombits(atomic.LoadUint32(&s.renderTimes[i]))
}

func (s *store) setLastRenderTime(i int, t float32) {
	atomic.StoreUint32(&s.renderTimes[i], math.Float32bits(t))
}

func (s *store) isRemoved(i int) bool { return atomic.LoadUint32(&s.removed[i]) != 0 }

func (s *store) setRemoved(i int) { atomic.StoreUint32(&s.removed[i], 1) }

// live reports whether bounds i is owned and not reference-cleared.
func (s *store) live(i int) bool {
	return s.owners[i] != nil && !s.isRemoved(i)
}

// growBounds appends one slot, and a new batch every fourth slot.
func (s *store) growBounds() int {
	i := len(s.owners)
	if i%4 == 0 {
		s.bounds = append(s.bounds, Bounds4{})
	}
	s.owners = append(s.owners, nil)
	s.renderTimes = append(s.renderTimes, math.Float32bits(float32(math.Inf(-1))))
	s.removed = append(s.removed, 0)
	s.clearBounds(i)
	return i
}
