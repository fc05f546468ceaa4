package instance

import (
	"github.com/go-gl/mathgl/mgl32"

	"texstream/internal/texture"
)

type primitiveEntry struct {
	boundsIndex  int
	firstElement int
}

// State is the mutable instance database. It is only touched from the main
// goroutine. Once frozen, the state and its view share storage: new
// primitives are rejected and removal only clears references.
type State struct {
	s            *store
	primitives   map[Primitive]primitiveEntry
	refs         map[texture.Asset]int
	freeElements []int
	freeBounds   []int
	view         *View
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		s:          newStore(),
		primitives: make(map[Primitive]primitiveEntry),
		refs:       make(map[texture.Asset]int),
	}
}

// stateFromStore adopts st and rebuilds all links, dropping free and
// reference-cleared slots.
func stateFromStore(st *store) *State {
	s := &State{
		s:          st,
		primitives: make(map[Primitive]primitiveEntry),
		refs:       make(map[texture.Asset]int),
	}
	for i := range st.owners {
		if !st.live(i) {
			st.owners[i] = nil
			st.removed[i] = 0
			st.clearBounds(i)
			s.freeBounds = append(s.freeBounds, i)
			continue
		}
		s.primitives[st.owners[i]] = primitiveEntry{boundsIndex: i, firstElement: none}
	}
	clear(st.textures)
	st.maxTexelFactor = 0
	for i := range st.elements {
		e := &st.elements[i]
		if e.primitive == nil || st.owners[e.boundsIndex] != e.primitive {
			st.elements[i] = element{}
			s.freeElements = append(s.freeElements, i)
			continue
		}
		s.link(i)
	}
	return s
}

// link inserts element i at the head of its texture and owner chains.
func (s *State) link(i int) {
	st := s.s
	e := &st.elements[i]
	e.prevTexture = none
	e.nextTexture = none
	if head, ok := st.textures[e.texture]; ok {
		e.nextTexture = head
		st.elements[head].prevTexture = i
	}
	st.textures[e.texture] = i

	entry := s.primitives[e.primitive]
	e.nextOwner = entry.firstElement
	entry.firstElement = i
	s.primitives[e.primitive] = entry

	s.refs[e.texture]++
	st.maxTexelFactor = max(st.maxTexelFactor, e.texelFactor)
}

func (s *State) unlink(i int) {
	st := s.s
	e := &st.elements[i]
	if e.prevTexture != none {
		st.elements[e.prevTexture].nextTexture = e.nextTexture
	} else if e.nextTexture != none {
		st.textures[e.texture] = e.nextTexture
	} else {
		delete(st.textures, e.texture)
	}
	if e.nextTexture != none {
		st.elements[e.nextTexture].prevTexture = e.prevTexture
	}
	st.elements[i] = element{}
	s.freeElements = append(s.freeElements, i)
}

func (s *State) allocBounds() int {
	if n := len(s.freeBounds); n > 0 {
		i := s.freeBounds[n-1]
		s.freeBounds = s.freeBounds[:n-1]
		return i
	}
	return s.s.growBounds()
}

func (s *State) allocElement() int {
	if n := len(s.freeElements); n > 0 {
		i := s.freeElements[n-1]
		s.freeElements = s.freeElements[:n-1]
		return i
	}
	s.s.elements = append(s.s.elements, element{})
	return len(s.s.elements) - 1
}

// AddPrimitive registers p with its current bounds. Primitives without
// streaming textures are ignored.
func (s *State) AddPrimitive(p Primitive) error {
	return s.add(p, true)
}

// AddPrimitiveIgnoreBounds registers p with cleared bounds, to be filled by a
// later UpdateBounds.
func (s *State) AddPrimitiveIgnoreBounds(p Primitive) error {
	return s.add(p, false)
}

func (s *State) add(p Primitive, withBounds bool) error {
	if s.view != nil {
		return ErrFrozen
	}
	if _, ok := s.primitives[p]; ok {
		return ErrDuplicatePrimitive
	}
	refs := p.StreamingTextures()
	n := 0
	for _, r := range refs {
		if r.Texture != nil {
			n++
		}
	}
	if n == 0 {
		return nil
	}

	bi := s.allocBounds()
	s.s.owners[bi] = p
	if withBounds {
		s.s.setBounds(bi, p.StreamingBounds())
		s.s.setLastRenderTime(bi, p.LastRenderTime())
	}
	s.primitives[p] = primitiveEntry{boundsIndex: bi, firstElement: none}

	for _, r := range refs {
		if r.Texture == nil {
			continue
		}
		ei := s.allocElement()
		s.s.elements[ei] = element{
			primitive:   p,
			texture:     r.Texture,
			boundsIndex: bi,
			texelFactor: r.TexelFactor,
			forceLoad:   r.ForceLoad,
		}
		s.link(ei)
	}
	return nil
}

// RemovePrimitive removes p and appends the textures left without any
// reference to removed. A frozen state only clears references.
func (s *State) RemovePrimitive(p Primitive, removed *[]texture.Asset) {
	if s.view != nil {
		s.RemovePrimitiveReferences(p, removed)
		return
	}
	entry, ok := s.primitives[p]
	if !ok {
		return
	}
	for ei := entry.firstElement; ei != none; {
		next := s.s.elements[ei].nextOwner
		s.release(s.s.elements[ei].texture, removed)
		s.unlink(ei)
		ei = next
	}
	s.s.owners[entry.boundsIndex] = nil
	s.s.clearBounds(entry.boundsIndex)
	s.freeBounds = append(s.freeBounds, entry.boundsIndex)
	delete(s.primitives, p)
}

// RemovePrimitiveReferences hides p from every view without touching the
// arena layout.
func (s *State) RemovePrimitiveReferences(p Primitive, removed *[]texture.Asset) {
	entry, ok := s.primitives[p]
	if !ok {
		return
	}
	for ei := entry.firstElement; ei != none; ei = s.s.elements[ei].nextOwner {
		s.release(s.s.elements[ei].texture, removed)
	}
	s.s.setRemoved(entry.boundsIndex)
	delete(s.primitives, p)
}

func (s *State) release(t texture.Asset, removed *[]texture.Asset) {
	s.refs[t]--
	if s.refs[t] > 0 {
		return
	}
	delete(s.refs, t)
	if removed != nil {
		*removed = append(*removed, t)
	}
}

// UpdateBounds refreshes bounds i from its owner. A frozen state only
// refreshes the render time.
func (s *State) UpdateBounds(i int) {
	if i < 0 || i >= s.s.numBounds() || !s.s.live(i) {
		return
	}
	p := s.s.owners[i]
	if s.view == nil {
		s.s.setBounds(i, p.StreamingBounds())
	}
	s.s.setLastRenderTime(i, p.LastRenderTime())
}

// UpdatePrimitiveBounds refreshes the bounds owned by p.
func (s *State) UpdatePrimitiveBounds(p Primitive) bool {
	entry, ok := s.primitives[p]
	if !ok {
		return false
	}
	s.UpdateBounds(entry.boundsIndex)
	return true
}

// UpdateLastRenderTime refreshes the render time of bounds i.
func (s *State) UpdateLastRenderTime(i int) {
	if i < 0 || i >= s.s.numBounds() || !s.s.live(i) {
		return
	}
	s.s.setLastRenderTime(i, s.s.owners[i].LastRenderTime())
}

// HasPrimitive reports whether p is registered.
func (s *State) HasPrimitive(p Primitive) bool {
	_, ok := s.primitives[p]
	return ok
}

// Primitives returns every registered primitive.
func (s *State) Primitives() []Primitive {
	out := make([]Primitive, 0, len(s.primitives))
	for p := range s.primitives {
		out = append(out, p)
	}
	return out
}

// NumBounds is the number of bounds slots, free ones included.
func (s *State) NumBounds() int { return s.s.numBounds() }

// NumPrimitives is the number of registered primitives.
func (s *State) NumPrimitives() int { return len(s.primitives) }

// Textures returns the textures with at least one live reference.
func (s *State) Textures() []texture.Asset {
	out := make([]texture.Asset, 0, len(s.refs))
	for t := range s.refs {
		out = append(out, t)
	}
	return out
}

// Triples lists every live (primitive, texture, bounds) reference.
func (s *State) Triples() []Triple { return s.s.triples() }

// Freeze shares the storage with a view and returns it. Later calls return
// the same view.
func (s *State) Freeze() *View {
	if s.view == nil {
		s.view = &View{s: s.s, shared: true}
	}
	return s.view
}

// IsFrozen reports whether Freeze was called.
func (s *State) IsFrozen() bool { return s.view != nil }

// Offset moves every bounds by o.
func (s *State) Offset(o mgl32.Vec3) error {
	if s.view != nil {
		return ErrFrozen
	}
	for i := range s.s.bounds {
		s.s.bounds[i].Offset(o)
	}
	return nil
}

// Clone returns an unfrozen deep copy.
func (s *State) Clone() *State {
	return stateFromStore(s.s.clone())
}
