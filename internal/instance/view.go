package instance

import (
	"sync/atomic"

	"texstream/internal/texture"
)

// Triple is one live (primitive, texture, bounds) reference.
type Triple struct {
	Primitive Primitive
	Texture   texture.Asset
	Bounds    Bounds
}

func (s *store) triples() []Triple {
	var out []Triple
	for i := range s.elements {
		e := &s.elements[i]
		if e.primitive == nil || !s.live(e.boundsIndex) {
			continue
		}
		out = append(out, Triple{Primitive: e.primitive, Texture: e.texture, Bounds: s.getBounds(e.boundsIndex)})
	}
	return out
}

// View is a read-only snapshot of a State, safe for concurrent readers.
type View struct {
	s *store
	// shared is set when the view aliases a frozen state.
	shared bool
}

// CreateView deep copies state into an independent view.
func CreateView(state *State) *View {
	return &View{s: state.s.clone()}
}

// StateFromView deep copies v back into a new mutable state.
func StateFromView(v *View) *State {
	return stateFromStore(v.s.clone())
}

// NumBounds is the number of bounds slots, free ones included.
func (v *View) NumBounds() int { return v.s.numBounds() }

// Bounds returns bounds i.
func (v *View) Bounds(i int) Bounds { return v.s.getBounds(i) }

// LastRenderTime returns the world time bounds i was last drawn.
func (v *View) LastRenderTime(i int) float32 { return v.s.lastRenderTime(i) }

// IsLive reports whether bounds i belongs to a primitive still referenced.
func (v *View) IsLive(i int) bool { return v.s.live(i) }

// MaxTexelFactor is the largest texel factor of any element.
func (v *View) MaxTexelFactor() float32 { return v.s.maxTexelFactor }

// IsShared reports whether v aliases a frozen state.
func (v *View) IsShared() bool { return v.shared }

// HasTexture reports whether any live element references t.
func (v *View) HasTexture(t texture.Asset) bool {
	it := v.TextureIterator(t)
	return it.Next()
}

// Textures returns every texture with at least one element, live or not.
func (v *View) Textures() []texture.Asset {
	out := make([]texture.Asset, 0, len(v.s.textures))
	for t := range v.s.textures {
		out = append(out, t)
	}
	return out
}

// Triples lists every live (primitive, texture, bounds) reference.
func (v *View) Triples() []Triple { return v.s.triples() }

// TextureIterator walks the live elements referencing one texture.
type TextureIterator struct {
	s   *store
	cur int
	nxt int
}

// TextureIterator returns an iterator over the live elements referencing t.
func (v *View) TextureIterator(t texture.Asset) *TextureIterator {
	head, ok := v.s.textures[t]
	if !ok {
		head = none
	}
	return &TextureIterator{s: v.s, cur: none, nxt: head}
}

// Next advances to the next live element.
func (it *TextureIterator) Next() bool {
	for it.nxt != none {
		it.cur = it.nxt
		e := &it.s.elements[it.cur]
		it.nxt = e.nextTexture
		if it.s.live(e.boundsIndex) {
			return true
		}
	}
	it.cur = none
	return false
}

func (it *TextureIterator) BoundsIndex() int        { return it.s.elements[it.cur].boundsIndex }
func (it *TextureIterator) TexelFactor() float32    { return it.s.elements[it.cur].texelFactor }
func (it *TextureIterator) ForceLoad() bool         { return it.s.elements[it.cur].forceLoad }
func (it *TextureIterator) Primitive() Primitive    { return it.s.elements[it.cur].primitive }
func (it *TextureIterator) Bounds() Bounds          { return it.s.getBounds(it.BoundsIndex()) }
func (it *TextureIterator) LastRenderTime() float32 { return it.s.lastRenderTime(it.BoundsIndex()) }

// ViewBuilder produces a view whose bounds are filled after the copy, off the
// main goroutine. Build may be called once.
type ViewBuilder struct {
	s     *store
	dirty []bool
	built bool
}

// NewViewWithUninitializedBounds copies the element layout of state and
// marks every live bounds dirty.
func NewViewWithUninitializedBounds(state *State) *ViewBuilder {
	st := state.s.clone()
	b := &ViewBuilder{s: st, dirty: make([]bool, st.numBounds())}
	for i := range b.dirty {
		st.clearBounds(i)
		b.dirty[i] = st.live(i)
	}
	return b
}

// NumDirty counts bounds not filled yet.
func (b *ViewBuilder) NumDirty() int {
	n := 0
	for _, d := range b.dirty {
		if d {
			n++
		}
	}
	return n
}

// FillBounds queries each dirty bounds from its primitive. It stops early when
// shouldAbort returns true; remaining bounds stay cleared.
func (b *ViewBuilder) FillBounds(shouldAbort func() bool) {
	for i, d := range b.dirty {
		if !d {
			continue
		}
		if i%4 == 0 && shouldAbort != nil && shouldAbort() {
			return
		}
		p := b.s.owners[i]
		b.s.setBounds(i, p.StreamingBounds())
		b.s.setLastRenderTime(i, p.LastRenderTime())
		b.dirty[i] = false
	}
}

// Build returns the view. It panics when called twice.
func (b *ViewBuilder) Build() *View {
	if b.built {
		panic("instance: ViewBuilder.Build called twice")
	}
	b.built = true
	v := &View{s: b.s}
	b.s = nil
	return v
}

// ViewContainer hands a view from the main goroutine to readers.
type ViewContainer struct {
	p atomic.Pointer[View]
}

func (c *ViewContainer) Load() *View        { return c.p.Load() }
func (c *ViewContainer) Store(v *View)      { c.p.Store(v) }
func (c *ViewContainer) Swap(v *View) *View { return c.p.Swap(v) }
