package level

import (
	"slices"

	"github.com/rs/zerolog"

	"texstream/internal/asyncwork"
	"texstream/internal/instance"
	"texstream/internal/texture"
)

// DynamicManager holds the movable primitives of every level. Mutations go
// to a private state; PrepareAsyncView copies it and fills the copy's bounds
// in the background, so the worker never reads a state being mutated.
type DynamicManager struct {
	log zerolog.Logger

	state        *instance.State
	refs         map[instance.Primitive][]instance.TextureRef
	pending      map[instance.Primitive]struct{}
	dirty        map[instance.Primitive]struct{}
	refreshIndex int

	views instance.ViewContainer
	task  *asyncwork.Task[*instance.ViewBuilder, *instance.View]
}

// NewDynamicManager registers the view task with pool when pool is not nil.
func NewDynamicManager(pool *asyncwork.Pool, logger zerolog.Logger) *DynamicManager {
	m := &DynamicManager{
		log:     logger.With().Str("component", "dynamic_instances").Logger(),
		state:   instance.NewState(),
		refs:    make(map[instance.Primitive][]instance.TextureRef),
		pending: make(map[instance.Primitive]struct{}),
		dirty:   make(map[instance.Primitive]struct{}),
	}
	m.task = asyncwork.NewTask(buildView, m.views.Store)
	if pool != nil {
		pool.Register(m.task)
	}
	return m
}

func buildView(b *instance.ViewBuilder) *instance.View {
	b.FillBounds(nil)
	return b.Build()
}

func (m *DynamicManager) CanManage(p instance.Primitive) bool { return p != nil }

// Add queues p for insertion, or for an update when already present.
func (m *DynamicManager) Add(p instance.Primitive) error {
	if p == nil {
		return nil
	}
	m.pending[p] = struct{}{}
	return nil
}

// MarkDirty schedules a bounds refresh of p on the next Refresh.
func (m *DynamicManager) MarkDirty(p instance.Primitive) {
	if m.state.HasPrimitive(p) {
		m.dirty[p] = struct{}{}
	}
}

// Remove drops p immediately.
func (m *DynamicManager) Remove(p instance.Primitive, removed *[]texture.Asset) {
	delete(m.pending, p)
	delete(m.dirty, p)
	delete(m.refs, p)
	m.state.RemovePrimitive(p, removed)
}

// Has reports whether p is present or queued.
func (m *DynamicManager) Has(p instance.Primitive) bool {
	_, queued := m.pending[p]
	return queued || m.state.HasPrimitive(p)
}

// NumPrimitives counts inserted primitives.
func (m *DynamicManager) NumPrimitives() int { return m.state.NumPrimitives() }

// Primitives lists inserted and queued primitives.
func (m *DynamicManager) Primitives() []instance.Primitive {
	out := m.state.Primitives()
	for p := range m.pending {
		if !m.state.HasPrimitive(p) {
			out = append(out, p)
		}
	}
	return out
}

// Refresh applies queued insertions and updates, refreshes dirty bounds and
// then ceil(bounds*percentage) bounds round robin.
func (m *DynamicManager) Refresh(percentage float32, removed *[]texture.Asset) {
	for p := range m.pending {
		m.apply(p, removed)
	}
	clear(m.pending)

	for p := range m.dirty {
		m.state.UpdatePrimitiveBounds(p)
	}
	clear(m.dirty)

	n := m.state.NumBounds()
	for i := sliceCount(n, percentage); i > 0; i-- {
		if m.refreshIndex >= n {
			m.refreshIndex = 0
		}
		m.state.UpdateBounds(m.refreshIndex)
		m.refreshIndex++
	}
}

func (m *DynamicManager) apply(p instance.Primitive, removed *[]texture.Asset) {
	refs := p.StreamingTextures()
	if old, ok := m.refs[p]; ok && m.state.HasPrimitive(p) {
		if slices.Equal(old, refs) {
			m.state.UpdatePrimitiveBounds(p)
			return
		}
		// Textures changed: re-insert and only report textures that lost
		// every reference.
		var dropped []texture.Asset
		m.state.RemovePrimitive(p, &dropped)
		m.insert(p, refs)
		if removed != nil {
			live := m.state.Textures()
			for _, t := range dropped {
				if !slices.Contains(live, t) {
					*removed = append(*removed, t)
				}
			}
		}
		return
	}
	m.insert(p, refs)
}

func (m *DynamicManager) insert(p instance.Primitive, refs []instance.TextureRef) {
	if err := m.state.AddPrimitive(p); err != nil {
		m.log.Warn().Err(err).Msg("dynamic primitive rejected")
		return
	}
	m.refs[p] = append([]instance.TextureRef(nil), refs...)
}

// PrepareAsyncView arms the background copy of the current state. It is a
// no-op while the previous copy has not been collected.
func (m *DynamicManager) PrepareAsyncView() {
	if m.task.State() != asyncwork.Done {
		return
	}
	if err := m.task.Init(instance.NewViewWithUninitializedBounds(m.state)); err != nil {
		m.log.Debug().Err(err).Msg("view task busy")
	}
}

// AsyncView collects the prepared view, finishing it inline if no worker
// picked it up yet.
func (m *DynamicManager) AsyncView(createIfNil bool) *instance.View {
	if err := m.task.TrySync(); err != nil {
		m.log.Error().Err(err).Msg("dynamic view task failed")
	}
	v := m.views.Load()
	if v == nil && createIfNil {
		v = buildView(instance.NewViewWithUninitializedBounds(m.state))
		m.views.Store(v)
	}
	return v
}
