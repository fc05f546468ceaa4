package level

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"texstream/internal/instance"
	"texstream/internal/texture"
)

// StaticManager holds the static primitives of one level. The database is
// built incrementally from the pending list and frozen the first time a view
// is requested: from then on the view and the state share storage.
type StaticManager struct {
	id        string
	log       zerolog.Logger
	worldTime func() float32

	state        *instance.State
	pending      []instance.Primitive
	view         *instance.View
	refreshIndex int
	visible      bool
}

// NewStaticManager queues primitives for an incremental build. worldTime
// returns the level's world time in seconds; it may be nil.
func NewStaticManager(id string, primitives []instance.Primitive, worldTime func() float32, logger zerolog.Logger) *StaticManager {
	return &StaticManager{
		id:        id,
		log:       logger.With().Str("level", id).Logger(),
		worldTime: worldTime,
		state:     instance.NewState(),
		pending:   append([]instance.Primitive(nil), primitives...),
		visible:   true,
	}
}

func (m *StaticManager) ID() string { return m.id }

// WorldTime is the level's clock, 0 when unknown.
func (m *StaticManager) WorldTime() float32 {
	if m.worldTime == nil {
		return 0
	}
	return m.worldTime()
}

func (m *StaticManager) IsVisible() bool         { return m.visible }
func (m *StaticManager) SetVisible(visible bool) { m.visible = visible }

// HasPendingBuild reports whether queued primitives remain to be inserted.
func (m *StaticManager) HasPendingBuild() bool { return len(m.pending) > 0 }

// NumPrimitives counts inserted primitives.
func (m *StaticManager) NumPrimitives() int { return m.state.NumPrimitives() }

// Textures returns the textures referenced by the level.
func (m *StaticManager) Textures() []texture.Asset { return m.state.Textures() }

// CanManage accepts static primitives while the level is not frozen.
func (m *StaticManager) CanManage(p instance.Primitive) bool {
	return p != nil && p.Mobility() == instance.Static && !m.state.IsFrozen()
}

// Add queues p for the incremental build.
func (m *StaticManager) Add(p instance.Primitive) error {
	if m.state.IsFrozen() {
		return instance.ErrFrozen
	}
	m.pending = append(m.pending, p)
	return nil
}

// Remove drops p, or only clears its references once frozen.
func (m *StaticManager) Remove(p instance.Primitive, removed *[]texture.Asset) {
	for i, q := range m.pending {
		if q == p {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
	m.state.RemovePrimitive(p, removed)
}

// RemoveAll reports every referenced texture as removed. The manager must
// not be used afterwards; views already handed out stay valid.
func (m *StaticManager) RemoveAll(removed *[]texture.Asset) {
	if removed != nil {
		*removed = append(*removed, m.state.Textures()...)
	}
	m.pending = nil
}

// Refresh completes the pending build and refreshes render times.
func (m *StaticManager) Refresh(percentage float32, removed *[]texture.Asset) {
	steps := -1
	m.IncrementalUpdate(nil, &steps, percentage, removed)
}

// IncrementalUpdate inserts at most *stepsLeft pending primitives (unbounded
// when negative), handing the ones it cannot own to dynamic, then refreshes
// ceil(bounds*percentage) render times.
func (m *StaticManager) IncrementalUpdate(dynamic Aggregator, stepsLeft *int, percentage float32, removed *[]texture.Asset) {
	built := 0
	for len(m.pending) > 0 && *stepsLeft != 0 {
		p := m.pending[0]
		m.pending = m.pending[1:]
		if *stepsLeft > 0 {
			*stepsLeft--
		}
		if p.Mobility() != instance.Static {
			m.handOff(dynamic, p)
			continue
		}
		switch err := m.state.AddPrimitive(p); {
		case err == nil:
			built++
		case errors.Is(err, instance.ErrFrozen):
			m.handOff(dynamic, p)
		case errors.Is(err, instance.ErrDuplicatePrimitive):
		default:
			m.log.Warn().Err(err).Msg("static primitive rejected")
		}
	}
	if built > 0 {
		m.log.Debug().Int("built", built).Int("pending", len(m.pending)).Msg("level build step")
	}

	n := m.state.NumBounds()
	for i := sliceCount(n, percentage); i > 0; i-- {
		if m.refreshIndex >= n {
			m.refreshIndex = 0
		}
		m.state.UpdateLastRenderTime(m.refreshIndex)
		m.refreshIndex++
	}
}

func (m *StaticManager) handOff(dynamic Aggregator, p instance.Primitive) {
	if dynamic == nil {
		return
	}
	if err := dynamic.Add(p); err != nil {
		m.log.Warn().Err(err).Msg("dynamic fallback rejected primitive")
	}
}

// NotifyLevelOffset moves the level. A frozen level is copied first so the
// view held by the worker keeps its old bounds.
func (m *StaticManager) NotifyLevelOffset(offset mgl32.Vec3) {
	if m.state.IsFrozen() {
		m.state = m.state.Clone()
		m.view = nil
	}
	if err := m.state.Offset(offset); err != nil {
		m.log.Error().Err(err).Msg("level offset")
	}
}

// PrepareAsyncView has nothing to do: the frozen state is its own view.
func (m *StaticManager) PrepareAsyncView() {}

// AsyncView freezes the level on first use and returns the same view until
// the level is offset.
func (m *StaticManager) AsyncView(createIfNil bool) *instance.View {
	if m.view == nil && createIfNil {
		m.view = m.state.Freeze()
	}
	return m.view
}
