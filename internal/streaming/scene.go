package streaming

import (
	"github.com/go-gl/mathgl/mgl32"

	"texstream/internal/instance"
	"texstream/internal/level"
	"texstream/internal/texture"
	"texstream/pkg/types"
)

func (m *Manager) findLevel(id string) int {
	for i, l := range m.levels {
		if l.ID() == id {
			return i
		}
	}
	return -1
}

// AddLevel registers a level and queues its primitives for an incremental
// build. Adding a known level is a no-op.
func (m *Manager) AddLevel(id string, primitives []instance.Primitive) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findLevel(id) >= 0 {
		return
	}

	l := level.NewStaticManager(id, primitives, m.clock.WorldTime, m.log)
	m.levels = append(m.levels, l)
	for _, p := range primitives {
		if p != nil && p.Mobility() == instance.Static {
			m.staticOf[p] = l
		}
	}
	m.log.Info().Str("level", id).Int("primitives", len(primitives)).Msg("level added")
	m.pub.Publish(Event{Name: EventLevelAdded, Fields: map[string]any{"level": id, "primitives": len(primitives)}})
}

// RemoveLevel drops a level. Views already handed to the budget task stay
// valid until the task finishes.
func (m *Manager) RemoveLevel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.findLevel(id)
	if i < 0 {
		return ErrLevelNotFound(id)
	}
	l := m.levels[i]
	var removed []texture.Asset
	l.RemoveAll(&removed)
	m.setTexturesRemovedTimestamp(removed)

	last := len(m.levels) - 1
	m.levels[i] = m.levels[last]
	m.levels[last] = nil
	m.levels = m.levels[:last]
	for p, owner := range m.staticOf {
		if owner == l {
			delete(m.staticOf, p)
		}
	}
	m.log.Info().Str("level", id).Int("released_textures", len(removed)).Msg("level removed")
	m.pub.Publish(Event{Name: EventLevelRemoved, Fields: map[string]any{"level": id, "released_textures": len(removed)}})
	return nil
}

// SetLevelVisible marks a level as likely visible; visible levels are sized
// first.
func (m *Manager) SetLevelVisible(id string, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.findLevel(id)
	if i < 0 {
		return ErrLevelNotFound(id)
	}
	m.levels[i].SetVisible(visible)
	return nil
}

// NotifyLevelOffset moves every bounds of a level by offset.
func (m *Manager) NotifyLevelOffset(id string, offset mgl32.Vec3) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.findLevel(id)
	if i < 0 {
		return ErrLevelNotFound(id)
	}
	m.levels[i].NotifyLevelOffset(offset)
	return nil
}

// Levels summarizes the registered levels.
func (m *Manager) Levels() []types.LevelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.LevelInfo, 0, len(m.levels))
	for _, l := range m.levels {
		out = append(out, types.LevelInfo{
			ID:         l.ID(),
			Primitives: l.NumPrimitives(),
			Textures:   len(l.Textures()),
			Building:   l.HasPendingBuild(),
			Visible:    l.IsVisible(),
		})
	}
	return out
}

// removeStaticReferences detaches p from the level that owns it statically.
func (m *Manager) removeStaticReferences(p instance.Primitive, removed *[]texture.Asset) {
	if l, ok := m.staticOf[p]; ok {
		l.Remove(p, removed)
		delete(m.staticOf, p)
	}
}

// NotifyPrimitiveAttached hands a spawned or moving primitive to the dynamic
// manager.
func (m *Manager) NotifyPrimitiveAttached(p instance.Primitive) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.useDynamic {
		return
	}
	var removed []texture.Asset
	m.removeStaticReferences(p, &removed)
	m.setTexturesRemovedTimestamp(removed)
	if err := m.dynamic.Add(p); err != nil {
		m.log.Warn().Err(err).Msg("dynamic primitive rejected")
	}
}

// NotifyPrimitiveDetached forgets p.
func (m *Manager) NotifyPrimitiveDetached(p instance.Primitive) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []texture.Asset
	m.removeStaticReferences(p, &removed)
	m.dynamic.Remove(p, &removed)
	m.setTexturesRemovedTimestamp(removed)
}

// NotifyPrimitiveUpdated queues a bounds or texture refresh for a dynamic
// primitive. Static primitives are not tracked for updates.
func (m *Manager) NotifyPrimitiveUpdated(p instance.Primitive) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.useDynamic && m.dynamic.Has(p) {
		if err := m.dynamic.Add(p); err != nil {
			m.log.Warn().Err(err).Msg("dynamic primitive update rejected")
		}
	}
}

// NotifyActorDestroyed removes every primitive of a destroyed actor.
func (m *Manager) NotifyActorDestroyed(primitives []instance.Primitive) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []texture.Asset
	for _, p := range primitives {
		if p == nil {
			continue
		}
		m.removeStaticReferences(p, &removed)
		m.dynamic.Remove(p, &removed)
	}
	m.setTexturesRemovedTimestamp(removed)
}
