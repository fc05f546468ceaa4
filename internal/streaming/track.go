package streaming

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"texstream/internal/texture"
	"texstream/pkg/types"
)

type trackedEntry struct {
	group     string
	resident  int
	requested int
	wanted    int
	state     string
	boost     float32
	changes   int
	changedAt time.Time
	removed   bool
}

func (e *trackedEntry) differs(r *texture.Record) bool {
	return e.removed || e.resident != r.ResidentMips || e.requested != r.RequestedMips ||
		e.wanted != r.WantedMips || e.state != r.State().String()
}

// TrackTexture logs every state change of the textures whose name contains
// pattern, case-insensitively. It reports false when pattern was already
// tracked.
func (m *Manager) TrackTexture(pattern string) (bool, error) {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == "" {
		return false, ErrInvalidArgument("texture name required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(m.tracked, p) {
		return false, nil
	}
	m.tracked = append(m.tracked, p)
	if m.trackedLast == nil {
		m.trackedLast = make(map[string]*trackedEntry)
	}
	m.log.Info().Str("pattern", p).Msg("texture tracking enabled")
	m.observeTracked()
	return true, nil
}

// UntrackTexture stops tracking pattern and forgets the textures no other
// pattern matches. It reports false when pattern was not tracked.
func (m *Manager) UntrackTexture(pattern string) (bool, error) {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == "" {
		return false, ErrInvalidArgument("texture name required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.Index(m.tracked, p)
	if i < 0 {
		return false, nil
	}
	m.tracked = slices.Delete(m.tracked, i, i+1)
	for name := range m.trackedLast {
		if !m.isTracked(name) {
			delete(m.trackedLast, name)
		}
	}
	m.log.Info().Str("pattern", p).Msg("texture tracking disabled")
	return true, nil
}

// TrackedTextures lists the tracked textures, most recent change first.
// A positive limit caps the list.
func (m *Manager) TrackedTextures(limit int) types.TrackedResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observeTracked()
	resp := types.TrackedResponse{
		Patterns: slices.Clone(m.tracked),
		Textures: make([]types.TrackedTexture, 0, len(m.trackedLast)),
	}
	if resp.Patterns == nil {
		resp.Patterns = []string{}
	}
	slices.Sort(resp.Patterns)
	for name, e := range m.trackedLast {
		resp.Textures = append(resp.Textures, types.TrackedTexture{
			Name:          name,
			Group:         e.group,
			ResidentMips:  e.resident,
			RequestedMips: e.requested,
			WantedMips:    e.wanted,
			State:         e.state,
			BoostFactor:   e.boost,
			Changes:       e.changes,
			ChangedAt:     e.changedAt.UnixMilli(),
			Removed:       e.removed,
		})
	}
	slices.SortFunc(resp.Textures, func(a, b types.TrackedTexture) int {
		if c := cmp.Compare(b.ChangedAt, a.ChangedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(resp.Textures) > limit {
		resp.Textures = resp.Textures[:limit]
	}
	return resp
}

func (m *Manager) isTracked(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range m.tracked {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// observeTracked records and logs the tracked textures whose state changed
// since the last call.
func (m *Manager) observeTracked() {
	if len(m.tracked) == 0 {
		return
	}
	now := time.Now()
	for i := range m.records {
		r := &m.records[i]
		if r.Asset == nil {
			continue
		}
		name := r.Asset.Name()
		if !m.isTracked(name) {
			continue
		}
		e := m.trackedLast[name]
		if e != nil && !e.differs(r) {
			continue
		}
		if e == nil {
			e = &trackedEntry{group: r.Group.String()}
			m.trackedLast[name] = e
		}
		e.resident, e.requested, e.wanted = r.ResidentMips, r.RequestedMips, r.WantedMips
		e.state = r.State().String()
		e.boost = r.BoostFactor
		e.removed = false
		e.changes++
		e.changedAt = now
		m.log.Info().
			Str("texture", name).
			Int("resident_mips", e.resident).
			Int("requested_mips", e.requested).
			Int("wanted_mips", e.wanted).
			Int("mip_count", r.MipCount).
			Str("state", e.state).
			Float32("boost", e.boost).
			Msg("tracked texture changed")
		m.pub.Publish(Event{Name: EventTrackedChange, Texture: name, Fields: map[string]any{
			"resident_mips":  e.resident,
			"requested_mips": e.requested,
			"wanted_mips":    e.wanted,
			"state":          e.state,
		}})
	}
}

func (m *Manager) trackRemoved(name string) {
	e := m.trackedLast[name]
	if e == nil || e.removed {
		return
	}
	e.removed = true
	e.changes++
	e.changedAt = time.Now()
	m.log.Info().Str("texture", name).Msg("tracked texture removed")
}
