package streaming

import (
	"texstream/internal/texture"
	"texstream/pkg/types"
)

// GroupStats completes the running cycle and sums resident, wanted and
// maximum bytes per LOD group. Groups without textures are left out.
func (m *Manager) GroupStats() []types.GroupStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.syncStates(true)
	}
	var sums [texture.NumGroups]types.GroupStats
	for i := range m.records {
		r := &m.records[i]
		if r.Asset == nil || r.Group < 0 || r.Group >= texture.NumGroups {
			continue
		}
		g := &sums[r.Group]
		g.NumTextures++
		g.ResidentBytes += r.Size(r.ResidentMips)
		g.WantedBytes += r.Size(r.WantedMips)
		g.MaxAllowedBytes += r.Size(r.MaxAllowedMips)
	}
	out := []types.GroupStats{}
	for _, g := range texture.Groups() {
		s := sums[g]
		if s.NumTextures == 0 {
			continue
		}
		s.Group = g.String()
		s.NumStreamedMips = m.settings.NumStreamedMips[g]
		out = append(out, s)
		m.log.Debug().
			Str("group", s.Group).
			Int("textures", s.NumTextures).
			Str("resident", mb(s.ResidentBytes)).
			Str("wanted", mb(s.WantedBytes)).
			Str("max", mb(s.MaxAllowedBytes)).
			Msg("texture group stats")
	}
	return out
}
