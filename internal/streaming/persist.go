package streaming

import "time"

// PersistedState is what survives a restart: the high-water mark and the
// last wanted mips of every texture.
type PersistedState struct {
	SavedAt         time.Time
	MaxEverRequired int64
	WantedMips      map[string]int
}

// Snapshot captures the state to persist.
func (m *Manager) Snapshot() PersistedState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := PersistedState{
		SavedAt:         time.Now().UTC(),
		MaxEverRequired: m.maxEverRequired,
		WantedMips:      make(map[string]int, len(m.records)),
	}
	for i := range m.records {
		if r := &m.records[i]; r.Asset != nil {
			s.WantedMips[r.Asset.Name()] = r.WantedMips
		}
	}
	return s
}

// Restore seeds a manager with persisted state. Textures added later whose
// stored wanted mips exceed what is resident start with a boost.
func (m *Manager) Restore(s PersistedState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restore(&s)
}

func (m *Manager) restore(s *PersistedState) {
	m.maxEverRequired = max(m.maxEverRequired, s.MaxEverRequired)
	m.stats.MaxEverRequired = m.maxEverRequired
	if m.warm == nil {
		m.warm = make(map[string]int, len(s.WantedMips))
	}
	for name, mips := range s.WantedMips {
		m.warm[name] = mips
	}
	m.log.Info().
		Int("textures", len(s.WantedMips)).
		Str("max_ever_required", mb(s.MaxEverRequired)).
		Msg("streaming state restored")
}
