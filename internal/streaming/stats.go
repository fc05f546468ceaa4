package streaming

import (
	"time"

	"github.com/dustin/go-humanize"

	"texstream/pkg/types"
)

// Stats are the byte counters of one streaming cycle.
type Stats struct {
	PoolSize        int64
	MemoryBudget    int64
	RequiredPool    int64
	MaxEverRequired int64
	OverBudget      int64
	VisibleMips     int64
	HiddenMips      int64
	ForcedMips      int64
	UnknownRefMips  int64
	CachedMips      int64
	WantedMips      int64
	NewRequests     int64
	PendingRequests int64
	// MipIOBandwidth is bytes per second streamed in since the previous cycle.
	MipIOBandwidth    float64
	NumWanting        int
	NumLoadRequests   int
	NumCancelRequests int
	Cycles            uint64
	CycleDuration     time.Duration
}

// Wire converts s to its JSON form.
func (s Stats) Wire() types.StreamingStats {
	return types.StreamingStats{
		PoolSize:          s.PoolSize,
		MemoryBudget:      s.MemoryBudget,
		RequiredPool:      s.RequiredPool,
		MaxEverRequired:   s.MaxEverRequired,
		OverBudget:        s.OverBudget,
		VisibleMips:       s.VisibleMips,
		HiddenMips:        s.HiddenMips,
		ForcedMips:        s.ForcedMips,
		UnknownRefMips:    s.UnknownRefMips,
		CachedMips:        s.CachedMips,
		WantedMips:        s.WantedMips,
		NewRequests:       s.NewRequests,
		PendingRequests:   s.PendingRequests,
		MipIOBandwidth:    s.MipIOBandwidth,
		NumWanting:        s.NumWanting,
		NumLoadRequests:   s.NumLoadRequests,
		NumCancelRequests: s.NumCancelRequests,
		Cycles:            s.Cycles,
		CycleMillis:       float64(s.CycleDuration.Microseconds()) / 1000,
	}
}

func mb(bytes int64) string { return humanize.IBytes(uint64(max(bytes, 0))) }

// updateStats publishes the stats of the cycle that just completed.
func (m *Manager) updateStats(deltaSeconds float64) {
	s := m.task.stats
	s.CycleDuration = m.task.duration
	m.maxEverRequired = max(m.maxEverRequired, s.RequiredPool)
	s.MaxEverRequired = m.maxEverRequired
	if deltaSeconds > 0 {
		s.MipIOBandwidth = float64(m.streamedInBytes) / deltaSeconds
	}
	m.streamedInBytes = 0
	m.cycles++
	s.Cycles = m.cycles
	m.stats = s

	if s.OverBudget > 0 && !m.overBudget {
		m.pub.Publish(Event{Name: EventOverBudget, Fields: map[string]any{
			"over_budget":   s.OverBudget,
			"memory_budget": s.MemoryBudget,
			"required_pool": s.RequiredPool,
		}})
	}
	m.overBudget = s.OverBudget > 0
	m.metrics.observeCycle(&m.stats, len(m.records))

	if now := time.Now(); now.Sub(m.lastStatsLog) >= m.statsLogInterval {
		m.lastStatsLog = now
		m.logStreamingStats()
	}
}

// logStreamingStats writes a stats summary. A failure while logging drops the
// line and is counted instead of being reported through the logger again.
func (m *Manager) logStreamingStats() {
	if !m.loggingStats.CompareAndSwap(false, true) {
		return
	}
	defer m.loggingStats.Store(false)
	defer func() {
		if r := recover(); r != nil {
			m.statsLogFailures.Add(1)
		}
	}()

	s := &m.stats
	m.log.Info().
		Str("pool", mb(s.PoolSize)).
		Str("budget", mb(s.MemoryBudget)).
		Str("required", mb(s.RequiredPool)).
		Str("max_ever_required", mb(s.MaxEverRequired)).
		Str("visible", mb(s.VisibleMips)).
		Str("hidden", mb(s.HiddenMips)).
		Str("forced", mb(s.ForcedMips)).
		Str("unknown_ref", mb(s.UnknownRefMips)).
		Str("cached", mb(s.CachedMips)).
		Str("pending", mb(s.PendingRequests)).
		Int("wanting", s.NumWanting).
		Int("textures", len(m.records)).
		Msg("texture streaming stats")
}
