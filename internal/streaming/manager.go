package streaming

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"texstream/internal/asyncwork"
	"texstream/internal/instance"
	"texstream/internal/level"
	"texstream/internal/texture"
)

// Manager streams texture mips in and out under a memory budget.
//
// One goroutine drives UpdateResourceStreaming every frame; every other
// method may be called from any goroutine. The budget pass runs on a
// background goroutine between stage 0 and the final stage of a cycle and
// only touches its own copy of the records.
type Manager struct {
	mu sync.Mutex

	log     zerolog.Logger
	pub     EventPublisher
	metrics *Metrics
	gpu     GPUPool
	clock   Clock

	settings     texture.Settings
	nextSettings texture.Settings
	prevSettings texture.Settings

	framesForFullUpdate    int
	memoryMargin           int64
	minEvictSize           int64
	poolSizeOverride       int64
	poolSizeVRAMPercentage int
	neverStreamOut         bool
	useDynamic             bool
	boostPlayerTextures    float32
	staticStepsPerFrame    int
	statsLogInterval       time.Duration

	// records is indexed by the budget task results; slots are only
	// compacted between cycles by processRemovedTextures.
	records        []texture.Record
	index          map[texture.Asset]int
	pendingAdds    []texture.Asset
	pending        map[texture.Asset]int
	removedIndices []int

	levels     []*level.StaticManager
	staticOf   map[instance.Primitive]*level.StaticManager
	dynamic    *level.DynamicManager
	players    []instance.Primitive
	viewpoints []instance.Viewpoint

	lastWorldUpdateTime float32
	processingStage     int
	numStages           int
	currentUpdateIndex  int
	inflight            []int
	paused              bool
	poolSize            int64

	pool *asyncwork.Pool
	task *budgetTask
	job  *asyncwork.Job

	stats            Stats
	maxEverRequired  int64
	overBudget       bool
	cycles           uint64
	streamedInBytes  int64
	lastCycleEnd     time.Time
	lastStatsLog     time.Time
	loggingStats     atomic.Bool
	statsLogFailures atomic.Int64
	lastErr          string

	// tracked holds lower-cased name patterns; trackedLast the last state
	// seen per tracked texture name.
	tracked     []string
	trackedLast map[string]*trackedEntry

	warm      map[string]int
	startTime time.Time
	closed    bool
}

// New creates a manager with package defaults.
func New(gpu GPUPool, clock Clock) *Manager {
	return NewWithConfig(Config{GPU: gpu, Clock: clock})
}

// Ready reports whether at least one full cycle has completed.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles > 0 && !m.closed
}

// Close aborts the background pass and waits for all background work.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.job.Abort()
	err := m.job.EnsureCompletion()
	if perr := m.pool.EnsureCompletion(); err == nil {
		err = perr
	}
	m.log.Info().Uint64("cycles", m.cycles).Msg("texture streaming stopped")
	return err
}

// SetSettings replaces the algorithm settings. They take effect at the start
// of the next cycle.
func (m *Manager) SetSettings(s texture.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSettings = s
}

// Settings returns the settings of the current cycle.
func (m *Manager) Settings() texture.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// SetPaused stops issuing resize requests. Pending-update flags are still
// maintained while paused.
func (m *Manager) SetPaused(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused != paused {
		m.log.Info().Bool("paused", paused).Msg("texture streaming pause toggled")
	}
	m.paused = paused
}

func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// AddViewpoint adds a camera for the next cycle.
func (m *Manager) AddViewpoint(vp instance.Viewpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewpoints = append(m.viewpoints, vp)
}

// SetViewpoints replaces the cameras used by the next cycle.
func (m *Manager) SetViewpoints(vps []instance.Viewpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewpoints = append(m.viewpoints[:0], vps...)
}

// SetPlayerPrimitives names the primitives whose textures are boosted by
// BoostPlayerTextures every frame.
func (m *Manager) SetPlayerPrimitives(ps []instance.Primitive) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players = append(m.players[:0], ps...)
}

// AddStreamingTexture starts tracking asset. The record is created at the
// start of the next cycle.
func (m *Manager) AddStreamingTexture(asset texture.Asset) {
	if asset == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[asset]; ok {
		return
	}
	if _, ok := m.pending[asset]; ok {
		return
	}
	m.pending[asset] = len(m.pendingAdds)
	m.pendingAdds = append(m.pendingAdds, asset)
	asset.SetStreamingUpdatePending(!m.paused)
}

// RemoveStreamingTexture stops tracking asset. Its slot stays empty until
// the next cycle starts so the indices held by the budget task stay valid.
func (m *Manager) RemoveStreamingTexture(asset texture.Asset) {
	if asset == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.pending[asset]; ok {
		m.pendingAdds[i] = nil
		delete(m.pending, asset)
	} else if i, ok := m.index[asset]; ok {
		m.records[i].Asset = nil
		m.removedIndices = append(m.removedIndices, i)
		delete(m.index, asset)
	}
	m.trackRemoved(asset.Name())
	asset.SetStreamingUpdatePending(false)
}

func (m *Manager) record(asset texture.Asset) *texture.Record {
	if i, ok := m.index[asset]; ok {
		return &m.records[i]
	}
	return nil
}

func (m *Manager) recordByName(name string) *texture.Record {
	for i := range m.records {
		if a := m.records[i].Asset; a != nil && a.Name() == name {
			return &m.records[i]
		}
	}
	return nil
}

// processRemovedTextures compacts the empty slots left by removals.
func (m *Manager) processRemovedTextures() {
	for _, i := range m.removedIndices {
		for i < len(m.records) && m.records[i].Asset == nil {
			last := len(m.records) - 1
			m.records[i] = m.records[last]
			m.records[last] = texture.Record{}
			m.records = m.records[:last]
		}
		if i < len(m.records) {
			m.index[m.records[i].Asset] = i
		}
	}
	m.removedIndices = m.removedIndices[:0]
}

func (m *Manager) processAddedTextures() {
	if len(m.pendingAdds) == 0 {
		return
	}
	now := m.clock.AppTime()
	for _, a := range m.pendingAdds {
		if a == nil {
			continue
		}
		r := texture.NewRecord(a, &m.settings, now)
		if w, ok := m.warm[a.Name()]; ok {
			if w > r.ResidentMips {
				r.DynamicBoostFactor = defaultWarmStartBoost
			}
			delete(m.warm, a.Name())
		}
		m.index[a] = len(m.records)
		m.records = append(m.records, *r)
	}
	m.pendingAdds = m.pendingAdds[:0]
	clear(m.pending)
}

// setTexturesRemovedTimestamp starts the unknown-ref grace period of textures
// that just lost instances.
func (m *Manager) setTexturesRemovedTimestamp(removed []texture.Asset) {
	if len(removed) == 0 {
		return
	}
	now := m.clock.AppTime()
	for _, a := range removed {
		if r := m.record(a); r != nil {
			r.InstanceRemovedTimestamp = now
		}
	}
}

// checkUserSettings resolves the pool size and picks up new settings.
func (m *Manager) checkUserSettings() {
	m.settings = m.nextSettings
	stats := m.gpu.MemoryStats()
	size := stats.TexturePoolSize
	switch {
	case m.poolSizeOverride > 0:
		size = m.poolSizeOverride
	case m.poolSizeVRAMPercentage > 0 && stats.TotalGraphicsMemory > 0:
		size = stats.TotalGraphicsMemory * int64(m.poolSizeVRAMPercentage) / 100
	}
	size = max(size, 0)
	if size != m.poolSize {
		m.log.Info().Str("pool", mb(size)).Msg("texture pool size changed")
		m.poolSize = size
	}
}

func (m *Manager) conditionalUpdateStaticData() {
	if m.settings == m.prevSettings {
		return
	}
	for i := range m.records {
		m.records[i].UpdateStaticData(&m.settings)
	}
	m.prevSettings = m.settings
}

// setLastUpdateTime takes the visibility threshold from the first level with
// a running clock, slightly in the past to absorb render time jitter.
func (m *Manager) setLastUpdateTime() {
	for _, l := range m.levels {
		if wt := l.WorldTime(); wt > 0 {
			m.lastWorldUpdateTime = wt - defaultLastUpdateTimeOffset
			return
		}
	}
	if wt := m.clock.WorldTime(); wt > 0 {
		m.lastWorldUpdateTime = wt - defaultLastUpdateTimeOffset
	}
}

func (m *Manager) dynamicAggregator() level.Aggregator {
	if !m.useDynamic {
		return nil
	}
	return m.dynamic
}
