package streaming

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"texstream/internal/asyncwork"
	"texstream/internal/instance"
	"texstream/internal/level"
	"texstream/internal/texture"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultFramesForFullUpdate  = 5
	defaultMemoryMarginMB       = 5
	defaultMinEvictSizeMB       = 10
	defaultBoostPlayerTextures  = 3.0
	defaultStaticStepsPerFrame  = 50
	defaultParallelism          = 2
	defaultStatsLogInterval     = 10 * time.Second
	defaultBlockPollInterval    = 10 * time.Millisecond
	defaultWarmStartBoost       = 2.0
	defaultLastUpdateTimeOffset = 0.5
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	GPU       GPUPool
	Clock     Clock
	Logger    *zerolog.Logger
	Publisher EventPublisher
	// Registerer receives the streaming metrics; nil disables them.
	Registerer prometheus.Registerer
	// Settings are the algorithm tunables; nil uses texture.DefaultSettings.
	Settings *texture.Settings

	// FramesForFullUpdate spreads one full update over this many frames.
	// Negative processes everything every frame.
	FramesForFullUpdate int
	// MemoryMarginMB is kept free in the pool; nil uses the default and
	// zero disables the margin.
	MemoryMarginMB *int64
	// MinEvictSizeMB is the smallest stream out StreamOutTextureData bothers with.
	MinEvictSizeMB int64
	// PoolSizeMB overrides the pool reported by the GPU.
	PoolSizeMB int64
	// PoolSizeVRAMPercentage sizes the pool from total graphics memory.
	PoolSizeVRAMPercentage int
	NeverStreamOutTextures bool
	// DisableDynamicStreaming ignores movable primitives.
	DisableDynamicStreaming bool
	BoostPlayerTextures     float32
	// StaticStepsPerFrame bounds static primitive insertions per frame.
	// Negative means unbounded.
	StaticStepsPerFrame int
	Parallelism         int
	StatsLogInterval    time.Duration
	// Warm restores persisted state before the first cycle.
	Warm *PersistedState
}

// NewWithConfig constructs a Manager from Config.
func NewWithConfig(cfg Config) *Manager {
	m := &Manager{
		gpu:                    cfg.GPU,
		clock:                  cfg.Clock,
		pub:                    cfg.Publisher,
		index:                  make(map[texture.Asset]int),
		pending:                make(map[texture.Asset]int),
		staticOf:               make(map[instance.Primitive]*level.StaticManager),
		neverStreamOut:         cfg.NeverStreamOutTextures,
		useDynamic:             !cfg.DisableDynamicStreaming,
		poolSizeOverride:       cfg.PoolSizeMB << 20,
		poolSizeVRAMPercentage: cfg.PoolSizeVRAMPercentage,
		startTime:              time.Now(),
	}
	// Apply defaults if unset
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "streaming").Logger()
	} else {
		m.log = zerolog.Nop()
	}
	if m.gpu == nil {
		m.gpu = unlimitedPool{}
	}
	if m.clock == nil {
		m.clock = NewSystemClock()
	}
	if m.pub == nil {
		m.pub = noopPublisher{}
	}
	if cfg.Settings != nil {
		m.settings = *cfg.Settings
	} else {
		m.settings = texture.DefaultSettings()
	}
	m.nextSettings = m.settings
	m.prevSettings = m.settings
	switch {
	case cfg.FramesForFullUpdate == 0:
		m.framesForFullUpdate = defaultFramesForFullUpdate
	case cfg.FramesForFullUpdate < 0:
		m.framesForFullUpdate = 0
	default:
		m.framesForFullUpdate = cfg.FramesForFullUpdate
	}
	if cfg.MemoryMarginMB == nil || *cfg.MemoryMarginMB < 0 {
		m.memoryMargin = defaultMemoryMarginMB << 20
	} else {
		m.memoryMargin = *cfg.MemoryMarginMB << 20
	}
	if cfg.MinEvictSizeMB <= 0 {
		m.minEvictSize = defaultMinEvictSizeMB << 20
	} else {
		m.minEvictSize = cfg.MinEvictSizeMB << 20
	}
	if cfg.BoostPlayerTextures <= 0 {
		m.boostPlayerTextures = defaultBoostPlayerTextures
	} else {
		m.boostPlayerTextures = cfg.BoostPlayerTextures
	}
	switch {
	case cfg.StaticStepsPerFrame == 0:
		m.staticStepsPerFrame = defaultStaticStepsPerFrame
	case cfg.StaticStepsPerFrame < 0:
		m.staticStepsPerFrame = -1
	default:
		m.staticStepsPerFrame = cfg.StaticStepsPerFrame
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	if cfg.StatsLogInterval <= 0 {
		m.statsLogInterval = defaultStatsLogInterval
	} else {
		m.statsLogInterval = cfg.StatsLogInterval
	}
	if cfg.Registerer != nil {
		m.metrics = NewMetrics(cfg.Registerer)
	}

	m.pool = asyncwork.NewPool(m.log, parallelism)
	m.dynamic = level.NewDynamicManager(m.pool, m.log)
	m.task = newBudgetTask()
	m.job = asyncwork.NewJob(m.task.run)
	if cfg.Warm != nil {
		m.restore(cfg.Warm)
	}
	return m
}
