package texture

import "math"

// MaxMipCount is the largest mip chain the streamer tracks.
const MaxMipCount = 14

// Policy constants. Tuned values, not derived ones.
const (
	// UnknownRefGracePeriod is how long after its last instance was removed a
	// texture may still be rendered before it is treated as referenced by
	// something the streamer cannot see.
	UnknownRefGracePeriod = 5.0
	HugeTextureSize       = 8 << 20
	SmallTextureSize      = 200 << 10
	// FullyLoadUsedWindow is the render recency, in seconds, that keeps a
	// texture fully loaded when FullyLoadUsedTextures is set.
	FullyLoadUsedWindow = 300
)

// RecordState is the request state of a record.
type RecordState int

const (
	Idle RecordState = iota
	LoadPending
	UnloadPending
)

func (s RecordState) String() string {
	switch s {
	case LoadPending:
		return "load_pending"
	case UnloadPending:
		return "unload_pending"
	default:
		return "idle"
	}
}

// Record is the streamer's runtime view of one streamable texture.
//
// Static fields are refreshed by UpdateStaticData when settings change.
// Dynamic fields are refreshed on the main goroutine every frame.
// Async fields are produced by the background budget worker on its own copy
// and merged back with ApplyAsyncResult.
type Record struct {
	Asset Asset

	// static
	Group               Group
	IsTerrain           bool
	IsCharacter         bool
	MipCount            int
	NumNonStreamingMips int
	// PerMipByteSize[n] is the size with n resident mips; monotone in n.
	PerMipByteSize [MaxMipCount + 1]int64
	BoostFactor    float32

	// dynamic
	ResidentMips      int
	RequestedMips     int
	MinAllowedMips    int
	MaxAllowedMips    int
	InFlight          bool
	ReadyForStreaming bool
	ForceFullyLoad    bool
	// LastRenderTime is seconds elapsed since the texture was last rendered.
	LastRenderTime float32
	// InstanceRemovedTimestamp is the app time its last instance was removed
	// (-Inf when that never happened).
	InstanceRemovedTimestamp float64
	DynamicBoostFactor       float32
	HasUpdatePending         bool

	// async
	VisibleWantedMips       int
	HiddenWantedMips        int
	NumMissingMips          int
	BudgetedMips            int
	BudgetMaxMips           int
	BudgetMipBias           int
	WantedMips              int
	RetentionPriority       int
	LoadOrderPriority       int
	ForceFullyLoadHeuristic bool
	LooksLowRes             bool
	UseUnknownRefHeuristic  bool
}

// NewRecord builds a record for asset with static and dynamic data filled in.
func NewRecord(asset Asset, settings *Settings, now float64) *Record {
	r := &Record{
		Asset:                    asset,
		InstanceRemovedTimestamp: math.Inf(-1),
		DynamicBoostFactor:       1,
	}
	r.UpdateStaticData(settings)
	r.UpdateDynamicData(settings, now, false)
	r.VisibleWantedMips = r.ResidentMips
	r.HiddenWantedMips = r.ResidentMips
	r.BudgetedMips = clampInt(r.ResidentMips, r.MinAllowedMips, r.MaxAllowedMips)
	r.BudgetMaxMips = r.MaxAllowedMips
	r.WantedMips = r.ResidentMips
	return r
}

// UpdateStaticData caches properties that only change with the asset or settings.
func (r *Record) UpdateStaticData(settings *Settings) {
	if r.Asset == nil {
		return
	}
	r.Group = r.Asset.Group()
	r.IsTerrain = r.Group.IsTerrain()
	r.IsCharacter = r.Group.IsCharacter()
	r.MipCount = clampInt(r.Asset.NumMips(), 0, MaxMipCount)
	r.NumNonStreamingMips = clampInt(r.Asset.NumNonStreamingMips(), 0, r.MipCount)
	r.BoostFactor = ExtraBoost(r.Group, settings)

	r.PerMipByteSize[0] = 0
	for mips := 1; mips <= MaxMipCount; mips++ {
		size := r.PerMipByteSize[mips-1]
		if mips <= r.MipCount {
			if s := r.Asset.CalcMemorySize(mips); s > size {
				size = s
			}
		}
		r.PerMipByteSize[mips] = size
	}
}

// UpdateDynamicData refreshes resident state, render recency and the allowed
// mip range. now is the current app time in seconds.
func (r *Record) UpdateDynamicData(settings *Settings, now float64, waitForFade bool) {
	if r.Asset == nil {
		r.clearDynamic()
		return
	}
	r.UpdateStreamingStatus(waitForFade)

	if last := r.Asset.LastRenderTimeForStreaming(); now > last {
		r.LastRenderTime = float32(now - last)
	} else {
		r.LastRenderTime = 0
	}

	r.ForceFullyLoad = r.Asset.ForceMipLevelsResident() ||
		r.Group == GroupSkybox ||
		(settings.FullyLoadUsedTextures && r.LastRenderTime < FullyLoadUsedWindow)

	lodBias := 0
	if !settings.UseAllMips {
		lodBias = max(r.Asset.CachedLODBias(), 0)
		if r.IsMaxResolutionAffectedByGlobalBias() {
			lodBias += settings.GlobalMipBias
		}
	}
	r.MaxAllowedMips = clampInt(min(r.MipCount-lodBias, MaxMipCount), r.NumNonStreamingMips, r.MipCount)

	r.MinAllowedMips = r.NumNonStreamingMips
	if n := settings.NumStreamedMips[r.Group]; n >= 0 {
		r.MinAllowedMips = clampInt(r.MipCount-n, r.NumNonStreamingMips, r.MaxAllowedMips)
	}

	r.BudgetedMips = clampInt(r.BudgetedMips, r.MinAllowedMips, r.MaxAllowedMips)
	r.BudgetMaxMips = clampInt(r.BudgetMaxMips, r.BudgetedMips, r.MaxAllowedMips)
}

func (r *Record) clearDynamic() {
	r.ResidentMips, r.RequestedMips = 0, 0
	r.MinAllowedMips, r.MaxAllowedMips = 0, 0
	r.BudgetedMips, r.BudgetMaxMips, r.WantedMips = 0, 0, 0
	r.VisibleWantedMips, r.HiddenWantedMips, r.NumMissingMips = 0, 0, 0
	r.InFlight, r.ReadyForStreaming = false, false
	r.RetentionPriority, r.LoadOrderPriority = 0, 0
}

// UpdateStreamingStatus pulls resident/requested mips from the asset.
func (r *Record) UpdateStreamingStatus(waitForFade bool) {
	if r.Asset == nil {
		r.InFlight, r.ReadyForStreaming = false, false
		return
	}
	st := r.Asset.UpdateStreamingStatus(waitForFade)
	r.InFlight = st.InFlight
	r.ResidentMips = clampInt(st.ResidentMips, 0, r.MipCount)
	r.RequestedMips = clampInt(st.RequestedMips, 0, r.MipCount)
	r.ReadyForStreaming = r.Asset.IsReadyForStreaming()
}

// State reports whether a resize toward more or fewer mips is outstanding.
func (r *Record) State() RecordState {
	switch {
	case r.RequestedMips > r.ResidentMips:
		return LoadPending
	case r.RequestedMips < r.ResidentMips:
		return UnloadPending
	default:
		return Idle
	}
}

// Size returns the byte size with mips resident.
func (r *Record) Size(mips int) int64 {
	return r.PerMipByteSize[clampInt(mips, 0, MaxMipCount)]
}

// IsMaxResolutionAffectedByGlobalBias reports whether budget pressure and the
// global mip bias may lower this texture's max resolution.
func (r *Record) IsMaxResolutionAffectedByGlobalBias() bool {
	return r.Group != GroupHierarchicalLOD && !r.IsTerrain && !r.ForceFullyLoad && !r.ForceFullyLoadHeuristic
}

// HasUpdatePendingFor computes the "streaming still settling" flag mirrored onto the asset.
func (r *Record) HasUpdatePendingFor(paused, hasViewpoint bool) bool {
	if r.Asset == nil || paused {
		return false
	}
	validBudget := hasViewpoint || r.ForceFullyLoadHeuristic
	return r.BudgetedMips > r.ResidentMips || !validBudget
}

// ApplyAsyncResult copies the fields computed by the budget worker from src.
func (r *Record) ApplyAsyncResult(src *Record) {
	if r.Asset == nil {
		return
	}
	r.VisibleWantedMips = src.VisibleWantedMips
	r.HiddenWantedMips = src.HiddenWantedMips
	r.NumMissingMips = src.NumMissingMips
	r.BudgetMaxMips = clampInt(src.BudgetMaxMips, r.MinAllowedMips, r.MaxAllowedMips)
	r.BudgetedMips = clampInt(src.BudgetedMips, r.MinAllowedMips, r.BudgetMaxMips)
	r.BudgetMipBias = src.BudgetMipBias
	r.WantedMips = clampInt(src.WantedMips, 0, r.MipCount)
	r.RetentionPriority = src.RetentionPriority
	r.LoadOrderPriority = src.LoadOrderPriority
	r.ForceFullyLoadHeuristic = src.ForceFullyLoadHeuristic
	r.LooksLowRes = src.LooksLowRes
	r.UseUnknownRefHeuristic = src.UseUnknownRefHeuristic
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
