package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StreamingStats are the byte counters gathered by the last completed
// streaming cycle.
type StreamingStats struct {
	// Size of the texture pool in bytes (0 when unlimited).
	// example: 1073741824
	PoolSize int64 `json:"pool_size" example:"1073741824"`
	// Bytes the budget pass may hand out to streamed mips.
	// example: 805306368
	MemoryBudget int64 `json:"memory_budget" example:"805306368"`
	// Bytes every texture would use at its perfect wanted mips.
	// example: 912261120
	RequiredPool int64 `json:"required_pool" example:"912261120"`
	// Largest RequiredPool seen since the last reset.
	// example: 1200000000
	MaxEverRequired int64 `json:"max_ever_required" example:"1200000000"`
	// Bytes RequiredPool exceeds MemoryBudget by.
	// example: 0
	OverBudget int64 `json:"over_budget" example:"0"`
	// Resident bytes wanted by visible instances.
	// example: 500000000
	VisibleMips int64 `json:"visible_mips" example:"500000000"`
	// Resident bytes wanted by instances not seen recently.
	// example: 100000000
	HiddenMips int64 `json:"hidden_mips" example:"100000000"`
	// Resident bytes of force-loaded textures.
	// example: 20000000
	ForcedMips int64 `json:"forced_mips" example:"20000000"`
	// Resident bytes kept for textures referenced by unknown instances.
	// example: 4000000
	UnknownRefMips int64 `json:"unknown_ref_mips" example:"4000000"`
	// Resident bytes no view currently asks for.
	// example: 30000000
	CachedMips int64 `json:"cached_mips" example:"30000000"`
	// Bytes of the wanted mips of every texture.
	// example: 650000000
	WantedMips int64 `json:"wanted_mips" example:"650000000"`
	// Bytes requested by the load requests issued this cycle.
	// example: 8388608
	NewRequests int64 `json:"new_requests" example:"8388608"`
	// Bytes held by resize requests still in flight.
	// example: 4194304
	PendingRequests int64 `json:"pending_requests" example:"4194304"`
	// Bytes per second streamed in over the last cycle.
	// example: 52428800
	MipIOBandwidth float64 `json:"mip_io_bandwidth" example:"52428800"`
	// Number of textures wanting more mips than resident.
	// example: 12
	NumWanting int `json:"num_wanting" example:"12"`
	// Load and cancel requests issued by the last cycle.
	// example: 6
	NumLoadRequests int `json:"num_load_requests" example:"6"`
	// example: 1
	NumCancelRequests int `json:"num_cancel_requests" example:"1"`
	// Completed streaming cycles since start.
	// example: 420
	Cycles uint64 `json:"cycles" example:"420"`
	// Duration of the last background budget pass in milliseconds.
	// example: 1.5
	CycleMillis float64 `json:"cycle_ms" example:"1.5"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Whether streaming is paused.
	// example: false
	Paused bool `json:"paused" example:"false"`
	// Current stage of the amortized update.
	// example: 2
	ProcessingStage int `json:"processing_stage" example:"2"`
	// Frames one full update is spread across.
	// example: 5
	NumStages int `json:"num_stages" example:"5"`
	// Number of tracked textures.
	// example: 250
	NumTextures int `json:"num_textures" example:"250"`
	// Number of registered levels.
	// example: 2
	NumLevels int `json:"num_levels" example:"2"`
	// Number of primitives tracked by the dynamic manager.
	// example: 14
	NumDynamicPrimitives int `json:"num_dynamic_primitives" example:"14"`
	// Number of viewpoints used by the current cycle.
	// example: 1
	NumViewpoints int `json:"num_viewpoints" example:"1"`
	// Stats of the last completed cycle.
	Stats StreamingStats `json:"stats"`
	// Last error observed by the streamer (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// TextureStatus is the streaming state of one texture.
type TextureStatus struct {
	// example: T_Rock_01_D
	Name string `json:"name" example:"T_Rock_01_D"`
	// LOD group of the texture.
	// example: world
	Group string `json:"group" example:"world"`
	// example: 12
	MipCount int `json:"mip_count" example:"12"`
	// example: 9
	ResidentMips int `json:"resident_mips" example:"9"`
	// example: 10
	RequestedMips int `json:"requested_mips" example:"10"`
	// example: 10
	WantedMips int `json:"wanted_mips" example:"10"`
	// example: 10
	BudgetedMips int `json:"budgeted_mips" example:"10"`
	// Mips the texture would get with an unlimited budget.
	// example: 11
	PerfectWantedMips int `json:"perfect_wanted_mips" example:"11"`
	// example: 4
	MinAllowedMips int `json:"min_allowed_mips" example:"4"`
	// example: 12
	MaxAllowedMips int `json:"max_allowed_mips" example:"12"`
	// Mips removed from the max resolution by budget pressure.
	// example: 1
	BudgetMipBias int `json:"budget_mip_bias" example:"1"`
	// example: 1398128
	ResidentBytes int64 `json:"resident_bytes" example:"1398128"`
	// example: 5592432
	WantedBytes int64 `json:"wanted_bytes" example:"5592432"`
	// example: 22369648
	MaxAllowedBytes int64 `json:"max_allowed_bytes" example:"22369648"`
	// Seconds since the texture was last rendered.
	// example: 0.5
	LastRenderTime float32 `json:"last_render_time" example:"0.5"`
	// example: 1792
	RetentionPriority int `json:"retention_priority" example:"1792"`
	// example: 1280
	LoadOrderPriority int `json:"load_order_priority" example:"1280"`
	// Request state: idle, load_pending or unload_pending.
	// example: load_pending
	State string `json:"state" example:"load_pending"`
	// example: false
	ForceFullyLoad bool `json:"force_fully_load" example:"false"`
	// example: false
	UnknownRef bool `json:"unknown_ref" example:"false"`
	// example: true
	InFlight bool `json:"in_flight" example:"true"`
}

// TexturesResponse wraps GET /textures.
type TexturesResponse struct {
	Textures []TextureStatus `json:"textures"`
}

// ContributionInfo is how one instance sizes a texture from one viewpoint.
type ContributionInfo struct {
	// Name of the referencing primitive.
	// example: rock_042
	Primitive string `json:"primitive" example:"rock_042"`
	// Index of the viewpoint.
	// example: 0
	Viewpoint int `json:"viewpoint" example:"0"`
	// Where the instance lives: a level id or "dynamic".
	// example: persistent
	Source string `json:"source" example:"persistent"`
	// example: 350.5
	Distance float32 `json:"distance" example:"350.5"`
	// example: 64
	TexelFactor float32 `json:"texel_factor" example:"64"`
	// Texel size on screen.
	// example: 338.2
	Size float32 `json:"size" example:"338.2"`
	// example: true
	InRange bool `json:"in_range" example:"true"`
	// example: true
	Visible bool `json:"visible" example:"true"`
	// example: false
	ForceLoad bool `json:"force_load,omitempty" example:"false"`
}

// TextureInvestigation is the detailed breakdown of one texture.
type TextureInvestigation struct {
	Texture TextureStatus `json:"texture"`
	// Why the texture is fully loaded, empty when it is not.
	// example: forced by asset
	ForceReason string `json:"force_reason,omitempty" example:"forced by asset"`
	// example: 1
	BoostFactor float32 `json:"boost_factor" example:"1"`
	// example: 1
	DynamicBoostFactor float32 `json:"dynamic_boost_factor" example:"1"`
	// Largest texel size over all instances.
	// example: 338.2
	MaxSize float32 `json:"max_size" example:"338.2"`
	// Largest texel size over instances seen recently.
	// example: 338.2
	MaxSizeVisible float32 `json:"max_size_visible" example:"338.2"`
	// example: 10
	VisibleWantedMips int `json:"visible_wanted_mips" example:"10"`
	// example: 9
	HiddenWantedMips int `json:"hidden_wanted_mips" example:"9"`
	// example: 0
	NumMissingMips int `json:"num_missing_mips" example:"0"`
	// Per instance and viewpoint breakdown.
	Contributions []ContributionInfo `json:"contributions"`
}

// InvestigateResponse lists every texture whose name matched.
type InvestigateResponse struct {
	Matches []TextureInvestigation `json:"matches"`
}

// LevelInfo summarizes one registered level.
type LevelInfo struct {
	// example: persistent
	ID string `json:"id" example:"persistent"`
	// example: 1200
	Primitives int `json:"primitives" example:"1200"`
	// example: 180
	Textures int `json:"textures" example:"180"`
	// Primitives still waiting to be inserted.
	// example: false
	Building bool `json:"building" example:"false"`
	// example: true
	Visible bool `json:"visible" example:"true"`
}

// LevelsResponse wraps GET /levels.
type LevelsResponse struct {
	Levels []LevelInfo `json:"levels"`
}

// StreamOutRequest asks the streamer to free memory.
type StreamOutRequest struct {
	// Bytes to free, in MB.
	// example: 64
	MB int64 `json:"mb" example:"64"`
}

// StreamOutResponse reports the outcome of a forced stream out.
type StreamOutResponse struct {
	// example: 67108864
	RequestedBytes int64 `json:"requested_bytes" example:"67108864"`
	// example: 70254592
	FreedBytes int64 `json:"freed_bytes" example:"70254592"`
	// example: true
	Succeeded bool `json:"succeeded" example:"true"`
}

// UpdateTextureResponse is returned by POST /textures/{name}/update.
type UpdateTextureResponse struct {
	// example: T_Rock_01_D
	Name string `json:"name" example:"T_Rock_01_D"`
	// example: 11
	WantedMips int `json:"wanted_mips" example:"11"`
	// Resize issued to the asset: none, stream_in or stream_out.
	// example: stream_in
	Action string `json:"action" example:"stream_in"`
}

// PauseResponse reports the pause state after a pause/resume call.
type PauseResponse struct {
	// example: true
	Paused bool `json:"paused" example:"true"`
}

// ResetMaxResponse reports the MaxEverRequired value cleared by POST /reset-max.
type ResetMaxResponse struct {
	// example: 1200000000
	Previous int64 `json:"previous" example:"1200000000"`
}

// BlockResponse reports how many requests were still in flight when
// POST /block returned.
type BlockResponse struct {
	// example: 0
	Pending int `json:"pending" example:"0"`
}

// EventMessage is one streaming event as sent over /ws.
type EventMessage struct {
	// example: stream_in
	Name string `json:"name" example:"stream_in"`
	// example: T_Rock_01_D
	Texture string `json:"texture,omitempty" example:"T_Rock_01_D"`
	// Event specific values.
	Fields map[string]any `json:"fields,omitempty"`
	// Unix milliseconds.
	// example: 1700000000000
	Time int64 `json:"time" example:"1700000000000"`
}

// EventsResponse wraps GET /events.
type EventsResponse struct {
	Events []EventMessage `json:"events"`
}

// LevelVisibilityRequest is the body of PUT /levels/{id}/visibility.
type LevelVisibilityRequest struct {
	// example: false
	Visible bool `json:"visible" example:"false"`
}

// Feed message kinds sent over /ws.
const (
	FeedHello  = "hello"
	FeedStatus = "status"
	FeedEvent  = "event"
)

// FeedMessage is one message of the /ws feed. Exactly one of Status and
// Event is set, except for the initial hello.
type FeedMessage struct {
	// example: status
	Type string `json:"type" example:"status"`
	// Session id assigned on connect.
	// example: 0f8fad5b-d9cb-469f-a165-70867728950e
	Session string          `json:"session,omitempty" example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
	Status  *StatusResponse `json:"status,omitempty"`
	Event   *EventMessage   `json:"event,omitempty"`
}

// TrackResponse reports a track or untrack call.
type TrackResponse struct {
	// Case-insensitive substring of the texture names.
	// example: rock
	Pattern string `json:"pattern" example:"rock"`
	// False when the pattern was already (or was not) tracked.
	// example: true
	Changed bool `json:"changed" example:"true"`
}

// TrackedTexture is the last recorded state of a tracked texture.
type TrackedTexture struct {
	// example: T_Rock_01_D
	Name string `json:"name" example:"T_Rock_01_D"`
	// example: world
	Group string `json:"group" example:"world"`
	// example: 9
	ResidentMips int `json:"resident_mips" example:"9"`
	// example: 11
	RequestedMips int `json:"requested_mips" example:"11"`
	// example: 11
	WantedMips int `json:"wanted_mips" example:"11"`
	// example: load_pending
	State string `json:"state" example:"load_pending"`
	// example: 1
	BoostFactor float32 `json:"boost_factor" example:"1"`
	// Number of recorded state changes.
	// example: 3
	Changes int `json:"changes" example:"3"`
	// Unix milliseconds of the last change.
	// example: 1700000000000
	ChangedAt int64 `json:"changed_at" example:"1700000000000"`
	// The texture is no longer registered with the streamer.
	// example: false
	Removed bool `json:"removed,omitempty" example:"false"`
}

// TrackedResponse wraps GET /tracked, most recent change first.
type TrackedResponse struct {
	Patterns []string         `json:"patterns"`
	Textures []TrackedTexture `json:"textures"`
}

// GroupStats sums the textures of one LOD group.
type GroupStats struct {
	// example: world
	Group string `json:"group" example:"world"`
	// example: 120
	NumTextures int `json:"num_textures" example:"120"`
	// example: 268435456
	ResidentBytes int64 `json:"resident_bytes" example:"268435456"`
	// example: 301989888
	WantedBytes int64 `json:"wanted_bytes" example:"301989888"`
	// example: 536870912
	MaxAllowedBytes int64 `json:"max_allowed_bytes" example:"536870912"`
	// Mips of the group that may stream, -1 for all.
	// example: -1
	NumStreamedMips int `json:"num_streamed_mips" example:"-1"`
}

// GroupsResponse wraps GET /groups.
type GroupsResponse struct {
	Groups []GroupStats `json:"groups"`
}

// SettingsRequest is the body of PUT /settings. Omitted fields keep their
// value.
type SettingsRequest struct {
	// example: 0.8
	LightmapStreamingFactor *float32 `json:"lightmap_streaming_factor,omitempty" example:"0.8"`
	// example: 0.09
	ShadowmapStreamingFactor *float32 `json:"shadowmap_streaming_factor,omitempty" example:"0.09"`
	// example: 0.5
	HiddenPrimitiveScale *float32 `json:"hidden_primitive_scale,omitempty" example:"0.5"`
	// example: 0
	GlobalMipBias *int `json:"global_mip_bias,omitempty" example:"0"`
	// Per group override, -1 streams every mip.
	NumStreamedMips map[string]int `json:"num_streamed_mips,omitempty"`
}

// SettingsResponse reports the settings the next streaming cycle uses.
type SettingsResponse struct {
	// example: 1
	LightmapStreamingFactor float32 `json:"lightmap_streaming_factor" example:"1"`
	// example: 0.09
	ShadowmapStreamingFactor float32 `json:"shadowmap_streaming_factor" example:"0.09"`
	// example: 0.5
	HiddenPrimitiveScale float32 `json:"hidden_primitive_scale" example:"0.5"`
	// example: 0
	GlobalMipBias int `json:"global_mip_bias" example:"0"`
	// example: 52428800
	MaxTempMemoryAllowed int64          `json:"max_temp_memory_allowed" example:"52428800"`
	NumStreamedMips      map[string]int `json:"num_streamed_mips"`
}

// CancelResponse reports how many textures POST /cancel-forced or
// POST /cancel-streaming affected.
type CancelResponse struct {
	// example: 2
	Canceled int `json:"canceled" example:"2"`
}
