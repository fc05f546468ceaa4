package texture

// Status is what the asset reports about its resident and in-flight mips.
type Status struct {
	InFlight      bool
	ResidentMips  int
	RequestedMips int
}

// Asset is the external streamable texture the record drives. The
// streamer calls it from the main goroutine only.
type Asset interface {
	Name() string
	Group() Group
	NumMips() int
	NumNonStreamingMips() int
	// CalcMemorySize returns the bytes held when the top mips mips are resident.
	CalcMemorySize(mips int) int64
	CachedLODBias() int
	IsReadyForStreaming() bool
	// StreamIn and StreamOut start an asynchronous resize; false means refused.
	StreamIn(mips int, prioritizeIO bool) bool
	StreamOut(mips int) bool
	CancelPendingMipChangeRequest()
	UpdateStreamingStatus(waitForFade bool) Status
	// LastRenderTimeForStreaming is the app time (seconds) the texture was last sampled.
	LastRenderTimeForStreaming() float64
	ForceMipLevelsResident() bool
	SetStreamingUpdatePending(pending bool)
}

// ForcedResidencyCanceler is implemented by assets whose forced residency
// can be revoked.
type ForcedResidencyCanceler interface {
	// CancelForceMipLevelsResident clears a timed force and reports whether
	// one was active.
	CancelForceMipLevelsResident() bool
}
