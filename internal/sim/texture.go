package sim

import (
	"math"
	"sync"

	"texstream/internal/texture"
)

const defaultBytesPerTexel = 1.0

// TextureOptions describes a simulated texture. Zero values pick defaults:
// one non-streaming mip, one byte per texel, one resident mip.
type TextureOptions struct {
	Group            texture.Group
	Mips             int
	NonStreamingMips int
	LODBias          int
	BytesPerTexel    float64
	ResidentMips     int
	Forced           bool
	// Bandwidth is the simulated read rate in bytes per second (0: instant).
	Bandwidth float64
}

// Texture is a texture.Asset whose resizes take size/bandwidth seconds of
// clock time. Stream outs complete on the next status update or GPU flush.
type Texture struct {
	mu    sync.Mutex
	name  string
	opts  TextureOptions
	clock *Clock

	resident   int
	requested  int
	completeAt float64
	lastRender float64
	forceUntil float64
	pending    bool

	streamIns  int
	streamOuts int
	cancels    int
}

// NewTexture creates a texture and registers it with gpu when gpu is not nil.
func NewTexture(name string, opts TextureOptions, clock *Clock, gpu *GPU) *Texture {
	// Apply defaults if unset
	if opts.Mips <= 0 {
		opts.Mips = 1
	}
	if opts.NonStreamingMips <= 0 {
		opts.NonStreamingMips = 1
	}
	opts.NonStreamingMips = min(opts.NonStreamingMips, opts.Mips)
	if opts.BytesPerTexel <= 0 {
		opts.BytesPerTexel = defaultBytesPerTexel
	}
	resident := min(max(opts.ResidentMips, opts.NonStreamingMips), opts.Mips)
	t := &Texture{
		name:       name,
		opts:       opts,
		clock:      clock,
		resident:   resident,
		requested:  resident,
		lastRender: math.Inf(-1),
		forceUntil: math.Inf(-1),
	}
	if gpu != nil {
		gpu.track(t)
	}
	return t
}

func (t *Texture) Name() string              { return t.name }
func (t *Texture) Group() texture.Group      { return t.opts.Group }
func (t *Texture) NumMips() int              { return t.opts.Mips }
func (t *Texture) NumNonStreamingMips() int  { return t.opts.NonStreamingMips }
func (t *Texture) CachedLODBias() int        { return t.opts.LODBias }
func (t *Texture) IsReadyForStreaming() bool { return true }

// CalcMemorySize is the size of the mip chain whose largest mip is
// 2^(mips-1) texels wide.
func (t *Texture) CalcMemorySize(mips int) int64 {
	if mips <= 0 {
		return 0
	}
	texels := (math.Pow(4, float64(mips)) - 1) / 3
	return int64(math.Ceil(texels * t.opts.BytesPerTexel))
}

func (t *Texture) now() float64 {
	if t.clock == nil {
		return 0
	}
	return t.clock.AppTime()
}

// StreamIn starts loading up to mips. Prioritized requests read at twice the
// bandwidth.
func (t *Texture) StreamIn(mips int, prioritize bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.requested != t.resident || mips <= t.resident || mips > t.opts.Mips {
		return false
	}
	t.requested = mips
	t.streamIns++
	t.completeAt = t.now()
	if bw := t.opts.Bandwidth; bw > 0 {
		if prioritize {
			bw *= 2
		}
		t.completeAt += float64(t.CalcMemorySize(mips)-t.CalcMemorySize(t.resident)) / bw
	}
	return true
}

func (t *Texture) StreamOut(mips int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.requested != t.resident || mips >= t.resident || mips < t.opts.NonStreamingMips {
		return false
	}
	t.requested = mips
	t.streamOuts++
	t.completeAt = t.now()
	return true
}

func (t *Texture) CancelPendingMipChangeRequest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.requested != t.resident {
		t.requested = t.resident
		t.cancels++
	}
}

func (t *Texture) UpdateStreamingStatus(bool) texture.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.requested != t.resident && t.now() >= t.completeAt {
		t.resident = t.requested
	}
	return texture.Status{InFlight: t.requested != t.resident, ResidentMips: t.resident, RequestedMips: t.requested}
}

func (t *Texture) completeStreamOut() {
	t.mu.Lock()
	if t.requested < t.resident {
		t.resident = t.requested
	}
	t.mu.Unlock()
}

func (t *Texture) LastRenderTimeForStreaming() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRender
}

// MarkRendered records that the texture was drawn at app time now.
func (t *Texture) MarkRendered(now float64) {
	t.mu.Lock()
	t.lastRender = max(t.lastRender, now)
	t.mu.Unlock()
}

func (t *Texture) ForceMipLevelsResident() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts.Forced || t.now() < t.forceUntil
}

// ForceResidentFor keeps the texture fully loaded for seconds of app time.
func (t *Texture) ForceResidentFor(seconds float64) {
	t.mu.Lock()
	t.forceUntil = t.now() + seconds
	t.mu.Unlock()
}

// CancelForceMipLevelsResident ends a ForceResidentFor period early.
func (t *Texture) CancelForceMipLevelsResident() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := t.now() < t.forceUntil
	t.forceUntil = math.Inf(-1)
	return active
}

func (t *Texture) SetStreamingUpdatePending(pending bool) {
	t.mu.Lock()
	t.pending = pending
	t.mu.Unlock()
}

// UpdatePending reports the flag last set by the streamer.
func (t *Texture) UpdatePending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// ResidentMips is the mip count currently usable by the renderer.
func (t *Texture) ResidentMips() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resident
}

// Allocated is the memory held, counting both sides of a resize in flight.
func (t *Texture) Allocated() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := t.CalcMemorySize(t.resident)
	if t.requested != t.resident {
		size += t.CalcMemorySize(t.requested)
	}
	return size
}

// Requests returns how many stream ins, stream outs and cancels were issued.
func (t *Texture) Requests() (ins, outs, cancels int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streamIns, t.streamOuts, t.cancels
}

var (
	_ texture.Asset                   = (*Texture)(nil)
	_ texture.ForcedResidencyCanceler = (*Texture)(nil)
)
