package streaming

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"texstream/internal/instance"
	"texstream/internal/texture"
)

// sizeOf is the byte size of a fakeAsset with mips resident.
func sizeOf(mips int) int64 {
	if mips <= 0 {
		return 0
	}
	return int64(1) << (2 * mips)
}

// fakeAsset completes every resize on its next status update unless hold is set.
type fakeAsset struct {
	name       string
	group      texture.Group
	mips       int
	resident   int
	requested  int
	hold       bool
	lastRender float64
	forced     bool
	timedForce bool
	pending    bool

	streamIns  []int
	streamOuts []int
	cancels    int
}

func newAsset(name string, mips, resident int) *fakeAsset {
	return &fakeAsset{name: name, mips: mips, resident: resident, requested: resident}
}

func (a *fakeAsset) Name() string                  { return a.name }
func (a *fakeAsset) Group() texture.Group          { return a.group }
func (a *fakeAsset) NumMips() int                  { return a.mips }
func (a *fakeAsset) NumNonStreamingMips() int      { return 1 }
func (a *fakeAsset) CalcMemorySize(mips int) int64 { return sizeOf(mips) }
func (a *fakeAsset) CachedLODBias() int            { return 0 }
func (a *fakeAsset) IsReadyForStreaming() bool     { return true }

func (a *fakeAsset) StreamIn(mips int, _ bool) bool {
	a.streamIns = append(a.streamIns, mips)
	a.requested = mips
	return true
}

func (a *fakeAsset) StreamOut(mips int) bool {
	a.streamOuts = append(a.streamOuts, mips)
	a.requested = mips
	return true
}

func (a *fakeAsset) CancelPendingMipChangeRequest() {
	a.cancels++
	a.requested = a.resident
}

func (a *fakeAsset) UpdateStreamingStatus(bool) texture.Status {
	if !a.hold {
		a.resident = a.requested
	}
	return texture.Status{InFlight: a.requested != a.resident, ResidentMips: a.resident, RequestedMips: a.requested}
}

func (a *fakeAsset) LastRenderTimeForStreaming() float64 { return a.lastRender }
func (a *fakeAsset) ForceMipLevelsResident() bool        { return a.forced || a.timedForce }
func (a *fakeAsset) SetStreamingUpdatePending(p bool)    { a.pending = p }

func (a *fakeAsset) CancelForceMipLevelsResident() bool {
	was := a.timedForce
	a.timedForce = false
	return was
}

type fakeClock struct {
	mu    sync.Mutex
	app   float64
	world float32
}

func (c *fakeClock) AppTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app
}

func (c *fakeClock) WorldTime() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world
}

func (c *fakeClock) set(app float64, world float32) {
	c.mu.Lock()
	c.app, c.world = app, world
	c.mu.Unlock()
}

type fakeGPU struct {
	mu      sync.Mutex
	stats   MemoryStats
	flushes int
}

func (g *fakeGPU) MemoryStats() MemoryStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *fakeGPU) Flush() {
	g.mu.Lock()
	g.flushes++
	g.mu.Unlock()
}

type fakePrimitive struct {
	mu         sync.Mutex
	name       string
	origin     mgl32.Vec3
	renderTime float32
	refs       []instance.TextureRef
	mobility   instance.Mobility
}

func newPrimitive(name string, mobility instance.Mobility, origin mgl32.Vec3, texelFactor float32, textures ...texture.Asset) *fakePrimitive {
	p := &fakePrimitive{name: name, origin: origin, mobility: mobility, renderTime: 10}
	for _, t := range textures {
		p.refs = append(p.refs, instance.TextureRef{Texture: t, TexelFactor: texelFactor})
	}
	return p
}

func (p *fakePrimitive) StreamingBounds() instance.Bounds {
	p.mu.Lock()
	defer p.mu.Unlock()
	return instance.NewBounds(p.origin, mgl32.Vec3{1, 1, 1})
}

func (p *fakePrimitive) LastRenderTime() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderTime
}

func (p *fakePrimitive) StreamingTextures() []instance.TextureRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

func (p *fakePrimitive) Mobility() instance.Mobility { return p.mobility }
func (p *fakePrimitive) String() string              { return p.name }

var _ fmt.Stringer = (*fakePrimitive)(nil)

// testSettings uses sphere distances so sizes are easy to compute by hand.
func testSettings() *texture.Settings {
	s := texture.DefaultSettings()
	s.UseNewMetrics = false
	s.MinLevelTextureScreenSize = 0
	return &s
}

// newTestManager builds a manager on fakes with the given pool size
// (0: unlimited).
func newTestManager(poolSize int64, frames int) (*Manager, *fakeGPU, *fakeClock, *MemoryPublisher) {
	gpu := &fakeGPU{stats: MemoryStats{TexturePoolSize: poolSize, TotalGraphicsMemory: 8 << 30}}
	clock := &fakeClock{app: 100, world: 10}
	pub := NewMemoryPublisher()
	margin := int64(1)
	m := NewWithConfig(Config{
		GPU:                 gpu,
		Clock:               clock,
		Publisher:           pub,
		Settings:            testSettings(),
		FramesForFullUpdate: frames,
		MemoryMarginMB:      &margin,
		MinEvictSizeMB:      1,
		StaticStepsPerFrame: -1,
	})
	return m, gpu, clock, pub
}

// newTestRecord builds a record the way the manager does.
func newTestRecord(a *fakeAsset, settings *texture.Settings, now float64) texture.Record {
	return *texture.NewRecord(a, settings, now)
}

func eventsNamed(pub *MemoryPublisher, name string) []Event {
	var out []Event
	for _, e := range pub.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
