package instance

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"texstream/internal/texture"
)

type fakeTexture struct{ name string }

func (t *fakeTexture) Name() string                              { return t.name }
func (t *fakeTexture) Group() texture.Group                      { return texture.GroupWorld }
func (t *fakeTexture) NumMips() int                              { return 10 }
func (t *fakeTexture) NumNonStreamingMips() int                  { return 1 }
func (t *fakeTexture) CalcMemorySize(mips int) int64             { return int64(mips) << 10 }
func (t *fakeTexture) CachedLODBias() int                        { return 0 }
func (t *fakeTexture) IsReadyForStreaming() bool                 { return true }
func (t *fakeTexture) StreamIn(int, bool) bool                   { return true }
func (t *fakeTexture) StreamOut(int) bool                        { return true }
func (t *fakeTexture) CancelPendingMipChangeRequest()            {}
func (t *fakeTexture) UpdateStreamingStatus(bool) texture.Status { return texture.Status{} }
func (t *fakeTexture) LastRenderTimeForStreaming() float64       { return 0 }
func (t *fakeTexture) ForceMipLevelsResident() bool              { return false }
func (t *fakeTexture) SetStreamingUpdatePending(bool)            {}

type fakePrimitive struct {
	mu         sync.Mutex
	name       string
	bounds     Bounds
	renderTime float32
	refs       []TextureRef
	mobility   Mobility
}

func newPrimitive(name string, origin mgl32.Vec3, refs ...TextureRef) *fakePrimitive {
	return &fakePrimitive{name: name, bounds: NewBounds(origin, mgl32.Vec3{}), refs: refs}
}

func ref(t texture.Asset, factor float32) TextureRef {
	return TextureRef{Texture: t, TexelFactor: factor}
}

func (p *fakePrimitive) StreamingBounds() Bounds {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bounds
}

func (p *fakePrimitive) LastRenderTime() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderTime
}

func (p *fakePrimitive) setRenderTime(t float32) {
	p.mu.Lock()
	p.renderTime = t
	p.mu.Unlock()
}

func (p *fakePrimitive) move(origin mgl32.Vec3) {
	p.mu.Lock()
	p.bounds = NewBounds(origin, p.bounds.Extent)
	p.mu.Unlock()
}

func (p *fakePrimitive) StreamingTextures() []TextureRef { return p.refs }
func (p *fakePrimitive) Mobility() Mobility              { return p.mobility }
func (p *fakePrimitive) String() string                  { return p.name }
