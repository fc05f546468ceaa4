package level

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"texstream/internal/instance"
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
	origin     mgl32.Vec3
	renderTime float32
	refs       []instance.TextureRef
	mobility   instance.Mobility
}

func newStatic(origin mgl32.Vec3, textures ...texture.Asset) *fakePrimitive {
	p := &fakePrimitive{origin: origin}
	for _, t := range textures {
		p.refs = append(p.refs, instance.TextureRef{Texture: t, TexelFactor: 1})
	}
	return p
}

func newMovable(origin mgl32.Vec3, textures ...texture.Asset) *fakePrimitive {
	p := newStatic(origin, textures...)
	p.mobility = instance.Movable
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

func (p *fakePrimitive) move(origin mgl32.Vec3) {
	p.mu.Lock()
	p.origin = origin
	p.mu.Unlock()
}

func (p *fakePrimitive) setRenderTime(t float32) {
	p.mu.Lock()
	p.renderTime = t
	p.mu.Unlock()
}

func (p *fakePrimitive) setTextures(textures ...texture.Asset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = nil
	for _, t := range textures {
		p.refs = append(p.refs, instance.TextureRef{Texture: t, TexelFactor: 1})
	}
}

func primitives(ps ...*fakePrimitive) []instance.Primitive {
	out := make([]instance.Primitive, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}
