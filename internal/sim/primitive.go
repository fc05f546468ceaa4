package sim

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"texstream/internal/instance"
)

// Primitive is a box in the world drawn with a set of textures. Movable
// primitives advance by their velocity every frame.
type Primitive struct {
	mu         sync.Mutex
	name       string
	mobility   instance.Mobility
	origin     mgl32.Vec3
	extent     mgl32.Vec3
	velocity   mgl32.Vec3
	refs       []instance.TextureRef
	lastRender float32
}

// NewPrimitive returns a primitive that has never been rendered.
func NewPrimitive(name string, mobility instance.Mobility, origin, extent mgl32.Vec3, refs []instance.TextureRef) *Primitive {
	return &Primitive{
		name:       name,
		mobility:   mobility,
		origin:     origin,
		extent:     extent,
		refs:       append([]instance.TextureRef(nil), refs...),
		lastRender: -1,
	}
}

func (p *Primitive) String() string              { return p.name }
func (p *Primitive) Mobility() instance.Mobility { return p.mobility }

func (p *Primitive) StreamingBounds() instance.Bounds {
	p.mu.Lock()
	defer p.mu.Unlock()
	return instance.NewBounds(p.origin, p.extent)
}

func (p *Primitive) LastRenderTime() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRender
}

func (p *Primitive) StreamingTextures() []instance.TextureRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

func (p *Primitive) Origin() mgl32.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.origin
}

func (p *Primitive) SetVelocity(v mgl32.Vec3) {
	p.mu.Lock()
	p.velocity = v
	p.mu.Unlock()
}

// Step moves the primitive by velocity*dt and reports whether it moved.
func (p *Primitive) Step(dt float32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.velocity == (mgl32.Vec3{}) || dt <= 0 {
		return false
	}
	p.origin = p.origin.Add(p.velocity.Mul(dt))
	return true
}

// SetTextures replaces the textures; the streamer must be told with
// NotifyPrimitiveUpdated.
func (p *Primitive) SetTextures(refs []instance.TextureRef) {
	p.mu.Lock()
	p.refs = append([]instance.TextureRef(nil), refs...)
	p.mu.Unlock()
}

// distanceTo is the distance from v to the primitive's box, 0 inside it.
func (p *Primitive) distanceTo(v mgl32.Vec3) float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var d mgl32.Vec3
	for i := 0; i < 3; i++ {
		d[i] = max(mgl32.Abs(v[i]-p.origin[i])-p.extent[i], 0)
	}
	return d.Len()
}

func (p *Primitive) markRendered(worldTime float32) {
	p.mu.Lock()
	p.lastRender = worldTime
	p.mu.Unlock()
}
