package instance

import "texstream/internal/texture"

// Mobility tells which aggregator may own a primitive.
type Mobility int

const (
	Static Mobility = iota
	Movable
)

func (m Mobility) String() string {
	if m == Static {
		return "static"
	}
	return "movable"
}

// TextureRef is one texture used by a primitive.
type TextureRef struct {
	Texture texture.Asset
	// TexelFactor converts world size into texel density for this texture.
	TexelFactor float32
	// ForceLoad requests the texture fully loaded while the primitive exists.
	ForceLoad bool
}

// Primitive is a renderable instance as seen by the streamer.
//
// StreamingBounds and LastRenderTime may be called from background goroutines
// and must be safe for concurrent use.
type Primitive interface {
	StreamingBounds() Bounds
	// LastRenderTime is the world time the primitive was last drawn.
	LastRenderTime() float32
	StreamingTextures() []TextureRef
	Mobility() Mobility
}
