package instance

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Bounds is the streaming bounds of one primitive.
type Bounds struct {
	Origin mgl32.Vec3
	Extent mgl32.Vec3
	Radius float32
	// RangeOrigin is where visibility ranges are measured from.
	RangeOrigin mgl32.Vec3
	// MinDistanceSq clamps the distance used for screen size (avoids blowups up close).
	MinDistanceSq float32
	MinRangeSq    float32
	MaxRangeSq    float32
}

// NewBounds returns bounds for a box with an unlimited visibility range.
func NewBounds(origin, extent mgl32.Vec3) Bounds {
	return Bounds{
		Origin:      origin,
		Extent:      extent,
		Radius:      extent.Len(),
		RangeOrigin: origin,
		MaxRangeSq:  math.MaxFloat32,
	}
}

// Bounds4 is a structure-of-arrays batch of four bounds.
type Bounds4 struct {
	OriginX, OriginY, OriginZ                [4]float32
	RangeOriginX, RangeOriginY, RangeOriginZ [4]float32
	ExtentX, ExtentY, ExtentZ                [4]float32
	Radius                                   [4]float32
	MinDistanceSq                            [4]float32
	MinRangeSq                               [4]float32
	MaxRangeSq                               [4]float32
}

// Set stores b in slot i.
func (b4 *Bounds4) Set(i int, b Bounds) {
	b4.OriginX[i], b4.OriginY[i], b4.OriginZ[i] = b.Origin[0], b.Origin[1], b.Origin[2]
	b4.RangeOriginX[i], b4.RangeOriginY[i], b4.RangeOriginZ[i] = b.RangeOrigin[0], b.RangeOrigin[1], b.RangeOrigin[2]
	b4.ExtentX[i], b4.ExtentY[i], b4.ExtentZ[i] = b.Extent[0], b.Extent[1], b.Extent[2]
	b4.Radius[i] = b.Radius
	b4.MinDistanceSq[i] = b.MinDistanceSq
	b4.MinRangeSq[i] = b.MinRangeSq
	b4.MaxRangeSq[i] = b.MaxRangeSq
}

// Clear resets slot i to bounds that are never in range.
func (b4 *Bounds4) Clear(i int) {
	b4.Set(i, Bounds{})
}

// Get returns slot i.
func (b4 *Bounds4) Get(i int) Bounds {
	return Bounds{
		Origin:        mgl32.Vec3{b4.OriginX[i], b4.OriginY[i], b4.OriginZ[i]},
		Extent:        mgl32.Vec3{b4.ExtentX[i], b4.ExtentY[i], b4.ExtentZ[i]},
		Radius:        b4.Radius[i],
		RangeOrigin:   mgl32.Vec3{b4.RangeOriginX[i], b4.RangeOriginY[i], b4.RangeOriginZ[i]},
		MinDistanceSq: b4.MinDistanceSq[i],
		MinRangeSq:    b4.MinRangeSq[i],
		MaxRangeSq:    b4.MaxRangeSq[i],
	}
}

// Offset moves all four origins by o.
func (b4 *Bounds4) Offset(o mgl32.Vec3) {
	for i := 0; i < 4; i++ {
		b4.OriginX[i] += o[0]
		b4.OriginY[i] += o[1]
		b4.OriginZ[i] += o[2]
		b4.RangeOriginX[i] += o[0]
		b4.RangeOriginY[i] += o[1]
		b4.RangeOriginZ[i] += o[2]
	}
}
