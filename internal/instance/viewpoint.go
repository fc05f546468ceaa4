package instance

import "github.com/go-gl/mathgl/mgl32"

// Viewpoint is a camera the streamer computes screen sizes against.
type Viewpoint struct {
	Origin mgl32.Vec3
	// ScreenSize is the screen width in pixels scaled by the field of view.
	ScreenSize  float32
	BoostFactor float32
}

func (vp Viewpoint) boostedScreenSize(maxEffective float32) float32 {
	size := vp.ScreenSize
	if maxEffective > 0 {
		size = min(size, maxEffective)
	}
	boost := vp.BoostFactor
	if boost <= 0 {
		boost = 1
	}
	return size * boost
}
