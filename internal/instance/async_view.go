package instance

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"texstream/internal/texture"
)

type boundsSize struct {
	maxNormalized        float32
	maxNormalizedVisible float32
}

// AsyncView wraps a view with the per-bounds screen sizes computed by the
// background worker for one cycle.
type AsyncView struct {
	view                      *View
	sizes                     []boundsSize
	maxLevelTextureScreenSize float32
}

// NewAsyncView wraps v.
func NewAsyncView(v *View) *AsyncView {
	return &AsyncView{view: v}
}

func (a *AsyncView) View() *View { return a.view }

// MaxLevelTextureScreenSize is the largest texel size any element of the view
// can produce this cycle. Views below the configured minimum are skipped.
func (a *AsyncView) MaxLevelTextureScreenSize() float32 { return a.maxLevelTextureScreenSize }

func sqrt32(x float32) float32 { return float32(math.Sqrt(float64(x))) }

// UpdateBoundSizes computes, for every bounds, the largest normalized screen
// size over all viewpoints and the same restricted to bounds rendered after
// lastUpdateTime. It works four bounds at a time and checks shouldAbort once
// per batch; batches after an abort keep a zero size.
func (a *AsyncView) UpdateBoundSizes(viewpoints []Viewpoint, lastUpdateTime float32, settings *texture.Settings, shouldAbort func() bool) {
	st := a.view.s
	n := st.numBounds()
	a.sizes = make([]boundsSize, n)
	a.maxLevelTextureScreenSize = 0

	for b := range st.bounds {
		if shouldAbort != nil && shouldAbort() {
			return
		}
		b4 := &st.bounds[b]
		var maxSize, maxVisible [4]float32

		for _, vp := range viewpoints {
			screen := vp.boostedScreenSize(settings.MaxEffectiveScreenSize)
			for j := 0; j < 4; j++ {
				dx := vp.Origin[0] - b4.OriginX[j]
				dy := vp.Origin[1] - b4.OriginY[j]
				dz := vp.Origin[2] - b4.OriginZ[j]

				var distSq float32
				if settings.UseNewMetrics {
					ax := max(mgl32.Abs(dx)-b4.ExtentX[j], 0)
					ay := max(mgl32.Abs(dy)-b4.ExtentY[j], 0)
					az := max(mgl32.Abs(dz)-b4.ExtentZ[j], 0)
					distSq = ax*ax + ay*ay + az*az
				} else {
					distSq = max(dx*dx+dy*dy+dz*dz-b4.Radius[j]*b4.Radius[j], 0)
				}
				distSq = max(distSq, b4.MinDistanceSq[j], 1)

				rx := vp.Origin[0] - b4.RangeOriginX[j]
				ry := vp.Origin[1] - b4.RangeOriginY[j]
				rz := vp.Origin[2] - b4.RangeOriginZ[j]
				rangeSq := rx*rx + ry*ry + rz*rz
				if rangeSq < b4.MinRangeSq[j] || rangeSq > b4.MaxRangeSq[j] {
					continue
				}

				size := screen / sqrt32(distSq)
				maxSize[j] = max(maxSize[j], size)
				if i := b*4 + j; i < n && st.lastRenderTime(i) > lastUpdateTime {
					maxVisible[j] = max(maxVisible[j], size)
				}
			}
		}

		for j := 0; j < 4; j++ {
			i := b*4 + j
			if i >= n || !st.live(i) {
				continue
			}
			a.sizes[i] = boundsSize{maxNormalized: maxSize[j], maxNormalizedVisible: maxVisible[j]}
			a.maxLevelTextureScreenSize = max(a.maxLevelTextureScreenSize, maxSize[j]*st.maxTexelFactor)
		}
	}
}

// TexelSize accumulates the screen texel sizes a texture needs across views.
type TexelSize struct {
	MaxSize        float32
	MaxSizeVisible float32
	// Referenced is set when any live element references the texture.
	Referenced bool
	// ForceLoad is set when an element requested the texture fully loaded.
	ForceLoad bool
}

// AccumulateTexelSize folds the contribution of every element referencing t
// into acc. Sizes must have been computed by UpdateBoundSizes.
func (a *AsyncView) AccumulateTexelSize(t texture.Asset, acc *TexelSize) {
	if acc.ForceLoad || a.sizes == nil {
		return
	}
	it := a.view.TextureIterator(t)
	for it.Next() {
		acc.Referenced = true
		if it.ForceLoad() {
			acc.ForceLoad = true
			acc.MaxSize = texture.MaxSize
			acc.MaxSizeVisible = texture.MaxSize
			return
		}
		bi := it.BoundsIndex()
		if bi >= len(a.sizes) {
			continue
		}
		s := a.sizes[bi]
		acc.MaxSize = max(acc.MaxSize, s.maxNormalized*it.TexelFactor())
		acc.MaxSizeVisible = max(acc.MaxSizeVisible, s.maxNormalizedVisible*it.TexelFactor())
	}
}

// Contribution is one element seen from one viewpoint.
type Contribution struct {
	Primitive   Primitive
	Viewpoint   int
	Distance    float32
	TexelFactor float32
	Size        float32
	InRange     bool
	Visible     bool
	ForceLoad   bool
}

// ScreenSizeOverDistance is the scalar form of the per-bounds computation done
// by UpdateBoundSizes.
func ScreenSizeOverDistance(b Bounds, vp Viewpoint, settings *texture.Settings) (size, distance float32, inRange bool) {
	d := vp.Origin.Sub(b.Origin)
	var distSq float32
	if settings.UseNewMetrics {
		a := mgl32.Vec3{
			max(mgl32.Abs(d[0])-b.Extent[0], 0),
			max(mgl32.Abs(d[1])-b.Extent[1], 0),
			max(mgl32.Abs(d[2])-b.Extent[2], 0),
		}
		distSq = a.Dot(a)
	} else {
		distSq = max(d.Dot(d)-b.Radius*b.Radius, 0)
	}
	distSq = max(distSq, b.MinDistanceSq, 1)

	r := vp.Origin.Sub(b.RangeOrigin)
	rangeSq := r.Dot(r)
	inRange = rangeSq >= b.MinRangeSq && rangeSq <= b.MaxRangeSq

	distance = sqrt32(distSq)
	return vp.boostedScreenSize(settings.MaxEffectiveScreenSize) / distance, distance, inRange
}

// ContributionsFor lists how each element referencing t sizes the texture
// from each viewpoint.
func (a *AsyncView) ContributionsFor(t texture.Asset, viewpoints []Viewpoint, lastUpdateTime float32, settings *texture.Settings) []Contribution {
	var out []Contribution
	it := a.view.TextureIterator(t)
	for it.Next() {
		b := it.Bounds()
		for vi, vp := range viewpoints {
			size, dist, inRange := ScreenSizeOverDistance(b, vp, settings)
			out = append(out, Contribution{
				Primitive:   it.Primitive(),
				Viewpoint:   vi,
				Distance:    dist,
				TexelFactor: it.TexelFactor(),
				Size:        size * it.TexelFactor(),
				InRange:     inRange,
				Visible:     inRange && it.LastRenderTime() > lastUpdateTime,
				ForceLoad:   it.ForceLoad(),
			})
		}
	}
	return out
}
