package texture

import "math"

// MaxSize marks a texture that must be fully loaded regardless of distance.
const MaxSize = math.MaxFloat32

// ExtraBoost is the per-group multiplier applied to screen-size estimates.
func ExtraBoost(g Group, settings *Settings) float32 {
	distanceScale := float32(1)
	if settings.UseNewMetrics {
		distanceScale = 0.71
	}
	switch {
	case g.IsTerrain():
		return max(distanceScale, 1)
	case g == GroupLightmap:
		return min(distanceScale, settings.LightmapStreamingFactor)
	case g == GroupShadowmap:
		return min(distanceScale, settings.ShadowmapStreamingFactor)
	default:
		return distanceScale
	}
}

// WantedMipsFromSize converts a texel size on screen into a mip count,
// ceil(1 + log2(max(1, size))), clamped to the allowed range.
func (r *Record) WantedMipsFromSize(size float32) int {
	if size >= MaxSize {
		return r.MaxAllowedMips
	}
	f := 1 + math.Log2(math.Max(1, float64(size)))
	wanted := int(math.Ceil(f))
	return clampInt(wanted, r.MinAllowedMips, r.MaxAllowedMips)
}

// SetPerfectWantedMips records the visible and hidden wanted mips derived
// from the max screen sizes found across all views. Mips lost only because
// of the hidden-primitive scale are kept in NumMissingMips so the budget
// pass does not sacrifice them a second time.
func (r *Record) SetPerfectWantedMips(maxSize, maxSizeVisible float32, looksLowRes bool, settings *Settings) {
	r.ForceFullyLoadHeuristic = maxSize >= MaxSize || maxSizeVisible >= MaxSize
	r.LooksLowRes = looksLowRes

	r.VisibleWantedMips = r.WantedMipsFromSize(maxSizeVisible)

	if r.IsTerrain || r.ForceFullyLoadHeuristic || r.LooksLowRes {
		r.HiddenWantedMips = r.WantedMipsFromSize(maxSize)
		r.NumMissingMips = 0
		return
	}
	r.HiddenWantedMips = r.WantedMipsFromSize(maxSize * settings.HiddenPrimitiveScale)
	r.NumMissingMips = max(r.WantedMipsFromSize(maxSize)-max(r.VisibleWantedMips, r.HiddenWantedMips), 0)
}

// PerfectWantedMips is the mip count the texture would get with an unlimited budget.
func (r *Record) PerfectWantedMips() int {
	return max(r.VisibleWantedMips, r.HiddenWantedMips)
}
