package texture

// Settings is the snapshot of streaming tunables passed into every algorithm
// entry point. The orchestrator refreshes it once per frame.
type Settings struct {
	// MaxEffectiveScreenSize caps viewpoint screen sizes (0 disables).
	MaxEffectiveScreenSize float32
	// MaxTempMemoryAllowed bounds bytes held by in-flight resize requests.
	MaxTempMemoryAllowed int64
	// HiddenPrimitiveScale attenuates the wanted size of instances not seen recently.
	HiddenPrimitiveScale float32
	GlobalMipBias        int
	// UsePerTextureBias lets the budget pass lower max resolution before dropping mips.
	UsePerTextureBias bool
	MaxBudgetMipBias  int
	// UseNewMetrics measures distance to the bounding box instead of the sphere.
	UseNewMetrics         bool
	FullyLoadUsedTextures bool
	UseAllMips            bool
	// MinMipForSplitRequest enables loading the visible mips first (0 disables).
	MinMipForSplitRequest     int
	LightmapStreamingFactor   float32
	ShadowmapStreamingFactor  float32
	MinLevelTextureScreenSize float32
	// NumStreamedMips limits how many mips of a group may stream (-1: all).
	NumStreamedMips [NumGroups]int
}

// DefaultSettings returns the shipping defaults.
func DefaultSettings() Settings {
	s := Settings{
		MaxTempMemoryAllowed:      50 << 20,
		HiddenPrimitiveScale:      0.5,
		UsePerTextureBias:         true,
		MaxBudgetMipBias:          4,
		UseNewMetrics:             true,
		LightmapStreamingFactor:   1,
		ShadowmapStreamingFactor:  0.09,
		MinLevelTextureScreenSize: 100,
	}
	for i := range s.NumStreamedMips {
		s.NumStreamedMips[i] = -1
	}
	return s
}

