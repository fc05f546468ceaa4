package texture

// Retention priority bands. Higher keeps mips longer under budget pressure.
const (
	RetentionKeep      = 2048
	RetentionVisible   = 1024
	RetentionNotHuge   = 512
	RetentionSmallChar = 256
)

// Load-order priority bands. Higher is requested first.
const (
	LoadVisible       = 1024
	LoadMustLoadFirst = 512
	LoadImportantMip  = 256
)

func recencyScore(secondsSinceRender float32) int {
	// Never rendered textures report +Inf.
	return clampInt(255-int(min(secondsSinceRender, 255)), 1, 255)
}

// UpdateRetentionPriority resets the budget to the perfect wanted mips and
// scores how much this texture deserves to keep them. It returns the bytes
// the texture asks for.
func (r *Record) UpdateRetentionPriority() int64 {
	r.BudgetedMips = r.PerfectWantedMips()
	r.BudgetMaxMips = r.MaxAllowedMips
	r.BudgetMipBias = 0
	r.RetentionPriority = 0
	if r.Asset == nil {
		return 0
	}

	size := r.Size(r.BudgetedMips)
	isHuge := size >= HugeTextureSize && r.Group != GroupLightmap && r.Group != GroupShadowmap
	shouldKeep := r.IsTerrain || r.ForceFullyLoadHeuristic || (r.LooksLowRes && !isHuge)
	isSmall := size <= SmallTextureSize
	// Whether the first dropped mip would be a visible one.
	isVisible := r.VisibleWantedMips >= r.HiddenWantedMips

	if shouldKeep {
		r.RetentionPriority += RetentionKeep
	}
	if isVisible {
		r.RetentionPriority += RetentionVisible
	}
	if !isHuge {
		r.RetentionPriority += RetentionNotHuge
	}
	if r.IsCharacter || isSmall {
		r.RetentionPriority += RetentionSmallChar
	}
	if !isVisible {
		r.RetentionPriority += recencyScore(r.LastRenderTime)
	}
	return size
}

// UpdateLoadOrderPriority picks the mips to request this cycle and scores the
// request. Textures needing no request get priority 0.
func (r *Record) UpdateLoadOrderPriority(minMipForSplitRequest int) {
	r.LoadOrderPriority = 0

	// Load the visible mips first and the rest once they are in.
	if minMipForSplitRequest > 0 &&
		r.ResidentMips < r.VisibleWantedMips &&
		r.VisibleWantedMips < r.BudgetedMips &&
		r.BudgetedMips >= minMipForSplitRequest &&
		!r.IsTerrain {
		r.WantedMips = r.VisibleWantedMips
	} else {
		r.WantedMips = r.BudgetedMips
	}

	if r.Asset == nil || !r.ReadyForStreaming || r.WantedMips == r.RequestedMips {
		return
	}

	isVisible := r.ResidentMips < r.VisibleWantedMips
	mustLoadFirst := r.ForceFullyLoadHeuristic || r.IsTerrain || r.IsCharacter
	threshold := 2
	if r.LooksLowRes {
		threshold = 1
	}
	mipIsImportant := r.WantedMips-r.ResidentMips > threshold

	if isVisible {
		r.LoadOrderPriority += LoadVisible
	}
	if mustLoadFirst {
		r.LoadOrderPriority += LoadMustLoadFirst
	}
	if mipIsImportant {
		r.LoadOrderPriority += LoadImportantMip
	}
	if !isVisible {
		r.LoadOrderPriority += recencyScore(r.LastRenderTime)
	}
}

// ByRetention orders indices into records by descending retention priority,
// then ascending index. Drops start from the tail.
func ByRetention(records []Record) func(a, b int) int {
	return func(a, b int) int {
		pa, pb := records[a].RetentionPriority, records[b].RetentionPriority
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		}
		return a - b
	}
}

// ByLoadOrder orders indices by descending load-order priority, then index.
func ByLoadOrder(records []Record) func(a, b int) int {
	return func(a, b int) int {
		pa, pb := records[a].LoadOrderPriority, records[b].LoadOrderPriority
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		}
		return a - b
	}
}
