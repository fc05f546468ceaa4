package streaming

import (
	"math"
	"slices"

	"texstream/internal/instance"
	"texstream/internal/level"
	"texstream/internal/texture"
)

// dynamicSource names the dynamic manager in investigation output.
const dynamicSource = "dynamic"

type sourcedView struct {
	source  string
	view    *instance.AsyncView
	visible bool
	// culled views are too far for any of their elements to matter.
	culled bool
}

// AsyncData is the snapshot the budget worker reads: viewpoints, the last
// visibility time and the async views of every level plus the dynamic
// manager. It is filled on the main goroutine and then only read.
type AsyncData struct {
	viewpoints     []instance.Viewpoint
	lastUpdateTime float32
	now            float64
	static         []sourcedView
	dynamic        *instance.AsyncView
}

// Init captures the views. Visible levels come first so they are the first
// to fill in a texture's size.
func (d *AsyncData) Init(viewpoints []instance.Viewpoint, lastUpdateTime float32, now float64, levels []*level.StaticManager, dynamic *level.DynamicManager) {
	d.viewpoints = append(d.viewpoints[:0], viewpoints...)
	d.lastUpdateTime = lastUpdateTime
	d.now = now
	d.static = d.static[:0]
	d.dynamic = nil

	for _, l := range levels {
		v := l.AsyncView(!l.HasPendingBuild())
		if v == nil {
			continue
		}
		d.static = append(d.static, sourcedView{source: l.ID(), view: instance.NewAsyncView(v), visible: l.IsVisible()})
	}
	slices.SortStableFunc(d.static, func(a, b sourcedView) int {
		switch {
		case a.visible && !b.visible:
			return -1
		case !a.visible && b.visible:
			return 1
		}
		return 0
	})
	if dynamic != nil {
		if v := dynamic.AsyncView(true); v != nil {
			d.dynamic = instance.NewAsyncView(v)
		}
	}
}

// HasAnyView reports whether a viewpoint was supplied for this cycle.
func (d *AsyncData) HasAnyView() bool { return len(d.viewpoints) > 0 }

// Viewpoints returns the captured viewpoints.
func (d *AsyncData) Viewpoints() []instance.Viewpoint { return d.viewpoints }

// UpdateBoundSizes computes every view's screen sizes. Level views whose
// largest texel size stays below MinLevelTextureScreenSize are skipped when
// accumulating sizes.
func (d *AsyncData) UpdateBoundSizes(settings *texture.Settings, shouldAbort func() bool) {
	for i := range d.static {
		sv := &d.static[i]
		sv.view.UpdateBoundSizes(d.viewpoints, d.lastUpdateTime, settings, shouldAbort)
		sv.culled = sv.view.MaxLevelTextureScreenSize() <= settings.MinLevelTextureScreenSize
	}
	if d.dynamic != nil {
		d.dynamic.UpdateBoundSizes(d.viewpoints, d.lastUpdateTime, settings, shouldAbort)
	}
}

// hasInstances reports whether any view, culled or not, references t.
func (d *AsyncData) hasInstances(t texture.Asset) bool {
	for _, sv := range d.static {
		if sv.view.View().HasTexture(t) {
			return true
		}
	}
	return d.dynamic != nil && d.dynamic.View().HasTexture(t)
}

// UpdatePerfectWantedMips sizes r from every view and stores the visible and
// hidden wanted mips on it. The returned sizes are the ones used, after
// boosts.
func (d *AsyncData) UpdatePerfectWantedMips(r *texture.Record, settings *texture.Settings) instance.TexelSize {
	var acc instance.TexelSize
	r.UseUnknownRefHeuristic = false
	if r.Asset == nil {
		return acc
	}

	if r.ForceFullyLoad {
		acc.MaxSize, acc.MaxSizeVisible = texture.MaxSize, texture.MaxSize
	} else {
		for _, sv := range d.static {
			if sv.culled {
				continue
			}
			sv.view.AccumulateTexelSize(r.Asset, &acc)
			if acc.ForceLoad {
				break
			}
		}
		if d.dynamic != nil && !acc.ForceLoad {
			d.dynamic.AccumulateTexelSize(r.Asset, &acc)
		}

		// Rendered well after its last known instance went away: something
		// the streamer cannot see is using it.
		if !acc.ForceLoad && !d.hasInstances(r.Asset) &&
			float64(r.LastRenderTime) < (d.now-r.InstanceRemovedTimestamp)-texture.UnknownRefGracePeriod {
			r.UseUnknownRefHeuristic = true
			acc.MaxSize, acc.MaxSizeVisible = texture.MaxSize, texture.MaxSize
		}
	}

	if acc.MaxSize < texture.MaxSize {
		boost := r.BoostFactor * r.DynamicBoostFactor
		acc.MaxSize *= boost
		acc.MaxSizeVisible *= boost
	}

	// The texture looks low res when visible instances ask for more mips
	// than its LOD bias lets it have.
	looksLowRes := r.MaxAllowedMips < r.MipCount && acc.MaxSizeVisible < texture.MaxSize &&
		1+math.Log2(math.Max(1, float64(acc.MaxSizeVisible))) > float64(r.MaxAllowedMips)
	r.SetPerfectWantedMips(acc.MaxSize, acc.MaxSizeVisible, looksLowRes, settings)
	return acc
}

// contributions lists every element referencing t with the source it lives in.
func (d *AsyncData) contributions(t texture.Asset, settings *texture.Settings) ([]instance.Contribution, []string) {
	var out []instance.Contribution
	var sources []string
	add := func(source string, v *instance.AsyncView) {
		cs := v.ContributionsFor(t, d.viewpoints, d.lastUpdateTime, settings)
		out = append(out, cs...)
		for range cs {
			sources = append(sources, source)
		}
	}
	for _, sv := range d.static {
		add(sv.source, sv.view)
	}
	if d.dynamic != nil {
		add(dynamicSource, d.dynamic)
	}
	return out, sources
}
