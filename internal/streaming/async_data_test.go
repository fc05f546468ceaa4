package streaming

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texstream/internal/instance"
	"texstream/internal/level"
	"texstream/internal/texture"
)

func TestUnknownRefHeuristic_GracePeriodBoundary(t *testing.T) {
	settings := testSettings()
	a := newAsset("orphan", 12, 4)
	d := &AsyncData{now: 100}

	cases := []struct {
		name           string
		sinceRender    float32
		wantUnknownRef bool
	}{
		{"rendered exactly five seconds after removal", 5, false},
		{"rendered just after the grace period", 4.99, true},
		{"rendered before removal", 20, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRecord(a, settings, 100)
			r.InstanceRemovedTimestamp = 90
			r.LastRenderTime = tc.sinceRender

			size := d.UpdatePerfectWantedMips(&r, settings)

			assert.Equal(t, tc.wantUnknownRef, r.UseUnknownRefHeuristic)
			if tc.wantUnknownRef {
				assert.Equal(t, float32(texture.MaxSize), size.MaxSize)
				assert.Equal(t, r.MaxAllowedMips, r.PerfectWantedMips())
			} else {
				assert.Equal(t, r.MinAllowedMips, r.PerfectWantedMips())
			}
		})
	}
}

func TestUnknownRefHeuristic_NeverRenderedTextureStaysUnreferenced(t *testing.T) {
	settings := testSettings()
	a := newAsset("never", 12, 4)
	a.lastRender = math.Inf(-1)
	r := newTestRecord(a, settings, 100)
	require.True(t, math.IsInf(float64(r.LastRenderTime), 1))

	(&AsyncData{now: 100}).UpdatePerfectWantedMips(&r, settings)

	assert.False(t, r.UseUnknownRefHeuristic)
	assert.Equal(t, r.MinAllowedMips, r.PerfectWantedMips())
}

func TestUnknownRefHeuristic_ReferencedTextureIsKnown(t *testing.T) {
	settings := testSettings()
	a := newAsset("far", 12, 4)
	a.lastRender = 100
	dyn := level.NewDynamicManager(nil, zerolog.Nop())
	require.NoError(t, dyn.Add(newPrimitive("far", instance.Movable, mgl32.Vec3{0, 0, 1e6}, 1, a)))
	var removed []texture.Asset
	dyn.Refresh(1, &removed)

	d := &AsyncData{}
	d.Init([]instance.Viewpoint{{ScreenSize: 1000}}, 9.5, 100, nil, dyn)
	d.UpdateBoundSizes(settings, nil)
	r := newTestRecord(a, settings, 100)
	r.InstanceRemovedTimestamp = 0

	d.UpdatePerfectWantedMips(&r, settings)

	assert.False(t, r.UseUnknownRefHeuristic)
	assert.Equal(t, r.MinAllowedMips, r.PerfectWantedMips())
}

func TestUpdatePerfectWantedMips_ForcedAndBoosted(t *testing.T) {
	settings := testSettings()
	forced := newAsset("forced", 12, 4)
	forced.forced = true
	forced.lastRender = math.Inf(-1)
	r := newTestRecord(forced, settings, 100)

	(&AsyncData{now: 100}).UpdatePerfectWantedMips(&r, settings)
	assert.True(t, r.ForceFullyLoadHeuristic)
	assert.Equal(t, 12, r.PerfectWantedMips())

	// A dynamic boost doubles the texel size: one more mip.
	plain := newAsset("plain", 12, 4)
	plain.lastRender = 100
	dyn := level.NewDynamicManager(nil, zerolog.Nop())
	require.NoError(t, dyn.Add(newPrimitive("p", instance.Movable, mgl32.Vec3{0, 0, 100}, 64, plain)))
	var removed []texture.Asset
	dyn.Refresh(1, &removed)
	d := &AsyncData{}
	d.Init([]instance.Viewpoint{{ScreenSize: 1000}}, 9.5, 100, nil, dyn)
	d.UpdateBoundSizes(settings, nil)

	base := newTestRecord(plain, settings, 100)
	d.UpdatePerfectWantedMips(&base, settings)
	boosted := newTestRecord(plain, settings, 100)
	boosted.DynamicBoostFactor = 2
	d.UpdatePerfectWantedMips(&boosted, settings)

	assert.Equal(t, 11, base.VisibleWantedMips)
	assert.Equal(t, 12, boosted.VisibleWantedMips)
}

func TestAsyncData_VisibleLevelsFirstAndCulling(t *testing.T) {
	settings := testSettings()
	settings.MinLevelTextureScreenSize = 50
	near := newAsset("near", 12, 1)
	far := newAsset("far", 12, 1)

	hidden := level.NewStaticManager("hidden", []instance.Primitive{
		newPrimitive("n", instance.Static, mgl32.Vec3{0, 0, 10}, 64, near),
	}, nil, zerolog.Nop())
	hidden.SetVisible(false)
	distant := level.NewStaticManager("distant", []instance.Primitive{
		newPrimitive("f", instance.Static, mgl32.Vec3{0, 0, 1e5}, 1, far),
	}, nil, zerolog.Nop())
	for _, l := range []*level.StaticManager{hidden, distant} {
		steps := -1
		var removed []texture.Asset
		l.IncrementalUpdate(nil, &steps, 1, &removed)
	}

	d := &AsyncData{}
	d.Init([]instance.Viewpoint{{ScreenSize: 1000}}, 9.5, 100, []*level.StaticManager{hidden, distant}, nil)
	require.Len(t, d.static, 2)
	assert.Equal(t, "distant", d.static[0].source)
	assert.Equal(t, "hidden", d.static[1].source)

	d.UpdateBoundSizes(settings, nil)
	assert.True(t, d.static[0].culled)
	assert.False(t, d.static[1].culled)

	r := newTestRecord(far, settings, 100)
	d.UpdatePerfectWantedMips(&r, settings)
	assert.False(t, r.UseUnknownRefHeuristic, "culled levels still count as references")
}
