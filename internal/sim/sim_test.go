package sim

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texstream/internal/catalog"
	"texstream/internal/streaming"
	"texstream/internal/texture"
)

func TestTexture_StreamInTakesBandwidthTime(t *testing.T) {
	clock := NewClock(1)
	tex := NewTexture("t", TextureOptions{Mips: 10, Bandwidth: 1 << 20}, clock, nil)
	require.Equal(t, 1, tex.ResidentMips())

	require.True(t, tex.StreamIn(10, false))
	assert.False(t, tex.StreamIn(11, false), "one request at a time")
	assert.Equal(t, tex.CalcMemorySize(1)+tex.CalcMemorySize(10), tex.Allocated())

	clock.Advance(200 * time.Millisecond)
	st := tex.UpdateStreamingStatus(false)
	assert.True(t, st.InFlight)
	assert.Equal(t, 1, st.ResidentMips)

	clock.Advance(200 * time.Millisecond)
	st = tex.UpdateStreamingStatus(false)
	assert.False(t, st.InFlight)
	assert.Equal(t, 10, st.ResidentMips)
	assert.Equal(t, tex.CalcMemorySize(10), tex.Allocated())
}

func TestTexture_PrioritizedReadsFaster(t *testing.T) {
	clock := NewClock(1)
	tex := NewTexture("t", TextureOptions{Mips: 10, Bandwidth: 1 << 20}, clock, nil)
	require.True(t, tex.StreamIn(10, true))
	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 10, tex.UpdateStreamingStatus(false).ResidentMips)
}

func TestTexture_StreamOutAndCancel(t *testing.T) {
	clock := NewClock(1)
	tex := NewTexture("t", TextureOptions{Mips: 8, ResidentMips: 8, NonStreamingMips: 2}, clock, nil)

	assert.False(t, tex.StreamOut(1), "below the non-streaming mips")
	require.True(t, tex.StreamOut(4))
	tex.CancelPendingMipChangeRequest()
	assert.Equal(t, 8, tex.UpdateStreamingStatus(false).ResidentMips)

	require.True(t, tex.StreamOut(4))
	assert.Equal(t, 4, tex.UpdateStreamingStatus(false).ResidentMips)
	ins, outs, cancels := tex.Requests()
	assert.Equal(t, 0, ins)
	assert.Equal(t, 2, outs)
	assert.Equal(t, 1, cancels)
}

func TestTexture_TimedForce(t *testing.T) {
	clock := NewClock(1)
	tex := NewTexture("t", TextureOptions{Mips: 8}, clock, nil)
	assert.False(t, tex.ForceMipLevelsResident())

	tex.ForceResidentFor(2)
	assert.True(t, tex.ForceMipLevelsResident())
	clock.Advance(3 * time.Second)
	assert.False(t, tex.ForceMipLevelsResident())

	tex.ForceResidentFor(2)
	assert.True(t, tex.CancelForceMipLevelsResident())
	assert.False(t, tex.ForceMipLevelsResident())
	assert.False(t, tex.CancelForceMipLevelsResident())
}

func TestGPU_StatsAndFlush(t *testing.T) {
	clock := NewClock(1)
	gpu := NewGPU(8<<30, 64<<20)
	gpu.SetNonStreaming(1000)
	a := NewTexture("a", TextureOptions{Mips: 6, ResidentMips: 6}, clock, gpu)
	b := NewTexture("b", TextureOptions{Mips: 6, BytesPerTexel: 2}, clock, gpu)

	s := gpu.MemoryStats()
	assert.Equal(t, int64(64<<20), s.TexturePoolSize)
	assert.Equal(t, int64(8<<30), s.TotalGraphicsMemory)
	assert.Equal(t, 1000+a.CalcMemorySize(6)+b.CalcMemorySize(1), s.AllocatedMemorySize)

	require.True(t, a.StreamOut(2))
	gpu.Flush()
	assert.Equal(t, 2, a.ResidentMips())
	assert.Equal(t, 1, gpu.Flushes())
	assert.Equal(t, 1000+a.CalcMemorySize(2)+b.CalcMemorySize(1), gpu.MemoryStats().AllocatedMemorySize)
}

func TestCamera_LoopsAlongPath(t *testing.T) {
	c := camera{path: []mgl32.Vec3{{0, 0, 0}, {10, 0, 0}}}
	c.advance(5)
	assert.Equal(t, mgl32.Vec3{5, 0, 0}, c.pos)
	c.advance(10)
	assert.Equal(t, 1, c.segment)
	assert.InDelta(t, 5, c.pos[0], 1e-4)

	single := camera{path: []mgl32.Vec3{{1, 2, 3}}, pos: mgl32.Vec3{1, 2, 3}}
	single.advance(100)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, single.pos)
}

const sceneYAML = `
name: test
draw_distance: 1000
textures:
  - {name: near, mips: 10}
  - {name: far, mips: 10}
  - {name: mover, mips: 8}
levels:
  - id: close
    primitives:
      - {name: wall, origin: [0, 0, 0], extent: [10, 10, 10], textures: [{texture: near, texel_factor: 64}]}
  - id: distant
    primitives:
      - {name: tower, origin: [0, 100000, 0], extent: [10, 10, 10], textures: [{texture: far, texel_factor: 64}]}
dynamic:
  - {name: cart, mobility: movable, origin: [0, 0, 50], velocity: [10, 0, 0], textures: [{texture: mover, texel_factor: 64}]}
camera:
  path: [[0, -200, 0]]
  screen_size: 1920
`

func TestScene_StreamsWhatTheCameraSees(t *testing.T) {
	m, err := catalog.Parse([]byte(sceneYAML), ".yaml")
	require.NoError(t, err)
	clock := NewClock(1)
	gpu := NewGPU(8<<30, 0)
	scene, err := Build(m, clock, gpu, zerolog.Nop())
	require.NoError(t, err)

	mgr := streaming.NewWithConfig(streaming.Config{GPU: gpu, Clock: clock})
	defer mgr.Close()
	scene.Attach(mgr)

	for i := 0; i < 30; i++ {
		scene.Frame(mgr, 16*time.Millisecond)
	}

	assert.Greater(t, scene.Texture("near").ResidentMips(), 1)
	assert.Greater(t, scene.Texture("mover").ResidentMips(), 1)
	assert.Equal(t, 1, scene.Texture("far").ResidentMips())
	assert.Greater(t, scene.dynamic[0].Origin()[0], float32(0))

	var distant bool
	for _, l := range mgr.Levels() {
		if l.ID == "distant" {
			distant = true
			assert.False(t, l.Visible)
		}
	}
	assert.True(t, distant)
	assert.Greater(t, mgr.Stats().Cycles, uint64(2))

	scene.Detach(mgr)
	mgr.UpdateResourceStreaming(0, true)
	assert.Empty(t, mgr.ListTextures(streaming.TextureFilter{}))
	assert.Empty(t, mgr.Levels())
}

func TestBuild_GroupsAndDefaults(t *testing.T) {
	m := &catalog.Manifest{
		Name:     "g",
		Textures: []catalog.Texture{{Name: "lm", Group: "lightmap", Mips: 4}},
		Dynamic:  []catalog.Primitive{{Name: "p", Textures: []catalog.TextureRef{{Texture: "lm"}}}},
	}
	s, err := Build(m, NewClock(1), nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, texture.GroupLightmap, s.Texture("lm").Group())
	assert.Equal(t, float32(defaultScreenSize), s.Viewpoint().ScreenSize)

	m.Dynamic[0].Textures[0].Texture = "missing"
	_, err = Build(m, NewClock(1), nil, zerolog.Nop())
	assert.Error(t, err)
}
