package level

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texstream/internal/instance"
	"texstream/internal/texture"
)

func TestStaticManager_SameViewUntilChanged(t *testing.T) {
	a, b := &fakeTexture{"a"}, &fakeTexture{"b"}
	m := NewStaticManager("l1", primitives(newStatic(mgl32.Vec3{}, a), newStatic(mgl32.Vec3{10, 0, 0}, a, b)), nil, zerolog.Nop())
	m.Refresh(1, nil)
	require.False(t, m.HasPendingBuild())
	assert.Equal(t, 2, m.NumPrimitives())

	v1 := m.AsyncView(true)
	v2 := m.AsyncView(true)
	require.NotNil(t, v1)
	assert.Same(t, v1, v2)
	assert.True(t, v1.IsShared())

	assert.ErrorIs(t, m.Add(newStatic(mgl32.Vec3{}, a)), instance.ErrFrozen)
	assert.False(t, m.CanManage(newStatic(mgl32.Vec3{}, a)))
}

func TestStaticManager_NoViewWithoutCreate(t *testing.T) {
	m := NewStaticManager("l1", nil, nil, zerolog.Nop())
	assert.Nil(t, m.AsyncView(false))
	assert.True(t, m.CanManage(newStatic(mgl32.Vec3{})))
	assert.False(t, m.CanManage(newMovable(mgl32.Vec3{})))
}

func TestStaticManager_IncrementalBuildAndHandOff(t *testing.T) {
	a := &fakeTexture{"a"}
	mover := newMovable(mgl32.Vec3{}, a)
	late := newStatic(mgl32.Vec3{5, 0, 0}, a)
	m := NewStaticManager("l1", primitives(newStatic(mgl32.Vec3{}, a), mover, late), nil, zerolog.Nop())
	dyn := NewDynamicManager(nil, zerolog.Nop())

	steps := 2
	m.IncrementalUpdate(dyn, &steps, 1, nil)
	assert.Equal(t, 0, steps)
	assert.Equal(t, 1, m.NumPrimitives())
	assert.True(t, dyn.Has(mover), "movable primitives go to the dynamic manager")
	assert.True(t, m.HasPendingBuild())

	m.AsyncView(true)
	steps = -1
	m.IncrementalUpdate(dyn, &steps, 1, nil)
	assert.False(t, m.HasPendingBuild())
	assert.Equal(t, 1, m.NumPrimitives())
	assert.True(t, dyn.Has(late), "frozen level falls back to the dynamic manager")
}

func TestStaticManager_RemoveWhenFrozen(t *testing.T) {
	a, b := &fakeTexture{"a"}, &fakeTexture{"b"}
	p1 := newStatic(mgl32.Vec3{}, a)
	p2 := newStatic(mgl32.Vec3{}, a, b)
	m := NewStaticManager("l1", primitives(p1, p2), nil, zerolog.Nop())
	m.Refresh(1, nil)
	v := m.AsyncView(true)

	var removed []texture.Asset
	m.Remove(p2, &removed)
	assert.Equal(t, []texture.Asset{b}, removed)
	assert.Same(t, v, m.AsyncView(true))
	assert.True(t, v.HasTexture(a))
	assert.False(t, v.HasTexture(b))

	removed = nil
	m.RemoveAll(&removed)
	assert.Equal(t, []texture.Asset{a}, removed)
}

func TestStaticManager_RemovePending(t *testing.T) {
	a := &fakeTexture{"a"}
	p := newStatic(mgl32.Vec3{}, a)
	m := NewStaticManager("l1", primitives(p), nil, zerolog.Nop())
	m.Remove(p, nil)
	m.Refresh(1, nil)
	assert.Equal(t, 0, m.NumPrimitives())
}

func TestStaticManager_LevelOffsetCopiesFrozenState(t *testing.T) {
	a := &fakeTexture{"a"}
	m := NewStaticManager("l1", primitives(newStatic(mgl32.Vec3{1, 2, 3}, a)), nil, zerolog.Nop())
	m.Refresh(1, nil)
	old := m.AsyncView(true)

	m.NotifyLevelOffset(mgl32.Vec3{100, 0, 0})
	moved := m.AsyncView(true)
	assert.NotSame(t, old, moved)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, old.Bounds(0).Origin)
	assert.Equal(t, mgl32.Vec3{101, 2, 3}, moved.Triples()[0].Bounds.Origin)
}

func TestStaticManager_RefreshSlicesRenderTimes(t *testing.T) {
	a := &fakeTexture{"a"}
	ps := []*fakePrimitive{
		newStatic(mgl32.Vec3{}, a), newStatic(mgl32.Vec3{}, a),
		newStatic(mgl32.Vec3{}, a), newStatic(mgl32.Vec3{}, a),
	}
	var clock float32 = 12
	m := NewStaticManager("l1", primitives(ps...), func() float32 { return clock }, zerolog.Nop())
	m.Refresh(1, nil)
	v := m.AsyncView(true)
	assert.Equal(t, float32(12), m.WorldTime())

	for _, p := range ps {
		p.setRenderTime(5)
	}
	m.Refresh(0.5, nil)
	assert.Equal(t, float32(5), v.LastRenderTime(0))
	assert.Equal(t, float32(5), v.LastRenderTime(1))
	assert.Equal(t, float32(0), v.LastRenderTime(2))
	m.Refresh(0.5, nil)
	assert.Equal(t, float32(5), v.LastRenderTime(3))
}
