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

func never() bool { return false }

func newTaskWith(settings *texture.Settings, records ...texture.Record) *budgetTask {
	t := newBudgetTask()
	t.settings = *settings
	t.records = records
	return t
}

func budgets(records []texture.Record) []int {
	out := make([]int, len(records))
	for i := range records {
		out[i] = records[i].BudgetedMips
	}
	return out
}

// twoTexturesOverByOneMip builds a visible texture and a hidden one, both
// wanting all 10 mips, with a budget one top mip of the hidden one short.
func twoTexturesOverByOneMip(t *testing.T, settings *texture.Settings) *budgetTask {
	t.Helper()
	a := newAsset("visible", 10, 10)
	a.lastRender = 100
	b := newAsset("hidden", 10, 10)
	b.lastRender = 90

	ra := newTestRecord(a, settings, 100)
	ra.SetPerfectWantedMips(1024, 1024, false, settings)
	rb := newTestRecord(b, settings, 100)
	rb.SetPerfectWantedMips(1024, 0, false, settings)

	task := newTaskWith(settings, ra, rb)
	for i := range task.records {
		task.memoryBudgeted += task.records[i].UpdateRetentionPriority()
	}
	require.Equal(t, 2*sizeOf(10), task.memoryBudgeted)
	require.Greater(t, task.records[0].RetentionPriority, task.records[1].RetentionPriority)
	task.memoryBudget = task.memoryBudgeted - (sizeOf(10) - sizeOf(9))
	return task
}

func TestDropMips_LowestPriorityLosesExactlyOneMip(t *testing.T) {
	for _, perTextureBias := range []bool{true, false} {
		settings := testSettings()
		settings.UsePerTextureBias = perTextureBias
		task := twoTexturesOverByOneMip(t, settings)

		task.dropMips(never)

		assert.Equal(t, 10, task.records[0].BudgetedMips, "bias=%v", perTextureBias)
		assert.Equal(t, 9, task.records[1].BudgetedMips, "bias=%v", perTextureBias)
		assert.Equal(t, task.memoryBudget, task.memoryBudgeted)
		if perTextureBias {
			assert.Equal(t, 1, task.records[1].BudgetMipBias)
			assert.Equal(t, 9, task.records[1].BudgetMaxMips)
		} else {
			assert.Zero(t, task.records[1].BudgetMipBias)
		}
	}
}

func TestDropMips_ForcedAndTerrainAreNeverDropped(t *testing.T) {
	settings := testSettings()
	forced := newAsset("forced", 10, 10)
	forced.forced = true
	terrain := newAsset("terrain", 10, 10)
	terrain.group = texture.GroupTerrainHeightmap
	plain := newAsset("plain", 10, 10)

	var records []texture.Record
	for _, a := range []*fakeAsset{forced, terrain, plain} {
		r := newTestRecord(a, settings, 100)
		r.SetPerfectWantedMips(1024, 1024, false, settings)
		records = append(records, r)
	}
	task := newTaskWith(settings, records...)
	for i := range task.records {
		task.memoryBudgeted += task.records[i].UpdateRetentionPriority()
	}
	task.memoryBudget = 0

	task.dropMips(never)

	assert.Equal(t, 10, task.records[0].BudgetedMips)
	assert.Equal(t, 10, task.records[1].BudgetedMips)
	assert.Equal(t, task.records[2].MinAllowedMips, task.records[2].BudgetedMips)
	assert.Greater(t, task.memoryBudgeted, task.memoryBudget)
}

func TestKeepMips_StopsAtFirstOvershoot(t *testing.T) {
	settings := testSettings()
	a := newAsset("a", 10, 10)
	b := newAsset("b", 10, 10)
	ra := newTestRecord(a, settings, 100)
	ra.SetPerfectWantedMips(1024, 8, false, settings)
	rb := newTestRecord(b, settings, 100)
	rb.SetPerfectWantedMips(1024, 8, false, settings)
	task := newTaskWith(settings, ra, rb)
	for i := range task.records {
		task.memoryBudgeted += task.records[i].UpdateRetentionPriority()
		task.records[i].BudgetedMips = 8
	}
	task.memoryBudgeted = 2 * sizeOf(8)
	// Room for the 9th mip of one texture only.
	task.memoryBudget = task.memoryBudgeted + sizeOf(9) - sizeOf(8)

	task.keepMips(never)

	assert.Equal(t, []int{9, 8}, budgets(task.records))
	assert.LessOrEqual(t, task.memoryBudgeted, task.memoryBudget)
}

func TestLoadAndCancelationRequests(t *testing.T) {
	settings := testSettings()
	wantA := newAsset("want-a", 10, 5)
	wantB := newAsset("want-b", 10, 5)
	stale := newAsset("stale", 10, 5)
	stale.requested = 10
	stale.hold = true
	shrink := newAsset("shrink", 10, 8)

	records := []texture.Record{
		newTestRecord(wantA, settings, 100),
		newTestRecord(wantB, settings, 100),
		newTestRecord(stale, settings, 100),
		newTestRecord(shrink, settings, 100),
	}
	require.True(t, records[2].InFlight)
	for i, b := range []int{8, 8, 6, 4} {
		records[i].BudgetedMips = b
	}

	t.Run("temp budget bounds loads", func(t *testing.T) {
		task := newTaskWith(settings, append([]texture.Record(nil), records...)...)
		task.tempMemoryBudget = sizeOf(8) + 100

		task.updateLoadAndCancelationRequests(never)

		assert.Equal(t, []int{0, 3}, task.loadRequests)
		assert.Equal(t, []int{2}, task.cancelRequests)
	})

	t.Run("never stream out keeps resident mips under budget", func(t *testing.T) {
		task := newTaskWith(settings, append([]texture.Record(nil), records...)...)
		task.tempMemoryBudget = math.MaxInt64 / 2
		task.neverStreamOut = true

		task.updateLoadAndCancelationRequests(never)

		assert.Equal(t, []int{0, 1}, task.loadRequests)
	})
}

// sceneTask builds a task over three textures seen at 100 units with a
// texel factor of 64, each wanting 11 of its 12 mips.
func sceneTask(t *testing.T, poolSize int64) (*budgetTask, []texture.Record) {
	t.Helper()
	settings := testSettings()
	dyn := level.NewDynamicManager(nil, zerolog.Nop())
	var records []texture.Record
	for i := 0; i < 3; i++ {
		a := newAsset(string(rune('a'+i)), 12, 1)
		a.lastRender = 100 - float64(i)
		records = append(records, newTestRecord(a, settings, 100))
		p := newPrimitive("p", instance.Movable, mgl32.Vec3{0, 0, 100 + float32(i)}, 64, a)
		require.NoError(t, dyn.Add(p))
	}
	var removed []texture.Asset
	dyn.Refresh(1, &removed)

	task := newTaskWith(settings)
	task.reset(0, poolSize, settings.MaxTempMemoryAllowed, 1<<20)
	task.data.Init([]instance.Viewpoint{{ScreenSize: 1000}}, 9.5, 100, nil, dyn)
	return task, records
}

func TestBudgetPass_Idempotent(t *testing.T) {
	task, src := sceneTask(t, 9<<20)

	task.records = append([]texture.Record(nil), src...)
	task.run(never)
	first := budgets(task.records)
	require.Greater(t, task.requiredPool, task.memoryBudget, "scene must be over budget")
	for i := range task.records {
		require.Equal(t, 11, task.records[i].PerfectWantedMips())
	}

	out := append([]texture.Record(nil), task.records...)
	task.reset(0, 9<<20, task.settings.MaxTempMemoryAllowed, 1<<20)
	task.records = append([]texture.Record(nil), src...)
	task.run(never)
	assert.Equal(t, first, budgets(task.records))

	// Feeding the pass its own output changes nothing either.
	task.reset(0, 9<<20, task.settings.MaxTempMemoryAllowed, 1<<20)
	task.records = out
	task.run(never)
	assert.Equal(t, first, budgets(task.records))
}

func TestBudgetPass_Invariants(t *testing.T) {
	task, src := sceneTask(t, 9<<20)
	task.records = src
	task.run(never)

	allAtMin := true
	for i := range task.records {
		r := &task.records[i]
		assert.LessOrEqual(t, r.MinAllowedMips, r.BudgetedMips)
		assert.LessOrEqual(t, r.BudgetedMips, r.BudgetMaxMips)
		assert.LessOrEqual(t, r.BudgetMaxMips, r.MaxAllowedMips)
		if r.IsMaxResolutionAffectedByGlobalBias() && r.BudgetedMips > r.MinAllowedMips {
			allAtMin = false
		}
	}
	assert.True(t, task.memoryBudgeted <= task.memoryBudget || allAtMin)
	assert.Equal(t, task.memoryBudget, task.stats.MemoryBudget)
	assert.Positive(t, task.stats.OverBudget)
}

func TestBudgetPass_UnlimitedPoolKeepsPerfectMips(t *testing.T) {
	task, src := sceneTask(t, 0)
	task.records = src
	task.run(never)

	assert.Equal(t, []int{11, 11, 11}, budgets(task.records))
	assert.Len(t, task.loadRequests, 3)
	assert.Zero(t, task.stats.OverBudget)
}

func TestBudgetPass_EffectivePoolHysteresis(t *testing.T) {
	task := newBudgetTask()
	task.reset(0, 100<<20, 10<<20, 1<<20)
	task.updateEffectiveBudget()
	require.Equal(t, int64(99<<20), task.memoryBudget)

	// Small growth is ignored.
	task.reset(0, 105<<20, 10<<20, 1<<20)
	task.updateEffectiveBudget()
	assert.Equal(t, int64(99<<20), task.memoryBudget)

	// Growth beyond temp budget + margin is taken.
	task.reset(0, 120<<20, 10<<20, 1<<20)
	task.updateEffectiveBudget()
	assert.Equal(t, int64(119<<20), task.memoryBudget)

	// Shrinking is immediate.
	task.reset(0, 50<<20, 10<<20, 1<<20)
	task.updateEffectiveBudget()
	assert.Equal(t, int64(49<<20), task.memoryBudget)
}

func TestBudgetPass_Abort(t *testing.T) {
	t.Run("immediate", func(t *testing.T) {
		task, src := sceneTask(t, 9<<20)
		task.records = append([]texture.Record(nil), src...)
		task.run(func() bool { return true })

		assert.True(t, task.aborted)
		assert.Empty(t, task.loadRequests)
		assert.Equal(t, budgets(src), budgets(task.records))
	})

	t.Run("midway", func(t *testing.T) {
		task, src := sceneTask(t, 0)
		task.records = append([]texture.Record(nil), src...)
		calls := 0
		task.run(func() bool {
			calls++
			return calls > 6
		})

		assert.True(t, task.aborted)
		for i := range task.records {
			r := &task.records[i]
			assert.LessOrEqual(t, r.MinAllowedMips, r.BudgetedMips)
			assert.LessOrEqual(t, r.BudgetedMips, r.MaxAllowedMips)
		}
	})
}
