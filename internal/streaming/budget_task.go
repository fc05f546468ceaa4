package streaming

import (
	"math"
	"slices"
	"time"

	"texstream/internal/asyncwork"
	"texstream/internal/texture"
)

// budgetTask is the background half of a streaming cycle. The main goroutine
// fills the inputs with reset and a copy of the records, runs the task
// through an asyncwork.Job and reads the outputs once the job is done.
type budgetTask struct {
	// inputs
	records          []texture.Record
	data             AsyncData
	settings         texture.Settings
	paused           bool
	neverStreamOut   bool
	poolSize         int64
	allocated        int64
	tempMemoryBudget int64
	memoryMargin     int64
	unlimited        bool

	// memoryBudget persists across cycles so the pool only grows on a
	// clear, lasting gain.
	memoryBudget    int64
	budgetPrimed    bool
	memoryBudgeted  int64
	memoryUsed      int64
	tempMemoryUsed  int64
	requiredPool    int64
	aborted         bool
	loadRequests    []int
	cancelRequests  []int
	pendingDirties  []int
	prioritized     []int
	missingMips     []int
	stats           Stats
	duration        time.Duration
}

func newBudgetTask() *budgetTask { return &budgetTask{} }

// reset prepares a limited cycle. A zero or negative poolSize means the pool
// is unlimited.
func (t *budgetTask) reset(allocated, poolSize, tempMemoryBudget, memoryMargin int64) {
	t.allocated = allocated
	t.poolSize = poolSize
	t.tempMemoryBudget = tempMemoryBudget
	t.memoryMargin = memoryMargin
	t.unlimited = poolSize <= 0
	if t.unlimited {
		t.poolSize = 0
		t.tempMemoryBudget = math.MaxInt64 / 2
		t.memoryMargin = 0
	}
	t.aborted = false
	t.loadRequests = t.loadRequests[:0]
	t.cancelRequests = t.cancelRequests[:0]
	t.pendingDirties = t.pendingDirties[:0]
	t.stats = Stats{}
}

// run is the job body. Every pass checks shouldAbort; whatever was decided
// before an abort is left in the outputs.
func (t *budgetTask) run(shouldAbort asyncwork.ShouldAbortFunc) {
	start := time.Now()
	defer func() { t.duration = time.Since(start) }()

	t.data.UpdateBoundSizes(&t.settings, shouldAbort)
	if t.abortCheck(shouldAbort) {
		return
	}
	t.updateBudgetedMips(shouldAbort)
	if t.abortCheck(shouldAbort) {
		return
	}
	t.updateLoadAndCancelationRequests(shouldAbort)
	if t.abortCheck(shouldAbort) {
		return
	}
	t.updatePendingStreamingStatus(shouldAbort)
	if t.abortCheck(shouldAbort) {
		return
	}
	t.updateStats()
}

func (t *budgetTask) abortCheck(shouldAbort asyncwork.ShouldAbortFunc) bool {
	if shouldAbort() {
		t.aborted = true
	}
	return t.aborted
}

// updateEffectiveBudget tracks the bytes available to streamed mips. It
// shrinks at once and grows only when the gain cannot be explained by temp
// memory or allocator noise.
func (t *budgetTask) updateEffectiveBudget() {
	if t.unlimited {
		t.memoryBudget = math.MaxInt64
		t.budgetPrimed = false
		return
	}
	nonStreaming := max(t.allocated-t.memoryUsed-t.tempMemoryUsed, 0)
	available := max(t.poolSize-nonStreaming-t.memoryMargin, 0)
	switch {
	case !t.budgetPrimed:
		t.memoryBudget = available
		t.budgetPrimed = true
	case available < t.memoryBudget:
		t.memoryBudget = available
	case available-t.memoryBudget > t.tempMemoryBudget+t.memoryMargin:
		t.memoryBudget = available
	}
}

func (t *budgetTask) updateBudgetedMips(shouldAbort asyncwork.ShouldAbortFunc) {
	records := t.records
	t.memoryBudgeted, t.memoryUsed, t.tempMemoryUsed = 0, 0, 0

	for i := range records {
		if shouldAbort() {
			return
		}
		r := &records[i]
		if r.Asset == nil {
			continue
		}
		t.data.UpdatePerfectWantedMips(r, &t.settings)
		r.DynamicBoostFactor = 1
		t.memoryBudgeted += r.UpdateRetentionPriority()
		t.memoryUsed += r.Size(r.ResidentMips)
		if r.RequestedMips != r.ResidentMips {
			t.tempMemoryUsed += r.Size(r.RequestedMips)
		}
	}
	t.requiredPool = t.memoryBudgeted
	t.updateEffectiveBudget()

	if t.memoryBudgeted > t.memoryBudget {
		t.dropMips(shouldAbort)
	} else {
		t.keepMips(shouldAbort)
	}
}

// dropMips lowers budgets, lowest retention priority first, until the
// budgeted bytes fit. Mips already lost to the hidden-primitive scale count
// as dropped.
func (t *budgetTask) dropMips(shouldAbort asyncwork.ShouldAbortFunc) {
	records := t.records
	t.prioritized = t.prioritized[:0]
	for i := range records {
		r := &records[i]
		if r.Asset != nil && r.IsMaxResolutionAffectedByGlobalBias() && r.BudgetedMips > r.MinAllowedMips {
			t.prioritized = append(t.prioritized, i)
		}
	}
	slices.SortFunc(t.prioritized, texture.ByRetention(records))

	t.missingMips = t.missingMips[:0]
	for _, i := range t.prioritized {
		t.missingMips = append(t.missingMips, records[i].NumMissingMips)
	}

	if t.settings.UsePerTextureBias {
		for round := 0; round < t.settings.MaxBudgetMipBias && t.memoryBudgeted > t.memoryBudget; round++ {
			for p := len(t.prioritized) - 1; p >= 0 && t.memoryBudgeted > t.memoryBudget; p-- {
				if shouldAbort() {
					return
				}
				if t.missingMips[p] > 0 {
					t.missingMips[p]--
					continue
				}
				t.memoryBudgeted -= records[t.prioritized[p]].DropMaxResolution(1)
			}
		}
	}

	for t.memoryBudgeted > t.memoryBudget {
		progressed := false
		for p := len(t.prioritized) - 1; p >= 0 && t.memoryBudgeted > t.memoryBudget; p-- {
			if shouldAbort() {
				return
			}
			i := t.prioritized[p]
			if i < 0 {
				continue
			}
			if t.missingMips[p] > 0 {
				t.missingMips[p]--
				progressed = true
				continue
			}
			before := records[i].BudgetedMips
			t.memoryBudgeted -= records[i].DropOneMip()
			if records[i].BudgetedMips < before {
				progressed = true
			} else {
				t.prioritized[p] = -1
			}
		}
		if !progressed {
			return
		}
	}
}

// keepMips spends leftover budget keeping already resident mips of textures
// that no longer need them, highest retention priority first. It stops at
// the first mip that would overshoot.
func (t *budgetTask) keepMips(shouldAbort asyncwork.ShouldAbortFunc) {
	records := t.records
	t.prioritized = t.prioritized[:0]
	for i := range records {
		r := &records[i]
		if r.Asset != nil && r.BudgetedMips < min(r.ResidentMips, r.BudgetMaxMips) {
			t.prioritized = append(t.prioritized, i)
		}
	}
	slices.SortFunc(t.prioritized, texture.ByRetention(records))

	for _, i := range t.prioritized {
		r := &records[i]
		for r.BudgetedMips < min(r.ResidentMips, r.BudgetMaxMips) {
			if shouldAbort() {
				return
			}
			cost := r.KeepOneMip()
			if t.memoryBudgeted+cost > t.memoryBudget {
				r.DropOneMip()
				return
			}
			t.memoryBudgeted += cost
		}
	}
}

// updateLoadAndCancelationRequests picks the resizes to issue. Loads are
// limited by the temp memory budget; unloads and cancels are not.
func (t *budgetTask) updateLoadAndCancelationRequests(shouldAbort asyncwork.ShouldAbortFunc) {
	records := t.records
	t.prioritized = t.prioritized[:0]
	for i := range records {
		if shouldAbort() {
			return
		}
		r := &records[i]
		r.UpdateLoadOrderPriority(t.settings.MinMipForSplitRequest)
		if r.LoadOrderPriority > 0 {
			t.prioritized = append(t.prioritized, i)
		}
	}
	slices.SortFunc(t.prioritized, texture.ByLoadOrder(records))

	overBudget := t.memoryBudgeted > t.memoryBudget
	tempUsed := t.tempMemoryUsed
	for _, i := range t.prioritized {
		if shouldAbort() {
			return
		}
		r := &records[i]
		switch {
		case r.RequestedMips != r.ResidentMips:
			// In flight toward something no longer wanted.
			if r.RequestedMips > r.ResidentMips {
				if r.RequestedMips > max(r.ResidentMips, r.WantedMips+1) {
					t.cancelRequests = append(t.cancelRequests, i)
				}
			} else if r.RequestedMips < min(r.ResidentMips, r.WantedMips-1) {
				t.cancelRequests = append(t.cancelRequests, i)
			}
		case r.WantedMips < r.ResidentMips:
			if !t.neverStreamOut || overBudget {
				t.loadRequests = append(t.loadRequests, i)
			}
		case !r.InFlight && r.WantedMips > r.ResidentMips:
			size := r.Size(r.WantedMips)
			if tempUsed+size <= t.tempMemoryBudget {
				t.loadRequests = append(t.loadRequests, i)
				tempUsed += size
			}
		}
	}
}

func (t *budgetTask) updatePendingStreamingStatus(shouldAbort asyncwork.ShouldAbortFunc) {
	hasView := t.data.HasAnyView()
	for i := range t.records {
		if shouldAbort() {
			return
		}
		r := &t.records[i]
		if r.HasUpdatePending != r.HasUpdatePendingFor(t.paused, hasView) {
			t.pendingDirties = append(t.pendingDirties, i)
		}
	}
}

func (t *budgetTask) updateStats() {
	s := &t.stats
	s.PoolSize = t.poolSize
	if !t.unlimited {
		s.MemoryBudget = t.memoryBudget
		s.OverBudget = max(t.requiredPool-t.memoryBudget, 0)
	}
	s.RequiredPool = t.requiredPool
	s.PendingRequests = t.tempMemoryUsed
	s.NumLoadRequests = len(t.loadRequests)
	s.NumCancelRequests = len(t.cancelRequests)

	for i := range t.records {
		r := &t.records[i]
		if r.Asset == nil {
			continue
		}
		resident := r.Size(r.ResidentMips)
		switch {
		case r.UseUnknownRefHeuristic:
			s.UnknownRefMips += resident
		case r.ForceFullyLoad || r.ForceFullyLoadHeuristic:
			s.ForcedMips += resident
		default:
			visible := r.Size(min(r.VisibleWantedMips, r.ResidentMips))
			hidden := r.Size(min(max(r.HiddenWantedMips, r.VisibleWantedMips), r.ResidentMips)) - visible
			s.VisibleMips += visible
			s.HiddenMips += hidden
			s.CachedMips += resident - visible - hidden
		}
		s.WantedMips += r.Size(r.WantedMips)
		if r.WantedMips > r.ResidentMips {
			s.NumWanting++
		}
	}
	for _, i := range t.loadRequests {
		if r := &t.records[i]; r.WantedMips > r.ResidentMips {
			s.NewRequests += r.Size(r.WantedMips)
		}
	}
}
