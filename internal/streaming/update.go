package streaming

import (
	"time"

	"texstream/internal/texture"
)

// UpdateResourceStreaming advances the streaming cycle by one frame.
//
// A cycle spans FramesForFullUpdate frames: stage 0 applies pending changes
// and starts the budget pass in the background, the following stages each
// refresh a slice of the records and of the instance data, and the final
// stage waits for the budget pass and issues its requests. With
// processEverything, or when FramesForFullUpdate is negative, the whole
// cycle runs synchronously within this call.
func (m *Manager) UpdateResourceStreaming(deltaTime float32, processEverything bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.updateResourceStreaming(deltaTime, processEverything)
}

func (m *Manager) updateResourceStreaming(deltaTime float32, processEverything bool) {
	m.collect(m.pool.EnsureCompletion(), "instance view task")
	m.boostPlayers()

	waitForFade := deltaTime > 0
	switch {
	case m.framesForFullUpdate <= 0 || processEverything:
		m.finishRunningCycle()
		m.numStages = m.framesForFullUpdate
		m.setLastUpdateTime()
		m.updateStreamingTextures(0, 1, waitForFade)
		m.updatePendingStates(true)
		m.prepareAsyncTask(processEverything)
		m.collect(m.job.StartSynchronous(), "budget pass")
		m.applyAsyncResults()
		m.streamTextures(processEverything)
		m.processingStage = 0
		m.endCycle()

	case m.processingStage == 0:
		m.numStages = max(m.framesForFullUpdate, 2)
		m.collect(m.job.EnsureCompletion(), "budget pass")
		m.updatePendingStates(false)
		m.prepareAsyncTask(false)
		m.collect(m.job.StartBackground(), "budget pass")
		m.processingStage++

	case m.processingStage < m.numStages:
		refreshStages := m.numStages - 1
		if m.processingStage == 1 {
			m.setLastUpdateTime()
		}
		m.updateStreamingTextures(m.processingStage-1, refreshStages, waitForFade)
		m.incrementalUpdate(1/float32(refreshStages), true)
		m.processingStage++

	default:
		m.collect(m.job.EnsureCompletion(), "budget pass")
		m.applyAsyncResults()
		for _, i := range m.inflight {
			m.records[i].UpdateStreamingStatus(waitForFade)
		}
		m.streamTextures(false)
		m.incrementalUpdate(1/float32(m.numStages-1), true)
		if m.useDynamic {
			m.dynamic.PrepareAsyncView()
		}
		m.processingStage = 0
		m.endCycle()
	}

	m.pool.StartBackground()
}

// ProcessingStage reports the stage the next frame runs and the stage count.
func (m *Manager) ProcessingStage() (stage, numStages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processingStage, m.numStages
}

func (m *Manager) collect(err error, what string) {
	if err == nil {
		return
	}
	m.lastErr = what + ": " + err.Error()
	m.log.Error().Err(err).Str("work", what).Msg("background streaming work failed")
}

func (m *Manager) endCycle() {
	now := time.Now()
	var delta float64
	if !m.lastCycleEnd.IsZero() {
		delta = now.Sub(m.lastCycleEnd).Seconds()
	}
	m.lastCycleEnd = now
	m.updateStats(delta)
	m.observeTracked()
}

// finishRunningCycle waits for a background pass that a reset or a
// synchronous update overtakes. Requests it already produced are still
// issued.
func (m *Manager) finishRunningCycle() {
	if m.processingStage == 0 {
		return
	}
	m.job.Abort()
	m.collect(m.job.EnsureCompletion(), "budget pass")
	m.applyAsyncResults()
	m.streamTextures(false)
	m.processingStage = 0
}

func (m *Manager) boostPlayers() {
	if len(m.players) == 0 {
		return
	}
	m.boostTextures(m.players, m.boostPlayerTextures)
}

// updateStreamingTextures refreshes the dynamic data of slice stage of
// numStages and remembers the records with a resize in flight.
func (m *Manager) updateStreamingTextures(stage, numStages int, waitForFade bool) {
	if stage == 0 {
		m.currentUpdateIndex = 0
		m.inflight = m.inflight[:0]
	}
	end := len(m.records) * (stage + 1) / max(numStages, 1)
	if stage+1 >= numStages {
		end = len(m.records)
	}
	now := m.clock.AppTime()
	for i := m.currentUpdateIndex; i < end; i++ {
		r := &m.records[i]
		if r.Asset == nil {
			continue
		}
		before := r.ResidentMips
		r.UpdateDynamicData(&m.settings, now, waitForFade)
		if r.ResidentMips > before {
			m.streamedInBytes += r.Size(r.ResidentMips) - r.Size(before)
		}
		if r.InFlight {
			m.inflight = append(m.inflight, i)
		}
	}
	m.currentUpdateIndex = max(m.currentUpdateIndex, end)
}

// incrementalUpdate advances the level builds and refreshes percentage of the
// instance render times.
func (m *Manager) incrementalUpdate(percentage float32, updateDynamic bool) {
	var removed []texture.Asset
	steps := m.staticStepsPerFrame
	dynamic := m.dynamicAggregator()
	for _, l := range m.levels {
		l.IncrementalUpdate(dynamic, &steps, percentage, &removed)
	}
	if updateDynamic && m.useDynamic {
		m.dynamic.Refresh(percentage, &removed)
	}
	m.setTexturesRemovedTimestamp(removed)
}

// updatePendingStates applies everything queued since the last cycle.
func (m *Manager) updatePendingStates(updateDynamic bool) {
	m.checkUserSettings()
	m.processRemovedTextures()
	m.processAddedTextures()
	m.conditionalUpdateStaticData()
	m.incrementalUpdate(1, updateDynamic)
	if updateDynamic && m.useDynamic {
		m.dynamic.PrepareAsyncView()
	}
}

// prepareAsyncTask hands a copy of the records and the current views to the
// budget task. The dynamic boosts are consumed by the copy.
func (m *Manager) prepareAsyncTask(processEverything bool) {
	t := m.task
	stats := m.gpu.MemoryStats()
	if m.poolSize > 0 && !processEverything && !m.settings.FullyLoadUsedTextures {
		t.reset(stats.AllocatedMemorySize, m.poolSize, m.settings.MaxTempMemoryAllowed, m.memoryMargin)
	} else {
		t.reset(stats.AllocatedMemorySize, 0, 0, 0)
	}
	t.settings = m.settings
	t.paused = m.paused
	t.neverStreamOut = m.neverStreamOut
	t.records = append(t.records[:0], m.records...)
	for i := range m.records {
		m.records[i].DynamicBoostFactor = 1
	}
	dynamic := m.dynamic
	if !m.useDynamic {
		dynamic = nil
	}
	t.data.Init(m.viewpoints, m.lastWorldUpdateTime, m.clock.AppTime(), m.levels, dynamic)
}

// applyAsyncResults merges the fields computed by the budget task.
func (m *Manager) applyAsyncResults() {
	src := m.task.records
	for i := 0; i < min(len(src), len(m.records)); i++ {
		m.records[i].ApplyAsyncResult(&src[i])
	}
}

// streamTextures issues the requests of the budget task. Pending-update
// flags are maintained even while paused.
func (m *Manager) streamTextures(processEverything bool) {
	t := m.task
	if !m.paused || processEverything {
		for _, i := range t.cancelRequests {
			if i >= len(m.records) || m.records[i].Asset == nil {
				continue
			}
			r := &m.records[i]
			r.CancelPendingMipChangeRequest()
			m.metrics.observeRequest(EventCancel)
			m.pub.Publish(Event{Name: EventCancel, Texture: r.Asset.Name(), Fields: map[string]any{
				"resident_mips": r.ResidentMips,
				"wanted_mips":   r.WantedMips,
			}})
		}
		for _, i := range t.loadRequests {
			if i >= len(m.records) || m.records[i].Asset == nil {
				continue
			}
			m.streamWantedMips(&m.records[i])
		}
	}
	hasView := t.data.HasAnyView()
	for _, i := range t.pendingDirties {
		if i >= len(m.records) {
			continue
		}
		r := &m.records[i]
		pending := r.HasUpdatePendingFor(m.paused, hasView)
		r.HasUpdatePending = pending
		if r.Asset != nil {
			r.Asset.SetStreamingUpdatePending(pending)
		}
	}
	t.cancelRequests = t.cancelRequests[:0]
	t.loadRequests = t.loadRequests[:0]
	t.pendingDirties = t.pendingDirties[:0]
}

func (m *Manager) streamWantedMips(r *texture.Record) texture.StreamAction {
	from := r.ResidentMips
	action := r.StreamWantedMips()
	if action == texture.NoAction {
		return action
	}
	name := action.String()
	m.metrics.observeRequest(name)
	m.pub.Publish(Event{Name: name, Texture: r.Asset.Name(), Fields: map[string]any{
		"from_mips": from,
		"to_mips":   r.WantedMips,
		"bytes":     r.Size(r.WantedMips) - r.Size(from),
	}})
	return action
}

// syncStates brings the records up to date outside the frame loop. With
// completeFullUpdateCycle the running cycle is driven to its end first.
func (m *Manager) syncStates(completeFullUpdateCycle bool) {
	if completeFullUpdateCycle {
		for m.processingStage != 0 {
			m.updateResourceStreaming(0, false)
		}
	}
	m.collect(m.job.EnsureCompletion(), "budget pass")
	m.collect(m.pool.EnsureCompletion(), "instance view task")
	if m.processingStage == 0 {
		m.updatePendingStates(false)
	}
}
