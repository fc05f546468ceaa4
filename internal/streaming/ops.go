package streaming

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"texstream/internal/instance"
	"texstream/internal/texture"
	"texstream/pkg/types"
)

// UpdateIndividualTexture brings asset straight to its perfect wanted mips,
// bypassing the budget.
func (m *Manager) UpdateIndividualTexture(asset texture.Asset) (texture.StreamAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return texture.NoAction, ErrClosed
	}
	m.syncStates(true)
	r := m.record(asset)
	if r == nil {
		name := "<nil>"
		if asset != nil {
			name = asset.Name()
		}
		return texture.NoAction, ErrTextureNotFound(name)
	}
	return m.updateIndividualTexture(r), nil
}

// UpdateTextureByName is UpdateIndividualTexture addressed by name.
func (m *Manager) UpdateTextureByName(name string) (types.UpdateTextureResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.UpdateTextureResponse{}, ErrClosed
	}
	m.syncStates(true)
	r := m.recordByName(name)
	if r == nil {
		return types.UpdateTextureResponse{}, ErrTextureNotFound(name)
	}
	action := m.updateIndividualTexture(r)
	return types.UpdateTextureResponse{Name: name, WantedMips: r.WantedMips, Action: action.String()}, nil
}

func (m *Manager) updateIndividualTexture(r *texture.Record) texture.StreamAction {
	r.UpdateDynamicData(&m.settings, m.clock.AppTime(), false)

	data := m.freshAsyncData()
	data.UpdatePerfectWantedMips(r, &m.settings)
	wanted := r.PerfectWantedMips()
	if r.ForceFullyLoad {
		wanted = r.MaxAllowedMips
	}
	r.BudgetMaxMips = r.MaxAllowedMips
	r.BudgetedMips = min(max(wanted, r.MinAllowedMips), r.MaxAllowedMips)
	r.WantedMips = r.BudgetedMips
	action := m.streamWantedMips(r)
	m.observeTracked()
	return action
}

// freshAsyncData builds and sizes a snapshot on the calling goroutine.
func (m *Manager) freshAsyncData() *AsyncData {
	data := &AsyncData{}
	dynamic := m.dynamic
	if !m.useDynamic {
		dynamic = nil
	}
	data.Init(m.viewpoints, m.lastWorldUpdateTime, m.clock.AppTime(), m.levels, dynamic)
	data.UpdateBoundSizes(&m.settings, nil)
	return data
}

// StreamOutTextureData frees at least bytes (and never less than
// MinEvictSize) by dropping the lowest priority textures to their minimum
// mips. It returns the bytes whose release was requested.
func (m *Manager) StreamOutTextureData(bytes int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, false
	}
	required := max(bytes, m.minEvictSize)

	wasPaused := m.paused
	m.paused = true
	defer func() { m.paused = wasPaused }()
	m.syncStates(true)

	var order []int
	for i := range m.records {
		r := &m.records[i]
		if r.Asset != nil && !r.ForceFullyLoad && r.ResidentMips > r.MinAllowedMips && !r.InFlight {
			order = append(order, i)
		}
	}
	slices.SortFunc(order, texture.ByRetention(m.records))

	var dropped, tempUsed int64
	for p := len(order) - 1; p >= 0 && dropped < required; p-- {
		r := &m.records[order[p]]
		size := r.Size(r.ResidentMips)
		if !r.Asset.StreamOut(r.MinAllowedMips) {
			continue
		}
		freed := size - r.Size(r.MinAllowedMips)
		dropped += freed
		tempUsed += r.Size(r.MinAllowedMips)
		m.metrics.observeRequest(EventStreamOutForced)
		m.pub.Publish(Event{Name: EventStreamOutForced, Texture: r.Asset.Name(), Fields: map[string]any{
			"to_mips": r.MinAllowedMips,
			"bytes":   -freed,
		}})
		r.UpdateStreamingStatus(false)
		if tempUsed >= m.settings.MaxTempMemoryAllowed {
			m.gpu.Flush()
			tempUsed = 0
		}
	}

	m.log.Info().
		Str("requested", mb(required)).
		Str("saved", mb(dropped)).
		Msg("streaming out texture memory")
	return dropped, dropped >= required
}

// BlockTillAllRequestsFinished waits for every resize in flight, polling
// every 10ms, and returns how many were still pending when it gave up. A
// zero timeout waits forever.
func (m *Manager) BlockTillAllRequestsFinished(timeout time.Duration, logResults bool) int {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	m.syncStates(false)
	for {
		pending := 0
		for i := range m.records {
			r := &m.records[i]
			if r.Asset == nil {
				continue
			}
			r.UpdateStreamingStatus(false)
			if r.InFlight {
				pending++
			}
		}
		if pending == 0 || (timeout > 0 && time.Since(start) >= timeout) {
			if logResults {
				m.log.Info().
					Int("pending", pending).
					Dur("waited", time.Since(start)).
					Msg("blocking on texture streaming finished")
			}
			return pending
		}
		m.mu.Unlock()
		time.Sleep(defaultBlockPollInterval)
		m.mu.Lock()
		if m.closed {
			return pending
		}
	}
}

// CancelForcedResources revokes timed forced residency, forgets the instance
// removal time of each texture it canceled and restarts the cycle. It returns
// the number of textures canceled.
func (m *Manager) CancelForcedResources() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	m.finishRunningCycle()
	canceled := 0
	for i := range m.records {
		r := &m.records[i]
		if c, ok := r.Asset.(texture.ForcedResidencyCanceler); ok && c.CancelForceMipLevelsResident() {
			r.InstanceRemovedTimestamp = math.Inf(-1)
			canceled++
		}
	}
	m.processingStage = 0
	m.log.Info().Int("canceled", canceled).Msg("forced texture residency canceled")
	return canceled
}

// CancelPendingStreaming aborts every resize in flight and returns how many
// were aborted. The next cycle issues new requests as usual.
func (m *Manager) CancelPendingStreaming() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	canceled := 0
	for i := range m.records {
		r := &m.records[i]
		if r.Asset == nil || !r.InFlight {
			continue
		}
		r.CancelPendingMipChangeRequest()
		canceled++
		m.metrics.observeRequest(EventCancel)
		m.pub.Publish(Event{Name: EventCancel, Texture: r.Asset.Name(), Fields: map[string]any{
			"resident_mips": r.ResidentMips,
			"wanted_mips":   r.WantedMips,
		}})
	}
	m.observeTracked()
	m.log.Info().Int("canceled", canceled).Msg("pending texture streaming canceled")
	return canceled
}

// BoostTextures raises the dynamic boost of every texture ps reference for
// the next cycle.
func (m *Manager) BoostTextures(ps []instance.Primitive, factor float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boostTextures(ps, factor)
}

func (m *Manager) boostTextures(ps []instance.Primitive, factor float32) {
	for _, p := range ps {
		if p == nil {
			continue
		}
		for _, ref := range p.StreamingTextures() {
			if r := m.record(ref.Texture); r != nil {
				r.DynamicBoostFactor = max(r.DynamicBoostFactor, factor)
			}
		}
	}
}

// ResetMaxEverRequired clears the high-water mark and returns the old value.
func (m *Manager) ResetMaxEverRequired() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.maxEverRequired
	m.maxEverRequired = 0
	m.stats.MaxEverRequired = 0
	return old
}

// NumWantingResources counts textures waiting for more mips.
func (m *Manager) NumWantingResources() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.records {
		if r := &m.records[i]; r.Asset != nil && r.WantedMips > r.ResidentMips {
			n++
		}
	}
	return n
}

// Stats returns the stats of the last completed cycle.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Status builds a status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	return types.StatusResponse{
		Paused:               m.paused,
		ProcessingStage:      m.processingStage,
		NumStages:            m.numStages,
		NumTextures:          len(m.index) + len(m.pending),
		NumLevels:            len(m.levels),
		NumDynamicPrimitives: m.dynamic.NumPrimitives(),
		NumViewpoints:        len(m.viewpoints),
		Stats:                m.stats.Wire(),
		LastError:            m.lastErr,
		UptimeSeconds:        int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix:       now.Unix(),
	}
}

// TextureFilter selects textures for ListTextures. Zero values match all.
type TextureFilter struct {
	// Name matches case-insensitively anywhere in the texture name.
	Name           string
	Group          string
	UnknownRefOnly bool
	InFlightOnly   bool
}

func (f TextureFilter) match(r *texture.Record) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(r.Asset.Name()), strings.ToLower(f.Name)) {
		return false
	}
	if f.Group != "" && !strings.EqualFold(r.Group.String(), f.Group) {
		return false
	}
	if f.UnknownRefOnly && !r.UseUnknownRefHeuristic {
		return false
	}
	return !f.InFlightOnly || r.InFlight
}

// ListTextures completes the running cycle and lists the matching textures
// sorted by name.
func (m *Manager) ListTextures(f TextureFilter) []types.TextureStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.syncStates(true)
	}
	out := []types.TextureStatus{}
	for i := range m.records {
		r := &m.records[i]
		if r.Asset != nil && f.match(r) {
			out = append(out, textureStatus(r))
		}
	}
	slices.SortFunc(out, func(a, b types.TextureStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func textureStatus(r *texture.Record) types.TextureStatus {
	return types.TextureStatus{
		Name:              r.Asset.Name(),
		Group:             r.Group.String(),
		MipCount:          r.MipCount,
		ResidentMips:      r.ResidentMips,
		RequestedMips:     r.RequestedMips,
		WantedMips:        r.WantedMips,
		BudgetedMips:      r.BudgetedMips,
		PerfectWantedMips: r.PerfectWantedMips(),
		MinAllowedMips:    r.MinAllowedMips,
		MaxAllowedMips:    r.MaxAllowedMips,
		BudgetMipBias:     r.BudgetMipBias,
		ResidentBytes:     r.Size(r.ResidentMips),
		WantedBytes:       r.Size(r.WantedMips),
		MaxAllowedBytes:   r.Size(r.MaxAllowedMips),
		LastRenderTime:    min(r.LastRenderTime, math.MaxFloat32),
		RetentionPriority: r.RetentionPriority,
		LoadOrderPriority: r.LoadOrderPriority,
		State:             r.State().String(),
		ForceFullyLoad:    r.ForceFullyLoad || r.ForceFullyLoadHeuristic,
		UnknownRef:        r.UseUnknownRefHeuristic,
		InFlight:          r.InFlight,
	}
}

// InvestigateTexture explains the wanted mips of every texture whose name
// contains name.
func (m *Manager) InvestigateTexture(name string) (types.InvestigateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.InvestigateResponse{}, ErrClosed
	}
	if strings.TrimSpace(name) == "" {
		return types.InvestigateResponse{}, ErrInvalidArgument("texture name required")
	}
	m.syncStates(true)
	data := m.freshAsyncData()
	needle := strings.ToLower(name)

	resp := types.InvestigateResponse{Matches: []types.TextureInvestigation{}}
	for i := range m.records {
		r := &m.records[i]
		if r.Asset == nil || !strings.Contains(strings.ToLower(r.Asset.Name()), needle) {
			continue
		}
		// Work on a copy: investigating must not change what streams.
		scratch := *r
		size := data.UpdatePerfectWantedMips(&scratch, &m.settings)
		inv := types.TextureInvestigation{
			Texture:            textureStatus(r),
			ForceReason:        m.forceReason(&scratch, size.ForceLoad),
			BoostFactor:        r.BoostFactor,
			DynamicBoostFactor: r.DynamicBoostFactor,
			MaxSize:            min(size.MaxSize, math.MaxFloat32),
			MaxSizeVisible:     min(size.MaxSizeVisible, math.MaxFloat32),
			VisibleWantedMips:  scratch.VisibleWantedMips,
			HiddenWantedMips:   scratch.HiddenWantedMips,
			NumMissingMips:     scratch.NumMissingMips,
			Contributions:      []types.ContributionInfo{},
		}
		contributions, sources := data.contributions(r.Asset, &m.settings)
		for ci, c := range contributions {
			inv.Contributions = append(inv.Contributions, types.ContributionInfo{
				Primitive:   fmt.Sprint(c.Primitive),
				Viewpoint:   c.Viewpoint,
				Source:      sources[ci],
				Distance:    c.Distance,
				TexelFactor: c.TexelFactor,
				Size:        c.Size,
				InRange:     c.InRange,
				Visible:     c.Visible,
				ForceLoad:   c.ForceLoad,
			})
		}
		resp.Matches = append(resp.Matches, inv)
	}
	if len(resp.Matches) == 0 {
		return resp, ErrTextureNotFound(name)
	}
	return resp, nil
}

func (m *Manager) forceReason(r *texture.Record, instanceForced bool) string {
	switch {
	case r.Asset.ForceMipLevelsResident():
		return "forced by asset"
	case r.Group == texture.GroupSkybox:
		return "skybox group"
	case r.ForceFullyLoad && m.settings.FullyLoadUsedTextures:
		return "fully load used textures"
	case instanceForced:
		return "forced by instance"
	case r.UseUnknownRefHeuristic:
		return "unknown reference"
	}
	return ""
}
