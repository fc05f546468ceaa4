package streaming

import (
	"fmt"

	"texstream/internal/texture"
	"texstream/pkg/types"
)

// CurrentSettings reports the settings the next cycle runs with.
func (m *Manager) CurrentSettings() types.SettingsResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return settingsResponse(&m.nextSettings)
}

// ApplySettings changes the runtime tunables named in req. Nothing changes
// when any value is out of range. The new values take effect at the start of
// the next cycle.
func (m *Manager) ApplySettings(req types.SettingsRequest) (types.SettingsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.nextSettings
	if v := req.LightmapStreamingFactor; v != nil {
		if *v < 0 {
			return types.SettingsResponse{}, ErrInvalidArgument("lightmap_streaming_factor must not be negative")
		}
		s.LightmapStreamingFactor = *v
	}
	if v := req.ShadowmapStreamingFactor; v != nil {
		if *v < 0 {
			return types.SettingsResponse{}, ErrInvalidArgument("shadowmap_streaming_factor must not be negative")
		}
		s.ShadowmapStreamingFactor = *v
	}
	if v := req.HiddenPrimitiveScale; v != nil {
		if *v < 0 || *v > 1 {
			return types.SettingsResponse{}, ErrInvalidArgument("hidden_primitive_scale must be within 0..1")
		}
		s.HiddenPrimitiveScale = *v
	}
	if v := req.GlobalMipBias; v != nil {
		if *v < 0 || *v > texture.MaxMipCount {
			return types.SettingsResponse{}, ErrInvalidArgument(fmt.Sprintf("global_mip_bias must be within 0..%d", texture.MaxMipCount))
		}
		s.GlobalMipBias = *v
	}
	for name, n := range req.NumStreamedMips {
		g, err := texture.ParseGroup(name)
		if err != nil {
			return types.SettingsResponse{}, ErrInvalidArgument(err.Error())
		}
		if n < -1 || n > texture.MaxMipCount {
			return types.SettingsResponse{}, ErrInvalidArgument(fmt.Sprintf("num_streamed_mips[%s] must be within -1..%d", name, texture.MaxMipCount))
		}
		s.NumStreamedMips[g] = n
	}
	if s != m.nextSettings {
		m.nextSettings = s
		m.log.Info().
			Float32("lightmap_factor", s.LightmapStreamingFactor).
			Float32("shadowmap_factor", s.ShadowmapStreamingFactor).
			Float32("hidden_scale", s.HiddenPrimitiveScale).
			Int("global_mip_bias", s.GlobalMipBias).
			Msg("streaming settings changed")
	}
	return settingsResponse(&s), nil
}

func settingsResponse(s *texture.Settings) types.SettingsResponse {
	out := types.SettingsResponse{
		LightmapStreamingFactor:  s.LightmapStreamingFactor,
		ShadowmapStreamingFactor: s.ShadowmapStreamingFactor,
		HiddenPrimitiveScale:     s.HiddenPrimitiveScale,
		GlobalMipBias:            s.GlobalMipBias,
		MaxTempMemoryAllowed:     s.MaxTempMemoryAllowed,
		NumStreamedMips:          make(map[string]int, texture.NumGroups),
	}
	for _, g := range texture.Groups() {
		out.NumStreamedMips[g.String()] = s.NumStreamedMips[g]
	}
	return out
}
