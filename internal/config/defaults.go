package config

import (
	"errors"
	"fmt"

	"texstream/internal/streaming"
	"texstream/internal/texture"
)

// Defaults applied by Defaults when the corresponding field is unset.
const (
	DefaultAddr                = ":8080"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "console"
	DefaultFrameRate           = 30.0
	DefaultAutosaveSec         = 30
	DefaultMaxBodyBytes        = 1 << 20
	DefaultFramesForFullUpdate = 5
	DefaultMemoryMarginMB      = 5
	DefaultMinEvictSizeMB      = 10
	DefaultBoostPlayerTextures = 3.0
	DefaultGPUMemoryMB         = 8192
	DefaultTexturePoolMB       = 1024
)

// Defaults fills zero values. Algorithm tunables left at zero take the
// values of texture.DefaultSettings.
func (c *Config) Defaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.FrameRate == 0 {
		c.FrameRate = DefaultFrameRate
	}
	if c.Autosave == 0 {
		c.Autosave = DefaultAutosaveSec
	}
	if c.MaxBody == 0 {
		c.MaxBody = DefaultMaxBodyBytes
	}
	if c.EventSink.DSN != "" && c.EventSink.Driver == "" {
		c.EventSink.Driver = "sqlite"
	}

	if c.Sim.GPUMemoryMB == 0 {
		c.Sim.GPUMemoryMB = DefaultGPUMemoryMB
	}
	if c.Sim.TexturePoolMB == 0 {
		c.Sim.TexturePoolMB = DefaultTexturePoolMB
	}

	s := &c.Streaming
	def := texture.DefaultSettings()
	if s.FramesForFullUpdate == 0 {
		s.FramesForFullUpdate = DefaultFramesForFullUpdate
	}
	if s.MemoryMarginMB == nil {
		s.MemoryMarginMB = int64Ptr(DefaultMemoryMarginMB)
	}
	if s.MinEvictSizeMB == 0 {
		s.MinEvictSizeMB = DefaultMinEvictSizeMB
	}
	if s.BoostPlayerTextures == 0 {
		s.BoostPlayerTextures = DefaultBoostPlayerTextures
	}
	if s.LightmapStreamingFactor == 0 {
		s.LightmapStreamingFactor = def.LightmapStreamingFactor
	}
	if s.ShadowmapStreamingFactor == 0 {
		s.ShadowmapStreamingFactor = def.ShadowmapStreamingFactor
	}
	if s.HiddenPrimitiveScale == 0 {
		s.HiddenPrimitiveScale = def.HiddenPrimitiveScale
	}
	if s.MaxTempMemoryAllowedMB == 0 {
		s.MaxTempMemoryAllowedMB = def.MaxTempMemoryAllowed >> 20
	}
	if s.UseDynamicStreaming == nil {
		s.UseDynamicStreaming = boolPtr(true)
	}
	if s.UsePerTextureBias == nil {
		s.UsePerTextureBias = boolPtr(def.UsePerTextureBias)
	}
	if s.UseNewMetrics == nil {
		s.UseNewMetrics = boolPtr(def.UseNewMetrics)
	}
}

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(n int64) *int64 { return &n }

// Validate rejects values the daemon cannot run with. Call after Defaults.
func (c Config) Validate() error {
	s := c.Streaming
	var errs []error
	if s.MemoryMarginMB != nil && *s.MemoryMarginMB < 0 {
		errs = append(errs, fmt.Errorf("streaming.memory_margin_mb must not be negative"))
	}
	if s.MinEvictSizeMB < 0 {
		errs = append(errs, fmt.Errorf("streaming.min_evict_size_mb must not be negative"))
	}
	if s.PoolSizeMB < 0 {
		errs = append(errs, fmt.Errorf("streaming.pool_size_mb must not be negative"))
	}
	if s.MaxTempMemoryAllowedMB < 0 {
		errs = append(errs, fmt.Errorf("streaming.max_temp_memory_allowed_mb must not be negative"))
	}
	if s.PoolSizeVRAMPercentage < 0 || s.PoolSizeVRAMPercentage > 100 {
		errs = append(errs, fmt.Errorf("streaming.pool_size_vram_percentage must be within 0..100"))
	}
	if s.FramesForFullUpdate < 1 {
		errs = append(errs, fmt.Errorf("streaming.frames_for_full_update must be at least 1"))
	}
	if s.HiddenPrimitiveScale < 0 || s.HiddenPrimitiveScale > 1 {
		errs = append(errs, fmt.Errorf("streaming.hidden_primitive_scale must be within 0..1"))
	}
	for name := range s.NumStreamedMips {
		if _, err := texture.ParseGroup(name); err != nil {
			errs = append(errs, fmt.Errorf("streaming.num_streamed_mips: %w", err))
		}
	}
	if c.Sim.GPUMemoryMB < 0 || c.Sim.TexturePoolMB < 0 || c.Sim.NonStreamingMB < 0 {
		errs = append(errs, fmt.Errorf("sim sizes must not be negative"))
	}
	if c.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("frame_rate_hz must not be negative"))
	}
	if c.Autosave < 0 {
		errs = append(errs, fmt.Errorf("autosave_sec must not be negative"))
	}
	if c.MaxBody < 0 {
		errs = append(errs, fmt.Errorf("max_body_bytes must not be negative"))
	}
	return errors.Join(errs...)
}

// Settings builds the algorithm tunables.
func (s Streaming) Settings() (texture.Settings, error) {
	out := texture.DefaultSettings()
	if s.MaxEffectiveScreenSize > 0 {
		out.MaxEffectiveScreenSize = s.MaxEffectiveScreenSize
	}
	if s.MaxTempMemoryAllowedMB > 0 {
		out.MaxTempMemoryAllowed = s.MaxTempMemoryAllowedMB << 20
	}
	if s.HiddenPrimitiveScale > 0 {
		out.HiddenPrimitiveScale = s.HiddenPrimitiveScale
	}
	if s.LightmapStreamingFactor > 0 {
		out.LightmapStreamingFactor = s.LightmapStreamingFactor
	}
	if s.ShadowmapStreamingFactor > 0 {
		out.ShadowmapStreamingFactor = s.ShadowmapStreamingFactor
	}
	out.GlobalMipBias = s.GlobalMipBias
	out.MinMipForSplitRequest = s.MinMipForSplitRequest
	if s.UsePerTextureBias != nil {
		out.UsePerTextureBias = *s.UsePerTextureBias
	}
	if s.UseNewMetrics != nil {
		out.UseNewMetrics = *s.UseNewMetrics
	}
	for name, n := range s.NumStreamedMips {
		g, err := texture.ParseGroup(name)
		if err != nil {
			return out, err
		}
		out.NumStreamedMips[g] = n
	}
	return out, nil
}

// Manager returns the streaming.Config tunables. The caller supplies the
// GPU, clock, logger and publishers.
func (s Streaming) Manager() (streaming.Config, error) {
	settings, err := s.Settings()
	if err != nil {
		return streaming.Config{}, err
	}
	cfg := streaming.Config{
		Settings:                &settings,
		FramesForFullUpdate:     s.FramesForFullUpdate,
		MemoryMarginMB:          s.MemoryMarginMB,
		MinEvictSizeMB:          s.MinEvictSizeMB,
		PoolSizeMB:              s.PoolSizeMB,
		PoolSizeVRAMPercentage:  s.PoolSizeVRAMPercentage,
		NeverStreamOutTextures:  s.NeverStreamOutTextures,
		BoostPlayerTextures:     s.BoostPlayerTextures,
		DisableDynamicStreaming: s.UseDynamicStreaming != nil && !*s.UseDynamicStreaming,
	}
	return cfg, nil
}
