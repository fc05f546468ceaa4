package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by Defaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
	// Catalog is the scene manifest (file or directory) driving the simulation.
	Catalog   string      `json:"catalog" yaml:"catalog" toml:"catalog"`
	StateFile string      `json:"state_file" yaml:"state_file" toml:"state_file"`
	StateS3   S3Config    `json:"state_s3" yaml:"state_s3" toml:"state_s3"`
	Autosave  int         `json:"autosave_sec" yaml:"autosave_sec" toml:"autosave_sec"`
	EventSink EventSink   `json:"event_sink" yaml:"event_sink" toml:"event_sink"`
	Streaming Streaming   `json:"streaming" yaml:"streaming" toml:"streaming"`
	Sim       Sim         `json:"sim" yaml:"sim" toml:"sim"`
	FrameRate float64     `json:"frame_rate_hz" yaml:"frame_rate_hz" toml:"frame_rate_hz"`
	CORS      CORSOptions `json:"cors" yaml:"cors" toml:"cors"`
	MaxBody   int64       `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// S3Config selects an S3 bucket for persisted state. Empty Bucket disables it.
type S3Config struct {
	Bucket    string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Key       string `json:"key" yaml:"key" toml:"key"`
	Region    string `json:"region" yaml:"region" toml:"region"`
	Endpoint  string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	PathStyle bool   `json:"path_style" yaml:"path_style" toml:"path_style"`
}

// EventSink selects the SQL event log. Empty DSN disables it.
type EventSink struct {
	Driver string `json:"driver" yaml:"driver" toml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn" toml:"dsn"`
}

// Sim sizes the simulated graphics card the daemon streams into.
type Sim struct {
	GPUMemoryMB   int64 `json:"gpu_memory_mb" yaml:"gpu_memory_mb" toml:"gpu_memory_mb"`
	TexturePoolMB int64 `json:"texture_pool_mb" yaml:"texture_pool_mb" toml:"texture_pool_mb"`
	// NonStreamingMB is allocated by everything but streamed mips.
	NonStreamingMB int64 `json:"non_streaming_mb" yaml:"non_streaming_mb" toml:"non_streaming_mb"`
}

// CORSOptions mirrors the HTTP layer's opt-in CORS switch.
type CORSOptions struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Streaming carries the streaming manager tunables. Pointer fields keep an
// explicit zero or false apart from an omitted value.
type Streaming struct {
	MemoryMarginMB           *int64         `json:"memory_margin_mb" yaml:"memory_margin_mb" toml:"memory_margin_mb"`
	MinEvictSizeMB           int64          `json:"min_evict_size_mb" yaml:"min_evict_size_mb" toml:"min_evict_size_mb"`
	PoolSizeMB               int64          `json:"pool_size_mb" yaml:"pool_size_mb" toml:"pool_size_mb"`
	PoolSizeVRAMPercentage   int            `json:"pool_size_vram_percentage" yaml:"pool_size_vram_percentage" toml:"pool_size_vram_percentage"`
	LightmapStreamingFactor  float32        `json:"lightmap_streaming_factor" yaml:"lightmap_streaming_factor" toml:"lightmap_streaming_factor"`
	ShadowmapStreamingFactor float32        `json:"shadowmap_streaming_factor" yaml:"shadowmap_streaming_factor" toml:"shadowmap_streaming_factor"`
	HiddenPrimitiveScale     float32        `json:"hidden_primitive_scale" yaml:"hidden_primitive_scale" toml:"hidden_primitive_scale"`
	FramesForFullUpdate      int            `json:"frames_for_full_update" yaml:"frames_for_full_update" toml:"frames_for_full_update"`
	NeverStreamOutTextures   bool           `json:"never_stream_out_textures" yaml:"never_stream_out_textures" toml:"never_stream_out_textures"`
	UseDynamicStreaming      *bool          `json:"use_dynamic_streaming" yaml:"use_dynamic_streaming" toml:"use_dynamic_streaming"`
	BoostPlayerTextures      float32        `json:"boost_player_textures" yaml:"boost_player_textures" toml:"boost_player_textures"`
	MaxTempMemoryAllowedMB   int64          `json:"max_temp_memory_allowed_mb" yaml:"max_temp_memory_allowed_mb" toml:"max_temp_memory_allowed_mb"`
	GlobalMipBias            int            `json:"global_mip_bias" yaml:"global_mip_bias" toml:"global_mip_bias"`
	UsePerTextureBias        *bool          `json:"use_per_texture_bias" yaml:"use_per_texture_bias" toml:"use_per_texture_bias"`
	UseNewMetrics            *bool          `json:"use_new_metrics" yaml:"use_new_metrics" toml:"use_new_metrics"`
	MinMipForSplitRequest    int            `json:"min_mip_for_split_request" yaml:"min_mip_for_split_request" toml:"min_mip_for_split_request"`
	MaxEffectiveScreenSize   float32        `json:"max_effective_screen_size" yaml:"max_effective_screen_size" toml:"max_effective_screen_size"`
	NumStreamedMips          map[string]int `json:"num_streamed_mips" yaml:"num_streamed_mips" toml:"num_streamed_mips"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
