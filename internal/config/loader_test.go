package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: :9999
catalog: scenes/town.yaml
state_file: /tmp/state.zst
event_sink:
  dsn: /tmp/events.db
streaming:
  pool_size_mb: 512
  frames_for_full_update: 3
  use_dynamic_streaming: false
  num_streamed_mips:
    lightmap: 4
cors:
  enabled: true
  origins: ["http://localhost"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Catalog != "scenes/town.yaml" || cfg.StateFile != "/tmp/state.zst" || cfg.EventSink.DSN != "/tmp/events.db" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	s := cfg.Streaming
	if s.PoolSizeMB != 512 || s.FramesForFullUpdate != 3 || s.UseDynamicStreaming == nil || *s.UseDynamicStreaming || s.NumStreamedMips["lightmap"] != 4 {
		t.Fatalf("unexpected streaming cfg: %+v", s)
	}
	if !cfg.CORS.Enabled || len(cfg.CORS.Origins) != 1 {
		t.Fatalf("unexpected cors: %+v", cfg.CORS)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","frame_rate_hz":60,"state_s3":{"bucket":"b","region":"eu-west-1","path_style":true},"streaming":{"memory_margin_mb":2,"global_mip_bias":1}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.FrameRate != 60 || cfg.StateS3.Bucket != "b" || !cfg.StateS3.PathStyle || cfg.Streaming.MemoryMarginMB == nil || *cfg.Streaming.MemoryMarginMB != 2 || cfg.Streaming.GlobalMipBias != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nlog_format=\"json\"\n[streaming]\nmin_evict_size_mb=20\nnever_stream_out_textures=true\n[event_sink]\ndriver=\"pgx\"\ndsn=\"postgres://x\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.LogFormat != "json" || cfg.Streaming.MinEvictSizeMB != 20 || !cfg.Streaming.NeverStreamOutTextures || cfg.EventSink.Driver != "pgx" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}
