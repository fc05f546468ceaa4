package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"texstream/internal/catalog"
	"texstream/internal/common/fsutil"
	"texstream/internal/config"
	"texstream/internal/eventlog"
	"texstream/internal/httpapi"
	"texstream/internal/sim"
	"texstream/internal/statestore"
	"texstream/internal/streaming"
	"texstream/pkg/types"
)

// serveFlags are the command line overrides of the config file.
type serveFlags struct {
	config      string
	addr        string
	catalog     string
	scene       string
	stateFile   string
	eventsDSN   string
	corsOrigins string
	logFormat   string
	frameRate   float64
}

// loadConfig reads the config file (if any), applies flag overrides and
// defaults, and validates the result.
func loadConfig(f serveFlags, logLevel string) (config.Config, error) {
	var cfg config.Config
	if f.config != "" {
		c, err := config.Load(f.config)
		if err != nil {
			return cfg, errors.Wrap(err, "load config")
		}
		cfg = c
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.catalog != "" {
		cfg.Catalog = f.catalog
	}
	if f.stateFile != "" {
		cfg.StateFile = f.stateFile
	}
	if f.eventsDSN != "" {
		cfg.EventSink.DSN = f.eventsDSN
	}
	if origins := splitCSV(f.corsOrigins); len(origins) > 0 {
		cfg.CORS.Enabled = true
		cfg.CORS.Origins = origins
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if f.frameRate > 0 {
		cfg.FrameRate = f.frameRate
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	cfg.Defaults()
	if cfg.Catalog == "" {
		return cfg, errors.New("no catalog configured (set catalog or --catalog)")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// splitCSV splits a comma separated list, trimming blanks and dropping
// empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadManifest loads path as a single manifest, or as a directory of
// manifests from which name (or the first one) is picked.
func loadManifest(path, name string) (*catalog.Manifest, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	dir, err := fsutil.IsDir(p)
	if err != nil {
		return nil, errors.Wrap(err, "catalog")
	}
	if !dir {
		m, err := catalog.Load(p)
		if err != nil {
			return nil, err
		}
		if name != "" && m.Name != name {
			return nil, errors.Errorf("catalog %s holds scene %q, not %q", p, m.Name, name)
		}
		return m, nil
	}
	ms, err := catalog.LoadDir(p)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, errors.Errorf("no scene manifests in %s", p)
	}
	if name == "" {
		return ms[0], nil
	}
	for _, m := range ms {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, errors.Errorf("scene %q not found in %s", name, p)
}

func openStateStore(ctx context.Context, cfg config.Config) (statestore.Store, error) {
	if s3cfg := cfg.StateS3; s3cfg.Bucket != "" {
		s, err := statestore.NewS3Store(ctx, statestore.S3Config{
			Bucket:    s3cfg.Bucket,
			Key:       s3cfg.Key,
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			PathStyle: s3cfg.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if cfg.StateFile != "" {
		s, err := statestore.NewFileStore(cfg.StateFile)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}

// daemon is one running simulation with its streamer and admin surface.
type daemon struct {
	cfg   config.Config
	log   zerolog.Logger
	runID string

	scene *sim.Scene
	mgr   *streaming.Manager
	hub   *httpapi.Hub
	sink  *eventlog.Sink
	store statestore.Store

	handler http.Handler
}

// newDaemon builds the scene, restores persisted state and wires the
// streamer to its publishers. reg receives the streaming metrics.
func newDaemon(ctx context.Context, cfg config.Config, sceneName string, log zerolog.Logger, reg prometheus.Registerer) (*daemon, error) {
	d := &daemon{cfg: cfg, log: log, runID: statestore.NewRunID()}

	manifest, err := loadManifest(cfg.Catalog, sceneName)
	if err != nil {
		return nil, err
	}
	clock := sim.NewClock(0)
	gpu := sim.NewGPU(cfg.Sim.GPUMemoryMB<<20, cfg.Sim.TexturePoolMB<<20)
	gpu.SetNonStreaming(cfg.Sim.NonStreamingMB << 20)
	if d.scene, err = sim.Build(manifest, clock, gpu, log); err != nil {
		return nil, err
	}

	var warm *streaming.PersistedState
	if d.store, err = openStateStore(ctx, cfg); err != nil {
		return nil, errors.Wrap(err, "state store")
	}
	if d.store != nil {
		warm = d.loadWarm(ctx)
	}

	if cfg.EventSink.DSN != "" {
		d.sink, err = eventlog.Open(eventlog.Config{
			Driver: cfg.EventSink.Driver,
			DSN:    cfg.EventSink.DSN,
			Logger: log,
		})
		if err != nil {
			return nil, err
		}
	}
	d.hub = httpapi.NewHub(httpapi.HubConfig{
		Status: func() types.StatusResponse { return d.mgr.Status() },
		Logger: log,
	})

	mcfg, err := cfg.Streaming.Manager()
	if err != nil {
		d.close()
		return nil, err
	}
	pubs := streaming.MultiPublisher{d.hub}
	if d.sink != nil {
		pubs = append(pubs, d.sink)
	}
	mcfg.GPU = gpu
	mcfg.Clock = clock
	mcfg.Logger = &d.log
	mcfg.Publisher = pubs
	mcfg.Registerer = reg
	mcfg.Warm = warm
	d.mgr = streaming.NewWithConfig(mcfg)
	d.scene.Attach(d.mgr)

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBody)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	opts := []httpapi.Option{httpapi.WithHub(d.hub)}
	if d.sink != nil {
		opts = append(opts, httpapi.WithEventLog(d.sink))
	}
	d.handler = httpapi.NewMux(d.mgr, opts...)
	return d, nil
}

// loadWarm returns the saved state when it belongs to the same scene.
func (d *daemon) loadWarm(ctx context.Context) *streaming.PersistedState {
	log := d.log.With().Str("location", d.store.Location()).Logger()
	snap, err := d.store.Load(ctx)
	switch {
	case statestore.IsNotFound(err):
		log.Info().Msg("no saved streaming state, starting cold")
		return nil
	case err != nil:
		log.Warn().Err(err).Msg("load streaming state, starting cold")
		return nil
	case snap.Header.Scene != d.scene.Name():
		log.Info().Str("saved_scene", snap.Header.Scene).Msg("saved state is for another scene, starting cold")
		return nil
	}
	log.Info().Str("run_id", snap.Header.RunID).Time("saved_at", snap.Header.SavedAt).Msg("warm start")
	return &snap.State
}

func (d *daemon) snapshot() statestore.Snapshot {
	return statestore.NewSnapshot(d.runID, d.scene.Name(), d.mgr.Snapshot())
}

func (d *daemon) frameInterval() time.Duration {
	return time.Duration(float64(time.Second) / d.cfg.FrameRate)
}

// frames drives the scene and the streamer at the configured rate.
func (d *daemon) frames(ctx context.Context) {
	dt := d.frameInterval()
	t := time.NewTicker(dt)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.scene.Frame(d.mgr, dt)
		}
	}
}

// run serves until ctx is done, then shuts everything down.
func (d *daemon) run(ctx context.Context) error {
	httpapi.SetBaseContext(ctx)
	srv := &http.Server{Addr: d.cfg.Addr, Handler: d.handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.frames(gctx)
		return nil
	})
	g.Go(func() error {
		d.hub.Run(gctx)
		return nil
	})
	if d.store != nil {
		interval := time.Duration(d.cfg.Autosave) * time.Second
		g.Go(func() error {
			statestore.Autosave(gctx, d.store, interval, d.snapshot, d.log)
			return nil
		})
	}
	g.Go(func() error {
		d.log.Info().
			Str("addr", d.cfg.Addr).
			Str("scene", d.scene.Name()).
			Float64("frame_rate_hz", d.cfg.FrameRate).
			Msg("texstreamd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			d.log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	err := g.Wait()
	d.close()
	return err
}

func (d *daemon) close() {
	if d.mgr != nil {
		if err := d.mgr.Close(); err != nil {
			d.log.Warn().Err(err).Msg("close streaming manager")
		}
	}
	if d.sink != nil {
		if err := d.sink.Close(); err != nil {
			d.log.Warn().Err(err).Msg("close event log")
		}
	}
}
