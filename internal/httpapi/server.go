package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"texstream/internal/eventlog"
	"texstream/internal/streaming"
	"texstream/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *streaming.Manager satisfies it.
type Service interface {
	Status() types.StatusResponse
	Ready() bool
	ListTextures(f streaming.TextureFilter) []types.TextureStatus
	InvestigateTexture(name string) (types.InvestigateResponse, error)
	UpdateTextureByName(name string) (types.UpdateTextureResponse, error)
	StreamOutTextureData(bytes int64) (int64, bool)
	SetPaused(paused bool)
	IsPaused() bool
	ResetMaxEverRequired() int64
	Levels() []types.LevelInfo
	SetLevelVisible(id string, visible bool) error
	BlockTillAllRequestsFinished(timeout time.Duration, logResults bool) int
	TrackTexture(pattern string) (bool, error)
	UntrackTexture(pattern string) (bool, error)
	TrackedTextures(limit int) types.TrackedResponse
	GroupStats() []types.GroupStats
	CurrentSettings() types.SettingsResponse
	ApplySettings(req types.SettingsRequest) (types.SettingsResponse, error)
	CancelForcedResources() int
	CancelPendingStreaming() int
}

// EventQuerier reads back stored streaming events.
type EventQuerier interface {
	Recent(ctx context.Context, q eventlog.Query) ([]eventlog.Record, error)
}

// Option customizes NewMux.
type Option func(*mux)

// WithHub mounts the websocket feed at /ws.
func WithHub(h *Hub) Option { return func(m *mux) { m.hub = h } }

// WithEventLog serves GET /events from q.
func WithEventLog(q EventQuerier) Option { return func(m *mux) { m.events = q } }

type mux struct {
	svc    Service
	hub    *Hub
	events EventQuerier
}

// maxBlockTimeout bounds POST /block.
const maxBlockTimeout = 30 * time.Second

// NewMux builds the admin router.
func NewMux(svc Service, opts ...Option) http.Handler {
	m := &mux{svc: svc}
	for _, o := range opts {
		o(m)
	}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(requestLogger)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		// Compression for JSON endpoints; the websocket upgrade must not be wrapped.
		r.Use(middleware.Compress(5))
		r.Use(InflightMiddleware)

		r.Get("/status", m.status)
		r.Get("/textures", m.listTextures)
		r.Get("/textures/{name}", m.getTexture)
		r.Get("/textures/{name}/investigate", m.investigate)
		r.Post("/textures/{name}/update", m.updateTexture)
		r.Post("/textures/{name}/track", m.track(true))
		r.Delete("/textures/{name}/track", m.track(false))
		r.Get("/tracked", m.tracked)
		r.Get("/groups", m.groups)
		r.Get("/settings", m.settings)
		r.Put("/settings", m.applySettings)
		r.Post("/cancel-forced", m.cancelForced)
		r.Post("/cancel-streaming", m.cancelStreaming)
		r.Post("/streamout", m.streamOut)
		r.Post("/pause", m.pause(true))
		r.Post("/resume", m.pause(false))
		r.Post("/reset-max", m.resetMax)
		r.Post("/block", m.block)
		r.Get("/levels", m.levels)
		r.Put("/levels/{id}/visibility", m.levelVisibility)
		if m.events != nil {
			r.Get("/events", m.recentEvents)
		}
		MountSwagger(r)
	})

	if m.hub != nil {
		r.Get("/ws", m.hub.ServeHTTP)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("warming up"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// status godoc
// @Summary  Streaming status
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (m *mux) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.svc.Status())
}

// listTextures godoc
// @Summary  List textures
// @Param    name query string false "substring of the texture name"
// @Param    group query string false "LOD group"
// @Param    unknown_ref query bool false "only textures kept by the unknown reference heuristic"
// @Param    in_flight query bool false "only textures with a pending resize"
// @Success  200 {object} types.TexturesResponse
// @Router   /textures [get]
func (m *mux) listTextures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := streaming.TextureFilter{
		Name:           q.Get("name"),
		Group:          q.Get("group"),
		UnknownRefOnly: queryBool(q.Get("unknown_ref")),
		InFlightOnly:   queryBool(q.Get("in_flight")),
	}
	writeJSON(w, http.StatusOK, types.TexturesResponse{Textures: m.svc.ListTextures(f)})
}

// getTexture godoc
// @Summary  One texture by exact name
// @Success  200 {object} types.TextureStatus
// @Failure  404 {object} types.ErrorResponse
// @Router   /textures/{name} [get]
func (m *mux) getTexture(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, t := range m.svc.ListTextures(streaming.TextureFilter{Name: name}) {
		if t.Name == name {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeServiceError(w, r, streaming.ErrTextureNotFound(name))
}

// investigate godoc
// @Summary  Per instance breakdown of every texture whose name contains {name}
// @Success  200 {object} types.InvestigateResponse
// @Failure  404 {object} types.ErrorResponse
// @Router   /textures/{name}/investigate [get]
func (m *mux) investigate(w http.ResponseWriter, r *http.Request) {
	resp, err := m.svc.InvestigateTexture(chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// updateTexture godoc
// @Summary  Stream one texture to its perfect wanted mips, ignoring the budget
// @Success  200 {object} types.UpdateTextureResponse
// @Failure  404 {object} types.ErrorResponse
// @Router   /textures/{name}/update [post]
func (m *mux) updateTexture(w http.ResponseWriter, r *http.Request) {
	resp, err := m.svc.UpdateTextureByName(chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// track godoc
// @Summary  Track or stop tracking the textures whose name contains {name}
// @Success  200 {object} types.TrackResponse
// @Failure  400 {object} types.ErrorResponse
// @Router   /textures/{name}/track [post]
// @Router   /textures/{name}/track [delete]
func (m *mux) track(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		apply := m.svc.UntrackTexture
		if on {
			apply = m.svc.TrackTexture
		}
		changed, err := apply(name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.TrackResponse{Pattern: strings.ToLower(strings.TrimSpace(name)), Changed: changed})
	}
}

// tracked godoc
// @Summary  Last recorded state of every tracked texture, most recent change first
// @Param    limit query int false "maximum textures"
// @Success  200 {object} types.TrackedResponse
// @Failure  400 {object} types.ErrorResponse
// @Router   /tracked [get]
func (m *mux) tracked(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeServiceError(w, r, streaming.ErrInvalidArgument("limit must be a positive integer"))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, m.svc.TrackedTextures(limit))
}

// groups godoc
// @Summary  Resident and wanted bytes per LOD group
// @Success  200 {object} types.GroupsResponse
// @Router   /groups [get]
func (m *mux) groups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.GroupsResponse{Groups: m.svc.GroupStats()})
}

// settings godoc
// @Summary  Runtime streaming settings
// @Success  200 {object} types.SettingsResponse
// @Router   /settings [get]
func (m *mux) settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.svc.CurrentSettings())
}

// applySettings godoc
// @Summary  Change runtime streaming settings from the next cycle on
// @Accept   json
// @Param    body body types.SettingsRequest true "fields to change"
// @Success  200 {object} types.SettingsResponse
// @Failure  400 {object} types.ErrorResponse
// @Router   /settings [put]
func (m *mux) applySettings(w http.ResponseWriter, r *http.Request) {
	var req types.SettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := m.svc.ApplySettings(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// cancelForced godoc
// @Summary  Revoke timed forced residency
// @Success  200 {object} types.CancelResponse
// @Router   /cancel-forced [post]
func (m *mux) cancelForced(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.CancelResponse{Canceled: m.svc.CancelForcedResources()})
}

// cancelStreaming godoc
// @Summary  Abort every resize in flight
// @Success  200 {object} types.CancelResponse
// @Router   /cancel-streaming [post]
func (m *mux) cancelStreaming(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.CancelResponse{Canceled: m.svc.CancelPendingStreaming()})
}

// streamOut godoc
// @Summary  Free texture memory
// @Accept   json
// @Param    body body types.StreamOutRequest true "amount to free"
// @Success  200 {object} types.StreamOutResponse
// @Failure  400 {object} types.ErrorResponse
// @Router   /streamout [post]
func (m *mux) streamOut(w http.ResponseWriter, r *http.Request) {
	var req types.StreamOutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MB <= 0 {
		writeServiceError(w, r, streaming.ErrInvalidArgument("mb must be positive"))
		return
	}
	bytes := req.MB << 20
	freed, ok := m.svc.StreamOutTextureData(bytes)
	writeJSON(w, http.StatusOK, types.StreamOutResponse{RequestedBytes: bytes, FreedBytes: freed, Succeeded: ok})
}

// pause godoc
// @Summary  Pause or resume streaming
// @Success  200 {object} types.PauseResponse
// @Router   /pause [post]
// @Router   /resume [post]
func (m *mux) pause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.svc.SetPaused(paused)
		writeJSON(w, http.StatusOK, types.PauseResponse{Paused: m.svc.IsPaused()})
	}
}

// resetMax godoc
// @Summary  Reset the max ever required statistic
// @Success  200 {object} types.ResetMaxResponse
// @Router   /reset-max [post]
func (m *mux) resetMax(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ResetMaxResponse{Previous: m.svc.ResetMaxEverRequired()})
}

// block godoc
// @Summary  Wait for in-flight requests
// @Param    timeout_ms query int false "maximum wait, capped at 30s"
// @Success  200 {object} types.BlockResponse
// @Failure  400 {object} types.ErrorResponse
// @Router   /block [post]
func (m *mux) block(w http.ResponseWriter, r *http.Request) {
	timeout := time.Second
	if v := r.URL.Query().Get("timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			writeServiceError(w, r, streaming.ErrInvalidArgument("timeout_ms must be a non-negative integer"))
			return
		}
		timeout = min(time.Duration(ms)*time.Millisecond, maxBlockTimeout)
	}
	ctx, cancel := untilShutdown(r.Context())
	defer cancel()
	done := make(chan int, 1)
	go func() { done <- m.svc.BlockTillAllRequestsFinished(timeout, requestLogLevel(r) >= LevelDebug) }()
	select {
	case n := <-done:
		writeJSON(w, http.StatusOK, types.BlockResponse{Pending: n})
	case <-ctx.Done():
	}
}

// levels godoc
// @Summary  Registered levels
// @Success  200 {object} types.LevelsResponse
// @Router   /levels [get]
func (m *mux) levels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.LevelsResponse{Levels: m.svc.Levels()})
}

// levelVisibility godoc
// @Summary  Show or hide a level
// @Accept   json
// @Param    body body types.LevelVisibilityRequest true "visibility"
// @Success  204
// @Failure  404 {object} types.ErrorResponse
// @Router   /levels/{id}/visibility [put]
func (m *mux) levelVisibility(w http.ResponseWriter, r *http.Request) {
	var req types.LevelVisibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := m.svc.SetLevelVisible(chi.URLParam(r, "id"), req.Visible); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// recentEvents godoc
// @Summary  Stored streaming events, newest first
// @Param    name query string false "event name"
// @Param    texture query string false "texture name"
// @Param    limit query int false "maximum rows (default 100)"
// @Success  200 {object} types.EventsResponse
// @Router   /events [get]
func (m *mux) recentEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := eventlog.Query{Name: q.Get("name"), Texture: q.Get("texture")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeServiceError(w, r, streaming.ErrInvalidArgument("limit must be a positive integer"))
			return
		}
		query.Limit = min(n, 1000)
	}
	recs, err := m.events.Recent(r.Context(), query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := types.EventsResponse{Events: make([]types.EventMessage, 0, len(recs))}
	for _, rec := range recs {
		out.Events = append(out.Events, types.EventMessage{
			Name:    rec.Name,
			Texture: rec.Texture,
			Fields:  rec.Fields,
			Time:    rec.At.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeJSON enforces the JSON content type and the body size limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	// Limit body size (configurable, default 1MiB)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// If exceeded size, MaxBytesReader may cause an error; still return 400 to avoid size leak details
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logError(err, "encode response")
	}
}

func queryBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
