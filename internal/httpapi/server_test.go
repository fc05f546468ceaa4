package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"texstream/internal/streaming"
	"texstream/pkg/types"
)

type mockService struct {
	mu       sync.Mutex
	status   types.StatusResponse
	ready    bool
	textures []types.TextureStatus
	levels   []types.LevelInfo
	paused   bool
	maxEver  int64
	pending  int
	freed    int64

	lastFilter  streaming.TextureFilter
	lastFree    int64
	lastBlock   time.Duration
	visibleSets map[string]bool
	err         error

	patterns     []string
	lastLimit    int
	groups       []types.GroupStats
	settings     types.SettingsResponse
	lastSettings types.SettingsRequest
	forced       int
	inFlight     int
}

func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }
func (m *mockService) ListTextures(f streaming.TextureFilter) []types.TextureStatus {
	m.lastFilter = f
	var out []types.TextureStatus
	for _, t := range m.textures {
		if f.Name == "" || strings.Contains(t.Name, f.Name) {
			out = append(out, t)
		}
	}
	return out
}
func (m *mockService) InvestigateTexture(name string) (types.InvestigateResponse, error) {
	if m.err != nil {
		return types.InvestigateResponse{}, m.err
	}
	var out types.InvestigateResponse
	for _, t := range m.ListTextures(streaming.TextureFilter{Name: name}) {
		out.Matches = append(out.Matches, types.TextureInvestigation{Texture: t})
	}
	if len(out.Matches) == 0 {
		return out, streaming.ErrTextureNotFound(name)
	}
	return out, nil
}
func (m *mockService) UpdateTextureByName(name string) (types.UpdateTextureResponse, error) {
	if m.err != nil {
		return types.UpdateTextureResponse{}, m.err
	}
	return types.UpdateTextureResponse{Name: name, WantedMips: 11, Action: "stream_in"}, nil
}
func (m *mockService) StreamOutTextureData(bytes int64) (int64, bool) {
	m.lastFree = bytes
	return m.freed, m.freed >= bytes
}
func (m *mockService) SetPaused(p bool) {
	m.mu.Lock()
	m.paused = p
	m.mu.Unlock()
}
func (m *mockService) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}
func (m *mockService) ResetMaxEverRequired() int64 {
	prev := m.maxEver
	m.maxEver = 0
	return prev
}
func (m *mockService) Levels() []types.LevelInfo { return m.levels }
func (m *mockService) SetLevelVisible(id string, visible bool) error {
	for _, l := range m.levels {
		if l.ID == id {
			if m.visibleSets == nil {
				m.visibleSets = map[string]bool{}
			}
			m.visibleSets[id] = visible
			return nil
		}
	}
	return streaming.ErrLevelNotFound(id)
}
func (m *mockService) BlockTillAllRequestsFinished(timeout time.Duration, _ bool) int {
	m.lastBlock = timeout
	return m.pending
}

func (m *mockService) TrackTexture(p string) (bool, error) {
	if strings.TrimSpace(p) == "" {
		return false, streaming.ErrInvalidArgument("texture name required")
	}
	for _, q := range m.patterns {
		if q == p {
			return false, nil
		}
	}
	m.patterns = append(m.patterns, p)
	return true, nil
}
func (m *mockService) UntrackTexture(p string) (bool, error) {
	for i, q := range m.patterns {
		if q == p {
			m.patterns = append(m.patterns[:i], m.patterns[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
func (m *mockService) TrackedTextures(limit int) types.TrackedResponse {
	m.lastLimit = limit
	return types.TrackedResponse{Patterns: m.patterns, Textures: []types.TrackedTexture{{Name: "rock_d", Changes: 2}}}
}
func (m *mockService) GroupStats() []types.GroupStats         { return m.groups }
func (m *mockService) CurrentSettings() types.SettingsResponse { return m.settings }
func (m *mockService) ApplySettings(req types.SettingsRequest) (types.SettingsResponse, error) {
	m.lastSettings = req
	if v := req.LightmapStreamingFactor; v != nil {
		if *v < 0 {
			return types.SettingsResponse{}, streaming.ErrInvalidArgument("lightmap_streaming_factor must not be negative")
		}
		m.settings.LightmapStreamingFactor = *v
	}
	return m.settings, nil
}
func (m *mockService) CancelForcedResources() int  { return m.forced }
func (m *mockService) CancelPendingStreaming() int { return m.inFlight }

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{NumTextures: 10, Stats: types.StreamingStats{PoolSize: 1 << 30}}}
	w := doJSON(t, NewMux(svc), http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	decodeBody(t, w, &body)
	if body.NumTextures != 10 || body.Stats.PoolSize != 1<<30 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestTexturesHandler_PassesFilter(t *testing.T) {
	svc := &mockService{textures: []types.TextureStatus{{Name: "brick"}, {Name: "brick_n"}, {Name: "grass"}}}
	w := doJSON(t, NewMux(svc), http.MethodGet, "/textures?name=brick&group=world&unknown_ref=true&in_flight=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.TexturesResponse
	decodeBody(t, w, &body)
	if len(body.Textures) != 2 {
		t.Fatalf("textures len=%d", len(body.Textures))
	}
	f := svc.lastFilter
	if f.Name != "brick" || f.Group != "world" || !f.UnknownRefOnly || !f.InFlightOnly {
		t.Fatalf("unexpected filter: %+v", f)
	}
}

func TestTextureByName(t *testing.T) {
	svc := &mockService{textures: []types.TextureStatus{{Name: "brick", ResidentMips: 9}, {Name: "brick_n"}}}
	h := NewMux(svc)
	w := doJSON(t, h, http.MethodGet, "/textures/brick", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.TextureStatus
	decodeBody(t, w, &body)
	if body.Name != "brick" || body.ResidentMips != 9 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if w := doJSON(t, h, http.MethodGet, "/textures/bri", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for partial name, got %d", w.Code)
	}
}

func TestInvestigateAndUpdate(t *testing.T) {
	svc := &mockService{textures: []types.TextureStatus{{Name: "rock_d"}, {Name: "rock_n"}}}
	h := NewMux(svc)
	w := doJSON(t, h, http.MethodGet, "/textures/rock/investigate", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var inv types.InvestigateResponse
	decodeBody(t, w, &inv)
	if len(inv.Matches) != 2 {
		t.Fatalf("matches=%d", len(inv.Matches))
	}

	w = doJSON(t, h, http.MethodPost, "/textures/rock_d/update", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var upd types.UpdateTextureResponse
	decodeBody(t, w, &upd)
	if upd.Name != "rock_d" || upd.Action != "stream_in" {
		t.Fatalf("unexpected update: %+v", upd)
	}
}

func TestStreamOut(t *testing.T) {
	svc := &mockService{freed: 3 << 20}
	h := NewMux(svc)
	w := doJSON(t, h, http.MethodPost, "/streamout", `{"mb":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.StreamOutResponse
	decodeBody(t, w, &body)
	if svc.lastFree != 2<<20 || body.RequestedBytes != 2<<20 || body.FreedBytes != 3<<20 || !body.Succeeded {
		t.Fatalf("unexpected response: %+v", body)
	}

	if w := doJSON(t, h, http.MethodPost, "/streamout", `{"mb":0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero mb, got %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/streamout", "not-json"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", w.Code)
	}
}

func TestStreamOut_UnsupportedMediaType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/streamout", bytes.NewBufferString(`{"mb":1}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestStreamOut_BodyTooLarge(t *testing.T) {
	// Create >1MiB body
	big := make([]byte, (1<<20)+10)
	for i := range big {
		big[i] = 'a'
	}
	req := httptest.NewRequest(http.MethodPost, "/streamout", bytes.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too-large body, got %d", w.Code)
	}
}

func TestPauseResumeResetMax(t *testing.T) {
	svc := &mockService{maxEver: 1234}
	h := NewMux(svc)
	var p types.PauseResponse
	decodeBody(t, doJSON(t, h, http.MethodPost, "/pause", ""), &p)
	if !p.Paused || !svc.IsPaused() {
		t.Fatalf("pause did not stick")
	}
	decodeBody(t, doJSON(t, h, http.MethodPost, "/resume", ""), &p)
	if p.Paused {
		t.Fatalf("resume did not stick")
	}
	var rm types.ResetMaxResponse
	decodeBody(t, doJSON(t, h, http.MethodPost, "/reset-max", ""), &rm)
	if rm.Previous != 1234 || svc.maxEver != 0 {
		t.Fatalf("unexpected reset: %+v", rm)
	}
}

func TestBlock(t *testing.T) {
	svc := &mockService{pending: 2}
	h := NewMux(svc)
	var b types.BlockResponse
	decodeBody(t, doJSON(t, h, http.MethodPost, "/block?timeout_ms=250", ""), &b)
	if b.Pending != 2 || svc.lastBlock != 250*time.Millisecond {
		t.Fatalf("unexpected block: %+v timeout=%s", b, svc.lastBlock)
	}
	doJSON(t, h, http.MethodPost, "/block?timeout_ms=999999", "")
	if svc.lastBlock != maxBlockTimeout {
		t.Fatalf("timeout not capped: %s", svc.lastBlock)
	}
	if w := doJSON(t, h, http.MethodPost, "/block?timeout_ms=soon", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLevels(t *testing.T) {
	svc := &mockService{levels: []types.LevelInfo{{ID: "square", Primitives: 3, Visible: true}}}
	h := NewMux(svc)
	var body types.LevelsResponse
	decodeBody(t, doJSON(t, h, http.MethodGet, "/levels", ""), &body)
	if len(body.Levels) != 1 || body.Levels[0].ID != "square" {
		t.Fatalf("unexpected levels: %+v", body)
	}

	if w := doJSON(t, h, http.MethodPut, "/levels/square/visibility", `{"visible":false}`); w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if v, ok := svc.visibleSets["square"]; !ok || v {
		t.Fatalf("visibility not forwarded: %v", svc.visibleSets)
	}
	if w := doJSON(t, h, http.MethodPut, "/levels/nowhere/visibility", `{"visible":true}`); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	w := doJSON(t, NewMux(&mockService{ready: true}), http.MethodGet, "/readyz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	w := doJSON(t, NewMux(&mockService{ready: false}), http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "warming up") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	w := doJSON(t, NewMux(&mockService{}), http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}
