package httpapi

import (
	"net/http"
	"testing"

	"texstream/pkg/types"
)

func TestTrackUntrack(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	var tr types.TrackResponse
	decodeBody(t, doJSON(t, h, http.MethodPost, "/textures/rock/track", ""), &tr)
	if tr.Pattern != "rock" || !tr.Changed {
		t.Fatalf("unexpected track: %+v", tr)
	}
	decodeBody(t, doJSON(t, h, http.MethodPost, "/textures/rock/track", ""), &tr)
	if tr.Changed {
		t.Fatalf("second track should not change anything")
	}

	var list types.TrackedResponse
	decodeBody(t, doJSON(t, h, http.MethodGet, "/tracked?limit=5", ""), &list)
	if svc.lastLimit != 5 || len(list.Patterns) != 1 || len(list.Textures) != 1 || list.Textures[0].Changes != 2 {
		t.Fatalf("unexpected tracked: %+v limit=%d", list, svc.lastLimit)
	}
	if w := doJSON(t, h, http.MethodGet, "/tracked?limit=0", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero limit, got %d", w.Code)
	}

	decodeBody(t, doJSON(t, h, http.MethodDelete, "/textures/rock/track", ""), &tr)
	if !tr.Changed || len(svc.patterns) != 0 {
		t.Fatalf("untrack did not stick: %+v %v", tr, svc.patterns)
	}
	if w := doJSON(t, h, http.MethodPost, "/textures/%20/track", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", w.Code)
	}
}

func TestGroups(t *testing.T) {
	svc := &mockService{groups: []types.GroupStats{{Group: "world", NumTextures: 3, ResidentBytes: 1 << 20}}}
	var body types.GroupsResponse
	decodeBody(t, doJSON(t, NewMux(svc), http.MethodGet, "/groups", ""), &body)
	if len(body.Groups) != 1 || body.Groups[0].Group != "world" || body.Groups[0].ResidentBytes != 1<<20 {
		t.Fatalf("unexpected groups: %+v", body)
	}
}

func TestSettings_GetAndPut(t *testing.T) {
	svc := &mockService{settings: types.SettingsResponse{LightmapStreamingFactor: 1, NumStreamedMips: map[string]int{"world": -1}}}
	h := NewMux(svc)
	var got types.SettingsResponse
	decodeBody(t, doJSON(t, h, http.MethodGet, "/settings", ""), &got)
	if got.LightmapStreamingFactor != 1 || got.NumStreamedMips["world"] != -1 {
		t.Fatalf("unexpected settings: %+v", got)
	}

	w := doJSON(t, h, http.MethodPut, "/settings", `{"lightmap_streaming_factor":0.5,"num_streamed_mips":{"lightmap":4}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	decodeBody(t, w, &got)
	if got.LightmapStreamingFactor != 0.5 || svc.lastSettings.NumStreamedMips["lightmap"] != 4 || svc.lastSettings.ShadowmapStreamingFactor != nil {
		t.Fatalf("unexpected put: %+v req=%+v", got, svc.lastSettings)
	}

	if w := doJSON(t, h, http.MethodPut, "/settings", `{"lightmap_streaming_factor":-1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPut, "/settings", `{"lightmap_streaming_factor":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", w.Code)
	}
}

func TestCancelRoutes(t *testing.T) {
	svc := &mockService{forced: 2, inFlight: 3}
	h := NewMux(svc)
	var c types.CancelResponse
	decodeBody(t, doJSON(t, h, http.MethodPost, "/cancel-forced", ""), &c)
	if c.Canceled != 2 {
		t.Fatalf("cancel-forced: %+v", c)
	}
	decodeBody(t, doJSON(t, h, http.MethodPost, "/cancel-streaming", ""), &c)
	if c.Canceled != 3 {
		t.Fatalf("cancel-streaming: %+v", c)
	}
}
