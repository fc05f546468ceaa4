package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func requestsCount(path, method, status string) float64 {
	return testutil.ToFloat64(httpRequestsTotal.WithLabelValues(path, method, status))
}

// TestMetricsMiddleware_CountsByRouteAndStatus drives the admin router and
// checks that successes and service errors land in separate series.
func TestMetricsMiddleware_CountsByRouteAndStatus(t *testing.T) {
	h := NewMux(&mockService{})
	okBefore := requestsCount("/status", http.MethodGet, "200")
	missBefore := requestsCount("/textures/{name}", http.MethodGet, "404")

	for _, path := range []string{"/status", "/status", "/textures/T_Missing"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := requestsCount("/status", http.MethodGet, "200") - okBefore; got != 2 {
		t.Fatalf("GET /status 200 counted %v times, want 2", got)
	}
	if got := requestsCount("/textures/{name}", http.MethodGet, "404") - missBefore; got != 1 {
		t.Fatalf("GET /textures/{name} 404 counted %v times, want 1", got)
	}
}

func TestStatusRecorder_PassThrough(t *testing.T) {
	rr := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rr, status: http.StatusOK}
	sr.WriteHeader(http.StatusTeapot)
	sr.Flush()
	if sr.status != http.StatusTeapot || rr.Code != http.StatusTeapot || !rr.Flushed {
		t.Fatalf("status=%d code=%d flushed=%v", sr.status, rr.Code, rr.Flushed)
	}
	if sr.Unwrap() != rr {
		t.Fatalf("Unwrap did not return the wrapped writer")
	}
	// httptest.ResponseRecorder cannot be hijacked.
	if _, _, err := sr.Hijack(); err == nil {
		t.Fatalf("expected hijack error")
	}
}
