package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zsiec/beam/metrics"
	"github.com/zsiec/beam/stream"
)

// fakeEngine implements the Engine surface for handler tests.
type fakeEngine struct {
	mu          sync.Mutex
	stats       stream.Stats
	bitrate     int
	congestions int
}

func (f *fakeEngine) Stats() stream.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeEngine) SetTargetBitrate(kbps int) {
	f.mu.Lock()
	f.bitrate = kbps
	f.mu.Unlock()
}

func (f *fakeEngine) NotifyCongestion() {
	f.mu.Lock()
	f.congestions++
	f.mu.Unlock()
}

func newTestServer(t *testing.T, engine *fakeEngine) *Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(engine)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return New(Config{
		Addr:     ":0",
		Engine:   engine,
		Gatherer: reg,
	})
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{stats: stream.Stats{
		TotalFramesSent: 42,
		FramesDropped:   2,
		State:           "streaming",
	}}
	srv := newTestServer(t, engine)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var got stream.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TotalFramesSent != 42 || got.State != "streaming" {
		t.Errorf("stats: %+v", got)
	}
}

func TestBitrateEndpoint(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	srv := newTestServer(t, engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/bitrate", strings.NewReader(`{"kbps": 2500}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", w.Code, w.Body.String())
	}
	if engine.bitrate != 2500 {
		t.Errorf("bitrate: got %d, want 2500", engine.bitrate)
	}
}

func TestBitrateEndpointRejectsBadInput(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	srv := newTestServer(t, engine)

	for _, body := range []string{`{}`, `{"kbps": -100}`, `not json`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/bitrate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		srv.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status %d, want 400", body, w.Code)
		}
	}
	if engine.bitrate != 0 {
		t.Errorf("bitrate set by invalid request: %d", engine.bitrate)
	}
}

func TestCongestionEndpoint(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	srv := newTestServer(t, engine)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/congestion", nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", w.Code)
	}
	if engine.congestions != 1 {
		t.Errorf("congestions: got %d, want 1", engine.congestions)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{stats: stream.Stats{TotalFramesSent: 7, State: "streaming"}}
	srv := newTestServer(t, engine)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "beam_frames_sent_total 7") {
		t.Error("metrics output missing beam_frames_sent_total")
	}
}

func TestHealthEndpointWithoutMonitor(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeEngine{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}
