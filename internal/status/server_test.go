package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/arqlink/internal/arq"
	"github.com/danmuck/arqlink/internal/observability"
	"github.com/danmuck/arqlink/internal/testutil/testlog"
)

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthListsSources(t *testing.T) {
	testlog.Start(t)
	s := New("link-a", ":0", nil)
	s.Track("sender", func() any { return arq.SenderStats{} })

	rr := get(t, s, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Status  string   `json:"status"`
		Service string   `json:"service"`
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Service != "link-a" || len(body.Sources) != 1 || body.Sources[0] != "sender" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStatsReflectsLiveCounters(t *testing.T) {
	testlog.Start(t)
	s := New("link-a", ":0", nil)
	var frames uint64
	s.Track("sender", func() any { return arq.SenderStats{Frames: frames, Transfer: "t-1"} })

	frames = 3
	rr := get(t, s, "/stats/sender")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got arq.SenderStats
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Frames != 3 || got.Transfer != "t-1" {
		t.Fatalf("stats=%+v", got)
	}

	rr = get(t, s, "/stats")
	var all map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := all["sender"]; !ok {
		t.Fatalf("sender missing from %s", rr.Body.String())
	}
}

func TestUnknownSourceIsNotFound(t *testing.T) {
	testlog.Start(t)
	s := New("link-a", ":0", nil)
	if rr := get(t, s, "/stats/receiver"); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestMetricsEndpointExportsLinkCounters(t *testing.T) {
	testlog.Start(t)
	s := New("link-a", ":0", nil)
	observability.RecordFrameSent(false)

	rr := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "arqlink_sender_frames_total") {
		t.Fatalf("metrics body missing sender counter")
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	testlog.Start(t)
	s := New("link-a", ":0", []string{"http://dash.local"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dash.local")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://dash.local" {
		t.Fatalf("allow-origin=%q", got)
	}
}
