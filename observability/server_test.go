package observability

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"moodmic/metrics"
)

func get(t *testing.T, h http.Handler, path string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	resp := rec.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestRoutes(t *testing.T) {
	m := metrics.New()
	m.RecordEmotion("happy")
	h := Router(m.Registry, func() any {
		return map[string]any{"phase": "resolved", "emotion": "happy"}
	})

	resp, body := get(t, h, "/healthz")
	if resp.StatusCode != http.StatusOK || body != "ok" {
		t.Errorf("/healthz = %d %q", resp.StatusCode, body)
	}

	resp, body = get(t, h, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status %d", resp.StatusCode)
	}
	if !strings.Contains(body, `moodmic_emotions_shown_total{emotion="happy"} 1`) {
		t.Errorf("/metrics missing emotion counter:\n%s", body)
	}

	resp, body = get(t, h, "/state")
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("/state content type %q", ct)
	}
	var st map[string]string
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatal(err)
	}
	if st["phase"] != "resolved" {
		t.Errorf("/state = %v", st)
	}

	resp, _ = get(t, h, "/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("/nope status %d", resp.StatusCode)
	}
}

func TestStateWithoutSession(t *testing.T) {
	h := Router(metrics.New().Registry, nil)
	if resp, _ := get(t, h, "/state"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", resp.StatusCode)
	}
}

func TestServerStartShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", metrics.New().Registry, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Shutdown(t.Context()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
