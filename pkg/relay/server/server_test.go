package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cxbuddy/voicerelay/pkg/relay/config"
)

func serverTestConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Addr:                 "127.0.0.1:0",
		UpstreamEndpoint:     "wss://realtime.test",
		UpstreamAPIKey:       "key-test",
		UpstreamDeployment:   "gpt-4o-realtime-preview",
		UpstreamAPIVersion:   "2024-10-01-preview",
		JWTMode:              config.JWTModeUnverified,
		HandoffDelay:         10 * time.Millisecond,
		HandoffContextTTL:    time.Minute,
		TicketsDBPath:        filepath.Join(dir, "tickets.db"),
		BankAPIBase:          "http://127.0.0.1:1",
		KnowledgeFile:        filepath.Join(dir, "missing-kb.txt"),
		CORSAllowedOrigins:   map[string]struct{}{},
		MaxClientFrameBytes:  1 << 20,
		ClientPingInterval:   time.Minute,
		ClientWriteTimeout:   2 * time.Second,
		UpstreamDialTimeout:  2 * time.Second,
		UpstreamWriteTimeout: 2 * time.Second,
		ReadHeaderTimeout:    10 * time.Second,
		ShutdownGracePeriod:  15 * time.Second,
		MetricsNamespace:     "voicerelay",
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s, err := New(serverTestConfig(t), logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_HealthRoute_Reachable(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"service":"voicerelay"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_TicketsRoute_Reachable(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tickets", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"status":"success"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_MetricsRoute_Reachable(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "voicerelay_calls_active") {
		t.Fatalf("metrics exposition missing calls gauge: %q", rr.Body.String())
	}
}

func TestServer_CallRoute_Reachable(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))

	// A plain GET fails the websocket upgrade, but it must land on the
	// call handler rather than the catch-all.
	if rr.Code == http.StatusNotFound {
		t.Fatalf("/ws/chat unexpectedly returned 404")
	}
}

func TestServer_DrainingRejectsNewCallsAndReadiness(t *testing.T) {
	s := newTestServer(t)
	s.SetDraining()

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	if rr.Code != 529 {
		t.Fatalf("/ws/chat status=%d, want 529", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz status=%d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(rr.Body.String(), `"draining":true`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_WaitCallsIdleDrainsImmediately(t *testing.T) {
	s := newTestServer(t)
	s.WarnCallsDraining()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if !s.WaitCalls(ctx) {
		t.Fatalf("WaitCalls should report complete with no live calls")
	}
	s.CancelCalls()
}
