package mw

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cxbuddy/voicerelay/pkg/relay/auth"
	"github.com/cxbuddy/voicerelay/pkg/relay/config"
	"github.com/cxbuddy/voicerelay/pkg/relay/metrics"
)

type testBaseWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newTestBaseWriter() *testBaseWriter {
	return &testBaseWriter{header: make(http.Header)}
}

func (w *testBaseWriter) Header() http.Header {
	return w.header
}

func (w *testBaseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
}

func (w *testBaseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(p)
}

type testFlusherWriter struct {
	*testBaseWriter
	flushed bool
}

func (w *testFlusherWriter) Flush() {
	w.flushed = true
}

type testHijackerWriter struct {
	*testBaseWriter
	hijacked bool
}

func (w *testHijackerWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func parseSingleLogRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	return rec
}

func TestRequestID_GeneratedWhenMissing(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if seen == "" || !strings.HasPrefix(seen, "req_") {
		t.Fatalf("generated request id = %q", seen)
	}
	if got := rr.Header().Get("X-Request-ID"); got != seen {
		t.Fatalf("header id %q != context id %q", got, seen)
	}
}

func TestRequestID_PreservesIncoming(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req_upstream_1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "req_upstream_1" {
		t.Fatalf("request id = %q, want the incoming one", seen)
	}
}

func TestPrincipal_AttachesGuestWithoutToken(t *testing.T) {
	verifier := auth.NewVerifier(config.JWTModeUnverified, "")
	h := Principal(verifier, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			t.Fatal("no principal on context")
		}
		if p.Authenticated {
			t.Fatalf("principal = %+v, want guest", p)
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tickets", nil))
}

func TestRecover_TurnsPanicInto500(t *testing.T) {
	logBuf := &bytes.Buffer{}
	h := Recover(newTestLogger(logBuf), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tickets", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(logBuf.String(), "boom") {
		t.Fatalf("panic value not logged: %q", logBuf.String())
	}
}

func TestAccessLog_RecordsStatusAndPath(t *testing.T) {
	logBuf := &bytes.Buffer{}
	h := AccessLog(newTestLogger(logBuf), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/tickets", nil).
		WithContext(WithRequestID(context.Background(), "req_test"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := parseSingleLogRecord(t, logBuf)
	if got, ok := rec["status"].(float64); !ok || int(got) != http.StatusCreated {
		t.Fatalf("logged status = %v", rec["status"])
	}
	if rec["path"] != "/api/tickets" {
		t.Fatalf("logged path = %v", rec["path"])
	}
	if rec["request_id"] != "req_test" {
		t.Fatalf("logged request_id = %v", rec["request_id"])
	}
}

func TestAccessLog_PreservesHijacker(t *testing.T) {
	writer := &testHijackerWriter{testBaseWriter: newTestBaseWriter()}

	h := AccessLog(slog.New(slog.NewTextHandler(io.Discard, nil)), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("http.Hijacker not preserved, WebSocket upgrades would fail")
		}
		if _, _, err := hj.Hijack(); err != nil {
			t.Fatalf("hijack: %v", err)
		}
	}))

	h.ServeHTTP(writer, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	if !writer.hijacked {
		t.Fatal("hijack not delegated to the underlying writer")
	}
}

func TestAccessLog_PreservesFlusher(t *testing.T) {
	writer := &testFlusherWriter{testBaseWriter: newTestBaseWriter()}

	h := AccessLog(slog.New(slog.NewTextHandler(io.Discard, nil)), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("http.Flusher not preserved")
		}
		flusher.Flush()
	}))

	h.ServeHTTP(writer, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !writer.flushed {
		t.Fatal("flush not delegated to the underlying writer")
	}
}

func TestAccessLog_DoesNotAdvertiseUnsupportedInterfaces(t *testing.T) {
	h := AccessLog(slog.New(slog.NewTextHandler(io.Discard, nil)), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); ok {
			t.Fatal("http.Flusher advertised on a plain writer")
		}
		if _, ok := w.(http.Hijacker); ok {
			t.Fatal("http.Hijacker advertised on a plain writer")
		}
	}))

	h.ServeHTTP(newTestBaseWriter(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
}

func TestInstrument_RecordsByRoute(t *testing.T) {
	m := metrics.New("test")
	h := Instrument(m, "/api/tickets", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tickets/GXS-1", nil))

	// The registry must expose the counter under the fixed route label.
	metricsRR := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := metricsRR.Body.String()
	if !strings.Contains(body, `test_requests_total{method="GET",route="/api/tickets",status="404"} 1`) {
		t.Fatalf("request counter missing from exposition:\n%s", body)
	}
}
