package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cxbuddy/voicerelay/pkg/relay/config"
	"github.com/cxbuddy/voicerelay/pkg/relay/lifecycle"
)

func readyTestConfig() config.Config {
	return config.Config{
		JWTMode:              config.JWTModeUnverified,
		UpstreamEndpoint:     "wss://realtime.test",
		UpstreamAPIKey:       "key-test",
		UpstreamDeployment:   "gpt-4o-realtime-preview",
		HandoffContextTTL:    2 * time.Minute,
		MaxClientFrameBytes:  1 << 20,
		ClientPingInterval:   20 * time.Second,
		ClientWriteTimeout:   5 * time.Second,
		UpstreamDialTimeout:  10 * time.Second,
		UpstreamWriteTimeout: 5 * time.Second,
		ReadHeaderTimeout:    10 * time.Second,
		ShutdownGracePeriod:  15 * time.Second,
	}
}

func TestHealthHandler_ReportsServiceMetadata(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{Version: "1.2.3"}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("status=%q", resp["status"])
	}
	if resp["service"] != "voicerelay" {
		t.Fatalf("service=%q", resp["service"])
	}
	if resp["version"] != "1.2.3" {
		t.Fatalf("version=%q", resp["version"])
	}
}

func TestReadyHandler_ConfiguredRelayIsReady(t *testing.T) {
	h := ReadyHandler{Config: readyTestConfig(), Lifecycle: &lifecycle.Lifecycle{}}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok, _ := resp["ok"].(bool); !ok {
		t.Fatalf("expected ok=true, body=%q", rr.Body.String())
	}
}

func TestReadyHandler_MissingUpstreamKeyNotReady(t *testing.T) {
	cfg := readyTestConfig()
	cfg.UpstreamAPIKey = ""
	h := ReadyHandler{Config: cfg, Lifecycle: &lifecycle.Lifecycle{}}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok, _ := resp["ok"].(bool); ok {
		t.Fatalf("expected ok=false")
	}
	issues, _ := resp["issues"].([]any)
	if len(issues) == 0 {
		t.Fatalf("expected issues, body=%q", rr.Body.String())
	}
}

func TestReadyHandler_DrainingNotReady(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := ReadyHandler{Config: readyTestConfig(), Lifecycle: lc}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if draining, _ := resp["draining"].(bool); !draining {
		t.Fatalf("expected draining=true, body=%q", rr.Body.String())
	}
}
