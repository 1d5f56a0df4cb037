package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cxbuddy/voicerelay/pkg/relay/config"
	"github.com/cxbuddy/voicerelay/pkg/relay/lifecycle"
)

type HealthHandler struct {
	Version string
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	version := h.Version
	if version == "" {
		version = "dev"
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "voicerelay",
		"version": version,
	})
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		Draining      bool     `json:"draining"`
		JWTMode       string   `json:"jwt_mode"`
		LimitsEnabled bool     `json:"limits_enabled"`
		Issues        []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.JWTMode {
	case config.JWTModeUnverified, config.JWTModeHS256:
	default:
		issues = append(issues, "invalid jwt_mode")
	}
	if h.Config.JWTMode == config.JWTModeHS256 && strings.TrimSpace(h.Config.JWTSecret) == "" {
		issues = append(issues, "jwt_mode=hs256 but no secret configured")
	}

	if strings.TrimSpace(h.Config.UpstreamEndpoint) == "" {
		issues = append(issues, "upstream endpoint is not set")
	}
	if strings.TrimSpace(h.Config.UpstreamAPIKey) == "" {
		issues = append(issues, "upstream api key is not set")
	}
	if strings.TrimSpace(h.Config.UpstreamDeployment) == "" {
		issues = append(issues, "upstream deployment is not set")
	}

	if h.Config.MaxClientFrameBytes <= 0 {
		issues = append(issues, "max client frame bytes must be > 0")
	}
	if h.Config.ClientPingInterval <= 0 || h.Config.ClientWriteTimeout <= 0 {
		issues = append(issues, "client websocket timeouts must be > 0")
	}
	if h.Config.UpstreamDialTimeout <= 0 || h.Config.UpstreamWriteTimeout <= 0 {
		issues = append(issues, "upstream timeouts must be > 0")
	}
	if h.Config.HandoffContextTTL <= 0 {
		issues = append(issues, "handoff context ttl must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ShutdownGracePeriod <= 0 {
		issues = append(issues, "server timeouts must be > 0")
	}

	draining := h.Lifecycle != nil && h.Lifecycle.IsDraining()

	limitsEnabled := (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) ||
		h.Config.LimitMaxCallsPerUser > 0

	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:            ok,
		Draining:      draining,
		JWTMode:       string(h.Config.JWTMode),
		LimitsEnabled: limitsEnabled,
		Issues:        issues,
	})
}
