package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type JWTMode string

const (
	JWTModeUnverified JWTMode = "unverified"
	JWTModeHS256      JWTMode = "hs256"
)

type Config struct {
	Addr string

	// Upstream realtime session endpoint (Azure OpenAI resource).
	UpstreamEndpoint   string
	UpstreamAPIKey     string
	UpstreamDeployment string
	UpstreamAPIVersion string

	// Bearer tokens on /ws/chat. Unverified mode trusts any well-formed
	// token, matching the mock identity provider; hs256 requires a valid
	// HMAC signature.
	JWTMode   JWTMode
	JWTSecret string

	TrustProxyHeaders bool

	// Handoff coordination.
	HandoffDelay      time.Duration
	HandoffContextTTL time.Duration

	// Collaborators.
	TicketsDBPath string
	BankAPIBase   string
	KnowledgeFile string

	// Default agent and reconnect override allow-list are derived from
	// the persona set; only tunables live here.
	GreetingOnConnect bool

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Client WebSocket limits.
	MaxClientFrameBytes  int64
	ClientPingInterval   time.Duration
	ClientWriteTimeout   time.Duration
	UpstreamDialTimeout  time.Duration
	UpstreamWriteTimeout time.Duration

	// In-memory limits (per principal).
	LimitRPS             float64
	LimitBurst           int
	LimitMaxCallsPerUser int

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	MetricsNamespace string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("RELAY_LISTEN_ADDR", ":8080"),
		UpstreamEndpoint:     envOr("RELAY_UPSTREAM_ENDPOINT", ""),
		UpstreamAPIKey:       envOr("RELAY_UPSTREAM_API_KEY", ""),
		UpstreamDeployment:   envOr("RELAY_UPSTREAM_DEPLOYMENT", "gpt-4o-realtime-preview"),
		UpstreamAPIVersion:   envOr("RELAY_UPSTREAM_API_VERSION", "2024-10-01-preview"),
		JWTMode:              JWTMode(envOr("RELAY_AUTH_JWT_MODE", string(JWTModeUnverified))),
		JWTSecret:            os.Getenv("RELAY_AUTH_JWT_SECRET"),
		TrustProxyHeaders:    envBoolOr("RELAY_TRUST_PROXY_HEADERS", false),
		HandoffDelay:         envDurationOr("RELAY_HANDOFF_DELAY", 3*time.Second),
		HandoffContextTTL:    envDurationOr("RELAY_HANDOFF_CONTEXT_TTL", 2*time.Minute),
		TicketsDBPath:        envOr("RELAY_TICKETS_DB", "./tickets.db"),
		BankAPIBase:          envOr("RELAY_BANK_API_BASE", "http://localhost:8004"),
		KnowledgeFile:        envOr("RELAY_KNOWLEDGE_FILE", "./gxs_knowledge_base.txt"),
		GreetingOnConnect:    envBoolOr("RELAY_GREETING_ON_CONNECT", true),
		CORSAllowedOrigins:   make(map[string]struct{}),
		MaxClientFrameBytes:  envInt64Or("RELAY_MAX_CLIENT_FRAME_BYTES", 1<<20),
		ClientPingInterval:   envDurationOr("RELAY_CLIENT_PING_INTERVAL", 20*time.Second),
		ClientWriteTimeout:   envDurationOr("RELAY_CLIENT_WRITE_TIMEOUT", 5*time.Second),
		UpstreamDialTimeout:  envDurationOr("RELAY_UPSTREAM_DIAL_TIMEOUT", 10*time.Second),
		UpstreamWriteTimeout: envDurationOr("RELAY_UPSTREAM_WRITE_TIMEOUT", 5*time.Second),
		LimitRPS:             envFloat64Or("RELAY_RATE_RPS", 0),
		LimitBurst:           envIntOr("RELAY_RATE_BURST", 0),
		LimitMaxCallsPerUser: envIntOr("RELAY_MAX_CALLS_PER_PRINCIPAL", 0),
		ReadHeaderTimeout:    envDurationOr("RELAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:  envDurationOr("RELAY_SHUTDOWN_GRACE", 15*time.Second),
		MetricsNamespace:     envOr("RELAY_METRICS_NAMESPACE", "voicerelay"),
	}

	for _, origin := range splitCSV(os.Getenv("RELAY_ALLOWED_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.UpstreamEndpoint) == "" {
		return Config{}, fmt.Errorf("RELAY_UPSTREAM_ENDPOINT must be set")
	}
	parsed, err := url.Parse(cfg.UpstreamEndpoint)
	if err != nil || parsed.Host == "" {
		return Config{}, fmt.Errorf("RELAY_UPSTREAM_ENDPOINT must be a valid URL")
	}
	switch parsed.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return Config{}, fmt.Errorf("RELAY_UPSTREAM_ENDPOINT scheme must be http(s) or ws(s)")
	}
	if strings.TrimSpace(cfg.UpstreamAPIKey) == "" {
		return Config{}, fmt.Errorf("RELAY_UPSTREAM_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.UpstreamDeployment) == "" {
		return Config{}, fmt.Errorf("RELAY_UPSTREAM_DEPLOYMENT must not be empty")
	}
	if strings.TrimSpace(cfg.UpstreamAPIVersion) == "" {
		return Config{}, fmt.Errorf("RELAY_UPSTREAM_API_VERSION must not be empty")
	}

	switch cfg.JWTMode {
	case JWTModeUnverified, JWTModeHS256:
	default:
		return Config{}, fmt.Errorf("RELAY_AUTH_JWT_MODE must be one of unverified|hs256")
	}
	if cfg.JWTMode == JWTModeHS256 && strings.TrimSpace(cfg.JWTSecret) == "" {
		return Config{}, fmt.Errorf("RELAY_AUTH_JWT_SECRET must be set when RELAY_AUTH_JWT_MODE=hs256")
	}

	if cfg.HandoffDelay < 0 {
		return Config{}, fmt.Errorf("RELAY_HANDOFF_DELAY must be >= 0")
	}
	if cfg.HandoffContextTTL <= 0 {
		return Config{}, fmt.Errorf("RELAY_HANDOFF_CONTEXT_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.TicketsDBPath) == "" {
		return Config{}, fmt.Errorf("RELAY_TICKETS_DB must not be empty")
	}
	if strings.TrimSpace(cfg.BankAPIBase) == "" {
		return Config{}, fmt.Errorf("RELAY_BANK_API_BASE must not be empty")
	}
	if strings.TrimSpace(cfg.KnowledgeFile) == "" {
		return Config{}, fmt.Errorf("RELAY_KNOWLEDGE_FILE must not be empty")
	}

	if cfg.MaxClientFrameBytes <= 0 {
		return Config{}, fmt.Errorf("RELAY_MAX_CLIENT_FRAME_BYTES must be > 0")
	}
	if cfg.ClientPingInterval <= 0 {
		return Config{}, fmt.Errorf("RELAY_CLIENT_PING_INTERVAL must be > 0")
	}
	if cfg.ClientWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_CLIENT_WRITE_TIMEOUT must be > 0")
	}
	if cfg.UpstreamDialTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_UPSTREAM_DIAL_TIMEOUT must be > 0")
	}
	if cfg.UpstreamWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_UPSTREAM_WRITE_TIMEOUT must be > 0")
	}

	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("RELAY_RATE_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("RELAY_RATE_BURST must be >= 0")
	}
	if cfg.LimitRPS > 0 && cfg.LimitBurst <= 0 {
		return Config{}, fmt.Errorf("RELAY_RATE_BURST must be > 0 when RELAY_RATE_RPS is set")
	}
	if cfg.LimitMaxCallsPerUser < 0 {
		return Config{}, fmt.Errorf("RELAY_MAX_CALLS_PER_PRINCIPAL must be >= 0")
	}

	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("RELAY_SHUTDOWN_GRACE must be > 0")
	}
	if strings.TrimSpace(cfg.MetricsNamespace) == "" {
		return Config{}, fmt.Errorf("RELAY_METRICS_NAMESPACE must not be empty")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
