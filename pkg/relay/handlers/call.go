package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cxbuddy/voicerelay/pkg/core"
	"github.com/cxbuddy/voicerelay/pkg/relay/auth"
	"github.com/cxbuddy/voicerelay/pkg/relay/call"
	"github.com/cxbuddy/voicerelay/pkg/relay/calls"
	"github.com/cxbuddy/voicerelay/pkg/relay/config"
	"github.com/cxbuddy/voicerelay/pkg/relay/handoff"
	"github.com/cxbuddy/voicerelay/pkg/relay/lifecycle"
	"github.com/cxbuddy/voicerelay/pkg/relay/metrics"
	"github.com/cxbuddy/voicerelay/pkg/relay/mw"
	"github.com/cxbuddy/voicerelay/pkg/relay/persona"
	"github.com/cxbuddy/voicerelay/pkg/relay/principal"
	"github.com/cxbuddy/voicerelay/pkg/relay/protocol"
	"github.com/cxbuddy/voicerelay/pkg/relay/ratelimit"
	"github.com/cxbuddy/voicerelay/pkg/relay/ticket"
	"github.com/cxbuddy/voicerelay/pkg/relay/tools"
	"github.com/cxbuddy/voicerelay/pkg/relay/upstream"
)

// UpstreamDialer opens the realtime session for one call. Tests inject
// a fake; the default dials the configured deployment.
type UpstreamDialer func(ctx context.Context, cfg upstream.Config) (call.Upstream, error)

// CallHandler handles /ws/chat websocket calls.
type CallHandler struct {
	Config     config.Config
	Logger     *slog.Logger
	Verifier   *auth.Verifier
	Personas   *persona.Registry
	Tools      *tools.Registry
	Dispatcher *tools.Dispatcher
	Tickets    *ticket.Store
	Contexts   *handoff.ContextStore
	Limiter    *ratelimit.Limiter
	Lifecycle  *lifecycle.Lifecycle
	Calls      *calls.Tracker
	Metrics    *metrics.Metrics

	DialUpstream UpstreamDialer
}

func (h CallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed", RequestID: reqID}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "relay is draining", Code: "draining", RequestID: reqID}, 529)
		return
	}
	if !h.originAllowed(r) {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin", RequestID: reqID}, http.StatusForbidden)
		return
	}

	// The token rides the query string on browser websocket connects, so
	// the principal resolves before the upgrade.
	p := auth.Guest()
	if h.Verifier != nil {
		p = h.Verifier.Resolve(r)
	}
	requestID := requestIDFromContext(r.Context())

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var permit *ratelimit.Permit
	if h.Limiter != nil && h.Config.LimitMaxCallsPerUser > 0 {
		dec := h.Limiter.AcquireCall(h.principalKey(r, p), time.Now())
		if !dec.Allowed {
			h.writeWSError(conn, protocol.ScopeCall, "rate_limited", "too many active calls", true, nil)
			return
		}
		permit = dec.Permit
		defer permit.Release()
	}

	agent := h.Personas.ForCall(r.URL.Query().Get("agent"), p.Authenticated)

	var parked *handoff.Context
	if contextID := strings.TrimSpace(r.URL.Query().Get("context")); contextID != "" && h.Contexts != nil {
		if claimed, ok := h.Contexts.Claim(contextID); ok {
			parked = &claimed
		} else if h.Logger != nil {
			h.Logger.Info("handoff context not found", "context_id", contextID, "request_id", requestID)
		}
	}

	callID := uuid.NewString()

	ticketID := ""
	if h.Tickets != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		id, err := h.Tickets.CreateTicket(ctx, callID, p.DisplayName(), "", "")
		cancel()
		if err != nil {
			if h.Logger != nil {
				h.Logger.Error("ticket create failed", "call_id", callID, "request_id", requestID, "error", err)
			}
			h.Metrics.RecordError("ticket", "create_failed")
		} else {
			ticketID = id
		}
	}

	dialTimeout := h.Config.UpstreamDialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	up, err := h.dialUpstream(dialCtx, upstream.Config{
		Endpoint:     h.Config.UpstreamEndpoint,
		APIKey:       h.Config.UpstreamAPIKey,
		Deployment:   h.Config.UpstreamDeployment,
		APIVersion:   h.Config.UpstreamAPIVersion,
		DialTimeout:  dialTimeout,
		WriteTimeout: h.Config.UpstreamWriteTimeout,
	})
	dialCancel()
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("upstream dial failed", "call_id", callID, "request_id", requestID, "error", err)
		}
		h.Metrics.RecordError("upstream", "dial_failed")
		h.writeWSError(conn, protocol.ScopeUpstream, "upstream_unavailable", "voice service is unavailable", true, nil)
		return
	}

	c, err := call.New(call.Dependencies{
		ClientConn: conn,
		Upstream:   up,
		Logger:     h.Logger,
		Dispatcher: h.Dispatcher,
		Tools:      h.Tools,
		Personas:   h.Personas,
		Agent:      agent,
		Contexts:   h.Contexts,
		Parked:     parked,
		Tickets:    h.Tickets,
		TicketID:   ticketID,
		Principal:  p,
		CallID:     callID,
		Metrics:    h.Metrics,
		Config: call.Config{
			MaxClientFrameBytes: h.Config.MaxClientFrameBytes,
			PingInterval:        h.Config.ClientPingInterval,
			WriteTimeout:        h.Config.ClientWriteTimeout,
			HandoffDelay:        h.Config.HandoffDelay,
			GreetingOnConnect:   h.Config.GreetingOnConnect,
		},
	})
	if err != nil {
		_ = up.Close()
		h.writeWSError(conn, protocol.ScopeCall, "internal", "failed to initialize call", true, nil)
		return
	}

	unregister := func() {}
	if h.Calls != nil {
		unregister = h.Calls.Register(callID, calls.Handle{
			Cancel: c.Cancel,
			Warn:   c.Warn,
		})
	}
	defer unregister()

	h.Metrics.RecordCallStart()
	start := time.Now()
	status := "completed"
	if err := c.Run(); err != nil {
		status = "error"
		if h.Logger != nil {
			h.Logger.Warn("call ended with error", "call_id", callID, "request_id", requestID, "error", err)
		}
	}
	h.Metrics.RecordCallEnd(agent.Name, status, time.Since(start))
}

func (h CallHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h CallHandler) principalKey(r *http.Request, p auth.Principal) string {
	if p.Authenticated {
		return ratelimit.PrincipalKeyFromSubject(p.Subject)
	}
	res := principal.Resolve(r, h.Config.TrustProxyHeaders)
	if strings.TrimSpace(res.Key) == "" {
		return "anonymous"
	}
	return res.Key
}

func (h CallHandler) dialUpstream(ctx context.Context, cfg upstream.Config) (call.Upstream, error) {
	if h.DialUpstream != nil {
		return h.DialUpstream(ctx, cfg)
	}
	return upstream.Dial(ctx, cfg)
}

func (h CallHandler) writeWSError(conn *websocket.Conn, scope, code, message string, close bool, details map[string]any) {
	frame := protocol.NewRelayError(scope, code, message)
	frame.Close = close
	frame.Details = details
	_ = conn.WriteJSON(frame)
	if close {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := mw.RequestIDFrom(ctx); ok {
		return id
	}
	return ""
}
