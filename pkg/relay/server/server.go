// Package server wires the relay's HTTP surface: the voice call
// websocket, the support dashboard's ticket API, and the operational
// endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cxbuddy/voicerelay/pkg/relay/auth"
	"github.com/cxbuddy/voicerelay/pkg/relay/bank"
	"github.com/cxbuddy/voicerelay/pkg/relay/calls"
	"github.com/cxbuddy/voicerelay/pkg/relay/config"
	"github.com/cxbuddy/voicerelay/pkg/relay/handlers"
	"github.com/cxbuddy/voicerelay/pkg/relay/handoff"
	"github.com/cxbuddy/voicerelay/pkg/relay/knowledge"
	"github.com/cxbuddy/voicerelay/pkg/relay/lifecycle"
	"github.com/cxbuddy/voicerelay/pkg/relay/metrics"
	"github.com/cxbuddy/voicerelay/pkg/relay/mw"
	"github.com/cxbuddy/voicerelay/pkg/relay/persona"
	"github.com/cxbuddy/voicerelay/pkg/relay/ratelimit"
	"github.com/cxbuddy/voicerelay/pkg/relay/ticket"
	"github.com/cxbuddy/voicerelay/pkg/relay/tools"
)

// Version identifies the build. Release builds override it via ldflags.
var Version = "dev"

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	verifier   *auth.Verifier
	personas   *persona.Registry
	toolset    *tools.Registry
	dispatcher *tools.Dispatcher
	tickets    *ticket.Store
	contexts   *handoff.ContextStore
	limiter    *ratelimit.Limiter
	lifecycle  *lifecycle.Lifecycle
	calls      *calls.Tracker
	metrics    *metrics.Metrics
}

// New opens the ticket store and assembles the relay. Callers own the
// returned server and must Close it to release the store.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := ticket.Open(cfg.TicketsDBPath)
	if err != nil {
		return nil, fmt.Errorf("open ticket store: %w", err)
	}

	kb := knowledge.NewFromFile(cfg.KnowledgeFile)
	if !kb.Available() {
		logger.Warn("knowledge base unavailable, search tool will report no results", "path", cfg.KnowledgeFile)
	}

	httpClient := &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	registry := tools.NewDefaultRegistry(kb, bank.NewClient(cfg.BankAPIBase, httpClient))

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		verifier:   auth.NewVerifier(cfg.JWTMode, cfg.JWTSecret),
		personas:   persona.NewRegistry(),
		toolset:    registry,
		dispatcher: tools.NewDispatcher(registry),
		tickets:    store,
		contexts:   handoff.NewContextStore(cfg.HandoffContextTTL),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                cfg.LimitRPS,
			Burst:              cfg.LimitBurst,
			MaxConcurrentCalls: cfg.LimitMaxCallsPerUser,
		}),
		lifecycle: &lifecycle.Lifecycle{},
		calls:     calls.NewTracker(),
		metrics:   metrics.New(cfg.MetricsNamespace),
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{Version: Version})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})
	s.mux.Handle("/metrics", s.metrics.Handler())

	tickets := handlers.TicketsHandler{Store: s.tickets, Logger: s.logger}
	s.mux.Handle("/api/tickets", mw.Instrument(s.metrics, "/api/tickets", tickets))
	s.mux.Handle("/api/tickets/stats", mw.Instrument(s.metrics, "/api/tickets/stats", tickets))
	s.mux.Handle("/api/tickets/", mw.Instrument(s.metrics, "/api/tickets/{id}", tickets))

	s.mux.Handle("/ws/chat", handlers.CallHandler{
		Config:     s.cfg,
		Logger:     s.logger,
		Verifier:   s.verifier,
		Personas:   s.personas,
		Tools:      s.toolset,
		Dispatcher: s.dispatcher,
		Tickets:    s.tickets,
		Contexts:   s.contexts,
		Limiter:    s.limiter,
		Lifecycle:  s.lifecycle,
		Calls:      s.calls,
		Metrics:    s.metrics,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.cfg, s.limiter, s.metrics, h)
	h = mw.Principal(s.verifier, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips the relay into draining mode: /ws/chat starts
// rejecting new calls and /readyz reports not ready.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WarnCallsDraining pushes a non-fatal error frame to every live call
// so clients can finish up or reconnect elsewhere.
func (s *Server) WarnCallsDraining() {
	n := s.calls.WarnAll("draining", "The relay is shutting down. Please reconnect shortly.")
	if n > 0 {
		s.logger.Info("warned live calls of shutdown", "calls", n)
	}
}

// WaitCalls blocks until every live call has ended, or ctx expires.
// Reports whether the drain completed.
func (s *Server) WaitCalls(ctx context.Context) bool {
	return s.calls.Wait(ctx)
}

// CancelCalls tears down any calls still live after a drain timeout.
func (s *Server) CancelCalls() {
	if n := s.calls.CancelAll(); n > 0 {
		s.logger.Warn("canceled live calls still open after drain", "calls", n)
	}
}

// Close releases the ticket store.
func (s *Server) Close() error {
	return s.tickets.Close()
}
