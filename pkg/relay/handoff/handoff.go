// Package handoff moves a live call from one persona to the other.
//
// A transfer is triggered by a tool result, announced to the client
// after a fixed delay so the agent can finish its transition line, and
// completed by the client reconnecting under the target persona. The
// conversation so far is parked in a context store keyed by an opaque
// id the client echoes back on reconnect; calls never share mutable
// state directly.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cxbuddy/voicerelay/pkg/core"
	"github.com/cxbuddy/voicerelay/pkg/relay/persona"
	"github.com/cxbuddy/voicerelay/pkg/relay/protocol"
)

// State tracks the coordinator through a call. A call signals at most
// one handoff; Signaled is terminal.
type State int

const (
	StateActive State = iota
	StatePending
	StateSignaled
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePending:
		return "pending"
	case StateSignaled:
		return "signaled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Context is the parked state of a transferred call.
type Context struct {
	TargetPersona string
	Reason        string
	History       []core.HistoryEntry
}

type storeEntry struct {
	parked   Context
	expires  time.Time
	parkedAt time.Time
}

// ContextStore parks handoff contexts between the signal and the
// reconnect. Entries are claimed exactly once and expire after a TTL so
// a client that never reconnects cannot leak history.
type ContextStore struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]storeEntry
}

const defaultMaxParked = 1024

func NewContextStore(ttl time.Duration) *ContextStore {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ContextStore{
		ttl:        ttl,
		maxEntries: defaultMaxParked,
		now:        time.Now,
		entries:    make(map[string]storeEntry),
	}
}

// Park stores a context and returns the id the client must echo back.
func (s *ContextStore) Park(parked Context) string {
	id := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	if len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.entries[id] = storeEntry{parked: parked, expires: now.Add(s.ttl), parkedAt: now}
	return id
}

// Claim removes and returns a parked context. A second claim of the
// same id, or a claim after expiry, reports false.
func (s *ContextStore) Claim(id string) (Context, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Context{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return Context{}, false
	}
	delete(s.entries, id)
	if s.now().After(entry.expires) {
		return Context{}, false
	}
	return entry.parked, true
}

func (s *ContextStore) sweepLocked(now time.Time) {
	for id, entry := range s.entries {
		if now.After(entry.expires) {
			delete(s.entries, id)
		}
	}
}

func (s *ContextStore) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, entry := range s.entries {
		if oldestID == "" || entry.parkedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = entry.parkedAt
		}
	}
	if oldestID != "" {
		delete(s.entries, oldestID)
	}
}

// HistorySource yields the conversation so far at announce time.
type HistorySource interface {
	Snapshot() []core.HistoryEntry
}

// SendFunc delivers the handoff frame to the client.
type SendFunc func(protocol.AgentHandoff) error

// Coordinator runs the transfer state machine for one call.
type Coordinator struct {
	personas *persona.Registry
	store    *ContextStore
	delay    time.Duration
	history  HistorySource
	send     SendFunc
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

func NewCoordinator(personas *persona.Registry, store *ContextStore, delay time.Duration, history HistorySource, send SendFunc, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		personas: personas,
		store:    store,
		delay:    delay,
		history:  history,
		send:     send,
		logger:   logger,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Begin accepts the first transfer request of the call and rejects the
// rest. The caller runs Announce in a supervised task after the tool
// result frames are on the wire.
func (c *Coordinator) Begin(req core.HandoffRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		c.logger.Warn("handoff already in progress, ignoring",
			"target", req.TargetPersona, "state", c.state.String())
		return false
	}
	if _, ok := c.personas.ByName(req.TargetPersona); !ok {
		c.logger.Warn("handoff to unknown persona ignored", "target", req.TargetPersona)
		return false
	}
	c.state = StatePending
	return true
}

// Announce waits out the speaking delay, parks the conversation, and
// sends the handoff frame. Context cancellation (client gone, call torn
// down) aborts silently: no frame, no parked context, no error.
func (c *Coordinator) Announce(ctx context.Context, req core.HandoffRequest) {
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	target, ok := c.personas.ByName(req.TargetPersona)
	if !ok {
		return
	}

	var history []core.HistoryEntry
	if c.history != nil {
		history = c.history.Snapshot()
	}
	contextID := c.store.Park(Context{
		TargetPersona: target.Name,
		Reason:        req.Reason,
		History:       history,
	})

	frame := protocol.NewAgentHandoff(target.Name, target.Title, contextID)
	if err := c.send(frame); err != nil {
		c.logger.Debug("handoff frame not delivered", "target", target.Name, "error", err)
	} else {
		c.logger.Info("handoff signaled",
			"target", target.Name, "reason", req.Reason, "history_turns", len(history))
	}

	c.mu.Lock()
	c.state = StateSignaled
	c.mu.Unlock()
}

// InstructionsWithContext appends a digest of the transferred
// conversation to the target persona's instructions so the new agent
// picks up mid-call instead of greeting from scratch.
func InstructionsWithContext(base string, parked Context) string {
	if len(parked.History) == 0 {
		return base
	}

	const maxTurns = 12
	history := parked.History
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nCONTEXT: You are taking over a call transferred from another agent")
	if strings.TrimSpace(parked.Reason) != "" {
		b.WriteString(" (reason: ")
		b.WriteString(parked.Reason)
		b.WriteString(")")
	}
	b.WriteString(". The conversation so far:\n")
	for _, entry := range history {
		speaker := "Customer"
		if entry.Role == string(core.SpeakerAgent) {
			speaker = "Agent"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(entry.Text)
		b.WriteString("\n")
	}
	b.WriteString("Continue the conversation naturally. Do not greet the customer again or ask them to repeat what they already said.")
	return b.String()
}
