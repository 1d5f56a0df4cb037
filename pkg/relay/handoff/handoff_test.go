package handoff

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cxbuddy/voicerelay/pkg/core"
	"github.com/cxbuddy/voicerelay/pkg/relay/persona"
	"github.com/cxbuddy/voicerelay/pkg/relay/protocol"
)

type staticHistory []core.HistoryEntry

func (h staticHistory) Snapshot() []core.HistoryEntry { return h }

type frameCapture struct {
	mu     sync.Mutex
	frames []protocol.AgentHandoff
	err    error
}

func (f *frameCapture) send(frame protocol.AgentHandoff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return f.err
}

func (f *frameCapture) sent() []protocol.AgentHandoff {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.AgentHandoff(nil), f.frames...)
}

func TestContextStoreParkAndClaim(t *testing.T) {
	store := NewContextStore(time.Minute)
	parked := Context{
		TargetPersona: persona.NameHari,
		Reason:        "card services",
		History:       []core.HistoryEntry{{Role: "user", Text: "freeze my card"}},
	}

	id := store.Park(parked)
	if id == "" {
		t.Fatal("empty context id")
	}

	got, ok := store.Claim(id)
	if !ok {
		t.Fatal("claim failed")
	}
	if got.TargetPersona != parked.TargetPersona || got.Reason != parked.Reason || len(got.History) != 1 {
		t.Fatalf("claimed = %+v", got)
	}

	if _, ok := store.Claim(id); ok {
		t.Fatal("second claim must fail")
	}
	if _, ok := store.Claim(""); ok {
		t.Fatal("empty id must fail")
	}
	if _, ok := store.Claim("no-such-id"); ok {
		t.Fatal("unknown id must fail")
	}
}

func TestContextStoreExpiry(t *testing.T) {
	store := NewContextStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	id := store.Park(Context{TargetPersona: persona.NameRiley})

	now = now.Add(2 * time.Minute)
	if _, ok := store.Claim(id); ok {
		t.Fatal("claim after expiry must fail")
	}
}

func TestContextStoreEvictsOldestAtCap(t *testing.T) {
	store := NewContextStore(time.Minute)
	store.maxEntries = 2
	now := time.Now()
	store.now = func() time.Time { return now }

	first := store.Park(Context{Reason: "first"})
	now = now.Add(time.Second)
	second := store.Park(Context{Reason: "second"})
	now = now.Add(time.Second)
	third := store.Park(Context{Reason: "third"})

	if _, ok := store.Claim(first); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := store.Claim(second); !ok {
		t.Fatal("second entry should survive")
	}
	if _, ok := store.Claim(third); !ok {
		t.Fatal("third entry should survive")
	}
}

func newTestCoordinator(delay time.Duration, history HistorySource, capture *frameCapture) (*Coordinator, *ContextStore) {
	store := NewContextStore(time.Minute)
	c := NewCoordinator(persona.NewRegistry(), store, delay, history, capture.send, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return c, store
}

func TestCoordinatorSignalsOnce(t *testing.T) {
	capture := &frameCapture{}
	history := staticHistory{
		{Role: "user", Text: "what is my balance"},
		{Role: "agent", Text: "Let me transfer you to Hari."},
	}
	c, store := newTestCoordinator(5*time.Millisecond, history, capture)

	req := core.HandoffRequest{TargetPersona: persona.NameHari, Reason: "account inquiry"}
	if !c.Begin(req) {
		t.Fatal("first Begin rejected")
	}
	if c.Begin(req) {
		t.Fatal("second Begin accepted")
	}
	if got := c.State(); got != StatePending {
		t.Fatalf("state = %v, want pending", got)
	}

	c.Announce(context.Background(), req)

	frames := capture.sent()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(frames))
	}
	frame := frames[0]
	if frame.Type != "agent.handoff" || frame.TargetAgent != persona.NameHari {
		t.Fatalf("frame = %+v", frame)
	}
	if frame.Message != "Transferring to Hari..." {
		t.Fatalf("Message = %q", frame.Message)
	}
	if frame.ContextID == "" {
		t.Fatal("frame missing context id")
	}
	if got := c.State(); got != StateSignaled {
		t.Fatalf("state = %v, want signaled", got)
	}

	parked, ok := store.Claim(frame.ContextID)
	if !ok {
		t.Fatal("context not parked")
	}
	if len(parked.History) != 2 || parked.Reason != "account inquiry" {
		t.Fatalf("parked = %+v", parked)
	}
}

func TestCoordinatorRejectsUnknownPersona(t *testing.T) {
	capture := &frameCapture{}
	c, _ := newTestCoordinator(time.Millisecond, nil, capture)

	if c.Begin(core.HandoffRequest{TargetPersona: "oscar"}) {
		t.Fatal("unknown persona accepted")
	}
	if got := c.State(); got != StateActive {
		t.Fatalf("state = %v, want active", got)
	}
}

func TestCoordinatorCancelledBeforeDelay(t *testing.T) {
	capture := &frameCapture{}
	c, store := newTestCoordinator(time.Hour, nil, capture)

	req := core.HandoffRequest{TargetPersona: persona.NameRiley, Reason: "general"}
	if !c.Begin(req) {
		t.Fatal("Begin rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Announce(ctx, req)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Announce did not return after cancellation")
	}

	if frames := capture.sent(); len(frames) != 0 {
		t.Fatalf("sent %d frames after cancellation", len(frames))
	}
	store.mu.Lock()
	parked := len(store.entries)
	store.mu.Unlock()
	if parked != 0 {
		t.Fatalf("%d contexts parked after cancellation", parked)
	}
}

func TestCoordinatorSendFailureStillSignals(t *testing.T) {
	capture := &frameCapture{err: errors.New("client gone")}
	c, _ := newTestCoordinator(time.Millisecond, nil, capture)

	req := core.HandoffRequest{TargetPersona: persona.NameHari}
	if !c.Begin(req) {
		t.Fatal("Begin rejected")
	}
	c.Announce(context.Background(), req)

	if got := c.State(); got != StateSignaled {
		t.Fatalf("state = %v, want signaled", got)
	}
}

func TestInstructionsWithContext(t *testing.T) {
	base := "You are Hari."

	if got := InstructionsWithContext(base, Context{}); got != base {
		t.Fatalf("empty history should leave instructions unchanged: %q", got)
	}

	parked := Context{
		Reason: "card services",
		History: []core.HistoryEntry{
			{Role: "user", Text: "I lost my card"},
			{Role: "agent", Text: "I can transfer you to freeze it."},
		},
	}
	got := InstructionsWithContext(base, parked)
	if !strings.HasPrefix(got, base) {
		t.Fatalf("base instructions lost: %q", got)
	}
	if !strings.Contains(got, "(reason: card services)") {
		t.Errorf("reason missing: %q", got)
	}
	if !strings.Contains(got, "Customer: I lost my card\n") {
		t.Errorf("user turn missing: %q", got)
	}
	if !strings.Contains(got, "Agent: I can transfer you to freeze it.\n") {
		t.Errorf("agent turn missing: %q", got)
	}
	if !strings.Contains(got, "Do not greet the customer again") {
		t.Errorf("continuation instruction missing: %q", got)
	}
}

func TestInstructionsWithContextTruncatesHistory(t *testing.T) {
	history := make([]core.HistoryEntry, 20)
	for i := range history {
		history[i] = core.HistoryEntry{Role: "user", Text: strings.Repeat("x", 3) + string(rune('a'+i))}
	}
	got := InstructionsWithContext("base", Context{History: history})

	if strings.Contains(got, "xxxa") {
		t.Errorf("oldest turn should be dropped: %q", got)
	}
	if !strings.Contains(got, "xxxt") {
		t.Errorf("newest turn should be kept: %q", got)
	}
	if want := 20 - 12; strings.Contains(got, "xxx"+string(rune('a'+want-1))) {
		t.Errorf("turn %d should be dropped", want-1)
	}
}
