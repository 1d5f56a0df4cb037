package call

import (
	"sync"

	"github.com/cxbuddy/voicerelay/pkg/core"
)

// maxHistoryEntries bounds the per-call buffer; only the tail matters
// for handoff context.
const maxHistoryEntries = 512

// historyBuffer accumulates the finished audio transcripts of a call.
// It feeds the handoff context store and nothing else; the durable
// transcript lives in the ticket store.
type historyBuffer struct {
	mu      sync.Mutex
	entries []core.HistoryEntry
}

func newHistoryBuffer() *historyBuffer {
	return &historyBuffer{entries: make([]core.HistoryEntry, 0, 16)}
}

func (h *historyBuffer) Append(speaker core.Speaker, text string) {
	if text == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, core.HistoryEntry{Role: string(speaker), Text: text})
	if len(h.entries) > maxHistoryEntries {
		h.entries = h.entries[len(h.entries)-maxHistoryEntries:]
	}
}

func (h *historyBuffer) Snapshot() []core.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
