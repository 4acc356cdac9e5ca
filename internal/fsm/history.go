package fsm

import "sync"

// history is a bounded ring buffer of HistoryEntry, backfilling the
// duration of the previous entry each time a new one is appended — spec.md
// §4.4 step 7a: "the outgoing entry's DurationMs is the time between its
// own timestamp and the new entry's timestamp," not a self-measured
// enter-to-exit span kept by the state itself.
type history struct {
	mu      sync.Mutex
	entries []HistoryEntry
	cap     int
	start   int // index of the oldest entry once the buffer has wrapped
	size    int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 1
	}
	return &history{entries: make([]HistoryEntry, capacity), cap: capacity}
}

// append records a new state entry, backfilling the previous tail's
// duration from its timestamp to now.
func (h *history) append(ts int64, state State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size > 0 {
		tailIdx := (h.start + h.size - 1) % h.cap
		tail := &h.entries[tailIdx]
		tail.DurationMs = (ts - tail.Timestamp) / 1_000_000
		tail.hasDur = true
	}

	entry := HistoryEntry{Timestamp: ts, State: state}
	if h.size < h.cap {
		idx := (h.start + h.size) % h.cap
		h.entries[idx] = entry
		h.size++
	} else {
		h.entries[h.start] = entry
		h.start = (h.start + 1) % h.cap
	}
}

// snapshot returns entries oldest-first, up to all currently held.
func (h *history) snapshot() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.entries[(h.start+i)%h.cap]
	}
	return out
}

// lastN returns up to n most recent entries, oldest-first.
func (h *history) lastN(n int) []HistoryEntry {
	full := h.snapshot()
	if n <= 0 || n >= len(full) {
		return full
	}
	return full[len(full)-n:]
}
