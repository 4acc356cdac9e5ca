package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryBackfillsPreviousDuration(t *testing.T) {
	h := newHistory(10)
	h.append(1_000_000_000, "a")
	h.append(3_000_000_000, "b")

	entries := h.snapshot()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].HasDuration())
	assert.Equal(t, int64(2000), entries[0].DurationMs)
	assert.False(t, entries[1].HasDuration(), "most recent entry has no duration yet")
}

func TestHistoryWrapsAtCapacity(t *testing.T) {
	h := newHistory(2)
	h.append(0, "a")
	h.append(1, "b")
	h.append(2, "c")

	entries := h.snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, State("b"), entries[0].State)
	assert.Equal(t, State("c"), entries[1].State)
}

func TestHistoryLastN(t *testing.T) {
	h := newHistory(5)
	for i := int64(0); i < 4; i++ {
		h.append(i, State(rune('a'+i)))
	}
	last2 := h.lastN(2)
	require.Len(t, last2, 2)
	assert.Equal(t, State("c"), last2[0].State)
	assert.Equal(t, State("d"), last2[1].State)
}
