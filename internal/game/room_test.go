package game

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendChat_RingBuffer(t *testing.T) {
	r := NewRoom("r1")
	now := time.Now()

	for i := 0; i < 70; i++ {
		_, ok := r.AppendChat("a", "alice", fmt.Sprintf("msg %d", i), now)
		require.True(t, ok)
	}

	require.Len(t, r.Chat, MaxChatMessages)
	// The buffer keeps the most recent messages in arrival order.
	assert.Equal(t, "msg 10", r.Chat[0].Text)
	assert.Equal(t, "msg 69", r.Chat[MaxChatMessages-1].Text)
}

func TestAppendChat_Sanitation(t *testing.T) {
	r := NewRoom("r1")
	now := time.Now()

	_, ok := r.AppendChat("a", "alice", "   \t  ", now)
	assert.False(t, ok, "whitespace-only text must be dropped")

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	msg, ok := r.AppendChat("a", "alice", string(long), now)
	require.True(t, ok)
	assert.Len(t, msg.Text, MaxChatLen)

	msg, ok = r.AppendChat("a", "alice", "he\x00llo\x07", now)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Text)
}

func TestAppendChat_ClipCountsRunes(t *testing.T) {
	r := NewRoom("r1")
	now := time.Now()

	// Exactly at the limit in runes, over it in bytes: no truncation.
	exact := strings.Repeat("a", MaxChatLen-1) + "é"
	msg, ok := r.AppendChat("a", "alice", exact, now)
	require.True(t, ok)
	assert.Equal(t, exact, msg.Text)

	// Clipping multibyte text must never leave a partial sequence behind.
	over := strings.Repeat("é", MaxChatLen+5)
	msg, ok = r.AppendChat("a", "alice", over, now)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(msg.Text))
	assert.Equal(t, MaxChatLen, utf8.RuneCountInString(msg.Text))
}

func TestSetBoardMode(t *testing.T) {
	tests := []struct {
		name string
		key  string
		mode string
		want bool
	}{
		{"valid change", "b1", "checkers", true},
		{"empty key", "", "chess", false},
		{"overlong key", "wayoverlong", "chess", false},
		{"unknown mode", "b1", "poker", false},
		{"default is a no-op", "b1", "chess", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRoom("r1")
			assert.Equal(t, tt.want, r.SetBoardMode(tt.key, tt.mode))
		})
	}
}

func TestSetBoardMode_SameModeSuppressed(t *testing.T) {
	r := NewRoom("r1")
	require.True(t, r.SetBoardMode("b1", "goose"))
	assert.False(t, r.SetBoardMode("b1", "goose"), "writing the current mode again must be a no-op")
	assert.True(t, r.SetBoardMode("b1", "chess"))
}

func TestStats_FlushAccumulatesSpan(t *testing.T) {
	r := NewRoom("r1")
	start := time.Now()

	st := r.TouchStats("a", start)
	assert.Equal(t, start.UnixMilli(), st.ConnectedAt)

	r.FlushStats("a", start.Add(90*time.Second))
	assert.Equal(t, int64(90_000), st.PlayMs)
	assert.Zero(t, st.ConnectedAt)

	// A second flush without a live span changes nothing.
	r.FlushStats("a", start.Add(5*time.Minute))
	assert.Equal(t, int64(90_000), st.PlayMs)

	// Reconnecting under the same id keeps the accumulator.
	r.TouchStats("a", start.Add(10*time.Minute))
	r.FlushStats("a", start.Add(11*time.Minute))
	assert.Equal(t, int64(150_000), st.PlayMs)
}

func TestFlushStats_UnknownIdIsNoop(t *testing.T) {
	r := NewRoom("r1")
	assert.NotPanics(t, func() { r.FlushStats("ghost", time.Now()) })
}
