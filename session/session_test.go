package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func turnMessages(n int) []Message {
	return []Message{
		{Role: User, Text: fmt.Sprintf("question %d", n)},
		{Role: Assistant, ToolCalls: []ToolCall{{ID: "c1", Name: "listAccounts"}}},
		{Role: Tool, ToolResults: []ToolResult{{ID: "c1", Name: "listAccounts", Payload: map[string]any{"count": n}}}},
		{Role: Assistant, Text: fmt.Sprintf("answer %d", n)},
	}
}

func TestBegin_CreatesOnFirstUse(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	_, ok := m.Get("s1")
	assert.False(t, ok)

	turn, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, turn.History())
	turn.Release()

	s, ok := m.Get("s1")
	require.True(t, ok)
	assert.Empty(t, s.Messages)
	assert.Equal(t, []string{"s1"}, m.IDs())
}

func TestCommit_AppendsWholeTurn(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)

	turn, err := m.Begin(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, turn.Commit(turnMessages(1)...))
	assert.ErrorIs(t, turn.Commit(turnMessages(2)...), ErrTurnClosed)
	turn.Release() // no-op

	turn, err = m.Begin(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turn.History(), 4)
	require.NoError(t, turn.Commit(turnMessages(2)...))

	s, _ := m.Get("s1")
	assert.Equal(t, 2, s.Turns())
	assert.Equal(t, "answer 2", s.Messages[7].Text)
	assert.False(t, s.LastUsedAt.Before(s.CreatedAt))
}

func TestRelease_LeavesSessionUnchanged(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)
	turn, err := m.Begin(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, turn.Commit(turnMessages(1)...))
	before, _ := m.Get("s1")

	turn, err = m.Begin(ctx, "s1")
	require.NoError(t, err)
	turn.Release()

	after, _ := m.Get("s1")
	assert.Equal(t, before, after)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)
	turn, err := m.Begin(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, turn.Commit(turnMessages(1)...))

	s, _ := m.Get("s1")
	s.Messages[0].Text = "tampered"
	again, _ := m.Get("s1")
	assert.Equal(t, "question 1", again.Messages[0].Text)
}

func TestBegin_SerializesTurnsOfOneSession(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)

	const writers = 16
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turn, err := m.Begin(ctx, "shared")
			if !assert.NoError(t, err) {
				return
			}
			time.Sleep(time.Millisecond)
			assert.NoError(t, turn.Commit(turnMessages(i)...))
		}()
	}
	wg.Wait()

	s, ok := m.Get("shared")
	require.True(t, ok)
	require.Len(t, s.Messages, 4*writers)
	// turns are never interleaved.
	for i := 0; i < len(s.Messages); i += 4 {
		q, a := s.Messages[i].Text, s.Messages[i+3].Text
		var n int
		_, err := fmt.Sscanf(q, "question %d", &n)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("answer %d", n), a)
	}
}

func TestBegin_WaitIsCancellable(t *testing.T) {
	m := NewManager(nil)
	turn, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)
	defer turn.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Begin(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other sessions are not blocked.
	other, err := m.Begin(context.Background(), "s2")
	require.NoError(t, err)
	other.Release()
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m := NewManager(zaptest.NewLogger(t))
	turn, err := m.Begin(ctx, "s1")
	require.NoError(t, err)

	cleared := make(chan error)
	go func() { cleared <- m.Clear(ctx, "s1") }()
	select {
	case <-cleared:
		t.Fatal("Clear returned while a turn was open")
	case <-time.After(10 * time.Millisecond):
	}
	require.NoError(t, turn.Commit(turnMessages(1)...))
	require.NoError(t, <-cleared)

	_, ok := m.Get("s1")
	assert.False(t, ok)
	assert.Empty(t, m.IDs())
	assert.NoError(t, m.Clear(ctx, "unknown"))

	turn, err = m.Begin(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turn.History(), "a cleared session starts over")
	turn.Release()
}

func TestBegin_RequiresID(t *testing.T) {
	_, err := NewManager(nil).Begin(context.Background(), " ")
	assert.Error(t, err)
}
