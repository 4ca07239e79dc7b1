package agent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREPL(t *testing.T) {
	a := newTestAgent(t, Options{}, func(_ context.Context, n int, req Request) (*Reply, error) {
		if n == 2 {
			return nil, errors.New("overloaded")
		}
		return &Reply{Text: "answer to " + req.Messages[len(req.Messages)-1].Text}, nil
	})

	var out bytes.Buffer
	input := strings.NewReader("status\nsecond question\nclear\nstatus\nbye\nnever read\n")
	repl := NewREPL(&out, input, a.Agent, "s1")
	require.NoError(t, repl.Run(context.Background(), "first question", "", "help"))

	got := out.String()
	assert.Contains(t, got, "answer to first question")
	assert.Contains(t, got, "session s1: 1 turns, 2 messages")
	assert.Contains(t, got, "The model is unavailable, try again")
	assert.Contains(t, got, "Conversation cleared.")
	assert.Contains(t, got, "session s1: empty")
	assert.Contains(t, got, "forget the conversation")
	assert.NotContains(t, got, "never read")
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestREPL_EOF(t *testing.T) {
	a := newTestAgent(t, Options{}, func(context.Context, int, Request) (*Reply, error) {
		return &Reply{Text: "ok"}, nil
	})
	var out bytes.Buffer
	repl := NewREPL(&out, strings.NewReader("hello\n"), a.Agent, "s1")
	var printed []string
	repl.Print = func(_ io.Writer, answer string) { printed = append(printed, answer) }
	require.NoError(t, repl.Run(context.Background()))
	assert.Equal(t, []string{"ok"}, printed)
}
