package agent

import (
	"context"

	"github.com/etnz/tradeledger/session"
)

// Request is one submission to the completion service: the whole
// conversation so far and the closed tool set.
type Request struct {
	System   string
	Messages []session.Message
	Tools    []Tool
}

// Reply is the answer of the completion service: either a final Text or a
// list of tool invocations.
type Reply struct {
	Text      string
	ToolCalls []session.ToolCall
}

// Completer is a completion service.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (*Reply, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Reply, error) { return f(ctx, req) }
