package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/docs"
	"github.com/etnz/tradeledger/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default loop bounds.
const (
	DefaultMaxRounds   = 8
	DefaultParallelism = 4
)

// State is a state of the tool-orchestration loop.
type State string

const (
	AwaitingModel  State = "awaiting_model"
	ExecutingTools State = "executing_tools"
	Done           State = "done"
	Failed         State = "failed"
)

// Options configures an Agent.
type Options struct {
	// MaxRounds bounds the tool rounds of a turn, DefaultMaxRounds if zero.
	MaxRounds int
	// TurnTimeout bounds a whole turn, no bound if zero.
	TurnTimeout time.Duration
	// Parallelism bounds concurrent read-only tool calls, DefaultParallelism if zero.
	Parallelism int
	// System is the system instruction, DefaultInstruction() if empty.
	System  string
	Logger  *zap.Logger
	Metrics *Metrics
}

// Agent answers questions by letting a completion service call the tool
// library, keeping the conversation in a session registry.
type Agent struct {
	completer   Completer
	library     *Library
	sessions    *session.Manager
	maxRounds   int
	timeout     time.Duration
	parallelism int
	system      string
	logger      *zap.Logger
	metrics     *Metrics
	now         func() time.Time
}

// New returns an Agent.
func New(completer Completer, library *Library, sessions *session.Manager, opts Options) *Agent {
	a := &Agent{
		completer:   completer,
		library:     library,
		sessions:    sessions,
		maxRounds:   opts.MaxRounds,
		timeout:     opts.TurnTimeout,
		parallelism: opts.Parallelism,
		system:      opts.System,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         time.Now,
	}
	if a.maxRounds <= 0 {
		a.maxRounds = DefaultMaxRounds
	}
	if a.parallelism <= 0 {
		a.parallelism = DefaultParallelism
	}
	if a.system == "" {
		a.system = DefaultInstruction()
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.Named("agent")
	return a
}

// DefaultInstruction is the system instruction given to the model.
func DefaultInstruction() string {
	return `You are a portfolio analyst answering questions about an append-only ledger of
trades (BUY, SELL) and price observations (PRICE) across investment accounts.

Only state figures returned by the tools. A null value or a missing_price flag
means the figure cannot be computed: say so, never estimate it. Mention
anomaly flags when they affect the answer. Quote currencies with amounts, and
never add amounts in different currencies.

Prefer the dedicated tools, use runQuery only when none of them answers the
question. Only call insertEvent when the user explicitly asks to record an
event, and repeat the recorded event in the answer.

` + docs.MustTopic("positions")
}

// Sessions returns the session registry of the agent.
func (a *Agent) Sessions() *session.Manager { return a.sessions }

// Ask runs one turn of session id: the question, the tool rounds the model
// asks for, and the final answer.
//
// The turn is committed to the session only when a final answer is reached.
// On failure (completion service error, round limit, cancellation) the
// session is left as it was.
func (a *Agent) Ask(ctx context.Context, id, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", &tradeledger.ValidationError{Field: "question", Reason: "is empty"}
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	turn, err := a.sessions.Begin(ctx, id)
	if err != nil {
		return "", fmt.Errorf("cannot open turn on session %q: %w", id, err)
	}
	defer turn.Release()

	log := a.logger.With(zap.String("session_id", id))
	history := turn.History()
	messages := []session.Message{{Role: session.User, Text: question, At: a.now()}}

	rounds := 0
	state := AwaitingModel
	fail := func(outcome string, err error) (string, error) {
		log.Debug("state", zap.String("from", string(state)), zap.String("to", string(Failed)), zap.String("outcome", outcome))
		a.metrics.turnEnded(outcome, rounds)
		return "", err
	}

	for {
		log.Debug("state", zap.String("to", string(AwaitingModel)), zap.Int("round", rounds))
		state = AwaitingModel
		reply, err := a.completer.Complete(ctx, Request{
			System:   a.system,
			Messages: concat(history, messages),
			Tools:    a.library.Tools(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return fail("canceled", fmt.Errorf("turn aborted: %w", ctx.Err()))
			}
			log.Warn("completion failed", zap.Int("round", rounds), zap.Error(err))
			var cerr *tradeledger.CompletionServiceError
			if !errors.As(err, &cerr) {
				err = &tradeledger.CompletionServiceError{Err: err}
			}
			return fail("completion_error", err)
		}

		if reply == nil {
			log.Warn("empty completion", zap.Int("round", rounds))
			return fail("completion_error", &tradeledger.CompletionServiceError{Err: errors.New("completer returned no reply")})
		}

		if len(reply.ToolCalls) == 0 {
			messages = append(messages, session.Message{Role: session.Assistant, Text: reply.Text, At: a.now()})
			if err := turn.Commit(messages...); err != nil {
				return fail("internal", err)
			}
			log.Debug("state", zap.String("from", string(state)), zap.String("to", string(Done)), zap.Int("rounds", rounds))
			a.metrics.turnEnded("done", rounds)
			return reply.Text, nil
		}

		if rounds >= a.maxRounds {
			log.Warn("round limit reached", zap.Int("rounds", rounds))
			return fail("round_limit", &tradeledger.RoundLimitError{Rounds: rounds})
		}
		rounds++
		log.Debug("state", zap.String("from", string(state)), zap.String("to", string(ExecutingTools)), zap.Int("round", rounds), zap.Int("calls", len(reply.ToolCalls)))
		state = ExecutingTools

		calls := identify(reply.ToolCalls, rounds)
		results := a.execute(ctx, calls)
		if ctx.Err() != nil {
			return fail("canceled", fmt.Errorf("turn aborted: %w", ctx.Err()))
		}
		now := a.now()
		messages = append(messages,
			session.Message{Role: session.Assistant, Text: reply.Text, ToolCalls: calls, At: now},
			session.Message{Role: session.Tool, ToolResults: results, At: now},
		)
	}
}

// execute runs the calls of one round and returns their results in request
// order. Rounds made only of read-only tools run concurrently.
func (a *Agent) execute(ctx context.Context, calls []session.ToolCall) []session.ToolResult {
	results := make([]session.ToolResult, len(calls))
	run := func(i int) {
		c := calls[i]
		if c.Invalid != "" {
			results[i] = session.ToolResult{ID: c.ID, Name: c.Name, Payload: errorPayload(&tradeledger.ValidationError{Field: "arguments", Reason: c.Invalid})}
			return
		}
		results[i] = session.ToolResult{ID: c.ID, Name: c.Name, Payload: a.library.Call(ctx, c.Name, c.Args)}
	}

	if !a.readOnly(calls) {
		for i := range calls {
			run(i)
		}
		return results
	}
	var g errgroup.Group
	g.SetLimit(a.parallelism)
	for i := range calls {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// readOnly reports whether every call is to a read-only tool. Unknown tools
// only produce an error payload.
func (a *Agent) readOnly(calls []session.ToolCall) bool {
	for _, c := range calls {
		if t, ok := a.library.Lookup(c.Name); ok && !t.ReadOnly {
			return false
		}
	}
	return true
}

// identify gives an id to the calls that have none, so results can be paired.
func identify(calls []session.ToolCall, round int) []session.ToolCall {
	out := make([]session.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d_%d", round, i)
		}
		out[i] = c
	}
	return out
}

func concat(a, b []session.Message) []session.Message {
	out := make([]session.Message, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
