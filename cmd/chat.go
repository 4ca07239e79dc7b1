package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/etnz/tradeledger/agent"
	"github.com/etnz/tradeledger/session"
	"github.com/google/subcommands"
	"github.com/google/uuid"
)

type chatCmd struct {
	session string
}

func (*chatCmd) Name() string     { return "chat" }
func (*chatCmd) Synopsis() string { return "ask questions about the ledger to the assistant" }
func (*chatCmd) Usage() string {
	return `tlg chat [-session <id>] [question...]

  Starts an interactive session with the assistant. The assistant answers by
  calling the ledger tools; a question given on the command line is asked
  first.
`
}

func (c *chatCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.session, "session", "", "Session identifier, a new one by default.")
}

func (c *chatCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var prompts []string
	if f.NArg() > 0 {
		prompts = append(prompts, strings.Join(f.Args(), " "))
	}
	id := c.session
	if id == "" {
		id = uuid.NewString()
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		completer, err := agent.NewCompleter(ctx, a.config.Agent)
		if err != nil {
			return fmt.Errorf("cannot initialize the %s completion service: %w", a.config.Agent.Provider, err)
		}
		assistant, err := newAgent(a, completer)
		if err != nil {
			return err
		}
		repl := agent.NewREPL(os.Stdout, os.Stdin, assistant, id)
		repl.Print = func(w io.Writer, answer string) { fmt.Fprint(w, renderMarkdown(answer)) }
		return repl.Run(ctx, prompts...)
	})
}

// newAgent wires the tool library and the session registry to completer.
func newAgent(a *app, completer agent.Completer) (*agent.Agent, error) {
	metrics, err := agent.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}
	cfg := a.config.Agent
	lib := agent.NewLibrary(a.ledger, a.logger, metrics)
	return agent.New(completer, lib, session.NewManager(a.logger), agent.Options{
		MaxRounds:   cfg.MaxRounds,
		TurnTimeout: cfg.TurnTimeout.Std(),
		Parallelism: cfg.ToolParallelism,
		Logger:      a.logger,
		Metrics:     metrics,
	}), nil
}
