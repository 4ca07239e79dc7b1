package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/etnz/tradeledger"
)

const prompt = "tlg> "

const replHelp = `Ask anything about the ledger, or type a command:
  help    this message
  status  session id, turns and messages
  clear   forget the conversation
  bye     leave (also quit, exit)`

// REPL is an interactive chat on one session.
type REPL struct {
	w       io.Writer
	r       *bufio.Reader
	agent   *Agent
	session string
	// Print writes an answer, as plain text if nil.
	Print func(w io.Writer, answer string)
}

// NewREPL returns a chat reading questions from r and writing answers to w.
func NewREPL(w io.Writer, r io.Reader, a *Agent, sessionID string) *REPL {
	return &REPL{w: w, r: bufio.NewReader(r), agent: a, session: sessionID}
}

// Run reads questions until bye or end of input. Prompts are asked first,
// as if typed.
func (c *REPL) Run(ctx context.Context, prompts ...string) error {
	fmt.Fprintln(c.w, "Ledger assistant. Type 'help' for commands, 'bye' to exit.")

	for {
		fmt.Fprint(c.w, prompt)
		var input string

		// Flush prompts from the list and then ask for the user.
		if len(prompts) > 0 {
			input, prompts = prompts[0], prompts[1:]
			input = strings.TrimSpace(input)
			if input == "" {
				continue
			}
			fmt.Fprintln(c.w, input)
		} else {
			var err error
			input, err = c.r.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return nil // Clean exit on Ctrl+D
				}
				return err
			}
		}

		switch input = strings.TrimSpace(input); input {
		case "":
			continue
		case "bye", "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(c.w, replHelp)
			continue
		case "status":
			c.status()
			continue
		case "clear":
			if err := c.agent.Sessions().Clear(ctx, c.session); err != nil {
				return err
			}
			fmt.Fprintln(c.w, "Conversation cleared.")
			continue
		}

		answer, err := c.agent.Ask(ctx, c.session, input)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.failed(err)
			continue
		}
		if c.Print != nil {
			c.Print(c.w, answer)
		} else {
			fmt.Fprintln(c.w, answer)
		}
	}
}

func (c *REPL) status() {
	s, ok := c.agent.Sessions().Get(c.session)
	if !ok {
		fmt.Fprintf(c.w, "session %s: empty\n", c.session)
		return
	}
	fmt.Fprintf(c.w, "session %s: %d turns, %d messages, last used %s\n",
		s.ID, s.Turns(), len(s.Messages), s.LastUsedAt.Format("15:04:05"))
}

func (c *REPL) failed(err error) {
	var cerr *tradeledger.CompletionServiceError
	switch {
	case errors.As(err, &cerr):
		fmt.Fprintf(c.w, "The model is unavailable, try again: %v\n", err)
	case errors.Is(err, tradeledger.ErrRoundLimit):
		fmt.Fprintf(c.w, "No answer found: %v\n", err)
	default:
		fmt.Fprintf(c.w, "Error: %v\n", err)
	}
}
