package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/renderer"
	"github.com/google/subcommands"
)

// window holds the time range flags shared by listings.
type window struct {
	start, end string
}

func (w *window) SetFlags(f *flag.FlagSet) {
	f.StringVar(&w.start, "start", "", "Inclusive start: a timestamp with offset, a day (2025-01-31) or a relative day (-7d).")
	f.StringVar(&w.end, "end", "", "Inclusive end, same formats as -start. A day covers the whole day.")
}

type eventsCmd struct {
	output
	window
	account string
	ticker  string
}

func (*eventsCmd) Name() string     { return "events" }
func (*eventsCmd) Synopsis() string { return "list the events of an account or a ticker" }
func (*eventsCmd) Usage() string {
	return `tlg events [-a <account>] [-t <ticker>] [-start <when>] [-end <when>] [-json]

  Lists events newest first, capped to the engine default limit. At least
  one of -a and -t is required.
`
}

func (c *eventsCmd) SetFlags(f *flag.FlagSet) {
	c.output.SetFlags(f)
	c.window.SetFlags(f)
	f.StringVar(&c.account, "a", "", "Account of the events.")
	f.StringVar(&c.ticker, "t", "", "Ticker of the events.")
}

func (c *eventsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" && c.ticker == "" {
		fmt.Fprintln(os.Stderr, "Error: events needs -a, -t or both.")
		return subcommands.ExitUsageError
	}
	start, end, err := tradeledger.ParseWindow(c.start, c.end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, a *app) error {
		var events []tradeledger.Event
		var err error
		switch {
		case c.account != "" && c.ticker != "":
			events, err = a.ledger.AccountTickerEvents(ctx, c.account, c.ticker, start, end)
		case c.account != "":
			events, err = a.ledger.AccountEvents(ctx, c.account, start, end)
		default:
			events, err = a.ledger.TickerEvents(ctx, c.ticker, start, end)
		}
		if err != nil {
			return err
		}
		title := strings.Join(nonEmpty(c.account, strings.ToUpper(c.ticker)), " / ")
		return c.print(listing(a.ledger, events), func() string { return renderer.Events("Events of "+title, events) })
	})
}

type tradesCmd struct {
	output
	window
	account string
	typ     string
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "list the trades of an account" }
func (*tradesCmd) Usage() string {
	return `tlg trades -a <account> [-type BUY|SELL] [-start <when>] [-end <when>] [-json]

  Lists the BUY and SELL events of an account newest first, capped to the
  engine default limit.
`
}

func (c *tradesCmd) SetFlags(f *flag.FlagSet) {
	c.output.SetFlags(f)
	c.window.SetFlags(f)
	f.StringVar(&c.account, "a", "", "Account of the trades (required).")
	f.StringVar(&c.typ, "type", "", "Only list BUY or SELL events.")
}

func (c *tradesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fmt.Fprintln(os.Stderr, "Error: trades needs -a.")
		return subcommands.ExitUsageError
	}
	var typ tradeledger.EventType
	if c.typ != "" {
		var err error
		if typ, err = tradeledger.ParseEventType(strings.ToUpper(c.typ)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}
	start, end, err := tradeledger.ParseWindow(c.start, c.end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, a *app) error {
		events, err := a.ledger.TradeHistory(ctx, c.account, typ, start, end)
		if err != nil {
			return err
		}
		return c.print(listing(a.ledger, events), func() string { return renderer.Events("Trades of "+c.account, events) })
	})
}

// listing is the JSON payload of bounded event listings.
func listing(l *tradeledger.Ledger, events []tradeledger.Event) map[string]any {
	return map[string]any{"count": len(events), "limit": l.Limit(), "events": events}
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
