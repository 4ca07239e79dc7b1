package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// insertCmd holds the flags for the 'insert' subcommand.
type insertCmd struct {
	account  string
	ticker   string
	ts       string
	typ      string
	shares   string
	price    string
	currency string
	source   string
}

func (*insertCmd) Name() string     { return "insert" }
func (*insertCmd) Synopsis() string { return "append a BUY, SELL or PRICE event to the ledger" }
func (*insertCmd) Usage() string {
	return `tlg insert -a <account> -t <ticker> -type BUY|SELL|PRICE [-shares <n>] -price <p> [-ts <timestamp>] [-currency <c>] [-source <s>]

  Validates and appends one event. PRICE events carry no shares. The event
  timestamp defaults to now.

Usage Examples:
$ tlg insert -a ACC-001 -t MSFT -type BUY -shares 10 -price 415.25
$ tlg insert -a ACC-001 -t MSFT -type PRICE -price 420 -ts 2025-02-21T21:00:00Z
`
}

func (c *insertCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Account of the event.")
	f.StringVar(&c.ticker, "t", "", "Ticker of the event.")
	f.StringVar(&c.ts, "ts", "", "Timestamp with offset, defaults to now.")
	f.StringVar(&c.typ, "type", "", "BUY, SELL or PRICE.")
	f.StringVar(&c.shares, "shares", "0", "Number of shares, positive for trades.")
	f.StringVar(&c.price, "price", "", "Price per share.")
	f.StringVar(&c.currency, "currency", "USD", "Currency of the price.")
	f.StringVar(&c.source, "source", "cli", "Origin of the event.")
}

func (c *insertCmd) raw() (tradeledger.RawEvent, error) {
	shares, err := decimal.NewFromString(c.shares)
	if err != nil {
		return tradeledger.RawEvent{}, fmt.Errorf("invalid -shares %q: %w", c.shares, err)
	}
	price, err := decimal.NewFromString(c.price)
	if err != nil {
		return tradeledger.RawEvent{}, fmt.Errorf("invalid -price %q: %w", c.price, err)
	}
	ts := c.ts
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	return tradeledger.RawEvent{
		AccountID:     c.account,
		Ticker:        c.ticker,
		Timestamp:     ts,
		Type:          c.typ,
		Shares:        shares,
		PricePerShare: price,
		Currency:      c.currency,
		Source:        c.source,
	}, nil
}

func (c *insertCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	raw, err := c.raw()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, a *app) error {
		id, err := a.ledger.Insert(ctx, raw)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Inserted event %d.\n", id)
		return nil
	})
}

type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "append events from a JSONL file" }
func (*importCmd) Usage() string {
	return `tlg import <file.jsonl>

  Appends every event of the file, one JSON object per line, in file order.
  Each event is validated like 'tlg insert'; the import stops at the first
  invalid event, the events before it remain in the ledger.
`
}

func (*importCmd) SetFlags(*flag.FlagSet) {}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: import takes exactly one file.")
		return subcommands.ExitUsageError
	}
	file, err := os.Open(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer file.Close()

	return withApp(ctx, func(ctx context.Context, a *app) error {
		n, err := importEvents(ctx, a.ledger, file)
		fmt.Fprintf(stdout, "Imported %d events from %s.\n", n, f.Arg(0))
		return err
	})
}

type exportCmd struct{}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write every event as JSONL on stdout" }
func (*exportCmd) Usage() string {
	return `tlg export > ledger.jsonl

  Writes every event of the ledger, oldest first, in the format read by
  'tlg import'.
`
}

func (*exportCmd) SetFlags(*flag.FlagSet) {}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		events, err := a.ledger.Events(ctx, tradeledger.Filter{})
		if err != nil {
			return err
		}
		slices.Reverse(events)
		return tradeledger.EncodeEvents(stdout, events)
	})
}

type inserter interface {
	Insert(ctx context.Context, raw tradeledger.RawEvent) (int64, error)
}

// importEvents inserts the JSONL events of r in order and returns how many
// were inserted before the first error.
func importEvents(ctx context.Context, l inserter, r io.Reader) (int, error) {
	n := 0
	for raw, err := range tradeledger.DecodeEvents(r) {
		if err != nil {
			return n, err
		}
		if _, err := l.Insert(ctx, raw); err != nil {
			return n, fmt.Errorf("event %d: %w", n+1, err)
		}
		n++
	}
	return n, nil
}
