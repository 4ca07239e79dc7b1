package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/date"
	"github.com/etnz/tradeledger/eodhd"
	"github.com/google/subcommands"
)

// fetchCmd holds the flags for the 'fetch' subcommand.
type fetchCmd struct {
	account  string
	ticker   string
	symbol   string
	currency string
	start    string
	end      string
}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "record daily closes from EODHD as PRICE events" }
func (*fetchCmd) Usage() string {
	return `tlg fetch -a <account> -t <ticker> [-symbol <eodhd symbol>] [-currency <c>] [-start <day>] [-end <day>]

  Fetches the daily closes of the ticker from EODHD and appends them to the
  account as PRICE events, timestamped at the end of each day (UTC). By
  default it starts the day after the latest PRICE event of the account for
  that ticker, and ends yesterday. The API key is read from [prices] api_key
  or EODHD_API_KEY.

Usage Examples:
$ tlg fetch -a ACC-001 -t MSFT
$ tlg fetch -a ACC-002 -t SAP -symbol SAP.XETRA -currency EUR -start 2025-01-01
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Account receiving the PRICE events.")
	f.StringVar(&c.ticker, "t", "", "Ticker of the PRICE events.")
	f.StringVar(&c.symbol, "symbol", "", "EODHD symbol, <ticker>.US by default.")
	f.StringVar(&c.currency, "currency", "USD", "Currency of the closes.")
	f.StringVar(&c.start, "start", "", "First day to fetch.")
	f.StringVar(&c.end, "end", "-1d", "Last day to fetch.")
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" || c.ticker == "" {
		fmt.Fprintln(os.Stderr, "Error: fetch needs -a and -t.")
		return subcommands.ExitUsageError
	}
	end, err := date.Parse(c.end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing end date: %v\n", err)
		return subcommands.ExitUsageError
	}
	var start date.Date
	if c.start != "" {
		if start, err = date.Parse(c.start); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing start date: %v\n", err)
			return subcommands.ExitUsageError
		}
	}
	symbol := c.symbol
	if symbol == "" {
		symbol = strings.ToUpper(strings.TrimSpace(c.ticker)) + ".US"
	}

	return withApp(ctx, func(ctx context.Context, a *app) error {
		if a.config.Prices.APIKey == "" {
			return fmt.Errorf("no EODHD api key, set [prices] api_key or EODHD_API_KEY")
		}
		if start.IsZero() {
			if start, err = nextDay(ctx, a.ledger, c.account, c.ticker); err != nil {
				return err
			}
		}
		if start.After(end) {
			fmt.Fprintf(stdout, "%s prices are up to date.\n", c.ticker)
			return nil
		}

		client := eodhd.NewClient(a.config.Prices.APIKey, a.config.Prices.BaseURL, a.config.Prices.CacheDir, a.logger)
		closes, err := client.Closes(ctx, symbol, start, end)
		if err != nil {
			return err
		}
		n, err := eodhd.Record(ctx, a.ledger, c.account, c.ticker, c.currency, closes)
		fmt.Fprintf(stdout, "Recorded %d %s closes from %s to %s.\n", n, c.ticker, start, end)
		return err
	})
}

// nextDay returns the day after the latest PRICE event of ticker in account,
// or a year ago if there is none.
func nextDay(ctx context.Context, l *tradeledger.Ledger, account, ticker string) (date.Date, error) {
	events, err := l.Events(ctx, tradeledger.Filter{
		AccountID: account,
		Ticker:    strings.ToUpper(strings.TrimSpace(ticker)),
		Types:     []tradeledger.EventType{tradeledger.Price},
		Limit:     1,
	})
	if err != nil {
		return date.Date{}, err
	}
	if len(events) == 0 {
		return date.Today().Add(-365), nil
	}
	return date.Of(events[0].Timestamp).Add(1), nil
}
