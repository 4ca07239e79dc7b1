package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/tradeledger/renderer"
	"github.com/google/subcommands"
)

type accountsCmd struct{ output }

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list the accounts of the ledger" }
func (*accountsCmd) Usage() string {
	return `tlg accounts [-json]

  Lists the distinct account identifiers found in the ledger.
`
}

func (c *accountsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		accounts, err := a.ledger.ListAccounts(ctx)
		if err != nil {
			return err
		}
		payload := map[string]any{"count": len(accounts), "accounts": accounts}
		return c.print(payload, func() string { return renderer.Accounts(accounts) })
	})
}

// summaryCmd holds the flags for the 'summary' subcommand.
type summaryCmd struct {
	output
	account string
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display the positions of one or every account" }
func (*summaryCmd) Usage() string {
	return `tlg summary [-a <account>] [-json]

  Displays the positions derived from the ledger: net shares, average cost,
  last price, market value, unrealized P&L, weight and anomaly flags.
  Without -a every account is summarized, with the account level flags.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	c.output.SetFlags(f)
	f.StringVar(&c.account, "a", "", "Account to summarize. Defaults to every account.")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		if c.account == "" {
			s, err := a.ledger.AllSummaries(ctx)
			if err != nil {
				return err
			}
			return c.print(s, func() string { return renderer.Summaries(s) })
		}
		positions, err := a.ledger.PortfolioSummary(ctx, c.account)
		if err != nil {
			return err
		}
		return c.print(positions, func() string {
			return renderer.Positions(fmt.Sprintf("Portfolio of %s", c.account), positions)
		})
	})
}

type analyzeCmd struct{ output }

func (*analyzeCmd) Name() string     { return "analyze" }
func (*analyzeCmd) Synopsis() string { return "display the analysis context of an account" }
func (*analyzeCmd) Usage() string {
	return `tlg analyze [-json] <account>

  Displays the positions of the account with their anomalies, total market
  value and priced position counts.
`
}

func (c *analyzeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: analyze takes exactly one account.")
		return subcommands.ExitUsageError
	}
	account := f.Arg(0)
	return withApp(ctx, func(ctx context.Context, a *app) error {
		ac, err := a.ledger.AnalysisContext(ctx, account)
		if err != nil {
			return err
		}
		return c.print(ac, func() string { return renderer.AnalysisContext(ac) })
	})
}

type scanCmd struct{ output }

func (*scanCmd) Name() string     { return "scan" }
func (*scanCmd) Synopsis() string { return "analyze every account and their concentration and churn" }
func (*scanCmd) Usage() string {
	return `tlg scan [-json]

  Analyzes every account of the ledger and raises the account level flags:
  sector_concentration, market_cap_concentration and high_churn.
`
}

func (c *scanCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		s, err := a.ledger.Scan(ctx)
		if err != nil {
			return err
		}
		return c.print(s, func() string { return renderer.Scan(s) })
	})
}

type priceCmd struct{ output }

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "display the latest price of a ticker" }
func (*priceCmd) Usage() string {
	return `tlg price [-json] <ticker>

  Displays the most recent PRICE event of the ticker, across accounts.
`
}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: price takes exactly one ticker.")
		return subcommands.ExitUsageError
	}
	ticker := f.Arg(0)
	return withApp(ctx, func(ctx context.Context, a *app) error {
		q, err := a.ledger.LatestPrice(ctx, ticker)
		if err != nil {
			return err
		}
		return c.print(q, func() string { return renderer.Quote(q) })
	})
}
