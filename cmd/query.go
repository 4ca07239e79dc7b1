package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/tradeledger/renderer"
	"github.com/google/subcommands"
)

type queryCmd struct {
	output
	path string
}

func (*queryCmd) Name() string     { return "query" }
func (*queryCmd) Synopsis() string { return "run a read-only SQL query on the ledger" }
func (*queryCmd) Usage() string {
	return `tlg query [-path <jsonpath>] [-json] <sql>

  Runs a single SELECT (or WITH ... SELECT) statement against the
  portfolio_event_ledger table. Statements that could modify data are
  rejected before reaching the store. -path selects values out of the JSON
  result, e.g.

  $ tlg query -path '$.rows[*].ticker_symbol' 'SELECT DISTINCT ticker_symbol FROM portfolio_event_ledger'
`
}

func (c *queryCmd) SetFlags(f *flag.FlagSet) {
	c.output.SetFlags(f)
	f.StringVar(&c.path, "path", "", "JSONPath expression applied to the JSON result.")
}

func (c *queryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	sql := strings.TrimSpace(strings.Join(f.Args(), " "))
	if sql == "" {
		fmt.Fprintln(os.Stderr, "Error: query needs a SQL statement.")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, a *app) error {
		res, err := a.ledger.RunQuery(ctx, sql)
		if err != nil {
			return err
		}
		if c.path == "" {
			return c.print(res, func() string { return renderer.QueryResult(res) })
		}
		selected, err := selectPath(c.path, res)
		if err != nil {
			return err
		}
		return printJSON(selected)
	})
}

// selectPath evaluates the JSONPath expression on the JSON form of v.
func selectPath(path string, v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	selected, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("jsonpath %q: %w", path, err)
	}
	return selected, nil
}
