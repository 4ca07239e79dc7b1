package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/etnz/tradeledger/store"
	"github.com/google/subcommands"
)

type healthCmd struct{}

func (*healthCmd) Name() string     { return "health" }
func (*healthCmd) Synopsis() string { return "check that the store is reachable" }
func (*healthCmd) Usage() string {
	return `tlg health

  Connects to the configured store and pings it.
`
}

func (*healthCmd) SetFlags(*flag.FlagSet) {}

func (c *healthCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		start := time.Now()
		if err := a.ledger.Ping(ctx); err != nil {
			return fmt.Errorf("%s store is unhealthy: %w", a.config.Store.Driver, err)
		}
		fmt.Fprintf(stdout, "%s store is healthy (%v).\n", a.config.Store.Driver, time.Since(start).Round(time.Millisecond))
		return nil
	})
}

type schemaCmd struct {
	driver string
}

func (*schemaCmd) Name() string     { return "schema" }
func (*schemaCmd) Synopsis() string { return "print the DDL of the ledger table" }
func (*schemaCmd) Usage() string {
	return `tlg schema [-driver postgres|sqlite]

  Prints the statements creating the ledger table and its indexes, for the
  configured store driver by default.

  $ tlg schema -driver postgres | psql "$DATABASE_URL"
`
}

func (c *schemaCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.driver, "driver", "", "Store driver, the configured one by default.")
}

func (c *schemaCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	driver := c.driver
	if driver == "" {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		driver = cfg.Store.Driver
	}
	ddl, err := store.Schema(driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	fmt.Fprint(stdout, ddl)
	return subcommands.ExitSuccess
}
