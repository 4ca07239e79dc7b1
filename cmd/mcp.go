package cmd

import (
	"context"
	"flag"

	"github.com/etnz/tradeledger/agent"
	"github.com/google/subcommands"
	"github.com/mark3labs/mcp-go/server"
)

// version is reported to MCP clients.
var version = "dev"

type mcpCmd struct{}

func (*mcpCmd) Name() string     { return "mcp" }
func (*mcpCmd) Synopsis() string { return "serve the ledger tools over MCP on stdio" }
func (*mcpCmd) Usage() string {
	return `tlg mcp

  Serves the ledger tools to a Model Context Protocol client on stdin and
  stdout. Logs go to stderr.
`
}

func (*mcpCmd) SetFlags(*flag.FlagSet) {}

func (c *mcpCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app) error {
		metrics, err := agent.NewMetrics(a.registry)
		if err != nil {
			return err
		}
		s, err := agent.NewMCPServer(agent.NewLibrary(a.ledger, a.logger, metrics), "tradeledger", version)
		if err != nil {
			return err
		}
		return server.ServeStdio(s)
	})
}
