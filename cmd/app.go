// Package cmd implements the tlg command line application.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/config"
	"github.com/etnz/tradeledger/store"
	"github.com/google/subcommands"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&accountsCmd{}, "reports")
	c.Register(&summaryCmd{}, "reports")
	c.Register(&analyzeCmd{}, "reports")
	c.Register(&scanCmd{}, "reports")
	c.Register(&priceCmd{}, "reports")
	c.Register(&eventsCmd{}, "reports")
	c.Register(&tradesCmd{}, "reports")
	c.Register(&queryCmd{}, "reports")

	c.Register(&insertCmd{}, "ledger")
	c.Register(&importCmd{}, "ledger")
	c.Register(&exportCmd{}, "ledger")
	c.Register(&fetchCmd{}, "ledger")

	c.Register(&chatCmd{}, "assistant")
	c.Register(&mcpCmd{}, "assistant")

	c.Register(&healthCmd{}, "store")
	c.Register(&schemaCmd{}, "store")

	c.Register(&topicCmd{}, "help")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var configFile = flag.String("config", "", "Path to the TOML configuration file, tlg.toml if present")
var verbose = flag.Bool("v", false, "Log at debug level")
var metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while the command runs (e.g. :9090)")

// defaultConfigFile is loaded when -config is not set and the file exists.
const defaultConfigFile = "tlg.toml"

// loadConfig loads the configuration selected by the global flags.
func loadConfig() (*config.Config, error) {
	path := *configFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	return config.Load(path)
}

// app holds what a subcommand needs to reach the ledger.
type app struct {
	config   *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	store    *store.Gateway
	ledger   *tradeledger.Ledger
	server   *http.Server
}

// openApp loads the configuration, connects to the store and builds the ledger.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logging.Logger(*verbose)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", zap.Stringer("config", cfg))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := store.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	gw, err := store.Open(ctx, cfg.Store, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	rules, err := cfg.Engine.Rules()
	if err != nil {
		gw.Close()
		return nil, err
	}

	a := &app{
		config:   cfg,
		logger:   logger,
		registry: reg,
		store:    gw,
		ledger:   tradeledger.NewLedger(gw, tradeledger.Options{Limit: cfg.Engine.DefaultLimit, Rules: rules}),
	}
	if *metricsAddr != "" {
		a.serveMetrics(*metricsAddr)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	a.server = &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("serving metrics", zap.String("addr", addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Close releases the store and stops the metrics server.
func (a *app) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.server.Shutdown(ctx)
		cancel()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	a.logger.Sync()
}

// withApp opens the app, runs fn and reports its error on stderr.
func withApp(ctx context.Context, fn func(context.Context, *app) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
