// Package store implements the event store gateway: parameterized reads and
// writes of the ledger table through a bounded connection pool, with retries
// on transient failures.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/config"
	"go.uber.org/zap"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Schema returns the DDL of the ledger table and its indexes for driver.
func Schema(driver string) (string, error) {
	switch driver {
	case "postgres":
		return postgresSchema, nil
	case "sqlite":
		return sqliteSchema, nil
	default:
		return "", fmt.Errorf("unknown store driver %q", driver)
	}
}

// backend is a database specific implementation of the ledger operations.
// Its errors are raw driver errors, mapped by classify.
type backend interface {
	fetchEvents(ctx context.Context, f tradeledger.Filter) ([]tradeledger.Event, error)
	insertEvent(ctx context.Context, e tradeledger.Event) (int64, error)
	listAccounts(ctx context.Context) ([]string, error)
	query(ctx context.Context, sql string) (*tradeledger.QueryResult, error)
	ping(ctx context.Context) error
	exec(ctx context.Context, script string) error
	close() error
	// classify maps err to the ledger error taxonomy and reports whether the
	// operation can be tried again. write is set for insertions, which are
	// only retried when the statement certainly did not reach the server.
	classify(err error, write bool) (mapped error, transient bool)
}

// Gateway is the event store gateway. It implements tradeledger.Store.
type Gateway struct {
	backend backend
	driver  string
	policy  retryPolicy
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

var _ tradeledger.Store = (*Gateway)(nil)

type retryPolicy struct {
	maxAttempts         int
	baseDelay, maxDelay time.Duration
}

// Open connects to the store described by cfg. The SQLite schema is created
// if missing, PostgreSQL schemas are provisioned outside of tlg (see Schema).
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger, metrics *Metrics) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		driver: cfg.Driver,
		policy: retryPolicy{
			maxAttempts: max(1, cfg.MaxAttempts),
			baseDelay:   cfg.BaseDelay.Std(),
			maxDelay:    cfg.MaxDelay.Std(),
		},
		logger:  logger.Named("store"),
		metrics: metrics,
		now:     time.Now,
	}
	var err error
	switch cfg.Driver {
	case "postgres":
		g.backend, err = openPostgres(ctx, cfg)
	case "sqlite":
		g.backend, err = openSQLite(ctx, cfg)
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		if err := g.EnsureSchema(ctx); err != nil {
			g.backend.close()
			return nil, err
		}
	}
	return g, nil
}

// EnsureSchema creates the ledger table and its indexes if they do not exist.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	script, err := Schema(g.driver)
	if err != nil {
		return err
	}
	return g.do(ctx, "schema", false, func(ctx context.Context) error {
		return g.backend.exec(ctx, script)
	})
}

// Close releases the connection pool.
func (g *Gateway) Close() error { return g.backend.close() }

func (g *Gateway) FetchEvents(ctx context.Context, f tradeledger.Filter) ([]tradeledger.Event, error) {
	var events []tradeledger.Event
	err := g.do(ctx, "fetch_events", false, func(ctx context.Context) (err error) {
		events, err = g.backend.fetchEvents(ctx, f)
		return err
	})
	return events, err
}

func (g *Gateway) InsertEvent(ctx context.Context, e tradeledger.Event) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = g.now()
	}
	var id int64
	err := g.do(ctx, "insert_event", true, func(ctx context.Context) (err error) {
		id, err = g.backend.insertEvent(ctx, e)
		return err
	})
	return id, err
}

func (g *Gateway) ListAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := g.do(ctx, "list_accounts", false, func(ctx context.Context) (err error) {
		accounts, err = g.backend.listAccounts(ctx)
		return err
	})
	return accounts, err
}

func (g *Gateway) ExecuteReadOnlyQuery(ctx context.Context, sql string) (*tradeledger.QueryResult, error) {
	var res *tradeledger.QueryResult
	err := g.do(ctx, "read_only_query", false, func(ctx context.Context) (err error) {
		res, err = g.backend.query(ctx, sql)
		return err
	})
	return res, err
}

func (g *Gateway) Ping(ctx context.Context) error {
	return g.do(ctx, "ping", false, g.backend.ping)
}

// do runs op, retrying transient failures with exponential backoff up to the
// attempt cap. Non-transient failures return at once.
func (g *Gateway) do(ctx context.Context, op string, write bool, fn func(context.Context) error) error {
	start := time.Now()
	attempts := 0
	var lastTransient error

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.policy.baseDelay
	if g.policy.maxDelay > 0 {
		b.MaxInterval = g.policy.maxDelay
	}
	b.MaxElapsedTime = 0
	b.Reset()

	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		mapped, transient := g.backend.classify(err, write)
		if !transient {
			return backoff.Permanent(mapped)
		}
		lastTransient = mapped
		return mapped
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.policy.maxAttempts-1)), ctx), func(err error, delay time.Duration) {
		g.metrics.retried(op)
		g.logger.Warn("transient store failure, retrying",
			zap.String("op", op), zap.Int("attempt", attempts), zap.Duration("delay", delay), zap.Error(err))
	})

	status := "ok"
	switch {
	case err == nil:
	case lastTransient != nil && errors.Is(err, lastTransient):
		status = "unavailable"
		err = &tradeledger.TransientStoreError{Attempts: attempts, Err: err}
		g.logger.Error("store unavailable", zap.String("op", op), zap.Int("attempts", attempts), zap.Error(err))
	default:
		status = "error"
	}
	g.metrics.observe(op, status, time.Since(start))
	return err
}
