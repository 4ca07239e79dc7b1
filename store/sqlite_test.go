package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestGateway(t *testing.T) *Gateway {
	t.Helper()
	cfg := config.Default().Store
	cfg.Driver = "sqlite"
	cfg.DSN = filepath.Join(t.TempDir(), "ledger.db")
	cfg.BaseDelay = config.Duration(time.Millisecond)
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	g, err := Open(context.Background(), cfg, zaptest.NewLogger(t), metrics)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func mustEvent(t *testing.T, account, ticker, ts, typ string, shares, price float64) tradeledger.Event {
	t.Helper()
	e, err := tradeledger.NewEvent(tradeledger.RawEvent{
		AccountID:     account,
		Ticker:        ticker,
		Timestamp:     ts,
		Type:          typ,
		Shares:        decimal.NewFromFloat(shares),
		PricePerShare: decimal.NewFromFloat(price),
		Currency:      "USD",
	})
	require.NoError(t, err)
	return e
}

func TestSQLite_ReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	g := openTestGateway(t)

	e := mustEvent(t, "ACC-001", "MSFT", "2025-01-02T15:04:05Z", "BUY", 10, 415.25)
	id, err := g.InsertEvent(ctx, e)
	require.NoError(t, err)
	assert.Positive(t, id)

	events, err := g.FetchEvents(ctx, tradeledger.Filter{AccountID: "ACC-001", Ticker: "MSFT"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, tradeledger.Buy, got.Type)
	assert.True(t, got.Shares.Equal(tradeledger.Q(10)), "shares %s", got.Shares)
	assert.Equal(t, "415.25", got.PricePerShare.Decimal().String())
	assert.Equal(t, "USD", got.Currency())
	assert.Equal(t, tradeledger.DefaultSource, got.Source)
	assert.True(t, got.Timestamp.Equal(e.Timestamp))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLite_FetchOrderFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	g := openTestGateway(t)

	for _, e := range []tradeledger.Event{
		mustEvent(t, "ACC-001", "MSFT", "2025-01-01T10:00:00Z", "BUY", 10, 400),
		mustEvent(t, "ACC-001", "MSFT", "2025-01-03T10:00:00Z", "PRICE", 0, 410),
		mustEvent(t, "ACC-001", "MSFT", "2025-01-03T10:00:00Z", "SELL", 2, 411),
		mustEvent(t, "ACC-001", "AAPL", "2025-01-02T10:00:00+01:00", "BUY", 5, 200),
		mustEvent(t, "ACC-002", "MSFT", "2025-01-04T10:00:00Z", "BUY", 1, 420),
	} {
		_, err := g.InsertEvent(ctx, e)
		require.NoError(t, err)
	}

	all, err := g.FetchEvents(ctx, tradeledger.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		ok := prev.Timestamp.After(cur.Timestamp) || (prev.Timestamp.Equal(cur.Timestamp) && prev.ID > cur.ID)
		assert.True(t, ok, "events %d and %d are not newest first", prev.ID, cur.ID)
	}
	// same instant: the SELL was inserted after the PRICE.
	assert.Equal(t, tradeledger.Sell, all[1].Type)
	assert.Equal(t, tradeledger.Price, all[2].Type)

	trades, err := g.FetchEvents(ctx, tradeledger.Filter{AccountID: "ACC-001", Types: []tradeledger.EventType{tradeledger.Buy, tradeledger.Sell}})
	require.NoError(t, err)
	assert.Len(t, trades, 3)

	window, err := g.FetchEvents(ctx, tradeledger.Filter{
		AccountID: "ACC-001",
		Start:     time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, window, 3, "bounds are inclusive")

	limited, err := g.FetchEvents(ctx, tradeledger.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	accounts, err := g.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACC-001", "ACC-002"}, accounts)
}

func TestSQLite_ReadOnlyQuery(t *testing.T) {
	ctx := context.Background()
	g := openTestGateway(t)
	_, err := g.InsertEvent(ctx, mustEvent(t, "ACC-001", "MSFT", "2025-01-01T10:00:00Z", "BUY", 10, 400))
	require.NoError(t, err)

	res, err := g.ExecuteReadOnlyQuery(ctx, "SELECT ticker_symbol, COUNT(*) AS n FROM portfolio_event_ledger GROUP BY ticker_symbol")
	require.NoError(t, err)
	assert.Equal(t, []string{"ticker_symbol", "n"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "MSFT", res.Rows[0][0])
	assert.EqualValues(t, 1, res.Rows[0][1])

	// the connection refuses writes even if the guard was bypassed.
	_, err = g.ExecuteReadOnlyQuery(ctx, "DELETE FROM portfolio_event_ledger")
	var uq *tradeledger.UnsupportedQueryError
	assert.True(t, errors.As(err, &uq), "got %v", err)

	events, err := g.FetchEvents(ctx, tradeledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// the pooled connection is writable again afterwards.
	_, err = g.InsertEvent(ctx, mustEvent(t, "ACC-001", "MSFT", "2025-01-02T10:00:00Z", "SELL", 1, 401))
	require.NoError(t, err)
}

func TestSQLite_ConstraintIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	g := openTestGateway(t)
	e := mustEvent(t, "ACC-001", "MSFT", "2025-01-01T10:00:00Z", "BUY", 1, 1)
	e.Type = "DIVIDEND" // bypasses NewEvent validation
	_, err := g.InsertEvent(ctx, e)
	var ie *tradeledger.IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)
}

func TestSchema(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite"} {
		ddl, err := Schema(driver)
		require.NoError(t, err)
		assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS portfolio_event_ledger")
		assert.Contains(t, ddl, "(account_id, ticker_symbol, event_ts DESC)")
	}
	_, err := Schema("mysql")
	assert.Error(t, err)
}
