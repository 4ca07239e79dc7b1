package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/config"
	"github.com/etnz/tradeledger/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testNow is the evaluation instant of the anomaly rules in tests.
var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestLedger returns a ledger over a fresh SQLite file holding events.
func newTestLedger(t *testing.T, events ...tradeledger.RawEvent) *tradeledger.Ledger {
	t.Helper()
	cfg := config.Default().Store
	cfg.Driver = "sqlite"
	cfg.DSN = filepath.Join(t.TempDir(), "ledger.db")
	g, err := store.Open(context.Background(), cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	l := tradeledger.NewLedger(g, tradeledger.Options{Now: func() time.Time { return testNow }})
	for _, e := range events {
		_, err := l.Insert(context.Background(), e)
		require.NoError(t, err)
	}
	return l
}

func rawEvent(account, ticker, ts, typ string, shares, price string) tradeledger.RawEvent {
	return tradeledger.RawEvent{
		AccountID:     account,
		Ticker:        ticker,
		Timestamp:     ts,
		Type:          typ,
		Shares:        decimal.RequireFromString(shares),
		PricePerShare: decimal.RequireFromString(price),
		Currency:      "USD",
	}
}

// scenarioA is BUY 10@415.25, PRICE 416.10, SELL 5@417.50 on ACC-001/MSFT.
func scenarioA() []tradeledger.RawEvent {
	return []tradeledger.RawEvent{
		rawEvent("ACC-001", "MSFT", "2025-02-20T14:30:00Z", "BUY", "10", "415.25"),
		rawEvent("ACC-001", "MSFT", "2025-02-21T21:00:00Z", "PRICE", "0", "416.10"),
		rawEvent("ACC-001", "MSFT", "2025-02-24T15:00:00Z", "SELL", "5", "417.50"),
	}
}

// decimalOf reads a JSON number of a tool payload as a decimal.
func decimalOf(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	n, ok := v.(json.Number)
	require.Truef(t, ok, "%v (%T) is not a JSON number", v, v)
	return decimal.RequireFromString(n.String())
}

// errorKind returns the kind of an error payload, "" for a success payload.
func errorKind(payload map[string]any) string {
	e, ok := payload["error"].(map[string]any)
	if !ok {
		return ""
	}
	kind, _ := e["kind"].(string)
	return kind
}
