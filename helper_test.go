package tradeledger

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

// now is the evaluation instant of the anomaly rules in tests.
var now = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

// ts parses an RFC 3339 instant or panics.
func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// ev is a shorthand for a USD event with an id.
func ev(id int64, account, ticker, at string, typ EventType, shares, price float64) Event {
	return Event{
		ID:            id,
		AccountID:     account,
		Ticker:        ticker,
		Timestamp:     ts(at),
		Type:          typ,
		Shares:        Q(shares),
		PricePerShare: USD(price),
		Source:        DefaultSource,
	}
}

// scenarioA is BUY 10@415.25, PRICE 416.10, SELL 5@417.50 on ACC-001/MSFT.
func scenarioA() []Event {
	return []Event{
		ev(1, "ACC-001", "MSFT", "2025-02-20T14:30:00Z", Buy, 10, 415.25),
		ev(2, "ACC-001", "MSFT", "2025-02-21T21:00:00Z", Price, 0, 416.10),
		ev(3, "ACC-001", "MSFT", "2025-02-24T15:00:00Z", Sell, 5, 417.50),
	}
}

// positionView is a comparable rendering of a Position. Nil values are "null".
type positionView struct {
	Account, Ticker, Currency                 string
	NetShares, NetCost, LastPrice, AvgCost    string
	UnrealizedPnL, PortfolioWeight, BuyShares string
}

func fixed(d decimal.Decimal, places int32) string { return d.StringFixed(places) }

func nullable[T any](v *T, format func(T) string) string {
	if v == nil {
		return "null"
	}
	return format(*v)
}

func fixedMoney(m Money) string { return fixed(m.Decimal(), 2) }

func view(p Position) positionView {
	return positionView{
		Account:         p.AccountID,
		Ticker:          p.Ticker,
		Currency:        p.Currency,
		NetShares:       p.NetShares.StringFixed(2),
		NetCost:         fixedMoney(p.NetCost),
		LastPrice:       nullable(p.LastPrice, fixedMoney),
		AvgCost:         nullable(p.AvgCostPerShare, fixedMoney),
		UnrealizedPnL:   nullable(p.UnrealizedPnL, fixedMoney),
		PortfolioWeight: nullable(p.PortfolioWeight, func(d decimal.Decimal) string { return fixed(d, 4) }),
		BuyShares:       p.BuyShares.StringFixed(2),
	}
}

// memStore is an in-memory Store with the ordering and filtering of the SQL
// backends.
type memStore struct {
	mu      sync.Mutex
	events  []Event
	queries []string
	fail    error
}

func newMemStore(events ...Event) *memStore {
	return &memStore{events: slices.Clone(events)}
}

func (s *memStore) FetchEvents(_ context.Context, f Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	var out []Event
	for _, e := range s.events {
		switch {
		case f.AccountID != "" && e.AccountID != f.AccountID,
			f.Ticker != "" && e.Ticker != f.Ticker,
			len(f.Types) > 0 && !slices.Contains(f.Types, e.Type),
			!f.Start.IsZero() && e.Timestamp.Before(f.Start),
			!f.End.IsZero() && e.Timestamp.After(f.End):
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Event) int {
		return cmp.Or(b.Timestamp.Compare(a.Timestamp), cmp.Compare(b.ID, a.ID))
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) InsertEvent(_ context.Context, e Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}
	e.ID = int64(len(s.events) + 1)
	e.CreatedAt = now
	s.events = append(s.events, e)
	return e.ID, nil
}

func (s *memStore) ListAccounts(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var accounts []string
	for _, e := range s.events {
		if !slices.Contains(accounts, e.AccountID) {
			accounts = append(accounts, e.AccountID)
		}
	}
	slices.Sort(accounts)
	return accounts, nil
}

func (s *memStore) ExecuteReadOnlyQuery(_ context.Context, sql string) (*QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, sql)
	return &QueryResult{Columns: []string{"n"}, Rows: [][]any{{int64(len(s.events))}}}, nil
}

func (s *memStore) Ping(context.Context) error { return s.fail }

func newTestLedger(t *testing.T, events ...Event) (*Ledger, *memStore) {
	t.Helper()
	store := newMemStore(events...)
	return NewLedger(store, Options{Now: func() time.Time { return now }}), store
}
