package tradeledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Store is the ledger table seen through the event store gateway.
type Store interface {
	// FetchEvents returns the events matching f, newest first.
	FetchEvents(ctx context.Context, f Filter) ([]Event, error)
	// InsertEvent appends e in a single transaction and returns its id.
	InsertEvent(ctx context.Context, e Event) (int64, error)
	// ListAccounts returns every distinct account, ascending.
	ListAccounts(ctx context.Context) ([]string, error)
	// ExecuteReadOnlyQuery runs a statement already accepted by CheckReadOnly
	// outside of any write transaction.
	ExecuteReadOnlyQuery(ctx context.Context, sql string) (*QueryResult, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// QueryResult holds the rows of a read-only query.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// MarshalJSON writes rows as objects keyed by column, in column order.
func (q *QueryResult) MarshalJSON() ([]byte, error) {
	rows := make([]json.Marshaler, 0, len(q.Rows))
	for _, row := range q.Rows {
		var w jsonObjectWriter
		for i, col := range q.Columns {
			w.Append(col, row[i])
		}
		rows = append(rows, &w)
	}
	var w jsonObjectWriter
	w.Append("columns", q.Columns)
	w.Append("row_count", len(q.Rows))
	w.Append("rows", rows)
	return w.MarshalJSON()
}

// DefaultLimit caps per-account and per-ticker listings.
const DefaultLimit = 100

// Options configures a Ledger.
type Options struct {
	// Limit caps bounded listings, DefaultLimit if zero.
	Limit int
	// Rules are the anomaly rules. Zero fields take their DefaultRules() value,
	// a non-nil empty IgnoreCapBuckets ignores no bucket.
	Rules Rules
	// Now is the evaluation instant of anomaly rules, time.Now if nil.
	Now func() time.Time
}

// Ledger is the query surface and ingestion gateway over a Store. Every read
// recomputes derived state from freshly fetched events.
type Ledger struct {
	store Store
	limit int
	rules Rules
	now   func() time.Time
}

// NewLedger returns a Ledger reading and writing events through store.
func NewLedger(store Store, opts Options) *Ledger {
	l := &Ledger{store: store, limit: opts.Limit, rules: opts.Rules.withDefaults(), now: opts.Now}
	if l.limit <= 0 {
		l.limit = DefaultLimit
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Limit is the row cap of bounded listings.
func (l *Ledger) Limit() int { return l.limit }

// Quote is the latest observed price of a ticker.
type Quote struct {
	Ticker    string
	Price     Money
	Timestamp time.Time
	AccountID string
	EventID   int64
}

func (q Quote) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("ticker_symbol", q.Ticker)
	w.Append("price_per_share", q.Price)
	w.Append("currency", q.Price.Currency())
	w.Append("event_ts", q.Timestamp)
	w.Append("account_id", q.AccountID)
	w.Append("id", q.EventID)
	return w.MarshalJSON()
}

// Summaries is the positions of every account with the account level flags.
type Summaries struct {
	Positions    []Position
	AccountFlags []Anomaly
}

func (s Summaries) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	positions, flags := s.Positions, s.AccountFlags
	if positions == nil {
		positions = []Position{}
	}
	if flags == nil {
		flags = []Anomaly{}
	}
	w.Append("count", len(positions))
	w.Append("positions", positions)
	w.Append("account_flags", flags)
	return w.MarshalJSON()
}

// ListAccounts returns every account, ascending. It is unbounded.
func (l *Ledger) ListAccounts(ctx context.Context) ([]string, error) {
	accounts, err := l.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if accounts == nil {
		accounts = []string{}
	}
	return accounts, nil
}

// AllSummaries returns the positions of every account. It is unbounded.
func (l *Ledger) AllSummaries(ctx context.Context) (*Summaries, error) {
	report, err := l.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &Summaries{Positions: report.Positions(), AccountFlags: report.AccountFlags()}, nil
}

// Scan analyzes every account of the ledger.
func (l *Ledger) Scan(ctx context.Context) (*ScanReport, error) {
	events, err := l.store.FetchEvents(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	report := l.rules.Scan(events, l.now())
	return &report, nil
}

// PortfolioSummary returns the positions of account, with their flags.
func (l *Ledger) PortfolioSummary(ctx context.Context, account string) ([]Position, error) {
	a, err := l.AnalysisContext(ctx, account)
	if err != nil {
		return nil, err
	}
	if a.Positions == nil {
		return []Position{}, nil
	}
	return a.Positions, nil
}

// AnalysisContext returns the positions, anomalies and summary of account.
func (l *Ledger) AnalysisContext(ctx context.Context, account string) (*AnalysisContext, error) {
	account, err := requireAccount(account)
	if err != nil {
		return nil, err
	}
	events, err := l.store.FetchEvents(ctx, Filter{AccountID: account})
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", account, err)
	}
	a := l.rules.Analyze(account, events, l.now())
	return &a, nil
}

// LatestPrice returns the PRICE event of ticker with maximal (event_ts, id),
// across accounts. It returns ErrNotFound if the ticker was never priced.
func (l *Ledger) LatestPrice(ctx context.Context, ticker string) (*Quote, error) {
	ticker, err := requireTicker(ticker)
	if err != nil {
		return nil, err
	}
	events, err := l.store.FetchEvents(ctx, Filter{Ticker: ticker, Types: []EventType{Price}, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("latest price of %s: %w", ticker, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("latest price of %s: %w", ticker, ErrNotFound)
	}
	e := events[0]
	return &Quote{Ticker: e.Ticker, Price: e.PricePerShare, Timestamp: e.Timestamp, AccountID: e.AccountID, EventID: e.ID}, nil
}

// TradeHistory lists the trades of account, newest first. typ restricts the
// listing to BUY or SELL, the zero value lists both.
func (l *Ledger) TradeHistory(ctx context.Context, account string, typ EventType, start, end time.Time) ([]Event, error) {
	account, err := requireAccount(account)
	if err != nil {
		return nil, err
	}
	types := []EventType{Buy, Sell}
	switch typ {
	case "":
	case Buy, Sell:
		types = []EventType{typ}
	default:
		return nil, &ValidationError{Field: "event_type", Reason: fmt.Sprintf("must be BUY or SELL, got %q", typ)}
	}
	return l.list(ctx, Filter{AccountID: account, Types: types, Start: start, End: end})
}

// AccountEvents lists the events of account, newest first.
func (l *Ledger) AccountEvents(ctx context.Context, account string, start, end time.Time) ([]Event, error) {
	account, err := requireAccount(account)
	if err != nil {
		return nil, err
	}
	return l.list(ctx, Filter{AccountID: account, Start: start, End: end})
}

// AccountTickerEvents lists the events of one position, newest first.
func (l *Ledger) AccountTickerEvents(ctx context.Context, account, ticker string, start, end time.Time) ([]Event, error) {
	account, err := requireAccount(account)
	if err != nil {
		return nil, err
	}
	ticker, err = requireTicker(ticker)
	if err != nil {
		return nil, err
	}
	return l.list(ctx, Filter{AccountID: account, Ticker: ticker, Start: start, End: end})
}

// TickerEvents lists the events of ticker across accounts, newest first.
func (l *Ledger) TickerEvents(ctx context.Context, ticker string, start, end time.Time) ([]Event, error) {
	ticker, err := requireTicker(ticker)
	if err != nil {
		return nil, err
	}
	return l.list(ctx, Filter{Ticker: ticker, Start: start, End: end})
}

// Events lists every event matching f without applying the default cap.
func (l *Ledger) Events(ctx context.Context, f Filter) ([]Event, error) {
	if err := checkWindow(f.Start, f.End); err != nil {
		return nil, err
	}
	events, err := l.store.FetchEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	return events, nil
}

// RunQuery executes a raw SQL statement after CheckReadOnly accepted it.
// Rejected statements never reach the store.
func (l *Ledger) RunQuery(ctx context.Context, sql string) (*QueryResult, error) {
	if err := CheckReadOnly(sql); err != nil {
		return nil, err
	}
	res, err := l.store.ExecuteReadOnlyQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	return res, nil
}

// Ping checks that the store is reachable.
func (l *Ledger) Ping(ctx context.Context) error { return l.store.Ping(ctx) }

func (l *Ledger) list(ctx context.Context, f Filter) ([]Event, error) {
	f.Limit = l.limit
	events, err := l.Events(ctx, f)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

func requireAccount(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", &ValidationError{Field: "account_id", Reason: "is required"}
	}
	return account, nil
}

func requireTicker(ticker string) (string, error) {
	ticker = normalizeTicker(ticker)
	if ticker == "" {
		return "", &ValidationError{Field: "ticker_symbol", Reason: "is required"}
	}
	return ticker, nil
}

func checkWindow(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return &ValidationError{Field: "start_ts", Reason: fmt.Sprintf("%s is after end_ts %s", start.Format(time.RFC3339), end.Format(time.RFC3339))}
	}
	return nil
}
