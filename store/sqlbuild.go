package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/tradeledger"
)

// dialect holds what differs in the SQL of the two backends.
type dialect struct {
	// placeholder returns the bind marker of the n-th argument (1 based).
	placeholder func(n int) string
	// columns selected for an Event, in scan order.
	columns string
	// timestamp converts an instant to its bind value.
	timestamp func(time.Time) any
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	columns:     "id, account_id, ticker_symbol, event_ts, event_type, shares::text, price_per_share::text, currency, source, created_at",
	timestamp:   func(t time.Time) any { return t },
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	columns:     "id, account_id, ticker_symbol, event_ts, event_type, shares, price_per_share, currency, source, created_at",
	timestamp:   func(t time.Time) any { return formatSQLiteTime(t) },
}

// fetchQuery builds the SELECT for f. Only bind markers depend on f, values
// are always passed as arguments.
func (d dialect) fetchQuery(f tradeledger.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}
	if f.AccountID != "" {
		where = append(where, "account_id = "+bind(f.AccountID))
	}
	if f.Ticker != "" {
		where = append(where, "ticker_symbol = "+bind(f.Ticker))
	}
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = bind(string(t))
		}
		where = append(where, fmt.Sprintf("event_type IN (%s)", strings.Join(marks, ", ")))
	}
	if !f.Start.IsZero() {
		where = append(where, "event_ts >= "+bind(d.timestamp(f.Start)))
	}
	if !f.End.IsZero() {
		where = append(where, "event_ts <= "+bind(d.timestamp(f.End)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(d.columns)
	b.WriteString(" FROM ")
	b.WriteString(tradeledger.LedgerTable)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY event_ts DESC, id DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(bind(f.Limit))
	}
	return b.String(), args
}

func (d dialect) insertQuery() string {
	marks := make([]string, 9)
	for i := range marks {
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (account_id, ticker_symbol, event_ts, event_type, shares, price_per_share, currency, source, created_at) VALUES (%s) RETURNING id",
		tradeledger.LedgerTable, strings.Join(marks, ", "))
}

const listAccountsQuery = "SELECT DISTINCT account_id FROM " + tradeledger.LedgerTable + " ORDER BY account_id"

// scanned event columns, before conversion.
type eventRow struct {
	id            int64
	account       string
	ticker        string
	typ           string
	shares, price string
	currency      string
	source        string
}

func (r eventRow) event(ts, created time.Time) (tradeledger.Event, error) {
	shares, err := tradeledger.ParseQuantity(r.shares)
	if err != nil {
		return tradeledger.Event{}, fmt.Errorf("event %d: invalid shares %q: %w", r.id, r.shares, err)
	}
	price, err := tradeledger.ParseMoney(r.price, r.currency)
	if err != nil {
		return tradeledger.Event{}, fmt.Errorf("event %d: invalid price_per_share %q: %w", r.id, r.price, err)
	}
	return tradeledger.Event{
		ID:            r.id,
		AccountID:     r.account,
		Ticker:        r.ticker,
		Timestamp:     ts,
		Type:          tradeledger.EventType(r.typ),
		Shares:        shares,
		PricePerShare: price,
		Source:        r.source,
		CreatedAt:     created,
	}, nil
}
