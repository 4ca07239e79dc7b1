package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/config"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTime is the storage format of instants: fixed width UTC, so that the
// lexical order of the column is the chronological order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func formatSQLiteTime(t time.Time) string { return t.UTC().Format(sqliteTime) }

func parseSQLiteTime(s string) (time.Time, error) { return time.Parse(sqliteTime, s) }

type sqliteDB struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, cfg config.StoreConfig) (*sqliteDB, error) {
	dsn := cfg.DSN
	if !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		busy := max(cfg.AcquireTimeout.Std(), time.Second)
		dsn += fmt.Sprintf("%s_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", sep, busy.Milliseconds())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
	}
	return &sqliteDB{db: db}, nil
}

func (s *sqliteDB) fetchEvents(ctx context.Context, f tradeledger.Filter) ([]tradeledger.Event, error) {
	query, args := sqliteDialect.fetchQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []tradeledger.Event
	for rows.Next() {
		var (
			r           eventRow
			ts, created string
		)
		if err := rows.Scan(&r.id, &r.account, &r.ticker, &ts, &r.typ, &r.shares, &r.price, &r.currency, &r.source, &created); err != nil {
			return nil, err
		}
		t, err := parseSQLiteTime(ts)
		if err != nil {
			return nil, fmt.Errorf("event %d: invalid event_ts: %w", r.id, err)
		}
		c, err := parseSQLiteTime(created)
		if err != nil {
			return nil, fmt.Errorf("event %d: invalid created_at: %w", r.id, err)
		}
		e, err := r.event(t, c)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *sqliteDB) insertEvent(ctx context.Context, e tradeledger.Event) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, sqliteDialect.insertQuery(),
		e.AccountID, e.Ticker, formatSQLiteTime(e.Timestamp), string(e.Type),
		e.Shares.String(), e.PricePerShare.Decimal().String(), e.Currency(), e.Source, formatSQLiteTime(e.CreatedAt),
	).Scan(&id)
	return id, err
}

func (s *sqliteDB) listAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, listAccountsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// query runs sql on a connection switched to query_only for the duration of
// the statement.
func (s *sqliteDB) query(ctx context.Context, query string) (*tradeledger.QueryResult, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, err
	}
	defer conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA query_only = OFF")

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &tradeledger.QueryResult{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = jsonValue(v)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *sqliteDB) ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqliteDB) exec(ctx context.Context, script string) error {
	_, err := s.db.ExecContext(ctx, script)
	return err
}

func (s *sqliteDB) close() error { return s.db.Close() }

func (s *sqliteDB) classify(err error, write bool) (error, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err, false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		// the statement was not executed.
		return err, true
	case sqlite3.SQLITE_CONSTRAINT:
		return &tradeledger.IntegrityError{Err: err}, false
	case sqlite3.SQLITE_READONLY:
		return &tradeledger.UnsupportedQueryError{Reason: se.Error()}, false
	case sqlite3.SQLITE_ERROR:
		return &tradeledger.ValidationError{Field: "sql", Reason: se.Error()}, false
	default:
		return err, false
	}
}
