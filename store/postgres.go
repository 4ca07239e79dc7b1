package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgres struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// acquireError is a failure to obtain a pooled connection in time.
type acquireError struct{ err error }

func (e *acquireError) Error() string { return fmt.Sprintf("acquire connection: %v", e.err) }
func (e *acquireError) Unwrap() error { return e.err }

func openPostgres(ctx context.Context, cfg config.StoreConfig) (*postgres, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = min(cfg.MinConns, pc.MaxConns)
	}
	if pc.ConnConfig.RuntimeParams == nil {
		pc.ConnConfig.RuntimeParams = make(map[string]string)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "tlg"
	if d := cfg.StatementTimeout.Std(); d > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(d.Milliseconds(), 10)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return &postgres{pool: pool, acquireTimeout: cfg.AcquireTimeout.Std()}, nil
}

// with runs fn on a pooled connection acquired within the acquire timeout.
func (p *postgres) with(ctx context.Context, fn func(*pgxpool.Conn) error) error {
	actx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	conn, err := p.pool.Acquire(actx)
	if err != nil {
		return &acquireError{err}
	}
	defer conn.Release()
	return fn(conn)
}

func (p *postgres) fetchEvents(ctx context.Context, f tradeledger.Filter) ([]tradeledger.Event, error) {
	query, args := postgresDialect.fetchQuery(f)
	var events []tradeledger.Event
	err := p.with(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		events, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (tradeledger.Event, error) {
			var (
				r           eventRow
				ts, created time.Time
			)
			if err := row.Scan(&r.id, &r.account, &r.ticker, &ts, &r.typ, &r.shares, &r.price, &r.currency, &r.source, &created); err != nil {
				return tradeledger.Event{}, err
			}
			return r.event(ts, created)
		})
		return err
	})
	return events, err
}

func (p *postgres) insertEvent(ctx context.Context, e tradeledger.Event) (int64, error) {
	var id int64
	err := p.with(ctx, func(conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, postgresDialect.insertQuery(),
			e.AccountID, e.Ticker, e.Timestamp, string(e.Type),
			e.Shares.Decimal(), e.PricePerShare.Decimal(), e.Currency(), e.Source, e.CreatedAt,
		).Scan(&id)
	})
	return id, err
}

func (p *postgres) listAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := p.with(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, listAccountsQuery)
		if err != nil {
			return err
		}
		accounts, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	return accounts, err
}

// query runs sql in a READ ONLY transaction that is always rolled back.
func (p *postgres) query(ctx context.Context, sql string) (*tradeledger.QueryResult, error) {
	res := &tradeledger.QueryResult{}
	err := p.with(ctx, func(conn *pgxpool.Conn) error {
		tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
		if err != nil {
			return err
		}
		defer tx.Rollback(context.WithoutCancel(ctx))

		rows, err := tx.Query(ctx, sql)
		if err != nil {
			return err
		}
		defer rows.Close()
		for _, fd := range rows.FieldDescriptions() {
			res.Columns = append(res.Columns, fd.Name)
		}
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return err
			}
			for i, v := range values {
				values[i] = jsonValue(v)
			}
			res.Rows = append(res.Rows, values)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *postgres) ping(ctx context.Context) error {
	return p.with(ctx, func(conn *pgxpool.Conn) error { return conn.Ping(ctx) })
}

func (p *postgres) exec(ctx context.Context, script string) error {
	return p.with(ctx, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, script)
		return err
	})
}

func (p *postgres) close() error {
	p.pool.Close()
	return nil
}

// transient SQLSTATE codes besides the connection exception class 08.
var transientCodes = map[string]bool{
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

func (p *postgres) classify(err error, write bool) (error, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch code := pgErr.Code; {
		case strings.HasPrefix(code, "08"), transientCodes[code]:
			return err, true
		case strings.HasPrefix(code, "23"):
			return &tradeledger.IntegrityError{Err: err}, false
		case strings.HasPrefix(code, "22"):
			return &tradeledger.ValidationError{Field: pgErr.ColumnName, Reason: pgErr.Message}, false
		case code == "25006": // read_only_sql_transaction
			return &tradeledger.UnsupportedQueryError{Reason: pgErr.Message}, false
		case strings.HasPrefix(code, "42"):
			return &tradeledger.ValidationError{Field: "sql", Reason: pgErr.Message}, false
		default:
			return err, false
		}
	}
	var ae *acquireError
	if errors.As(err, &ae) || pgconn.SafeToRetry(err) {
		return err, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || pgconn.Timeout(err) {
		if write {
			// the insert may have been committed.
			return &tradeledger.TransientStoreError{Attempts: 1, Err: err}, false
		}
		return err, true
	}
	return err, false
}

// jsonValue converts a driver value to a JSON friendly one. Numerics become
// decimal strings.
func jsonValue(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return jsonValue(dv)
	default:
		return v
	}
}
