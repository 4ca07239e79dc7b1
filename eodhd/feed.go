package eodhd

import (
	"context"
	"fmt"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/etnz/tradeledger/date"
)

// Source is recorded on the PRICE events of the feed.
const Source = "eodhd"

// Inserter appends events to the ledger.
type Inserter interface {
	Insert(ctx context.Context, raw tradeledger.RawEvent) (int64, error)
}

// closeTime is the timestamp of the PRICE event of a daily close: the last
// second of the day, UTC.
func closeTime(d date.Date) time.Time { return d.Start().Add(date.Day - time.Second) }

// Record appends one PRICE event per close to account, in order, and returns
// how many were recorded before the first error.
func Record(ctx context.Context, l Inserter, account, ticker, currency string, closes []Close) (int, error) {
	for i, c := range closes {
		raw := tradeledger.RawEvent{
			AccountID:     account,
			Ticker:        ticker,
			Timestamp:     closeTime(c.Day).Format(time.RFC3339),
			Type:          string(tradeledger.Price),
			PricePerShare: c.Price,
			Currency:      currency,
			Source:        Source,
		}
		if _, err := l.Insert(ctx, raw); err != nil {
			return i, fmt.Errorf("record %s close of %s: %w", ticker, c.Day, err)
		}
	}
	return len(closes), nil
}
