package tradeledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/tradeledger/date"
	"github.com/shopspring/decimal"
)

// DefaultSource is the source recorded for events inserted without one.
const DefaultSource = "api"

// RawEvent is an event as submitted for insertion, before validation.
type RawEvent struct {
	AccountID     string          `json:"account_id"`
	Ticker        string          `json:"ticker_symbol"`
	Timestamp     string          `json:"event_ts"`
	Type          string          `json:"event_type"`
	Shares        decimal.Decimal `json:"shares"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	Currency      string          `json:"currency"`
	Source        string          `json:"source"`
}

// timestamp layouts accepted for event_ts. All of them carry a zone offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999-07",
}

// ParseTimestamp parses a timezone-aware instant. Timestamps without an
// explicit offset are rejected.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ValidationError{Field: "event_ts", Reason: "is required"}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Field: "event_ts", Reason: fmt.Sprintf("%q is not a timestamp with a timezone offset (e.g. 2025-01-02T15:04:05Z)", s)}
}

// ParseWindow parses the inclusive bounds of an event listing. Each bound is
// either a timestamp with offset or a day (see date.Parse), a start day
// begins at midnight UTC and an end day covers the whole day. Empty bounds
// are zero and do not filter.
func ParseWindow(start, end string) (from, to time.Time, err error) {
	if from, err = parseBound("start_ts", start, date.Date.Start); err != nil {
		return
	}
	to, err = parseBound("end_ts", end, date.Date.End)
	return
}

func parseBound(field, s string, of func(date.Date) time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := ParseTimestamp(s); err == nil {
		return t, nil
	}
	d, err := date.Parse(s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Reason: "expected a timestamp with offset, a YYYY-MM-DD day or a relative day like -7d"}
	}
	return of(d), nil
}

// NewEvent validates raw and returns the Event to append.
//
// It does not reject events that would oversell a position: the ledger records
// what happened, oversell is reported as an anomaly.
func NewEvent(raw RawEvent) (Event, error) {
	account := strings.TrimSpace(raw.AccountID)
	if account == "" {
		return Event{}, &ValidationError{Field: "account_id", Reason: "is required"}
	}
	ticker := normalizeTicker(raw.Ticker)
	if ticker == "" {
		return Event{}, &ValidationError{Field: "ticker_symbol", Reason: "is required"}
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return Event{}, err
	}
	typ, err := ParseEventType(raw.Type)
	if err != nil {
		return Event{}, err
	}
	if raw.Shares.IsNegative() {
		return Event{}, &ValidationError{Field: "shares", Reason: "must be >= 0"}
	}
	if err := checkPrecision("shares", raw.Shares); err != nil {
		return Event{}, err
	}
	if typ == Price && !raw.Shares.IsZero() {
		return Event{}, &ValidationError{Field: "shares", Reason: "must be 0 for a PRICE event"}
	}
	if !raw.PricePerShare.IsPositive() {
		return Event{}, &ValidationError{Field: "price_per_share", Reason: "must be > 0"}
	}
	if err := checkPrecision("price_per_share", raw.PricePerShare); err != nil {
		return Event{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		return Event{}, &ValidationError{Field: "currency", Reason: "is required"}
	}
	source := strings.TrimSpace(raw.Source)
	if source == "" {
		source = DefaultSource
	}
	return Event{
		AccountID:     account,
		Ticker:        ticker,
		Timestamp:     ts,
		Type:          typ,
		Shares:        Q(raw.Shares),
		PricePerShare: M(raw.PricePerShare, currency),
		Source:        source,
	}, nil
}

// Decimal columns of the ledger are NUMERIC(20, 6).
const (
	MaxScale     = 6
	maxIntDigits = 20 - MaxScale
)

var maxMagnitude = decimal.New(1, maxIntDigits)

// checkPrecision rejects values the ledger columns cannot store exactly.
func checkPrecision(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(MaxScale)) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("has more than %d decimal places", MaxScale)}
	}
	if d.Abs().GreaterThanOrEqual(maxMagnitude) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("has more than %d integer digits", maxIntDigits)}
	}
	return nil
}

// Insert validates raw and appends it to the ledger. It returns the id
// assigned by the store.
func (l *Ledger) Insert(ctx context.Context, raw RawEvent) (int64, error) {
	e, err := NewEvent(raw)
	if err != nil {
		return 0, err
	}
	id, err := l.store.InsertEvent(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("insert %s %s for %s: %w", e.Type, e.Ticker, e.AccountID, err)
	}
	return id, nil
}

func normalizeTicker(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
