package tradeledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the kind of a ledger event.
type EventType string

const (
	Buy   EventType = "BUY"
	Sell  EventType = "SELL"
	Price EventType = "PRICE"
)

// ParseEventType parses exactly one of BUY, SELL or PRICE.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case Buy, Sell, Price:
		return t, nil
	default:
		return "", &ValidationError{Field: "event_type", Reason: fmt.Sprintf("must be one of BUY, SELL, PRICE, got %q", s)}
	}
}

// IsTrade reports whether t is a BUY or a SELL.
func (t EventType) IsTrade() bool { return t == Buy || t == Sell }

func (t EventType) String() string { return string(t) }

// Event is one immutable row of the ledger.
//
// ID and CreatedAt are assigned by the store on insert.
type Event struct {
	ID            int64
	AccountID     string
	Ticker        string
	Timestamp     time.Time
	Type          EventType
	Shares        Quantity
	PricePerShare Money
	Source        string
	CreatedAt     time.Time
}

// Currency is the currency of the event price.
func (e Event) Currency() string { return e.PricePerShare.Currency() }

// Amount is shares × price_per_share.
func (e Event) Amount() Money { return e.PricePerShare.Mul(e.Shares) }

// newer reports whether e sorts after f in the (event_ts, id) order.
func (e Event) newer(f Event) bool {
	if e.Timestamp.Equal(f.Timestamp) {
		return e.ID > f.ID
	}
	return e.Timestamp.After(f.Timestamp)
}

// MarshalJSON writes the event using the ledger column names.
func (e Event) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Optional("id", e.ID)
	w.Append("account_id", e.AccountID)
	w.Append("ticker_symbol", e.Ticker)
	w.Append("event_ts", e.Timestamp.UTC().Format(time.RFC3339Nano))
	w.Append("event_type", e.Type)
	w.Append("shares", e.Shares)
	w.Append("price_per_share", e.PricePerShare)
	w.Append("currency", e.Currency())
	w.Append("source", e.Source)
	if !e.CreatedAt.IsZero() {
		w.Append("created_at", e.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	return w.MarshalJSON()
}

// UnmarshalJSON reads an event written by MarshalJSON. It does not validate
// it, see NewEvent.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw struct {
		RawEvent
		ID        int64     `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid event_ts %q: %w", raw.Timestamp, err)
	}
	*e = Event{
		ID:            raw.ID,
		AccountID:     raw.AccountID,
		Ticker:        raw.Ticker,
		Timestamp:     ts,
		Type:          EventType(raw.Type),
		Shares:        Q(raw.Shares),
		PricePerShare: M(raw.PricePerShare, raw.Currency),
		Source:        raw.Source,
		CreatedAt:     raw.CreatedAt,
	}
	return nil
}

// Filter selects events in the store.
//
// Zero fields do not filter. Start and End are inclusive. A zero Limit means
// every matching row. Results are ordered newest first (event_ts desc, id desc).
type Filter struct {
	AccountID string
	Ticker    string
	Types     []EventType
	Start     time.Time
	End       time.Time
	Limit     int
}
