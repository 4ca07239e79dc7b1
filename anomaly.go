package tradeledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/etnz/tradeledger/date"
	"github.com/shopspring/decimal"
)

// Flag is a deterministic data-quality signal.
type Flag string

// Position flags.
const (
	Oversell         Flag = "oversell"
	MissingPrice     Flag = "missing_price"
	StalePrice       Flag = "stale_price"
	MissingCostBasis Flag = "missing_cost_basis"
	NegativeNetCost  Flag = "negative_net_cost"
)

// Account flags, raised by cross-account scans.
const (
	SectorConcentration    Flag = "sector_concentration"
	MarketCapConcentration Flag = "market_cap_concentration"
	HighChurn              Flag = "high_churn"
)

// Anomaly is a flag raised on a position, or on an account when Ticker is empty.
type Anomaly struct {
	Flag      Flag   `json:"flag"`
	AccountID string `json:"account_id"`
	Ticker    string `json:"ticker_symbol,omitempty"`
	Details   string `json:"details"`
}

// Rules holds the tunable thresholds of the anomaly rules.
type Rules struct {
	// StaleAfter is the age after which the last price of a position is stale.
	StaleAfter time.Duration
	// ChurnPerWeek is the trade rate above which an account churns.
	ChurnPerWeek float64
	// ConcentrationThreshold is the market value share above which a sector or
	// a cap bucket dominates an account.
	ConcentrationThreshold float64
	// IgnoreCapBuckets lists cap buckets that never raise a concentration.
	IgnoreCapBuckets []string
	// Classifier supplies sectors and cap buckets. Nil disables concentration
	// flags, except in NewLedger which uses the embedded classifier.
	Classifier Classifier
}

// DefaultRules returns the default thresholds with the embedded classifier.
func DefaultRules() Rules {
	return Rules{
		StaleAfter:             30 * date.Day,
		ChurnPerWeek:           1.5,
		ConcentrationThreshold: 0.5,
		IgnoreCapBuckets:       []string{"large"},
		Classifier:             DefaultClassifier(),
	}
}

// withDefaults fills the zero fields of r from DefaultRules.
func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.StaleAfter <= 0 {
		r.StaleAfter = d.StaleAfter
	}
	if r.ChurnPerWeek <= 0 {
		r.ChurnPerWeek = d.ChurnPerWeek
	}
	if r.ConcentrationThreshold <= 0 {
		r.ConcentrationThreshold = d.ConcentrationThreshold
	}
	if r.IgnoreCapBuckets == nil {
		r.IgnoreCapBuckets = d.IgnoreCapBuckets
	}
	if r.Classifier == nil {
		r.Classifier = d.Classifier
	}
	return r
}

// positionFlags evaluates the position rules at instant now. Rules are
// independent, a position may carry several flags.
func (r Rules) positionFlags(p Position, now time.Time) []Anomaly {
	var out []Anomaly
	raise := func(f Flag, format string, args ...any) {
		out = append(out, Anomaly{Flag: f, AccountID: p.AccountID, Ticker: p.Ticker, Details: fmt.Sprintf(format, args...)})
	}
	if p.NetShares.IsNegative() {
		raise(Oversell, "net shares %s < 0", p.NetShares)
	}
	if p.LastPrice == nil && !p.NetShares.IsZero() {
		raise(MissingPrice, "no PRICE event for %s shares held", p.NetShares)
	}
	if p.LastPriceTS != nil && now.Sub(*p.LastPriceTS) > r.StaleAfter {
		raise(StalePrice, "last price on %s, %d days before %s", date.Of(*p.LastPriceTS), date.Of(now).Sub(date.Of(*p.LastPriceTS)), date.Of(now))
	}
	if p.NetShares.IsPositive() && p.AvgCostPerShare == nil {
		raise(MissingCostBasis, "%s shares held without any BUY", p.NetShares)
	}
	if p.NetCost.IsNegative() {
		raise(NegativeNetCost, "net cost %s < 0", p.NetCost)
	}
	return out
}

// concentrationFlags weighs the priced positions of one account by sector
// and cap bucket. Unclassified tickers count in the total but form no bucket.
func (r Rules) concentrationFlags(account string, positions []Position) []Anomaly {
	if r.Classifier == nil {
		return nil
	}
	total := decimal.Zero
	sectors := make(map[string]decimal.Decimal)
	caps := make(map[string]decimal.Decimal)
	for _, p := range positions {
		mv := p.MarketValue()
		if mv == nil || !mv.IsPositive() {
			continue
		}
		total = total.Add(mv.value)
		c, ok := r.Classifier.Classify(p.Ticker)
		if !ok {
			continue
		}
		if c.Sector != "" {
			sectors[c.Sector] = sectors[c.Sector].Add(mv.value)
		}
		if c.CapBucket != "" {
			caps[c.CapBucket] = caps[c.CapBucket].Add(mv.value)
		}
	}
	if total.IsZero() {
		return nil
	}
	threshold := decimal.NewFromFloat(r.ConcentrationThreshold)
	var out []Anomaly
	check := func(f Flag, kind string, buckets map[string]decimal.Decimal) {
		names := make([]string, 0, len(buckets))
		for name := range buckets {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			w := buckets[name].Div(total)
			if w.GreaterThan(threshold) {
				out = append(out, Anomaly{Flag: f, AccountID: account, Details: fmt.Sprintf("%s %s is %s%% of market value", kind, name, w.Shift(2).StringFixed(1))})
			}
		}
	}
	check(SectorConcentration, "sector", sectors)
	for _, b := range r.IgnoreCapBuckets {
		delete(caps, b)
	}
	check(MarketCapConcentration, "cap bucket", caps)
	return out
}

// churnFlag computes the trade rate of one account: trades ÷ weeks, where
// weeks is the active-day span (first to last trade day, inclusive) over
// seven, at least one.
func (r Rules) churnFlag(account string, events []Event) []Anomaly {
	var (
		trades      int
		first, last time.Time
	)
	for _, e := range events {
		if e.AccountID != account || !e.Type.IsTrade() {
			continue
		}
		trades++
		if first.IsZero() || e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	if trades == 0 {
		return nil
	}
	span := date.Range{From: date.Of(first), To: date.Of(last)}.Days()
	weeks := max(1, float64(span)/7)
	rate := float64(trades) / weeks
	if rate <= r.ChurnPerWeek {
		return nil
	}
	return []Anomaly{{Flag: HighChurn, AccountID: account, Details: fmt.Sprintf("%.2f trades/week (%d trades over %d days)", rate, trades, span)}}
}
