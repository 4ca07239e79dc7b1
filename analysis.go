package tradeledger

import (
	"slices"
	"time"

	"github.com/etnz/tradeledger/date"
)

// AnalysisContext bundles the positions of an account, or of every account,
// with their anomalies and summary metadata.
type AnalysisContext struct {
	// AccountID is empty for cross-account contexts.
	AccountID string
	AsOf      date.Date
	Positions []Position
	Anomalies []Anomaly
	// TotalMarketValue sums the market value of priced positions. Its currency
	// is empty when positions mix currencies.
	TotalMarketValue   Money
	PositionsWithPrice int
	PositionsNoPrice   int
}

func (a AnalysisContext) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Optional("account_id", a.AccountID)
	w.Append("as_of_date", a.AsOf)
	w.Append("total_market_value", a.TotalMarketValue)
	w.Append("currency", a.TotalMarketValue.Currency())
	w.Append("positions_with_price", a.PositionsWithPrice)
	w.Append("positions_no_price", a.PositionsNoPrice)
	positions := a.Positions
	if positions == nil {
		positions = []Position{}
	}
	w.Append("positions", positions)
	anomalies := a.Anomalies
	if anomalies == nil {
		anomalies = []Anomaly{}
	}
	w.Append("anomalies", anomalies)
	return w.MarshalJSON()
}

// Analyze aggregates events and evaluates the position rules at instant now.
// account is recorded as is and does not filter events.
func (r Rules) Analyze(account string, events []Event, now time.Time) AnalysisContext {
	ctx := AnalysisContext{
		AccountID: account,
		AsOf:      date.Of(now),
		Positions: Aggregate(events),
	}
	var total Money
	currency, mixed := "", false
	for i := range ctx.Positions {
		p := &ctx.Positions[i]
		for _, a := range r.positionFlags(*p, now) {
			p.Flags = append(p.Flags, a.Flag)
			ctx.Anomalies = append(ctx.Anomalies, a)
		}
		mv := p.MarketValue()
		if mv == nil {
			ctx.PositionsNoPrice++
			continue
		}
		ctx.PositionsWithPrice++
		total.value = total.value.Add(mv.value)
		switch {
		case ctx.PositionsWithPrice == 1:
			currency = p.Currency
		case currency != p.Currency:
			mixed = true
		}
	}
	if !mixed {
		total.cur = currency
	}
	ctx.TotalMarketValue = total
	return ctx
}

// AccountReport is the analysis of one account in a cross-account scan.
type AccountReport struct {
	AnalysisContext
	// Flags are the account level anomalies (concentration, churn).
	Flags []Anomaly
}

func (a AccountReport) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("account_id", a.AccountID)
	w.Append("context", a.AnalysisContext)
	flags := a.Flags
	if flags == nil {
		flags = []Anomaly{}
	}
	w.Append("account_flags", flags)
	return w.MarshalJSON()
}

// ScanReport is the analysis of every account of the ledger.
type ScanReport struct {
	AsOf     date.Date       `json:"as_of_date"`
	Accounts []AccountReport `json:"accounts"`
}

// AccountFlags lists the account level anomalies of every account.
func (s ScanReport) AccountFlags() []Anomaly {
	out := []Anomaly{}
	for _, a := range s.Accounts {
		out = append(out, a.Flags...)
	}
	return out
}

// Positions lists the positions of every account.
func (s ScanReport) Positions() []Position {
	out := []Position{}
	for _, a := range s.Accounts {
		out = append(out, a.Positions...)
	}
	return out
}

// Scan analyzes each account found in events, ascending by account, and adds
// the account level flags.
func (r Rules) Scan(events []Event, now time.Time) ScanReport {
	byAccount := make(map[string][]Event)
	var accounts []string
	for _, e := range events {
		if _, ok := byAccount[e.AccountID]; !ok {
			accounts = append(accounts, e.AccountID)
		}
		byAccount[e.AccountID] = append(byAccount[e.AccountID], e)
	}
	slices.Sort(accounts)

	report := ScanReport{AsOf: date.Of(now), Accounts: []AccountReport{}}
	for _, account := range accounts {
		evs := byAccount[account]
		ctx := r.Analyze(account, evs, now)
		flags := r.concentrationFlags(account, ctx.Positions)
		flags = append(flags, r.churnFlag(account, evs)...)
		report.Accounts = append(report.Accounts, AccountReport{AnalysisContext: ctx, Flags: flags})
	}
	return report
}
