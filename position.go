package tradeledger

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Position is the state of one ticker in one account, derived from its events.
//
// Nil fields are "cannot compute" signals and must never be guessed by
// consumers.
type Position struct {
	AccountID string
	Ticker    string
	// Currency of the position events, empty when they mix currencies.
	Currency string

	NetShares Quantity
	NetCost   Money
	BuyShares Quantity
	BuyCost   Money

	LastPrice   *Money
	LastPriceTS *time.Time
	LastEventTS time.Time

	AvgCostPerShare *Money
	UnrealizedPnL   *Money
	// PortfolioWeight is the share of the account market value, among priced positions.
	PortfolioWeight *decimal.Decimal

	Flags []Flag

	lastPriceID int64
}

// Priced reports whether a PRICE event exists for the position.
func (p Position) Priced() bool { return p.LastPrice != nil }

// MarketValue returns net_shares × last_price, or nil if the position is not priced.
func (p Position) MarketValue() *Money {
	if p.LastPrice == nil {
		return nil
	}
	v := p.LastPrice.Mul(p.NetShares)
	return &v
}

// HasFlag reports whether f was raised on the position.
func (p Position) HasFlag(f Flag) bool { return slices.Contains(p.Flags, f) }

func (p Position) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("account_id", p.AccountID)
	w.Append("ticker_symbol", p.Ticker)
	w.Append("currency", p.Currency)
	w.Append("net_shares", p.NetShares)
	w.Append("net_cost", p.NetCost)
	w.Append("buy_shares", p.BuyShares)
	w.Append("buy_cost", p.BuyCost)
	w.Append("last_price", p.LastPrice)
	w.Append("last_price_ts", p.LastPriceTS)
	w.Append("last_event_ts", p.LastEventTS)
	w.Append("avg_cost_per_share", p.AvgCostPerShare)
	w.Append("unrealized_pnl", p.UnrealizedPnL)
	w.Append("portfolio_weight", p.PortfolioWeight)
	flags := p.Flags
	if flags == nil {
		flags = []Flag{}
	}
	w.Append("flags", flags)
	return w.MarshalJSON()
}

type positionKey struct{ account, ticker string }

// Aggregate derives one Position per (account, ticker) found in events.
//
// The result is ordered by account then ticker and does not depend on the
// order of events. Weights are computed within each account; flags are not
// evaluated, see Analyze.
func Aggregate(events []Event) []Position {
	index := make(map[positionKey]*Position)
	var keys []positionKey
	// buy shares and cost are accumulated as decimals, currencies are
	// resolved once at the end.
	currencies := make(map[positionKey]string)
	for _, e := range events {
		k := positionKey{e.AccountID, e.Ticker}
		p, ok := index[k]
		if !ok {
			p = &Position{AccountID: e.AccountID, Ticker: e.Ticker}
			index[k] = p
			keys = append(keys, k)
			currencies[k] = e.Currency()
		} else if currencies[k] != e.Currency() {
			currencies[k] = ""
		}
		if e.Timestamp.After(p.LastEventTS) {
			p.LastEventTS = e.Timestamp
		}
		switch e.Type {
		case Buy:
			p.NetShares = p.NetShares.Add(e.Shares)
			p.NetCost = Money{value: p.NetCost.value.Add(e.Amount().value)}
			p.BuyShares = p.BuyShares.Add(e.Shares)
			p.BuyCost = Money{value: p.BuyCost.value.Add(e.Amount().value)}
		case Sell:
			p.NetShares = p.NetShares.Sub(e.Shares)
			p.NetCost = Money{value: p.NetCost.value.Sub(e.Amount().value)}
		case Price:
			if p.LastPrice == nil || e.newer(Event{Timestamp: *p.LastPriceTS, ID: p.lastPriceID}) {
				price, ts := e.PricePerShare, e.Timestamp
				p.LastPrice, p.LastPriceTS, p.lastPriceID = &price, &ts, e.ID
			}
		}
	}

	positions := make([]Position, 0, len(keys))
	for _, k := range keys {
		p := index[k]
		cur := currencies[k]
		p.Currency = cur
		p.NetCost.cur = cur
		p.BuyCost.cur = cur
		if p.BuyShares.IsPositive() {
			avg := p.BuyCost.Div(p.BuyShares)
			p.AvgCostPerShare = &avg
		}
		if mv := p.MarketValue(); mv != nil {
			pnl := Money{value: mv.value.Sub(p.NetCost.value), cur: cur}
			p.UnrealizedPnL = &pnl
		}
		positions = append(positions, *p)
	}
	slices.SortFunc(positions, func(a, b Position) int {
		return cmp.Or(cmp.Compare(a.AccountID, b.AccountID), cmp.Compare(a.Ticker, b.Ticker))
	})
	weigh(positions)
	return positions
}

// weigh sets the portfolio weight of priced positions within their account.
// positions must be grouped by account.
func weigh(positions []Position) {
	for start := 0; start < len(positions); {
		end := start
		total := decimal.Zero
		for ; end < len(positions) && positions[end].AccountID == positions[start].AccountID; end++ {
			if mv := positions[end].MarketValue(); mv != nil {
				total = total.Add(mv.value)
			}
		}
		for i := start; i < end; i++ {
			mv := positions[i].MarketValue()
			if mv == nil || total.IsZero() {
				continue
			}
			w := mv.value.Div(total)
			positions[i].PortfolioWeight = &w
		}
		start = end
	}
}
