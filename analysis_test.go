package tradeledger

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/etnz/tradeledger/date"
	"github.com/google/go-cmp/cmp"
)

func TestRules_Analyze(t *testing.T) {
	events := slices.Concat(scenarioA(), []Event{
		ev(4, "ACC-001", "AAPL", "2025-02-20T14:30:00Z", Buy, 2, 180),
		ev(5, "ACC-001", "TSLA", "2025-02-20T14:30:00Z", Sell, 1, 200),
		ev(6, "ACC-001", "TSLA", "2025-02-21T14:30:00Z", Price, 0, 210),
	})
	a := DefaultRules().Analyze("ACC-001", events, now)

	if a.AsOf != date.New(2025, 3, 1) {
		t.Errorf("AsOf = %v", a.AsOf)
	}
	if a.PositionsWithPrice != 2 || a.PositionsNoPrice != 1 {
		t.Errorf("priced/unpriced = %d/%d, want 2/1", a.PositionsWithPrice, a.PositionsNoPrice)
	}
	// 5×416.10 − 1×210
	if got := fixedMoney(a.TotalMarketValue); got != "1870.50" || a.TotalMarketValue.Currency() != "USD" {
		t.Errorf("TotalMarketValue = %s %s, want 1870.50 USD", got, a.TotalMarketValue.Currency())
	}

	got := map[string][]Flag{}
	for _, p := range a.Positions {
		got[p.Ticker] = p.Flags
	}
	want := map[string][]Flag{
		"AAPL": {MissingPrice},
		"MSFT": nil,
		"TSLA": {Oversell, NegativeNetCost},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("position flags mismatch (-want +got):\n%s", diff)
	}
	if len(a.Anomalies) != 3 {
		t.Errorf("anomalies = %v, want 3", a.Anomalies)
	}
	for _, an := range a.Anomalies {
		if an.AccountID != "ACC-001" || an.Ticker == "" || an.Details == "" {
			t.Errorf("incomplete anomaly %+v", an)
		}
	}
}

func TestRules_AnalyzeMixedCurrencies(t *testing.T) {
	events := []Event{
		ev(1, "A", "MSFT", "2025-02-20T14:30:00Z", Price, 0, 400),
		{ID: 2, AccountID: "A", Ticker: "SAP", Timestamp: ts("2025-02-20T14:30:00Z"), Type: Price, PricePerShare: M(200, "EUR")},
	}
	a := DefaultRules().Analyze("A", events, now)
	if a.TotalMarketValue.Currency() != "" {
		t.Errorf("currency = %q, want empty for mixed currencies", a.TotalMarketValue.Currency())
	}
}

func TestRules_Scan(t *testing.T) {
	events := slices.Concat(scenarioA(), []Event{
		ev(10, "ACC-002", "AAON", "2025-02-20T14:30:00Z", Buy, 10, 100),
		ev(11, "ACC-002", "AAON", "2025-02-20T15:30:00Z", Buy, 10, 100),
		ev(12, "ACC-002", "AAON", "2025-02-21T14:30:00Z", Price, 0, 100),
	})
	report := DefaultRules().Scan(events, now)

	var accounts []string
	for _, a := range report.Accounts {
		accounts = append(accounts, a.AccountID)
	}
	if diff := cmp.Diff([]string{"ACC-001", "ACC-002"}, accounts); diff != "" {
		t.Fatalf("accounts mismatch (-want +got):\n%s", diff)
	}

	got := map[string][]Flag{}
	for _, a := range report.AccountFlags() {
		got[a.AccountID] = append(got[a.AccountID], a.Flag)
	}
	want := map[string][]Flag{
		// MSFT is a large cap: only its sector counts. Two trades in five days churn.
		"ACC-001": {SectorConcentration, HighChurn},
		"ACC-002": {SectorConcentration, MarketCapConcentration, HighChurn},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("account flags mismatch (-want +got):\n%s", diff)
	}
	if n := len(report.Positions()); n != 2 {
		t.Errorf("positions = %d, want 2", n)
	}
}

func TestAnalysisContext_MarshalJSON(t *testing.T) {
	a := DefaultRules().Analyze("ACC-001", scenarioA(), now)
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"account_id":           "ACC-001",
		"as_of_date":           "2025-03-01",
		"total_market_value":   2080.5,
		"currency":             "USD",
		"positions_with_price": 1.0,
		"positions_no_price":   0.0,
		"anomalies":            []any{},
	}
	delete(got, "positions")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MarshalJSON() mismatch (-want +got):\n%s", diff)
	}
}
