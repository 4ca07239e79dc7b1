// Package renderer turns ledger reports into markdown.
package renderer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/etnz/tradeledger"
	md "github.com/nao1215/markdown"
)

// Accounts renders the list of accounts.
func Accounts(accounts []string) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1("Accounts")
	if len(accounts) == 0 {
		doc.PlainText("The ledger is empty.")
		return doc.String()
	}
	doc.BulletList(accounts...)
	return doc.String()
}

// Topics renders the list of documentation topics.
func Topics(topics []string) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1("Topics")
	doc.BulletList(topics...)
	doc.PlainText("Show one with `tlg topic <topic>`.")
	return doc.String()
}

func positionTable(positions []tradeledger.Position) md.TableSet {
	rows := md.TableSet{
		Header: []string{"Account", "Ticker", "Net Shares", "Avg Cost", "Last Price", "Market Value", "Unrealized P&L", "Weight", "Flags"},
		Rows:   [][]string{},
	}
	for _, p := range positions {
		rows.Rows = append(rows.Rows, []string{
			p.AccountID,
			p.Ticker,
			p.NetShares.String(),
			optMoney(p.AvgCostPerShare),
			optMoney(p.LastPrice),
			optMoney(p.MarketValue()),
			optMoney(p.UnrealizedPnL),
			percent(p.PortfolioWeight),
			flags(p.Flags),
		})
	}
	return rows
}

// Positions renders positions as a table.
func Positions(title string, positions []tradeledger.Position) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1(title)
	if len(positions) == 0 {
		doc.PlainText("No positions.")
		return doc.String()
	}
	table(doc, positionTable(positions))
	return doc.String()
}

// Summaries renders the positions of every account followed by the account
// level flags.
func Summaries(s *tradeledger.Summaries) string {
	var b strings.Builder
	b.WriteString(Positions("Portfolio Summaries", s.Positions))
	ConditionalBlock(&b, func(w io.Writer) bool { return renderAnomalies(w, "Account Flags", s.AccountFlags) })
	return b.String()
}

// AnalysisContext renders an analysis context: totals, positions, anomalies.
func AnalysisContext(a *tradeledger.AnalysisContext) string {
	var b strings.Builder
	renderContext(&b, a, "#")
	return b.String()
}

// renderContext writes the context with headings at level, "#" or "##".
func renderContext(w io.Writer, a *tradeledger.AnalysisContext, level string) {
	title := "All accounts"
	if a.AccountID != "" {
		title = a.AccountID
	}
	fmt.Fprintf(w, "%s Analysis of %s on %s\n\n", level, title, a.AsOf)

	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	table(doc, md.TableSet{
		Header: []string{md.Bold("Total Market Value"), md.Bold(a.TotalMarketValue.String())},
		Rows: [][]string{
			{"Priced positions", fmt.Sprint(a.PositionsWithPrice)},
			{"Unpriced positions", fmt.Sprint(a.PositionsNoPrice)},
		},
	})
	if len(a.Positions) > 0 {
		table(doc, positionTable(a.Positions))
	}
	fmt.Fprintln(w, doc.String())
	ConditionalBlock(w, func(w io.Writer) bool { return renderAnomalies(w, level+"# Anomalies", a.Anomalies) })
}

// renderAnomalies writes a bullet list of anomalies under heading, and
// reports whether there was any.
func renderAnomalies(w io.Writer, heading string, anomalies []tradeledger.Anomaly) bool {
	if len(anomalies) == 0 {
		return false
	}
	if !strings.HasPrefix(heading, "#") {
		heading = "## " + heading
	}
	fmt.Fprintf(w, "%s\n\n", heading)
	for _, a := range anomalies {
		subject := a.AccountID
		if a.Ticker != "" {
			subject += "/" + a.Ticker
		}
		fmt.Fprintf(w, "- **%s** %s: %s\n", a.Flag, subject, a.Details)
	}
	fmt.Fprintln(w)
	return true
}

// Scan renders the cross-account scan, one section per account.
func Scan(s *tradeledger.ScanReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Ledger Scan on %s\n\n", s.AsOf)
	if len(s.Accounts) == 0 {
		fmt.Fprintln(&b, "The ledger is empty.")
		return b.String()
	}
	for _, acc := range s.Accounts {
		renderContext(&b, &acc.AnalysisContext, "##")
		ConditionalBlock(&b, func(w io.Writer) bool { return renderAnomalies(w, "### Account Flags", acc.Flags) })
	}
	return b.String()
}
