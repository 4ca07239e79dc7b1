package renderer

import (
	"bytes"
	"fmt"

	"github.com/etnz/tradeledger"
	md "github.com/nao1215/markdown"
)

// Event renders an event to a sentence.
func Event(e tradeledger.Event) string {
	switch e.Type {
	case tradeledger.Buy:
		return fmt.Sprintf("Bought %s %s at %s in %s", e.Shares, e.Ticker, e.PricePerShare, e.AccountID)
	case tradeledger.Sell:
		return fmt.Sprintf("Sold %s %s at %s in %s", e.Shares, e.Ticker, e.PricePerShare, e.AccountID)
	case tradeledger.Price:
		return fmt.Sprintf("%s priced at %s in %s", e.Ticker, e.PricePerShare, e.AccountID)
	default:
		return fmt.Sprintf("%s %s in %s", e.Type, e.Ticker, e.AccountID)
	}
}

// Events renders events as a table, in the given order.
func Events(title string, events []tradeledger.Event) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1(title)
	if len(events) == 0 {
		doc.PlainText("No events.")
		return doc.String()
	}
	rows := md.TableSet{
		Header: []string{"ID", "Time", "Account", "Ticker", "Type", "Shares", "Price", "Source"},
		Rows:   [][]string{},
	}
	for _, e := range events {
		rows.Rows = append(rows.Rows, []string{
			fmt.Sprint(e.ID),
			timestamp(e.Timestamp),
			e.AccountID,
			e.Ticker,
			e.Type.String(),
			e.Shares.String(),
			e.PricePerShare.String(),
			e.Source,
		})
	}
	table(doc, rows)
	doc.PlainText(fmt.Sprintf("%d events.", len(events)))
	return doc.String()
}

// Quote renders the latest price of a ticker.
func Quote(q *tradeledger.Quote) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1(fmt.Sprintf("Latest price of %s", q.Ticker))
	table(doc, md.TableSet{
		Header: []string{md.Bold("Price"), md.Bold(q.Price.String())},
		Rows: [][]string{
			{"Observed", timestamp(q.Timestamp)},
			{"Account", q.AccountID},
			{"Event", fmt.Sprint(q.EventID)},
		},
	})
	return doc.String()
}
