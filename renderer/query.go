package renderer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/etnz/tradeledger"
	md "github.com/nao1215/markdown"
)

// QueryResult renders the rows of a read-only query as a table.
func QueryResult(q *tradeledger.QueryResult) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	if len(q.Rows) == 0 {
		doc.PlainText("No rows.")
		return doc.String()
	}
	rows := md.TableSet{Header: q.Columns, Rows: [][]string{}}
	for _, row := range q.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cell(v)
		}
		rows.Rows = append(rows.Rows, cells)
	}
	table(doc, rows)
	doc.PlainText(fmt.Sprintf("%d rows.", len(q.Rows)))
	return doc.String()
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
