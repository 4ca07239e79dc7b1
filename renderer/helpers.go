package renderer

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/etnz/tradeledger"
	md "github.com/nao1215/markdown"
	"github.com/shopspring/decimal"
)

// ConditionalBlock let you fully write a block and decide at the end to print it or not.
// If the block function returns true, the content is printed to w, otherwise it is discarded.
func ConditionalBlock(w io.Writer, block func(io.Writer) bool) {
	bw := &bytes.Buffer{}
	if block(bw) {
		io.Copy(w, bw)
	}
}

// table appends t to doc. Headers are kept as written and cells are not wrapped.
func table(doc *md.Markdown, t md.TableSet) {
	doc.CustomTable(t, md.TableOptions{})
}

// na is printed for values that cannot be computed.
const na = "n/a"

func optMoney(m *tradeledger.Money) string {
	if m == nil {
		return na
	}
	return m.String()
}

func optTime(t *time.Time) string {
	if t == nil {
		return na
	}
	return timestamp(*t)
}

func timestamp(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") }

func percent(d *decimal.Decimal) string {
	if d == nil {
		return na
	}
	return d.Shift(2).StringFixed(2) + "%"
}

func flags(fs []tradeledger.Flag) string {
	s := make([]string, len(fs))
	for i, f := range fs {
		s[i] = string(f)
	}
	return strings.Join(s, ", ")
}
