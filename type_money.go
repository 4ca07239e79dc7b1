package tradeledger

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money represents a monetary value in a currency.
//
// The currency is weak: an empty currency adopts the other operand's, and
// mixing two different currencies yields an empty currency instead of
// converting (no FX).
type Money struct {
	value decimal.Decimal // as major unit value
	cur   string
}

// M returns the Money for value in currency.
func M[T float64 | int | int64 | decimal.Decimal](value T, currency string) Money {
	return Money{value: newDecimal(value), cur: currency}
}

// ParseMoney parses a decimal string in the given currency.
func ParseMoney(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{value: d, cur: currency}, nil
}

// String formats the value using the currency conventions (symbol, fraction digits).
// Values in an unknown or mixed currency are printed as plain decimals.
func (m Money) String() string {
	if m.cur == "" {
		return m.value.StringFixed(2)
	}
	cur := money.GetCurrency(m.cur)
	if cur == nil {
		return m.value.StringFixed(2) + " " + m.cur
	}
	dec := m.value.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(dec.IntPart())
}

func (m Money) Currency() string                  { return m.cur }
func (m Money) Decimal() decimal.Decimal          { return m.value }
func (m Money) Equal(n Money) bool                { return m.value.Equal(n.value) && m.cur == n.cur }
func (m Money) IsZero() bool                      { return m.value.IsZero() }
func (m Money) IsPositive() bool                  { return m.value.IsPositive() }
func (m Money) IsNegative() bool                  { return m.value.IsNegative() }
func (m Money) Neg() Money                        { return Money{value: m.value.Neg(), cur: m.cur} }
func (m Money) Mul(q Quantity) Money              { return Money{value: m.value.Mul(q.value), cur: m.cur} }
func (m Money) Div(q Quantity) Money              { return Money{value: m.value.Div(q.value), cur: m.cur} }
func (m Money) Ratio(total Money) decimal.Decimal { return m.value.Div(total.value) }

// binary operators.
func (m Money) Add(n Money) Money { return Money{value: m.value.Add(n.value), cur: cur(m, n)} }
func (m Money) Sub(n Money) Money { return Money{value: m.value.Sub(n.value), cur: cur(m, n)} }

// makes the "" currency weak, and mismatches unknown.
func cur(a, b Money) string {
	switch {
	case a.cur == "":
		return b.cur
	case b.cur == "", a.cur == b.cur:
		return a.cur
	default:
		return ""
	}
}

// MarshalJSON writes the amount as a JSON number, the currency is carried by
// the enclosing object.
func (m Money) MarshalJSON() ([]byte, error) { return m.value.MarshalJSON() }
