package date

// Range represents an inclusive range of dates. A zero boundary is open.
type Range struct{ From, To Date }

// Contains return true if date is included in the range (boundaries included).
func (r Range) Contains(date Date) bool {
	if !r.From.IsZero() && date.Before(r.From) {
		return false
	}
	return r.To.IsZero() || !date.After(r.To)
}

// Days returns the number of calendar days in the range, boundaries included.
func (r Range) Days() int { return r.To.Sub(r.From) + 1 }

func (r Range) String() string { return r.From.String() + ".." + r.To.String() }
