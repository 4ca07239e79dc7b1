package date

import (
	"testing"
	"time"
)

// TestTime assert that the time() is cannonical and gives comparable times.
func TestTime(t *testing.T) {
	d1 := New(2025, 7, 31)
	d2 := New(2025, 7, 31)

	if d1.time() != d2.time() {
		// Note that usually time.Time are not comparable (there is a pointer for the timezone) this
		// tests also checks that the property remain true
		t.Errorf("invalid time() function same day gives two different time")
	}
}

func TestOf(t *testing.T) {
	paris := time.FixedZone("CEST", 2*3600)
	// 01:30 in Paris is still the previous day in UTC.
	got := Of(time.Date(2025, time.June, 2, 1, 30, 0, 0, paris))
	if want := New(2025, time.June, 1); got != want {
		t.Errorf("Of() = %v, want %v", got, want)
	}
}

func TestSub(t *testing.T) {
	testCases := []struct {
		a, b Date
		want int
	}{
		{New(2025, time.January, 1), New(2025, time.January, 1), 0},
		{New(2025, time.January, 31), New(2025, time.January, 1), 30},
		{New(2025, time.March, 1), New(2024, time.March, 1), 365},
		{New(2024, time.March, 1), New(2025, time.March, 1), -365},
	}
	for _, tc := range testCases {
		if got := tc.a.Sub(tc.b); got != tc.want {
			t.Errorf("%v.Sub(%v) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	today := Today()
	testCases := []struct {
		in   string
		want Date
	}{
		{"2025-07-01", New(2025, time.July, 1)},
		{"2025-7-1", New(2025, time.July, 1)},
		{" 2025-12-31 ", New(2025, time.December, 31)},
		{"2025-03-04T23:30:00-02:00", New(2025, time.March, 5)},
		{"0d", today},
		{"-7d", today.Add(-7)},
		{"-2w", today.Add(-14)},
		{"+1y", New(today.Year()+1, today.Month(), today.Day())},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	for _, in := range []string{"", "yesterday", "2025-13-01", "7d"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected an error", in)
		}
	}
}

func TestDate_JSON(t *testing.T) {
	d := New(2025, time.August, 9)
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"2025-08-09"` {
		t.Errorf("MarshalJSON() = %s, want %q", b, "2025-08-09")
	}
	var got Date
	if err := got.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Errorf("UnmarshalJSON() = %v, want %v", got, d)
	}
}

func TestRange(t *testing.T) {
	r := Range{From: New(2025, time.February, 27), To: New(2025, time.March, 2)}
	if got := r.Days(); got != 4 {
		t.Errorf("Days() = %d, want 4", got)
	}
	if got := r.String(); got != "2025-02-27..2025-03-02" {
		t.Errorf("String() = %q", got)
	}
	for _, tc := range []struct {
		r    Range
		d    Date
		want bool
	}{
		{r, New(2025, time.February, 27), true},
		{r, New(2025, time.March, 2), true},
		{r, New(2025, time.February, 26), false},
		{r, New(2025, time.March, 3), false},
		{Range{To: r.To}, New(1999, time.January, 1), true},
		{Range{From: r.From}, New(2099, time.January, 1), true},
	} {
		if got := tc.r.Contains(tc.d); got != tc.want {
			t.Errorf("%v.Contains(%v) = %v, want %v", tc.r, tc.d, got, tc.want)
		}
	}
}
