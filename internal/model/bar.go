package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Bar is one day's OHLCV summary for a ticker from one data source.
// Date is always a UTC-midnight calendar day; there is exactly one Bar
// per (ticker, source, date).
type Bar struct {
	Date         time.Time `json:"date"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       int64     `json:"volume"`
	VWAP         float64   `json:"vwap,omitempty"`         // volume weighted average price, 0 when the source has none
	Transactions int64     `json:"transactions,omitempty"` // trade count, 0 when the source has none
}

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// Day returns the UTC-midnight time for a calendar day.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC-midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a calendar day as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.UTC().Format(DateLayout) }

// NextDay returns the calendar day after t.
func NextDay(t time.Time) time.Time { return DateOf(t).AddDate(0, 0, 1) }

// PrevDay returns the calendar day before t.
func PrevDay(t time.Time) time.Time { return DateOf(t).AddDate(0, 0, -1) }

// DateRange is a closed interval of calendar days, both ends inclusive.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange builds a range from two days, normalizing both to UTC midnight.
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: DateOf(from), To: DateOf(to)}
}

// Valid reports whether From <= To.
func (r DateRange) Valid() bool { return !r.From.After(r.To) }

// Days returns the number of calendar days in the range.
func (r DateRange) Days() int {
	if !r.Valid() {
		return 0
	}
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

// Contains reports whether the calendar day of t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(r.From) && !d.After(r.To)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", FormatDate(r.From), FormatDate(r.To))
}

// dateRangeJSON is the wire shape: plain YYYY-MM-DD strings.
type dateRangeJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeJSON{From: FormatDate(r.From), To: FormatDate(r.To)})
}

func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw dateRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	from, err := ParseDate(raw.From)
	if err != nil {
		return err
	}
	to, err := ParseDate(raw.To)
	if err != nil {
		return err
	}
	r.From, r.To = from, to
	return nil
}

// SortBars orders bars ascending by date in place.
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}
