package domain

import (
	"fmt"
	"time"
)

// DayFormat is the canonical date layout for trading days
const DayFormat = "2006-01-02"

// DailyClose represents one settlement of a rolled continuous contract
type DailyClose struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// FanProbabilities are the quantile levels published with every forecast,
// ordered from the lower tail to the upper tail
var FanProbabilities = []float64{0.05, 0.10, 0.25, 0.50, 0.75, 0.90, 0.95}

// ParseDay parses a canonical trading-day string
func ParseDay(date string) (time.Time, error) {
	t, err := time.Parse(DayFormat, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid trading day %q: %w", date, err)
	}
	return t, nil
}

// NextTradingDay returns the next weekday after the given trading day.
// Exchange holidays are not modelled; a holiday shifts the target by one
// session, which leaves the distribution semantics unchanged.
func NextTradingDay(date string) (string, error) {
	t, err := ParseDay(date)
	if err != nil {
		return "", err
	}

	t = t.AddDate(0, 0, 1)
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}

	return t.Format(DayFormat), nil
}
