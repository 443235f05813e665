package timewindow

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Day is a calendar date in YYYY-MM-DD form. It keys the capacity ledger.
type Day string

// DayOf returns t's calendar date in t's location.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// ParseDay validates s as a YYYY-MM-DD date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// AddDays returns the date n days after d. It panics if d is not a valid
// day: Days come from DayOf or ParseDay.
func (d Day) AddDays(n int) Day {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		panic(fmt.Sprintf("timewindow: AddDays on malformed day %q", string(d)))
	}
	return DayOf(t.AddDate(0, 0, n))
}

func (d Day) String() string { return string(d) }
