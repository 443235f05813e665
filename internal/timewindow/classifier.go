package timewindow

import (
	"fmt"
	"time"
)

// Period is the slice of the day "now" falls in, relative to the two daily cutoffs.
type Period int

const (
	// PeriodSelfService is before the first cutoff: allocations may still
	// self-serve from their own capacity.
	PeriodSelfService Period = iota
	// PeriodOverflowOnly is at or after the first cutoff and before the
	// second: only the overflow pool can admit.
	PeriodOverflowOnly
	// PeriodClosed is at or after the second cutoff.
	PeriodClosed
)

func (p Period) String() string {
	switch p {
	case PeriodSelfService:
		return "self-service"
	case PeriodOverflowOnly:
		return "overflow-only"
	case PeriodClosed:
		return "closed"
	}
	return fmt.Sprintf("Period(%d)", int(p))
}

// Default daily cutoffs.
const (
	DefaultSelfServiceCutoff = 18 * time.Hour
	DefaultFinalCutoff       = 23*time.Hour + 55*time.Minute
)

// Classifier maps (now, deadline) to a Period and a same/next-day flag. It is
// a pure function of its inputs and holds no state besides its configuration.
type Classifier struct {
	selfService time.Duration
	final       time.Duration
	loc         *time.Location
}

// NewClassifier returns a classifier with cutoffs expressed as offsets from
// local midnight in loc. A nil loc means time.Local.
func NewClassifier(selfService, final time.Duration, loc *time.Location) (*Classifier, error) {
	if selfService <= 0 || final <= selfService || final >= 24*time.Hour {
		return nil, fmt.Errorf("invalid cutoffs %s/%s: need 0 < first < second < 24h", selfService, final)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Classifier{selfService: selfService, final: final, loc: loc}, nil
}

// Location returns the timezone the cutoffs are evaluated in.
func (c *Classifier) Location() *time.Location {
	return c.loc
}

// Classify returns the period of now's time of day and whether deadline falls
// on or before the end of the day after now's day. A deadline in the past
// counts as tomorrow-or-sooner.
func (c *Classifier) Classify(now, deadline time.Time) (Period, bool) {
	now = now.In(c.loc)
	h, m, sec := now.Clock()
	sinceMidnight := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second

	period := PeriodClosed
	switch {
	case sinceMidnight < c.selfService:
		period = PeriodSelfService
	case sinceMidnight < c.final:
		period = PeriodOverflowOnly
	}

	forTomorrow := deadline.Before(midnight(now, 2))
	return period, forTomorrow
}

// TargetDay is the ledger day a request classified with forTomorrow books
// against: tomorrow when set, today otherwise.
func (c *Classifier) TargetDay(now time.Time, forTomorrow bool) Day {
	today := c.Today(now)
	if forTomorrow {
		return today.AddDays(1)
	}
	return today
}

// Today returns now's calendar day in the classifier's timezone.
func (c *Classifier) Today(now time.Time) Day {
	return DayOf(now.In(c.loc))
}

// midnight returns the start of the day addDays after t's day, in t's location.
func midnight(t time.Time, addDays int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+addDays, 0, 0, 0, 0, t.Location())
}
