package decision

import "github.com/linskybing/faculty-admission/internal/timewindow"

// Input is everything the decision table looks at.
type Input struct {
	Period      timewindow.Period
	ForTomorrow bool
	// OverflowSufficient reports whether the overflow pool covers the bundle.
	OverflowSufficient bool
	// AllocationSufficient reports whether the named allocation covers it.
	AllocationSufficient bool
}

// Decision is a verdict together with the rule that produced it and, for
// approvals, the pool the bundle must be reserved against.
type Decision struct {
	Verdict Verdict
	Rule    Rule
	Pool    Pool
}

// Decide evaluates the admission table. Rules are checked in order and the
// first match wins; several conditions overlap, so the order matters.
//
// Once the self-service period is over only the overflow pool is consulted.
// Both approving rules are covered by the overflow pool and book against it.
func Decide(in Input) Decision {
	p := in.Period
	switch {
	case p == timewindow.PeriodClosed && in.ForTomorrow:
		return Decision{Verdict: Rejected, Rule: RuleClosed}
	case p == timewindow.PeriodOverflowOnly && in.ForTomorrow && !in.OverflowSufficient:
		return Decision{Verdict: Rejected, Rule: RuleOverflowExhausted}

	case p == timewindow.PeriodOverflowOnly && in.OverflowSufficient:
		return Decision{Verdict: Approved, Rule: RuleOverflowWindow, Pool: PoolOverflow}
	case in.ForTomorrow && p == timewindow.PeriodSelfService && !in.AllocationSufficient && in.OverflowSufficient:
		return Decision{Verdict: Approved, Rule: RuleOverflowFallback, Pool: PoolOverflow}

	case p == timewindow.PeriodSelfService && !in.AllocationSufficient && !in.OverflowSufficient:
		return Decision{Verdict: WaitingForOverflow, Rule: RuleNoCapacity}
	}
	return Decision{Verdict: PendingManual, Rule: RuleManual}
}
