package decision

import (
	"fmt"
	"strings"
)

// Verdict is the outcome of an admission decision. It doubles as the status
// of a stored request.
type Verdict int

const (
	PendingManual Verdict = iota
	Approved
	Rejected
	WaitingForOverflow
)

var verdictNames = map[Verdict]string{
	PendingManual:      "PENDING_MANUAL",
	Approved:           "APPROVED",
	Rejected:           "REJECTED",
	WaitingForOverflow: "WAITING_FOR_OVERFLOW",
}

// Verdicts lists every verdict in declaration order.
var Verdicts = []Verdict{PendingManual, Approved, Rejected, WaitingForOverflow}

func (v Verdict) String() string {
	if s, ok := verdictNames[v]; ok {
		return s
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// ParseVerdict accepts a verdict name, case-insensitively.
func ParseVerdict(s string) (Verdict, error) {
	for v, name := range verdictNames {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

func (v Verdict) MarshalText() ([]byte, error) {
	if _, ok := verdictNames[v]; !ok {
		return nil, fmt.Errorf("unknown verdict %d", int(v))
	}
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	parsed, err := ParseVerdict(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Pool names which ledger an approval is booked against.
type Pool int

const (
	PoolNone Pool = iota
	PoolAllocation
	PoolOverflow
)

func (p Pool) String() string {
	switch p {
	case PoolAllocation:
		return "allocation"
	case PoolOverflow:
		return "overflow"
	default:
		return "none"
	}
}

// Rule identifies the branch of the decision table that fired.
type Rule string

const (
	RuleClosed            Rule = "closed"
	RuleOverflowExhausted Rule = "overflow-exhausted"
	RuleOverflowWindow    Rule = "overflow-window"
	RuleOverflowFallback  Rule = "overflow-fallback"
	RuleNoCapacity        Rule = "no-capacity"
	RuleManual            Rule = "manual"
	// RuleOperator marks a status set or booked by an operator rather than
	// by Decide.
	RuleOperator Rule = "operator"
)
