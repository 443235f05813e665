package request

import (
	"time"

	"github.com/linskybing/faculty-admission/internal/decision"
	"github.com/linskybing/faculty-admission/internal/resources"
	"github.com/linskybing/faculty-admission/internal/timewindow"
)

// Request is a submitted resource request and its current status.
type Request struct {
	ID           string           `json:"id"`
	Description  string           `json:"description,omitempty"`
	Bundle       resources.Bundle `json:"bundle"`
	OwnerID      string           `json:"ownerId"`
	AllocationID string           `json:"allocationId"`
	Deadline     time.Time        `json:"deadline"`
	Status       decision.Verdict `json:"status"`
	// TargetDay is the ledger day the request draws capacity from.
	TargetDay timewindow.Day `json:"targetDay"`
	// Rule is the decision rule that produced the initial status.
	Rule      decision.Rule `json:"rule"`
	CreatedAt time.Time     `json:"createdAt"`
}
