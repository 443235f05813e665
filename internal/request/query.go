package request

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/linskybing/faculty-admission/internal/decision"
)

// QueryService is the read and override side of the request store.
type QueryService struct {
	store Store
}

func NewQueryService(store Store) *QueryService {
	return &QueryService{store: store}
}

// Get returns the whole request.
func (q *QueryService) Get(id string) (Request, error) {
	return q.store.Get(id)
}

// GetStatus returns the request's current status.
func (q *QueryService) GetStatus(id string) (decision.Verdict, error) {
	r, err := q.store.Get(id)
	if err != nil {
		return 0, err
	}
	return r.Status, nil
}

// SetStatus overrides the status unconditionally. It does not touch the
// ledger.
func (q *QueryService) SetStatus(id string, status decision.Verdict) error {
	if _, err := status.MarshalText(); err != nil {
		return errors.Wrap(err, "set status")
	}
	r, err := q.store.Get(id)
	if err != nil {
		return err
	}
	if _, err := q.store.SetStatus(id, status); err != nil {
		return err
	}
	klog.InfoS("Request status overridden", "request", id, "from", r.Status, "to", status)
	return nil
}

// PendingForAllocation lists the allocation's requests awaiting manual review.
func (q *QueryService) PendingForAllocation(allocationID string) ([]Request, error) {
	all, err := q.store.List()
	if err != nil {
		return nil, err
	}
	var out []Request
	for _, r := range all {
		if r.AllocationID == allocationID && r.Status == decision.PendingManual {
			out = append(out, r)
		}
	}
	return out, nil
}

// IDsByOwner lists the owner's request ids in submission order.
func (q *QueryService) IDsByOwner(ownerID string) ([]string, error) {
	all, err := q.store.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range all {
		if r.OwnerID == ownerID {
			out = append(out, r.ID)
		}
	}
	return out, nil
}
