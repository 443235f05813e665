package admission

import (
	"strings"

	"k8s.io/klog/v2"
)

// submitCheck validates one aspect of a submission. Checks run in order and
// the first failure stops the chain.
type submitCheck struct {
	name string
	run  func(s *Service, sub SubmitRequest) error
}

var submitChecks = []submitCheck{
	{"bundle", func(_ *Service, sub SubmitRequest) error {
		return sub.Bundle.ValidateRequest()
	}},
	{"owner", func(_ *Service, sub SubmitRequest) error {
		if strings.TrimSpace(sub.OwnerID) == "" {
			return ErrOwnerRequired
		}
		return nil
	}},
	{"allocation", func(s *Service, sub SubmitRequest) error {
		_, err := s.directory.Get(sub.AllocationID)
		return err
	}},
	{"overflow-pool", func(s *Service, sub SubmitRequest) error {
		if sub.AllocationID == s.directory.OverflowPoolID() {
			return ErrOverflowPoolTarget
		}
		return nil
	}},
}

func (s *Service) runChecks(sub SubmitRequest) error {
	for _, c := range submitChecks {
		if err := c.run(s, sub); err != nil {
			klog.V(2).InfoS("Submission rejected by check", "check", c.name, "owner", sub.OwnerID,
				"allocation", sub.AllocationID, "err", err)
			return err
		}
	}
	return nil
}
