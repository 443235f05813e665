package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"github.com/linskybing/faculty-admission/internal/decision"
	"github.com/linskybing/faculty-admission/internal/directory"
	"github.com/linskybing/faculty-admission/internal/ledger"
	"github.com/linskybing/faculty-admission/internal/request"
	"github.com/linskybing/faculty-admission/internal/resources"
	"github.com/linskybing/faculty-admission/internal/timewindow"
)

var (
	// ErrAdmissionRaceLost is returned when capacity seen as sufficient was
	// gone by the time it was reserved. The request is kept, downgraded to
	// WAITING_FOR_OVERFLOW.
	ErrAdmissionRaceLost = errors.New("admission race lost")
	// ErrOwnerRequired is returned for a submission without an owner.
	ErrOwnerRequired = errors.New("owner is required")
	// ErrOverflowPoolTarget is returned for a submission naming the overflow
	// pool as its allocation.
	ErrOverflowPoolTarget = errors.New("requests cannot target the overflow pool")
	// ErrNotApprovable is returned by Approve for a rejected request.
	ErrNotApprovable = errors.New("request cannot be approved")
)

// Ledger is the part of the capacity ledger the service drives.
type Ledger interface {
	Do(fn func(ledger.Tx) error, keys ...ledger.Key) error
	Release(day timewindow.Day, sourceID, overflowID string) (resources.Bundle, error)
}

// Recorder observes admission outcomes.
type Recorder interface {
	Decision(d decision.Decision)
	RaceLost()
	Released(allocationID string, surrendered resources.Bundle)
}

type noopRecorder struct{}

func (noopRecorder) Decision(decision.Decision)        {}
func (noopRecorder) RaceLost()                         {}
func (noopRecorder) Released(string, resources.Bundle) {}

// Service admits requests against the capacity ledger.
type Service struct {
	directory  directory.Directory
	classifier *timewindow.Classifier
	ledger     Ledger
	requests   request.Store
	newID      func() string
	recorder   Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator replaces the request id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithRecorder installs an outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func NewService(dir directory.Directory, classifier *timewindow.Classifier, l Ledger, requests request.Store, opts ...Option) *Service {
	s := &Service{
		directory:  dir,
		classifier: classifier,
		ledger:     l,
		requests:   requests,
		newID:      uuid.NewString,
		recorder:   noopRecorder{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubmitRequest is a new request as handed in by the caller.
type SubmitRequest struct {
	Description  string
	Bundle       resources.Bundle
	OwnerID      string
	AllocationID string
	Deadline     time.Time
}

// Result is the outcome of Submit.
type Result struct {
	// Request is the persisted request. Its status is the final one, which
	// differs from Decision.Verdict after a lost race.
	Request     request.Request
	Decision    decision.Decision
	Period      timewindow.Period
	ForTomorrow bool
}

// Submit classifies, decides and persists a request, booking capacity when it
// is approved. Validation failures create nothing. When the booking fails the
// request is downgraded to WAITING_FOR_OVERFLOW and returned together with
// the error, which wraps ErrAdmissionRaceLost if capacity ran out.
func (s *Service) Submit(ctx context.Context, sub SubmitRequest, now time.Time) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := s.runChecks(sub); err != nil {
		return Result{}, err
	}

	period, forTomorrow := s.classifier.Classify(now, sub.Deadline)
	day := s.classifier.TargetDay(now, forTomorrow)
	overflowID := s.directory.OverflowPoolID()

	var (
		result  Result
		created bool
		bookErr error
	)
	err := s.ledger.Do(func(tx ledger.Tx) error {
		allocationOK, err := tx.HasSufficientCapacity(day, sub.AllocationID, sub.Bundle)
		if err != nil {
			return err
		}
		overflowOK, err := tx.HasSufficientCapacity(day, overflowID, sub.Bundle)
		if err != nil {
			return err
		}
		d := decision.Decide(decision.Input{
			Period:               period,
			ForTomorrow:          forTomorrow,
			OverflowSufficient:   overflowOK,
			AllocationSufficient: allocationOK,
		})

		req := request.Request{
			ID:           s.newID(),
			Description:  sub.Description,
			Bundle:       sub.Bundle,
			OwnerID:      sub.OwnerID,
			AllocationID: sub.AllocationID,
			Deadline:     sub.Deadline,
			Status:       d.Verdict,
			TargetDay:    day,
			Rule:         d.Rule,
			CreatedAt:    now,
		}
		if err := s.requests.Create(req); err != nil {
			return err
		}
		created = true
		result = Result{Request: req, Decision: d, Period: period, ForTomorrow: forTomorrow}
		if d.Verdict != decision.Approved {
			return nil
		}

		poolID := sub.AllocationID
		if d.Pool == decision.PoolOverflow {
			poolID = overflowID
		}
		if err := tx.Reserve(day, poolID, sub.Bundle, req.ID); err != nil {
			downgraded, serr := s.requests.SetStatus(req.ID, decision.WaitingForOverflow)
			if serr != nil {
				return multierr.Combine(err, serr)
			}
			result.Request = downgraded
			if errors.Is(err, ledger.ErrInsufficientCapacity) {
				bookErr = errors.Wrapf(ErrAdmissionRaceLost, "request %s: %v", req.ID, err)
			} else {
				bookErr = errors.Wrapf(err, "booking request %s", req.ID)
			}
		}
		return nil
	}, ledger.Key{Day: day, AllocationID: sub.AllocationID}, ledger.Key{Day: day, AllocationID: overflowID})
	if err != nil {
		if created {
			return result, err
		}
		return Result{}, err
	}

	s.recorder.Decision(result.Decision)
	klog.InfoS("Admission decision", "request", result.Request.ID, "owner", sub.OwnerID,
		"allocation", sub.AllocationID, "day", day, "period", period, "tomorrow", forTomorrow,
		"verdict", result.Decision.Verdict, "rule", result.Decision.Rule, "pool", result.Decision.Pool)
	if bookErr != nil {
		if errors.Is(bookErr, ErrAdmissionRaceLost) {
			s.recorder.RaceLost()
		}
		klog.ErrorS(bookErr, "Booking approved request failed, downgraded", "request", result.Request.ID,
			"status", result.Request.Status)
		return result, bookErr
	}
	return result, nil
}

// Approve books a pending or waiting request by hand, drawing from its
// allocation when that covers it and from the overflow pool otherwise, and
// marks it APPROVED. Approving an approved request is a no-op.
func (s *Service) Approve(ctx context.Context, id string) (request.Request, error) {
	if err := ctx.Err(); err != nil {
		return request.Request{}, err
	}
	r, err := s.requests.Get(id)
	if err != nil {
		return request.Request{}, err
	}
	switch r.Status {
	case decision.Approved:
		return r, nil
	case decision.PendingManual, decision.WaitingForOverflow:
	default:
		return request.Request{}, errors.Wrapf(ErrNotApprovable, "request %s is %s", id, r.Status)
	}

	overflowID := s.directory.OverflowPoolID()
	var out request.Request
	err = s.ledger.Do(func(tx ledger.Tx) error {
		poolID := r.AllocationID
		ok, err := tx.HasSufficientCapacity(r.TargetDay, r.AllocationID, r.Bundle)
		if err != nil {
			return err
		}
		if !ok {
			poolID = overflowID
			ok, err = tx.HasSufficientCapacity(r.TargetDay, overflowID, r.Bundle)
			if err != nil {
				return err
			}
		}
		if !ok {
			return errors.Wrapf(ledger.ErrInsufficientCapacity, "request %s: neither %s nor %s covers %s",
				id, r.AllocationID, overflowID, r.Bundle)
		}
		if err := tx.Reserve(r.TargetDay, poolID, r.Bundle, id); err != nil {
			return err
		}
		out, err = s.requests.SetStatus(id, decision.Approved)
		if err != nil {
			return err
		}
		klog.InfoS("Request approved by operator", "request", id, "allocation", r.AllocationID,
			"day", r.TargetDay, "pool", poolID, "bundle", r.Bundle)
		return nil
	}, ledger.Key{Day: r.TargetDay, AllocationID: r.AllocationID}, ledger.Key{Day: r.TargetDay, AllocationID: overflowID})
	if err != nil {
		return request.Request{}, err
	}
	s.recorder.Decision(decision.Decision{Verdict: decision.Approved, Rule: decision.RuleOperator})
	return out, nil
}

// Release surrenders the allocation's unused capacity for day to the
// overflow pool and returns the surrendered bundle.
func (s *Service) Release(ctx context.Context, day timewindow.Day, allocationID string) (resources.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return resources.Zero, err
	}
	if _, err := s.directory.Get(allocationID); err != nil {
		return resources.Zero, err
	}
	surrendered, err := s.ledger.Release(day, allocationID, s.directory.OverflowPoolID())
	if err != nil {
		klog.InfoS("Release failed", "allocation", allocationID, "day", day, "err", err)
		return resources.Zero, err
	}
	s.recorder.Released(allocationID, surrendered)
	return surrendered, nil
}
