package ledger

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/linskybing/faculty-admission/internal/resources"
	"github.com/linskybing/faculty-admission/internal/timewindow"
)

// Key addresses one ledger entry.
type Key struct {
	Day          timewindow.Day
	AllocationID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Day, k.AllocationID)
}

func (k Key) less(o Key) bool {
	if k.Day != o.Day {
		return k.Day < o.Day
	}
	return k.AllocationID < o.AllocationID
}

// Entry is the capacity record of one allocation for one day.
type Entry struct {
	Day                timewindow.Day
	AllocationID       string
	Total              resources.Bundle
	Available          resources.Bundle
	AssignedRequestIDs sets.Set[string]
}

// Key returns the entry's key.
func (e Entry) Key() Key {
	return Key{Day: e.Day, AllocationID: e.AllocationID}
}

// DeepCopy returns a copy that shares no state with e.
func (e Entry) DeepCopy() Entry {
	out := e
	if e.AssignedRequestIDs != nil {
		out.AssignedRequestIDs = e.AssignedRequestIDs.Clone()
	} else {
		out.AssignedRequestIDs = sets.New[string]()
	}
	return out
}

// Validate checks 0 <= available <= total on every field.
func (e Entry) Validate() error {
	if err := e.Available.Validate(); err != nil {
		return errors.Wrapf(err, "entry %s: available", e.Key())
	}
	if !e.Available.LessEqual(e.Total) {
		return errors.Errorf("entry %s: available %s exceeds total %s", e.Key(), e.Available, e.Total)
	}
	return nil
}

func newEntry(key Key, seed resources.Bundle) Entry {
	return Entry{
		Day:                key.Day,
		AllocationID:       key.AllocationID,
		Total:              seed,
		Available:          seed,
		AssignedRequestIDs: sets.New[string](),
	}
}
