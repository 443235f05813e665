package ledger

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/linskybing/faculty-admission/internal/resources"
	"github.com/linskybing/faculty-admission/internal/timewindow"
)

// Release surrenders the source allocation's unused capacity for day to the
// overflow pool. The source keeps its total and its committed reservations;
// its available drops to zero. The overflow pool's entry for day, created
// from the zero bundle if absent, grows by the surrendered bundle in both
// total and available. The surrendered bundle is returned.
func (l *Ledger) Release(day timewindow.Day, sourceID, overflowID string) (resources.Bundle, error) {
	if sourceID == overflowID {
		return resources.Zero, errors.Wrapf(ErrCannotReleaseOverflowPool, "%q", sourceID)
	}
	srcKey := Key{Day: day, AllocationID: sourceID}
	poolKey := Key{Day: day, AllocationID: overflowID}

	var surrendered resources.Bundle
	err := l.Do(func(tx Tx) error {
		t := tx.(*txn)
		source, _, err := t.lookup(srcKey, nil)
		if err != nil {
			return err
		}
		zero := resources.Zero
		pool, _, err := t.lookup(poolKey, &zero)
		if err != nil {
			return err
		}

		surrendered = source.Available
		nextSource := source.DeepCopy()
		nextSource.Available = resources.Zero
		nextPool := pool.DeepCopy()
		nextPool.Total = pool.Total.Add(surrendered)
		nextPool.Available = pool.Available.Add(surrendered)

		return t.l.commit(nextSource, nextPool)
	}, srcKey, poolKey)
	if err != nil {
		return resources.Zero, err
	}

	klog.InfoS("Released unused capacity to overflow pool", "day", day, "allocation", sourceID,
		"overflowPool", overflowID, "bundle", surrendered)
	return surrendered, nil
}
