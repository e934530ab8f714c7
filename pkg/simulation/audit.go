package simulation

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/common"
)

// Audit collects the equity series of a run. A minimum interval thins the
// series for long windows; the final tick is always recorded.
type Audit struct {
	minSnapshotInterval time.Duration

	snapshots []common.EquitySnapshot
}

func NewAudit(minSnapshotInterval time.Duration) *Audit {
	return &Audit{
		minSnapshotInterval: minSnapshotInterval,
	}
}

func (a *Audit) AddEquitySnapshot(snapshot common.EquitySnapshot) {
	if len(a.snapshots) == 0 ||
		snapshot.TimeStamp.Sub(a.snapshots[len(a.snapshots)-1].TimeStamp) >= a.minSnapshotInterval {
		a.snapshots = append(a.snapshots, snapshot)
	}
}

// Finalize force-records the closing snapshot regardless of the interval.
func (a *Audit) Finalize(snapshot common.EquitySnapshot) {
	if n := len(a.snapshots); n > 0 && a.snapshots[n-1].TimeStamp.Equal(snapshot.TimeStamp) {
		a.snapshots[n-1] = snapshot
		return
	}
	a.snapshots = append(a.snapshots, snapshot)
}

func (a *Audit) Snapshots() []common.EquitySnapshot {
	return a.snapshots
}
