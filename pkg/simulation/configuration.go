package simulation

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

type Configuration struct {
	Start     time.Time
	End       time.Time
	StartCash fixed.Point
	Partition string

	// Seed drives the optional binomial fill sampler. With SampleFills off
	// the seed is unused and uncertain fills are floored expectations.
	Seed        int64
	SampleFills bool

	// LiquidityThreshold is the minimum acceptable fill fraction used by the
	// capacity estimate.
	LiquidityThreshold float64

	SnapshotInterval time.Duration
}
