package fill

import (
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// FeeSchedule holds the base fee rates of the quadratic fee structure:
//
//	fee = contracts * rate * fee_multiplier * price * (1 - price)
//
// The taker rate applies to immediate executions, the structurally lower
// maker rate to resting-order fills. The series fee multiplier scales both
// (1.0 standard, 0.5 reduced-fee series).
type FeeSchedule struct {
	TakerRate fixed.Point
	MakerRate fixed.Point
}

func DefaultFees() FeeSchedule {
	return FeeSchedule{
		TakerRate: fixed.FromInt64(7, 2),   // 0.07
		MakerRate: fixed.FromInt64(175, 4), // 0.0175
	}
}

func (f FeeSchedule) Taker(contracts int64, price, multiplier fixed.Point) fixed.Point {
	return quadratic(f.TakerRate, contracts, price, multiplier)
}

func (f FeeSchedule) Maker(contracts int64, price, multiplier fixed.Point) fixed.Point {
	return quadratic(f.MakerRate, contracts, price, multiplier)
}

// MakerPerContract is the exact maker fee for a single contract at the given
// price. The ledger reserves it alongside collateral so a resting order's
// remaining reserve releases proportionally, without rounding drift.
func (f FeeSchedule) MakerPerContract(price, multiplier fixed.Point) fixed.Point {
	return quadratic(f.MakerRate, 1, price, multiplier)
}

func quadratic(rate fixed.Point, contracts int64, price, multiplier fixed.Point) fixed.Point {
	return rate.Mul(multiplier).Mul(price).Mul(fixed.One.Sub(price)).MulInt64(contracts)
}
