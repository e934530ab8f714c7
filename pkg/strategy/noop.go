package strategy

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// Noop never trades. Baseline for wiring tests and a do-nothing control run.
type Noop struct{}

func (n *Noop) Initialize(RunMetadata) error { return nil }

func (n *Noop) OnTick(time.Time, map[common.MarketID]common.MarketSnapshot, common.PortfolioState) ([]common.Order, error) {
	return nil, nil
}

func (n *Noop) OnFill(common.FillEvent) {}

func (n *Noop) OnSettlement(common.MarketID, common.Side, fixed.Point) {}
