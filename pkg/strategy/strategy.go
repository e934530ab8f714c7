package strategy

import (
	"fmt"
	"time"

	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/utility"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// RunMetadata describes the run a strategy is about to participate in.
type RunMetadata struct {
	RunID     utility.RunID
	Name      string
	Partition string
	Start     time.Time
	End       time.Time
	StartCash fixed.Point
}

// Strategy is the contract the simulation loop drives. Calls arrive
// synchronously in a fixed lifecycle: Initialize once, then per tick OnTick,
// with OnFill and OnSettlement interleaved as executions and settlements
// happen. The engine never calls a strategy instance concurrently.
type Strategy interface {
	Initialize(meta RunMetadata) error
	OnTick(now time.Time, markets map[common.MarketID]common.MarketSnapshot, portfolio common.PortfolioState) ([]common.Order, error)
	OnFill(fill common.FillEvent)
	OnSettlement(marketID common.MarketID, result common.Side, netPnL fixed.Point)
}

// Spec selects and parameterizes a strategy at run configuration time.
type Spec struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Category string  `yaml:"category"`
	MinPrice float64 `yaml:"min_price"`
	Quantity int64   `yaml:"quantity"`
	Resting  bool    `yaml:"resting"`
}

// New builds a strategy from its spec. Variants are selected here, at
// configuration time, not via dynamic lookup.
func New(spec Spec) (Strategy, error) {
	switch spec.Type {
	case "noop":
		return &Noop{}, nil
	case "favorites":
		return NewFavorites(spec)
	default:
		return nil, fmt.Errorf("unknown strategy type %q", spec.Type)
	}
}
