package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// Favorites buys the yes side of markets already trading at or above a price
// floor, betting that favorites are systematically underpriced. One entry per
// market, held to settlement. With Resting set it rests a limit at the last
// traded price instead of crossing immediately.
type Favorites struct {
	category string
	minPrice fixed.Point
	quantity int64
	resting  bool

	entered map[common.MarketID]bool
}

func NewFavorites(spec Spec) (*Favorites, error) {
	if spec.MinPrice <= 0 || spec.MinPrice >= 1 {
		return nil, fmt.Errorf("favorites: min_price %v outside (0, 1)", spec.MinPrice)
	}
	if spec.Quantity <= 0 {
		return nil, fmt.Errorf("favorites: quantity %d must be positive", spec.Quantity)
	}
	return &Favorites{
		category: spec.Category,
		minPrice: fixed.FromFloat64(spec.MinPrice),
		quantity: spec.Quantity,
		resting:  spec.Resting,
		entered:  make(map[common.MarketID]bool),
	}, nil
}

// Initialize resets entry tracking so one instance can serve repeated runs.
func (f *Favorites) Initialize(RunMetadata) error {
	f.entered = make(map[common.MarketID]bool)
	return nil
}

func (f *Favorites) OnTick(_ time.Time, markets map[common.MarketID]common.MarketSnapshot, portfolio common.PortfolioState) ([]common.Order, error) {
	// Deterministic emission order regardless of map iteration.
	ids := make([]string, 0, len(markets))
	for id := range markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var orders []common.Order
	for _, id := range ids {
		snap := markets[id]
		if f.entered[id] || snap.Status != common.MarketStatusActive {
			continue
		}
		if f.category != "" && snap.Category != f.category {
			continue
		}
		if !snap.HasTraded || snap.LastPrice.Lt(f.minPrice) || snap.LastPrice.Gte(common.PriceCeil) {
			continue
		}
		if _, held := portfolio.Positions[id]; held {
			f.entered[id] = true
			continue
		}

		order := common.Order{
			MarketID: id,
			Side:     common.SideYes,
			Action:   common.OrderActionOpen,
			Quantity: f.quantity,
		}
		if f.resting {
			order.Type = common.OrderTypeLimit
			order.LimitPrice = snap.LastPrice
		} else {
			order.Type = common.OrderTypeMarket
		}
		orders = append(orders, order)
		f.entered[id] = true
	}
	return orders, nil
}

func (f *Favorites) OnFill(common.FillEvent) {}

func (f *Favorites) OnSettlement(id common.MarketID, _ common.Side, _ fixed.Point) {
	// Settled markets stay marked so a late candle cannot re-trigger entry.
	f.entered[id] = true
}
