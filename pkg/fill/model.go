package fill

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// Model resolves how many contracts of an order execute during a minute,
// using only trade-derived data. Volume trading at prices strictly better
// than the limit fills with certainty; volume exactly at the limit fills by
// the calibrated queue fraction
//
//	frac = (1 - queuePercentile) * V / (V + depthScale * Q')
//
// which is monotonically increasing in V and clamped to [0, 1]. By default
// the uncertain fill is the floored expectation; with a sampler attached it
// is a seeded binomial draw instead.
type Model struct {
	cal  Calibration
	fees FeeSchedule
	rng  *rand.Rand
}

type Option func(*Model)

// WithSampling switches uncertain fills from expectation to seed-controlled
// binomial sampling.
func WithSampling(seed int64) Option {
	return func(m *Model) {
		m.rng = rand.New(rand.NewSource(seed))
	}
}

func NewModel(cal Calibration, fees FeeSchedule, options ...Option) *Model {
	m := &Model{cal: cal, fees: fees}
	for _, option := range options {
		option(m)
	}
	return m
}

// Fill is a resolved execution: quantity at price, with the fee charged.
type Fill struct {
	Quantity int64
	Price    fixed.Point
	Fee      fixed.Point
	Maker    bool
}

// ResolveResting resolves a resting order against one minute of trade
// activity. Execution price is always the limit price; better-priced volume
// is treated as having exhausted the book ahead of the order.
func (m *Model) ResolveResting(order common.PendingOrder, trades []common.Trade, market common.Market) (Fill, error) {
	if order.Quantity <= 0 {
		return Fill{}, &common.InvalidFillInputError{Field: "quantity", Value: itoa(order.Quantity)}
	}
	limit := order.LimitPrice
	if limit.Lte(common.PriceFloor) || limit.Gte(common.PriceCeil) {
		return Fill{}, &common.InvalidFillInputError{Field: "limit_price", Value: limit.String()}
	}

	remaining := order.Remaining()
	if remaining <= 0 {
		return Fill{}, nil
	}

	// A buyer is beaten to the book by volume below the limit, a seller by
	// volume above it.
	selling := order.Action == common.OrderActionClose

	var better, atLimit int64
	for _, trade := range trades {
		if trade.Count < 0 {
			return Fill{}, &common.InvalidFillInputError{Field: "trade_count", Value: itoa(trade.Count)}
		}
		price := trade.PriceFor(order.Side)
		switch {
		case price.Eq(limit):
			atLimit += trade.Count
		case selling && price.Gt(limit):
			better += trade.Count
		case !selling && price.Lt(limit):
			better += trade.Count
		}
	}

	certain := better
	if certain > remaining {
		certain = remaining
	}

	unfilled := remaining - certain
	uncertain, err := m.uncertainFill(atLimit, unfilled, market.Category)
	if err != nil {
		return Fill{}, err
	}

	total := certain + uncertain
	if total == 0 {
		return Fill{}, nil
	}
	return Fill{
		Quantity: total,
		Price:    limit,
		Fee:      m.fees.Maker(total, limit, market.FeeMultiplier),
		Maker:    true,
	}, nil
}

// ResolveMarket resolves an immediate-execution order at the minute's closing
// trade price, falling back to the approximate quote when the minute had no
// trades. Immediate orders never partially fill.
func (m *Model) ResolveMarket(order common.Order, snap common.MarketSnapshot) (Fill, error) {
	if order.Quantity <= 0 {
		return Fill{}, &common.InvalidFillInputError{Field: "quantity", Value: itoa(order.Quantity)}
	}

	var yesPrice fixed.Point
	switch {
	case snap.Candle != nil:
		yesPrice = snap.Candle.Close
	case order.Action == common.OrderActionClose:
		// Selling exposure crosses to the bid.
		if order.Side == common.SideYes {
			yesPrice = snap.BestBid
		} else {
			yesPrice = snap.BestAsk
		}
	default:
		// Opening crosses to the ask of the bought side.
		if order.Side == common.SideYes {
			yesPrice = snap.BestAsk
		} else {
			yesPrice = snap.BestBid
		}
	}

	price := sideTerms(yesPrice, order.Side)
	if price.Lte(common.PriceFloor) || price.Gte(common.PriceCeil) {
		return Fill{}, &common.InvalidFillInputError{Field: "price", Value: price.String()}
	}
	return Fill{
		Quantity: order.Quantity,
		Price:    price,
		Fee:      m.fees.Taker(order.Quantity, price, snap.FeeMultiplier),
	}, nil
}

// UncertainFraction exposes the calibrated queue fraction for a hypothetical
// at-limit volume and remaining size. The metrics engine uses it to estimate
// capacity.
func (m *Model) UncertainFraction(atLimit, remaining int64, category string) float64 {
	if atLimit <= 0 || remaining <= 0 {
		return 0
	}
	p := m.cal.ForCategory(category)
	v := float64(atLimit)
	frac := (1 - p.QueuePercentile) * v / (v + p.DepthScale*float64(remaining))
	return clamp01(frac)
}

func (m *Model) Fees() FeeSchedule        { return m.fees }
func (m *Model) Calibration() Calibration { return m.cal }

func (m *Model) uncertainFill(atLimit, remaining int64, category string) (int64, error) {
	if atLimit == 0 || remaining == 0 {
		return 0, nil
	}

	frac := m.UncertainFraction(atLimit, remaining, category)
	if math.IsNaN(frac) || math.IsInf(frac, 0) {
		return 0, &common.InvalidFillInputError{Field: "fill_fraction", Value: "non-finite"}
	}

	if m.rng == nil {
		return int64(math.Floor(frac * float64(remaining))), nil
	}

	var filled int64
	for i := int64(0); i < remaining; i++ {
		if m.rng.Float64() < frac {
			filled++
		}
	}
	return filled, nil
}

func sideTerms(yesPrice fixed.Point, side common.Side) fixed.Point {
	if side == common.SideNo {
		return fixed.One.Sub(yesPrice)
	}
	return yesPrice
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
