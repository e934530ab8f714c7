package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/fill"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

var (
	ErrOrderNotFound   = errors.New("pending order not found")
	ErrNoPosition      = errors.New("no position to close")
	ErrSideMismatch    = errors.New("close side does not match position side")
	ErrOversell        = errors.New("close quantity exceeds held quantity")
	ErrAlreadySettled  = errors.New("market already settled")
	ErrMarketSettled   = errors.New("market is settled, no further fills")
	ErrInvalidQuantity = errors.New("order quantity must be positive")
	ErrInvalidPrice    = errors.New("limit price outside (0, 1)")
)

// Ledger owns all portfolio state: available cash, collateral reserved
// against resting orders, open positions, pending orders and realized P&L.
// Orders are fully collateralized: capital (plus the exact maker fee) is
// reserved at acceptance, so available cash can never go negative. Fees
// reduce realized P&L at fill time, which keeps
//
//	cash + reserved + cost basis == initial capital + realized P&L
//
// an exact decimal identity at every tick.
type Ledger struct {
	initial  fixed.Point
	cash     fixed.Point
	reserved fixed.Point
	realized fixed.Point

	positions map[common.MarketID]*common.Position
	pending   []*pendingEntry
	settled   map[common.MarketID]bool

	fills       []common.FillEvent
	settlements []common.SettlementEvent
	closures    []fixed.Point

	fees     fill.FeeSchedule
	orderSeq common.OrderID
}

type pendingEntry struct {
	po common.PendingOrder

	// Collateral plus maker fee held per contract; zero for close orders,
	// which need no collateral.
	reservePC fixed.Point
	feeMult   fixed.Point
}

func New(startCash fixed.Point, fees fill.FeeSchedule) *Ledger {
	return &Ledger{
		initial:   startCash,
		cash:      startCash,
		positions: make(map[common.MarketID]*common.Position),
		settled:   make(map[common.MarketID]bool),
		fees:      fees,
	}
}

// AcceptOrder validates an order against current state and either registers
// it (limit orders) or hands back an order identity for immediate execution
// (market orders). projectedPrice is the side-terms price a market order is
// expected to execute at; it is ignored for limit orders. Rejection leaves
// state untouched.
func (l *Ledger) AcceptOrder(order common.Order, market common.Market, projectedPrice fixed.Point, now time.Time) (common.PendingOrder, error) {
	if order.Quantity <= 0 {
		return common.PendingOrder{}, ErrInvalidQuantity
	}
	if order.Type == common.OrderTypeLimit {
		if order.LimitPrice.Lte(common.PriceFloor) || order.LimitPrice.Gte(common.PriceCeil) {
			return common.PendingOrder{}, ErrInvalidPrice
		}
	}

	switch order.Action {
	case common.OrderActionOpen:
		return l.acceptOpen(order, market, projectedPrice, now)
	case common.OrderActionClose:
		return l.acceptClose(order, now)
	default:
		return common.PendingOrder{}, fmt.Errorf("unsupported order action %d", order.Action)
	}
}

func (l *Ledger) acceptOpen(order common.Order, market common.Market, projectedPrice fixed.Point, now time.Time) (common.PendingOrder, error) {
	if order.Type == common.OrderTypeMarket {
		if projectedPrice.Lte(common.PriceFloor) || projectedPrice.Gte(common.PriceCeil) {
			return common.PendingOrder{}, ErrInvalidPrice
		}
		projected := projectedPrice.MulInt64(order.Quantity).
			Add(l.fees.Taker(order.Quantity, projectedPrice, market.FeeMultiplier))
		if projected.Gt(l.cash) {
			return common.PendingOrder{}, &common.InsufficientCapitalError{Required: projected, Available: l.cash}
		}
		return l.nextOrder(order, now), nil
	}

	reservePC := order.LimitPrice.Add(l.fees.MakerPerContract(order.LimitPrice, market.FeeMultiplier))
	reserve := reservePC.MulInt64(order.Quantity)
	if reserve.Gt(l.cash) {
		return common.PendingOrder{}, &common.InsufficientCapitalError{Required: reserve, Available: l.cash}
	}

	po := l.nextOrder(order, now)
	l.cash = l.cash.Sub(reserve)
	l.reserved = l.reserved.Add(reserve)
	l.pending = append(l.pending, &pendingEntry{po: po, reservePC: reservePC, feeMult: market.FeeMultiplier})
	return po, nil
}

func (l *Ledger) acceptClose(order common.Order, now time.Time) (common.PendingOrder, error) {
	pos, ok := l.positions[order.MarketID]
	if !ok {
		return common.PendingOrder{}, ErrNoPosition
	}
	if pos.Side != order.Side {
		return common.PendingOrder{}, ErrSideMismatch
	}

	committed := order.Quantity
	for _, entry := range l.pending {
		if entry.po.MarketID == order.MarketID && entry.po.Action == common.OrderActionClose {
			committed += entry.po.Remaining()
		}
	}
	if committed > pos.Quantity {
		return common.PendingOrder{}, ErrOversell
	}

	po := l.nextOrder(order, now)
	if order.Type == common.OrderTypeLimit {
		l.pending = append(l.pending, &pendingEntry{po: po})
	}
	return po, nil
}

func (l *Ledger) nextOrder(order common.Order, now time.Time) common.PendingOrder {
	l.orderSeq++
	return common.PendingOrder{Order: order, ID: l.orderSeq, SubmittedAt: now}
}

// ApplyRestingFill applies a fill resolved for a tracked pending order.
func (l *Ledger) ApplyRestingFill(orderID common.OrderID, f fill.Fill, now time.Time) (common.FillEvent, error) {
	idx := l.findPending(orderID)
	if idx < 0 {
		return common.FillEvent{}, ErrOrderNotFound
	}
	entry := l.pending[idx]
	if l.settled[entry.po.MarketID] {
		return common.FillEvent{}, ErrMarketSettled
	}
	if f.Quantity <= 0 || f.Quantity > entry.po.Remaining() {
		return common.FillEvent{}, fmt.Errorf("fill quantity %d outside remaining %d", f.Quantity, entry.po.Remaining())
	}

	if entry.po.Action == common.OrderActionOpen {
		release := entry.reservePC.MulInt64(f.Quantity)
		l.reserved = l.reserved.Sub(release)
		l.cash = l.cash.Add(release)
	}

	event, err := l.settleCashAndPosition(entry.po, f, now)
	if err != nil {
		return common.FillEvent{}, err
	}

	entry.po.Filled += f.Quantity
	if entry.po.Remaining() == 0 {
		l.pending = append(l.pending[:idx], l.pending[idx+1:]...)
	}
	return event, nil
}

// ApplyImmediateFill applies a market-order fill. The order never enters the
// pending list; insufficient cash at this point is a hard error because
// AcceptOrder is expected to have screened it.
func (l *Ledger) ApplyImmediateFill(po common.PendingOrder, f fill.Fill, now time.Time) (common.FillEvent, error) {
	if l.settled[po.MarketID] {
		return common.FillEvent{}, ErrMarketSettled
	}
	if f.Quantity != po.Quantity {
		return common.FillEvent{}, fmt.Errorf("immediate fill quantity %d != order quantity %d", f.Quantity, po.Quantity)
	}
	return l.settleCashAndPosition(po, f, now)
}

func (l *Ledger) settleCashAndPosition(po common.PendingOrder, f fill.Fill, now time.Time) (common.FillEvent, error) {
	switch po.Action {
	case common.OrderActionOpen:
		if err := l.applyOpen(po, f); err != nil {
			return common.FillEvent{}, err
		}
	case common.OrderActionClose:
		if err := l.applyClose(po, f); err != nil {
			return common.FillEvent{}, err
		}
	default:
		return common.FillEvent{}, fmt.Errorf("unsupported fill action %d", po.Action)
	}

	event := common.FillEvent{
		OrderID:   po.ID,
		MarketID:  po.MarketID,
		Side:      po.Side,
		Quantity:  f.Quantity,
		Price:     f.Price,
		Fee:       f.Fee,
		Maker:     f.Maker,
		TimeStamp: now,
	}
	l.fills = append(l.fills, event)
	return event, nil
}

func (l *Ledger) applyOpen(po common.PendingOrder, f fill.Fill) error {
	spend := f.Price.MulInt64(f.Quantity).Add(f.Fee)
	if spend.Gt(l.cash) {
		return &common.InsufficientCapitalError{Required: spend, Available: l.cash}
	}
	l.cash = l.cash.Sub(spend)
	l.realized = l.realized.Sub(f.Fee)

	pos, ok := l.positions[po.MarketID]
	if !ok {
		l.positions[po.MarketID] = &common.Position{
			MarketID: po.MarketID,
			Side:     po.Side,
			Quantity: f.Quantity,
			AvgPrice: f.Price,
			FeesPaid: f.Fee,
		}
		return nil
	}

	if pos.Side == po.Side {
		total := pos.Quantity + f.Quantity
		pos.AvgPrice = pos.AvgPrice.MulInt64(pos.Quantity).
			Add(f.Price.MulInt64(f.Quantity)).
			DivInt64(total)
		pos.Quantity = total
		pos.FeesPaid = pos.FeesPaid.Add(f.Fee)
		return nil
	}

	// Opposing open: holding one side and buying the other nets the pair out
	// at $1, which is a close of the held side at (1 - price). Any remainder
	// opens fresh exposure on the new side.
	closing := f.Quantity
	if closing > pos.Quantity {
		closing = pos.Quantity
	}
	closePrice := fixed.One.Sub(f.Price)
	closedPnL := closePrice.Sub(pos.AvgPrice).MulInt64(closing)
	l.cash = l.cash.Add(fixed.One.MulInt64(closing))
	l.realized = l.realized.Add(closedPnL)
	l.closures = append(l.closures, closedPnL)

	pos.Quantity -= closing
	if pos.Quantity == 0 {
		delete(l.positions, po.MarketID)
	}

	if rest := f.Quantity - closing; rest > 0 {
		l.positions[po.MarketID] = &common.Position{
			MarketID: po.MarketID,
			Side:     po.Side,
			Quantity: rest,
			AvgPrice: f.Price,
			FeesPaid: f.Fee,
		}
	}
	return nil
}

func (l *Ledger) applyClose(po common.PendingOrder, f fill.Fill) error {
	pos, ok := l.positions[po.MarketID]
	if !ok {
		return ErrNoPosition
	}
	if pos.Side != po.Side {
		return ErrSideMismatch
	}
	if f.Quantity > pos.Quantity {
		return ErrOversell
	}

	proceeds := f.Price.MulInt64(f.Quantity).Sub(f.Fee)
	closedPnL := f.Price.Sub(pos.AvgPrice).MulInt64(f.Quantity).Sub(f.Fee)
	l.cash = l.cash.Add(proceeds)
	l.realized = l.realized.Add(closedPnL)
	l.closures = append(l.closures, closedPnL)

	pos.Quantity -= f.Quantity
	pos.FeesPaid = pos.FeesPaid.Add(f.Fee)
	if pos.Quantity == 0 {
		delete(l.positions, po.MarketID)
	}
	return nil
}

// SettleMarket resolves a finalized market: $1.00 per contract on the winning
// side, $0.00 on the losing side. Resting orders on the market are implicitly
// cancelled, never filled. A market settles at most once per run.
func (l *Ledger) SettleMarket(id common.MarketID, result common.Side, now time.Time) (common.SettlementEvent, error) {
	if l.settled[id] {
		return common.SettlementEvent{}, ErrAlreadySettled
	}
	l.settled[id] = true

	for i := len(l.pending) - 1; i >= 0; i-- {
		if l.pending[i].po.MarketID == id {
			l.releasePending(i)
		}
	}

	event := common.SettlementEvent{MarketID: id, Result: result, TimeStamp: now}
	if pos, ok := l.positions[id]; ok {
		event.Quantity = pos.Quantity
		if pos.Side == result {
			event.Proceeds = fixed.One.MulInt64(pos.Quantity)
		}
		event.NetPnL = event.Proceeds.Sub(pos.CostBasis())

		l.cash = l.cash.Add(event.Proceeds)
		l.realized = l.realized.Add(event.NetPnL)
		l.closures = append(l.closures, event.NetPnL)
		delete(l.positions, id)
	}

	l.settlements = append(l.settlements, event)
	return event, nil
}

// CancelOrder removes a pending order, releasing any remaining reserve.
func (l *Ledger) CancelOrder(orderID common.OrderID) error {
	idx := l.findPending(orderID)
	if idx < 0 {
		return ErrOrderNotFound
	}
	l.releasePending(idx)
	return nil
}

func (l *Ledger) releasePending(idx int) {
	entry := l.pending[idx]
	if entry.po.Action == common.OrderActionOpen {
		release := entry.reservePC.MulInt64(entry.po.Remaining())
		l.reserved = l.reserved.Sub(release)
		l.cash = l.cash.Add(release)
	}
	l.pending = append(l.pending[:idx], l.pending[idx+1:]...)
}

func (l *Ledger) findPending(orderID common.OrderID) int {
	for i, entry := range l.pending {
		if entry.po.ID == orderID {
			return i
		}
	}
	return -1
}

// Snapshot returns a read-only deep copy of portfolio state.
func (l *Ledger) Snapshot() common.PortfolioState {
	positions := make(map[common.MarketID]common.Position, len(l.positions))
	for id, pos := range l.positions {
		positions[id] = *pos
	}
	pending := make([]common.PendingOrder, 0, len(l.pending))
	for _, entry := range l.pending {
		pending = append(pending, entry.po)
	}
	return common.PortfolioState{
		Cash:        l.cash,
		Reserved:    l.reserved,
		Positions:   positions,
		Pending:     pending,
		RealizedPnL: l.realized,
	}
}

// Pending returns tracked pending orders in submission order.
func (l *Ledger) Pending() []common.PendingOrder {
	out := make([]common.PendingOrder, 0, len(l.pending))
	for _, entry := range l.pending {
		out = append(out, entry.po)
	}
	return out
}

func (l *Ledger) Cash() fixed.Point     { return l.cash }
func (l *Ledger) Reserved() fixed.Point { return l.reserved }

func (l *Ledger) RealizedPnL() fixed.Point    { return l.realized }
func (l *Ledger) InitialCapital() fixed.Point { return l.initial }

func (l *Ledger) IsSettled(id common.MarketID) bool { return l.settled[id] }

func (l *Ledger) Fills() []common.FillEvent             { return l.fills }
func (l *Ledger) Settlements() []common.SettlementEvent { return l.settlements }

// Closures lists the net P&L of every closed exposure (explicit close,
// opposing-side netting or settlement), in close order.
func (l *Ledger) Closures() []fixed.Point { return l.closures }

// CostBasis is the aggregate entry cost of all open positions.
func (l *Ledger) CostBasis() fixed.Point {
	basis := fixed.Zero
	for _, pos := range l.positions {
		basis = basis.Add(pos.CostBasis())
	}
	return basis
}
