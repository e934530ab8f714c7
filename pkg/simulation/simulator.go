package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/edgewise-labs/kalsim/pkg/candle"
	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/fill"
	"github.com/edgewise-labs/kalsim/pkg/ledger"
	"github.com/edgewise-labs/kalsim/pkg/strategy"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// Simulator replays one evaluation window against one strategy, one minute
// per tick. Each tick runs the same six steps in order: settle due markets,
// resolve resting orders, build market snapshots, ask the strategy for
// decisions, execute them, record equity. Two runs over the same inputs with
// the same seed produce identical output.
type Simulator struct {
	logger   *zap.Logger
	series   *candle.Series
	model    *fill.Model
	ledger   *ledger.Ledger
	strategy strategy.Strategy
	audit    *Audit

	markets   map[common.MarketID]common.Market
	marketIDs []common.MarketID

	lastPrice map[common.MarketID]fixed.Point
	cumVolume map[common.MarketID]int64
	hasTraded map[common.MarketID]bool

	simulationTime time.Time
	cfg            Configuration
}

func NewSimulator(logger *zap.Logger, series *candle.Series, markets map[common.MarketID]common.Market,
	model *fill.Model, ldg *ledger.Ledger, strat strategy.Strategy, audit *Audit, cfg Configuration) *Simulator {

	ids := make([]common.MarketID, 0, len(markets))
	for id := range markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return &Simulator{
		logger:    logger,
		series:    series,
		model:     model,
		ledger:    ldg,
		strategy:  strat,
		audit:     audit,
		markets:   markets,
		marketIDs: ids,
		lastPrice: make(map[common.MarketID]fixed.Point),
		cumVolume: make(map[common.MarketID]int64),
		hasTraded: make(map[common.MarketID]bool),
		cfg:       cfg,
	}
}

// Run replays the configured window tick by tick. A strategy error or a
// corrupted ledger state terminates the run before the failing tick is
// recorded; rejected orders only log and drop.
func (s *Simulator) Run(ctx context.Context) error {
	start := s.cfg.Start.UTC().Truncate(time.Minute)
	end := s.cfg.End.UTC().Truncate(time.Minute)

	for now := start; !now.After(end); now = now.Add(time.Minute) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.OnTick(now); err != nil {
			return fmt.Errorf("tick %s: %w", now.Format(time.RFC3339), err)
		}
	}

	if !s.simulationTime.IsZero() {
		s.audit.Finalize(s.equitySnapshot(s.simulationTime))
	}
	return nil
}

func (s *Simulator) OnTick(now time.Time) error {
	s.simulationTime = now

	s.settleDue(now)
	if err := s.resolveResting(now); err != nil {
		return err
	}

	snapshots := s.buildSnapshots(now)

	orders, err := s.strategy.OnTick(now, snapshots, s.ledger.Snapshot())
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	if err := s.execute(orders, snapshots, now); err != nil {
		return err
	}

	s.audit.AddEquitySnapshot(s.equitySnapshot(now))
	return nil
}

// settleDue finalizes every market whose close time has been reached.
// Resting orders on a settling market are cancelled by the ledger, never
// filled, and the settlement payout applies before any other processing of
// the tick.
func (s *Simulator) settleDue(now time.Time) {
	for _, id := range s.marketIDs {
		market := s.markets[id]
		if market.Status != common.MarketStatusSettled || s.ledger.IsSettled(id) {
			continue
		}
		if market.CloseTime.After(now) {
			continue
		}

		event, err := s.ledger.SettleMarket(id, market.Result, now)
		if err != nil {
			s.logger.Warn("unable to settle market", zap.String("market", string(id)), zap.Error(err))
			continue
		}
		s.strategy.OnSettlement(id, market.Result, event.NetPnL)
	}
}

// resolveResting matches outstanding limit orders against the tick's trade
// activity. Orders submitted this tick rest until the next one.
func (s *Simulator) resolveResting(now time.Time) error {
	for _, po := range s.ledger.Pending() {
		if !po.SubmittedAt.Before(now) {
			continue
		}
		if s.ledger.IsSettled(po.MarketID) {
			continue
		}

		trades := s.series.ActivityAt(po.MarketID, now)
		if len(trades) == 0 {
			continue
		}

		f, err := s.model.ResolveResting(po, trades, s.markets[po.MarketID])
		if err != nil {
			var inputErr *common.InvalidFillInputError
			if errors.As(err, &inputErr) {
				s.logger.Warn("cancelling unfillable order",
					zap.Int64("order_id", int64(po.ID)), zap.Error(err))
				if cErr := s.ledger.CancelOrder(po.ID); cErr != nil {
					return cErr
				}
				continue
			}
			return err
		}
		if f.Quantity == 0 {
			continue
		}

		event, err := s.ledger.ApplyRestingFill(po.ID, f, now)
		if err != nil {
			// A close order can outlive its position when an opposing open
			// nets the exposure away; the stale order is cancelled, not a
			// run failure.
			if errors.Is(err, ledger.ErrNoPosition) ||
				errors.Is(err, ledger.ErrSideMismatch) ||
				errors.Is(err, ledger.ErrOversell) {
				s.logger.Warn("cancelling stale close order",
					zap.Int64("order_id", int64(po.ID)), zap.Error(err))
				if cErr := s.ledger.CancelOrder(po.ID); cErr != nil {
					return cErr
				}
				continue
			}
			return err
		}
		s.strategy.OnFill(event)
	}
	return nil
}

// buildSnapshots assembles the strategy's view of every market at this tick.
// The candle of minute T is visible at tick T; quotes approximate a spread
// around the last traded price since no book depth survives in trade data.
func (s *Simulator) buildSnapshots(now time.Time) map[common.MarketID]common.MarketSnapshot {
	snapshots := make(map[common.MarketID]common.MarketSnapshot, len(s.marketIDs))

	for _, id := range s.marketIDs {
		market := s.markets[id]

		if c := s.series.At(id, now); c != nil {
			s.lastPrice[id] = c.Close
			s.cumVolume[id] += c.Volume
			s.hasTraded[id] = true
		}

		snapshot := common.MarketSnapshot{
			Market:           market,
			Candle:           s.series.At(id, now),
			HasTraded:        s.hasTraded[id],
			CumulativeVolume: s.cumVolume[id],
		}
		if s.hasTraded[id] {
			last := s.lastPrice[id]
			snapshot.LastPrice = last
			snapshot.BestBid = clampPrice(last.Sub(fixed.Cent))
			snapshot.BestAsk = clampPrice(last.Add(fixed.Cent))
		}
		// Metadata carries the market's final status; during replay it is
		// active until its settlement applies.
		snapshot.Status = common.MarketStatusActive
		if s.ledger.IsSettled(id) {
			snapshot.Status = common.MarketStatusSettled
		}
		snapshots[id] = snapshot
	}
	return snapshots
}

// execute applies the strategy's decisions in the order returned. A rejected
// order is dropped with a warning; only ledger corruption aborts the run.
func (s *Simulator) execute(orders []common.Order, snapshots map[common.MarketID]common.MarketSnapshot, now time.Time) error {
	for _, order := range orders {
		if order.Action == common.OrderActionCancel {
			if err := s.ledger.CancelOrder(order.TargetID); err != nil {
				s.logger.Warn("unable to cancel order",
					zap.Int64("order_id", int64(order.TargetID)), zap.Error(err))
			}
			continue
		}

		snapshot, ok := snapshots[order.MarketID]
		if !ok {
			s.logger.Warn("order for unknown market", zap.String("market", string(order.MarketID)))
			continue
		}
		if s.ledger.IsSettled(order.MarketID) {
			s.logger.Warn("order for settled market", zap.String("market", string(order.MarketID)))
			continue
		}

		switch order.Type {
		case common.OrderTypeMarket:
			if err := s.executeMarket(order, snapshot, now); err != nil {
				return err
			}
		case common.OrderTypeLimit:
			s.executeLimit(order, snapshot.Market, now)
		default:
			s.logger.Warn("unknown order type", zap.Any("type", order.Type))
		}
	}
	return nil
}

// executeMarket resolves the execution first, then passes the resolved price
// through acceptance so the capital check sees the real cost.
func (s *Simulator) executeMarket(order common.Order, snapshot common.MarketSnapshot, now time.Time) error {
	f, err := s.model.ResolveMarket(order, snapshot)
	if err != nil {
		s.logger.Warn("dropping market order",
			zap.String("market", string(order.MarketID)), zap.Error(err))
		return nil
	}

	po, err := s.ledger.AcceptOrder(order, snapshot.Market, f.Price, now)
	if err != nil {
		return dropOnRejection(s.logger, order, err)
	}

	event, err := s.ledger.ApplyImmediateFill(po, f, now)
	if err != nil {
		return err
	}
	s.strategy.OnFill(event)
	return nil
}

func (s *Simulator) executeLimit(order common.Order, market common.Market, now time.Time) {
	if _, err := s.ledger.AcceptOrder(order, market, fixed.Zero, now); err != nil {
		_ = dropOnRejection(s.logger, order, err)
	}
}

// dropOnRejection swallows capital and validation rejections, which are an
// expected simulation outcome, and propagates anything else.
func dropOnRejection(logger *zap.Logger, order common.Order, err error) error {
	var capErr *common.InsufficientCapitalError
	if errors.As(err, &capErr) ||
		errors.Is(err, ledger.ErrInvalidQuantity) ||
		errors.Is(err, ledger.ErrInvalidPrice) ||
		errors.Is(err, ledger.ErrNoPosition) ||
		errors.Is(err, ledger.ErrSideMismatch) ||
		errors.Is(err, ledger.ErrOversell) {
		logger.Warn("dropping rejected order",
			zap.String("market", string(order.MarketID)),
			zap.Int64("quantity", order.Quantity),
			zap.Error(err))
		return nil
	}
	return err
}

func (s *Simulator) equitySnapshot(now time.Time) common.EquitySnapshot {
	state := s.ledger.Snapshot()

	exposure := fixed.Zero
	unrealized := fixed.Zero
	for id, pos := range state.Positions {
		mark := pos.AvgPrice
		if s.hasTraded[id] {
			mark = sideTerms(s.lastPrice[id], pos.Side)
		}
		exposure = exposure.Add(mark.MulInt64(pos.Quantity))
		unrealized = unrealized.Add(mark.Sub(pos.AvgPrice).MulInt64(pos.Quantity))
	}

	return common.EquitySnapshot{
		TimeStamp:     now,
		Cash:          state.Cash,
		Reserved:      state.Reserved,
		Exposure:      exposure,
		Equity:        state.Cash.Add(state.Reserved).Add(exposure),
		RealizedPnL:   state.RealizedPnL,
		UnrealizedPnL: unrealized,
	}
}

func sideTerms(yesPrice fixed.Point, side common.Side) fixed.Point {
	if side == common.SideNo {
		return fixed.One.Sub(yesPrice)
	}
	return yesPrice
}

func clampPrice(p fixed.Point) fixed.Point {
	if p.Lte(common.PriceFloor) {
		return fixed.Cent
	}
	if p.Gte(common.PriceCeil) {
		return fixed.One.Sub(fixed.Cent)
	}
	return p
}
