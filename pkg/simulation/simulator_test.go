package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgewise-labs/kalsim/pkg/candle"
	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/fill"
	"github.com/edgewise-labs/kalsim/pkg/ledger"
	"github.com/edgewise-labs/kalsim/pkg/strategy"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

var simStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// scripted replays a fixed order schedule and records everything it is told.
type scripted struct {
	orders      map[time.Time][]common.Order
	failAt      time.Time
	fills       []common.FillEvent
	settlements []common.MarketID
}

func (s *scripted) Initialize(strategy.RunMetadata) error { return nil }

func (s *scripted) OnTick(now time.Time, _ map[common.MarketID]common.MarketSnapshot, _ common.PortfolioState) ([]common.Order, error) {
	if !s.failAt.IsZero() && now.Equal(s.failAt) {
		return nil, errors.New("scripted failure")
	}
	return s.orders[now], nil
}

func (s *scripted) OnFill(f common.FillEvent) { s.fills = append(s.fills, f) }

func (s *scripted) OnSettlement(id common.MarketID, _ common.Side, _ fixed.Point) {
	s.settlements = append(s.settlements, id)
}

func simTrade(id common.MarketID, minuteOffset int, yesCents, count int64) common.Trade {
	return common.Trade{
		MarketID:  id,
		TimeStamp: simStart.Add(time.Duration(minuteOffset) * time.Minute),
		YesPrice:  fixed.FromInt64(yesCents, 2),
		Count:     count,
		TakerSide: common.SideYes,
	}
}

func buildSeries(t *testing.T, markets map[common.MarketID]common.Market, trades []common.Trade) *candle.Series {
	t.Helper()
	series, err := candle.NewAggregator(markets).Aggregate(trades)
	require.NoError(t, err)
	return series
}

func newSim(t *testing.T, markets map[common.MarketID]common.Market, trades []common.Trade,
	strat strategy.Strategy, minutes int) (*Simulator, *ledger.Ledger, *Audit) {
	t.Helper()

	cfg := Configuration{
		Start:            simStart,
		End:              simStart.Add(time.Duration(minutes) * time.Minute),
		StartCash:        fixed.FromInt64(1000, 0),
		SnapshotInterval: time.Minute,
	}
	ldg := ledger.New(cfg.StartCash, fill.DefaultFees())
	audit := NewAudit(cfg.SnapshotInterval)
	model := fill.NewModel(fill.DefaultCalibration(), fill.DefaultFees())
	sim := NewSimulator(zap.NewNop(), buildSeries(t, markets, trades), markets, model, ldg, strat, audit, cfg)
	return sim, ldg, audit
}

func activeMarket(id common.MarketID) common.Market {
	return common.Market{
		ID:            id,
		Category:      "Sports",
		FeeMultiplier: fixed.One,
		Status:        common.MarketStatusActive,
		CloseTime:     simStart.Add(24 * time.Hour),
	}
}

func TestSimulator_RestingOrderNeverFillsOnPlacementTick(t *testing.T) {
	markets := map[common.MarketID]common.Market{"KXNBA-A": activeMarket("KXNBA-A")}
	trades := []common.Trade{
		simTrade("KXNBA-A", 0, 40, 100),
		simTrade("KXNBA-A", 1, 40, 100),
	}

	strat := &scripted{orders: map[time.Time][]common.Order{
		simStart: {{
			MarketID:   "KXNBA-A",
			Side:       common.SideYes,
			Type:       common.OrderTypeLimit,
			Action:     common.OrderActionOpen,
			Quantity:   5,
			LimitPrice: fixed.FromInt64(41, 2),
		}},
	}}

	sim, ldg, _ := newSim(t, markets, trades, strat, 2)
	require.NoError(t, sim.Run(context.Background()))

	// The 12:00 activity existed when the order was placed at 12:00; it must
	// fill against 12:01 activity instead.
	require.Len(t, ldg.Fills(), 1)
	assert.Equal(t, simStart.Add(time.Minute), ldg.Fills()[0].TimeStamp)
	assert.Equal(t, int64(5), ldg.Fills()[0].Quantity)
	assert.True(t, ldg.Fills()[0].Maker)
	require.Len(t, strat.fills, 1)
}

func TestSimulator_MarketOrderExecutesAtCandleClose(t *testing.T) {
	markets := map[common.MarketID]common.Market{"KXNBA-A": activeMarket("KXNBA-A")}
	trades := []common.Trade{simTrade("KXNBA-A", 0, 57, 10)}

	strat := &scripted{orders: map[time.Time][]common.Order{
		simStart: {{
			MarketID: "KXNBA-A",
			Side:     common.SideYes,
			Type:     common.OrderTypeMarket,
			Action:   common.OrderActionOpen,
			Quantity: 3,
		}},
	}}

	sim, ldg, _ := newSim(t, markets, trades, strat, 1)
	require.NoError(t, sim.Run(context.Background()))

	require.Len(t, ldg.Fills(), 1)
	f := ldg.Fills()[0]
	assert.True(t, f.Price.Eq(fixed.FromInt64(57, 2)), "price = %s", f.Price)
	assert.Equal(t, simStart, f.TimeStamp)
	assert.False(t, f.Maker)
}

func TestSimulator_SettlementPreemptsFills(t *testing.T) {
	market := activeMarket("KXNBA-A")
	market.Status = common.MarketStatusSettled
	market.CloseTime = simStart.Add(2 * time.Minute)
	market.Result = common.SideYes
	markets := map[common.MarketID]common.Market{"KXNBA-A": market}

	trades := []common.Trade{
		simTrade("KXNBA-A", 0, 80, 10),
		// Activity in the settlement minute must never fill anything.
		simTrade("KXNBA-A", 2, 85, 1000),
	}

	strat := &scripted{orders: map[time.Time][]common.Order{
		simStart: {
			{MarketID: "KXNBA-A", Side: common.SideYes, Type: common.OrderTypeMarket, Action: common.OrderActionOpen, Quantity: 10},
			{MarketID: "KXNBA-A", Side: common.SideYes, Type: common.OrderTypeLimit, Action: common.OrderActionOpen, Quantity: 50, LimitPrice: fixed.FromInt64(86, 2)},
		},
	}}

	sim, ldg, _ := newSim(t, markets, trades, strat, 3)
	require.NoError(t, sim.Run(context.Background()))

	// Only the immediate fill at 12:00; the resting order died with the
	// market.
	require.Len(t, ldg.Fills(), 1)
	assert.Empty(t, ldg.Pending())
	assert.True(t, ldg.Reserved().IsZero())

	require.Len(t, ldg.Settlements(), 1)
	settlement := ldg.Settlements()[0]
	assert.Equal(t, simStart.Add(2*time.Minute), settlement.TimeStamp)
	assert.True(t, settlement.Proceeds.Eq(fixed.FromInt64(10, 0)))
	assert.Equal(t, []common.MarketID{"KXNBA-A"}, strat.settlements)

	// Settlements are exclusive: no second event on later ticks.
	assert.True(t, ldg.IsSettled("KXNBA-A"))
}

func TestSimulator_StrategyErrorTerminatesRun(t *testing.T) {
	markets := map[common.MarketID]common.Market{"KXNBA-A": activeMarket("KXNBA-A")}
	trades := []common.Trade{simTrade("KXNBA-A", 0, 50, 10)}

	strat := &scripted{failAt: simStart.Add(time.Minute)}
	sim, _, audit := newSim(t, markets, trades, strat, 3)

	err := sim.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy")

	// Only the tick before the failure was recorded.
	assert.Len(t, audit.Snapshots(), 1)
}

func TestSimulator_InsufficientCapitalDropsOrder(t *testing.T) {
	markets := map[common.MarketID]common.Market{"KXNBA-A": activeMarket("KXNBA-A")}
	trades := []common.Trade{simTrade("KXNBA-A", 0, 50, 10)}

	strat := &scripted{orders: map[time.Time][]common.Order{
		simStart: {{
			MarketID: "KXNBA-A",
			Side:     common.SideYes,
			Type:     common.OrderTypeMarket,
			Action:   common.OrderActionOpen,
			Quantity: 100000,
		}},
	}}

	sim, ldg, _ := newSim(t, markets, trades, strat, 1)
	require.NoError(t, sim.Run(context.Background()), "a rejected order is not a run failure")
	assert.Empty(t, ldg.Fills())
	assert.True(t, ldg.Cash().Eq(fixed.FromInt64(1000, 0)))
}

func TestSimulator_CancelOrder(t *testing.T) {
	markets := map[common.MarketID]common.Market{"KXNBA-A": activeMarket("KXNBA-A")}
	trades := []common.Trade{simTrade("KXNBA-A", 0, 50, 10)}

	strat := &scripted{orders: map[time.Time][]common.Order{
		simStart: {{
			MarketID:   "KXNBA-A",
			Side:       common.SideYes,
			Type:       common.OrderTypeLimit,
			Action:     common.OrderActionOpen,
			Quantity:   5,
			LimitPrice: fixed.FromInt64(30, 2),
		}},
		simStart.Add(time.Minute): {{
			MarketID: "KXNBA-A",
			Action:   common.OrderActionCancel,
			TargetID: 1,
		}},
	}}

	sim, ldg, _ := newSim(t, markets, trades, strat, 2)
	require.NoError(t, sim.Run(context.Background()))

	assert.Empty(t, ldg.Pending())
	assert.True(t, ldg.Reserved().IsZero())
	assert.True(t, ldg.Cash().Eq(fixed.FromInt64(1000, 0)))
}

func TestSimulator_EquityIncludesUnrealized(t *testing.T) {
	markets := map[common.MarketID]common.Market{"KXNBA-A": activeMarket("KXNBA-A")}
	trades := []common.Trade{
		simTrade("KXNBA-A", 0, 50, 10),
		simTrade("KXNBA-A", 1, 70, 10),
	}

	strat := &scripted{orders: map[time.Time][]common.Order{
		simStart: {{
			MarketID: "KXNBA-A",
			Side:     common.SideYes,
			Type:     common.OrderTypeMarket,
			Action:   common.OrderActionOpen,
			Quantity: 10,
		}},
	}}

	sim, _, audit := newSim(t, markets, trades, strat, 1)
	require.NoError(t, sim.Run(context.Background()))

	snapshots := audit.Snapshots()
	require.Len(t, snapshots, 2)

	// Bought at 0.50, marked at 0.70 on the next tick.
	assert.True(t, snapshots[0].UnrealizedPnL.IsZero())
	assert.True(t, snapshots[1].UnrealizedPnL.Eq(fixed.FromInt64(2, 0)),
		"unrealized = %s", snapshots[1].UnrealizedPnL)
	assert.True(t, snapshots[1].Exposure.Eq(fixed.FromInt64(7, 0)))
}

func TestSimulator_NettedAwayCloseOrderCancelled(t *testing.T) {
	// Open YES, rest a close, then net the whole position away with an
	// opposing NO open. When later activity would fill the resting close
	// there is nothing left to sell; the stale order must be cancelled, not
	// abort the run.
	markets := map[common.MarketID]common.Market{"KXNBA-A": activeMarket("KXNBA-A")}
	trades := []common.Trade{
		simTrade("KXNBA-A", 0, 50, 10),
		simTrade("KXNBA-A", 1, 50, 10),
		simTrade("KXNBA-A", 2, 56, 100),
	}

	strat := &scripted{orders: map[time.Time][]common.Order{
		simStart: {{
			MarketID: "KXNBA-A",
			Side:     common.SideYes,
			Type:     common.OrderTypeMarket,
			Action:   common.OrderActionOpen,
			Quantity: 10,
		}},
		simStart.Add(time.Minute): {
			{MarketID: "KXNBA-A", Side: common.SideYes, Type: common.OrderTypeLimit,
				Action: common.OrderActionClose, Quantity: 10, LimitPrice: fixed.FromInt64(55, 2)},
			{MarketID: "KXNBA-A", Side: common.SideNo, Type: common.OrderTypeMarket,
				Action: common.OrderActionOpen, Quantity: 10},
		},
	}}

	sim, ldg, _ := newSim(t, markets, trades, strat, 3)
	require.NoError(t, sim.Run(context.Background()))

	// The two opens filled; the resting close never did.
	require.Len(t, ldg.Fills(), 2)
	assert.Empty(t, ldg.Pending())
	assert.Empty(t, ldg.Snapshot().Positions)
	assert.Len(t, ldg.Closures(), 1, "the opposing open netted the position")
}

func TestSimulator_DeterministicReplay(t *testing.T) {
	markets := map[common.MarketID]common.Market{
		"KXNBA-A": activeMarket("KXNBA-A"),
		"KXNBA-B": activeMarket("KXNBA-B"),
		"KXNBA-C": activeMarket("KXNBA-C"),
	}
	var trades []common.Trade
	for minute := 0; minute < 5; minute++ {
		trades = append(trades,
			simTrade("KXNBA-A", minute, int64(85+minute), 40),
			simTrade("KXNBA-B", minute, int64(90-minute), 25),
			simTrade("KXNBA-C", minute, 88, 60),
		)
	}

	run := func() ([]common.FillEvent, []common.EquitySnapshot) {
		strat, err := strategy.New(strategy.Spec{
			Name: "favs", Type: "favorites", MinPrice: 0.85, Quantity: 10, Resting: true,
		})
		require.NoError(t, err)
		sim, ldg, audit := newSim(t, markets, trades, strat, 5)
		require.NoError(t, sim.Run(context.Background()))
		return ldg.Fills(), audit.Snapshots()
	}

	fillsA, equityA := run()
	fillsB, equityB := run()

	require.NotEmpty(t, fillsA)
	assert.Equal(t, fillsA, fillsB, "same inputs must replay identically")
	assert.Equal(t, equityA, equityB)
}

func TestRunner_BatchIsolatesRuns(t *testing.T) {
	markets := map[common.MarketID]common.Market{"KXNBA-A": activeMarket("KXNBA-A")}
	var trades []common.Trade
	for minute := 0; minute < 3; minute++ {
		trades = append(trades, simTrade("KXNBA-A", minute, 90, 50))
	}
	series := buildSeries(t, markets, trades)

	runner := NewRunner(zap.NewNop(), series, markets, fill.DefaultCalibration(), fill.DefaultFees(), Configuration{
		Start:              simStart,
		End:                simStart.Add(3 * time.Minute),
		StartCash:          fixed.FromInt64(1000, 0),
		Partition:          "unit",
		LiquidityThreshold: 0.25,
		SnapshotInterval:   time.Minute,
	})

	results := runner.RunAll(context.Background(), []strategy.Spec{
		{Name: "baseline", Type: "noop"},
		{Name: "favs", Type: "favorites", MinPrice: 0.85, Quantity: 10},
		{Name: "broken", Type: "does-not-exist"},
	})

	require.Len(t, results, 3)

	baseline, favs, broken := results[0], results[1], results[2]

	require.NoError(t, baseline.Err)
	assert.Empty(t, baseline.Fills)
	assert.True(t, baseline.Final.Cash.Eq(fixed.FromInt64(1000, 0)))

	require.NoError(t, favs.Err)
	assert.NotEmpty(t, favs.Fills)
	assert.Equal(t, "unit", favs.Partition)
	assert.NotEqual(t, baseline.RunID, favs.RunID)

	assert.Error(t, broken.Err)
}
