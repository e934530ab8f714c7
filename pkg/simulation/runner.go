package simulation

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgewise-labs/kalsim/pkg/candle"
	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/fill"
	"github.com/edgewise-labs/kalsim/pkg/ledger"
	"github.com/edgewise-labs/kalsim/pkg/metrics"
	"github.com/edgewise-labs/kalsim/pkg/strategy"
	"github.com/edgewise-labs/kalsim/pkg/utility"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// Result is the complete output of one strategy's run. Err is set when the
// run terminated early; the collected output up to that point is retained.
type Result struct {
	RunID     utility.RunID
	Strategy  string
	Partition string

	Snapshots   []common.EquitySnapshot
	Fills       []common.FillEvent
	Settlements []common.SettlementEvent
	Closures    []fixed.Point
	Final       common.PortfolioState
	Metrics     metrics.Report

	Err error
}

// Runner evaluates a batch of strategies over one shared dataset. The candle
// series and market metadata are read-only and shared; every run gets its own
// ledger, fill model and strategy instance, so runs never observe each other.
type Runner struct {
	logger  *zap.Logger
	series  *candle.Series
	markets map[common.MarketID]common.Market
	cal     fill.Calibration
	fees    fill.FeeSchedule
	cfg     Configuration
}

func NewRunner(logger *zap.Logger, series *candle.Series, markets map[common.MarketID]common.Market,
	cal fill.Calibration, fees fill.FeeSchedule, cfg Configuration) *Runner {
	return &Runner{
		logger:  logger,
		series:  series,
		markets: markets,
		cal:     cal,
		fees:    fees,
		cfg:     cfg,
	}
}

// RunAll executes every strategy concurrently and returns results in input
// order. A panicking run is caught and reported as that run's error without
// disturbing the rest of the batch.
func (r *Runner) RunAll(ctx context.Context, specs []strategy.Spec) []Result {
	results := make([]Result, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec strategy.Spec) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("run panicked",
						zap.String("strategy", spec.Name),
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()))
					results[i].Strategy = spec.Name
					results[i].Partition = r.cfg.Partition
					results[i].Err = fmt.Errorf("run panicked: %v", rec)
				}
			}()
			results[i] = r.runOne(ctx, spec)
		}(i, spec)
	}
	wg.Wait()

	return results
}

func (r *Runner) runOne(ctx context.Context, spec strategy.Spec) Result {
	result := Result{
		RunID:     utility.NewRunID(),
		Strategy:  spec.Name,
		Partition: r.cfg.Partition,
	}

	strat, err := strategy.New(spec)
	if err != nil {
		result.Err = err
		return result
	}
	if err := strat.Initialize(strategy.RunMetadata{
		RunID:     result.RunID,
		Name:      spec.Name,
		Partition: r.cfg.Partition,
		Start:     r.cfg.Start,
		End:       r.cfg.End,
		StartCash: r.cfg.StartCash,
	}); err != nil {
		result.Err = fmt.Errorf("initialize %s: %w", spec.Name, err)
		return result
	}

	logger := r.logger.With(
		zap.String("strategy", spec.Name),
		zap.String("run_id", result.RunID.String()))

	var options []fill.Option
	if r.cfg.SampleFills {
		options = append(options, fill.WithSampling(r.cfg.Seed))
	}
	model := fill.NewModel(r.cal, r.fees, options...)

	ldg := ledger.New(r.cfg.StartCash, r.fees)
	audit := NewAudit(r.cfg.SnapshotInterval)
	simulator := NewSimulator(logger, r.series, r.markets, model, ldg, strat, audit, r.cfg)

	started := time.Now()
	if err := simulator.Run(ctx); err != nil {
		result.Err = err
	}
	logger.Info("run finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("fills", len(ldg.Fills())),
		zap.Int("settlements", len(ldg.Settlements())))

	result.Snapshots = audit.Snapshots()
	result.Fills = ldg.Fills()
	result.Settlements = ldg.Settlements()
	result.Closures = ldg.Closures()
	result.Final = ldg.Snapshot()
	result.Metrics = metrics.Compute(result.Snapshots, result.Closures, metrics.CapacityInput{
		Params:             r.cal.Default,
		TypicalVolume:      metrics.MedianVolume(r.series.MinuteVolumes()),
		LiquidityThreshold: r.cfg.LiquidityThreshold,
	})
	return result
}
