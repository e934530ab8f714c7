package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgewise-labs/kalsim/internal/config"
	"github.com/edgewise-labs/kalsim/internal/dbg"
	"github.com/edgewise-labs/kalsim/pkg/candle"
	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/data/duckdb"
	"github.com/edgewise-labs/kalsim/pkg/data/mapper"
	"github.com/edgewise-labs/kalsim/pkg/fill"
	"github.com/edgewise-labs/kalsim/pkg/journal"
	"github.com/edgewise-labs/kalsim/pkg/simulation"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a historical window against the configured strategies",
	Long: `Backtest loads trade history for the configured window, aggregates it
into minute candles, and evaluates every configured strategy concurrently
against its own isolated portfolio. Results are journaled to SQLite.

Example:
  kalsim backtest --config configs/backtest.yaml`,
	RunE: runBacktest,
}

var btConfigPath string

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "c", "", "path to the run configuration yaml (required)")
	_ = backtestCmd.MarkFlagRequired("config")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(btConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := dbg.NewLogger(cfg.Log.Level)
	defer func() {
		_ = logger.Sync()
	}()

	cal := fill.DefaultCalibration()
	if cfg.Data.CalibrationPath != "" {
		if cal, err = fill.LoadCalibration(cfg.Data.CalibrationPath); err != nil {
			return fmt.Errorf("load calibration: %w", err)
		}
	}
	logger.Info("calibration loaded", zap.String("version", cal.Version))

	markets, trades, err := loadHistory(cmd.Context(), logger, cfg)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	logger.Info("history loaded",
		zap.Int("markets", len(markets)),
		zap.Int("trades", len(trades)))

	series, err := candle.NewAggregator(markets).Aggregate(trades)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	runner := simulation.NewRunner(logger, series, markets, cal, fill.DefaultFees(), simulation.Configuration{
		Start:              cfg.Window.Start,
		End:                cfg.Window.End,
		StartCash:          fixed.FromFloat64(cfg.Simulation.StartCash).Rescale(2),
		Partition:          cfg.Window.Partition,
		Seed:               cfg.Simulation.Seed,
		SampleFills:        cfg.Simulation.SampleFills,
		LiquidityThreshold: cfg.Simulation.LiquidityThreshold,
		SnapshotInterval:   cfg.Simulation.SnapshotInterval,
	})

	results := runner.RunAll(cmd.Context(), cfg.Strategies)

	store, err := journal.New(cfg.Journal.SQLitePath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	var failed int
	for _, result := range results {
		runLogger := logger.With(
			zap.String("strategy", result.Strategy),
			zap.String("run_id", result.RunID.String()))

		if result.Err != nil {
			failed++
			runLogger.Error("run failed", zap.Error(result.Err))
		} else {
			result.Metrics.Log(runLogger)
		}

		if err := store.Record(cmd.Context(), result); err != nil {
			return fmt.Errorf("journal run %s: %w", result.RunID, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(results))
	}
	return nil
}

func loadHistory(ctx context.Context, logger *zap.Logger, cfg *config.Config) (map[common.MarketID]common.Market, []common.Trade, error) {
	reader := duckdb.NewReader(cfg.Data.DuckDBPath)
	if err := reader.Connect(); err != nil {
		return nil, nil, err
	}
	defer reader.Close()

	markets := make(map[common.MarketID]common.Market)
	if err := reader.LoadMarkets(ctx, func(market common.Market) error {
		markets[market.ID] = market
		return nil
	}); err != nil {
		return nil, nil, err
	}

	if cfg.Data.ArchiveDir != "" {
		trades, err := loadArchivedTrades(logger, cfg, markets)
		return markets, trades, err
	}

	var trades []common.Trade
	if err := reader.LoadTrades(ctx, cfg.Window.Start, cfg.Window.End, func(trade common.Trade) error {
		trades = append(trades, trade)
		return nil
	}); err != nil {
		return nil, nil, err
	}
	return markets, trades, nil
}

// loadArchivedTrades reads the fixed-width binary archive, one file per
// market ticker. Markets without an archive file simply have no trades in
// the window.
func loadArchivedTrades(logger *zap.Logger, cfg *config.Config, markets map[common.MarketID]common.Market) ([]common.Trade, error) {
	var trades []common.Trade
	for id := range markets {
		path := filepath.Join(cfg.Data.ArchiveDir, string(id)+".bin")
		if _, err := os.Stat(path); err != nil {
			continue
		}

		loader := mapper.NewLoader(id, path)
		if err := loader.Open(); err != nil {
			return nil, err
		}
		window, err := loader.LoadWindow(cfg.Window.Start, cfg.Window.End)
		loader.Close()
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", path, err)
		}

		logger.Debug("archive loaded", zap.String("market", string(id)), zap.Int("trades", len(window)))
		trades = append(trades, window...)
	}
	return trades, nil
}
