// Package journal persists run results to a sqlite file so batches can be
// compared across invocations.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/edgewise-labs/kalsim/pkg/simulation"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	strategy     TEXT NOT NULL,
	partition_label TEXT NOT NULL,
	recorded_at  TEXT NOT NULL,
	error        TEXT,
	final_cash   TEXT NOT NULL,
	realized_pnl TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS equity (
	run_id         TEXT NOT NULL REFERENCES runs(run_id),
	ts             TEXT NOT NULL,
	cash           TEXT NOT NULL,
	reserved       TEXT NOT NULL,
	exposure       TEXT NOT NULL,
	equity         TEXT NOT NULL,
	realized_pnl   TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS fills (
	run_id   TEXT NOT NULL REFERENCES runs(run_id),
	order_id INTEGER NOT NULL,
	market   TEXT NOT NULL,
	side     TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price    TEXT NOT NULL,
	fee      TEXT NOT NULL,
	maker    INTEGER NOT NULL,
	ts       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settlements (
	run_id   TEXT NOT NULL REFERENCES runs(run_id),
	market   TEXT NOT NULL,
	result   TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	proceeds TEXT NOT NULL,
	net_pnl  TEXT NOT NULL,
	ts       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS metrics (
	run_id  TEXT PRIMARY KEY REFERENCES runs(run_id),
	report  TEXT NOT NULL
)`)
	return err
}

// Record writes one run's full output in a single transaction.
func (s *Store) Record(ctx context.Context, result simulation.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	runErr := sql.NullString{}
	if result.Err != nil {
		runErr = sql.NullString{String: result.Err.Error(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, strategy, partition_label, recorded_at, error, final_cash, realized_pnl)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.RunID.String(), result.Strategy, result.Partition,
		time.Now().UTC().Format(time.RFC3339), runErr,
		result.Final.Cash.String(), result.Final.RealizedPnL.String()); err != nil {
		return err
	}

	for _, snapshot := range result.Snapshots {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO equity (run_id, ts, cash, reserved, exposure, equity, realized_pnl, unrealized_pnl)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID.String(), snapshot.TimeStamp.UTC().Format(time.RFC3339),
			snapshot.Cash.String(), snapshot.Reserved.String(), snapshot.Exposure.String(),
			snapshot.Equity.String(), snapshot.RealizedPnL.String(), snapshot.UnrealizedPnL.String()); err != nil {
			return err
		}
	}

	for _, f := range result.Fills {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fills (run_id, order_id, market, side, quantity, price, fee, maker, ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID.String(), int64(f.OrderID), string(f.MarketID), f.Side.String(),
			f.Quantity, f.Price.String(), f.Fee.String(), f.Maker,
			f.TimeStamp.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	for _, settlement := range result.Settlements {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settlements (run_id, market, result, quantity, proceeds, net_pnl, ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			result.RunID.String(), string(settlement.MarketID), settlement.Result.String(),
			settlement.Quantity, settlement.Proceeds.String(), settlement.NetPnL.String(),
			settlement.TimeStamp.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	report, err := json.Marshal(sanitizeReport(result))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO metrics (run_id, report) VALUES (?, ?)`,
		result.RunID.String(), string(report)); err != nil {
		return err
	}

	return tx.Commit()
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID       string
	Strategy    string
	Partition   string
	RecordedAt  time.Time
	Error       string
	FinalCash   string
	RealizedPnL string
}

// Runs lists recorded runs for a partition, newest first. An empty partition
// lists everything.
func (s *Store) Runs(ctx context.Context, partition string) ([]RunSummary, error) {
	query := `SELECT run_id, strategy, partition_label, recorded_at, COALESCE(error, ''), final_cash, realized_pnl
		FROM runs WHERE (? = '' OR partition_label = ?) ORDER BY recorded_at DESC`

	rows, err := s.db.QueryContext(ctx, query, partition, partition)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var summaries []RunSummary
	for rows.Next() {
		var (
			summary  RunSummary
			recorded string
		)
		if err := rows.Scan(&summary.RunID, &summary.Strategy, &summary.Partition,
			&recorded, &summary.Error, &summary.FinalCash, &summary.RealizedPnL); err != nil {
			return nil, err
		}
		summary.RecordedAt, _ = time.Parse(time.RFC3339, recorded)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// sanitizeReport replaces non-finite ratios, which encoding/json rejects,
// with JSON nulls.
func sanitizeReport(result simulation.Result) map[string]any {
	report := map[string]any{
		"cumulative_pnl": result.Metrics.CumulativePnL.String(),
		"max_drawdown":   result.Metrics.MaxDrawdown.String(),
		"capacity":       result.Metrics.Capacity,
		"closed_trades":  result.Metrics.ClosedTrades,
		"trading_days":   result.Metrics.TradingDays,
	}
	for key, value := range map[string]float64{
		"sharpe":           result.Metrics.Sharpe,
		"max_drawdown_pct": result.Metrics.MaxDrawdownPct,
		"win_rate":         result.Metrics.WinRate,
		"profit_factor":    result.Metrics.ProfitFactor,
	} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			report[key] = nil
			continue
		}
		report[key] = value
	}
	return report
}
