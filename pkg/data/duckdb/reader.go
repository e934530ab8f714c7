package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// Reader streams historical trades and market metadata from a duckdb file.
// Trade prices are stored in yes-terms dollars.
type Reader struct {
	dataSourceName string
	db             *sql.DB
}

func NewReader(dataSourceName string) *Reader {
	return &Reader{
		dataSourceName: dataSourceName,
	}
}

func (r *Reader) Connect() error {
	db, err := sql.Open("duckdb", r.dataSourceName)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	r.db = db
	return nil
}

func (r *Reader) Close() {
	_ = r.db.Close()
}

// LoadTrades streams every trade in the window, in timestamp order, to the
// handler. A handler error stops the scan.
func (r *Reader) LoadTrades(ctx context.Context, from, to time.Time, handler func(trade common.Trade) error) error {

	query := `SELECT market_ticker, ts, yes_price, count, taker_side FROM trades WHERE ts BETWEEN ? AND ? ORDER BY ts, market_ticker`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return fmt.Errorf("error preparing query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			ticker    string
			timeStamp time.Time
			yesPrice  float64
			count     int64
			takerSide string
		)
		if err := rows.Scan(&ticker, &timeStamp, &yesPrice, &count, &takerSide); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}

		trade := common.Trade{
			MarketID:  common.MarketID(ticker),
			TimeStamp: timeStamp.UTC(),
			YesPrice:  fixed.FromFloat64(yesPrice).Rescale(2),
			Count:     count,
			TakerSide: common.SideYes,
		}
		if takerSide == "no" {
			trade.TakerSide = common.SideNo
		}
		if err := handler(trade); err != nil {
			return fmt.Errorf("error processing trade: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error scanning rows: %w", err)
	}

	return nil
}

// LoadMarkets streams market metadata. Categories are inferred from the
// event ticker when the table carries none.
func (r *Reader) LoadMarkets(ctx context.Context, handler func(market common.Market) error) error {

	query := `SELECT ticker, event_ticker, fee_multiplier, status, close_time, result FROM markets`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("error preparing query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			ticker      string
			eventTicker string
			feeMult     float64
			status      string
			closeTime   time.Time
			result      sql.NullString
		)
		if err := rows.Scan(&ticker, &eventTicker, &feeMult, &status, &closeTime, &result); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}

		market := common.Market{
			ID:            common.MarketID(ticker),
			EventTicker:   eventTicker,
			Category:      common.InferCategory(eventTicker),
			FeeMultiplier: fixed.FromFloat64(feeMult),
			Status:        common.MarketStatus(status),
			CloseTime:     closeTime.UTC(),
		}
		if result.Valid && result.String == "no" {
			market.Result = common.SideNo
		}
		if err := handler(market); err != nil {
			return fmt.Errorf("error processing market: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error scanning rows: %w", err)
	}

	return nil
}
