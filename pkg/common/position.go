package common

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// Position is a per-market holding. AvgPrice is the volume-weighted entry
// price in the held side's terms. A position with zero quantity is never kept
// in the ledger.
type Position struct {
	MarketID MarketID    `json:"market_id"`
	Side     Side        `json:"side"`
	Quantity int64       `json:"quantity"`
	AvgPrice fixed.Point `json:"avg_price"`
	FeesPaid fixed.Point `json:"fees_paid"`
}

func (p Position) CostBasis() fixed.Point {
	return p.AvgPrice.MulInt64(p.Quantity)
}

// MarkValue values the holding at the given side-terms price.
func (p Position) MarkValue(price fixed.Point) fixed.Point {
	return price.MulInt64(p.Quantity)
}

// FillEvent records the outcome of a partial or full execution. Price is in
// the filled side's terms. Immutable once recorded.
type FillEvent struct {
	OrderID   OrderID     `json:"order_id"`
	MarketID  MarketID    `json:"market_id"`
	Side      Side        `json:"side"`
	Quantity  int64       `json:"quantity"`
	Price     fixed.Point `json:"price"`
	Fee       fixed.Point `json:"fee"`
	Maker     bool        `json:"maker"`
	TimeStamp time.Time   `json:"ts"`
}

// SettlementEvent records the final cash resolution of a market.
type SettlementEvent struct {
	MarketID  MarketID    `json:"market_id"`
	Result    Side        `json:"result"`
	Quantity  int64       `json:"quantity"`
	Proceeds  fixed.Point `json:"proceeds"`
	NetPnL    fixed.Point `json:"net_pnl"`
	TimeStamp time.Time   `json:"ts"`
}
