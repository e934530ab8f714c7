package common

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// MarketSnapshot is the read-only view of a market handed to a strategy at a
// tick. Candle is nil when no trades occurred that minute; that means "no
// trade-derived price signal", not a zero price. Bid/ask are best-effort
// approximations around the last traded yes-price, since no order book depth
// survives in trade history.
type MarketSnapshot struct {
	Market

	Candle           *Candle     `json:"candle,omitempty"`
	HasTraded        bool        `json:"has_traded"`
	LastPrice        fixed.Point `json:"last_price"`
	BestBid          fixed.Point `json:"best_bid"`
	BestAsk          fixed.Point `json:"best_ask"`
	CumulativeVolume int64       `json:"cumulative_volume"`
}

// PortfolioState is the read-only projection of the ledger. Cash is the
// uncommitted balance; Reserved is collateral held against pending orders.
type PortfolioState struct {
	Cash        fixed.Point           `json:"cash"`
	Reserved    fixed.Point           `json:"reserved"`
	Positions   map[MarketID]Position `json:"positions"`
	Pending     []PendingOrder        `json:"pending"`
	RealizedPnL fixed.Point           `json:"realized_pnl"`
}

// EquitySnapshot is one point of the run's output series.
type EquitySnapshot struct {
	TimeStamp     time.Time   `json:"ts"`
	Cash          fixed.Point `json:"cash"`
	Reserved      fixed.Point `json:"reserved"`
	Exposure      fixed.Point `json:"exposure"`
	Equity        fixed.Point `json:"equity"`
	RealizedPnL   fixed.Point `json:"realized_pnl"`
	UnrealizedPnL fixed.Point `json:"unrealized_pnl"`
}
