package common

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// Candle is the per-(market, minute) OHLC summary of trade activity, in
// yes-price terms. Minutes without trades have no Candle at all. Candles are
// produced once by the aggregator and never mutated afterwards.
type Candle struct {
	MarketID  MarketID    `json:"market_id"`
	Start     time.Time   `json:"start"`
	Open      fixed.Point `json:"open"`
	High      fixed.Point `json:"high"`
	Low       fixed.Point `json:"low"`
	Close     fixed.Point `json:"close"`
	Volume    int64       `json:"volume"`
	YesVolume int64       `json:"yes_volume"`
	NoVolume  int64       `json:"no_volume"`
	Trades    int         `json:"trades"`
}
