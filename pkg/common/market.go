package common

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

type MarketID = string
type Side int
type MarketStatus string

const (
	SideYes Side = iota
	SideNo
)

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusSettled MarketStatus = "settled"
)

// Tradable prices live strictly inside (0, 1); a contract at the boundary has
// already resolved.
var (
	PriceFloor = fixed.Zero
	PriceCeil  = fixed.One
)

func (s Side) String() string {
	if s == SideNo {
		return "no"
	}
	return "yes"
}

func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Market is metadata about a single binary contract market. Result is only
// meaningful once Status is settled.
type Market struct {
	ID            MarketID     `json:"id"`
	EventTicker   string       `json:"event_ticker"`
	Category      string       `json:"category"`
	FeeMultiplier fixed.Point  `json:"fee_multiplier"`
	Status        MarketStatus `json:"status"`
	CloseTime     time.Time    `json:"close_time"`
	Result        Side         `json:"result"`
}

// Trade is a single historical execution. YesPrice is the traded price of the
// yes side on the 0.00-1.00 dollar scale regardless of taker side.
type Trade struct {
	MarketID  MarketID    `json:"market_id"`
	TimeStamp time.Time   `json:"ts"`
	YesPrice  fixed.Point `json:"yes_price"`
	Count     int64       `json:"count"`
	TakerSide Side        `json:"taker_side"`
}

// PriceFor converts the traded yes-price into the given side's own terms.
func (t Trade) PriceFor(side Side) fixed.Point {
	if side == SideNo {
		return fixed.One.Sub(t.YesPrice)
	}
	return t.YesPrice
}
