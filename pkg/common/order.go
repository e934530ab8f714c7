package common

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

type OrderType int
type OrderAction int
type OrderID = int64

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
)

const (
	OrderActionOpen OrderAction = iota
	OrderActionClose
	OrderActionCancel
)

// Order is a stateless strategy instruction. LimitPrice is required for limit
// orders and is expressed in the bought side's own terms. Cancel orders carry
// only TargetID.
type Order struct {
	MarketID   MarketID    `json:"market_id"`
	Side       Side        `json:"side"`
	Type       OrderType   `json:"type"`
	Action     OrderAction `json:"action"`
	Quantity   int64       `json:"quantity"`
	LimitPrice fixed.Point `json:"limit_price,omitempty"`
	TargetID   OrderID     `json:"target_id,omitempty"`
}

// PendingOrder is an Order accepted by the ledger: it gains an identifier,
// its submission tick and fill progress.
type PendingOrder struct {
	Order

	ID          OrderID   `json:"id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Filled      int64     `json:"filled"`
}

func (p PendingOrder) Remaining() int64 {
	return p.Quantity - p.Filled
}
