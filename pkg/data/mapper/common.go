package mapper

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// BinaryTrade is the fixed-width on-disk trade record of one market's
// archive file. All fields are 8 bytes wide so the struct carries no
// padding; prices are stored in whole cents, the taker side as 0 (yes)
// or 1 (no).
type BinaryTrade struct {
	TimeStamp     int64
	YesPriceCents int64
	Count         int64
	TakerSide     int64
}

func (binaryTrade BinaryTrade) ToTrade(marketID common.MarketID, trade *common.Trade) {
	trade.MarketID = marketID
	trade.TimeStamp = time.Unix(0, binaryTrade.TimeStamp).UTC()
	trade.YesPrice = fixed.FromInt64(binaryTrade.YesPriceCents, 2)
	trade.Count = binaryTrade.Count
	trade.TakerSide = common.SideYes
	if binaryTrade.TakerSide != 0 {
		trade.TakerSide = common.SideNo
	}
}
