package candle

import (
	"fmt"
	"time"

	"github.com/edgewise-labs/kalsim/pkg/common"
)

// Aggregator collapses raw trade records into one-minute candles per market.
// Trades referencing markets absent from the metadata set are a data
// integrity failure, as are non-positive quantities and prices outside the
// open (0, 1) interval.
type Aggregator struct {
	markets map[common.MarketID]common.Market
}

func NewAggregator(markets map[common.MarketID]common.Market) *Aggregator {
	return &Aggregator{markets: markets}
}

type bucket struct {
	candle  common.Candle
	firstTS time.Time
	lastTS  time.Time
	trades  []common.Trade
}

// Aggregate builds the candle series for a bounded historical window. Input
// order only matters for open/close; all other fields are commutative within
// a minute, so out-of-order trades inside one minute still aggregate to the
// same candle.
func (a *Aggregator) Aggregate(trades []common.Trade) (*Series, error) {
	buckets := make(map[common.MarketID]map[int64]*bucket)

	for _, trade := range trades {
		if _, ok := a.markets[trade.MarketID]; !ok {
			return nil, &common.DataIntegrityError{
				Record: fmt.Sprintf("trade %s@%s", trade.MarketID, trade.TimeStamp.Format(time.RFC3339)),
				Reason: "trade references unknown market",
			}
		}
		if trade.Count <= 0 {
			return nil, &common.DataIntegrityError{
				Record: fmt.Sprintf("trade %s@%s count=%d", trade.MarketID, trade.TimeStamp.Format(time.RFC3339), trade.Count),
				Reason: "non-positive trade quantity",
			}
		}
		if trade.YesPrice.Lte(common.PriceFloor) || trade.YesPrice.Gte(common.PriceCeil) {
			return nil, &common.DataIntegrityError{
				Record: fmt.Sprintf("trade %s@%s price=%s", trade.MarketID, trade.TimeStamp.Format(time.RFC3339), trade.YesPrice),
				Reason: "trade price outside (0, 1)",
			}
		}

		minute := trade.TimeStamp.Truncate(time.Minute)
		key := minute.Unix()

		perMarket, ok := buckets[trade.MarketID]
		if !ok {
			perMarket = make(map[int64]*bucket)
			buckets[trade.MarketID] = perMarket
		}

		b, ok := perMarket[key]
		if !ok {
			b = &bucket{
				candle: common.Candle{
					MarketID: trade.MarketID,
					Start:    minute,
					Open:     trade.YesPrice,
					High:     trade.YesPrice,
					Low:      trade.YesPrice,
					Close:    trade.YesPrice,
				},
				firstTS: trade.TimeStamp,
				lastTS:  trade.TimeStamp,
			}
			perMarket[key] = b
		}

		c := &b.candle
		if trade.YesPrice.Gt(c.High) {
			c.High = trade.YesPrice
		}
		if trade.YesPrice.Lt(c.Low) {
			c.Low = trade.YesPrice
		}
		if trade.TimeStamp.Before(b.firstTS) {
			b.firstTS = trade.TimeStamp
			c.Open = trade.YesPrice
		}
		if !trade.TimeStamp.Before(b.lastTS) {
			b.lastTS = trade.TimeStamp
			c.Close = trade.YesPrice
		}

		c.Volume += trade.Count
		if trade.TakerSide == common.SideYes {
			c.YesVolume += trade.Count
		} else {
			c.NoVolume += trade.Count
		}
		c.Trades++

		b.trades = append(b.trades, trade)
	}

	series := &Series{
		candles:  make(map[common.MarketID]map[int64]*common.Candle, len(buckets)),
		activity: make(map[common.MarketID]map[int64][]common.Trade, len(buckets)),
	}
	for id, perMarket := range buckets {
		series.candles[id] = make(map[int64]*common.Candle, len(perMarket))
		series.activity[id] = make(map[int64][]common.Trade, len(perMarket))
		for key, b := range perMarket {
			c := b.candle
			series.candles[id][key] = &c
			series.activity[id][key] = b.trades
		}
	}
	return series, nil
}
