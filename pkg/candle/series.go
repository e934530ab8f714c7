package candle

import (
	"time"

	"github.com/edgewise-labs/kalsim/pkg/common"
)

// Series is the fully materialized candle dataset for one evaluation window.
// It is immutable after aggregation and safe to share across concurrent runs.
// Alongside the strategy-facing candles it retains the raw trades of each
// minute, which the fill model needs for price-level volume.
type Series struct {
	candles  map[common.MarketID]map[int64]*common.Candle
	activity map[common.MarketID]map[int64][]common.Trade
}

// At returns the candle for the given market and minute, or nil when no
// trades occurred in that minute.
func (s *Series) At(id common.MarketID, minute time.Time) *common.Candle {
	perMarket, ok := s.candles[id]
	if !ok {
		return nil
	}
	return perMarket[minute.Truncate(time.Minute).Unix()]
}

// ActivityAt returns the trades of the given market and minute in input
// order. The returned slice must not be mutated.
func (s *Series) ActivityAt(id common.MarketID, minute time.Time) []common.Trade {
	perMarket, ok := s.activity[id]
	if !ok {
		return nil
	}
	return perMarket[minute.Truncate(time.Minute).Unix()]
}

// Bounds reports the earliest and latest candle minute across all markets.
// ok is false for an empty series.
func (s *Series) Bounds() (from, to time.Time, ok bool) {
	var minKey, maxKey int64
	for _, perMarket := range s.candles {
		for key := range perMarket {
			if !ok {
				minKey, maxKey, ok = key, key, true
				continue
			}
			if key < minKey {
				minKey = key
			}
			if key > maxKey {
				maxKey = key
			}
		}
	}
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(minKey, 0).UTC(), time.Unix(maxKey, 0).UTC(), true
}

// MinuteVolumes lists the traded volume of every candle in the series, in
// no particular order. Capacity estimation takes the median of these.
func (s *Series) MinuteVolumes() []int64 {
	var volumes []int64
	for _, perMarket := range s.candles {
		for _, c := range perMarket {
			volumes = append(volumes, c.Volume)
		}
	}
	return volumes
}

// MarketVolume is the total traded volume of a market over the whole series.
func (s *Series) MarketVolume(id common.MarketID) int64 {
	var total int64
	for _, c := range s.candles[id] {
		total += c.Volume
	}
	return total
}
