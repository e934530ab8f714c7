package mapper

import (
	"errors"
	"fmt"
	"time"

	"github.com/edgewise-labs/kalsim/pkg/common"
)

// Loader reads one market's trade archive for an evaluation window. Records
// in the archive are sorted by timestamp, so the window start is found by
// binary search.
type Loader struct {
	marketID common.MarketID
	reader   *Reader[BinaryTrade]
}

func NewLoader(marketID common.MarketID, dataSourceName string) *Loader {
	return &Loader{
		marketID: marketID,
		reader:   NewReader[BinaryTrade](dataSourceName),
	}
}

func (l *Loader) Open() error {
	return l.reader.Open()
}

func (l *Loader) Close() {
	l.reader.Close()
}

// LoadWindow returns the market's trades with from <= ts <= to, in archive
// order.
func (l *Loader) LoadWindow(from, to time.Time) ([]common.Trade, error) {
	idx, err := l.lookupStartIndex(from.UnixNano())
	if err != nil {
		if errors.Is(err, ErrEof) {
			return nil, nil
		}
		return nil, err
	}

	toNano := to.UnixNano()

	var (
		trades []common.Trade
		binary BinaryTrade
		trade  common.Trade
	)
	for {
		if err := l.reader.Read(idx, &binary); err != nil {
			if errors.Is(err, ErrEof) {
				return trades, nil
			}
			return nil, err
		}
		idx++

		if binary.TimeStamp > toNano {
			return trades, nil
		}

		binary.ToTrade(l.marketID, &trade)
		trades = append(trades, trade)
	}
}

func (l *Loader) lookupStartIndex(fromNano int64) (int64, error) {
	entryCount, err := l.reader.EntryCount()
	if err != nil {
		return 0, fmt.Errorf("error getting entry count: %w", err)
	}
	if entryCount == 0 {
		return 0, ErrEof
	}

	var entry BinaryTrade

	low := int64(0)
	high := entryCount - 1

	for low <= high {
		mid := (low + high) / 2

		if err := l.reader.Read(mid, &entry); err != nil {
			return 0, fmt.Errorf("error reading entry at index %d: %w", mid, err)
		}

		if entry.TimeStamp < fromNano {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	if low >= entryCount {
		return 0, ErrEof
	}
	return low, nil
}
