package journal

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/metrics"
	"github.com/edgewise-labs/kalsim/pkg/simulation"
	"github.com/edgewise-labs/kalsim/pkg/utility"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

func testResult(strategyName, partition string) simulation.Result {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return simulation.Result{
		RunID:     utility.NewRunID(),
		Strategy:  strategyName,
		Partition: partition,
		Snapshots: []common.EquitySnapshot{
			{TimeStamp: ts, Cash: fixed.FromInt64(1000, 0), Equity: fixed.FromInt64(1000, 0)},
			{TimeStamp: ts.Add(time.Minute), Cash: fixed.FromInt64(994, 0), Equity: fixed.FromInt64(1001, 0)},
		},
		Fills: []common.FillEvent{
			{OrderID: 1, MarketID: "KXNBA-A", Side: common.SideYes, Quantity: 10,
				Price: fixed.FromInt64(60, 2), Fee: fixed.MustParse("0.168"), TimeStamp: ts},
		},
		Settlements: []common.SettlementEvent{
			{MarketID: "KXNBA-A", Result: common.SideYes, Quantity: 10,
				Proceeds: fixed.FromInt64(10, 0), NetPnL: fixed.FromInt64(4, 0), TimeStamp: ts.Add(time.Hour)},
		},
		Final: common.PortfolioState{
			Cash:        fixed.MustParse("1003.832"),
			RealizedPnL: fixed.MustParse("3.832"),
		},
		Metrics: metrics.Report{
			CumulativePnL: fixed.MustParse("3.832"),
			Sharpe:        math.NaN(),
			WinRate:       1,
			ProfitFactor:  math.Inf(1),
			ClosedTrades:  1,
		},
	}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, testResult("favs", "2025-06")))
	require.NoError(t, store.Record(ctx, testResult("baseline", "2025-06")))
	require.NoError(t, store.Record(ctx, testResult("favs", "2025-07")))

	all, err := store.Runs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	june, err := store.Runs(ctx, "2025-06")
	require.NoError(t, err)
	require.Len(t, june, 2)
	for _, summary := range june {
		assert.Equal(t, "2025-06", summary.Partition)
		assert.Empty(t, summary.Error)
		assert.Equal(t, "1003.832", summary.FinalCash)
	}
}

func TestStore_RecordsFailedRuns(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	failed := testResult("favs", "2025-06")
	failed.Err = errors.New("strategy exploded")
	require.NoError(t, store.Record(ctx, failed))

	runs, err := store.Runs(ctx, "2025-06")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "strategy exploded")
}

func TestStore_NonFiniteMetricsSurvive(t *testing.T) {
	// The report carries NaN/Inf ratios; recording must not fail on them.
	store := openStore(t)
	require.NoError(t, store.Record(context.Background(), testResult("favs", "p")))
}

func TestStore_EmptyJournal(t *testing.T) {
	store := openStore(t)

	runs, err := store.Runs(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, runs)
}
