package metrics

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/edgewise-labs/kalsim/pkg/common"
	"github.com/edgewise-labs/kalsim/pkg/fill"
	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

// Trading days per year used for Sharpe annualization.
const tradingDaysPerYear = 252

// Report is the per-run metrics summary. Ratio metrics are float64 and may
// be NaN (undefined on short series) or +Inf (profit factor with no losses);
// money stays in fixed-point.
type Report struct {
	CumulativePnL  fixed.Point `json:"cumulative_pnl"`
	Sharpe         float64     `json:"sharpe"`
	MaxDrawdown    fixed.Point `json:"max_drawdown"`
	MaxDrawdownPct float64     `json:"max_drawdown_pct"`
	WinRate        float64     `json:"win_rate"`
	ProfitFactor   float64     `json:"profit_factor"`
	Capacity       int64       `json:"capacity"`
	ClosedTrades   int         `json:"closed_trades"`
	TradingDays    int         `json:"trading_days"`
}

// CapacityInput parameterizes the capacity estimate: the calibrated queue
// coefficients in effect, the typical per-minute at-limit volume observed,
// and the fill fraction below which execution is considered degraded.
type CapacityInput struct {
	Params             fill.Params
	TypicalVolume      int64
	LiquidityThreshold float64
}

// Compute builds the report from a run's equity series and closure P&Ls.
// Zero-length and single-point series yield NaN ratios, never a panic.
func Compute(snapshots []common.EquitySnapshot, closures []fixed.Point, capacity CapacityInput) Report {
	report := Report{
		Sharpe:       math.NaN(),
		WinRate:      math.NaN(),
		ProfitFactor: math.NaN(),
		ClosedTrades: len(closures),
		Capacity:     Capacity(capacity.Params, capacity.TypicalVolume, capacity.LiquidityThreshold),
	}

	if len(snapshots) > 0 {
		last := snapshots[len(snapshots)-1]
		report.CumulativePnL = last.RealizedPnL.Add(last.UnrealizedPnL)
	}

	daily := DailyPnL(snapshots)
	report.TradingDays = len(daily)
	report.Sharpe = Sharpe(daily, tradingDaysPerYear)
	report.MaxDrawdown, report.MaxDrawdownPct = MaxDrawdown(snapshots)
	report.WinRate = WinRate(closures)
	report.ProfitFactor = ProfitFactor(closures)
	return report
}

// DailyPnL collapses the equity series into per-day P&L changes, using the
// last snapshot of each UTC day as the day's closing value.
func DailyPnL(snapshots []common.EquitySnapshot) []fixed.Point {
	if len(snapshots) == 0 {
		return nil
	}

	pnlAt := func(s common.EquitySnapshot) fixed.Point {
		return s.RealizedPnL.Add(s.UnrealizedPnL)
	}

	var days []fixed.Point
	carried := fixed.Zero
	curDay := snapshots[0].TimeStamp.UTC().Truncate(24 * time.Hour)
	curClose := pnlAt(snapshots[0])

	for _, s := range snapshots[1:] {
		day := s.TimeStamp.UTC().Truncate(24 * time.Hour)
		if day.After(curDay) {
			days = append(days, curClose.Sub(carried))
			carried = curClose
			curDay = day
		}
		curClose = pnlAt(s)
	}
	days = append(days, curClose.Sub(carried))
	return days
}

// Sharpe is mean/stdev of the period P&L series scaled by sqrt(periods per
// year). NaN with fewer than two periods or zero volatility.
func Sharpe(periods []fixed.Point, periodsPerYear float64) float64 {
	if len(periods) < 2 {
		return math.NaN()
	}

	values := make([]float64, len(periods))
	for i, p := range periods {
		v, _ := p.Float64()
		values[i] = v
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)-1))
	if std == 0 {
		return math.NaN()
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// MaxDrawdown is the largest observed (running peak - current cumulative
// P&L), plus the same drawdown as a fraction of equity at the peak.
func MaxDrawdown(snapshots []common.EquitySnapshot) (fixed.Point, float64) {
	if len(snapshots) == 0 {
		return fixed.Zero, 0
	}

	maxDD := fixed.Zero
	peak := snapshots[0].RealizedPnL.Add(snapshots[0].UnrealizedPnL)
	peakEquity := snapshots[0].Equity
	var ddPct float64

	for _, s := range snapshots {
		pnl := s.RealizedPnL.Add(s.UnrealizedPnL)
		if pnl.Gt(peak) {
			peak = pnl
			peakEquity = s.Equity
		}
		dd := peak.Sub(pnl)
		if dd.Gt(maxDD) {
			maxDD = dd
			if peakEquity.Gt(fixed.Zero) {
				ddf, _ := dd.Float64()
				eqf, _ := peakEquity.Float64()
				ddPct = ddf / eqf
			}
		}
	}
	return maxDD, ddPct
}

// WinRate is the fraction of closed positions with positive net P&L. NaN
// with no closures.
func WinRate(closures []fixed.Point) float64 {
	if len(closures) == 0 {
		return math.NaN()
	}
	wins := 0
	for _, c := range closures {
		if c.Gt(fixed.Zero) {
			wins++
		}
	}
	return float64(wins) / float64(len(closures))
}

// ProfitFactor is gross wins over gross losses; +Inf when nothing was lost,
// NaN when nothing closed.
func ProfitFactor(closures []fixed.Point) float64 {
	if len(closures) == 0 {
		return math.NaN()
	}
	grossWins, grossLosses := fixed.Zero, fixed.Zero
	for _, c := range closures {
		if c.Gt(fixed.Zero) {
			grossWins = grossWins.Add(c)
		} else {
			grossLosses = grossLosses.Add(c.Neg())
		}
	}
	if grossLosses.IsZero() {
		return math.Inf(1)
	}
	w, _ := grossWins.Float64()
	l, _ := grossLosses.Float64()
	return w / l
}

// Capacity inverts the calibrated queue fraction: the largest remaining
// order size whose fill fraction at the typical at-limit volume stays at or
// above the liquidity threshold.
func Capacity(p fill.Params, typicalVolume int64, threshold float64) int64 {
	if typicalVolume <= 0 || threshold <= 0 {
		return 0
	}
	headroom := (1 - p.QueuePercentile) - threshold
	if headroom <= 0 {
		return 0
	}
	return int64(math.Floor(float64(typicalVolume) * headroom / (threshold * p.DepthScale)))
}

// MedianVolume is the median of per-minute traded volumes, the typical
// volume used by the capacity estimate.
func MedianVolume(volumes []int64) int64 {
	if len(volumes) == 0 {
		return 0
	}
	sorted := make([]int64, len(volumes))
	copy(sorted, volumes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// Log emits the report as a single structured line.
func (r Report) Log(logger *zap.Logger) {
	logger.Info("run metrics",
		zap.String("cumulative_pnl", r.CumulativePnL.String()),
		zap.Float64("sharpe", r.Sharpe),
		zap.String("max_drawdown", r.MaxDrawdown.String()),
		zap.Float64("max_drawdown_pct", r.MaxDrawdownPct),
		zap.Float64("win_rate", r.WinRate),
		zap.Float64("profit_factor", r.ProfitFactor),
		zap.Int64("capacity", r.Capacity),
		zap.Int("closed_trades", r.ClosedTrades),
		zap.Int("trading_days", r.TradingDays))
}
