package fill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgewise-labs/kalsim/pkg/utility/fixed"
)

func writeCalibration(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCalibration(t *testing.T) {
	path := writeCalibration(t, `
version: "2025-07"
default:
  queue_percentile: 0.25
  depth_scale: 2.25
categories:
  Sports:
    queue_percentile: 0.20
    depth_scale: 1.80
`)

	cal, err := LoadCalibration(path)
	require.NoError(t, err)

	assert.Equal(t, "2025-07", cal.Version)
	assert.Equal(t, 0.25, cal.Default.QueuePercentile)
	assert.Equal(t, Params{QueuePercentile: 0.20, DepthScale: 1.80}, cal.ForCategory("Sports"))
	assert.Equal(t, cal.Default, cal.ForCategory("Politics"), "unknown categories fall back to default")
}

func TestLoadCalibration_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"percentile too high", "default:\n  queue_percentile: 1.0\n  depth_scale: 2.0\n"},
		{"negative percentile", "default:\n  queue_percentile: -0.1\n  depth_scale: 2.0\n"},
		{"zero depth scale", "default:\n  queue_percentile: 0.25\n  depth_scale: 0\n"},
		{"bad category", "default:\n  queue_percentile: 0.25\n  depth_scale: 2.0\ncategories:\n  Sports:\n    queue_percentile: 0.5\n    depth_scale: -1\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCalibration(writeCalibration(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestFeeSchedule_Quadratic(t *testing.T) {
	fees := DefaultFees()

	// 100 * 0.07 * 1.0 * 0.50 * 0.50
	taker := fees.Taker(100, fixed.FromInt64(50, 2), fixed.One)
	assert.True(t, taker.Eq(fixed.MustParse("1.75")), "taker = %s", taker)

	// Fees shrink toward the price extremes.
	cheap := fees.Taker(100, fixed.FromInt64(95, 2), fixed.One)
	assert.True(t, cheap.Lt(taker))

	// Maker rate is a quarter of the taker rate.
	maker := fees.Maker(100, fixed.FromInt64(50, 2), fixed.One)
	assert.True(t, maker.MulInt64(4).Eq(taker), "maker = %s", maker)

	// Reduced-fee series halve everything.
	half := fees.Taker(100, fixed.FromInt64(50, 2), fixed.FromInt64(5, 1))
	assert.True(t, half.MulInt64(2).Eq(taker), "half = %s", half)

	// Per-contract reserve sums exactly to the full maker fee.
	perContract := fees.MakerPerContract(fixed.FromInt64(50, 2), fixed.One)
	assert.True(t, perContract.MulInt64(100).Eq(maker))
}
