package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kalsim",
	Short: "A deterministic market simulator for prediction-market strategies",
	Long: `Kalsim replays historical prediction-market trade data through a
simulated exchange so strategies can be evaluated before risking capital.

It provides tools for:
  - Backtesting strategies against minute-candle trade history
  - Trade-volume-based fill modeling with calibrated queue fractions
  - Exact fixed-point portfolio accounting with exchange fees
  - Parallel evaluation of strategy batches over a shared dataset
  - Journaling runs, fills and equity curves to SQLite`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
