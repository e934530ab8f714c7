package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgewise-labs/kalsim/pkg/journal"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journaled runs",
	Long: `Runs lists the recorded runs in a journal database, newest first,
optionally filtered by partition label.`,
	RunE: listRuns,
}

var (
	runsDBPath    string
	runsPartition string
)

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().StringVarP(&runsDBPath, "db", "d", "data/kalsim.db", "path to the SQLite journal")
	runsCmd.Flags().StringVarP(&runsPartition, "partition", "p", "", "filter by partition label")
}

func listRuns(cmd *cobra.Command, args []string) error {
	store, err := journal.New(runsDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	summaries, err := store.Runs(cmd.Context(), runsPartition)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, summary := range summaries {
		status := "ok"
		if summary.Error != "" {
			status = "failed: " + summary.Error
		}
		fmt.Printf("%s  %-20s  %-12s  cash=%s  pnl=%s  %s  [%s]\n",
			summary.RecordedAt.Format(time.RFC3339), summary.Strategy, summary.Partition,
			summary.FinalCash, summary.RealizedPnL, summary.RunID, status)
	}
	return nil
}
