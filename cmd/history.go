package main

import (
	"fmt"
	"text/tabwriter"

	"skusync/internal/history"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs, or the outcomes of one run",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().String("db", "", "History database file (required)")
	historyCmd.Flags().String("run", "", "Show outcomes of this run")
	historyCmd.Flags().String("state", "", "Only outcomes in this state (downloaded/skipped_existing/not_found/failed)")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	historyCmd.MarkFlagRequired("db")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	runID, _ := cmd.Flags().GetString("run")
	state, _ := cmd.Flags().GetString("state")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	if runID != "" {
		outcomes, err := store.ListOutcomes(runID, state)
		if err != nil {
			return fmt.Errorf("failed to list outcomes: %w", err)
		}
		fmt.Fprintln(w, "#\tSKU\tSTATE\tATTEMPTS\tBYTES\tREASON")
		for _, o := range outcomes {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n", o.Position, o.SKU, o.State, o.Attempts, o.Bytes, o.Reason)
		}
		return nil
	}

	runs, err := store.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	fmt.Fprintln(w, "RUN\tSTARTED\tTOTAL\tDOWNLOADED\tSKIPPED\tNOT FOUND\tFAILED\tSTATUS")
	for _, r := range runs {
		status := "ok"
		switch {
		case r.Aborted:
			status = "aborted"
		case r.Failed > 0:
			status = "failed"
		}
		if r.DryRun {
			status += " (dry run)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Total, r.Downloaded, r.Skipped, r.NotFound, r.Failed, status)
	}
	return nil
}
