package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/journal"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/output"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past executions",
	Long: `History lists journaled executions, most recent first. Dry-runs,
committed runs, and rollbacks all appear; entries marked undoable can
be reverted with tidyfs rollback.`,
	RunE: runHistory,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List executions",
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution in full",
	Long:  `Display an execution record with its per-operation outcomes.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

// runHistory lists all executions.
func runHistory(_ *cobra.Command, _ []string) error {
	jnl, err := journal.Open(appCfg.Journal.Dir)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jnl.Close()

	recs, err := jnl.ListExecutions()
	if err != nil {
		return err
	}

	report := &output.HistoryReport{Records: make([]types.ExecutionRecord, 0, len(recs))}
	for _, rec := range recs {
		report.Records = append(report.Records, *rec)
	}

	return render(func(f output.Formatter, buf *bytes.Buffer) error {
		return f.FormatHistory(buf, report)
	})
}

// runHistoryShow displays a single execution record.
func runHistoryShow(_ *cobra.Command, args []string) error {
	jnl, err := journal.Open(appCfg.Journal.Dir)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jnl.Close()

	rec, err := jnl.GetExecution(args[0])
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			return fmt.Errorf("execution %s not found", args[0])
		}
		return err
	}

	return render(func(f output.Formatter, buf *bytes.Buffer) error {
		return f.FormatExecution(buf, &output.ExecutionReport{Record: rec})
	})
}
