package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/journal"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/output"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <execution-id>",
	Short: "Undo a committed execution",
	Long: `Rollback replays the journaled inverses of a committed execution in
reverse order: moves move back, retained deletes are restored with
their original content, created directories are removed when empty.

Inverses that can no longer be replayed (a delete that exceeded the
retention ceiling, a path changed since the run) show up as failed
outcomes; the rest still roll back.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

// runRollback is the rollback command handler.
func runRollback(_ *cobra.Command, args []string) error {
	resolver, err := sandbox.New(appCfg.Sandbox.Roots...)
	if err != nil {
		return fmt.Errorf("invalid sandbox roots: %w", err)
	}

	jnl, err := journal.Open(appCfg.Journal.Dir)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jnl.Close()

	eng, err := buildEngine(resolver, jnl)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "Interrupted, finishing current operation...")
		cancel()
	}()

	rec, err := eng.Rollback(ctx, args[0])
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	if rec.Status != types.ExecCompleted {
		exitCode = 2
	}

	return render(func(f output.Formatter, buf *bytes.Buffer) error {
		return f.FormatExecution(buf, &output.ExecutionReport{Record: rec})
	})
}
