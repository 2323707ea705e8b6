package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/engine"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/journal"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/output"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/plan"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/retain"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Execute a recommendation",
	Long: `Apply expands a recommendation into a plan and runs it. Without
--commit this is a dry-run: every operation is validated and simulated,
the execution is journaled, and nothing on disk changes.

Committed runs journal an inverse for each successful operation so the
whole execution can be undone with tidyfs rollback. A failed operation
does not stop the run; the execution record carries per-operation
outcomes and the process exits 2 when any of them failed.`,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringP("file", "f", "", "recommendation JSON file (required)")
	applyCmd.Flags().Bool("commit", false, "actually mutate the filesystem")
	applyCmd.Flags().Int("batch-size", 0, "operations per journal checkpoint (max 1000)")
	_ = applyCmd.MarkFlagRequired("file")
}

// runApply is the apply command handler.
func runApply(cmd *cobra.Command, _ []string) error {
	recPath, _ := cmd.Flags().GetString("file")
	rec, err := readRecommendation(recPath)
	if err != nil {
		return err
	}

	resolver, err := sandbox.New(appCfg.Sandbox.Roots...)
	if err != nil {
		return fmt.Errorf("invalid sandbox roots: %w", err)
	}

	p, err := plan.New(resolver).Plan(*rec)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
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

	dryRun := appCfg.Exec.DryRunDefault
	if commit, _ := cmd.Flags().GetBool("commit"); commit {
		dryRun = false
	}

	batch := appCfg.Exec.BatchSize
	if cmd.Flags().Changed("batch-size") {
		batch, _ = cmd.Flags().GetInt("batch-size")
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

	execRec, err := eng.Execute(ctx, p, engine.Options{DryRun: dryRun, BatchSize: batch})
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	if execRec.Status != types.ExecCompleted {
		exitCode = 2
	}

	return render(func(f output.Formatter, buf *bytes.Buffer) error {
		return f.FormatExecution(buf, &output.ExecutionReport{Record: execRec})
	})
}

// buildEngine assembles the execution engine and its retention
// collaborator from the effective config.
func buildEngine(resolver *sandbox.Resolver, jnl *journal.Journal) (*engine.Engine, error) {
	deps := engine.Deps{
		Resolver: resolver,
		Journal:  jnl,
	}

	var err error
	if deps.IOTimeout, err = appCfg.IOTimeoutDuration(); err != nil {
		return nil, err
	}

	if appCfg.Retention.Enabled {
		store, err := retain.Open(appCfg.Retention.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open retention area: %w", err)
		}
		deps.Retain = store
		if deps.RetainCeiling, err = appCfg.RetentionCeilingBytes(); err != nil {
			return nil, err
		}
		if deps.RetainKeep, err = appCfg.RetentionKeepDuration(); err != nil {
			return nil, err
		}
	}

	return engine.New(deps), nil
}
