package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/output"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/plan"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Expand a recommendation into an operation plan",
	Long: `Plan validates a recommendation file and renders the operations it
would run, in execution order, without touching anything.

Planning fails when a target sits outside the sandbox or two
operations would claim the same destination.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringP("file", "f", "", "recommendation JSON file (required)")
	_ = planCmd.MarkFlagRequired("file")
}

// runPlan is the plan command handler.
func runPlan(cmd *cobra.Command, _ []string) error {
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

	return render(func(f output.Formatter, buf *bytes.Buffer) error {
		return f.FormatPlan(buf, &output.PlanReport{Plan: p})
	})
}

// readRecommendation loads and structurally checks a recommendation
// file. Expansion-level validation is the planner's job.
func readRecommendation(path string) (*types.Recommendation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recommendation: %w", err)
	}

	var rec types.Recommendation
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse recommendation %s: %w", path, err)
	}
	if !rec.Kind.Valid() {
		return nil, fmt.Errorf("recommendation %s: unknown kind %q", path, rec.Kind)
	}
	if len(rec.Targets) == 0 {
		return nil, fmt.Errorf("recommendation %s: no targets", path)
	}
	return &rec, nil
}
