package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/dupes"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/filter"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/fsatomic"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/output"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

var dupesCmd = &cobra.Command{
	Use:   "dupes [path]",
	Short: "Find duplicate files",
	Long: `Dupes scans a directory and groups files whose content fingerprints
match. Every reported group holds at least two files with identical
content; the oldest copy leads the group as the one a deduplication
would keep. --filter narrows which files are considered for grouping.

With --emit-rec the groups are written as a deduplicate recommendation
file: the first member of each group is kept, the rest become delete
targets that tidyfs apply verifies against the keeper byte for byte
before removing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDupes,
}

func init() {
	rootCmd.AddCommand(dupesCmd)
	addScanFlags(dupesCmd)
	dupesCmd.Flags().String("emit-rec", "", "write a deduplicate recommendation JSON to this file")
}

// runDupes is the dupes command handler.
func runDupes(cmd *cobra.Command, args []string) error {
	res, err := runInventory(cmd, args, false)
	if err != nil {
		return err
	}

	records := res.Records
	if query, _ := cmd.Flags().GetString("filter"); query != "" {
		flt, err := filter.Parse(query)
		if err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
		records = flt.Apply(records)
	}

	idx := dupes.Build(records)
	groups := idx.Groups()

	if res.Status != types.ScanCompleted {
		exitCode = 2
	}

	if emitPath, _ := cmd.Flags().GetString("emit-rec"); emitPath != "" {
		if len(groups) == 0 {
			printVerbose("no duplicate groups, %s not written", emitPath)
		} else {
			if err := writeDedupeRecommendation(emitPath, groups); err != nil {
				return err
			}
			printVerbose("wrote deduplicate recommendation for %d groups to %s", len(groups), emitPath)
		}
	}

	report := &output.DupeReport{
		Root:          res.Root,
		FilesExamined: res.FilesScanned,
		Groups:        make([]output.DupeGroup, 0, len(groups)),
		TotalWasted:   idx.TotalWasted(),
		Elapsed:       res.Elapsed,
	}
	for _, g := range groups {
		paths := make([]string, 0, len(g.Records))
		paths = append(paths, g.Keeper().Path)
		for _, extra := range g.Extras() {
			paths = append(paths, extra.Path)
		}
		report.Groups = append(report.Groups, output.DupeGroup{
			Fingerprint: g.Fingerprint,
			Size:        g.Size,
			Paths:       paths,
			Wasted:      g.Wasted(),
		})
	}

	return render(func(f output.Formatter, buf *bytes.Buffer) error {
		return f.FormatDupes(buf, report)
	})
}

// writeDedupeRecommendation merges the groups into one deduplicate
// recommendation keeping the first member of every group, and writes
// it atomically so a half-written file can never be applied.
func writeDedupeRecommendation(path string, groups []dupes.Group) error {
	rec := types.Recommendation{
		ID:   uuid.NewString(),
		Kind: types.RecDeduplicate,
		Params: types.RecommendationParams{
			VerifyAgainst: make(map[string]string),
		},
	}
	for _, g := range groups {
		keeper := g.Keeper()
		for _, extra := range g.Extras() {
			rec.Targets = append(rec.Targets, extra.Path)
			rec.Params.VerifyAgainst[extra.Path] = keeper.Path
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode recommendation: %w", err)
	}
	data = append(data, '\n')

	if err := fsatomic.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write recommendation: %w", err)
	}
	return nil
}
