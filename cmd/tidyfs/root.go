package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/config"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/output"
)

var (
	cfgFile string

	// appCfg is the effective configuration, populated by the
	// pre-run hook before any command body executes.
	appCfg *config.Config

	// exitCode is the process exit code for runs that finished but
	// only partially. Scans that completed with errors and executions
	// with failed operations exit 2 so scripts can tell them from
	// clean runs; hard failures exit 1 as usual.
	exitCode int

	rootCmd = &cobra.Command{
		Use:   "tidyfs",
		Short: "Scan, organize, and reclaim disk space safely",
		Long: `TidyFS inventories directories, finds duplicate files, and applies
reorganization plans with a full undo trail.

Every path it reads or changes must sit inside the configured sandbox
roots. Applying a plan is a dry-run by default; pass --commit to touch
the filesystem, and roll any committed run back later by execution ID.

Examples:
  tidyfs scan ~/Downloads                       # Inventory a directory
  tidyfs dupes ~/Downloads                      # Group duplicate files
  tidyfs dupes --emit-rec dedupe.json ~/photos  # Write a dedupe recommendation
  tidyfs plan -f dedupe.json                    # Preview the operations
  tidyfs apply -f dedupe.json --commit          # Execute for real
  tidyfs rollback <execution-id>                # Undo a committed run
  tidyfs history                                # Past executions`,
	}
)

func init() {
	// Assigned here rather than in the literal to avoid an
	// initialization cycle (initialize -> applyFlagOverrides -> rootCmd).
	rootCmd.PersistentPreRunE = initialize
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/tidyfs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("format", "o", "", "output format (pretty, plain, json, yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// render formats one report with the active formatter and writes it to
// stdout.
func render(format func(output.Formatter, *bytes.Buffer) error) error {
	name := "pretty"
	if appCfg != nil && appCfg.Output.Format != "" {
		name = appCfg.Output.Format
	}

	formatter, err := output.Get(name)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}

	var buf bytes.Buffer
	if err := format(formatter, &buf); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(buf.String())
	return nil
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	v, _ := rootCmd.PersistentFlags().GetBool("verbose")
	return v
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	q, _ := rootCmd.PersistentFlags().GetBool("quiet")
	return q
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
