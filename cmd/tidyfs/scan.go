package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/config"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/filter"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/fpcache"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/journal"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/output"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/progress"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/scanner"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Inventory a directory tree",
	Long: `Scan walks a directory inside the sandbox and records every file with
its size, category, and content fingerprint. Results render with the
largest files first; --filter narrows and reorders them with a query
like 'category:image size>10MB sort:-age'.

The walk honors the configured depth and record limits. Fingerprints
are served from the cache when a file's size and modification time
still match; pass --no-cache to rehash everything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addScanFlags(scanCmd)
	scanCmd.Flags().IntP("limit", "l", 0, "show only the N largest files (0 = all)")
}

// addScanFlags registers the flags shared by every command that runs
// a scan.
func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-depth", 0, "traversal depth limit (0 = configured default)")
	cmd.Flags().Int("max-files", 0, "file record cap (0 = configured default)")
	cmd.Flags().Bool("include-hidden", false, "include dot-prefixed files and directories")
	cmd.Flags().Bool("follow-symlinks", false, "follow symlinked directories")
	cmd.Flags().StringSliceP("exclude", "e", nil, "glob patterns to skip (repeatable)")
	cmd.Flags().Bool("no-cache", false, "bypass the fingerprint cache")
	cmd.Flags().String("filter", "", "result query, e.g. 'category:image size>10MB name:*draft*'")
	cmd.Flags().Bool("progress", false, "stream progress to stderr while scanning")
}

// runScan is the scan command handler.
func runScan(cmd *cobra.Command, args []string) error {
	res, err := runInventory(cmd, args, true)
	if err != nil {
		return err
	}

	// Files, largest first, unless the query says otherwise.
	flt := filter.New(
		filter.WithKind(filter.KindFile),
		filter.WithSortBy(filter.SortSize),
		filter.WithSortDescending(true),
	)
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		flt.Limit = limit
	}
	if query, _ := cmd.Flags().GetString("filter"); query != "" {
		if err := filter.ParseInto(flt, query); err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
	}
	rows := flt.Apply(res.Records)

	if res.Status != types.ScanCompleted {
		exitCode = 2
	}

	report := &output.ScanReport{Result: res, Rows: rows}
	return render(func(f output.Formatter, buf *bytes.Buffer) error {
		return f.FormatScan(buf, report)
	})
}

// runInventory performs one scan with the command's flags layered over
// the configured defaults. Tags are looked up only when wantTags is
// set, since only the scan listing renders them.
func runInventory(cmd *cobra.Command, args []string, wantTags bool) (*types.ScanResult, error) {
	root, err := resolveScanRoot(args)
	if err != nil {
		return nil, err
	}

	resolver, err := sandbox.New(appCfg.Sandbox.Roots...)
	if err != nil {
		return nil, fmt.Errorf("invalid sandbox roots: %w", err)
	}

	scanCfg := appCfg.Scan
	applyScanFlags(cmd, &scanCfg)

	ceiling, err := appCfg.FingerprintCeilingBytes()
	if err != nil {
		return nil, err
	}

	opts := scanner.Options{
		Root:               root,
		Resolver:           resolver,
		MaxDepth:           scanCfg.MaxDepth,
		MaxFiles:           scanCfg.MaxFiles,
		IncludeHidden:      scanCfg.IncludeHidden,
		FollowSymlinks:     scanCfg.FollowSymlinks,
		FingerprintCeiling: ceiling,
		ProgressEvery:      scanCfg.ProgressEvery,
		HashWorkers:        scanCfg.HashWorkers,
		Exclude:            scanCfg.Exclude,
		OnProgress: func(p scanner.Progress) {
			printVerbose("scanned %d files in %d dirs (%s)",
				p.FilesScanned, p.DirsScanned, types.FormatSize(p.BytesScanned))
		},
	}

	if showProgress, _ := cmd.Flags().GetBool("progress"); showProgress {
		events := progress.New()
		defer events.Close()
		sub := events.Subscribe(root, 0)
		go func() {
			for ev := range sub.Events() {
				fmt.Fprintf(os.Stderr, "scanned %d  %s\n", ev.Count, ev.Path)
			}
		}()
		inner := opts.OnProgress
		opts.OnProgress = func(p scanner.Progress) {
			inner(p)
			events.NotifyScan(p.FilesScanned, p.CurrentPath)
		}
	}

	if noCache, _ := cmd.Flags().GetBool("no-cache"); appCfg.Cache.Enabled && !noCache {
		ttl, err := appCfg.CacheTTLDuration()
		if err != nil {
			return nil, err
		}
		cache, err := fpcache.Open(appCfg.Cache.Path, ttl)
		if err != nil {
			printVerbose("fingerprint cache unavailable: %v", err)
		} else {
			defer cache.Close()
			opts.Cache = cache
		}
	}

	if wantTags {
		jnl, err := journal.Open(appCfg.Journal.Dir)
		if err != nil {
			printVerbose("journal unavailable, records carry no tags: %v", err)
		} else {
			defer jnl.Close()
			opts.Tags = jnl
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "Interrupted, stopping...")
		cancel()
	}()

	res, err := scanner.New(opts).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return res, nil
}

// applyScanFlags overrides scan settings with flags the user set
// explicitly.
func applyScanFlags(cmd *cobra.Command, sc *config.ScanConfig) {
	flags := cmd.Flags()
	if flags.Changed("max-depth") {
		sc.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("max-files") {
		sc.MaxFiles, _ = flags.GetInt("max-files")
	}
	if flags.Changed("include-hidden") {
		sc.IncludeHidden, _ = flags.GetBool("include-hidden")
	}
	if flags.Changed("follow-symlinks") {
		sc.FollowSymlinks, _ = flags.GetBool("follow-symlinks")
	}
	if flags.Changed("exclude") {
		sc.Exclude, _ = flags.GetStringSlice("exclude")
	}
}

// resolveScanRoot expands and validates the positional path argument.
func resolveScanRoot(args []string) (string, error) {
	scanPath := "."
	if len(args) > 0 {
		scanPath = args[0]
	}

	expandedPath, err := config.ExpandPath(scanPath)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}

	absPath, err := filepath.Abs(expandedPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("path does not exist: %s", absPath)
		}
		return "", fmt.Errorf("cannot access path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", absPath)
	}

	return absPath, nil
}
