package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/progress"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a directory for changes",
	Long: `Watch follows filesystem events under a directory and prints each
create, modify, remove, and rename as it happens. New subdirectories
are picked up automatically. Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// runWatch is the watch command handler.
func runWatch(_ *cobra.Command, args []string) error {
	root, err := resolveScanRoot(args)
	if err != nil {
		return err
	}

	resolver, err := sandbox.New(appCfg.Sandbox.Roots...)
	if err != nil {
		return fmt.Errorf("invalid sandbox roots: %w", err)
	}
	if _, err := resolver.Resolve(root); err != nil {
		return err
	}

	events := progress.New()
	defer events.Close()

	w, err := watcher.New(events)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Watch(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	sub := events.Subscribe(root, 0)
	defer events.Unsubscribe(sub.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	go w.Run(ctx)

	printInfo("Watching %s (interrupt to stop)", root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

// printEvent renders one change event as a line.
func printEvent(ev progress.Event) {
	switch {
	case ev.IsDir:
		printInfo("%-8s %s/", ev.Type, ev.Path)
	case ev.Type == progress.EventCreated || ev.Type == progress.EventModified:
		printInfo("%-8s %s (%s)", ev.Type, ev.Path, types.FormatSize(ev.Size))
	default:
		printInfo("%-8s %s", ev.Type, ev.Path)
	}
}
