package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/fpcache"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the fingerprint cache",
	Long: `Manage the on-disk fingerprint cache.

The cache remembers content fingerprints keyed by path, size, and
modification time; a matching entry saves rehashing the file on the
next scan. Entries expire after the configured TTL.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached fingerprint",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache() (*fpcache.Cache, error) {
	ttl, err := appCfg.CacheTTLDuration()
	if err != nil {
		return nil, err
	}
	cache, err := fpcache.Open(appCfg.Cache.Path, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return cache, nil
}

// runCacheStats shows entry count and on-disk size.
func runCacheStats(_ *cobra.Command, _ []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	stats, err := cache.Stats()
	if err != nil {
		return err
	}

	return render(func(f output.Formatter, buf *bytes.Buffer) error {
		return f.FormatCache(buf, &output.CacheReport{
			Path:       appCfg.Cache.Path,
			Entries:    stats.Entries,
			SizeOnDisk: stats.SizeOnDisk,
		})
	})
}

// runCacheClear drops all cached fingerprints.
func runCacheClear(_ *cobra.Command, _ []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	stats, err := cache.Stats()
	if err != nil {
		return err
	}

	return render(func(f output.Formatter, buf *bytes.Buffer) error {
		return f.FormatCache(buf, &output.CacheReport{
			Path:       appCfg.Cache.Path,
			Entries:    stats.Entries,
			SizeOnDisk: stats.SizeOnDisk,
			Cleared:    true,
		})
	})
}
