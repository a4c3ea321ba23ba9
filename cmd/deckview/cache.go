package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"deckview/internal/artifacts"
	"deckview/internal/memory"
	"deckview/internal/startup"
)

func newCacheCmd(flags *cliFlags) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the artifact cache",
	}

	// withCache runs fn against the cache of the configured data directory.
	withCache := func(cmd *cobra.Command, args []string, fn func(context.Context, *startup.Config, *artifacts.Cache) error) error {
		cfg, err := loadConfig(cmd, flags, args)
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfg.DatabasePath()); os.IsNotExist(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "No cache at %s\n", cfg.DataDir)
			return nil
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		db, cache, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(ctx, cfg, cache)
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show artifact counts and sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, args, func(ctx context.Context, _ *startup.Config, cache *artifacts.Cache) error {
				stats, err := cache.Stats(ctx)
				if err != nil {
					return fmt.Errorf("read cache stats: %w", err)
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [directory]",
		Short: "Drop artifacts of deleted or changed files and enforce the size limit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, args, func(ctx context.Context, cfg *startup.Config, cache *artifacts.Cache) error {
				idx, err := newIndexer(cfg, newEngine(cfg), cache, 0)
				if err != nil {
					return err
				}
				res, err := idx.Scan(ctx)
				if err != nil {
					return fmt.Errorf("scan %s: %w", cfg.ContentDir, err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Scanned %d files in %d folders\n", res.Files, res.Folders)
				if res.Errors > 0 {
					fmt.Fprintf(out, "%d entries could not be read; orphan removal skipped\n", res.Errors)
				}
				fmt.Fprintf(out, "Removed %d orphaned artifact sets (%d skipped, %d errors)\n",
					res.Sweep.Removed, res.Sweep.Skipped, res.Sweep.Errors)
				fmt.Fprintf(out, "Evicted %d artifacts, freed %s\n",
					res.Evict.Evicted, memory.FormatBytes(res.Evict.FreedBytes))
				return nil
			})
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}
			return withCache(cmd, args, func(ctx context.Context, _ *startup.Config, cache *artifacts.Cache) error {
				res, err := cache.Clear(ctx)
				if err != nil {
					return fmt.Errorf("clear cache: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d artifact sets (%d skipped, %d errors)\n",
					res.Removed, res.Skipped, res.Errors)
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm removal")

	cacheCmd.AddCommand(statsCmd, sweepCmd, clearCmd)
	return cacheCmd
}

func printStats(out io.Writer, stats artifacts.Stats) {
	types := make([]string, 0, len(stats.ByType))
	for typ := range stats.ByType {
		types = append(types, typ)
	}
	sort.Strings(types)

	fmt.Fprintf(out, "Cache: %s\n\n", stats.Root)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCOUNT\tSIZE")
	for _, typ := range types {
		ts := stats.ByType[typ]
		fmt.Fprintf(tw, "%s\t%d\t%s\n", typ, ts.Count, memory.FormatBytes(ts.Bytes))
	}
	fmt.Fprintf(tw, "total\t%d\t%s\n", stats.TotalCount, memory.FormatBytes(stats.TotalBytes))
	tw.Flush()

	if stats.Pending > 0 {
		fmt.Fprintf(out, "\n%d jobs pending\n", stats.Pending)
	}
	if !stats.LastSweep.IsZero() {
		fmt.Fprintf(out, "Last sweep:    %s\n", stats.LastSweep.Format("2006-01-02 15:04:05"))
	}
	if !stats.LastEviction.IsZero() {
		fmt.Fprintf(out, "Last eviction: %s\n", stats.LastEviction.Format("2006-01-02 15:04:05"))
	}
}
