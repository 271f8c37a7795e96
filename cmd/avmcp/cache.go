package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"avmcp/internal/storage"
)

var cacheFormat string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and hit counts",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired cached responses",
	Args:  cobra.NoArgs,
	RunE:  runCachePurge,
}

func init() {
	cacheStatsCmd.Flags().StringVar(&cacheFormat, "format", string(FormatHuman), "Output format (human, json)")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

// withCache opens the configured cache database for a maintenance command.
func withCache(fn func(ctx context.Context, cache *storage.Cache) error) error {
	a, err := newMaintenanceApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cache, err := a.openCache()
	if err != nil {
		return fmt.Errorf("open cache %s: %w", a.cfg.Cache.Path, err)
	}
	return fn(context.Background(), cache)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(cacheFormat)
	if err != nil {
		return err
	}
	return withCache(func(ctx context.Context, cache *storage.Cache) error {
		stats, err := cache.Stats(ctx)
		if err != nil {
			return err
		}
		out, err := FormatResponse(stats, format)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	})
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	return withCache(func(ctx context.Context, cache *storage.Cache) error {
		n, err := cache.Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d cached responses\n", n)
		return nil
	})
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	return withCache(func(ctx context.Context, cache *storage.Cache) error {
		n, err := cache.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d expired responses\n", n)
		return nil
	})
}
