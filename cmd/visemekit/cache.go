package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/normanking/visemekit/internal/cache"
)

// ============== Cache Commands ==============

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the timeline cache",
	Long:  `List, remove and clear cached phoneme timelines.`,
}

var cacheListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List cached timelines",
	RunE:    runCacheList,
}

var cacheRemoveCmd = &cobra.Command{
	Use:     "remove <key>...",
	Aliases: []string{"rm"},
	Short:   "Remove cached timelines by key",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runCacheRemove,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached timeline",
	RunE:  runCacheClear,
}

func withCache(fn func(ctx context.Context, store cache.Store) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, store)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	return withCache(func(ctx context.Context, store cache.Store) error {
		keys, err := store.Keys(ctx)
		if err != nil {
			return fmt.Errorf("failed to list cache: %w", err)
		}

		w := cmd.OutOrStdout()
		if len(keys) == 0 {
			fmt.Fprintln(w, "Cache is empty.")
			return nil
		}

		fmt.Fprintf(w, "%-66s %8s %10s %s\n", "Key", "Events", "Duration", "Symbols")
		fmt.Fprintln(w, strings.Repeat("-", 100))
		for _, k := range keys {
			tl, err := store.Get(ctx, k)
			if err != nil {
				fmt.Fprintf(w, "%-66s %8s %10s %s\n", k, "-", "-", "unreadable")
				continue
			}
			fmt.Fprintf(w, "%-66s %8d %9.2fs %s\n", k, tl.Len(), tl.Duration(), tl.SymbolSet())
		}
		fmt.Fprintf(w, "\n%d entries\n", len(keys))
		return nil
	})
}

func runCacheRemove(cmd *cobra.Command, args []string) error {
	return withCache(func(ctx context.Context, store cache.Store) error {
		for _, arg := range args {
			key, err := cache.ParseKey(arg)
			if err != nil {
				return err
			}
			if err := store.Delete(ctx, key); err != nil {
				return fmt.Errorf("failed to remove %s: %w", key.Short(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", key.Short())
		}
		return nil
	})
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	return withCache(func(ctx context.Context, store cache.Store) error {
		n, err := store.Clear(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", n)
		return nil
	})
}
