package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sunwell/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the execution cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print execution cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cache.Open(cfg.AppPath("cache", "execution.db"))
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.GetStats()
		if err != nil {
			return err
		}
		fmt.Printf("entries: %d\n", stats.Entries)
		fmt.Printf("hits: %d\n", stats.Hits)
		fmt.Printf("misses: %d\n", stats.Misses)
		fmt.Printf("hit_rate: %.1f%%\n", stats.HitRate())
		fmt.Printf("last_updated: %s\n", stats.LastUpdated)
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <artifact-id>",
	Short: "Mark all cache entries for an artifact id invalidated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cache.Open(cfg.AppPath("cache", "execution.db"))
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Invalidate(args[0])
	},
}
