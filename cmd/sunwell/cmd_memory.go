package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"sunwell/internal/memory"
)

var memoryLimit int

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Query and inspect the persistent learning memory",
}

var memoryQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "BM25-rank learnings against a query string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMemory()
		if err != nil {
			return err
		}
		defer m.Close()

		results, err := m.BM25QueryFast(args[0], memoryLimit)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%.4f  [%s] %s\n", r.Score, r.Learning.Category, r.Learning.Fact)
		}
		return nil
	},
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print persistent memory statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMemory()
		if err != nil {
			return err
		}
		defer m.Close()

		stats, err := m.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("entries: %d\n", stats.Entries)
		fmt.Printf("last_updated: %s\n", stats.LastUpdated)
		return nil
	},
}

func init() {
	memoryQueryCmd.Flags().IntVar(&memoryLimit, "limit", 10, "Maximum results to return")
}

func openMemory() (*memory.Memory, error) {
	journalPath := cfg.Memory.JournalPath
	if !filepath.IsAbs(journalPath) {
		journalPath = filepath.Join(cfg.Workspace.Root, journalPath)
	}
	cachePath := cfg.Memory.CachePath
	if !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(cfg.Workspace.Root, cachePath)
	}
	return memory.Open(journalPath, cachePath, cfg.Memory.BM25K1, cfg.Memory.BM25B)
}
