package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sunwell/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the persisted subagent registry",
}

var registryPsCmd = &cobra.Command{
	Use:   "ps",
	Short: "List active and pending subagents from the persisted registry file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.AppPath("subagents", "registry.json")
		r := registry.New(registry.DefaultConfig())
		if err := r.Restore(path); err != nil {
			return fmt.Errorf("restore registry %s: %w", path, err)
		}

		for _, rec := range r.ListActive() {
			fmt.Printf("ACTIVE  %s  %-20s depth=%d progress=%.2f %q\n",
				rec.RunID, rec.Label, rec.SpawnDepth, rec.Progress, rec.StatusMessage)
		}
		for _, rec := range r.ListPending() {
			fmt.Printf("PENDING %s  %-20s depth=%d task=%q\n",
				rec.RunID, rec.Label, rec.SpawnDepth, rec.Task)
		}
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryPsCmd)
}
