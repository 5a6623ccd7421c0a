// Package main implements the sunwell CLI: a thin cobra layer over the
// core packages (graph, executor, cache, planner, reason, registry,
// memory, events). Grounded on the teacher's cmd/nerd/main.go: a single
// rootCmd with PersistentFlags for --verbose/--workspace/--timeout, a
// PersistentPreRunE that wires a zap console logger plus the internal
// file-based obslog system, and subcommands split across cmd_*.go files.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sunwell/internal/config"
	"sunwell/internal/obslog"
)

var (
	verbose   bool
	workspace string
	timeout   time.Duration
	modelCmd  string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sunwell",
	Short: "sunwell - artifact-graph agent execution core",
	Long: `sunwell plans and executes a goal as a DAG of content-addressed
artifacts, driven by a harmonic multi-candidate planner and a
confidence-gated reasoner, with subagent concurrency, caching, and a
persistent learning memory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		workspace = ws

		if err := obslog.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}

		cfg, err = config.Load(filepath.Join(ws, ".sunwell", "config.yaml"))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Workspace.Root = ws
		if verbose {
			cfg.Logging.DebugMode = true
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 25*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().StringVar(&modelCmd, "model-cmd", "", "External command to invoke for model completions (reads prompt on stdin, writes completion to stdout)")

	rootCmd.AddCommand(planCmd, runCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(registryCmd)

	cacheCmd.AddCommand(cacheStatsCmd, cacheInvalidateCmd)
	memoryCmd.AddCommand(memoryQueryCmd, memoryStatsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
