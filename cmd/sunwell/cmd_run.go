package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sunwell/internal/cache"
	"sunwell/internal/events"
	"sunwell/internal/executor"
	"sunwell/internal/graph"
	"sunwell/internal/modelclient"
)

var (
	graphFile string
	eventsOut string
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Plan then execute via the IncrementalExecutor, streaming NDJSON events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := args[0]
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var g *graph.ArtifactGraph
		if graphFile != "" {
			data, err := os.ReadFile(graphFile)
			if err != nil {
				return fmt.Errorf("read graph file: %w", err)
			}
			g, err = graph.ParseJSON(data)
			if err != nil {
				return fmt.Errorf("parse graph file: %w", err)
			}
		} else {
			p, _, err := buildPlanner()
			if err != nil {
				return err
			}
			g, err = p.Plan(ctx, goal, nil)
			if err != nil {
				return fmt.Errorf("plan failed: %w", err)
			}
		}

		bus := events.New(uuid.NewString())
		sink := os.Stdout
		if eventsOut != "" {
			f, err := os.Create(eventsOut)
			if err != nil {
				return fmt.Errorf("create events-out file: %w", err)
			}
			defer f.Close()
			sink = f
		}
		bus.EnableNDJSONStream(sink)

		execCache, err := cache.Open(cfg.AppPath("cache", "execution.db"))
		if err != nil {
			return fmt.Errorf("open execution cache: %w", err)
		}
		defer execCache.Close()

		createFn, err := buildCreateArtifactFn()
		if err != nil {
			return err
		}

		ecfg := executor.DefaultConfig()
		ecfg.GoalHash = cache.GoalHash(goal)
		ecfg.RunID = uuid.NewString()
		ecfg.RetryCooldown = cfg.RetryCooldownDuration()

		ex := executor.New(g, execCache, bus, createFn, cfg.Core.MaxConcurrentSubagents, ecfg)
		result, err := ex.Run(ctx)
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}

		var artifactIDs []string
		for id := range result.Decisions {
			artifactIDs = append(artifactIDs, id)
		}
		_ = execCache.RecordGoalExecution(ecfg.GoalHash, artifactIDs)

		fmt.Fprintf(os.Stderr, "completed=%d skipped=%d failed=%d\n", result.Completed, result.Skipped, result.Failed)
		if result.Failed > 0 {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&graphFile, "graph-file", "", "Load a pre-built artifact graph (JSON) instead of planning from the goal")
	runCmd.Flags().StringVar(&eventsOut, "events-out", "", "Write the NDJSON event stream to this file instead of stdout")
}

// buildCreateArtifactFn builds the executor's artifact-creation
// callback. Without --model-cmd, artifact content is a timestamped stub
// recording the artifact's description: concrete generation work is a
// ToolExecutor/Model concern external to this core
func buildCreateArtifactFn() (executor.CreateArtifactFn, error) {
	if modelCmd == "" {
		return func(ctx context.Context, a graph.Artifact, inputHash string) ([]byte, error) {
			stub := map[string]any{
				"artifact_id": a.ID,
				"description": a.Description,
				"input_hash":  inputHash,
				"generated_at": time.Now().UTC().Format(time.RFC3339),
			}
			return json.Marshal(stub)
		}, nil
	}
	m, err := modelclient.NewExecModel(modelCmd)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, a graph.Artifact, inputHash string) ([]byte, error) {
		prompt := fmt.Sprintf("Produce the content for artifact %q: %s\ninput_hash: %s\n", a.ID, a.Description, inputHash)
		out, err := m.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	}, nil
}
