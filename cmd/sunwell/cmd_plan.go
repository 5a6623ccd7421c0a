package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sunwell/internal/events"
	"sunwell/internal/graph"
	"sunwell/internal/modelclient"
	"sunwell/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan <goal>",
	Short: "Run the Harmonic Planner and print the winning graph and metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := args[0]
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		p, bus, err := buildPlanner()
		if err != nil {
			return err
		}
		var lines []string
		bus.Subscribe(func(ev events.AgentEvent) {
			lines = append(lines, fmt.Sprintf("[%s] %v", ev.Type, ev.Data))
		})

		g, metrics, err := p.PlanWithMetrics(ctx, goal, nil)
		if err != nil {
			return fmt.Errorf("plan failed: %w", err)
		}
		if verbose {
			for _, l := range lines {
				fmt.Fprintln(os.Stderr, l)
			}
		}

		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		fmt.Fprintf(os.Stderr, "winner score=%.3f depth=%d candidates=%d/%d reason=%q\n",
			metrics.Winner.Score, metrics.Winner.Depth, metrics.ValidCandidates, metrics.TotalCandidates, metrics.SelectionReason)
		return nil
	},
}

// buildPlanner wires a Planner from the --model-cmd bridge, falling back
// to an error-returning generator when no model command is configured
// (the model itself is an external collaborator).
func buildPlanner() (*planner.Planner, *events.Bus, error) {
	bus := events.New("cli")

	var generate planner.GenerateFn
	if modelCmd != "" {
		m, err := modelclient.NewExecModel(modelCmd)
		if err != nil {
			return nil, nil, err
		}
		generate = m.Generate
	} else {
		generate = func(ctx context.Context, goal string, planContext map[string]any, hint string) (string, error) {
			return "", fmt.Errorf("no model configured: pass --model-cmd, or supply a pre-built graph via --graph-file to `run`")
		}
	}

	parse := func(raw string) (*graph.ArtifactGraph, error) {
		return graph.ParseJSON([]byte(strings.TrimSpace(raw)))
	}

	pcfg := planner.DefaultConfig()
	if cfg != nil {
		pcfg.Candidates = cfg.Planner.Candidates
		pcfg.Variance = planner.VarianceStrategy(cfg.Planner.VarianceStrategy)
		pcfg.RefinementRounds = cfg.Planner.RefinementRounds
		pcfg.MaxArtifacts = cfg.Planner.MaxArtifacts
	}

	p := planner.New(generate, parse, nil, bus, pcfg)
	return p, bus, nil
}
