// Package modelclient bridges sunwell's Model/GenerateFn interfaces to an
// external model process, keeping the actual LLM an out-of-process
// collaborator rather than a vendor SDK baked into the core. It treats
// the thing doing real work as external, reachable only through a
// narrow interface, the same way the tool executor façade treats
// concrete tools.
package modelclient

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecModel completes a prompt by running an external command, writing
// the prompt to its stdin and reading the full stdout as the
// completion. The command is split on whitespace; callers that need
// shell features should wrap it in `sh -c '...'` themselves.
type ExecModel struct {
	command []string
}

// NewExecModel builds an ExecModel from a command line, e.g.
// "llm -m gpt-4.1". Returns an error if command is blank.
func NewExecModel(commandLine string) (*ExecModel, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("modelclient: empty command")
	}
	return &ExecModel{command: fields}, nil
}

// Complete implements reason.Model.
func (m *ExecModel) Complete(ctx context.Context, prompt string) (string, error) {
	return m.run(ctx, prompt)
}

// CompleteWithSystem implements reason.Model, prepending the system
// prompt as a leading section since the external command has no
// separate system-message channel.
func (m *ExecModel) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.run(ctx, systemPrompt+"\n\n"+userPrompt)
}

func (m *ExecModel) run(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, m.command[0], m.command[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("model command failed: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// Generate adapts ExecModel to planner.GenerateFn: the variance hint
// (persona or temperature string) is folded into the prompt as a
// directive line since the external command has no separate parameter
// for it.
func (m *ExecModel) Generate(ctx context.Context, goal string, planContext map[string]any, varianceHint string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "goal: %s\n", goal)
	if varianceHint != "" {
		fmt.Fprintf(&b, "variance_hint: %s\n", varianceHint)
	}
	for k, v := range planContext {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	b.WriteString("\nRespond with a JSON artifact graph as described in the sunwell wire format.\n")
	return m.run(ctx, b.String())
}
