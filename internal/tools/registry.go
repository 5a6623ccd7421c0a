package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sunwell/internal/errs"
	"sunwell/internal/events"
)

// TrustPolicy maps tool name to the minimum trust tier required to
// invoke it. A name absent from the map defaults to TrustReadOnly.
type TrustPolicy struct {
	mu  sync.RWMutex
	min map[string]TrustTier
}

// NewTrustPolicy builds a policy from an initial name->tier map.
func NewTrustPolicy(min map[string]TrustTier) *TrustPolicy {
	p := &TrustPolicy{min: make(map[string]TrustTier, len(min))}
	for k, v := range min {
		p.min[k] = v
	}
	return p
}

// Require sets the minimum tier for a tool name.
func (p *TrustPolicy) Require(name string, tier TrustTier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.min[name] = tier
}

// MinTier returns the minimum tier required for a tool name, defaulting
// to read_only when unspecified.
func (p *TrustPolicy) MinTier(name string) TrustTier {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.min[name]; ok {
		return t
	}
	return TrustReadOnly
}

// Executor is the ToolExecutor façade: a trust-tiered, event-emitting
// invocation surface over registered tools
type Executor struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	policy *TrustPolicy
	bus    *events.Bus
}

// NewExecutor constructs an Executor. bus may be nil to suppress event
// emission (e.g. in unit tests exercising the façade directly).
func NewExecutor(policy *TrustPolicy, bus *events.Bus) *Executor {
	if policy == nil {
		policy = NewTrustPolicy(nil)
	}
	return &Executor{tools: make(map[string]*Tool), policy: policy, bus: bus}
}

// Register adds a tool, failing on a duplicate name or invalid
// definition.
func (e *Executor) Register(tool *Tool) error {
	if err := tool.validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	if tool.Priority == 0 {
		tool.Priority = 50
	}
	e.tools[tool.Name] = tool
	if tool.MinTrust != "" {
		e.policy.Require(tool.Name, tool.MinTrust)
	}
	return nil
}

// Get returns a tool by name, or nil if not found.
func (e *Executor) Get(name string) *Tool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tools[name]
}

// Names returns all registered tool names, sorted.
func (e *Executor) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.tools))
	for n := range e.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (e *Executor) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tools)
}

// Invoke runs call.Name with the caller's granted tier. A tier below the
// tool's minimum required tier fails fast with a TrustViolation
// (StructuralError) without invoking the underlying
// function. Every invocation emits tool_start/tool_complete/tool_error
//, timed for the Reasoner's provenance enrichment.
func (e *Executor) Invoke(ctx context.Context, granted TrustTier, call ToolCall) (ToolResult, error) {
	e.mu.RLock()
	tool, ok := e.tools[call.Name]
	e.mu.RUnlock()
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	required := e.policy.MinTier(call.Name)
	if !granted.Allows(required) {
		err := errs.New(errs.CodeTrustViolation, fmt.Sprintf("tool %s requires trust tier %s, caller has %s", call.Name, required, granted))
		e.publish(events.TypeToolError, call.Name, map[string]any{"error": err.Error()})
		return ToolResult{ToolName: call.Name, Error: err}, err
	}

	if err := validateArgs(tool, call.Args); err != nil {
		e.publish(events.TypeToolError, call.Name, map[string]any{"error": err.Error()})
		return ToolResult{ToolName: call.Name, Error: err}, err
	}

	e.publish(events.TypeToolStart, call.Name, map[string]any{"args": call.Args})
	start := time.Now()
	out, err := tool.Execute(ctx, call.Args)
	duration := time.Since(start)

	res := ToolResult{ToolName: call.Name, Result: out, Error: err, DurationMs: duration.Milliseconds()}
	if err != nil {
		e.publish(events.TypeToolError, call.Name, map[string]any{"error": err.Error(), "duration_ms": res.DurationMs})
		return res, err
	}
	e.publish(events.TypeToolComplete, call.Name, map[string]any{"duration_ms": res.DurationMs})
	return res, nil
}

func (e *Executor) publish(typ events.Type, toolName string, data map[string]any) {
	if e.bus == nil {
		return
	}
	data["tool_name"] = toolName
	e.bus.Publish(typ, 0, data)
}

func validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}
