package guards

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/internal/guard"
)

// ToolShadowingConfig is the kind-specific config for a "tool_shadowing"
// guard descriptor.
type ToolShadowingConfig struct {
	// BlockDuplicates denies a listing where two tools share the same
	// name — the multi-target-MCP-backend shadowing case. Default true.
	BlockDuplicates *bool `json:"block_duplicates"`
	// ProtectedNames is the operator's list of tool names no incoming
	// listing may advertise, regardless of which server sent it.
	ProtectedNames []string `json:"protected_names"`

	blockDuplicates bool
	protected       map[string]bool
}

// ToolShadowing denies a tools_list that advertises a protected tool name,
// or that advertises the same tool name twice within one listing — a
// server aggregating multiple upstream MCP backends can otherwise let one
// backend's tool silently shadow another's under an identical name.
type ToolShadowing struct {
	guard.NoopHooks
	id  string
	cfg ToolShadowingConfig
}

// NewToolShadowing builds a ToolShadowing guard from a descriptor's
// decoded config.
func NewToolShadowing(id string, cfg ToolShadowingConfig) (*ToolShadowing, error) {
	cfg.blockDuplicates = true
	if cfg.BlockDuplicates != nil {
		cfg.blockDuplicates = *cfg.BlockDuplicates
	}
	cfg.protected = map[string]bool{}
	for _, n := range cfg.ProtectedNames {
		cfg.protected[n] = true
	}
	return &ToolShadowing{id: id, cfg: cfg}, nil
}

func (g *ToolShadowing) ID() string { return g.id }

// OnToolsList denies the first tool whose name is protected, or — when
// BlockDuplicates is set — the first tool whose name repeats an earlier
// entry in the same listing.
func (g *ToolShadowing) OnToolsList(_ context.Context, _ guard.GuardContext, tools []guard.Tool) (guard.Decision, error) {
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if g.cfg.protected[t.Name] {
			return guard.DenyDecision("tool_shadowing",
				fmt.Sprintf("tool name %q is protected", t.Name),
				map[string]any{"name": t.Name, "reason": "protected_name"},
			), nil
		}
		if g.cfg.blockDuplicates && seen[t.Name] {
			return guard.DenyDecision("tool_shadowing",
				fmt.Sprintf("tool name %q appears more than once in this listing", t.Name),
				map[string]any{"name": t.Name, "reason": "duplicate_name"},
			), nil
		}
		seen[t.Name] = true
	}
	return guard.AllowDecision(), nil
}
