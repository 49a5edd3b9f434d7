package guards

import (
	"context"
	"fmt"
	"sync"

	"github.com/triage-ai/palisade/internal/detect"
	"github.com/triage-ai/palisade/internal/guard"
)

// RugPullConfig is the kind-specific config for a "rug_pull" guard
// descriptor.
type RugPullConfig struct {
	// Scope determines the baseline key: "global" (default) keys solely
	// on server_name, so two sessions hitting the same server share one
	// baseline; "session" additionally keys on a session identifier drawn
	// from context metadata, so each session gets its own.
	Scope string `json:"scope"`
	// RiskThreshold is an integer score; a tools_list whose aggregate
	// change score meets or exceeds this is denied. Default 5; an
	// explicit 0 is honored (deny on any detected change), so this is a
	// pointer to distinguish "omitted" from "explicitly zero" the same
	// way ToolShadowingConfig.BlockDuplicates does.
	RiskThreshold *int `json:"risk_threshold"`
	// WeightDescription, WeightSchema, WeightAdd, and WeightRemove tune
	// how much each change kind contributes to the aggregate score.
	// Defaults 2, 3, 1, 3.
	WeightDescription int `json:"w_desc"`
	WeightSchema      int `json:"w_schema"`
	WeightAdd         int `json:"w_add"`
	WeightRemove      int `json:"w_remove"`
	// MonitoredChangeTypes restricts which change kinds are scored: any
	// of "description", "schema", "add", "remove", or "all" (the
	// default) for every kind.
	MonitoredChangeTypes []string `json:"monitored_change_types"`
	// UpdateBaseline, when true, overwrites the baseline with the current
	// snapshot after an Allow decision. Default false: once a baseline is
	// established it stays immutable until an explicit reset, per the
	// monotonic-baseline invariant.
	UpdateBaseline bool `json:"update_baseline"`

	riskThreshold      int
	monitorDescription bool
	monitorSchema      bool
	monitorAdd         bool
	monitorRemove      bool
}

func (c *RugPullConfig) normalizeChangeTypes() {
	types := c.MonitoredChangeTypes
	if len(types) == 0 {
		types = []string{"all"}
	}
	for _, t := range types {
		switch t {
		case "all":
			c.monitorDescription, c.monitorSchema = true, true
			c.monitorAdd, c.monitorRemove = true, true
		case "description":
			c.monitorDescription = true
		case "schema":
			c.monitorSchema = true
		case "add":
			c.monitorAdd = true
		case "remove":
			c.monitorRemove = true
		}
	}
}

type toolFingerprint struct {
	descHash   string
	schemaHash string
}

// baseline is one server's (or one session's) known-good tool set.
type baseline struct {
	mu    sync.Mutex
	tools map[string]toolFingerprint // tool name -> fingerprint
}

// RugPull detects the "rug pull" attack: an MCP server that advertises an
// innocuous tool list, gets approved by the operator, then silently
// swaps in a different description or schema for an already-trusted tool
// name on a later listing. It keeps a baseline of the first tools_list it
// observed per key and scores every later listing against it.
type RugPull struct {
	guard.NoopHooks
	id  string
	cfg RugPullConfig

	mu        sync.Mutex
	baselines map[string]*baseline // baseline key -> baseline
}

// NewRugPull builds a RugPull guard from a descriptor's decoded config.
func NewRugPull(id string, cfg RugPullConfig) (*RugPull, error) {
	if cfg.Scope == "" {
		cfg.Scope = "global"
	}
	if cfg.Scope != "global" && cfg.Scope != "session" {
		return nil, guard.NewConfigError(id, fmt.Errorf("unknown scope %q", cfg.Scope))
	}
	cfg.riskThreshold = 5
	if cfg.RiskThreshold != nil {
		cfg.riskThreshold = *cfg.RiskThreshold
	}
	if cfg.WeightDescription == 0 {
		cfg.WeightDescription = 2
	}
	if cfg.WeightSchema == 0 {
		cfg.WeightSchema = 3
	}
	if cfg.WeightAdd == 0 {
		cfg.WeightAdd = 1
	}
	if cfg.WeightRemove == 0 {
		cfg.WeightRemove = 3
	}
	cfg.normalizeChangeTypes()
	return &RugPull{id: id, cfg: cfg, baselines: map[string]*baseline{}}, nil
}

func (g *RugPull) ID() string { return g.id }

// baselineKey builds the state key per §3: server_name alone for global
// scope, or (server_name, session_id) for session scope.
func (g *RugPull) baselineKey(gctx guard.GuardContext) string {
	if g.cfg.Scope == "session" {
		return gctx.ServerName + "\x00" + gctx.SessionID()
	}
	return gctx.ServerName
}

func (g *RugPull) baselineFor(key string) *baseline {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.baselines[key]
	if !ok {
		b = &baseline{tools: map[string]toolFingerprint{}}
		g.baselines[key] = b
	}
	return b
}

type rugPullChange struct {
	Tool string `json:"tool"`
	Kind string `json:"kind"`
}

// OnToolsList compares the incoming listing against the stored baseline
// for this key. If no baseline exists yet, one is created from the
// current listing and the call Allows unconditionally. Otherwise the
// current listing is diffed against the baseline, changes are filtered
// by MonitoredChangeTypes, and the weighted sum of all changes (not just
// the worst single tool) is compared against the resolved risk threshold.
func (g *RugPull) OnToolsList(_ context.Context, gctx guard.GuardContext, tools []guard.Tool) (guard.Decision, error) {
	key := g.baselineKey(gctx)
	b := g.baselineFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.tools) == 0 {
		for _, t := range tools {
			b.tools[t.Name] = toolFingerprint{
				descHash:   detect.DescHash(t.Description),
				schemaHash: detect.SchemaHash(t.InputSchema),
			}
		}
		return guard.AllowDecision(), nil
	}

	seen := make(map[string]bool, len(tools))
	var changes []rugPullChange
	score := 0

	for _, t := range tools {
		seen[t.Name] = true
		fp := toolFingerprint{
			descHash:   detect.DescHash(t.Description),
			schemaHash: detect.SchemaHash(t.InputSchema),
		}
		prev, known := b.tools[t.Name]
		if !known {
			if g.cfg.monitorAdd {
				changes = append(changes, rugPullChange{Tool: t.Name, Kind: "add"})
				score += g.cfg.WeightAdd
			}
			continue
		}
		if g.cfg.monitorDescription && prev.descHash != fp.descHash {
			changes = append(changes, rugPullChange{Tool: t.Name, Kind: "description"})
			score += g.cfg.WeightDescription
		}
		if g.cfg.monitorSchema && prev.schemaHash != fp.schemaHash {
			changes = append(changes, rugPullChange{Tool: t.Name, Kind: "schema"})
			score += g.cfg.WeightSchema
		}
	}

	if g.cfg.monitorRemove {
		for name := range b.tools {
			if !seen[name] {
				changes = append(changes, rugPullChange{Tool: name, Kind: "remove"})
				score += g.cfg.WeightRemove
			}
		}
	}

	if score >= g.cfg.riskThreshold {
		return guard.DenyDecision("rug_pull",
			fmt.Sprintf("tools_list changed after being trusted: %d change(s), score %d (threshold %d)", len(changes), score, g.cfg.riskThreshold),
			map[string]any{"changes": changes, "score": score, "threshold": g.cfg.riskThreshold},
		), nil
	}

	if g.cfg.UpdateBaseline {
		b.tools = make(map[string]toolFingerprint, len(tools))
		for _, t := range tools {
			b.tools[t.Name] = toolFingerprint{
				descHash:   detect.DescHash(t.Description),
				schemaHash: detect.SchemaHash(t.InputSchema),
			}
		}
	}
	return guard.AllowDecision(), nil
}

// ResetBaseline drops the stored baseline for key, used by the admin
// reset operation when an operator has knowingly approved a tool change
// out of band.
func (g *RugPull) ResetBaseline(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.baselines, key)
}

// ResetAll drops every stored baseline this guard instance holds. The
// admin reset(server_name) operation calls this on every rug_pull guard
// configured for that server's route rather than trying to reconstruct
// the exact baseline key (global vs session-scoped) from outside.
func (g *RugPull) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.baselines = map[string]*baseline{}
}
