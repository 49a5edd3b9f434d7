// Package guards implements the native, in-process security guards: guard
// logic compiled directly into this binary rather than loaded as a Wasm
// module. Each guard embeds guard.NoopHooks and overrides only the hooks
// its phase needs, following the same narrow-detector-behind-one-interface
// shape the teacher uses for its engine detectors.
package guards

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/triage-ai/palisade/internal/detect"
	"github.com/triage-ai/palisade/internal/guard"
)

// ToolPoisoningConfig is the kind-specific config for a "tool_poisoning"
// guard descriptor.
type ToolPoisoningConfig struct {
	AlertThreshold int      `json:"alert_threshold"` // total pattern hits that trip a deny; default 1
	StrictMode     *bool    `json:"strict_mode"`     // enables the built-in pattern set; default true
	ScanFields     []string `json:"scan_fields"`     // subset of {"name","description","input_schema"}; empty means all
	CustomPatterns []string `json:"custom_patterns"` // additional raw regexes, ORed into the family "custom"

	strictMode bool
}

// ToolPoisoning scans an advertised tool list for prompt-injection payloads
// hidden in tool names, descriptions, or schemas — the classic "tool
// poisoning" MCP supply-chain attack, where a malicious server smuggles
// instructions to the calling model inside otherwise-inert metadata.
type ToolPoisoning struct {
	guard.NoopHooks
	id       string
	cfg      ToolPoisoningConfig
	patterns []detect.InjectionPattern
}

// NewToolPoisoning builds a ToolPoisoning guard from a descriptor's decoded
// config. A malformed custom pattern is a ConfigError, not a runtime deny.
func NewToolPoisoning(id string, cfg ToolPoisoningConfig) (*ToolPoisoning, error) {
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = 1
	}
	cfg.strictMode = true
	if cfg.StrictMode != nil {
		cfg.strictMode = *cfg.StrictMode
	}
	var patterns []detect.InjectionPattern
	if cfg.strictMode {
		patterns = append(patterns, detect.InjectionPatterns...)
	}
	for _, raw := range cfg.CustomPatterns {
		p, err := detect.CompilePattern(raw, detect.FamilyCustom, "custom pattern")
		if err != nil {
			return nil, guard.NewConfigError(id, fmt.Errorf("compiling custom pattern %q: %w", raw, err))
		}
		patterns = append(patterns, p)
	}
	return &ToolPoisoning{id: id, cfg: cfg, patterns: patterns}, nil
}

func (g *ToolPoisoning) ID() string { return g.id }

func (g *ToolPoisoning) scanField(field string) bool {
	if len(g.cfg.ScanFields) == 0 {
		return true
	}
	for _, f := range g.cfg.ScanFields {
		if f == field {
			return true
		}
	}
	return false
}

// OnToolsList denies the entire listing if any single tool's metadata
// trips at least AlertThreshold total pattern hits — run every active
// regex once, count every match, regardless of how many distinct attack
// families they fall into. A partial deny (dropping only the poisoned
// tool) is deliberately not offered: a server willing to smuggle
// instructions in one tool's metadata is not a source the guard trusts
// for the rest of the listing either.
func (g *ToolPoisoning) OnToolsList(_ context.Context, _ guard.GuardContext, tools []guard.Tool) (guard.Decision, error) {
	for _, t := range tools {
		var text string
		if g.scanField("name") {
			text += t.Name + "\n"
		}
		if g.scanField("description") {
			text += t.Description + "\n"
		}
		if g.scanField("input_schema") && t.InputSchema != nil {
			if b, err := json.Marshal(t.InputSchema); err == nil {
				text += string(b) + "\n"
			}
		}
		if text == "" {
			continue
		}
		hits := detect.ScanInjection(text, g.patterns)
		if len(hits) >= g.cfg.AlertThreshold {
			families := map[detect.AttackFamily]bool{}
			for _, h := range hits {
				families[h.Family] = true
			}
			return guard.DenyDecision("tool_poisoning",
				fmt.Sprintf("tool %q metadata matched %d injection pattern(s)", t.Name, len(hits)),
				map[string]any{"tool": t.Name, "hits": len(hits), "families": familyNames(families)},
			), nil
		}
	}
	return guard.AllowDecision(), nil
}

func familyNames(families map[detect.AttackFamily]bool) []string {
	out := make([]string, 0, len(families))
	for f := range families {
		out = append(out, string(f))
	}
	return out
}
