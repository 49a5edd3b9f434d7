package guards

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/internal/detect"
	"github.com/triage-ai/palisade/internal/guard"
)

// PIIAction is what the guard does when it finds PII above threshold.
type PIIAction string

const (
	PIIActionMask   PIIAction = "mask"
	PIIActionReject PIIAction = "reject"
)

// defaultPIIEntities is the entity set a "pii" guard scans for when its
// config omits detect entirely.
var defaultPIIEntities = []detect.EntityType{detect.EntityEmail, detect.EntityPhone, detect.EntitySSN, detect.EntityCreditCard}

// PIIConfig is the kind-specific config for a "pii" guard descriptor.
type PIIConfig struct {
	// Detect is the entity types to scan for. Omitted entirely, it
	// defaults to defaultPIIEntities; an explicit empty list is a
	// ConfigError rather than "scan for nothing".
	Detect     []detect.EntityType `json:"detect"`
	MinScore   float32             `json:"min_score"`   // confidence floor in [0,1], default 0.8
	Action     PIIAction           `json:"action"`      // default mask
	ScanFields []string            `json:"scan_fields"` // dotted-path prefixes to restrict scanning to; empty means whole payload
}

// PII scans request/response/tool-result JSON payloads for personally
// identifiable information and either masks the offending spans in place
// or rejects the message outright, depending on configuration.
type PII struct {
	guard.NoopHooks
	id      string
	cfg     PIIConfig
	wanted  map[detect.EntityType]bool
	minScore float32
}

// NewPII builds a PII guard from a descriptor's decoded config. detect=∅
// (present but empty) is a ConfigError: a PII guard scanning for nothing
// is a misconfiguration, not an intentional pass-through. detect omitted
// entirely instead falls back to defaultPIIEntities.
func NewPII(id string, cfg PIIConfig) (*PII, error) {
	if cfg.Detect != nil && len(cfg.Detect) == 0 {
		return nil, guard.NewConfigError(id, fmt.Errorf("detect must not be empty"))
	}
	if cfg.Action == "" {
		cfg.Action = PIIActionMask
	}
	if cfg.Action != PIIActionMask && cfg.Action != PIIActionReject {
		return nil, guard.NewConfigError(id, fmt.Errorf("unknown pii action %q", cfg.Action))
	}
	minScore := cfg.MinScore
	if minScore <= 0 {
		minScore = 0.8
	}
	entities := cfg.Detect
	if entities == nil {
		entities = defaultPIIEntities
	}
	known := map[detect.EntityType]bool{}
	for _, e := range detect.AllEntityTypes {
		known[e] = true
	}
	wanted := map[detect.EntityType]bool{}
	for _, e := range entities {
		if !known[e] {
			return nil, guard.NewConfigError(id, fmt.Errorf("unknown pii entity type %q", e))
		}
		wanted[e] = true
	}
	return &PII{id: id, cfg: cfg, wanted: wanted, minScore: minScore}, nil
}

func (g *PII) ID() string { return g.id }

func (g *PII) inScope(path string) bool {
	if len(g.cfg.ScanFields) == 0 {
		return true
	}
	for _, prefix := range g.cfg.ScanFields {
		if path == prefix {
			return true
		}
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			next := path[len(prefix)]
			if next == '.' || next == '[' {
				return true
			}
		}
	}
	return false
}

// scan walks the payload's string leaves and returns every hit paired with
// the dotted path it was found at.
func (g *PII) scan(value any) map[string][]detect.PIIHit {
	hits := map[string][]detect.PIIHit{}
	detect.WalkStrings(value, func(path, s string) {
		if !g.inScope(path) {
			return
		}
		found := detect.ScanPII(s, g.wanted, g.minScore)
		if len(found) > 0 {
			hits[path] = found
		}
	})
	return hits
}

// evaluate is the shared body of OnRequest/OnResponse/OnToolResult: scan,
// then either allow, mask each hit span in place with a type-tagged
// placeholder, or deny.
func (g *PII) evaluate(value any) guard.Decision {
	hits := g.scan(value)
	if len(hits) == 0 {
		return guard.AllowDecision()
	}
	if g.cfg.Action == PIIActionReject {
		entities := map[string]bool{}
		total := 0
		for _, hs := range hits {
			for _, h := range hs {
				entities[string(h.Entity)] = true
				total++
			}
		}
		names := make([]string, 0, len(entities))
		for e := range entities {
			names = append(names, e)
		}
		return guard.DenyDecision("pii_detected",
			fmt.Sprintf("payload contains %d PII match(es) across %d field(s)", total, len(hits)),
			map[string]any{"entities": names, "fields": pathKeys(hits)},
		)
	}
	values := make(map[string]string, len(hits))
	for path, hs := range hits {
		raw, ok := detect.GetPath(value, path)
		s, isString := raw.(string)
		if !ok || !isString {
			continue
		}
		values[path] = detect.RedactSpans(s, hs)
	}
	return guard.ModifyRedactSpans(values)
}

func pathKeys(hits map[string][]detect.PIIHit) []string {
	out := make([]string, 0, len(hits))
	for p := range hits {
		out = append(out, p)
	}
	return out
}

func (g *PII) OnRequest(_ context.Context, _ guard.GuardContext, req guard.RequestPayload) (guard.Decision, error) {
	return g.evaluate(map[string]any(req.Body)), nil
}

func (g *PII) OnResponse(_ context.Context, _ guard.GuardContext, resp guard.JSONPayload) (guard.Decision, error) {
	return g.evaluate(resp.Value), nil
}

func (g *PII) OnToolResult(_ context.Context, _ guard.GuardContext, result guard.JSONPayload) (guard.Decision, error) {
	return g.evaluate(result.Value), nil
}

// OnToolInvoke scans a tool call's raw arguments. The executor cannot
// rewrite tool_invoke arguments before dispatch (Executor.ExecuteToolInvoke
// only honors Deny and AddWarning), so a mask-configured guard cannot
// redact in place here the way it does for request/response bodies; it
// instead surfaces the detection as an advisory warning rather than
// producing a Modify the caller would never see applied.
func (g *PII) OnToolInvoke(_ context.Context, _ guard.GuardContext, call guard.ToolInvokePayload) (guard.Decision, error) {
	hits := detect.ScanPII(call.ArgumentsJSON, g.wanted, g.minScore)
	if len(hits) == 0 {
		return guard.AllowDecision(), nil
	}
	if g.cfg.Action == PIIActionReject {
		return guard.DenyDecision("pii_detected",
			fmt.Sprintf("tool arguments contain %d PII match(es)", len(hits)), nil), nil
	}
	return guard.ModifyAddWarning(fmt.Sprintf("tool call arguments contain %d PII match(es)", len(hits))), nil
}
