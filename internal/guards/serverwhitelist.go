package guards

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/internal/detect"
	"github.com/triage-ai/palisade/internal/guard"
)

// ServerWhitelistConfig is the kind-specific config for a
// "server_whitelist" guard descriptor.
type ServerWhitelistConfig struct {
	// AllowedServers is the exact set of server names permitted to
	// connect at all.
	AllowedServers []string `json:"allowed_servers"`
	// DetectTyposquats, when true (the default), reports a rejected
	// server name close to an allowed one as a likely typosquat rather
	// than a plain unknown-server rejection.
	DetectTyposquats *bool `json:"detect_typosquats"`
	// SimilarityThreshold in [0,1]; a rejected server name at or above
	// this similarity to an allowed name is reported as a typosquat.
	// Default 0.85.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	detectTyposquats bool
}

// ServerWhitelist rejects any upstream MCP server whose name is not on
// the operator's allow-list, distinguishing a typosquat attempt (name
// close to a trusted one) from a plain unknown server in the deny
// detail. It evaluates identically on the connection phase (this repo's
// own supplemental addition, ahead of any bytes crossing the wire) and
// on the request phase spec.md names.
type ServerWhitelist struct {
	guard.NoopHooks
	id      string
	cfg     ServerWhitelistConfig
	allowed map[string]bool
}

// NewServerWhitelist builds a ServerWhitelist guard from a descriptor's
// decoded config. allowed_servers=∅ builds successfully and denies every
// server at runtime — typosquat detection degrades to no-match since
// there is nothing to compare against, falling through to
// server_not_whitelisted — rather than refusing to load.
func NewServerWhitelist(id string, cfg ServerWhitelistConfig) (*ServerWhitelist, error) {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.85
	}
	cfg.detectTyposquats = true
	if cfg.DetectTyposquats != nil {
		cfg.detectTyposquats = *cfg.DetectTyposquats
	}
	allowed := map[string]bool{}
	for _, n := range cfg.AllowedServers {
		allowed[n] = true
	}
	return &ServerWhitelist{id: id, cfg: cfg, allowed: allowed}, nil
}

func (g *ServerWhitelist) ID() string { return g.id }

func (g *ServerWhitelist) evaluate(serverName string) guard.Decision {
	if g.allowed[serverName] {
		return guard.AllowDecision()
	}
	if g.cfg.detectTyposquats {
		match, ratio := detect.ClosestMatch(serverName, g.cfg.AllowedServers)
		if match != "" && ratio >= g.cfg.SimilarityThreshold {
			return guard.DenyDecision("typosquat_suspected",
				fmt.Sprintf("server %q is not allowed and closely resembles trusted server %q (similarity %.2f)", serverName, match, ratio),
				map[string]any{"candidate": serverName, "closest": match, "similarity": ratio},
			)
		}
	}
	return guard.DenyDecision("server_not_whitelisted",
		fmt.Sprintf("server %q is not on the allow-list", serverName),
		map[string]any{"candidate": serverName},
	)
}

// OnConnection rejects the upstream connection before any protocol bytes
// cross the wire.
func (g *ServerWhitelist) OnConnection(_ context.Context, gctx guard.GuardContext) (guard.Decision, error) {
	return g.evaluate(gctx.ServerName), nil
}

// OnRequest is spec.md's canonical phase for ServerWhitelist: a caller
// that dispatches request-phase checks without ever running a
// connection-phase check first still gets the same evaluation.
func (g *ServerWhitelist) OnRequest(_ context.Context, gctx guard.GuardContext, _ guard.RequestPayload) (guard.Decision, error) {
	return g.evaluate(gctx.ServerName), nil
}
