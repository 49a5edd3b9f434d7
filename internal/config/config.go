// Package config loads route guard configuration from YAML, validates
// each guard's config block against internal/schema's registry, builds
// the concrete guard.Guard for each descriptor (native or sandboxed), and
// installs the resulting chains into an internal/engine.Registry.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	yaml "go.yaml.in/yaml/v3"

	"github.com/triage-ai/palisade/internal/engine"
	"github.com/triage-ai/palisade/internal/guard"
	"github.com/triage-ai/palisade/internal/guards"
	"github.com/triage-ai/palisade/internal/sandbox"
	"github.com/triage-ai/palisade/internal/schema"
	"github.com/triage-ai/palisade/internal/store"
)

// GuardConfig is one entry in a route's security_guards list, as decoded
// from YAML. It mirrors guard.Descriptor's wire shape (§3/§6).
type GuardConfig struct {
	ID          string         `yaml:"id"`
	Kind        string         `yaml:"kind"`
	Enabled     *bool          `yaml:"enabled"`
	Priority    int            `yaml:"priority"`
	TimeoutMS   int            `yaml:"timeout_ms"`
	FailureMode string         `yaml:"failure_mode"`
	RunsOn      []string       `yaml:"runs_on"`
	Config      map[string]any `yaml:"config"`

	// Wasm-only.
	ModulePath string `yaml:"module_path"`
	MaxMemory  int64  `yaml:"max_memory"`
	MaxStack   int64  `yaml:"max_stack"`
}

// RouteFile is one route's guard configuration document.
type RouteFile struct {
	Name          string        `yaml:"name"`
	MaxMemory     int64         `yaml:"max_memory"` // per-route ceiling; 0 means unbounded
	SecurityGuards []GuardConfig `yaml:"security_guards"`
}

// Document is the top-level YAML document: a list of routes.
type Document struct {
	Routes []RouteFile `yaml:"routes"`
}

// ErrConfig wraps a route-load-time configuration problem. spec §7:
// ConfigError aborts configuration load; the route never accepts traffic
// with an invalid guard.
type ErrConfig struct {
	Route   string
	GuardID string
	Err     error
}

func (e *ErrConfig) Error() string {
	if e.GuardID != "" {
		return fmt.Sprintf("route %q guard %q: %v", e.Route, e.GuardID, e.Err)
	}
	return fmt.Sprintf("route %q: %v", e.Route, e.Err)
}

func (e *ErrConfig) Unwrap() error { return e.Err }

// Loader builds guard.Guard instances from decoded descriptors and
// installs completed chains into an engine.Registry.
type Loader struct {
	Schemas *schema.Registry
	Sandbox *sandbox.Pool
	Logger  *zap.Logger

	// Store, if set, receives a copy of every successfully-loaded route's
	// raw config after LoadFile installs it into the registry. The copies
	// are only written: nothing in this package reads them back, and both
	// startup and reload load routes from the YAML file alone.
	// Persistence failures are logged, not fatal — the reload already
	// took effect in memory by the time Store is written to.
	Store *store.Store
}

// NewLoader builds a Loader. schemas and sbox must already be populated /
// constructed by the caller (cmd/guard-server wires the builtin
// descriptors into schemas before calling LoadFile). st may be nil, in
// which case loaded routes are not persisted.
func NewLoader(schemas *schema.Registry, sbox *sandbox.Pool, logger *zap.Logger, st *store.Store) *Loader {
	return &Loader{Schemas: schemas, Sandbox: sbox, Logger: logger, Store: st}
}

// LoadFile parses a YAML route document and installs every route's
// chains into reg. It is atomic per-document: if any route fails to
// build, no route from this call is installed, matching spec §6's
// "reload is expected to be atomic" — a bad config file must not leave
// half the routes running under a partially-applied reload.
func (l *Loader) LoadFile(path string, reg *engine.Registry) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	built := make(map[string]*engine.RouteChains, len(doc.Routes))
	for _, rf := range doc.Routes {
		chains, err := l.buildRoute(rf)
		if err != nil {
			return err
		}
		built[rf.Name] = chains
	}
	for name, chains := range built {
		reg.Set(name, chains)
	}
	l.persistRoutes(doc.Routes)
	return nil
}

// persistRoutes writes each loaded route's config to Store, best-effort.
// A route already installed into reg by the time this runs, so a
// persistence failure here does not roll back the in-memory reload —
// it only leaves that route's persisted row stale.
func (l *Loader) persistRoutes(routes []RouteFile) {
	if l.Store == nil {
		return
	}
	ctx := context.Background()
	for _, rf := range routes {
		raw, err := json.Marshal(rf)
		if err != nil {
			l.Logger.Warn("marshaling route config for persistence", zap.String("route", rf.Name), zap.Error(err))
			continue
		}
		if err := l.Store.SaveRouteConfig(ctx, rf.Name, raw); err != nil {
			l.Logger.Warn("persisting route config", zap.String("route", rf.Name), zap.Error(err))
		}
	}
}

func (l *Loader) buildRoute(rf RouteFile) (*engine.RouteChains, error) {
	var entries []engine.Entry
	var totalMemory int64

	for _, gc := range rf.SecurityGuards {
		desc, err := l.toDescriptor(rf.Name, gc)
		if err != nil {
			return nil, err
		}
		entries = append(entries, engine.Entry{Desc: desc})
		if !desc.Enabled {
			continue
		}

		// The wasm schema describes the descriptor's own wasm fields, with
		// the guest's opaque config block nested under "config".
		instance := gc.Config
		if desc.Kind == "wasm" {
			instance = map[string]any{"module_path": gc.ModulePath}
			if gc.MaxMemory != 0 {
				instance["max_memory"] = gc.MaxMemory
			}
			if gc.MaxStack != 0 {
				instance["max_stack"] = gc.MaxStack
			}
			if gc.Config != nil {
				instance["config"] = gc.Config
			}
		}
		if instance == nil {
			instance = map[string]any{}
		}
		if errs, err := l.Schemas.Validate(desc.Kind, instance); err != nil {
			return nil, &ErrConfig{Route: rf.Name, GuardID: desc.ID, Err: err}
		} else if len(errs) > 0 {
			return nil, &ErrConfig{Route: rf.Name, GuardID: desc.ID, Err: fmt.Errorf("%s", errs[0].Message)}
		}
		totalMemory += desc.MaxMemory
	}

	// The ceiling is checked before any guard (or Wasm module) is built.
	if rf.MaxMemory > 0 && totalMemory > rf.MaxMemory {
		return nil, &ErrConfig{Route: rf.Name, Err: fmt.Errorf(
			"guard memory ceiling exceeded: guards request %d bytes, route allows %d", totalMemory, rf.MaxMemory)}
	}

	for i, e := range entries {
		if !e.Desc.Enabled {
			continue
		}
		g, err := l.buildGuard(e.Desc)
		if err != nil {
			return nil, &ErrConfig{Route: rf.Name, GuardID: e.Desc.ID, Err: err}
		}
		entries[i].Guard = g
	}

	return engine.BuildRouteChains(entries), nil
}

func (l *Loader) toDescriptor(route string, gc GuardConfig) (guard.Descriptor, error) {
	if gc.ID == "" {
		return guard.Descriptor{}, &ErrConfig{Route: route, Err: fmt.Errorf("guard descriptor missing id")}
	}

	failureMode := guard.FailClosed
	switch gc.FailureMode {
	case "", "fail_closed":
		failureMode = guard.FailClosed
	case "fail_open":
		failureMode = guard.FailOpen
	default:
		return guard.Descriptor{}, &ErrConfig{Route: route, GuardID: gc.ID, Err: fmt.Errorf("unknown failure_mode %q", gc.FailureMode)}
	}

	runsOn := map[guard.Phase]bool{}
	for _, name := range gc.RunsOn {
		p, ok := guard.ParsePhase(name)
		if !ok {
			return guard.Descriptor{}, &ErrConfig{Route: route, GuardID: gc.ID, Err: fmt.Errorf("unknown phase %q", name)}
		}
		runsOn[p] = true
	}
	if len(runsOn) == 0 && gc.Kind == "server_whitelist" {
		// Supplemented feature 2: ServerWhitelist defaults to a superset
		// of spec.md's request-only behavior.
		runsOn[guard.PhaseConnection] = true
		runsOn[guard.PhaseRequest] = true
	}
	if len(runsOn) == 0 {
		return guard.Descriptor{}, &ErrConfig{Route: route, GuardID: gc.ID, Err: fmt.Errorf("runs_on must be non-empty")}
	}

	enabled := true
	if gc.Enabled != nil {
		enabled = *gc.Enabled
	}

	timeoutMS := gc.TimeoutMS
	if timeoutMS == 0 {
		timeoutMS = 100
	}

	return guard.Descriptor{
		ID:          gc.ID,
		Kind:        gc.Kind,
		Enabled:     enabled,
		Priority:    gc.Priority,
		TimeoutMS:   timeoutMS,
		FailureMode: failureMode,
		RunsOn:      runsOn,
		Config:      gc.Config,
		ModulePath:  gc.ModulePath,
		MaxMemory:   gc.MaxMemory,
		MaxStack:    gc.MaxStack,
	}, nil
}

// buildGuard constructs the concrete guard.Guard for desc, dispatching on
// Kind. Native kinds decode desc.Config into their typed Config struct via
// a JSON round-trip (YAML already decoded into map[string]any, and every
// native Config struct carries json tags matching the schema registry's
// property names, so this reuses one decode path for both).
func (l *Loader) buildGuard(desc guard.Descriptor) (guard.Guard, error) {
	switch desc.Kind {
	case "tool_poisoning":
		var cfg guards.ToolPoisoningConfig
		if err := decodeConfig(desc.Config, &cfg); err != nil {
			return nil, err
		}
		return guards.NewToolPoisoning(desc.ID, cfg)
	case "pii":
		var cfg guards.PIIConfig
		if err := decodeConfig(desc.Config, &cfg); err != nil {
			return nil, err
		}
		return guards.NewPII(desc.ID, cfg)
	case "rug_pull":
		var cfg guards.RugPullConfig
		if err := decodeConfig(desc.Config, &cfg); err != nil {
			return nil, err
		}
		return guards.NewRugPull(desc.ID, cfg)
	case "tool_shadowing":
		var cfg guards.ToolShadowingConfig
		if err := decodeConfig(desc.Config, &cfg); err != nil {
			return nil, err
		}
		return guards.NewToolShadowing(desc.ID, cfg)
	case "server_whitelist":
		var cfg guards.ServerWhitelistConfig
		if err := decodeConfig(desc.Config, &cfg); err != nil {
			return nil, err
		}
		return guards.NewServerWhitelist(desc.ID, cfg)
	case "wasm":
		return l.buildWasmGuard(desc)
	default:
		return nil, guard.NewConfigError(desc.ID, fmt.Errorf("unknown guard kind %q", desc.Kind))
	}
}

func (l *Loader) buildWasmGuard(desc guard.Descriptor) (guard.Guard, error) {
	if desc.ModulePath == "" {
		return nil, guard.NewConfigError(desc.ID, fmt.Errorf("wasm guard requires module_path"))
	}
	modCfg := sandbox.ModuleConfig{
		ModulePath: desc.ModulePath,
		MaxMemory:  desc.MaxMemory,
		MaxStack:   desc.MaxStack,
		TimeoutMS:  desc.TimeoutMS,
		Config:     desc.Config,
	}
	mod, err := l.Sandbox.GetOrLoad(desc.ID, func() (*sandbox.Module, error) {
		return sandbox.LoadModule(desc.ID, modCfg, l.Logger)
	})
	if err != nil {
		return nil, guard.NewConfigError(desc.ID, err)
	}
	return mod.AsGuard(), nil
}

// decodeConfig round-trips a decoded-YAML map into a typed Config struct
// via JSON, so YAML's map[string]any (with float64/int ambiguity already
// resolved by go.yaml.in/yaml/v3's decoder) lands on out's json-tagged
// fields the same way internal/schema.Registry.Validate re-decodes it.
func decodeConfig(raw map[string]any, out any) error {
	if raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshaling guard config: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding guard config: %w", err)
	}
	return nil
}
