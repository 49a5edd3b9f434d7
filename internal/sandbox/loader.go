package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v11"
	"go.uber.org/zap"

	"github.com/triage-ai/palisade/internal/guard"
)

// Module is a compiled Wasm guard. The Engine and compiled Module are
// reused across every invocation; a fresh Store, Linker, and Instance are
// created per call so no guest-side state or host-import closure leaks
// between requests. This is the same call-scoped-instance shape
// internal/engine.Executor uses per-guard timeouts for, and it is
// necessary here for a stronger reason: a Wasm instance's linear memory
// is part of its trust boundary, and reusing it across tenants would
// leak one call's payload into the next.
type Module struct {
	id     string
	cfg    ModuleConfig
	logger *zap.Logger

	engine *wasmtime.Engine
	module *wasmtime.Module
}

// wasmDecision is the JSON envelope exchanged with a guest module: the
// guest reads a request envelope from its exported request buffer and
// writes a response envelope of this shape to its exported response
// buffer. Using a JSON string payload rather than the original's WIT
// variant marshalling keeps the guest ABI simple enough that a guard can
// be written in any language with a Wasm target and a JSON encoder.
type wasmDecision struct {
	Kind        string         `json:"kind"` // "allow", "deny", "modify"
	Code        string         `json:"code,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ModifyKind  string         `json:"modify_kind,omitempty"` // "redact_fields", "add_warning"
	Paths       []string       `json:"paths,omitempty"`
	Replacement string         `json:"replacement,omitempty"`
	Warning     string         `json:"warning,omitempty"`
}

// LoadModule compiles a Wasm guard module from disk. Compilation happens
// once at load time; LoadModule fails fast (a ConfigError) if the file is
// missing or does not parse as a valid Wasm module, so a broken guard
// entry never reaches the executor's hot path.
func LoadModule(id string, cfg ModuleConfig, logger *zap.Logger) (*Module, error) {
	cfg = cfg.withDefaults()
	cfg, err := cfg.validate()
	if err != nil {
		return nil, guard.NewConfigError(id, err)
	}

	engineCfg := wasmtime.NewConfig()
	engineCfg.SetConsumeFuel(true)
	engineCfg.SetMaxWasmStack(int(cfg.MaxStack))

	engine := wasmtime.NewEngineWithConfig(engineCfg)
	mod, err := wasmtime.NewModuleFromFile(engine, cfg.ModulePath)
	if err != nil {
		return nil, guard.NewConfigError(id, fmt.Errorf("loading wasm module: %w", err))
	}

	logger.Info("loaded wasm guard module", zap.String("guard_id", id), zap.String("module_path", cfg.ModulePath))

	return &Module{id: id, cfg: cfg, logger: logger, engine: engine, module: mod}, nil
}

func (m *Module) ID() string { return m.id }

// invoke instantiates a fresh Store/Linker/Instance, primes it with a
// fuel budget proportional to the configured timeout, writes the request
// payload into guest memory, calls the named export, and reads back the
// response envelope. It races the call against the context deadline on a
// dedicated goroutine, the same pattern internal/engine.Executor uses for
// native guard timeouts, because a fuel-exhausted Wasm call still needs
// somewhere to report back to.
func (m *Module) invoke(ctx context.Context, funcName string, request any) (guard.Decision, error) {
	store := wasmtime.NewStore(m.engine)
	if err := store.AddFuel(uint64(defaultFuelPerCall) * uint64(m.cfg.TimeoutMS) / defaultTimeoutMS); err != nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("adding fuel: %w", err))
	}

	linker := wasmtime.NewLinker(m.engine)
	state := newHostState(m.id, m.cfg.Config, m.logger)
	if err := defineHostFuncs(store, linker, state); err != nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("defining host imports: %w", err))
	}

	reqBytes, err := json.Marshal(request)
	if err != nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("marshaling request: %w", err))
	}

	type callResult struct {
		dec guard.Decision
		err error
	}
	done := make(chan callResult, 1)

	go func() {
		dec, err := m.callGuestFunc(store, linker, funcName, reqBytes)
		done <- callResult{dec, err}
	}()

	select {
	case res := <-done:
		return res.dec, res.err
	case <-ctx.Done():
		return guard.Decision{}, guard.NewTimeoutError(m.id)
	case <-time.After(time.Duration(m.cfg.TimeoutMS) * time.Millisecond):
		return guard.Decision{}, guard.NewTimeoutError(m.id)
	}
}

// callGuestFunc performs the actual instantiate-write-call-read sequence.
// Guest ABI contract: the module exports "memory", an "alloc(len i32) ->
// i32" allocator, and the guard entrypoint itself, which takes
// (ptr i32, len i32) for the request bytes and returns (ptr i32, len i32)
// for the response bytes.
func (m *Module) callGuestFunc(store *wasmtime.Store, linker *wasmtime.Linker, funcName string, reqBytes []byte) (guard.Decision, error) {
	instance, err := linker.Instantiate(store, m.module)
	if err != nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("instantiating module: %w", err))
	}

	mem := instance.GetExport(store, "memory").Memory()
	if mem == nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("module does not export linear memory"))
	}

	alloc := instance.GetFunc(store, "alloc")
	if alloc == nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("module does not export alloc"))
	}
	entry := instance.GetFunc(store, funcName)
	if entry == nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("module does not export %s", funcName))
	}

	reqPtrVal, err := alloc.Call(store, int32(len(reqBytes)))
	if err != nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("guest alloc failed: %w", err))
	}
	reqPtr := reqPtrVal.(int32)
	copy(mem.UnsafeData(store)[reqPtr:], reqBytes)

	rawResult, err := entry.Call(store, reqPtr, int32(len(reqBytes)))
	if err != nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("guest call failed: %w", err))
	}
	results, ok := rawResult.([]wasmtime.Val)
	if !ok || len(results) != 2 {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("guest returned unexpected shape: %v", rawResult))
	}
	respPtr := results[0].I32()
	respLen := results[1].I32()

	data := mem.UnsafeData(store)
	if int(respPtr)+int(respLen) > len(data) {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("guest response out of bounds"))
	}
	respBytes := make([]byte, respLen)
	copy(respBytes, data[respPtr:respPtr+respLen])

	var wd wasmDecision
	if err := json.Unmarshal(respBytes, &wd); err != nil {
		return guard.Decision{}, guard.NewInternalError(m.id, fmt.Errorf("decoding guest response: %w", err))
	}
	return decodeDecision(wd), nil
}

func decodeDecision(wd wasmDecision) guard.Decision {
	switch wd.Kind {
	case "deny":
		return guard.DenyDecision(wd.Code, wd.Message, wd.Details)
	case "modify":
		switch wd.ModifyKind {
		case "redact_fields":
			return guard.ModifyRedactFields(wd.Paths, wd.Replacement)
		case "add_warning":
			return guard.ModifyAddWarning(wd.Warning)
		default:
			return guard.AllowDecision()
		}
	default:
		return guard.AllowDecision()
	}
}

// guardRequest is the request envelope written to guest memory. Only the
// fields relevant to the phase being evaluated are populated.
type guardRequest struct {
	ServerName string       `json:"server_name"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Tools      []guard.Tool `json:"tools,omitempty"`
}

// OnConnection and OnToolsList are the only hooks a Module implements
// with real guest execution — matching the original's WasmGuard, which
// only wires evaluate_connection and evaluate_tools_list through to Wasm
// and default-allows every other phase. The rest come from guard.NoopHooks.
type moduleGuard struct {
	guard.NoopHooks
	m *Module
}

// AsGuard adapts a compiled Module to the guard.Guard interface.
func (m *Module) AsGuard() guard.Guard { return moduleGuard{m: m} }

func (g moduleGuard) ID() string { return g.m.id }

func (g moduleGuard) OnConnection(ctx context.Context, gctx guard.GuardContext) (guard.Decision, error) {
	req := guardRequest{ServerName: gctx.ServerName, Metadata: gctx.Metadata}
	return g.m.invoke(ctx, "evaluate-connection", req)
}

func (g moduleGuard) OnToolsList(ctx context.Context, gctx guard.GuardContext, tools []guard.Tool) (guard.Decision, error) {
	req := guardRequest{ServerName: gctx.ServerName, Metadata: gctx.Metadata, Tools: tools}
	return g.m.invoke(ctx, "evaluate-tools-list", req)
}
