package sandbox

import (
	"encoding/json"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v11"
	"go.uber.org/zap"
)

// hostState is the per-instantiation state a module's host imports read
// and write. One hostState backs exactly one Store, so guard invocations
// never share config or metrics across concurrent calls.
type hostState struct {
	guardID string
	config  map[string]any
	logger  *zap.Logger
	metrics map[string]float64
}

func newHostState(guardID string, config map[string]any, logger *zap.Logger) *hostState {
	return &hostState{guardID: guardID, config: config, logger: logger, metrics: map[string]float64{}}
}

// defineHostFuncs wires the module's imported host interface —
// mcp:security-guard/host in the original's WIT — onto linker, matching
// the level/message log signature, the get-time clock read, the
// get-config lookup, and an emit-metric hook the original's WASI-only
// surface didn't have but SPEC_FULL.md's observability requirements add.
func defineHostFuncs(store *wasmtime.Store, linker *wasmtime.Linker, state *hostState) error {
	if err := linker.DefineFunc(store, "mcp:security-guard/host", "log", func(level int32, message string) {
		switch level {
		case 0:
			state.logger.Debug(message, zap.String("guard_id", state.guardID), zap.String("wasm_level", "trace"))
		case 1:
			state.logger.Debug(message, zap.String("guard_id", state.guardID))
		case 2:
			state.logger.Info(message, zap.String("guard_id", state.guardID))
		case 3:
			state.logger.Warn(message, zap.String("guard_id", state.guardID))
		case 4:
			state.logger.Error(message, zap.String("guard_id", state.guardID))
		default:
			state.logger.Info(message, zap.String("guard_id", state.guardID))
		}
	}); err != nil {
		return err
	}

	if err := linker.DefineFunc(store, "mcp:security-guard/host", "get-time", func() int64 {
		return time.Now().UnixMilli()
	}); err != nil {
		return err
	}

	if err := linker.DefineFunc(store, "mcp:security-guard/host", "get-config", func(key string) string {
		v, ok := state.config[key]
		if !ok {
			return ""
		}
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}); err != nil {
		return err
	}

	if err := linker.DefineFunc(store, "mcp:security-guard/host", "emit-metric", func(name string, value float64) {
		state.metrics[name] = value
	}); err != nil {
		return err
	}

	return nil
}
