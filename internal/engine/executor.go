package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/palisade/internal/detect"
	"github.com/triage-ai/palisade/internal/guard"
)

// Executor runs a built chain against a single phase's payload. One
// Executor instance is stateless and safe to reuse across concurrent
// evaluations; all per-call state lives in the arguments to Execute.
type Executor struct {
	logger *zap.Logger
}

// NewExecutor builds an Executor that logs guard errors and timeouts to
// logger.
func NewExecutor(logger *zap.Logger) *Executor {
	return &Executor{logger: logger}
}

// Result is the outcome of running a full chain: either the chain denied
// (Denied=true, with the denying guard's detail), or it completed with a
// (possibly empty) sequence of accumulated warnings and a final,
// possibly-modified view of the tools list / JSON payload that the
// caller should forward instead of the original.
type Result struct {
	Denied     bool
	DenyGuard  string
	Deny       guard.DenyDetail
	Warnings   []string
	Tools      []guard.Tool // present when phase == PhaseToolsList
	Value      any          // present for JSON-shaped phases (request body, response, tool result)
	Events     []Event
}

// call dispatches a single guard hook with a per-guard timeout, racing
// the hook goroutine against a timer the same way
// guard/internal/engine/engine.go's SentryEngine.Evaluate races a whole
// detector fan-out against one shared timeout — here the race is
// per-guard rather than per-batch, since the executor runs guards one at
// a time instead of in parallel.
func (x *Executor) call(ctx context.Context, e Entry, invoke func(context.Context) (guard.Decision, error)) (guard.Decision, error) {
	timeout := time.Duration(e.Desc.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type callResult struct {
		dec guard.Decision
		err error
	}
	ch := make(chan callResult, 1)
	go func() {
		dec, err := invoke(callCtx)
		ch <- callResult{dec, err}
	}()

	select {
	case res := <-ch:
		return res.dec, res.err
	case <-callCtx.Done():
		return guard.Decision{}, guard.NewTimeoutError(e.Desc.ID)
	}
}

// resolveFailure turns a guard error into the effective decision per the
// descriptor's failure mode: FailOpen allows and logs, FailClosed denies
// with a code distinguishing a timeout ("guard_timeout") from any other
// engine failure ("guard_error"), so callers can tell the two apart.
func (x *Executor) resolveFailure(e Entry, err error) guard.Decision {
	x.logger.Warn("guard evaluation failed",
		zap.String("guard_id", e.Desc.ID),
		zap.String("kind", e.Desc.Kind),
		zap.Error(err),
	)
	if e.Desc.FailureMode == guard.FailOpen {
		return guard.AllowDecision()
	}
	code := "guard_error"
	var gerr *guard.Error
	if (errors.As(err, &gerr) && gerr.Kind == guard.TimeoutError) || errors.Is(err, context.DeadlineExceeded) {
		code = "guard_timeout"
	}
	return guard.DenyDecision(code, "guard "+e.Desc.ID+" failed: "+err.Error(), nil)
}

// ExecuteToolsList runs chain against a tools_list payload, threading
// ReplaceTools modifications forward so a later guard in the chain
// observes the same edited listing the caller will ultimately receive.
// A RedactFields decision has no effect on this phase.
func (x *Executor) ExecuteToolsList(ctx context.Context, chain []Entry, gctx guard.GuardContext, tools []guard.Tool) Result {
	current := tools
	var warnings []string
	var events []Event

	for _, e := range chain {
		start := time.Now()
		dec, err := x.call(ctx, e, func(callCtx context.Context) (guard.Decision, error) {
			return e.Guard.OnToolsList(callCtx, gctx, current)
		})
		if err != nil {
			dec = x.resolveFailure(e, err)
		}
		events = append(events, newEvent(e, guard.PhaseToolsList, dec, time.Since(start)))

		switch dec.Kind {
		case guard.Deny:
			return Result{Denied: true, DenyGuard: e.Desc.ID, Deny: dec.Deny, Events: events}
		case guard.Modify:
			switch dec.Modify.Kind {
			case guard.ReplaceTools:
				current = dec.Modify.Tools
			case guard.AddWarning:
				warnings = append(warnings, dec.Modify.Warning)
			}
		}
	}
	return Result{Tools: current, Warnings: warnings, Events: events}
}

// ExecuteJSON runs chain against a request/response/tool-result JSON
// payload, applying RedactFields modifications in place so later guards
// (and the eventual caller) see the redacted value.
func (x *Executor) ExecuteJSON(ctx context.Context, chain []Entry, phase guard.Phase, gctx guard.GuardContext, value any) Result {
	current := value
	var warnings []string
	var events []Event

	for _, e := range chain {
		start := time.Now()
		dec, err := x.call(ctx, e, func(callCtx context.Context) (guard.Decision, error) {
			payload := guard.JSONPayload{Value: current}
			switch phase {
			case guard.PhaseResponse:
				return e.Guard.OnResponse(callCtx, gctx, payload)
			case guard.PhaseToolResult:
				return e.Guard.OnToolResult(callCtx, gctx, payload)
			case guard.PhasePromptRequest:
				return e.Guard.OnPromptRequest(callCtx, gctx, guard.RequestPayload{Method: phase.String(), Body: toMap(current)})
			case guard.PhaseResourceRequest:
				return e.Guard.OnResourceRequest(callCtx, gctx, guard.RequestPayload{Method: phase.String(), Body: toMap(current)})
			default:
				return e.Guard.OnRequest(callCtx, gctx, guard.RequestPayload{Method: phase.String(), Body: toMap(current)})
			}
		})
		if err != nil {
			dec = x.resolveFailure(e, err)
		}
		events = append(events, newEvent(e, phase, dec, time.Since(start)))

		switch dec.Kind {
		case guard.Deny:
			return Result{Denied: true, DenyGuard: e.Desc.ID, Deny: dec.Deny, Events: events}
		case guard.Modify:
			switch dec.Modify.Kind {
			case guard.RedactFields:
				current = applyRedaction(current, dec.Modify)
			case guard.AddWarning:
				warnings = append(warnings, dec.Modify.Warning)
			}
		}
	}
	return Result{Value: current, Warnings: warnings, Events: events}
}

// ExecuteConnection runs chain against the connection phase, which has no
// payload of its own — a guard either allows the upstream connection or
// denies it outright. There is nothing to thread forward between guards
// besides warnings.
func (x *Executor) ExecuteConnection(ctx context.Context, chain []Entry, gctx guard.GuardContext) Result {
	var warnings []string
	var events []Event

	for _, e := range chain {
		start := time.Now()
		dec, err := x.call(ctx, e, func(callCtx context.Context) (guard.Decision, error) {
			return e.Guard.OnConnection(callCtx, gctx)
		})
		if err != nil {
			dec = x.resolveFailure(e, err)
		}
		events = append(events, newEvent(e, guard.PhaseConnection, dec, time.Since(start)))

		switch dec.Kind {
		case guard.Deny:
			return Result{Denied: true, DenyGuard: e.Desc.ID, Deny: dec.Deny, Events: events}
		case guard.Modify:
			if dec.Modify.Kind == guard.AddWarning {
				warnings = append(warnings, dec.Modify.Warning)
			}
		}
	}
	return Result{Warnings: warnings, Events: events}
}

// ExecuteToolInvoke runs chain against a tool_invoke payload. Guards
// observe the call under evaluation but cannot rewrite its arguments —
// only deny it or attach a warning — since a modified tool call would
// silently substitute an operator's intent.
func (x *Executor) ExecuteToolInvoke(ctx context.Context, chain []Entry, gctx guard.GuardContext, call guard.ToolInvokePayload) Result {
	var warnings []string
	var events []Event

	for _, e := range chain {
		start := time.Now()
		dec, err := x.call(ctx, e, func(callCtx context.Context) (guard.Decision, error) {
			return e.Guard.OnToolInvoke(callCtx, gctx, call)
		})
		if err != nil {
			dec = x.resolveFailure(e, err)
		}
		events = append(events, newEvent(e, guard.PhaseToolInvoke, dec, time.Since(start)))

		switch dec.Kind {
		case guard.Deny:
			return Result{Denied: true, DenyGuard: e.Desc.ID, Deny: dec.Deny, Events: events}
		case guard.Modify:
			if dec.Modify.Kind == guard.AddWarning {
				warnings = append(warnings, dec.Modify.Warning)
			}
		}
	}
	return Result{Warnings: warnings, Events: events}
}

func toMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// applyRedaction writes act's redacted values back into value. Values
// takes precedence when set — each entry is the exact span-redacted
// string the guard already computed for that path (e.g. via
// detect.RedactSpans); otherwise every path in Paths is overwritten with
// the single uniform Replacement.
func applyRedaction(value any, act guard.ModifyAction) any {
	if act.Values != nil {
		for p, v := range act.Values {
			if p == "" {
				// An empty path addresses the payload itself (a
				// scalar string payload has no sub-path), so the
				// whole value is replaced.
				return v
			}
			detect.SetPath(value, p, v)
		}
		return value
	}
	for _, p := range act.Paths {
		if p == "" {
			return act.Replacement
		}
		detect.SetPath(value, p, act.Replacement)
	}
	return value
}
