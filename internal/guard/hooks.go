package guard

import "context"

// RequestPayload is what a request/prompt_request/resource_request hook
// observes: an opaque JSON body plus the method name the gateway decoded
// it from.
type RequestPayload struct {
	Method string
	Body   map[string]any
}

// ToolInvokePayload is what tool_invoke observes.
type ToolInvokePayload struct {
	ToolName      string
	ArgumentsJSON string
}

// JSONPayload is what response/tool_result hooks observe: an arbitrary
// decoded JSON value (object, array, or scalar).
type JSONPayload struct {
	Value any
}

// Guard is the capability set every security guard must expose: one
// optional hook per phase. Guards implement only the hooks they need —
// NoopHooks supplies Allow-returning defaults for the rest, so an
// implementation embeds it and overrides selectively, mirroring how the
// teacher composes narrow single-purpose detectors behind one interface.
type Guard interface {
	ID() string

	OnConnection(ctx context.Context, gctx GuardContext) (Decision, error)
	OnRequest(ctx context.Context, gctx GuardContext, req RequestPayload) (Decision, error)
	OnResponse(ctx context.Context, gctx GuardContext, resp JSONPayload) (Decision, error)
	OnToolsList(ctx context.Context, gctx GuardContext, tools []Tool) (Decision, error)
	OnToolInvoke(ctx context.Context, gctx GuardContext, call ToolInvokePayload) (Decision, error)
	OnToolResult(ctx context.Context, gctx GuardContext, result JSONPayload) (Decision, error)
	OnPromptRequest(ctx context.Context, gctx GuardContext, req RequestPayload) (Decision, error)
	OnResourceRequest(ctx context.Context, gctx GuardContext, req RequestPayload) (Decision, error)
}

// NoopHooks implements every Guard hook as an Allow. Concrete guards embed
// it and override only the hooks relevant to their phase.
type NoopHooks struct{}

func (NoopHooks) OnConnection(context.Context, GuardContext) (Decision, error) {
	return AllowDecision(), nil
}

func (NoopHooks) OnRequest(context.Context, GuardContext, RequestPayload) (Decision, error) {
	return AllowDecision(), nil
}

func (NoopHooks) OnResponse(context.Context, GuardContext, JSONPayload) (Decision, error) {
	return AllowDecision(), nil
}

func (NoopHooks) OnToolsList(context.Context, GuardContext, []Tool) (Decision, error) {
	return AllowDecision(), nil
}

func (NoopHooks) OnToolInvoke(context.Context, GuardContext, ToolInvokePayload) (Decision, error) {
	return AllowDecision(), nil
}

func (NoopHooks) OnToolResult(context.Context, GuardContext, JSONPayload) (Decision, error) {
	return AllowDecision(), nil
}

func (NoopHooks) OnPromptRequest(context.Context, GuardContext, RequestPayload) (Decision, error) {
	return AllowDecision(), nil
}

func (NoopHooks) OnResourceRequest(context.Context, GuardContext, RequestPayload) (Decision, error) {
	return AllowDecision(), nil
}

// HookFor dispatches to the hook matching phase. Phases without a defined
// hook (PhaseUnspecified) return Allow.
func HookFor(g Guard, phase Phase, ctx context.Context, gctx GuardContext, toolsList []Tool, req RequestPayload, invoke ToolInvokePayload, payload JSONPayload) (Decision, error) {
	switch phase {
	case PhaseConnection:
		return g.OnConnection(ctx, gctx)
	case PhaseRequest:
		return g.OnRequest(ctx, gctx, req)
	case PhaseResponse:
		return g.OnResponse(ctx, gctx, payload)
	case PhaseToolsList:
		return g.OnToolsList(ctx, gctx, toolsList)
	case PhaseToolInvoke:
		return g.OnToolInvoke(ctx, gctx, invoke)
	case PhaseToolResult:
		return g.OnToolResult(ctx, gctx, payload)
	case PhasePromptRequest:
		return g.OnPromptRequest(ctx, gctx, req)
	case PhaseResourceRequest:
		return g.OnResourceRequest(ctx, gctx, req)
	default:
		return AllowDecision(), nil
	}
}
