package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/triage-ai/palisade/internal/engine"
	"github.com/triage-ai/palisade/internal/guard"
	"github.com/triage-ai/palisade/internal/storage"
)

// handleCheck implements POST /v1/check. The route's guard chain for the
// request's phase is looked up from the route the auth middleware
// resolved from X-Route-Id; ToolsList/ToolCall/Payload dispatch to the
// matching Executor method per spec §6.
func (d *Dependencies) handleCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CheckRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "invalid JSON body"})
		return
	}
	if req.ServerName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "server_name is required"})
		return
	}
	phase, ok := guard.ParsePhase(req.Phase)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "unknown phase " + req.Phase})
		return
	}

	callerIdentity := identityFromContext(r.Context())
	route := "default"
	if callerIdentity != nil {
		route = callerIdentity.RouteID
	}

	chains, ok := d.Registry.Get(route)
	if !ok {
		requestID := uuid.New().String()
		writeCheckResult(w, req, phase, requestID, time.Since(start), engine.Result{})
		return
	}
	chain := chains.ByPhase[phase]

	gctx := guard.GuardContext{
		ServerName: req.ServerName,
		Metadata:   req.Metadata,
	}
	if callerIdentity != nil && callerIdentity.Identity.Subject != "" {
		id := callerIdentity.Identity
		gctx.Identity = &id
	}

	var result engine.Result
	switch phase {
	case guard.PhaseConnection:
		result = d.Executor.ExecuteConnection(r.Context(), chain, gctx)
	case guard.PhaseToolsList:
		tools := make([]guard.Tool, len(req.ToolsList))
		for i, t := range req.ToolsList {
			tools[i] = guard.Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
		}
		result = d.Executor.ExecuteToolsList(r.Context(), chain, gctx, tools)
	case guard.PhaseToolInvoke:
		var call guard.ToolInvokePayload
		if req.ToolCall != nil {
			call = guard.ToolInvokePayload{ToolName: req.ToolCall.ToolName, ArgumentsJSON: req.ToolCall.ArgumentsJSON}
		}
		result = d.Executor.ExecuteToolInvoke(r.Context(), chain, gctx, call)
	default:
		result = d.Executor.ExecuteJSON(r.Context(), chain, phase, gctx, req.Payload)
	}

	var identitySubject string
	if gctx.Identity != nil {
		identitySubject = gctx.Identity.Subject
	}

	requestID := uuid.New().String()
	latency := time.Since(start)
	d.writeCheckEvents(req, route, requestID, identitySubject, result)
	writeCheckResult(w, req, phase, requestID, latency, result)
}

// writeCheckResult translates an engine.Result into a CheckResponse,
// encoding a Deny in the JSON-RPC-flavored shape spec §6 describes for
// the wire protocol's error channel (here reused verbatim as the HTTP
// response body, since this endpoint's whole job is to make that
// decision for the surrounding protocol layer).
func writeCheckResult(w http.ResponseWriter, req CheckRequest, phase guard.Phase, requestID string, latency time.Duration, result engine.Result) {
	resp := CheckResponse{
		RequestID: requestID,
		Warnings:  result.Warnings,
		LatencyMs: float64(latency) / float64(time.Millisecond),
	}
	if result.Denied {
		resp.Decision = "deny"
		resp.Deny = &DenyResp{
			GuardID: result.DenyGuard,
			Code:    result.Deny.Code,
			Message: result.Deny.Message,
			Details: result.Deny.Details,
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Decision = "allow"
	switch phase {
	case guard.PhaseToolsList:
		resp.ToolsList = make([]ToolReq, len(result.Tools))
		for i, t := range result.Tools {
			resp.ToolsList[i] = ToolReq{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
		}
	case guard.PhaseConnection, guard.PhaseToolInvoke:
		// no payload to echo back
	default:
		resp.Payload = result.Value
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeCheckEvents fans the chain's per-guard events out to the async
// event writer, one storage.SecurityEvent per guard invocation, mirroring
// guard/internal/api/check.go's fire-and-forget write.
func (d *Dependencies) writeCheckEvents(req CheckRequest, route, requestID, identitySubject string, result engine.Result) {
	if d.Writer == nil {
		return
	}
	now := time.Now()
	for _, ev := range result.Events {
		d.Writer.Write(&storage.SecurityEvent{
			RequestID:       requestID,
			Route:           route,
			ServerName:      req.ServerName,
			SessionID:       req.Metadata["session_id"],
			Phase:           ev.Phase.String(),
			GuardID:         ev.GuardID,
			GuardKind:       ev.GuardKind,
			Decision:        ev.Decision,
			DenyCode:        ev.DenyCode,
			IdentitySubject: identitySubject,
			LatencyMs:       float32(ev.LatencyMS),
			Timestamp:       now,
			Metadata:        req.Metadata,
		})
	}
}
