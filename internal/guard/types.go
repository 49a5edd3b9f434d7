// Package guard defines the capability surface every security guard must
// expose: the phase-scoped hooks, the payload and context types passed to
// them, and the tagged decision a guard returns.
package guard

import "fmt"

// Phase is a point in the MCP message lifecycle at which a guard may
// evaluate. Connection is not part of the wire protocol proper — it fires
// before the gateway even opens a connection to the upstream server — but
// is included here because ServerWhitelist needs to run ahead of any
// bytes crossing the wire.
type Phase int

const (
	PhaseUnspecified Phase = iota
	PhaseConnection
	PhaseRequest
	PhaseResponse
	PhaseToolsList
	PhaseToolInvoke
	PhaseToolResult
	PhasePromptRequest
	PhaseResourceRequest
)

func (p Phase) String() string {
	switch p {
	case PhaseConnection:
		return "connection"
	case PhaseRequest:
		return "request"
	case PhaseResponse:
		return "response"
	case PhaseToolsList:
		return "tools_list"
	case PhaseToolInvoke:
		return "tool_invoke"
	case PhaseToolResult:
		return "tool_result"
	case PhasePromptRequest:
		return "prompt_request"
	case PhaseResourceRequest:
		return "resource_request"
	default:
		return "unspecified"
	}
}

// ParsePhase maps a wire-config phase name to a Phase. Unknown names
// return PhaseUnspecified and ok=false, which the config loader treats as
// a ConfigError.
func ParsePhase(s string) (Phase, bool) {
	switch s {
	case "connection":
		return PhaseConnection, true
	case "request":
		return PhaseRequest, true
	case "response":
		return PhaseResponse, true
	case "tools_list":
		return PhaseToolsList, true
	case "tool_invoke":
		return PhaseToolInvoke, true
	case "tool_result":
		return PhaseToolResult, true
	case "prompt_request":
		return PhasePromptRequest, true
	case "resource_request":
		return PhaseResourceRequest, true
	default:
		return PhaseUnspecified, false
	}
}

// FailureMode controls how the executor treats a guard that errors out or
// times out.
type FailureMode int

const (
	FailClosed FailureMode = iota // deny on engine error (secure default)
	FailOpen                      // allow on engine error
)

func (m FailureMode) String() string {
	if m == FailOpen {
		return "fail_open"
	}
	return "fail_closed"
}

// Tool is a named capability advertised by an MCP server.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any // JSON-Schema fragment, nil if not set
}

// Identity is the optional caller identity threaded through a
// GuardContext. Built-in guards treat it as informational only — group
// and claim evaluation is deliberately left to a separate policy layer,
// per spec.
type Identity struct {
	Subject string
	Email   string
	Groups  []string
	Claims  map[string]string
}

// GuardContext is the per-invocation environment supplied by the
// surrounding protocol layer. Contexts are immutable within a guard
// invocation.
type GuardContext struct {
	ServerName string
	Identity   *Identity
	Metadata   map[string]string
}

// SessionID returns the session identifier from context metadata, used by
// RugPull's session-scoped baselines. The metadata key is a protocol-layer
// concern; "session_id" is this repo's chosen convention.
func (c GuardContext) SessionID() string {
	return c.Metadata["session_id"]
}

// Descriptor is the configuration record for one guard instance, as
// carried in a route's security_guards list (see internal/config).
type Descriptor struct {
	ID          string
	Kind        string
	Enabled     bool
	Priority    int // [0,100], lower runs first
	TimeoutMS   int // [10, 10000]
	FailureMode FailureMode
	RunsOn      map[Phase]bool
	Config      map[string]any // kind-specific config, decoded per-guard

	// Wasm-only fields.
	ModulePath string
	MaxMemory  int64
	MaxStack   int64
}

func (d Descriptor) String() string {
	return fmt.Sprintf("guard(id=%s kind=%s priority=%d)", d.ID, d.Kind, d.Priority)
}
