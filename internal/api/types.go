package api

// --- POST /v1/check request/response ---

// ToolReq mirrors guard.Tool on the wire.
type ToolReq struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolCallReq mirrors guard.ToolInvokePayload on the wire.
type ToolCallReq struct {
	ToolName      string `json:"tool_name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// CheckRequest is the JSON body for POST /v1/check. Phase determines
// which of ToolsList/ToolCall/Payload is populated and read:
// "tools_list" reads ToolsList, "tool_invoke" reads ToolCall, "connection"
// reads none of them, and every other phase reads Payload as an opaque
// JSON value.
type CheckRequest struct {
	ServerName string            `json:"server_name"`
	Phase      string            `json:"phase"`
	ToolsList  []ToolReq         `json:"tools_list,omitempty"`
	ToolCall   *ToolCallReq      `json:"tool_call,omitempty"`
	Payload    any               `json:"payload,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DenyResp mirrors spec §6's JSON-RPC deny data field:
// {guard_id, code, message, details}.
type DenyResp struct {
	GuardID string         `json:"guard_id"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// CheckResponse is the JSON body for a completed (non-error) check. Deny
// is non-nil only when Decision is "deny"; ToolsList/Payload carry the
// final, possibly Modify-adjusted view the caller should forward.
type CheckResponse struct {
	Decision   string    `json:"decision"` // "allow" or "deny"
	RequestID  string    `json:"request_id"`
	Deny       *DenyResp `json:"deny,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	ToolsList  []ToolReq `json:"tools_list,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	LatencyMs  float64   `json:"latency_ms"`
}

// --- GET /v1/schemas ---

// GuardTypeResp is one entry of the schema endpoint's availableGuards
// list, per spec §6.
type GuardTypeResp struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
	IsWasm      bool   `json:"isWasm"`
}

// SchemasResp is the JSON body for GET /v1/schemas.
type SchemasResp struct {
	Schemas         map[string]any  `json:"schemas"`
	AvailableGuards []GuardTypeResp `json:"availableGuards"`
}

// --- Administrative operations ---

// ResetRequest is the JSON body for POST /v1/admin/reset.
type ResetRequest struct {
	ServerName string `json:"server_name"`
	Route      string `json:"route,omitempty"` // empty means the X-Route-Id route
}

// ReloadRequest is the JSON body for POST /v1/admin/reload.
type ReloadRequest struct {
	ConfigPath string `json:"config_path"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
