package api

import (
	"net/http"

	"github.com/triage-ai/palisade/internal/schema"
)

// ResolveDefaultsReq is the body of POST /v1/schemas/{kind}/resolve.
type ResolveDefaultsReq struct {
	Config map[string]any `json:"config"`
}

// ResolveDefaultsResp is the response of POST /v1/schemas/{kind}/resolve.
type ResolveDefaultsResp struct {
	Config map[string]any `json:"config"`
}

// ValidateReq is the body of POST /v1/schemas/{kind}/validate.
type ValidateReq struct {
	Config map[string]any `json:"config"`
}

// ValidateResp is the response of POST /v1/schemas/{kind}/validate.
type ValidateResp struct {
	Valid  bool                     `json:"valid"`
	Errors []schema.ValidationError `json:"errors"`
}

// handleSchemas implements GET /v1/schemas, the sole coupling point
// between the engine and a configuration UI per spec §6.
func (d *Dependencies) handleSchemas(w http.ResponseWriter, _ *http.Request) {
	builtins := d.Schemas.List()
	sandboxed := d.Schemas.CollectSandboxed()

	schemas := make(map[string]any, len(builtins)+len(sandboxed))
	guards := make([]GuardTypeResp, 0, len(builtins)+len(sandboxed))

	for _, desc := range builtins {
		schemas[desc.Kind] = desc.Schema
		guards = append(guards, GuardTypeResp{
			Type:        desc.Kind,
			Title:       desc.DisplayName,
			Description: desc.Description,
			Category:    desc.Category,
			Icon:        desc.Icon,
			IsWasm:      desc.IsWasm,
		})
	}
	for _, desc := range sandboxed {
		schemas[desc.Kind] = desc.Schema
		guards = append(guards, GuardTypeResp{
			Type:        desc.Kind,
			Title:       desc.DisplayName,
			Description: desc.Description,
			Category:    desc.Category,
			Icon:        desc.Icon,
			IsWasm:      desc.IsWasm,
		})
	}

	writeJSON(w, http.StatusOK, SchemasResp{Schemas: schemas, AvailableGuards: guards})
}

// handleResolveDefaults implements POST /v1/schemas/{kind}/resolve, the
// registry's resolve_defaults(type, instance) operation (§4.6): it merges
// the kind's schema-declared defaults into a partial config so a
// configuration UI can preview the fully-resolved guard config before
// saving it.
func (d *Dependencies) handleResolveDefaults(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")

	var req ResolveDefaultsReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "invalid JSON body"})
		return
	}
	if req.Config == nil {
		req.Config = map[string]any{}
	}

	resolved, err := d.Schemas.ResolveDefaults(kind, req.Config)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ResolveDefaultsResp{Config: resolved})
}

// handleValidate implements POST /v1/schemas/{kind}/validate, the
// registry's validate(type, instance) operation (§4.6): it runs a candidate
// config through the kind's compiled schema and returns every field-level
// failure, so a configuration UI can attribute errors to the offending
// field instead of surfacing one opaque message.
func (d *Dependencies) handleValidate(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")

	var req ValidateReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "invalid JSON body"})
		return
	}
	if req.Config == nil {
		req.Config = map[string]any{}
	}

	errs, err := d.Schemas.Validate(kind, req.Config)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: err.Error()})
		return
	}
	if errs == nil {
		errs = []schema.ValidationError{}
	}
	writeJSON(w, http.StatusOK, ValidateResp{Valid: len(errs) == 0, Errors: errs})
}
