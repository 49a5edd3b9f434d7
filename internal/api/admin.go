package api

import (
	"net/http"

	"github.com/triage-ai/palisade/internal/guard"
	"github.com/triage-ai/palisade/internal/guards"
)

// handleReset implements the admin baseline-reset operation from spec §6:
// reset(server_name) clears rug-pull baselines. It walks every rug_pull
// guard on the tools_list chain of the target route (the route named by
// X-Route-Id when Route is empty; 400 if neither is set) and calls
// ResetAll on it. ServerName must be non-empty but does not narrow the
// reset: every server's global and per-session baselines in those guards
// are dropped, not only the named server's.
func (d *Dependencies) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "invalid JSON body"})
		return
	}
	if req.ServerName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "server_name is required"})
		return
	}

	routes := []string{req.Route}
	if req.Route == "" {
		id := identityFromContext(r.Context())
		if id == nil || id.RouteID == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "route is required when X-Route-Id is not set"})
			return
		}
		routes = []string{id.RouteID}
	}

	reset := 0
	for _, route := range routes {
		chains, ok := d.Registry.Get(route)
		if !ok {
			continue
		}
		for _, e := range chains.ByPhase[guard.PhaseToolsList] {
			if rp, ok := e.Guard.(*guards.RugPull); ok {
				rp.ResetAll()
				reset++
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset_guards": reset})
}

// handleReload implements the admin configuration-reload operation from
// spec §6: reload is atomic per route, delegated entirely to
// internal/config.Loader.LoadFile.
func (d *Dependencies) handleReload(w http.ResponseWriter, r *http.Request) {
	var req ReloadRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "invalid JSON body"})
		return
	}
	path := req.ConfigPath
	if path == "" {
		path = d.ConfigPath
	}
	if path == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "config_path is required"})
		return
	}

	if err := d.Loader.LoadFile(path, d.Registry); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
