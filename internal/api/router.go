package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/palisade/internal/auth"
	"github.com/triage-ai/palisade/internal/config"
	"github.com/triage-ai/palisade/internal/engine"
	"github.com/triage-ai/palisade/internal/schema"
	"github.com/triage-ai/palisade/internal/storage"
	"github.com/triage-ai/palisade/internal/store"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Registry *engine.Registry
	Executor *engine.Executor
	Store    *store.Store
	Writer   storage.EventWriter
	Schemas  *schema.Registry
	Auth     *auth.HeaderExtractor
	Loader   *config.Loader
	Logger   *zap.Logger

	// ConfigPath is the route file the admin reload endpoint re-reads.
	ConfigPath string
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/check", deps.authMiddleware(deps.handleCheck))
	mux.HandleFunc("GET /v1/schemas", deps.handleSchemas)
	mux.HandleFunc("POST /v1/schemas/{kind}/resolve", deps.handleResolveDefaults)
	mux.HandleFunc("POST /v1/schemas/{kind}/validate", deps.handleValidate)
	mux.HandleFunc("POST /v1/admin/reset", deps.authMiddleware(deps.handleReset))
	mux.HandleFunc("POST /v1/admin/reload", deps.authMiddleware(deps.handleReload))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
