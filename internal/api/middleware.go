package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/palisade/internal/auth"
)

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey int

const identityCtxKey contextKey = iota

// identityFromContext extracts the caller identity the auth middleware
// resolved for this request, or nil if the auth middleware did not run.
// When the bearer token was optional and absent, the identity carries only
// RouteID and an empty Identity.Subject.
func identityFromContext(ctx context.Context) *auth.Identity {
	v, _ := ctx.Value(identityCtxKey).(*auth.Identity)
	return v
}

// authMiddleware resolves the caller's route and identity from request
// headers via d.Auth and injects it into the request context. A missing
// or malformed X-Route-Id is always rejected; a missing bearer token is
// only rejected when d.Auth requires one.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := d.Auth.Extract(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: err.Error()})
			return
		}
		ctx := context.WithValue(r.Context(), identityCtxKey, &id)
		next(w, r.WithContext(ctx))
	}
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a JSON request body into the given pointer.
func readJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- CORS ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Route-Id, X-Caller-Email, X-Caller-Groups")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
