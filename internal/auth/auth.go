// Package auth extracts caller identity from an incoming HTTP request. It
// never makes an authorization decision itself — group/claim evaluation is
// a policy-layer concern deliberately left out of the engine (see
// guard.Identity's doc comment) — it only turns headers into the
// GuardContext.Identity guards read.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/triage-ai/palisade/internal/guard"
)

var (
	ErrMissingBearerToken = errors.New("missing bearer token")
	ErrMissingRouteID     = errors.New("missing X-Route-Id header")
)

// Identity is the result of a successful extraction: the route the
// request targets, plus whatever caller identity accompanied it.
type Identity struct {
	RouteID  string
	Identity guard.Identity
}

// Extractor turns request headers into an Identity. HeaderExtractor is the
// only implementation; internal/api holds a *HeaderExtractor directly and
// its tests drive it with real HTTP headers.
type Extractor interface {
	Extract(r *http.Request) (Identity, error)
}

// HeaderExtractor reads the caller's bearer token and route id off request
// headers, mirroring the shape of the teacher's gRPC-metadata extraction
// in spirit ("Bearer tsk_..." plus a per-tenant id header) but sourced from
// net/http instead of grpc/metadata, since transport is out of this
// engine's scope and an embedding gateway is expected to have already
// terminated the client connection by the time it calls in here.
type HeaderExtractor struct {
	// RequireToken, when true, rejects requests with no bearer token.
	// The engine's own admin seam runs with this off in local/dev mode.
	RequireToken bool
}

func NewHeaderExtractor(requireToken bool) *HeaderExtractor {
	return &HeaderExtractor{RequireToken: requireToken}
}

func (e *HeaderExtractor) Extract(r *http.Request) (Identity, error) {
	routeID := r.Header.Get("X-Route-Id")
	if routeID == "" {
		return Identity{}, ErrMissingRouteID
	}

	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		if e.RequireToken {
			return Identity{}, err
		}
		return Identity{RouteID: routeID}, nil
	}

	id := guard.Identity{
		Subject: token,
		Claims:  map[string]string{},
	}
	if email := r.Header.Get("X-Caller-Email"); email != "" {
		id.Email = email
	}
	if groups := r.Header.Get("X-Caller-Groups"); groups != "" {
		id.Groups = strings.Split(groups, ",")
	}
	return Identity{RouteID: routeID, Identity: id}, nil
}

// extractBearerToken parses "Bearer <token>", case-insensitively per RFC
// 6750, out of an Authorization header value.
func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingBearerToken
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingBearerToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingBearerToken
	}
	return token, nil
}
