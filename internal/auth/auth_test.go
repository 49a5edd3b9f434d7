package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeaderExtractorValidRequest(t *testing.T) {
	e := NewHeaderExtractor(true)
	r := httptest.NewRequest(http.MethodPost, "/v1/check", nil)
	r.Header.Set("Authorization", "Bearer tsk_abc123")
	r.Header.Set("X-Route-Id", "route1")
	r.Header.Set("X-Caller-Email", "a@b.com")
	r.Header.Set("X-Caller-Groups", "eng,admin")

	id, err := e.Extract(r)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if id.RouteID != "route1" {
		t.Errorf("expected route1, got %q", id.RouteID)
	}
	if id.Identity.Subject != "tsk_abc123" {
		t.Errorf("expected subject tsk_abc123, got %q", id.Identity.Subject)
	}
	if id.Identity.Email != "a@b.com" {
		t.Errorf("expected email a@b.com, got %q", id.Identity.Email)
	}
	if len(id.Identity.Groups) != 2 || id.Identity.Groups[0] != "eng" {
		t.Errorf("unexpected groups: %v", id.Identity.Groups)
	}
}

func TestHeaderExtractorMissingRouteID(t *testing.T) {
	e := NewHeaderExtractor(false)
	r := httptest.NewRequest(http.MethodPost, "/v1/check", nil)
	r.Header.Set("Authorization", "Bearer tsk_abc123")

	if _, err := e.Extract(r); err != ErrMissingRouteID {
		t.Errorf("expected ErrMissingRouteID, got: %v", err)
	}
}

func TestHeaderExtractorMissingTokenRequired(t *testing.T) {
	e := NewHeaderExtractor(true)
	r := httptest.NewRequest(http.MethodPost, "/v1/check", nil)
	r.Header.Set("X-Route-Id", "route1")

	if _, err := e.Extract(r); err != ErrMissingBearerToken {
		t.Errorf("expected ErrMissingBearerToken, got: %v", err)
	}
}

func TestHeaderExtractorMissingTokenOptional(t *testing.T) {
	e := NewHeaderExtractor(false)
	r := httptest.NewRequest(http.MethodPost, "/v1/check", nil)
	r.Header.Set("X-Route-Id", "route1")

	id, err := e.Extract(r)
	if err != nil {
		t.Fatalf("expected no error when token optional, got: %v", err)
	}
	if id.RouteID != "route1" {
		t.Errorf("expected route1, got %q", id.RouteID)
	}
	if id.Identity.Subject != "" {
		t.Errorf("expected empty subject, got %q", id.Identity.Subject)
	}
}

func TestHeaderExtractorLowercaseBearer(t *testing.T) {
	e := NewHeaderExtractor(true)
	r := httptest.NewRequest(http.MethodPost, "/v1/check", nil)
	r.Header.Set("Authorization", "bearer tsk_abc123")
	r.Header.Set("X-Route-Id", "route1")

	id, err := e.Extract(r)
	if err != nil {
		t.Fatalf("expected no error for lowercase bearer, got: %v", err)
	}
	if id.Identity.Subject != "tsk_abc123" {
		t.Errorf("expected subject tsk_abc123, got %q", id.Identity.Subject)
	}
}

func TestHeaderExtractorEmptyBearerToken(t *testing.T) {
	e := NewHeaderExtractor(true)
	r := httptest.NewRequest(http.MethodPost, "/v1/check", nil)
	r.Header.Set("Authorization", "Bearer ")
	r.Header.Set("X-Route-Id", "route1")

	if _, err := e.Extract(r); err != ErrMissingBearerToken {
		t.Errorf("expected ErrMissingBearerToken, got: %v", err)
	}
}
