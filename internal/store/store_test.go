package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"
)

type fakeBackend struct {
	rows map[string]RouteConfig
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{rows: map[string]RouteConfig{}}
}

func (b *fakeBackend) getRouteConfig(_ context.Context, route string) (RouteConfig, error) {
	rc, ok := b.rows[route]
	if !ok {
		return RouteConfig{}, ErrRouteNotFound
	}
	return rc, nil
}

func (b *fakeBackend) upsertRouteConfig(_ context.Context, route string, config json.RawMessage) error {
	b.rows[route] = RouteConfig{Route: route, Config: config, UpdatedAt: time.Now()}
	return nil
}

func (b *fakeBackend) deleteRouteConfig(_ context.Context, route string) error {
	if _, ok := b.rows[route]; !ok {
		return ErrRouteNotFound
	}
	delete(b.rows, route)
	return nil
}

func (b *fakeBackend) listRoutes(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(b.rows))
	for r := range b.rows {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func TestStoreSaveAndGetRouteConfig(t *testing.T) {
	s := newStoreWithBackend(newFakeBackend())
	cfg := json.RawMessage(`{"security_guards":[]}`)

	if err := s.SaveRouteConfig(context.Background(), "route1", cfg); err != nil {
		t.Fatalf("SaveRouteConfig: %v", err)
	}
	got, err := s.GetRouteConfig(context.Background(), "route1")
	if err != nil {
		t.Fatalf("GetRouteConfig: %v", err)
	}
	if string(got.Config) != string(cfg) {
		t.Fatalf("expected config %s, got %s", cfg, got.Config)
	}
}

func TestStoreGetMissingRoute(t *testing.T) {
	s := newStoreWithBackend(newFakeBackend())
	if _, err := s.GetRouteConfig(context.Background(), "nope"); !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("expected ErrRouteNotFound, got %v", err)
	}
}

func TestStoreDeleteRouteConfig(t *testing.T) {
	s := newStoreWithBackend(newFakeBackend())
	cfg := json.RawMessage(`{}`)
	_ = s.SaveRouteConfig(context.Background(), "route1", cfg)

	if err := s.DeleteRouteConfig(context.Background(), "route1"); err != nil {
		t.Fatalf("DeleteRouteConfig: %v", err)
	}
	if _, err := s.GetRouteConfig(context.Background(), "route1"); !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("expected route to be gone, got %v", err)
	}
}

func TestStoreListRoutesSorted(t *testing.T) {
	s := newStoreWithBackend(newFakeBackend())
	_ = s.SaveRouteConfig(context.Background(), "zeta", json.RawMessage(`{}`))
	_ = s.SaveRouteConfig(context.Background(), "alpha", json.RawMessage(`{}`))

	routes, err := s.ListRoutes(context.Background())
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if len(routes) != 2 || routes[0] != "alpha" || routes[1] != "zeta" {
		t.Fatalf("unexpected route order: %v", routes)
	}
}
