// Package store persists route guard configuration in PostgreSQL, so a
// route's security_guards list survives a restart and can be pushed by an
// admin operation without editing the on-disk YAML the process booted
// with. It is a thin CRUD seam, not a general-purpose ORM — one table,
// one JSONB column.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRouteNotFound = errors.New("route not found")

// RouteConfig is one route's persisted guard configuration, stored
// verbatim as the JSON internal/config decodes into guard.Descriptor
// values.
type RouteConfig struct {
	Route     string
	Config    json.RawMessage
	UpdatedAt time.Time
}

// backend abstracts the query surface Store needs, so tests can inject a
// fake without a live Postgres connection — mirrors the teacher's
// ProjectStore/ToolStore seams in internal/auth and internal/registry.
type backend interface {
	getRouteConfig(ctx context.Context, route string) (RouteConfig, error)
	upsertRouteConfig(ctx context.Context, route string, config json.RawMessage) error
	deleteRouteConfig(ctx context.Context, route string) error
	listRoutes(ctx context.Context) ([]string, error)
}

// pgxBackend is the real implementation, backed by a pgx connection pool.
type pgxBackend struct {
	pool *pgxpool.Pool
}

func (b *pgxBackend) getRouteConfig(ctx context.Context, route string) (RouteConfig, error) {
	var rc RouteConfig
	rc.Route = route
	err := b.pool.QueryRow(ctx,
		`SELECT config, updated_at FROM route_configs WHERE route = $1`, route,
	).Scan(&rc.Config, &rc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RouteConfig{}, ErrRouteNotFound
		}
		return RouteConfig{}, fmt.Errorf("getRouteConfig: %w", err)
	}
	return rc, nil
}

func (b *pgxBackend) upsertRouteConfig(ctx context.Context, route string, config json.RawMessage) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO route_configs (route, config, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (route) DO UPDATE SET config = EXCLUDED.config, updated_at = now()
	`, route, config)
	if err != nil {
		return fmt.Errorf("upsertRouteConfig: %w", err)
	}
	return nil
}

func (b *pgxBackend) deleteRouteConfig(ctx context.Context, route string) error {
	tag, err := b.pool.Exec(ctx, `DELETE FROM route_configs WHERE route = $1`, route)
	if err != nil {
		return fmt.Errorf("deleteRouteConfig: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

func (b *pgxBackend) listRoutes(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT route FROM route_configs ORDER BY route`)
	if err != nil {
		return nil, fmt.Errorf("listRoutes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var route string
		if err := rows.Scan(&route); err != nil {
			return nil, fmt.Errorf("listRoutes: %w", err)
		}
		out = append(out, route)
	}
	return out, rows.Err()
}

// Store provides access to PostgreSQL-persisted route guard
// configuration.
type Store struct {
	backend backend
}

// NewStore creates a Store backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{backend: &pgxBackend{pool: pool}}
}

// newStoreWithBackend creates a Store with an injected backend, for
// testing without a live database.
func newStoreWithBackend(b backend) *Store {
	return &Store{backend: b}
}

// GetRouteConfig fetches route's persisted configuration.
func (s *Store) GetRouteConfig(ctx context.Context, route string) (RouteConfig, error) {
	return s.backend.getRouteConfig(ctx, route)
}

// SaveRouteConfig upserts route's configuration, called by the admin
// reload path (§6) after the in-memory engine.Registry is hot-swapped.
func (s *Store) SaveRouteConfig(ctx context.Context, route string, config json.RawMessage) error {
	return s.backend.upsertRouteConfig(ctx, route, config)
}

// DeleteRouteConfig removes route's persisted configuration.
func (s *Store) DeleteRouteConfig(ctx context.Context, route string) error {
	return s.backend.deleteRouteConfig(ctx, route)
}

// ListRoutes returns every route with persisted configuration, sorted.
// internal/config does not call it; routes are loaded from YAML only.
func (s *Store) ListRoutes(ctx context.Context) ([]string, error) {
	return s.backend.listRoutes(ctx)
}
