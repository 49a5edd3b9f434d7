package engine

import (
	"sync"
	"sync/atomic"

	"github.com/triage-ai/palisade/internal/guard"
)

// RouteChains is the immutable, phase-indexed set of guard chains for one
// route. Registry swaps a route's *RouteChains atomically on reload, so
// an in-flight evaluation always sees a self-consistent snapshot — never
// half the old config and half the new.
type RouteChains struct {
	ByPhase map[guard.Phase][]Entry
}

// Registry maps route name to its current RouteChains, mirroring the
// original's GuardExecutorRegistry (get-or-create-by-backend-name), but
// using Go's atomic.Pointer for the swap instead of a read/write mutex
// pair — a route's chain is rebuilt wholesale on config change, never
// mutated field-by-field, so a pointer swap is sufficient and never
// blocks an in-flight read.
type Registry struct {
	routes sync.Map // map[string]*atomic.Pointer[RouteChains]
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Set installs chains as the current configuration for route, replacing
// any previous configuration atomically.
func (r *Registry) Set(route string, chains *RouteChains) {
	v, _ := r.routes.LoadOrStore(route, &atomic.Pointer[RouteChains]{})
	ptr := v.(*atomic.Pointer[RouteChains])
	ptr.Store(chains)
}

// Get returns the current chains for route, or ok=false if the route has
// no configured guards at all.
func (r *Registry) Get(route string) (*RouteChains, bool) {
	v, ok := r.routes.Load(route)
	if !ok {
		return nil, false
	}
	ptr := v.(*atomic.Pointer[RouteChains])
	chains := ptr.Load()
	if chains == nil {
		return nil, false
	}
	return chains, true
}

// Delete removes a route's configuration, used when a route is torn
// down.
func (r *Registry) Delete(route string) {
	r.routes.Delete(route)
}

// BuildRouteChains constructs a RouteChains from a flat entry list,
// pre-computing the sorted chain for every phase so BuildChain's O(n log
// n) sort happens once per reload instead of once per evaluation.
func BuildRouteChains(entries []Entry) *RouteChains {
	phases := []guard.Phase{
		guard.PhaseConnection,
		guard.PhaseRequest,
		guard.PhaseResponse,
		guard.PhaseToolsList,
		guard.PhaseToolInvoke,
		guard.PhaseToolResult,
		guard.PhasePromptRequest,
		guard.PhaseResourceRequest,
	}
	byPhase := make(map[guard.Phase][]Entry, len(phases))
	for _, p := range phases {
		byPhase[p] = BuildChain(entries, p)
	}
	return &RouteChains{ByPhase: byPhase}
}
