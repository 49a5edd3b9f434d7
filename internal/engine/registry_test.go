package engine

import (
	"testing"

	"github.com/triage-ai/palisade/internal/guard"
)

func TestRegistrySetAndGet(t *testing.T) {
	r := NewRegistry()
	entries := []Entry{entryFor("a", 1, guard.PhaseRequest, true)}
	r.Set("route1", BuildRouteChains(entries))

	chains, ok := r.Get("route1")
	if !ok {
		t.Fatal("expected route1 to be present")
	}
	if len(chains.ByPhase[guard.PhaseRequest]) != 1 {
		t.Fatalf("expected one entry on PhaseRequest, got %d", len(chains.ByPhase[guard.PhaseRequest]))
	}
}

func TestRegistryGetMissingRoute(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Fatal("expected missing route to report ok=false")
	}
}

func TestRegistryHotSwapReplacesChain(t *testing.T) {
	r := NewRegistry()
	r.Set("route1", BuildRouteChains([]Entry{entryFor("a", 1, guard.PhaseRequest, true)}))
	r.Set("route1", BuildRouteChains([]Entry{entryFor("b", 1, guard.PhaseRequest, true)}))

	chains, ok := r.Get("route1")
	if !ok {
		t.Fatal("expected route1 to be present")
	}
	if len(chains.ByPhase[guard.PhaseRequest]) != 1 || chains.ByPhase[guard.PhaseRequest][0].Desc.ID != "b" {
		t.Fatalf("expected hot-swapped chain with only guard b, got %+v", chains.ByPhase[guard.PhaseRequest])
	}
}

func TestRegistryDelete(t *testing.T) {
	r := NewRegistry()
	r.Set("route1", BuildRouteChains([]Entry{entryFor("a", 1, guard.PhaseRequest, true)}))
	r.Delete("route1")
	if _, ok := r.Get("route1"); ok {
		t.Fatal("expected route1 to be gone after Delete")
	}
}
