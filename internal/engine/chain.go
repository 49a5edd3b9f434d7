// Package engine builds and runs the per-route guard chain: the ordered
// sequence of guards that fire for a given phase, and the sequential
// dispatcher that walks that sequence, honoring each guard's own timeout
// and failure mode.
package engine

import (
	"sort"

	"github.com/triage-ai/palisade/internal/guard"
)

// Entry pairs a constructed Guard with the Descriptor it was built from,
// so the executor has priority, timeout, and failure-mode metadata
// alongside the guard itself without re-threading them through every
// hook call.
type Entry struct {
	Guard guard.Guard
	Desc  guard.Descriptor
}

// BuildChain filters entries to those enabled and configured to run on
// phase, then sorts by ascending priority. Ties break by configuration
// order — the order entries were passed in, i.e. the order they appear
// in the route file — which SliceStable preserves without any explicit
// secondary key.
func BuildChain(entries []Entry, phase guard.Phase) []Entry {
	var chain []Entry
	for _, e := range entries {
		if !e.Desc.Enabled {
			continue
		}
		if !e.Desc.RunsOn[phase] {
			continue
		}
		chain = append(chain, e)
	}
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Desc.Priority < chain[j].Desc.Priority
	})
	return chain
}
