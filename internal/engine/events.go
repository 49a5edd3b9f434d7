package engine

import (
	"time"

	"github.com/triage-ai/palisade/internal/guard"
)

// Event is one guard's contribution to a chain evaluation, in the shape
// internal/storage persists for observability. Grounded on
// guard/internal/api/check.go's writeCheckEvent, which builds the same
// kind of per-check record from a detector's result before handing it to
// the storage writer.
type Event struct {
	GuardID    string
	GuardKind  string
	Phase      guard.Phase
	Decision   string // "allow", "deny", "modify"
	DenyCode   string
	LatencyMS  float64
	Timestamp  time.Time
}

func newEvent(e Entry, phase guard.Phase, dec guard.Decision, latency time.Duration) Event {
	ev := Event{
		GuardID:   e.Desc.ID,
		GuardKind: e.Desc.Kind,
		Phase:     phase,
		LatencyMS: float64(latency.Microseconds()) / 1000.0,
		Timestamp: time.Now(),
	}
	switch dec.Kind {
	case guard.Deny:
		ev.Decision = "deny"
		ev.DenyCode = dec.Deny.Code
	case guard.Modify:
		ev.Decision = "modify"
	default:
		ev.Decision = "allow"
	}
	return ev
}
