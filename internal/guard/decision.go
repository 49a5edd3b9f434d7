package guard

// DecisionKind tags the outcome of a single guard evaluation.
type DecisionKind int

const (
	Allow DecisionKind = iota
	Deny
	Modify
)

// DenyDetail carries the reason for a Deny decision. Every deny must carry
// a non-empty Code and Message; codes are stable across versions so
// callers can match on them.
type DenyDetail struct {
	Code    string
	Message string
	Details map[string]any
}

// ModifyActionKind tags which kind of in-flight mutation a Modify
// decision performs.
type ModifyActionKind int

const (
	ReplaceTools ModifyActionKind = iota
	RedactFields
	AddWarning
)

// ModifyAction is the payload of a Modify decision. Only the field
// matching Kind is meaningful.
type ModifyAction struct {
	Kind ModifyActionKind

	// ReplaceTools
	Tools []Tool

	// RedactFields. Paths use a dotted-path-plus-bracket-index selector
	// (e.g. "user.emails[0]") intelligible to SetPath in internal/detect.
	// A guard sets either Replacement, applied uniformly to every entry
	// in Paths, or Values, giving the exact already-redacted string for
	// each path (span-wise masking, computed by the guard itself).
	Paths       []string
	Replacement string
	Values      map[string]string

	// AddWarning
	Warning string
}

// Decision is the tagged outcome of a single guard evaluation.
type Decision struct {
	Kind   DecisionKind
	Deny   DenyDetail
	Modify ModifyAction
}

// AllowDecision is the zero-cost Allow decision every unimplemented hook
// returns.
func AllowDecision() Decision {
	return Decision{Kind: Allow}
}

// DenyDecision builds a Deny decision with the given code and message.
func DenyDecision(code, message string, details map[string]any) Decision {
	return Decision{Kind: Deny, Deny: DenyDetail{Code: code, Message: message, Details: details}}
}

// ModifyReplaceTools builds a Modify decision that replaces the tool list.
func ModifyReplaceTools(tools []Tool) Decision {
	return Decision{Kind: Modify, Modify: ModifyAction{Kind: ReplaceTools, Tools: tools}}
}

// ModifyRedactFields builds a Modify decision that overwrites the whole
// value at each of the given JSON paths with replacement.
func ModifyRedactFields(paths []string, replacement string) Decision {
	return Decision{Kind: Modify, Modify: ModifyAction{Kind: RedactFields, Paths: paths, Replacement: replacement}}
}

// ModifyRedactSpans builds a Modify decision that overwrites each path
// with its already-redacted value, e.g. from detect.RedactSpans.
func ModifyRedactSpans(values map[string]string) Decision {
	return Decision{Kind: Modify, Modify: ModifyAction{Kind: RedactFields, Values: values}}
}

// ModifyAddWarning builds an advisory Modify decision that never blocks.
func ModifyAddWarning(message string) Decision {
	return Decision{Kind: Modify, Modify: ModifyAction{Kind: AddWarning, Warning: message}}
}
