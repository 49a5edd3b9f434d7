// Package detect holds the pattern libraries and structural helpers
// shared by the native guards: prompt-injection and PII regex sets, tool
// fingerprinting, and string similarity.
package detect

import "regexp"

// AttackFamily classifies which family of prompt-manipulation a pattern
// belongs to.
type AttackFamily string

const (
	FamilyPromptInjection  AttackFamily = "prompt_injection"
	FamilySystemOverride   AttackFamily = "system_override"
	FamilySafetyBypass     AttackFamily = "safety_bypass"
	FamilyRoleManipulation AttackFamily = "role_manipulation"
	FamilyHiddenMarker     AttackFamily = "hidden_instruction"
	FamilyPromptLeak       AttackFamily = "prompt_leak"
	FamilyEncodingEscape   AttackFamily = "encoding_escape"
	FamilyCustom           AttackFamily = "custom"
)

// InjectionPattern is one compiled detector in the prompt-injection
// pattern set, tagged with the attack family it belongs to and a
// human-readable detail used in deny messages.
type InjectionPattern struct {
	Re     *regexp.Regexp
	Family AttackFamily
	Detail string
}

// InjectionPatterns is compiled once at package init — never per request —
// mirroring the teacher's promptInjectionPatterns package var.
var InjectionPatterns = compileInjectionPatterns()

func compileInjectionPatterns() []InjectionPattern {
	raw := []struct {
		expr   string
		family AttackFamily
		detail string
	}{
		// prompt-injection proper
		{`(?i)ignore\s+(all\s+)?previous\s+instructions`, FamilyPromptInjection, "override: ignore previous instructions"},
		{`(?i)ignore\s+(all\s+)?above\s+instructions`, FamilyPromptInjection, "override: ignore above instructions"},
		{`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|guidelines)`, FamilyPromptInjection, "override: disregard instructions"},
		{`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions|context)`, FamilyPromptInjection, "override: forget instructions"},
		{`(?i)do\s+not\s+follow\s+(your|the|any)\s+(rules|guidelines|instructions|safety)`, FamilyPromptInjection, "instruction negation"},
		{`(?i)new\s+instructions?\s*:\s*`, FamilyPromptInjection, "injected instruction block"},

		// system-override
		{`(?i)(SYSTEM|ADMIN|ROOT)\s*:\s*(override|execute|bypass)`, FamilySystemOverride, "system-tag override directive"},
		{`(?i)execute\s+as\s+(root|admin|system)`, FamilySystemOverride, "execute as privileged role"},
		{`(?i)override\s+(system|safety|security)\s+(prompt|instructions|rules|policy)`, FamilySystemOverride, "explicit override attempt"},
		{`(?i)\[SYSTEM\]`, FamilySystemOverride, "delimiter injection: [SYSTEM] tag"},
		{`(?i)<\|im_start\|>system`, FamilySystemOverride, "delimiter injection: ChatML system tag"},
		{`(?i)###\s*(SYSTEM|INSTRUCTION|NEW INSTRUCTION)`, FamilySystemOverride, "delimiter injection: markdown system header"},
		{`(?i)---\s*(system|instruction)\s*(prompt|message)?`, FamilySystemOverride, "delimiter injection: dashed system section"},

		// safety bypass
		{`(?i)bypass\s+(the\s+)?(safety|security|content)\s+(filter|check|policy|rules)`, FamilySafetyBypass, "explicit bypass attempt"},
		{`(?i)disable\s+(safety|content)\s+(filter|moderation)`, FamilySafetyBypass, "disable safety filter"},
		{`(?i)no\s+restrictions?\s+(apply|allowed)`, FamilySafetyBypass, "restriction denial"},
		{`(?i)jailbreak`, FamilySafetyBypass, "explicit jailbreak reference"},

		// role manipulation
		{`(?i)you\s+are\s+now\s+(admin|root|system|unrestricted)`, FamilyRoleManipulation, "identity override: you are now admin/root"},
		{`(?i)you\s+are\s+now\s+`, FamilyRoleManipulation, "identity override: you are now"},
		{`(?i)act\s+as\s+(if\s+you\s+are|a)\s+(root|admin)`, FamilyRoleManipulation, "identity override: act as root/admin"},
		{`(?i)act\s+as\s+(if\s+you\s+are|a)\s+`, FamilyRoleManipulation, "identity override: act as"},
		{`(?i)pretend\s+(to\s+be|you\s+are)\s+`, FamilyRoleManipulation, "identity override: pretend"},
		{`(?i)from\s+now\s+on\s+you\s+(are|will|must|should)`, FamilyRoleManipulation, "identity override: from now on"},
		{`(?i)your\s+new\s+(role|identity|persona|instructions)\s+(is|are)`, FamilyRoleManipulation, "identity override: new role"},

		// hidden-instruction markers
		{`\[HIDDEN\]`, FamilyHiddenMarker, "hidden instruction marker"},
		{`\[SECRET\]`, FamilyHiddenMarker, "secret instruction marker"},
		{`<!--\s*INJECT`, FamilyHiddenMarker, "HTML-comment injection marker"},
		{`(?i)BEGININSTRUCTION`, FamilyHiddenMarker, "delimiter injection: BEGININSTRUCTION"},

		// prompt-leaking
		{`(?i)reveal\s+(your|the)\s+(system|initial|original|hidden)\s+(prompt|instructions|message)`, FamilyPromptLeak, "system prompt extraction"},
		{`(?i)(print|show|reveal)\s+your\s+system\s+prompt`, FamilyPromptLeak, "system prompt extraction"},
		{`(?i)what\s+(are|is|were)\s+your\s+(system|initial|original|hidden)\s+(prompt|instructions|rules)`, FamilyPromptLeak, "system prompt extraction"},
		{`(?i)output\s+(your|the)\s+(system|initial|original)\s+(prompt|instructions|message)`, FamilyPromptLeak, "system prompt extraction"},

		// encoding-escape markers
		{`\\u[0-9a-fA-F]{4}.{0,10}(run|exec|delete|drop)`, FamilyEncodingEscape, "unicode-escaped action verb"},
		{`\\x[0-9a-fA-F]{2}.{0,10}(run|exec|delete|drop)`, FamilyEncodingEscape, "hex-escaped action verb"},
	}

	patterns := make([]InjectionPattern, 0, len(raw))
	for _, r := range raw {
		patterns = append(patterns, InjectionPattern{
			Re:     regexp.MustCompile(r.expr),
			Family: r.family,
			Detail: r.detail,
		})
	}
	return patterns
}

// CompilePattern compiles a single raw regex into an InjectionPattern
// tagged with family and detail, for guards that accept operator-supplied
// custom_patterns in their config.
func CompilePattern(expr string, family AttackFamily, detail string) (InjectionPattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return InjectionPattern{}, err
	}
	return InjectionPattern{Re: re, Family: family, Detail: detail}, nil
}

// InjectionHit is a single pattern match against a scanned string.
type InjectionHit struct {
	Family AttackFamily
	Detail string
}

// ScanInjection runs every compiled pattern against text and returns one
// hit per matching pattern (not per match position — duplicate hits within
// the same string from the same pattern collapse to one).
func ScanInjection(text string, patterns []InjectionPattern) []InjectionHit {
	var hits []InjectionHit
	for _, p := range patterns {
		if p.Re.MatchString(text) {
			hits = append(hits, InjectionHit{Family: p.Family, Detail: p.Detail})
		}
	}
	return hits
}
