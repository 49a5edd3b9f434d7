package schema

// guardMeta builds the "x-guard-meta" block every published schema carries
// (§4.6): the guard's stable type identifier, a semver schema version, its
// behavioral category (one of detection|prevention|modification|logging —
// distinct from Descriptor.Category, which is a freeform UI grouping),
// the phases it runs on absent an operator override, and its icon hint.
// "x-" prefixed keywords are vendor extensions a JSON-Schema validator
// ignores, so this rides alongside "properties" in the same document
// without affecting config validation.
func guardMeta(kind, version, behaviorCategory string, defaultPhases []string, icon string) map[string]any {
	return map[string]any{
		"type":           kind,
		"version":        version,
		"category":       behaviorCategory,
		"default_phases": defaultPhases,
		"icon":           icon,
	}
}

// BuiltinDescriptors returns the Descriptor for every guard kind this
// binary ships (the five native guards plus the generic "wasm" kind for
// sandboxed modules). cmd/guard-server registers these at startup before
// loading any route configuration, so an operator's route file is
// validated against the same schema the API publishes.
func BuiltinDescriptors() []Descriptor {
	return []Descriptor{
		{
			Kind:        "tool_poisoning",
			DisplayName: "Tool Poisoning",
			Description: "Scans advertised tool metadata for hidden prompt-injection payloads.",
			Category:    "injection",
			Icon:        "shield-alert",
			Schema: map[string]any{
				"$schema":      "https://json-schema.org/draft/2020-12/schema",
				"type":         "object",
				"x-guard-meta": guardMeta("tool_poisoning", "1.0.0", "prevention", []string{"tools_list", "response"}, "shield-alert"),
				"properties": map[string]any{
					"alert_threshold": map[string]any{"type": "integer", "minimum": 1, "default": 1},
					"strict_mode":     map[string]any{"type": "boolean", "default": true},
					"scan_fields": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string", "enum": []any{"name", "description", "input_schema"}},
					},
					"custom_patterns": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"additionalProperties": false,
			},
		},
		{
			Kind:        "pii",
			DisplayName: "PII Detection",
			Description: "Detects and masks or rejects personally identifiable information in requests, responses, and tool results.",
			Category:    "privacy",
			Icon:        "eye-off",
			Schema: map[string]any{
				"$schema":      "https://json-schema.org/draft/2020-12/schema",
				"type":         "object",
				"x-guard-meta": guardMeta("pii", "1.0.0", "modification", []string{"response", "tool_result"}, "eye-off"),
				"properties": map[string]any{
					"detect": map[string]any{
						"type":     "array",
						"minItems": 1,
						"default":  []any{"email", "phone_number", "ssn", "credit_card"},
						"items": map[string]any{
							"type": "string",
							"enum": []any{"email", "phone_number", "ssn", "credit_card", "ca_sin", "url"},
						},
					},
					"min_score":   map[string]any{"type": "number", "minimum": 0, "maximum": 1, "default": 0.8},
					"action":      map[string]any{"type": "string", "enum": []any{"mask", "reject"}, "default": "mask"},
					"scan_fields": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"additionalProperties": false,
			},
		},
		{
			Kind:        "rug_pull",
			DisplayName: "Rug Pull Detection",
			Description: "Detects an MCP server silently changing a previously trusted tool's description or schema.",
			Category:    "integrity",
			Icon:        "refresh-alert",
			Schema: map[string]any{
				"$schema":      "https://json-schema.org/draft/2020-12/schema",
				"type":         "object",
				"x-guard-meta": guardMeta("rug_pull", "1.0.0", "prevention", []string{"tools_list"}, "refresh-alert"),
				"properties": map[string]any{
					"scope":          map[string]any{"type": "string", "enum": []any{"global", "session"}, "default": "global"},
					"risk_threshold": map[string]any{"type": "integer", "minimum": 0, "default": 5},
					"w_desc":         map[string]any{"type": "integer", "minimum": 0, "default": 2},
					"w_schema":       map[string]any{"type": "integer", "minimum": 0, "default": 3},
					"w_add":          map[string]any{"type": "integer", "minimum": 0, "default": 1},
					"w_remove":       map[string]any{"type": "integer", "minimum": 0, "default": 3},
					"monitored_change_types": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string", "enum": []any{"all", "description", "schema", "add", "remove"}},
					},
					"update_baseline": map[string]any{"type": "boolean", "default": false},
				},
				"additionalProperties": false,
			},
		},
		{
			Kind:        "tool_shadowing",
			DisplayName: "Tool Shadowing",
			Description: "Detects a protected tool name, or a tool name that duplicates across a multi-target MCP backend's own listing.",
			Category:    "integrity",
			Icon:        "layers",
			Schema: map[string]any{
				"$schema":      "https://json-schema.org/draft/2020-12/schema",
				"type":         "object",
				"x-guard-meta": guardMeta("tool_shadowing", "1.0.0", "prevention", []string{"tools_list"}, "layers"),
				"properties": map[string]any{
					"block_duplicates": map[string]any{"type": "boolean", "default": true},
					"protected_names":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"additionalProperties": false,
			},
		},
		{
			Kind:        "server_whitelist",
			DisplayName: "Server Whitelist",
			Description: "Rejects upstream MCP servers that are not on the operator's allow-list, flagging near-miss typosquats separately.",
			Category:    "network",
			Icon:        "list-checks",
			Schema: map[string]any{
				"$schema":      "https://json-schema.org/draft/2020-12/schema",
				"type":         "object",
				"x-guard-meta": guardMeta("server_whitelist", "1.0.0", "prevention", []string{"connection", "request"}, "list-checks"),
				"properties": map[string]any{
					"allowed_servers":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "default": []any{}},
					"detect_typosquats":    map[string]any{"type": "boolean", "default": true},
					"similarity_threshold": map[string]any{"type": "number", "minimum": 0, "maximum": 1, "default": 0.85},
				},
				"additionalProperties": false,
			},
		},
		{
			Kind:        "wasm",
			DisplayName: "Sandboxed Guard Module",
			Description: "Runs a Wasm component-model guard module in a resource-limited sandbox.",
			Category:    "extensibility",
			Icon:        "box",
			IsWasm:      true,
			Schema: map[string]any{
				"$schema":      "https://json-schema.org/draft/2020-12/schema",
				"type":         "object",
				"x-guard-meta": guardMeta("wasm", "1.0.0", "detection", []string{}, "box"),
				"properties": map[string]any{
					"module_path": map[string]any{"type": "string"},
					"max_memory":  map[string]any{"type": "integer", "minimum": 1},
					"max_stack":   map[string]any{"type": "integer", "minimum": 1},
					"config":      map[string]any{"type": "object"},
				},
				"required":             []any{"module_path"},
				"additionalProperties": false,
			},
		},
	}
}
