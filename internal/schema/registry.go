// Package schema exposes a JSON-Schema (Draft 2020-12) registry of guard
// configuration shapes, so operators and the config loader can validate a
// guard's config block before it ever reaches the guard constructor.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Descriptor is one guard kind's published configuration schema, plus the
// UI-facing metadata a config editor renders alongside the raw schema.
type Descriptor struct {
	Kind        string
	DisplayName string
	Description string
	Category    string // groups related kinds in a config UI, e.g. "injection", "privacy"
	Icon        string // UI icon hint, opaque to the engine
	IsWasm      bool
	Schema      map[string]any // JSON-Schema fragment for this kind's Config block

	compiled *jsonschema.Schema
}

// Registry holds one compiled Descriptor per guard kind, plus whatever
// schemas sandboxed guests have published about themselves at load time.
type Registry struct {
	mu        sync.RWMutex
	byKind    map[string]*Descriptor
	sandboxed map[string]Descriptor // guest module path -> its self-described schema
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKind: map[string]*Descriptor{}, sandboxed: map[string]Descriptor{}}
}

// RegisterSandboxed records the schema a Wasm guest published about itself
// at load time (its manifest's config schema, §4.4), keyed by module path
// so a reload that recompiles the same module overwrites rather than
// duplicates its entry. Mirrors the original's collect_wasm_schemas, which
// aggregates guest-exported schemas across every backend's executor for
// the admin UI.
func (r *Registry) RegisterSandboxed(modulePath string, d Descriptor) {
	d.IsWasm = true
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sandboxed[modulePath] = d
}

// CollectSandboxed returns every currently loaded sandboxed guest's
// published schema, sorted by module path.
func (r *Registry) CollectSandboxed() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.sandboxed))
	for p := range r.sandboxed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]Descriptor, 0, len(paths))
	for _, p := range paths {
		out = append(out, r.sandboxed[p])
	}
	return out
}

// Register compiles d.Schema and adds it to the registry, replacing any
// existing descriptor for the same kind. A schema that fails to compile is
// a ConfigError-shaped problem at startup, not a runtime one, so this
// returns the compile error directly for the caller (internal/config) to
// wrap.
func (r *Registry) Register(d Descriptor) error {
	schemaBytes, err := json.Marshal(d.Schema)
	if err != nil {
		return fmt.Errorf("marshaling schema for guard kind %q: %w", d.Kind, err)
	}
	var schemaObj any
	if err := json.Unmarshal(schemaBytes, &schemaObj); err != nil {
		return fmt.Errorf("re-decoding schema for guard kind %q: %w", d.Kind, err)
	}

	c := jsonschema.NewCompiler()
	resourceID := "guard/" + d.Kind + ".json"
	if err := c.AddResource(resourceID, schemaObj); err != nil {
		return fmt.Errorf("adding schema resource for guard kind %q: %w", d.Kind, err)
	}
	compiled, err := c.Compile(resourceID)
	if err != nil {
		return fmt.Errorf("compiling schema for guard kind %q: %w", d.Kind, err)
	}
	d.compiled = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[d.Kind] = &d
	return nil
}

// Get returns the descriptor for kind, or ok=false if no guard of that
// kind is registered.
func (r *Registry) Get(kind string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKind[kind]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// List returns every registered descriptor, sorted by kind, for the
// GET /v1/schemas endpoint.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byKind))
	for _, d := range r.byKind {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// ResolveDefaults returns a copy of instance with every schema-declared
// "default" merged in wherever instance omits that key, recursing into
// nested object properties. santhosh-tekuri/jsonschema is a validator, not
// a defaulting library, so this walks Descriptor.Schema by hand; it holds
// resolve(resolve(c)) == resolve(c), since a key the first pass filled in
// is then "present" and the second pass leaves it untouched.
func (r *Registry) ResolveDefaults(kind string, instance map[string]any) (map[string]any, error) {
	r.mu.RLock()
	d, ok := r.byKind[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown guard kind %q", kind)
	}
	// Defaults are taken from the schema's JSON form, so a filled-in
	// default has the same value shapes (float64, []any) as JSON input.
	raw, err := json.Marshal(d.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema for guard kind %q: %w", kind, err)
	}
	var schemaJSON map[string]any
	if err := json.Unmarshal(raw, &schemaJSON); err != nil {
		return nil, fmt.Errorf("re-decoding schema for guard kind %q: %w", kind, err)
	}
	out := deepCopyObject(instance)
	applySchemaDefaults(schemaJSON, out)
	return out, nil
}

func applySchemaDefaults(schema map[string]any, instance map[string]any) {
	props, _ := schema["properties"].(map[string]any)
	for name, rawPropSchema := range props {
		propSchema, ok := rawPropSchema.(map[string]any)
		if !ok {
			continue
		}
		if _, present := instance[name]; !present {
			if def, hasDefault := propSchema["default"]; hasDefault {
				instance[name] = deepCopyValue(def)
			}
		}
		if nested, ok := instance[name].(map[string]any); ok {
			applySchemaDefaults(propSchema, nested)
		}
	}
}

func deepCopyObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return t
	}
}

// ValidationError is one leaf failure out of a schema validation run: the
// slash-joined path into the instance that failed (no leading slash; empty
// for the instance root), a short machine-readable
// code for the failed keyword, and a human-readable message. §4.6 shapes the
// registry's validate(type, instance) operation to return a list of these
// rather than a single opaque error, so a config UI can attribute each
// failure to the field that caused it.
type ValidationError struct {
	Path    string
	Code    string
	Message string
}

// Validate checks config against the registered schema for kind, returning
// every leaf validation failure rather than stopping at the first one. An
// unregistered kind is a plain error, since it means the config loader is
// looking at a guard kind nobody described, not a config-shape problem.
func (r *Registry) Validate(kind string, config map[string]any) ([]ValidationError, error) {
	r.mu.RLock()
	d, ok := r.byKind[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown guard kind %q", kind)
	}

	// Round-trip through JSON so map[string]any values decoded elsewhere
	// (e.g. from YAML) present the same numeric/string shapes the
	// compiled schema expects.
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshaling config for guard kind %q: %w", kind, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("re-decoding config for guard kind %q: %w", kind, err)
	}
	if err := d.compiled.Validate(decoded); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			var out []ValidationError
			collectValidationErrors(ve, &out)
			if len(out) > 0 {
				return out, nil
			}
		}
		return []ValidationError{{Message: fmt.Sprintf("guard kind %q config invalid: %s", kind, err)}}, nil
	}
	return nil, nil
}

// collectValidationErrors flattens a jsonschema.ValidationError's Causes
// tree, depth-first, into leaf entries. A node with no causes of its own is
// a leaf; a node with causes only contributes its children, since the
// top-level "jsonschema validation failed with..." wrapper carries no
// field-specific information a caller could act on.
func collectValidationErrors(ve *jsonschema.ValidationError, out *[]ValidationError) {
	if len(ve.Causes) == 0 {
		path := strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, ValidationError{
			Path:    path,
			Code:    fmt.Sprintf("%T", ve.ErrorKind),
			Message: ve.Error(),
		})
		return
	}
	for _, cause := range ve.Causes {
		collectValidationErrors(cause, out)
	}
}
