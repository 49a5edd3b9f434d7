package detect

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)
var htmlTag = regexp.MustCompile(`<[^>]*>`)

// NormalizeText lowercases, strips markup, and collapses whitespace so
// that formatting differences never register as a description change.
func NormalizeText(s string) string {
	s = htmlTag.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CanonicalJSON serializes v with sorted object keys and no insignificant
// whitespace, so key reordering never registers as a schema change.
func CanonicalJSON(v any) []byte {
	sorted := sortKeys(v)
	// json.Marshal never fails on the map/slice/scalar tree sortKeys
	// produces, since it originated from a successful Unmarshal or from
	// plain Go values.
	b, _ := json.Marshal(sorted)
	return b
}

func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(t))
		for _, k := range keys {
			out = append(out, kv{k, sortKeys(t[k])})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return v
	}
}

// kv and orderedMap implement json.Marshaler to emit a map with a fixed
// (already-sorted) key order, since encoding/json always re-sorts a plain
// Go map[string]any alphabetically anyway — this makes that behavior
// explicit rather than accidental.
type kv struct {
	Key string
	Val any
}

type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Val)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
