package detect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// WalkStrings walks v depth-first and calls visit with the dotted-path
// selector and scalar string value of every string leaf. Paths use the
// original's (agentgateway) dotted-path-plus-bracket-index convention,
// e.g. "user.emails[0]".
func WalkStrings(v any, visit func(path string, s string)) {
	walk("", v, visit)
}

func walk(path string, v any, visit func(path string, s string)) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			walk(child, t[k], visit)
		}
	case []any:
		for i, e := range t {
			walk(fmt.Sprintf("%s[%d]", path, i), e, visit)
		}
	case string:
		visit(path, t)
	default:
		// numbers, bools, nil — not scannable.
	}
}

// GetPath resolves a dotted-path-plus-bracket-index selector against v.
func GetPath(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, seg := range splitPath(path) {
		if seg.index >= 0 {
			arr, ok := cur.([]any)
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.index]
		} else {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[seg.key]
			if !ok {
				return nil, false
			}
		}
	}
	return cur, true
}

// SetPath writes value at the dotted-path-plus-bracket-index selector
// within v, mutating the map/slice tree in place.
func SetPath(v any, path string, value any) bool {
	segs := splitPath(path)
	if len(segs) == 0 {
		return false
	}
	cur := v
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg.index >= 0 {
			arr, ok := cur.([]any)
			if !ok || seg.index >= len(arr) {
				return false
			}
			if last {
				arr[seg.index] = value
				return true
			}
			cur = arr[seg.index]
		} else {
			m, ok := cur.(map[string]any)
			if !ok {
				return false
			}
			if last {
				m[seg.key] = value
				return true
			}
			cur, ok = m[seg.key]
			if !ok {
				return false
			}
		}
	}
	return false
}

type pathSeg struct {
	key   string
	index int // -1 if this segment is a map key, not an array index
}

func splitPath(path string) []pathSeg {
	var segs []pathSeg
	for _, part := range strings.Split(path, ".") {
		for part != "" {
			br := strings.IndexByte(part, '[')
			if br < 0 {
				segs = append(segs, pathSeg{key: part, index: -1})
				part = ""
				continue
			}
			if br > 0 {
				segs = append(segs, pathSeg{key: part[:br], index: -1})
			}
			end := strings.IndexByte(part[br:], ']')
			if end < 0 {
				part = ""
				continue
			}
			idx, _ := strconv.Atoi(part[br+1 : br+end])
			segs = append(segs, pathSeg{index: idx})
			part = part[br+end+1:]
		}
	}
	return segs
}

// RedactSpans replaces every hit's span within text with
// "[REDACTED_<TYPE>]", processing non-overlapping spans in a single
// left-to-right pass so non-hit characters are preserved exactly.
func RedactSpans(text string, hits []PIIHit) string {
	if len(hits) == 0 {
		return text
	}
	sorted := make([]PIIHit, len(hits))
	copy(sorted, hits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	pos := 0
	for _, h := range sorted {
		if h.Start < pos {
			continue // overlapping match from an earlier pattern, skip
		}
		b.WriteString(text[pos:h.Start])
		b.WriteString("[REDACTED_" + strings.ToUpper(string(h.Entity)) + "]")
		pos = h.End
	}
	b.WriteString(text[pos:])
	return b.String()
}
