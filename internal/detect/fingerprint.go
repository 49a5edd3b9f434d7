package detect

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DescHash computes a stable fingerprint over a tool description:
// H(normalize(description)). Empty descriptions hash to the empty string's
// fingerprint, which is a valid, stable baseline value.
func DescHash(description string) string {
	sum := xxhash.Sum64String(NormalizeText(description))
	return strconv.FormatUint(sum, 16)
}

// SchemaHash computes a stable fingerprint over a tool's input schema:
// H(canonical_json(schema)).
func SchemaHash(schema map[string]any) string {
	if schema == nil {
		sum := xxhash.Sum64String("null")
		return strconv.FormatUint(sum, 16)
	}
	sum := xxhash.Sum64(CanonicalJSON(schema))
	return strconv.FormatUint(sum, 16)
}
