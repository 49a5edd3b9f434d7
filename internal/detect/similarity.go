package detect

import "github.com/agnivade/levenshtein"

// SimilarityRatio returns a value in [0,1]: 1 for identical strings and 0
// when exactly one of them is empty, computed as one minus the Levenshtein
// edit distance divided by the combined length of both strings. A single
// edit between "gihub" and "github" scores 1 - 1/11 ≈ 0.91.
func SimilarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	total := len(a) + len(b)
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(total)
}

// ClosestMatch returns the candidate in candidates with the highest
// similarity ratio to target, along with that ratio. Returns ("", 0) if
// candidates is empty.
func ClosestMatch(target string, candidates []string) (string, float64) {
	var best string
	var bestRatio float64
	for _, c := range candidates {
		r := SimilarityRatio(target, c)
		if r > bestRatio {
			bestRatio = r
			best = c
		}
	}
	return best, bestRatio
}
