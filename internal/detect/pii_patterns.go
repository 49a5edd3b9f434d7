package detect

import "regexp"

// EntityType names a kind of personally identifiable information.
type EntityType string

const (
	EntityEmail      EntityType = "email"
	EntityPhone      EntityType = "phone_number"
	EntitySSN        EntityType = "ssn"
	EntityCreditCard EntityType = "credit_card"
	EntityCASIN      EntityType = "ca_sin"
	EntityURL        EntityType = "url"
)

// AllEntityTypes lists every entity type a PII guard can be configured to
// detect.
var AllEntityTypes = []EntityType{EntityEmail, EntityPhone, EntitySSN, EntityCreditCard, EntityCASIN, EntityURL}

type piiPattern struct {
	entity     EntityType
	re         *regexp.Regexp
	confidence float32
	// luhn, if true, elevates confidence when the matched digit run
	// passes a Luhn checksum and lowers it otherwise.
	luhn bool
}

var piiPatterns = []piiPattern{
	{EntityEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), 0.90, false},
	{EntitySSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), 0.90, false},
	{EntityCreditCard, regexp.MustCompile(`\b4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), 0.85, true},
	{EntityCreditCard, regexp.MustCompile(`\b5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), 0.85, true},
	{EntityCreditCard, regexp.MustCompile(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`), 0.85, true},
	{EntityCreditCard, regexp.MustCompile(`\b6011[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), 0.85, true},
	{EntityCASIN, regexp.MustCompile(`\b\d{3}[-\s]\d{3}[-\s]\d{3}\b`), 0.55, true},
	{EntityPhone, regexp.MustCompile(`(\+1[-\s]?)?\(?\d{3}\)?[-\s.]?\d{3}[-\s.]?\d{4}\b`), 0.75, false},
	{EntityPhone, regexp.MustCompile(`\+\d{1,3}[-\s]?\d{1,4}[-\s]?\d{3,4}[-\s]?\d{3,4}\b`), 0.70, false},
	{EntityURL, regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s"']+`), 0.90, false},
}

// PIIHit is a single PII match at a specific byte span within a scanned
// string.
type PIIHit struct {
	Entity     EntityType
	Start, End int
	Text       string
	Confidence float32
}

// ScanPII runs the patterns for the requested entity types against text
// and returns every hit at or above minScore.
func ScanPII(text string, wanted map[EntityType]bool, minScore float32) []PIIHit {
	var hits []PIIHit
	for _, p := range piiPatterns {
		if !wanted[p.entity] {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			matched := text[loc[0]:loc[1]]
			confidence := p.confidence
			if p.luhn {
				if luhnValid(matched) {
					confidence += 0.10
					if confidence > 1 {
						confidence = 1
					}
				} else {
					confidence -= 0.35
				}
			}
			if confidence < minScore {
				continue
			}
			hits = append(hits, PIIHit{
				Entity:     p.entity,
				Start:      loc[0],
				End:        loc[1],
				Text:       matched,
				Confidence: confidence,
			})
		}
	}
	return hits
}

// luhnValid runs the Luhn checksum over the digits embedded in s, ignoring
// separators. Used to sanity-check credit-card and SIN-shaped matches.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 8 {
		return false
	}
	sum := 0
	parity := len(digits) % 2
	for i, d := range digits {
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}
