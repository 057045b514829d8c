// Package address parses free-form UK property addresses into comparable
// structures: a house-number token, a comparison word-bag and a postcode.
package address

import (
	"regexp"
	"strings"
	"unicode"
)

// HouseNumber is the structured street-number token extracted from a
// free-form address. Two tokens are comparable only when both have a
// non-empty Primary.
type HouseNumber struct {
	Primary  string
	Unit     string
	IsRange  bool
	RangeEnd string
}

// Valid reports whether a street number was recognized.
func (h HouseNumber) Valid() bool {
	return h.Primary != ""
}

// String renders the token in a canonical form usable in grouping keys.
func (h HouseNumber) String() string {
	if !h.Valid() {
		return ""
	}
	s := h.Primary
	if h.IsRange {
		s += "-" + h.RangeEnd
	}
	if h.Unit != "" {
		s += "/" + h.Unit
	}
	return s
}

// Names of the parsing rules, in precedence order. The order is load-bearing:
// free-text addresses are ambiguous and several rules can match the same
// string, so the first match wins.
const (
	RuleUnitPrefix   = "unit-prefix"   // "Flat 5, 42 High Street"
	RuleNamePrefix   = "name-prefix"   // "Spen Lea, 317 Wharf Road"
	RuleNumberLetter = "number-letter" // "32a The Street"
	RuleNumberRange  = "number-range"  // "12-14 Market Square"
	RuleLeadingNum   = "leading-number"
	RuleAfterComma   = "after-comma" // last resort: number following any comma
)

type parseRule struct {
	name  string
	re    *regexp.Regexp
	build func(m []string) HouseNumber
}

// UK addresses frequently prefix a house or property name before the number
// ("Spen Lea, 317 Wharf Road"); without the name-prefix rule the number is
// misread as absent. The name part must contain no digits so "Flat 5, ..."
// never falls through to it.
var houseNumberRules = []parseRule{
	{
		name: RuleUnitPrefix,
		re:   regexp.MustCompile(`(?i)^(?:flat|apartment|apt|unit|studio|room)\s+([0-9A-Za-z]+)\s*,\s*(\d+)(?:[A-Za-z])?\b`),
		build: func(m []string) HouseNumber {
			return HouseNumber{Primary: m[2], Unit: strings.ToLower(m[1])}
		},
	},
	{
		name: RuleNamePrefix,
		re:   regexp.MustCompile(`^[A-Za-z][A-Za-z'. -]*,\s*(\d+)([A-Za-z])?\b`),
		build: func(m []string) HouseNumber {
			return HouseNumber{Primary: m[1], Unit: strings.ToLower(m[2])}
		},
	},
	{
		name: RuleNumberLetter,
		re:   regexp.MustCompile(`^(\d+)([A-Za-z])\b`),
		build: func(m []string) HouseNumber {
			return HouseNumber{Primary: m[1], Unit: strings.ToLower(m[2])}
		},
	},
	{
		name: RuleNumberRange,
		re:   regexp.MustCompile(`^(\d+)\s*[-–]\s*(\d+)\b`),
		build: func(m []string) HouseNumber {
			return HouseNumber{Primary: m[1], IsRange: true, RangeEnd: m[2]}
		},
	},
	{
		name: RuleLeadingNum,
		re:   regexp.MustCompile(`^(\d+)\b`),
		build: func(m []string) HouseNumber {
			return HouseNumber{Primary: m[1]}
		},
	},
	{
		name: RuleAfterComma,
		re:   regexp.MustCompile(`,\s*(\d+)([A-Za-z])?\b`),
		build: func(m []string) HouseNumber {
			return HouseNumber{Primary: m[1], Unit: strings.ToLower(m[2])}
		},
	},
}

// ExtractHouseNumber runs the rule cascade over the address and returns the
// first match, or an invalid token when no rule matches.
func ExtractHouseNumber(addr string) HouseNumber {
	token, _ := ExtractHouseNumberRule(addr)
	return token
}

// ExtractHouseNumberRule is ExtractHouseNumber plus the name of the rule
// that matched, "" when none did.
func ExtractHouseNumberRule(addr string) (HouseNumber, string) {
	s := strings.TrimSpace(addr)
	if s == "" {
		return HouseNumber{}, ""
	}
	for _, rule := range houseNumberRules {
		if m := rule.re.FindStringSubmatch(s); m != nil {
			return rule.build(m), rule.name
		}
	}
	return HouseNumber{}, ""
}

// HasNamePrefix reports whether the address carries an embedded property
// name before its street number.
func HasNamePrefix(addr string) bool {
	_, rule := ExtractHouseNumberRule(addr)
	return rule == RuleNamePrefix || rule == RuleUnitPrefix
}

// UK postcode pattern, matched anywhere in the string.
var rePostcode = regexp.MustCompile(`\b([A-Za-z]{1,2}\d[\dA-Za-z]?\s*\d[ABD-HJLNP-UW-Zabd-hjlnp-uw-z]{2})\b`)

// ExtractPostcode finds a UK postcode anywhere in the string, returning it
// in canonical "OUTCODE INCODE" form plus the remainder with the postcode
// removed and trailing punctuation trimmed. Returns ("", s) when no
// postcode is present.
func ExtractPostcode(s string) (postcode, remainder string) {
	m := rePostcode.FindString(s)
	if m == "" {
		return "", strings.TrimSpace(s)
	}
	compact := strings.ToUpper(strings.ReplaceAll(m, " ", ""))
	postcode = compact[:len(compact)-3] + " " + compact[len(compact)-3:]

	remainder = rePostcode.ReplaceAllString(s, " ")
	remainder = strings.Join(strings.Fields(remainder), " ")
	remainder = strings.TrimRight(remainder, " ,.-")
	return postcode, remainder
}

// Common UK street-type abbreviations expanded before comparison so
// "Church Rd" and "Church Road" produce the same word-bag.
var abbreviations = map[string]string{
	"rd":   "road",
	"st":   "street",
	"ave":  "avenue",
	"gdns": "gardens",
	"ln":   "lane",
	"dr":   "drive",
	"cres": "crescent",
	"ter":  "terrace",
	"cl":   "close",
	"pl":   "place",
	"sq":   "square",
	"ct":   "court",
	"pk":   "park",
	"wy":   "way",
}

// NormalizeForComparison turns an address into an ordered bag of lowercase
// word tokens: punctuation stripped, abbreviations expanded, tokens of
// length two or less dropped.
func NormalizeForComparison(addr string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(addr) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	var tokens []string
	for _, word := range strings.Fields(b.String()) {
		if full, ok := abbreviations[word]; ok {
			word = full
		}
		if len(word) > 2 {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

// TokenOverlap returns the fraction of tokens in a that also appear in b,
// 0 when a is empty.
func TokenOverlap(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	present := make(map[string]bool, len(b))
	for _, t := range b {
		present[t] = true
	}
	hits := 0
	for _, t := range a {
		if present[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
