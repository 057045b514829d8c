// Package selector picks the single best candidate for a target address
// from an ambiguous pool of external register records, or reports
// confidently that there is none. "No data" is preferred to "wrong data":
// the selector never guesses below its exactness bar.
package selector

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"
	"go.uber.org/zap"

	"github.com/comps-engine/internal/address"
)

// Kind tags a selection outcome. Ambiguity is modelled explicitly so every
// caller decides how to treat it instead of the decision being buried here.
type Kind int

const (
	// NoMatch means no candidate cleared the exactness bar. This is a
	// valid, expected outcome, not an error.
	NoMatch Kind = iota
	// ExactMatch means exactly one candidate survived all filters.
	ExactMatch
	// AmbiguousMatch means several candidates survived and a tie-break
	// rule, not certainty, selected the best. Callers must surface this
	// for manual review.
	AmbiguousMatch
)

func (k Kind) String() string {
	switch k {
	case ExactMatch:
		return "exact"
	case AmbiguousMatch:
		return "ambiguous"
	default:
		return "no_match"
	}
}

// Candidate is one external register record offered for matching.
type Candidate struct {
	Address        string            `json:"address"`
	FloorAreaSqFt  float64           `json:"floor_area_sqft,omitempty"`
	CertificateURL string            `json:"certificate_url,omitempty"`
	Attrs          map[string]string `json:"attrs,omitempty"`
}

// Scored is a candidate that passed the house-number filter, with its
// derived comparison features.
type Scored struct {
	Candidate        Candidate           `json:"candidate"`
	HouseNumber      address.HouseNumber `json:"-"`
	StreetSimilarity float64             `json:"street_similarity"`
}

// Result is the outcome of one selection. For AmbiguousMatch, Candidates
// holds the full tied list (best first) so callers can log or flag it.
type Result struct {
	Kind       Kind     `json:"kind"`
	Best       *Scored  `json:"best,omitempty"`
	Candidates []Scored `json:"candidates,omitempty"`
}

// Options configures the selection filters.
type Options struct {
	// MinStreetSimilarity is the floor on target-token overlap below which
	// a house-number-exact candidate is still rejected. Guards against a
	// numerically coincidental match on a different street. Zero selects
	// the default; the floor cannot be disabled.
	MinStreetSimilarity float64 `mapstructure:"min_street_similarity"`
}

// DefaultOptions returns the standard filter settings.
func DefaultOptions() Options {
	return Options{MinStreetSimilarity: 0.30}
}

// Selector evaluates candidate pools against target addresses.
type Selector struct {
	opts   Options
	logger *zap.Logger
}

// New creates a Selector, filling zero options with defaults.
func New(opts Options, logger *zap.Logger) *Selector {
	if opts.MinStreetSimilarity == 0 {
		opts.MinStreetSimilarity = DefaultOptions().MinStreetSimilarity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{opts: opts, logger: logger}
}

// SelectBestMatch returns the best candidate for the target address.
// knownFloorArea, when non-nil, is used as the strongest tie-breaker
// between candidates sharing the target's house number.
func (s *Selector) SelectBestMatch(targetAddress string, candidates []Candidate, knownFloorArea *float64) Result {
	targetNumber := address.ExtractHouseNumber(targetAddress)
	if !targetNumber.Valid() {
		// Without a house number there is nothing to disambiguate on.
		return Result{Kind: NoMatch}
	}
	targetTokens := address.NormalizeForComparison(targetAddress)

	var pool []Scored
	for _, c := range candidates {
		number := address.ExtractHouseNumber(c.Address)
		if !IsExactHouseNumberMatch(targetNumber, number) {
			continue
		}
		sim := address.TokenOverlap(targetTokens, address.NormalizeForComparison(c.Address))
		if sim < s.opts.MinStreetSimilarity {
			continue
		}
		pool = append(pool, Scored{Candidate: c, HouseNumber: number, StreetSimilarity: sim})
	}

	switch len(pool) {
	case 0:
		return Result{Kind: NoMatch}
	case 1:
		return Result{Kind: ExactMatch, Best: &pool[0]}
	}

	s.sortByPreference(pool, targetAddress, knownFloorArea)
	s.logger.Debug("ambiguous candidate selection",
		zap.String("target", targetAddress),
		zap.Int("tied", len(pool)),
		zap.String("selected", pool[0].Candidate.Address))
	return Result{Kind: AmbiguousMatch, Best: &pool[0], Candidates: pool}
}

// IsExactHouseNumberMatch applies the unit-aware equality rule: primary
// numbers must be equal; a target without a unit reads as "whole building"
// and matches any sub-unit; a target with a unit matches only that unit.
// No partial credit is given for close numbers.
func IsExactHouseNumberMatch(target, candidate address.HouseNumber) bool {
	if !target.Valid() || !candidate.Valid() {
		return false
	}
	if target.Primary != candidate.Primary {
		return false
	}
	if target.Unit == "" {
		return true
	}
	if candidate.Unit == "" {
		return false
	}
	return strings.EqualFold(target.Unit, candidate.Unit)
}

// sortByPreference orders tied candidates best-first. The order is total
// and deterministic: floor-area closeness (when known), street similarity,
// a mild preference for addresses without an embedded property name, then
// Jaro-Winkler proximity to the target and the raw address as final keys.
func (s *Selector) sortByPreference(pool []Scored, targetAddress string, knownFloorArea *float64) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]

		if knownFloorArea != nil {
			ba, bb := floorAreaBand(a.Candidate.FloorAreaSqFt, *knownFloorArea), floorAreaBand(b.Candidate.FloorAreaSqFt, *knownFloorArea)
			if ba != bb {
				return ba < bb
			}
		}
		if a.StreetSimilarity != b.StreetSimilarity {
			return a.StreetSimilarity > b.StreetSimilarity
		}
		aNamed, bNamed := address.HasNamePrefix(a.Candidate.Address), address.HasNamePrefix(b.Candidate.Address)
		if aNamed != bNamed {
			// A bare numeric target address more often corresponds to the
			// plain-address record than to a named one.
			return !aNamed
		}
		ja, jb := SimilarityToTarget(targetAddress, a.Candidate.Address), SimilarityToTarget(targetAddress, b.Candidate.Address)
		if ja != jb {
			return ja > jb
		}
		return a.Candidate.Address < b.Candidate.Address
	})
}

// floorAreaBand buckets the distance between a candidate's floor area and
// the known value into widening tolerance bands; lower is closer. Missing
// candidate data lands in the last band.
func floorAreaBand(area, known float64) int {
	if area <= 0 || known <= 0 {
		return 5
	}
	diff := area - known
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff == 0:
		return 0
	case diff <= 2:
		return 1
	case diff <= 10:
		return 2
	case diff <= 50:
		return 3
	default:
		return 4
	}
}

// SimilarityToTarget is the Jaro-Winkler similarity between a candidate
// address and the target, used by callers reporting ambiguous pools.
func SimilarityToTarget(targetAddress, candidateAddress string) float64 {
	a := strings.ToLower(strings.TrimSpace(targetAddress))
	b := strings.ToLower(strings.TrimSpace(candidateAddress))
	if a == "" || b == "" {
		return 0
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}
