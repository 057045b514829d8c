// Package dedupe groups records describing the same physical property and
// merges each group into one record, annotating unresolved field conflicts.
package dedupe

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/comps-engine/internal/address"
	"github.com/comps-engine/internal/record"
)

// Options configures merge tolerances.
type Options struct {
	// FloorAreaTolerance is the relative difference under which two floor
	// area values are treated as equal. Zero selects the default; exact-only
	// comparison is not a configurable setting.
	FloorAreaTolerance float64 `mapstructure:"floor_area_tolerance"`
}

// DefaultOptions returns the standard tolerances.
func DefaultOptions() Options {
	return Options{FloorAreaTolerance: 0.02}
}

// Resolver merges duplicate property records.
type Resolver struct {
	opts   Options
	logger *zap.Logger
}

// NewResolver creates a Resolver, filling zero options with defaults.
func NewResolver(opts Options, logger *zap.Logger) *Resolver {
	if opts.FloorAreaTolerance == 0 {
		opts.FloorAreaTolerance = DefaultOptions().FloorAreaTolerance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{opts: opts, logger: logger}
}

// Resolve groups records by normalized address signature (with a
// URL-identity fallback for records known only by a link) and merges each
// group into its first member. Output order follows first appearance, so
// repeated calls over the same input produce identical results. No data is
// lost: disagreeing values stay discoverable through MergeConflict
// annotations on the merged record.
func (rs *Resolver) Resolve(records []record.PropertyRecord) []record.PropertyRecord {
	type group struct {
		first   int
		members []record.PropertyRecord
	}
	var order []string
	groups := make(map[string]*group)

	for i, r := range records {
		key := signature(r)
		if key == "" {
			// No usable signature: the record stands alone.
			key = fmt.Sprintf("anon#%d", i)
		}
		g, ok := groups[key]
		if !ok {
			g = &group{first: i}
			groups[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, r)
	}

	out := make([]record.PropertyRecord, 0, len(order))
	for _, key := range order {
		g := groups[key]
		merged := g.members[0]
		for _, other := range g.members[1:] {
			conflicts := rs.merge(merged, other)
			for _, c := range conflicts {
				merged.AppendReview(c.Summary())
			}
		}
		if len(g.members) > 1 {
			rs.logger.Debug("merged duplicate records",
				zap.String("address", merged.String(record.FieldAddress)),
				zap.Int("absorbed", len(g.members)-1))
		}
		out = append(out, merged)
	}
	return out
}

// signature builds the grouping key: comparison word-bag plus house-number
// token plus postcode. Records without an address fall back to their
// listing URL so link-only duplicates still group together.
func signature(r record.PropertyRecord) string {
	addr := r.String(record.FieldAddress)
	if addr == "" {
		if u := r.String(record.FieldListingURL); u != "" {
			return "url|" + strings.TrimRight(strings.ToLower(u), "/")
		}
		return ""
	}
	tokens := address.NormalizeForComparison(addr)
	number := address.ExtractHouseNumber(addr)
	postcode := strings.ToUpper(strings.ReplaceAll(r.String(record.FieldPostcode), " ", ""))
	return strings.Join(tokens, " ") + "|" + number.String() + "|" + postcode
}

// merge folds other into dst field by field and returns the conflicts.
// Policy: a lone non-empty value is taken; equal values (within tolerance
// for floor areas) are kept as-is; disagreeing values keep the first and
// record a conflict. Listing URLs from different providers are preserved
// side by side under provider-specific keys - losing a source URL during a
// merge is a correctness bug, not an acceptable simplification.
func (rs *Resolver) merge(dst, other record.PropertyRecord) []record.MergeConflict {
	var conflicts []record.MergeConflict

	for _, field := range other.Fields() {
		switch field {
		case record.FieldRanking:
			continue
		case record.FieldNeedsReview:
			// An annotation on the absorbed record still needs a human.
			if dst.String(field) != other.String(field) {
				dst.AppendReview(other.String(field))
			}
			continue
		case record.FieldIsTarget:
			if other.Bool(field) {
				dst.Set(field, true)
			}
			continue
		}

		if !dst.Has(field) {
			dst.Set(field, other[field])
			continue
		}
		if !other.Has(field) {
			continue
		}
		if rs.equal(field, dst, other) {
			continue
		}

		if isURLField(field) {
			preserveProviderURL(dst, other.String(field))
			continue
		}

		conflicts = append(conflicts, record.MergeConflict{
			Field:  field,
			Values: []string{dst.String(field), other.String(field)},
		})
	}
	return conflicts
}

// equal compares one field's values across two records. Addresses compare
// by normalized signature, floor areas within tolerance, other numbers
// exactly, everything else as case-folded strings.
func (rs *Resolver) equal(field string, a, b record.PropertyRecord) bool {
	switch field {
	case record.FieldAddress:
		return strings.Join(address.NormalizeForComparison(a.String(field)), " ") ==
			strings.Join(address.NormalizeForComparison(b.String(field)), " ")
	case record.FieldFloorAreaSqFt, record.FieldFloorAreaSqm:
		av, aok := a.Float(field)
		bv, bok := b.Float(field)
		if !aok || !bok {
			return false
		}
		if av == bv {
			return true
		}
		base := av
		if base == 0 {
			return false
		}
		diff := av - bv
		if diff < 0 {
			diff = -diff
		}
		return diff/base <= rs.opts.FloorAreaTolerance
	}

	if av, aok := a.Float(field); aok {
		if bv, bok := b.Float(field); bok {
			return av == bv
		}
	}
	return strings.EqualFold(strings.TrimSpace(a.String(field)), strings.TrimSpace(b.String(field)))
}

func isURLField(field string) bool {
	return field == record.FieldListingURL || field == record.FieldCertificateURL
}

// preserveProviderURL stores an extra source URL under a key derived from
// its provider host, e.g. "URL rightmove.co.uk".
func preserveProviderURL(dst record.PropertyRecord, raw string) {
	key := "URL " + providerHost(raw)
	if dst.Has(key) && !strings.EqualFold(dst.String(key), raw) {
		// Same provider twice: number the key rather than overwrite.
		n := 2
		for dst.Has(fmt.Sprintf("%s #%d", key, n)) {
			n++
		}
		key = fmt.Sprintf("%s #%d", key, n)
	}
	dst.Set(key, raw)
}

func providerHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
