// Package target locates the single "this is the target" record in an
// ingested dataset and partitions it from the comparables.
package target

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/comps-engine/internal/address"
	"github.com/comps-engine/internal/record"
)

// Fatal resolution errors. A dataset without exactly one well-formed target
// cannot be processed, so callers abort the run on any of these.
var (
	ErrNoTarget          = errors.New("no target marker found in dataset")
	ErrMultipleTargets   = errors.New("multiple target markers found in dataset")
	ErrTargetMissingData = errors.New("target record needs an address and postcode, or a listing URL")
)

// Options configures marker detection.
type Options struct {
	// Markers is the vocabulary of target markers, longest-first matching.
	Markers []string `mapstructure:"markers"`
	// SimilarityThreshold is the minimum normalized levenshtein similarity
	// for a field to count as a fuzzy marker match. Zero selects the
	// default; a threshold of 0 would make every field a marker, so it is
	// not a configurable setting.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// DefaultOptions returns the standard marker vocabulary and threshold.
func DefaultOptions() Options {
	return Options{
		Markers: []string{
			"subject property is",
			"subject property",
			"target property",
			"target is",
			"target:",
			"target",
		},
		SimilarityThreshold: 0.80,
	}
}

// Identifier scans records and pre-header rows for a target marker.
type Identifier struct {
	opts   Options
	logger *zap.Logger
}

// NewIdentifier creates an Identifier, filling zero options with defaults.
func NewIdentifier(opts Options, logger *zap.Logger) *Identifier {
	defaults := DefaultOptions()
	if len(opts.Markers) == 0 {
		opts.Markers = defaults.Markers
	}
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Identifier{opts: opts, logger: logger}
}

type hit struct {
	recordIdx int // -1 for pre-header hits
	field     string
	text      string
	marker    string
}

// Identify scans every field of every record, and every raw pre-header row,
// for a target marker. Exactly one hit is required. The resolved target is
// tagged IsTarget and removed from the comparable set; a pre-header hit
// synthesizes a fresh target record from the marker text.
func (id *Identifier) Identify(records []record.PropertyRecord, preHeader [][]string) (record.PropertyRecord, []record.PropertyRecord, error) {
	var hits []hit

	for i, r := range records {
		for _, field := range r.Fields() {
			text := r.String(field)
			marker, ok := id.matchMarker(text)
			if !ok {
				continue
			}
			hits = append(hits, hit{recordIdx: i, field: field, text: text, marker: marker})
			break // one hit per record
		}
	}
	for _, row := range preHeader {
		for _, cell := range row {
			marker, ok := id.matchMarker(cell)
			if !ok {
				continue
			}
			hits = append(hits, hit{recordIdx: -1, text: cell, marker: marker})
			break
		}
	}

	switch len(hits) {
	case 0:
		return nil, nil, ErrNoTarget
	case 1:
	default:
		return nil, nil, fmt.Errorf("%w: %d markers", ErrMultipleTargets, len(hits))
	}

	h := hits[0]
	var tgt record.PropertyRecord
	var comparables []record.PropertyRecord

	if h.recordIdx >= 0 {
		tgt = records[h.recordIdx]
		for i, r := range records {
			if i != h.recordIdx {
				comparables = append(comparables, r)
			}
		}
		id.applyMarkerText(tgt, h)
	} else {
		tgt = record.New()
		id.applyMarkerText(tgt, h)
		comparables = append(comparables, records...)
	}
	tgt.Set(record.FieldIsTarget, true)

	if !id.hasLookupData(tgt) {
		return nil, nil, ErrTargetMissingData
	}

	id.logger.Info("target identified",
		zap.String("marker", h.marker),
		zap.String("address", tgt.String(record.FieldAddress)),
		zap.String("postcode", tgt.String(record.FieldPostcode)),
		zap.Int("comparables", len(comparables)))

	return tgt, comparables, nil
}

// matchMarker reports whether the text is a target marker: either the
// marker appears as a substring of the lowercase text, or the whole text is
// similar to the marker above the threshold.
func (id *Identifier) matchMarker(text string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return "", false
	}
	for _, m := range id.opts.Markers {
		if strings.Contains(t, m) {
			return m, true
		}
		if similarity(t, m) >= id.opts.SimilarityThreshold {
			return m, true
		}
	}
	return "", false
}

// applyMarkerText strips the marker prefix from the matched field, extracts
// any embedded address and postcode, and clears the marker text so it never
// leaks into output.
func (id *Identifier) applyMarkerText(tgt record.PropertyRecord, h hit) {
	lower := strings.ToLower(h.text)
	idx := strings.Index(lower, h.marker)
	if idx < 0 {
		// Fuzzy match on the whole field: nothing embedded to recover.
		if h.field != "" && h.field != record.FieldAddress {
			tgt.Set(h.field, nil)
		}
		return
	}

	rest := h.text[idx+len(h.marker):]
	rest = strings.TrimLeft(rest, " \t:,-–")
	rest = strings.TrimPrefix(rest, "is ")
	rest = strings.TrimSpace(rest)

	if h.field != "" {
		tgt.Set(h.field, nil)
	}
	if rest == "" {
		return
	}

	postcode, remainder := address.ExtractPostcode(rest)
	if remainder != "" {
		tgt.Set(record.FieldAddress, remainder)
	}
	if postcode != "" {
		tgt.Set(record.FieldPostcode, postcode)
	}
}

// hasLookupData reports whether the target carries enough data to be
// resolved downstream: an address with postcode, or a listing URL.
func (id *Identifier) hasLookupData(tgt record.PropertyRecord) bool {
	if tgt.Has(record.FieldAddress) && tgt.Has(record.FieldPostcode) {
		return true
	}
	return tgt.Has(record.FieldListingURL)
}

// similarity is the normalized levenshtein similarity of two strings in
// [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
