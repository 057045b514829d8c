package record

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Canonical attribute names understood by the engine. Any other key on a
// record is an opaque pass-through attribute.
const (
	FieldAddress        = "Address"
	FieldPostcode       = "Postcode"
	FieldPrice          = "Price"
	FieldFloorAreaSqFt  = "FloorAreaSqFt"
	FieldFloorAreaSqm   = "FloorAreaSqm"
	FieldBedrooms       = "Bedrooms"
	FieldSaleDate       = "SaleDate"
	FieldDistanceMiles  = "DistanceMiles"
	FieldIsTarget       = "IsTarget"
	FieldRanking        = "Ranking"
	FieldNeedsReview    = "NeedsReview"
	FieldListingURL     = "ListingURL"
	FieldCertificateURL = "CertificateURL"
)

// SqmToSqFt converts square metres to square feet.
const SqmToSqFt = 10.7639

// Date layouts accepted for SaleDate, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02 Jan 2006",
	"Jan 2006",
	"January 2006",
}

// PropertyRecord is a mapping from attribute names to scalar values
// (string, float64, int, bool). The zero value is unusable; use New.
type PropertyRecord map[string]any

// New returns an empty record.
func New() PropertyRecord {
	return PropertyRecord{}
}

// Clone returns a shallow copy of the record.
func (r PropertyRecord) Clone() PropertyRecord {
	out := make(PropertyRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields returns the record's attribute names in sorted order.
func (r PropertyRecord) Fields() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether the field is present with a non-empty value.
func (r PropertyRecord) Has(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Set stores a value, deleting the field when given nil or an empty string.
func (r PropertyRecord) Set(field string, value any) {
	if value == nil {
		delete(r, field)
		return
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		delete(r, field)
		return
	}
	r[field] = value
}

// String returns the field rendered as a string, "" when absent.
func (r PropertyRecord) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Float returns the field as a float64 and whether it was present and
// parseable. String values may carry currency symbols and thousands
// separators from the spreadsheet.
func (r PropertyRecord) Float(field string) (float64, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		return ParseNumber(t)
	}
	return 0, false
}

// Int returns the field as an int, truncating fractional values.
func (r PropertyRecord) Int(field string) (int, bool) {
	f, ok := r.Float(field)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool returns the field as a bool; absent fields are false.
func (r PropertyRecord) Bool(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y":
			return true
		}
	}
	return false
}

// Date returns the field parsed as a date using the accepted layouts.
func (r PropertyRecord) Date(field string) (time.Time, bool) {
	s := r.String(field)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FloorAreaSqFt returns the best available floor area in square feet,
// converting from square metres when only that is present.
func (r PropertyRecord) FloorAreaSqFt() (float64, bool) {
	if sqft, ok := r.Float(FieldFloorAreaSqFt); ok && sqft > 0 {
		return sqft, true
	}
	if sqm, ok := r.Float(FieldFloorAreaSqm); ok && sqm > 0 {
		return sqm * SqmToSqFt, true
	}
	return 0, false
}

// IsTarget reports whether the record is the target property.
func (r PropertyRecord) IsTarget() bool {
	return r.Bool(FieldIsTarget)
}

// AppendReview appends a reason to the NeedsReview field, joining multiple
// reasons with "; ".
func (r PropertyRecord) AppendReview(reason string) {
	if reason == "" {
		return
	}
	if existing := r.String(FieldNeedsReview); existing != "" {
		r[FieldNeedsReview] = existing + "; " + reason
		return
	}
	r[FieldNeedsReview] = reason
}

// ParseNumber parses a spreadsheet-style number, tolerating currency
// symbols, thousands separators and surrounding whitespace.
func ParseNumber(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "£")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MergeConflict records a field whose values disagreed during a duplicate
// merge. Both values stay discoverable: the first on the record itself, the
// rest in the conflict annotation.
type MergeConflict struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// Summary renders the conflict for the NeedsReview field,
// e.g. "FloorAreaSqFt conflict: 2390 vs 797".
func (c MergeConflict) Summary() string {
	return fmt.Sprintf("%s conflict: %s", c.Field, strings.Join(c.Values, " vs "))
}
