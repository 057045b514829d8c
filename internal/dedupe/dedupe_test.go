package dedupe

import (
	"strings"
	"testing"

	"github.com/comps-engine/internal/record"
)

func newRecord(fields map[string]any) record.PropertyRecord {
	r := record.New()
	for k, v := range fields {
		r.Set(k, v)
	}
	return r
}

func TestResolveMergesPunctuationVariants(t *testing.T) {
	records := []record.PropertyRecord{
		newRecord(map[string]any{record.FieldAddress: "1 Oak St", record.FieldPrice: 100000.0}),
		newRecord(map[string]any{record.FieldAddress: "1, Oak St", record.FieldPrice: 105000.0}),
	}

	rs := NewResolver(Options{}, nil)
	out := rs.Resolve(records)

	if len(out) != 1 {
		t.Fatalf("Resolve() returned %d records, want 1", len(out))
	}
	merged := out[0]

	review := merged.String(record.FieldNeedsReview)
	if !strings.Contains(review, "Price conflict") {
		t.Errorf("NeedsReview = %q, want a Price conflict annotation", review)
	}
	// Both values stay discoverable: first on the field, second in the
	// annotation.
	if price, _ := merged.Float(record.FieldPrice); price != 100000 {
		t.Errorf("merged price = %v, want first value 100000", price)
	}
	if !strings.Contains(review, "100000") || !strings.Contains(review, "105000") {
		t.Errorf("NeedsReview = %q, want both original values retained", review)
	}
}

func TestResolveFillsMissingFields(t *testing.T) {
	records := []record.PropertyRecord{
		newRecord(map[string]any{record.FieldAddress: "42 High Street", record.FieldPrice: 250000.0}),
		newRecord(map[string]any{record.FieldAddress: "42 High Street", record.FieldBedrooms: 3}),
	}

	out := NewResolver(Options{}, nil).Resolve(records)
	if len(out) != 1 {
		t.Fatalf("Resolve() returned %d records, want 1", len(out))
	}
	if beds, _ := out[0].Int(record.FieldBedrooms); beds != 3 {
		t.Errorf("bedrooms = %d, want 3", beds)
	}
	if out[0].Has(record.FieldNeedsReview) {
		t.Errorf("unexpected review flag: %q", out[0].String(record.FieldNeedsReview))
	}
}

func TestResolveFloorAreaTolerance(t *testing.T) {
	tests := []struct {
		name         string
		a, b         float64
		wantConflict bool
	}{
		{"within two percent", 1000, 1015, false},
		{"beyond tolerance", 2390, 797, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []record.PropertyRecord{
				newRecord(map[string]any{record.FieldAddress: "5 Mill Lane", record.FieldFloorAreaSqFt: tt.a}),
				newRecord(map[string]any{record.FieldAddress: "5 Mill Lane", record.FieldFloorAreaSqFt: tt.b}),
			}
			out := NewResolver(Options{}, nil).Resolve(records)
			if len(out) != 1 {
				t.Fatalf("Resolve() returned %d records, want 1", len(out))
			}
			gotConflict := strings.Contains(out[0].String(record.FieldNeedsReview), "FloorAreaSqFt conflict")
			if gotConflict != tt.wantConflict {
				t.Errorf("conflict = %v, want %v (review %q)", gotConflict, tt.wantConflict,
					out[0].String(record.FieldNeedsReview))
			}
		})
	}
}

func TestResolveURLIdentityFallback(t *testing.T) {
	records := []record.PropertyRecord{
		newRecord(map[string]any{record.FieldListingURL: "https://www.rightmove.co.uk/properties/123"}),
		newRecord(map[string]any{record.FieldListingURL: "https://www.rightmove.co.uk/properties/123", record.FieldPrice: 90000.0}),
	}
	out := NewResolver(Options{}, nil).Resolve(records)
	if len(out) != 1 {
		t.Fatalf("Resolve() returned %d records, want 1", len(out))
	}
	if price, _ := out[0].Float(record.FieldPrice); price != 90000 {
		t.Errorf("price = %v, want 90000", price)
	}
}

func TestResolvePreservesProviderURLs(t *testing.T) {
	records := []record.PropertyRecord{
		newRecord(map[string]any{
			record.FieldAddress:    "9 Station Road",
			record.FieldListingURL: "https://www.rightmove.co.uk/properties/123",
		}),
		newRecord(map[string]any{
			record.FieldAddress:    "9 Station Road",
			record.FieldListingURL: "https://www.zoopla.co.uk/for-sale/details/456",
		}),
	}
	out := NewResolver(Options{}, nil).Resolve(records)
	if len(out) != 1 {
		t.Fatalf("Resolve() returned %d records, want 1", len(out))
	}
	merged := out[0]
	if got := merged.String(record.FieldListingURL); got != "https://www.rightmove.co.uk/properties/123" {
		t.Errorf("primary listing URL = %q", got)
	}
	if got := merged.String("URL zoopla.co.uk"); got != "https://www.zoopla.co.uk/for-sale/details/456" {
		t.Errorf("zoopla URL not preserved, got %q", got)
	}
}

func TestResolveCarriesAbsorbedAnnotations(t *testing.T) {
	flagged := newRecord(map[string]any{record.FieldAddress: "1 Oak St", record.FieldPrice: 105000.0})
	flagged.AppendReview("ambiguous certificate match: 2 candidates")
	records := []record.PropertyRecord{
		newRecord(map[string]any{record.FieldAddress: "1 Oak St", record.FieldPrice: 100000.0}),
		flagged,
	}

	out := NewResolver(Options{}, nil).Resolve(records)
	if len(out) != 1 {
		t.Fatalf("Resolve() returned %d records, want 1", len(out))
	}
	review := out[0].String(record.FieldNeedsReview)
	if !strings.Contains(review, "ambiguous certificate match") {
		t.Errorf("NeedsReview = %q, want the absorbed record's annotation carried over", review)
	}
	if !strings.Contains(review, "Price conflict") {
		t.Errorf("NeedsReview = %q, want the merge conflict recorded as well", review)
	}
}

func TestResolveKeepsDistinctProperties(t *testing.T) {
	records := []record.PropertyRecord{
		newRecord(map[string]any{record.FieldAddress: "303 Wharf Road"}),
		newRecord(map[string]any{record.FieldAddress: "305 Wharf Road"}),
		newRecord(map[string]any{record.FieldAddress: "307 Wharf Road"}),
	}
	out := NewResolver(Options{}, nil).Resolve(records)
	if len(out) != 3 {
		t.Fatalf("Resolve() returned %d records, want 3", len(out))
	}
	// Deterministic first-appearance order.
	for i, want := range []string{"303 Wharf Road", "305 Wharf Road", "307 Wharf Road"} {
		if got := out[i].String(record.FieldAddress); got != want {
			t.Errorf("out[%d] = %q, want %q", i, got, want)
		}
	}
}
