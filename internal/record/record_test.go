package record

import (
	"testing"
	"time"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"105000", 105000, true},
		{"£105,000", 105000, true},
		{"$1,250,000.50", 1250000.50, true},
		{"  945 ", 945, true},
		{"three", 0, false},
		{"", 0, false},
		{"£", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFloorAreaSqFt(t *testing.T) {
	r := New()
	if _, ok := r.FloorAreaSqFt(); ok {
		t.Error("empty record reported a floor area")
	}

	r.Set(FieldFloorAreaSqm, 100.0)
	got, ok := r.FloorAreaSqFt()
	if !ok || got < 1076.38 || got > 1076.40 {
		t.Errorf("sqm conversion = %v, %v; want ~1076.39", got, ok)
	}

	// Square feet takes precedence when both are present.
	r.Set(FieldFloorAreaSqFt, 850.0)
	if got, _ := r.FloorAreaSqFt(); got != 850 {
		t.Errorf("FloorAreaSqFt = %v, want 850", got)
	}
}

func TestDateLayouts(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"15/01/2024", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"15 Jan 2024", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"January 2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		r := New()
		r.Set(FieldSaleDate, tt.input)
		got, ok := r.Date(FieldSaleDate)
		if !ok || !got.Equal(tt.want) {
			t.Errorf("Date(%q) = %v, %v; want %v", tt.input, got, ok, tt.want)
		}
	}

	r := New()
	r.Set(FieldSaleDate, "soon")
	if _, ok := r.Date(FieldSaleDate); ok {
		t.Error("unparseable date reported ok")
	}
}

func TestSetDeletesEmptyValues(t *testing.T) {
	r := New()
	r.Set(FieldAddress, "12 King Street")
	r.Set(FieldAddress, "  ")
	if r.Has(FieldAddress) {
		t.Error("blank Set did not delete the field")
	}
	r.Set(FieldPrice, 250000.0)
	r.Set(FieldPrice, nil)
	if r.Has(FieldPrice) {
		t.Error("nil Set did not delete the field")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := New()
	r.Set(FieldAddress, "12 King Street")
	c := r.Clone()
	c.Set(FieldAddress, "7 Park Row")
	if r.String(FieldAddress) != "12 King Street" {
		t.Errorf("clone mutation leaked into original: %q", r.String(FieldAddress))
	}
}

func TestAppendReview(t *testing.T) {
	r := New()
	r.AppendReview("Price conflict: 250000 vs 260000")
	r.AppendReview("ambiguous certificate match: 2 candidates")
	r.AppendReview("")
	want := "Price conflict: 250000 vs 260000; ambiguous certificate match: 2 candidates"
	if got := r.String(FieldNeedsReview); got != want {
		t.Errorf("NeedsReview = %q, want %q", got, want)
	}
}

func TestMergeConflictSummary(t *testing.T) {
	c := MergeConflict{Field: FieldFloorAreaSqFt, Values: []string{"2390", "797"}}
	if got := c.Summary(); got != "FloorAreaSqFt conflict: 2390 vs 797" {
		t.Errorf("Summary = %q", got)
	}
}
