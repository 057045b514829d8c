package output

import (
	"bytes"
	"encoding/csv"
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

func TestWriteTargetFirstThenRankOrder(t *testing.T) {
	target := newRecord(map[string]any{
		record.FieldAddress:  "54 Smith Street",
		record.FieldPostcode: "DN15 7AB",
		record.FieldIsTarget: true,
	})
	comparables := []record.PropertyRecord{
		newRecord(map[string]any{record.FieldAddress: "12 Oak Road", record.FieldRanking: 87}),
		newRecord(map[string]any{record.FieldAddress: "1 Elm Close", record.FieldRanking: 54}),
	}

	var buf bytes.Buffer
	if err := NewWriter(nil).Write(&buf, target, comparables); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("re-read output: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[1][0] != "Target" || rows[2][0] != "Comparable" {
		t.Errorf("role column wrong: %v / %v", rows[1][0], rows[2][0])
	}
	if rows[2][1] != "12 Oak Road" || rows[3][1] != "1 Elm Close" {
		t.Errorf("comparable order not preserved: %v, %v", rows[2][1], rows[3][1])
	}
}

func TestWriteHyperlinks(t *testing.T) {
	comp := newRecord(map[string]any{
		record.FieldAddress:        "12 Oak Road",
		record.FieldListingURL:     "https://www.rightmove.co.uk/properties/123",
		record.FieldCertificateURL: "https://example.com/energy-certificate/abc",
	})

	var buf bytes.Buffer
	if err := NewWriter(nil).Write(&buf, nil, []record.PropertyRecord{comp}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `=HYPERLINK(""https://www.rightmove.co.uk/properties/123"",""Listing"")`) {
		// The CSV writer doubles quotes inside quoted cells; check the
		// formula survives a round-trip instead of matching raw bytes.
		rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		if err != nil {
			t.Fatalf("re-read output: %v", err)
		}
		found := false
		for _, row := range rows {
			for _, cell := range row {
				if cell == `=HYPERLINK("https://www.rightmove.co.uk/properties/123","Listing")` {
					found = true
				}
			}
		}
		if !found {
			t.Errorf("listing hyperlink formula missing from output:\n%s", out)
		}
	}
}

func TestHyperlinkEscapesQuotes(t *testing.T) {
	got := Hyperlink(`https://example.com/a"b`, "Link")
	want := `=HYPERLINK("https://example.com/a""b","Link")`
	if got != want {
		t.Errorf("Hyperlink() = %q, want %q", got, want)
	}
}
