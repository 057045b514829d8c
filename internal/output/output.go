// Package output serializes the processed dataset back to CSV, target row
// first, comparables in rank order, with source links emitted as
// spreadsheet hyperlink formulas.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/comps-engine/internal/record"
)

// Canonical column order; pass-through attributes follow alphabetically.
var canonicalColumns = []string{
	record.FieldAddress,
	record.FieldPostcode,
	record.FieldPrice,
	record.FieldFloorAreaSqFt,
	record.FieldFloorAreaSqm,
	record.FieldBedrooms,
	record.FieldSaleDate,
	record.FieldDistanceMiles,
	record.FieldRanking,
	record.FieldListingURL,
	record.FieldCertificateURL,
	record.FieldNeedsReview,
}

// Labels shown to link cells instead of raw URLs.
var urlLabels = map[string]string{
	record.FieldListingURL:     "Listing",
	record.FieldCertificateURL: "EPC",
}

// Writer serializes datasets.
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates a Writer.
func NewWriter(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{logger: logger}
}

// WriteFile writes the dataset to a CSV file.
func (w *Writer) WriteFile(path string, target record.PropertyRecord, comparables []record.PropertyRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := w.Write(f, target, comparables); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Write serializes the target followed by the comparables in their given
// (ranked) order.
func (w *Writer) Write(out io.Writer, target record.PropertyRecord, comparables []record.PropertyRecord) error {
	all := make([]record.PropertyRecord, 0, len(comparables)+1)
	if target != nil {
		all = append(all, target)
	}
	all = append(all, comparables...)

	columns := w.columns(all)
	cw := csv.NewWriter(out)

	header := make([]string, 0, len(columns)+1)
	header = append(header, "Role")
	header = append(header, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range all {
		row := make([]string, 0, len(columns)+1)
		role := "Comparable"
		if r.IsTarget() {
			role = "Target"
		}
		row = append(row, role)
		for _, col := range columns {
			row = append(row, cellValue(r, col))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	w.logger.Info("output written", zap.Int("rows", len(all)), zap.Int("columns", len(columns)+1))
	return nil
}

// columns returns the canonical columns present anywhere in the dataset,
// then the remaining pass-through attributes sorted by name.
func (w *Writer) columns(records []record.PropertyRecord) []string {
	present := map[string]bool{}
	for _, r := range records {
		for _, field := range r.Fields() {
			present[field] = true
		}
	}
	delete(present, record.FieldIsTarget)

	var columns []string
	for _, col := range canonicalColumns {
		if present[col] {
			columns = append(columns, col)
			delete(present, col)
		}
	}
	var extra []string
	for col := range present {
		extra = append(extra, col)
	}
	sort.Strings(extra)
	return append(columns, extra...)
}

func cellValue(r record.PropertyRecord, field string) string {
	value := r.String(field)
	if value == "" {
		return ""
	}
	if label, ok := urlLabels[field]; ok {
		return Hyperlink(value, label)
	}
	if strings.HasPrefix(field, "URL ") {
		return Hyperlink(value, strings.TrimPrefix(field, "URL "))
	}
	return value
}

// Hyperlink renders a spreadsheet HYPERLINK formula, escaping embedded
// quotes so the formula survives round-tripping.
func Hyperlink(url, label string) string {
	esc := func(s string) string { return strings.ReplaceAll(s, `"`, `""`) }
	return fmt.Sprintf(`=HYPERLINK("%s","%s")`, esc(url), esc(label))
}
