// Package ingest reads loosely structured property spreadsheets: it finds
// the header row wherever it is, captures the rows above it verbatim for
// target-marker scanning, and coerces cell values onto property records.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/comps-engine/internal/record"
)

// Dataset is the result of reading one spreadsheet.
type Dataset struct {
	Records []record.PropertyRecord
	// PreHeader holds the raw rows that preceded the detected header row.
	PreHeader [][]string
	// Header holds the resolved column names, canonical where recognized.
	Header []string
}

// Column aliases resolved to canonical field names, compared lowercase
// with punctuation collapsed.
var headerAliases = map[string]string{
	"address":             record.FieldAddress,
	"property address":    record.FieldAddress,
	"full address":        record.FieldAddress,
	"postcode":            record.FieldPostcode,
	"post code":           record.FieldPostcode,
	"price":               record.FieldPrice,
	"sold price":          record.FieldPrice,
	"sale price":          record.FieldPrice,
	"asking price":        record.FieldPrice,
	"floor area":          record.FieldFloorAreaSqFt,
	"floor area sq ft":    record.FieldFloorAreaSqFt,
	"floor area sqft":     record.FieldFloorAreaSqFt,
	"sq ft":               record.FieldFloorAreaSqFt,
	"sqft":                record.FieldFloorAreaSqFt,
	"floor area sqm":      record.FieldFloorAreaSqm,
	"floor area sq m":     record.FieldFloorAreaSqm,
	"sqm":                 record.FieldFloorAreaSqm,
	"bedrooms":            record.FieldBedrooms,
	"beds":                record.FieldBedrooms,
	"sale date":           record.FieldSaleDate,
	"sold date":           record.FieldSaleDate,
	"date sold":           record.FieldSaleDate,
	"date":                record.FieldSaleDate,
	"distance":            record.FieldDistanceMiles,
	"distance miles":      record.FieldDistanceMiles,
	"url":                 record.FieldListingURL,
	"link":                record.FieldListingURL,
	"listing":             record.FieldListingURL,
	"listing url":         record.FieldListingURL,
	"epc":                 record.FieldCertificateURL,
	"epc url":             record.FieldCertificateURL,
	"certificate":         record.FieldCertificateURL,
	"needs review":        record.FieldNeedsReview,
	"ranking":             record.FieldRanking,
}

// Fields coerced to numbers on read.
var numericFields = map[string]bool{
	record.FieldPrice:         true,
	record.FieldFloorAreaSqFt: true,
	record.FieldFloorAreaSqm:  true,
	record.FieldBedrooms:      true,
	record.FieldDistanceMiles: true,
	record.FieldRanking:       true,
}

// Reader ingests spreadsheets.
type Reader struct {
	logger *zap.Logger
}

// NewReader creates a Reader.
func NewReader(logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{logger: logger}
}

// ReadFile reads a CSV spreadsheet from disk.
func (rd *Reader) ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	ds, err := rd.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ds, nil
}

// Read ingests CSV data. The header row is the first row in which at least
// two cells resolve to known column aliases; anything above it is kept as
// raw pre-header rows.
func (rd *Reader) Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty spreadsheet")
	}

	headerIdx := -1
	var header []string
	for i, row := range rows {
		if resolved, ok := resolveHeader(row); ok {
			headerIdx, header = i, resolved
			break
		}
	}
	if headerIdx < 0 {
		return nil, fmt.Errorf("no header row found: need at least two recognizable columns")
	}

	ds := &Dataset{Header: header, PreHeader: rows[:headerIdx]}
	for _, row := range rows[headerIdx+1:] {
		if isEmptyRow(row) {
			continue
		}
		rec := record.New()
		for col, cell := range row {
			if col >= len(header) {
				break
			}
			setCell(rec, header[col], cell)
		}
		if len(rec) > 0 {
			ds.Records = append(ds.Records, rec)
		}
	}

	rd.logger.Info("spreadsheet ingested",
		zap.Int("records", len(ds.Records)),
		zap.Int("pre_header_rows", len(ds.PreHeader)),
		zap.Strings("header", header))
	return ds, nil
}

// resolveHeader maps a row's cells through the alias table. The row counts
// as the header when at least two cells resolve.
func resolveHeader(row []string) ([]string, bool) {
	resolved := make([]string, len(row))
	hits := 0
	for i, cell := range row {
		key := normalizeHeaderCell(cell)
		if canonical, ok := headerAliases[key]; ok {
			resolved[i] = canonical
			hits++
			continue
		}
		resolved[i] = strings.TrimSpace(cell)
	}
	return resolved, hits >= 2
}

func normalizeHeaderCell(cell string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(cell)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), " "):
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func setCell(rec record.PropertyRecord, field, cell string) {
	cell = strings.TrimSpace(cell)
	if field == "" || cell == "" {
		return
	}
	if numericFields[field] {
		if f, ok := record.ParseNumber(cell); ok {
			if field == record.FieldBedrooms || field == record.FieldRanking {
				rec.Set(field, int(f))
			} else {
				rec.Set(field, f)
			}
			return
		}
		// Unparseable numeric cell: keep the raw text rather than drop it.
	}
	rec.Set(field, cell)
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
