package helpers

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/spektr-org/pivot/engine"
	"github.com/spektr-org/pivot/schema"
)

// ============================================================================
// XLSX HELPER: Excel workbooks in and out
// ============================================================================
// Reading takes the first sheet, first row as header. Writing produces a
// single-sheet workbook of an aggregation result; unlike engine.ToCSV the
// cells need no escaping.
// ============================================================================

// DefaultSheet is the sheet name used by WriteXLSX.
const DefaultSheet = "自助分析"

// ReadXLSX returns the header and data records of the first sheet.
func ReadXLSX(r io.Reader) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("no sheets found in XLSX data")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("no rows found in sheet %q", sheets[0])
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return headers, rows[1:], nil
}

// ParseXLSX parses workbook bytes into rows using sch.
func ParseXLSX(data []byte, sch schema.Config) ([]engine.Row, error) {
	headers, records, err := ReadXLSX(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return BuildRows(headers, records, sch), nil
}

// ParseXLSXAuto discovers the schema from the first sheet, then parses.
func ParseXLSXAuto(data []byte, opts ...schema.DiscoverOptions) ([]engine.Row, *schema.Config, error) {
	opt := schema.DefaultDiscoverOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	headers, records, err := ReadXLSX(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	sch, err := schema.DiscoverFromTable(headers, records, opt)
	if err != nil {
		return nil, nil, err
	}
	sch.DiscoveredFrom = "XLSX"
	return BuildRows(headers, records, *sch), sch, nil
}

// WriteXLSX writes r as a workbook: a header row of field labels, then one
// row per result key. Measure cells are numeric.
func WriteXLSX(w io.Writer, r *engine.Result, dims, measures []engine.FieldSpec) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), DefaultSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, 0, len(dims)+len(measures))
	for _, d := range dims {
		header = append(header, d.DisplayLabel())
	}
	for _, m := range measures {
		header = append(header, m.DisplayLabel())
	}
	if err := f.SetSheetRow(DefaultSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if r != nil {
		for i, key := range r.Keys {
			g := r.Groups[key]
			cells := make([]interface{}, 0, len(header))
			for _, d := range dims {
				cells = append(cells, g.Meta[d.Key].Text())
			}
			for _, m := range measures {
				cells = append(cells, g.Values[m.Key])
			}
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(DefaultSheet, cell, &cells); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+2, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write XLSX: %w", err)
	}
	return nil
}
