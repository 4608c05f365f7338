package helpers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/spektr-org/pivot/engine"
	"github.com/spektr-org/pivot/schema"
)

// ============================================================================
// CSV HELPER: Parses CSV data into []engine.Row
// ============================================================================
// Consumer reads the CSV from wherever it lives (file, upload, object
// store). This helper converts the raw bytes into rows using the schema.
// ============================================================================

// ReadCSV splits CSV data into a header and data records. A leading UTF-8
// byte-order mark is dropped; malformed records are skipped.
func ReadCSV(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	var records [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				continue // skip malformed rows
			}
			return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		records = append(records, row)
	}
	return headers, records, nil
}

// ParseCSV parses CSV bytes into rows using sch for classification.
// Columns the schema does not name are dropped.
func ParseCSV(data []byte, sch schema.Config) ([]engine.Row, error) {
	headers, records, err := ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return BuildRows(headers, records, sch), nil
}

// ParseCSVAuto discovers the schema from the data, then parses with it.
func ParseCSVAuto(data []byte, opts ...schema.DiscoverOptions) ([]engine.Row, *schema.Config, error) {
	opt := schema.DefaultDiscoverOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	headers, records, err := ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	sch, err := schema.DiscoverFromTable(headers, records, opt)
	if err != nil {
		return nil, nil, err
	}
	sch.DiscoveredFrom = "CSV"
	return BuildRows(headers, records, *sch), sch, nil
}

// BuildRows converts raw records into engine rows. Dimension cells become
// strings (null tokens become null). Measure cells become numbers; a
// measure cell that cannot be read is kept as its raw string so filters
// and sums can treat it as non-numeric.
func BuildRows(headers []string, records [][]string, sch schema.Config) []engine.Row {
	type colMapping struct {
		key       string
		isMeasure bool
	}

	dimSet := make(map[string]bool, len(sch.Dimensions))
	for _, d := range sch.Dimensions {
		dimSet[d.Key] = true
	}
	measSet := make(map[string]bool, len(sch.Measures))
	for _, m := range sch.Measures {
		measSet[m.Key] = true
	}

	mappings := make([]*colMapping, len(headers))
	for i, h := range headers {
		key := strings.TrimSpace(h)
		switch {
		case dimSet[key]:
			mappings[i] = &colMapping{key: key}
		case measSet[key]:
			mappings[i] = &colMapping{key: key, isMeasure: true}
		}
		// Unmapped columns are silently skipped
	}

	rows := make([]engine.Row, 0, len(records))
	for _, rec := range records {
		row := make(engine.Row, len(sch.Dimensions)+len(sch.Measures))
		for i, m := range mappings {
			if m == nil {
				continue
			}
			val := ""
			if i < len(rec) {
				val = strings.TrimSpace(rec[i])
			}
			row[m.key] = cellValue(val, m.isMeasure)
		}
		rows = append(rows, row)
	}
	return rows
}

func cellValue(raw string, isMeasure bool) engine.Value {
	if schema.IsNullToken(raw) {
		return engine.Null()
	}
	if isMeasure {
		if f, ok := schema.ParseNumber(raw); ok {
			return engine.Number(f)
		}
	}
	return engine.String(raw)
}
