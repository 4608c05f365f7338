package engine

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ============================================================================
// EXPORT: CSV text of an aggregation result
// ============================================================================
// Header: dimension keys then measure keys. One line per result key in
// sorted order. Cells are joined with "," and lines with "\n", no trailing
// newline. Cells are NOT quoted: a value containing a comma or a line
// break corrupts the file. Use helpers.WriteXLSX when that matters.
// ============================================================================

// ToCSV serializes r using the same dims/measures that produced it.
// Missing meta cells render empty, missing values render 0.
func ToCSV(r *Result, dims, measures []FieldSpec) string {
	lines := make([]string, 0, r.Len()+1)

	header := make([]string, 0, len(dims)+len(measures))
	for _, d := range dims {
		header = append(header, d.Key)
	}
	for _, m := range measures {
		header = append(header, m.Key)
	}
	lines = append(lines, strings.Join(header, ","))

	if r != nil {
		for _, key := range r.Keys {
			g := r.Groups[key]
			cells := make([]string, 0, len(header))
			for _, d := range dims {
				cells = append(cells, g.Meta[d.Key].Text())
			}
			for _, m := range measures {
				cells = append(cells, Number(g.Values[m.Key]).Text())
			}
			lines = append(lines, strings.Join(cells, ","))
		}
	}
	return strings.Join(lines, "\n")
}

// WriteCSV writes ToCSV output prefixed with a UTF-8 byte-order mark so
// spreadsheet tools pick the right encoding for non-ASCII values.
func WriteCSV(w io.Writer, r *Result, dims, measures []FieldSpec) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	if _, err := io.WriteString(tw, ToCSV(r, dims, measures)); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ExportFilename builds "<prefix>_YYYY-MM-DD.<ext>".
func ExportFilename(prefix, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, at.Format("2006-01-02"), strings.TrimPrefix(ext, "."))
}
