package engine

import "fmt"

// ============================================================================
// TABLE BUILDER: Produces TableData from an aggregation result
// ============================================================================

// TableData defines how to render a table.
type TableData struct {
	Title   string     `json:"title"`
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Summary *Summary   `json:"summary,omitempty"`
}

// Column defines a table column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`  // "text", "number"
	Align string `json:"align"` // "left", "right", "center"
}

// Summary provides totals for a table.
type Summary struct {
	Label  string            `json:"label"`
	Values map[string]string `json:"values"`
}

// BuildTable renders one row per result key: dimension cells, measure
// cells, then the group's row count.
func BuildTable(title string, r *Result, dims, measures []FieldSpec) *TableData {
	if r.Len() == 0 {
		return &TableData{
			Title:   title,
			Columns: []Column{},
			Rows:    [][]string{},
		}
	}

	columns := make([]Column, 0, len(dims)+len(measures)+1)
	for _, d := range dims {
		columns = append(columns, Column{Key: d.Key, Label: d.DisplayLabel(), Type: "text", Align: "left"})
	}
	for _, m := range measures {
		columns = append(columns, Column{Key: m.Key, Label: m.DisplayLabel(), Type: "number", Align: "right"})
	}
	columns = append(columns, Column{Key: "count", Label: "Count", Type: "number", Align: "center"})

	rows := make([][]string, 0, r.Len())
	var totalCount int
	for _, key := range r.Keys {
		g := r.Groups[key]
		row := make([]string, 0, len(columns))
		for _, d := range dims {
			row = append(row, g.Meta[d.Key].Text())
		}
		for _, m := range measures {
			row = append(row, FormatNumber(g.Values[m.Key]))
		}
		row = append(row, fmt.Sprintf("%d", g.Count))
		rows = append(rows, row)
		totalCount += g.Count
	}

	totals := Totals(r, measures)
	summary := &Summary{
		Label:  "Total",
		Values: map[string]string{"count": fmt.Sprintf("%d", totalCount)},
	}
	for _, m := range measures {
		summary.Values[m.Key] = FormatNumber(totals[m.Key])
	}

	return &TableData{
		Title:   title,
		Columns: columns,
		Rows:    rows,
		Summary: summary,
	}
}
