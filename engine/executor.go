package engine

import (
	"errors"
	"fmt"
	"log"
)

// ============================================================================
// EXECUTOR: Query pipeline
// ============================================================================
// Entry point: Execute(query, rows, filters, opts...)
//
// Pipeline:
//   1. Apply the access policy to rows (row-level permission)
//   2. Apply the session filters
//   3. Drop columns the policy hides
//   4. Group and aggregate the visible columns
//   5. Dispatch to builder (table / chart)
// ============================================================================

// Chart types a query can ask for.
const (
	ChartTable = "table"
	ChartBar   = "bar"
	ChartLine  = "line"
	ChartArea  = "area"
)

// ErrUnknownChartType is returned for a chart type outside the list above.
var ErrUnknownChartType = errors.New("unknown chart type")

// Query is what the caller put on the shelves.
type Query struct {
	Dimensions []FieldSpec `json:"dimensions"`
	Measures   []FieldSpec `json:"measures"`
	ChartType  string      `json:"chartType"`
	Title      string      `json:"title,omitempty"`
}

// Report is the render-ready output of Execute.
type Report struct {
	Type        string       `json:"type"` // "table" or "chart"
	Title       string       `json:"title,omitempty"`
	Result      *Result      `json:"result"`
	Dimensions  []FieldSpec  `json:"dimensions"` // visible dimensions
	Measures    []FieldSpec  `json:"measures"`   // visible measures
	TableData   *TableData   `json:"tableData,omitempty"`
	ChartConfig *ChartConfig `json:"chartConfig,omitempty"`
	TotalRows   int          `json:"totalRows"`
	MatchedRows int          `json:"matchedRows"`
}

// Execute runs q against rows with the given filters.
func Execute(q Query, rows []Row, filters Filters, opts ...Option) (*Report, error) {
	cfg := applyOptions(opts)
	q, err := NormalizeQuery(q)
	if err != nil {
		return nil, err
	}

	visible := ApplyPolicy(rows, cfg.Policy)
	filtered := Evaluate(visible, filters, opts...)
	dims := VisibleFields(q.Dimensions, cfg.Policy)
	measures := VisibleFields(q.Measures, cfg.Policy)
	result := Aggregate(filtered, dims, measures, opts...)

	log.Printf("🔧 Pivot: %d rows → %d visible → %d filtered → %d groups (%d dims, %d measures)",
		len(rows), len(visible), len(filtered), result.Len(), len(dims), len(measures))

	report := &Report{
		Type:        "table",
		Title:       q.Title,
		Result:      result,
		Dimensions:  dims,
		Measures:    measures,
		TotalRows:   len(rows),
		MatchedRows: len(filtered),
	}

	switch q.ChartType {
	case ChartTable:
		report.TableData = BuildTable(q.Title, result, report.Dimensions, report.Measures)
	default:
		report.Type = "chart"
		report.ChartConfig = BuildChart(q.ChartType, q.Title, result, report.Dimensions, report.Measures)
		if report.ChartConfig == nil {
			report.Type = "table"
			report.TableData = BuildTable(q.Title, result, report.Dimensions, report.Measures)
		}
	}

	return report, nil
}

// NormalizeQuery applies deterministic clean-ups: default chart type,
// duplicate shelf entries removed, charts without dimensions shown as a
// table.
func NormalizeQuery(q Query) (Query, error) {
	switch q.ChartType {
	case "":
		q.ChartType = ChartTable
	case ChartTable, ChartBar, ChartLine, ChartArea:
	default:
		return q, fmt.Errorf("%w: %q", ErrUnknownChartType, q.ChartType)
	}

	q.Dimensions = dedupeSpecs(q.Dimensions)
	q.Measures = dedupeSpecs(q.Measures)

	if q.ChartType != ChartTable && len(q.Dimensions) == 0 {
		log.Printf("🔧 NormalizeQuery: %s chart without dimensions → table", q.ChartType)
		q.ChartType = ChartTable
	}
	return q, nil
}

func dedupeSpecs(specs []FieldSpec) []FieldSpec {
	seen := make(map[string]bool, len(specs))
	out := make([]FieldSpec, 0, len(specs))
	for _, s := range specs {
		if s.Key == "" || seen[s.Key] {
			continue
		}
		seen[s.Key] = true
		out = append(out, s)
	}
	return out
}
