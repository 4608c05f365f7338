package engine

// ============================================================================
// FILTERS: Row-by-row evaluation of a filter set
// ============================================================================
// Single pass: every row is checked against ALL filters (AND across
// fields). Output keeps input order and shares the input rows.
// ============================================================================

// Evaluate returns the rows that pass every filter. An empty filter map
// passes every row.
func Evaluate(rows []Row, filters Filters, opts ...Option) []Row {
	if len(filters) == 0 {
		return rows
	}
	cfg := applyOptions(opts)
	checks := compileFilters(filters, cfg)

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if passesAll(r, checks) {
			out = append(out, r)
		}
	}
	return out
}

// fieldCheck is a filter prepared for the row loop: selections become
// lookup sets once instead of per row.
type fieldCheck struct {
	key      string
	filter   *FilterState
	selected map[Value]bool
	bucket   DateGranularity
}

func compileFilters(filters Filters, cfg *config) []fieldCheck {
	checks := make([]fieldCheck, 0, len(filters))
	for key, f := range filters {
		if f == nil {
			continue
		}
		c := fieldCheck{key: key, filter: f}
		if !f.IsMeasure() {
			c.selected = make(map[Value]bool, len(f.Selected))
			for _, v := range f.Selected {
				c.selected[v] = true
			}
			if f.DateAgg != "" && key == cfg.DateField {
				c.bucket = f.DateAgg
			}
		}
		checks = append(checks, c)
	}
	return checks
}

func passesAll(r Row, checks []fieldCheck) bool {
	for i := range checks {
		c := &checks[i]
		cell := r.Get(c.key)
		if c.filter.IsMeasure() {
			if !matchMeasure(cell, c.filter) {
				return false
			}
			continue
		}
		// An empty selection shows nothing.
		if len(c.selected) == 0 {
			return false
		}
		if c.bucket != "" {
			cell = BucketValue(cell, c.bucket)
		}
		if !c.selected[cell] {
			return false
		}
	}
	return true
}

// matchMeasure applies a numeric filter. Cells that are not numeric pass:
// the filter only constrains rows it can read.
func matchMeasure(cell Value, f *FilterState) bool {
	v, ok := cell.Float()
	if !ok {
		return true
	}
	switch f.Operator {
	case OpGt:
		return f.Value == nil || v > *f.Value
	case OpLt:
		return f.Value == nil || v < *f.Value
	case OpEq:
		return f.Value == nil || v == *f.Value
	case OpBetween:
		if f.MinValue != nil && v < *f.MinValue {
			return false
		}
		if f.MaxValue != nil && v > *f.MaxValue {
			return false
		}
	}
	return true
}
