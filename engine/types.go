package engine

// ============================================================================
// PIVOT ENGINE TYPES
// ============================================================================
// Field specs describe the shelves (dimensions and measures), filter state
// describes per-field filters, Result is the grouped output.
// ============================================================================

// FieldType tells dimensions from measures.
type FieldType string

const (
	FieldDim     FieldType = "dim"
	FieldMeasure FieldType = "measure"
)

// DateGranularity is the bucketing applied to the date field.
// The empty value means no bucketing.
type DateGranularity string

const (
	GranularityDay     DateGranularity = "day"
	GranularityMonth   DateGranularity = "month"
	GranularityQuarter DateGranularity = "quarter"
	GranularityYear    DateGranularity = "year"
)

// Valid reports whether g is one of the four known granularities.
func (g DateGranularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityMonth, GranularityQuarter, GranularityYear:
		return true
	}
	return false
}

// FieldSpec describes a dimension or measure placed on a shelf.
// DateAgg only applies when Key is the configured date field and
// FieldType is FieldDim.
type FieldSpec struct {
	Key       string          `json:"key" yaml:"key"`
	FieldType FieldType       `json:"fieldType" yaml:"fieldType"`
	DateAgg   DateGranularity `json:"dateAgg,omitempty" yaml:"dateAgg,omitempty"`
	Label     string          `json:"label,omitempty" yaml:"label,omitempty"`
	Sensitive bool            `json:"sensitive,omitempty" yaml:"sensitive,omitempty"`
}

// Dim is shorthand for a dimension spec.
func Dim(key string) FieldSpec { return FieldSpec{Key: key, FieldType: FieldDim} }

// DateDim is shorthand for a bucketed date dimension spec.
func DateDim(key string, g DateGranularity) FieldSpec {
	return FieldSpec{Key: key, FieldType: FieldDim, DateAgg: g}
}

// Measure is shorthand for a measure spec.
func Measure(key string) FieldSpec { return FieldSpec{Key: key, FieldType: FieldMeasure} }

// DisplayLabel returns Label, falling back to Key.
func (f FieldSpec) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}

// ============================================================================
// FILTER STATE
// ============================================================================

// Operator is the comparison used by a measure filter.
type Operator string

const (
	OpAll     Operator = "all"
	OpGt      Operator = "gt"
	OpLt      Operator = "lt"
	OpEq      Operator = "eq"
	OpBetween Operator = "between"
)

// FilterState is the filter attached to one field. Dimension filters use
// Selected/Options/DateAgg; measure filters use the numeric fields.
//
// Selected is expected to be a subset of Options but this is not enforced.
// RangeMin/RangeMax are observed at creation and never recomputed.
type FilterState struct {
	FieldType FieldType `json:"fieldType"`

	Selected []Value         `json:"selected,omitempty"`
	Options  []Value         `json:"options,omitempty"`
	DateAgg  DateGranularity `json:"dateAgg,omitempty"`

	Operator Operator `json:"operator,omitempty"`
	Value    *float64 `json:"value"`
	MinValue *float64 `json:"minValue"`
	MaxValue *float64 `json:"maxValue"`
	RangeMin float64  `json:"rangeMin"`
	RangeMax float64  `json:"rangeMax"`
}

// IsMeasure reports whether f is a numeric filter.
func (f *FilterState) IsMeasure() bool { return f.FieldType == FieldMeasure }

func (f *FilterState) clone() *FilterState {
	c := *f
	c.Selected = append([]Value(nil), f.Selected...)
	c.Options = append([]Value(nil), f.Options...)
	c.Value = cloneFloat(f.Value)
	c.MinValue = cloneFloat(f.MinValue)
	c.MaxValue = cloneFloat(f.MaxValue)
	return &c
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float is a helper for building optional numeric filter bounds.
func Float(f float64) *float64 { return &f }

// Filters maps a field key to its filter. Insertion order is irrelevant.
type Filters map[string]*FilterState

// ============================================================================
// RESULT: Grouped, aggregated output
// ============================================================================

// Group is one row of the pivot result.
type Group struct {
	Meta   map[string]Value   `json:"meta"`
	Values map[string]float64 `json:"values"`
	Count  int                `json:"count"`
}

// Result is the aggregation output. Keys holds every group key in
// lexicographic order.
type Result struct {
	Keys   []string          `json:"keys"`
	Groups map[string]*Group `json:"groups"`
}

// EmptyResult is the result for "no data", distinct from an error.
func EmptyResult() *Result {
	return &Result{Keys: []string{}, Groups: map[string]*Group{}}
}

// Len returns the number of groups.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Keys)
}
