package engine

// ============================================================================
// ACCESS POLICY: Row and column restrictions supplied from outside
// ============================================================================
// The engine knows nothing about roles. A policy (see package permission)
// answers two questions: may this row be seen, may this column be shown.
// ============================================================================

// AccessPolicy restricts rows before filtering and columns before
// rendering.
type AccessPolicy interface {
	AllowRow(r Row) bool
	AllowColumn(key string) bool
}

// Predicate is a single {field, operator, value} condition, in the same
// operator vocabulary as measure filters.
//
// Unlike measure filters, a numeric predicate does not let non-numeric
// cells through: a row that cannot be compared is not matched.
type Predicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
}

// Match reports whether r satisfies p.
func (p Predicate) Match(r Row) bool {
	cell := r.Get(p.Field)
	switch p.Operator {
	case OpAll, "":
		return true
	case OpEq:
		if cell == p.Value {
			return true
		}
		a, okA := cell.Float()
		b, okB := p.Value.Float()
		return okA && okB && a == b
	case OpGt, OpLt:
		a, okA := cell.Float()
		b, okB := p.Value.Float()
		if !okA || !okB {
			return false
		}
		if p.Operator == OpGt {
			return a > b
		}
		return a < b
	case OpBetween:
		a, ok := cell.Float()
		if !ok {
			return false
		}
		if p.Min != nil && a < *p.Min {
			return false
		}
		if p.Max != nil && a > *p.Max {
			return false
		}
		return true
	}
	return false
}

// ApplyPolicy keeps the rows p allows, in order. A nil policy keeps all.
func ApplyPolicy(rows []Row, p AccessPolicy) []Row {
	if p == nil {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if p.AllowRow(r) {
			out = append(out, r)
		}
	}
	return out
}

// VisibleFields drops the specs whose key p hides.
func VisibleFields(specs []FieldSpec, p AccessPolicy) []FieldSpec {
	if p == nil {
		return specs
	}
	out := make([]FieldSpec, 0, len(specs))
	for _, s := range specs {
		if p.AllowColumn(s.Key) {
			out = append(out, s)
		}
	}
	return out
}
