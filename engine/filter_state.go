package engine

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// ============================================================================
// FILTER SET: Per-field filter lifecycle
// ============================================================================
// One FilterSet belongs to one caller (see Session). Rows passed in are
// only read. Every operation on an unknown key, or on a filter of the
// other kind, is a no-op.
// ============================================================================

// FilterSet holds the filters of one session plus the UI bookkeeping that
// goes with them (which fields are active and which dropdowns are open).
type FilterSet struct {
	cfg      *config
	filters  Filters
	active   map[string]bool
	expanded map[string]bool
}

// NewFilterSet creates an empty filter set.
func NewFilterSet(opts ...Option) *FilterSet {
	return &FilterSet{
		cfg:      applyOptions(opts),
		filters:  make(Filters),
		active:   make(map[string]bool),
		expanded: make(map[string]bool),
	}
}

// InitFilter creates the filter for key unless one already exists.
// A nil spec means a plain dimension.
//
// Measure filters start with operator "all" and record the observed
// min/max of numeric values. Dimension filters list the distinct non-null
// values (bucketed first for the date field when spec.DateAgg is set) and
// start fully selected.
func (fs *FilterSet) InitFilter(key string, spec *FieldSpec, rows []Row) {
	if _, exists := fs.filters[key]; exists {
		return
	}

	if spec != nil && spec.FieldType == FieldMeasure {
		lo, hi := observedRange(rows, key)
		fs.filters[key] = &FilterState{
			FieldType: FieldMeasure,
			Operator:  OpAll,
			RangeMin:  lo,
			RangeMax:  hi,
		}
	} else {
		var agg DateGranularity
		if spec != nil && spec.DateAgg != "" && spec.Key == fs.cfg.DateField {
			agg = spec.DateAgg
		}
		selected, options := distinctValues(rows, key, agg)
		fs.filters[key] = &FilterState{
			FieldType: FieldDim,
			Selected:  selected,
			Options:   options,
		}
		if spec != nil {
			fs.filters[key].DateAgg = spec.DateAgg
		}
	}

	fs.active[key] = true
}

// RemoveFilter deletes the filter and clears its active/expanded flags.
func (fs *FilterSet) RemoveFilter(key string) {
	delete(fs.filters, key)
	delete(fs.active, key)
	delete(fs.expanded, key)
}

// UpdateDateAggregation re-buckets a dimension filter at g. The previous
// selection is discarded and every new option is selected.
func (fs *FilterSet) UpdateDateAggregation(key string, g DateGranularity, rows []Row) {
	f := fs.dim(key)
	if f == nil {
		return
	}
	selected, options := distinctValues(rows, key, g)
	f.Options = options
	f.Selected = selected
	f.DateAgg = g
}

// ToggleOption adds option to the selection, or removes it if present.
func (fs *FilterSet) ToggleOption(key string, option Value) {
	f := fs.dim(key)
	if f == nil {
		return
	}
	for i, v := range f.Selected {
		if v == option {
			f.Selected = append(f.Selected[:i:i], f.Selected[i+1:]...)
			return
		}
	}
	f.Selected = append(f.Selected, option)
}

// ToggleSelectAll clears a fully selected filter, otherwise selects every
// option.
func (fs *FilterSet) ToggleSelectAll(key string) {
	f := fs.dim(key)
	if f == nil {
		return
	}
	if len(f.Selected) == len(f.Options) {
		f.Selected = []Value{}
		return
	}
	f.Selected = append([]Value(nil), f.Options...)
}

// UpdateFilterSelection replaces the selection wholesale. values is not
// checked against the options.
func (fs *FilterSet) UpdateFilterSelection(key string, values []Value) {
	f := fs.dim(key)
	if f == nil {
		return
	}
	f.Selected = append([]Value{}, values...)
}

// UpdateMeasureFilter replaces operator and bounds in one step. min > max
// is accepted as given.
func (fs *FilterSet) UpdateMeasureFilter(key string, op Operator, value, minValue, maxValue *float64) {
	f, ok := fs.filters[key]
	if !ok || !f.IsMeasure() {
		return
	}
	f.Operator = op
	f.Value = cloneFloat(value)
	f.MinValue = cloneFloat(minValue)
	f.MaxValue = cloneFloat(maxValue)
}

// SetExpanded records whether the filter dropdown for key is open.
func (fs *FilterSet) SetExpanded(key string, visible bool) {
	if visible {
		fs.expanded[key] = true
		return
	}
	delete(fs.expanded, key)
}

// IsExpanded reports whether the dropdown for key is open.
func (fs *FilterSet) IsExpanded(key string) bool { return fs.expanded[key] }

// Active returns the keys that currently carry a filter, sorted.
func (fs *FilterSet) Active() []string {
	keys := make([]string, 0, len(fs.active))
	for k := range fs.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a copy of the filter for key.
func (fs *FilterSet) Get(key string) (*FilterState, bool) {
	f, ok := fs.filters[key]
	if !ok {
		return nil, false
	}
	return f.clone(), true
}

// Filters returns a deep copy of every filter, safe to evaluate while the
// set keeps changing.
func (fs *FilterSet) Filters() Filters {
	out := make(Filters, len(fs.filters))
	for k, f := range fs.filters {
		out[k] = f.clone()
	}
	return out
}

// Len returns the number of filters.
func (fs *FilterSet) Len() int { return len(fs.filters) }

// Reset drops every filter and flag.
func (fs *FilterSet) Reset() {
	fs.filters = make(Filters)
	fs.active = make(map[string]bool)
	fs.expanded = make(map[string]bool)
}

func (fs *FilterSet) dim(key string) *FilterState {
	f, ok := fs.filters[key]
	if !ok || f.IsMeasure() {
		return nil
	}
	return f
}

// observedRange returns min/max over the numeric cells at key. Missing and
// non-numeric cells are excluded rather than read as zero.
func observedRange(rows []Row, key string) (float64, float64) {
	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		if f, ok := r.Get(key).Float(); ok {
			values = append(values, f)
		}
	}
	lo, err := stats.Min(values)
	if err != nil {
		return 0, 0
	}
	hi, err := stats.Max(values)
	if err != nil {
		return 0, 0
	}
	return lo, hi
}

// distinctValues returns the non-null values at key (bucketed when g is
// set) in first-seen order, and the same values sorted.
func distinctValues(rows []Row, key string, g DateGranularity) (seen []Value, sorted []Value) {
	set := make(map[Value]bool)
	seen = []Value{}
	for _, r := range rows {
		v := r.Get(key)
		if g != "" {
			v = BucketValue(v, g)
		}
		if v.IsNull() || set[v] {
			continue
		}
		set[v] = true
		seen = append(seen, v)
	}
	sorted = append([]Value{}, seen...)
	sort.SliceStable(sorted, func(i, j int) bool { return lessValue(sorted[i], sorted[j]) })
	return seen, sorted
}
