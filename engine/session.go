package engine

import (
	"io"
	"log"
)

// ============================================================================
// SESSION: One caller's filters bound to a registry
// ============================================================================
// A Session replaces process-wide filter state: each user (or test) gets
// its own. A Session is not safe for concurrent use; callers serialize.
// ============================================================================

// Session owns a FilterSet and evaluates it against the registry's table.
type Session struct {
	registry *Registry
	filters  *FilterSet
	opts     []Option
	version  uint64
}

// NewSession creates a session reading from reg.
func NewSession(reg *Registry, opts ...Option) *Session {
	return &Session{
		registry: reg,
		filters:  NewFilterSet(opts...),
		opts:     opts,
		version:  reg.Version(),
	}
}

// source returns the current table and drops filters built against an
// older one.
func (s *Session) source() *DataSource {
	ds := s.registry.Current()
	if ds == nil {
		return nil
	}
	if ds.Version != s.version {
		if s.filters.Len() > 0 {
			log.Printf("🔄 Pivot: data source reloaded (v%d → v%d), dropping %d filters",
				s.version, ds.Version, s.filters.Len())
		}
		s.filters.Reset()
		s.version = ds.Version
	}
	return ds
}

// Reconfigure replaces the session's options, e.g. once a newly loaded
// table names a different date field. Filters are kept unless the date
// field changes.
func (s *Session) Reconfigure(opts ...Option) {
	next := applyOptions(opts)
	if next.DateField != s.filters.cfg.DateField && s.filters.Len() > 0 {
		log.Printf("🔄 Pivot: date field %s → %s, dropping %d filters",
			s.filters.cfg.DateField, next.DateField, s.filters.Len())
		s.filters.Reset()
	}
	s.opts = opts
	s.filters.cfg = next
}

// DateField returns the field key the session buckets as a date.
func (s *Session) DateField() string { return s.filters.cfg.DateField }

func (s *Session) rows() []Row {
	if ds := s.source(); ds != nil {
		return ds.Rows
	}
	return nil
}

// InitFilter creates a filter for key. A nil spec falls back to the
// field's declared spec, then to a plain dimension.
func (s *Session) InitFilter(key string, spec *FieldSpec) {
	ds := s.source()
	var rows []Row
	if ds != nil {
		rows = ds.Rows
		if spec == nil {
			if declared, ok := ds.Field(key); ok {
				spec = &declared
			}
		}
	}
	s.filters.InitFilter(key, spec, rows)
}

func (s *Session) RemoveFilter(key string) {
	s.source()
	s.filters.RemoveFilter(key)
}

func (s *Session) UpdateDateAggregation(key string, g DateGranularity) {
	s.filters.UpdateDateAggregation(key, g, s.rows())
}

func (s *Session) ToggleOption(key string, option Value) {
	s.source()
	s.filters.ToggleOption(key, option)
}

func (s *Session) ToggleSelectAll(key string) {
	s.source()
	s.filters.ToggleSelectAll(key)
}

func (s *Session) UpdateFilterSelection(key string, values []Value) {
	s.source()
	s.filters.UpdateFilterSelection(key, values)
}

func (s *Session) UpdateMeasureFilter(key string, op Operator, value, minValue, maxValue *float64) {
	s.source()
	s.filters.UpdateMeasureFilter(key, op, value, minValue, maxValue)
}

func (s *Session) SetExpanded(key string, visible bool) {
	s.source()
	s.filters.SetExpanded(key, visible)
}

// FilterSet exposes the session's filters for inspection.
func (s *Session) FilterSet() *FilterSet {
	s.source()
	return s.filters
}

// Filtered returns the table rows that pass the session's filters.
func (s *Session) Filtered() []Row {
	rows := s.rows()
	return Evaluate(rows, s.filters.Filters(), s.opts...)
}

// Aggregate filters and groups the current table. Before any data source
// is loaded it returns the empty result.
func (s *Session) Aggregate(dims, measures []FieldSpec) *Result {
	if s.source() == nil {
		return EmptyResult()
	}
	return Aggregate(s.Filtered(), dims, measures, s.opts...)
}

// Execute runs a full query (policy, filters, aggregation, rendering).
func (s *Session) Execute(q Query, extra ...Option) (*Report, error) {
	opts := append(append([]Option(nil), s.opts...), extra...)
	return Execute(q, s.rows(), s.filters.Filters(), opts...)
}

// Export writes the CSV of the current aggregation. Options such as
// WithPolicy restrict rows and columns the same way Execute does; without
// them every row and column is exported.
func (s *Session) Export(w io.Writer, dims, measures []FieldSpec, extra ...Option) error {
	if len(extra) == 0 {
		return WriteCSV(w, s.Aggregate(dims, measures), dims, measures)
	}
	report, err := s.Execute(Query{Dimensions: dims, Measures: measures, ChartType: ChartTable}, extra...)
	if err != nil {
		return err
	}
	return WriteCSV(w, report.Result, report.Dimensions, report.Measures)
}
