package engine

// ============================================================================
// DOMAIN ADAPTER: Typed structs to rows
// ============================================================================
//
// Usage:
//
//	adapter := engine.NewDomainAdapter[Order]().
//	    Dimension("平台", func(o Order) string { return o.Platform }).
//	    Measure("gmv", func(o Order) float64 { return o.GMV })
//
//	adapter.Load(registry, orders)
//
// Declare once, bind many times.
// ============================================================================

// DomainAdapter converts typed records into engine rows via registered
// accessor functions.
type DomainAdapter[T any] struct {
	dimOrder []string
	mesOrder []string
	dims     map[string]func(T) string
	meas     map[string]func(T) float64
	labels   map[string]string
	dateKey  string
	dateAgg  DateGranularity
}

// NewDomainAdapter creates a new adapter for type T.
func NewDomainAdapter[T any]() *DomainAdapter[T] {
	return &DomainAdapter[T]{
		dims:   make(map[string]func(T) string),
		meas:   make(map[string]func(T) float64),
		labels: make(map[string]string),
	}
}

// Dimension registers a dimension accessor. An empty string becomes null.
func (a *DomainAdapter[T]) Dimension(key string, fn func(T) string) *DomainAdapter[T] {
	if _, exists := a.dims[key]; !exists {
		a.dimOrder = append(a.dimOrder, key)
	}
	a.dims[key] = fn
	return a
}

// DateDimension registers the date accessor together with its default
// bucketing.
func (a *DomainAdapter[T]) DateDimension(key string, g DateGranularity, fn func(T) string) *DomainAdapter[T] {
	a.dateKey, a.dateAgg = key, g
	return a.Dimension(key, fn)
}

// Measure registers a measure accessor.
func (a *DomainAdapter[T]) Measure(key string, fn func(T) float64) *DomainAdapter[T] {
	if _, exists := a.meas[key]; !exists {
		a.mesOrder = append(a.mesOrder, key)
	}
	a.meas[key] = fn
	return a
}

// Label sets the display label of a registered field.
func (a *DomainAdapter[T]) Label(key, label string) *DomainAdapter[T] {
	a.labels[key] = label
	return a
}

// Dimensions returns the declared dimension specs in registration order.
func (a *DomainAdapter[T]) Dimensions() []FieldSpec {
	out := make([]FieldSpec, 0, len(a.dimOrder))
	for _, k := range a.dimOrder {
		spec := Dim(k)
		if k == a.dateKey {
			spec.DateAgg = a.dateAgg
		}
		spec.Label = a.labels[k]
		out = append(out, spec)
	}
	return out
}

// Measures returns the declared measure specs in registration order.
func (a *DomainAdapter[T]) Measures() []FieldSpec {
	out := make([]FieldSpec, 0, len(a.mesOrder))
	for _, k := range a.mesOrder {
		spec := Measure(k)
		spec.Label = a.labels[k]
		out = append(out, spec)
	}
	return out
}

// Rows materializes one row per record.
func (a *DomainAdapter[T]) Rows(data []T) []Row {
	rows := make([]Row, 0, len(data))
	for _, item := range data {
		r := make(Row, len(a.dims)+len(a.meas))
		for k, fn := range a.dims {
			if s := fn(item); s != "" {
				r[k] = String(s)
			} else {
				r[k] = Null()
			}
		}
		for k, fn := range a.meas {
			r[k] = Number(fn(item))
		}
		rows = append(rows, r)
	}
	return rows
}

// Load converts data and installs it as the registry's table.
func (a *DomainAdapter[T]) Load(reg *Registry, data []T) *DataSource {
	return reg.Load(a.Rows(data), a.Dimensions(), a.Measures())
}
