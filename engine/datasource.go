package engine

import (
	"sync"
	"time"
)

// ============================================================================
// DATA SOURCE REGISTRY: The loaded table and its declared fields
// ============================================================================
// Load swaps in a new immutable snapshot. Readers keep whatever snapshot
// they fetched, so concurrent sessions can share one table read-only.
// ============================================================================

// DataSource is one loaded table. It must not be modified after Load.
type DataSource struct {
	Rows       []Row
	Dimensions []FieldSpec
	Measures   []FieldSpec
	Version    uint64
	LoadedAt   time.Time
}

// Field returns the declared spec for key.
func (ds *DataSource) Field(key string) (FieldSpec, bool) {
	for _, d := range ds.Dimensions {
		if d.Key == key {
			return d, true
		}
	}
	for _, m := range ds.Measures {
		if m.Key == key {
			return m, true
		}
	}
	return FieldSpec{}, false
}

// Fields returns dimensions followed by measures.
func (ds *DataSource) Fields() []FieldSpec {
	out := make([]FieldSpec, 0, len(ds.Dimensions)+len(ds.Measures))
	out = append(out, ds.Dimensions...)
	return append(out, ds.Measures...)
}

// Registry holds the current data source.
type Registry struct {
	mu      sync.RWMutex
	current *DataSource
	version uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Load replaces the table and its declared fields wholesale. Sessions drop
// their filters the next time they touch the registry.
func (r *Registry) Load(rows []Row, dims, measures []FieldSpec) *DataSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.version++
	r.current = &DataSource{
		Rows:       rows,
		Dimensions: append([]FieldSpec(nil), dims...),
		Measures:   append([]FieldSpec(nil), measures...),
		Version:    r.version,
		LoadedAt:   time.Now(),
	}
	return r.current
}

// Current returns the loaded data source, or nil before the first Load.
func (r *Registry) Current() *DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Version returns the number of loads so far.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
