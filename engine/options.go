package engine

// ============================================================================
// ENGINE OPTIONS: Functional options shared by Evaluate, Aggregate, Execute
// ============================================================================

// DefaultDateField is the canonical date field key of the business tables.
const DefaultDateField = "日期"

// DefaultGrandTotalKey labels the single group produced with no dimensions.
const DefaultGrandTotalKey = "总计"

// KeySeparator joins dimension values into a group key.
const KeySeparator = " / "

// Option configures engine behavior via functional options pattern.
type Option func(*config)

type config struct {
	DateField     string
	GrandTotalKey string
	Policy        AccessPolicy
}

// WithDateField sets which field key receives date bucketing.
func WithDateField(key string) Option {
	return func(c *config) {
		if key != "" {
			c.DateField = key
		}
	}
}

// WithGrandTotalKey overrides the key used when no dimension is selected.
func WithGrandTotalKey(key string) Option {
	return func(c *config) {
		if key != "" {
			c.GrandTotalKey = key
		}
	}
}

// WithPolicy restricts rows and rendered columns (see Execute).
func WithPolicy(p AccessPolicy) Option {
	return func(c *config) {
		c.Policy = p
	}
}

// applyOptions creates a config from functional options.
func applyOptions(opts []Option) *config {
	cfg := &config{
		DateField:     DefaultDateField,
		GrandTotalKey: DefaultGrandTotalKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// isDateSpec reports whether a dimension spec asks for date bucketing.
func (c *config) isDateSpec(f FieldSpec) bool {
	return f.Key == c.DateField && f.DateAgg != ""
}
