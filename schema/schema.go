package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spektr-org/pivot/engine"
)

// ============================================================================
// SCHEMA: Describes the shape of a dataset for the engine
// ============================================================================
// Auto-discovered from CSV (DiscoverFromCSV) or written by hand as a JSON
// or YAML file (Load). The engine consumes it as FieldSpecs; the
// permission layer reads the Sensitive flag on measures.
// ============================================================================

// Config describes the complete shape of a dataset.
type Config struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Date is the key of the field that receives date bucketing.
	Date string `json:"dateField,omitempty" yaml:"dateField,omitempty"`

	Dimensions []DimensionMeta `json:"dimensions" yaml:"dimensions"`
	Measures   []MeasureMeta   `json:"measures" yaml:"measures"`

	// Auto-discovery metadata
	DiscoveredFrom string `json:"discoveredFrom,omitempty" yaml:"discoveredFrom,omitempty"`
	DiscoveredAt   string `json:"discoveredAt,omitempty" yaml:"discoveredAt,omitempty"`

	// Columns skipped during auto-discovery
	SkippedColumns []SkippedColumn `json:"skippedColumns,omitempty" yaml:"skippedColumns,omitempty"`
}

// DimensionMeta describes a field used for grouping/filtering.
type DimensionMeta struct {
	Key             string                 `json:"key" yaml:"key"`
	DisplayName     string                 `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description     string                 `json:"description,omitempty" yaml:"description,omitempty"`
	SampleValues    []string               `json:"sampleValues,omitempty" yaml:"sampleValues,omitempty"`
	IsTemporal      bool                   `json:"isTemporal,omitempty" yaml:"isTemporal,omitempty"`
	TemporalFormat  string                 `json:"temporalFormat,omitempty" yaml:"temporalFormat,omitempty"`
	DateAgg         engine.DateGranularity `json:"dateAgg,omitempty" yaml:"dateAgg,omitempty"`
	CardinalityHint string                 `json:"cardinalityHint,omitempty" yaml:"cardinalityHint,omitempty"` // "low", "medium", "high"
}

// MeasureMeta describes a numeric field used for aggregation.
type MeasureMeta struct {
	Key         string `json:"key" yaml:"key"`
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Unit        string `json:"unit,omitempty" yaml:"unit,omitempty"` // "currency", "units", "percent"
	Sensitive   bool   `json:"sensitive,omitempty" yaml:"sensitive,omitempty"`
}

// SkippedColumn records why a column was excluded during auto-discovery.
type SkippedColumn struct {
	Column      string `json:"column" yaml:"column"`
	Reason      string `json:"reason" yaml:"reason"`
	Recoverable bool   `json:"recoverable" yaml:"recoverable"` // Can be restored via RecoverColumns
}

// DefaultDimension creates a DimensionMeta with sensible defaults.
func DefaultDimension(key, displayName string, samples []string) DimensionMeta {
	return DimensionMeta{
		Key:          key,
		DisplayName:  displayName,
		SampleValues: samples,
	}
}

// DefaultMeasure creates a MeasureMeta with sensible defaults.
func DefaultMeasure(key, displayName string) MeasureMeta {
	return MeasureMeta{
		Key:         key,
		DisplayName: displayName,
	}
}

// DateField returns the configured date field, then the first temporal
// dimension, then the engine default.
func (c Config) DateField() string {
	if c.Date != "" {
		return c.Date
	}
	for _, d := range c.Dimensions {
		if d.IsTemporal {
			return d.Key
		}
	}
	return engine.DefaultDateField
}

// FieldSpecs converts the schema to engine shelf specs. The date
// dimension keeps its DateAgg; other dimensions drop it.
func (c Config) FieldSpecs() (dims, measures []engine.FieldSpec) {
	dateField := c.DateField()
	dims = make([]engine.FieldSpec, 0, len(c.Dimensions))
	for _, d := range c.Dimensions {
		spec := engine.FieldSpec{Key: d.Key, FieldType: engine.FieldDim, Label: d.DisplayName}
		if d.Key == dateField {
			spec.DateAgg = d.DateAgg
		}
		dims = append(dims, spec)
	}
	measures = make([]engine.FieldSpec, 0, len(c.Measures))
	for _, m := range c.Measures {
		measures = append(measures, engine.FieldSpec{
			Key:       m.Key,
			FieldType: engine.FieldMeasure,
			Label:     m.DisplayName,
			Sensitive: m.Sensitive,
		})
	}
	return dims, measures
}

// DimensionKeys returns all dimension keys.
func (c Config) DimensionKeys() []string {
	keys := make([]string, len(c.Dimensions))
	for i, d := range c.Dimensions {
		keys[i] = d.Key
	}
	return keys
}

// MeasureKeys returns all measure keys.
func (c Config) MeasureKeys() []string {
	keys := make([]string, len(c.Measures))
	for i, m := range c.Measures {
		keys[i] = m.Key
	}
	return keys
}

// Validate checks keys are present and unique and date granularities are
// known.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Dimensions)+len(c.Measures))
	check := func(key string) error {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("schema %q: field with empty key", c.Name)
		}
		if seen[key] {
			return fmt.Errorf("schema %q: duplicate field %q", c.Name, key)
		}
		seen[key] = true
		return nil
	}
	for _, d := range c.Dimensions {
		if err := check(d.Key); err != nil {
			return err
		}
		if d.DateAgg != "" && !d.DateAgg.Valid() {
			return fmt.Errorf("schema %q: field %q has unknown dateAgg %q", c.Name, d.Key, d.DateAgg)
		}
	}
	for _, m := range c.Measures {
		if err := check(m.Key); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a schema file. ".yaml"/".yml" are parsed as YAML, anything
// else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return Parse(data, format)
}

// Parse decodes a schema in the given format ("json" or "yaml") and
// validates it.
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema format %q", format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
