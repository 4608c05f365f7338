package permission

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/spektr-org/pivot/engine"
)

// ============================================================================
// LOADER: Rule files in YAML
// ============================================================================
// Example:
//
//	rowRules:
//	  - id: platform_taobao
//	    name: 淘宝平台
//	    filter: {field: platform, operator: eq, value: 淘宝}
//	  - id: video_platforms
//	    expression: 'platform == "抖音" or platform == "快手"'
//	roles:
//	  "6":
//	    name: 业务BI
//	    tables:
//	      shop_sales: {access: true, rowRule: platform_taobao, columnRule: all}
//
// ============================================================================

type ruleFile struct {
	RowRules []rowRuleEntry `yaml:"rowRules"`
	Roles    map[string]Role `yaml:"roles"`
}

type rowRuleEntry struct {
	RowRule `yaml:",inline"`
	Filter  *predicateEntry `yaml:"filter"`
}

type predicateEntry struct {
	Field    string   `yaml:"field"`
	Operator string   `yaml:"operator"`
	Value    any      `yaml:"value"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
}

// LoadFile reads a YAML rule file into a new registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML rules into a new registry.
func Parse(data []byte) (*Registry, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	reg := NewRegistry()
	if err := reg.apply(file); err != nil {
		return nil, err
	}
	return reg, nil
}

// Merge decodes YAML rules into an existing registry, e.g. on top of
// Default().
func (r *Registry) Merge(data []byte) error {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	return r.apply(file)
}

func (r *Registry) apply(file ruleFile) error {
	for _, entry := range file.RowRules {
		rule := entry.RowRule
		if entry.Filter != nil {
			rule.Filter = &engine.Predicate{
				Field:    entry.Filter.Field,
				Operator: engine.Operator(entry.Filter.Operator),
				Value:    engine.ValueOf(entry.Filter.Value),
				Min:      entry.Filter.Min,
				Max:      entry.Filter.Max,
			}
		}
		if err := r.AddRowRule(rule); err != nil {
			return err
		}
	}

	// Sorted so the first invalid role reported is deterministic.
	ids := make([]string, 0, len(file.Roles))
	for id := range file.Roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := r.SetRole(id, file.Roles[id]); err != nil {
			return err
		}
	}
	return nil
}
