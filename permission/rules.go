package permission

import (
	"fmt"

	"github.com/hashicorp/go-bexpr"

	"github.com/spektr-org/pivot/engine"
)

// ============================================================================
// RULES: Row and column permission vocabulary
// ============================================================================
// A row rule is either a single predicate ({field, operator, value}, the
// same shape measure filters use) or a boolean expression. Column rules
// pick which fields a role may see.
// ============================================================================

// RuleKind tags how a row rule is evaluated.
type RuleKind string

const (
	KindAll        RuleKind = "all"        // every row
	KindPredicate  RuleKind = "predicate"  // one engine.Predicate
	KindExpression RuleKind = "expression" // go-bexpr boolean expression
)

// AllRows is the id of the rule that does not restrict rows.
const AllRows = "all"

// RowRule restricts which rows a role may see.
type RowRule struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        RuleKind          `json:"kind" yaml:"kind"`
	Filter      *engine.Predicate `json:"filter,omitempty" yaml:"-"`
	Expression  string            `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// ColumnRule selects the visible fields of a table.
type ColumnRule string

const (
	ColumnAll           ColumnRule = "all"            // every field
	ColumnHideSensitive ColumnRule = "hide_sensitive" // drop fields flagged sensitive
	ColumnBasicOnly     ColumnRule = "basic_only"     // dimensions only, no measures
	ColumnCustom        ColumnRule = "custom"         // explicit allowlist
)

// Valid reports whether c is a known column rule. Empty counts as "all".
func (c ColumnRule) Valid() bool {
	switch c {
	case "", ColumnAll, ColumnHideSensitive, ColumnBasicOnly, ColumnCustom:
		return true
	}
	return false
}

// TablePermission is one role's access to one table.
type TablePermission struct {
	Access        bool       `json:"access" yaml:"access"`
	RowRule       string     `json:"rowRule,omitempty" yaml:"rowRule,omitempty"`
	ColumnRule    ColumnRule `json:"columnRule,omitempty" yaml:"columnRule,omitempty"`
	CustomColumns []string   `json:"customColumns,omitempty" yaml:"customColumns,omitempty"`
}

// Role names a role and lists its per-table permissions.
type Role struct {
	Name   string                     `json:"name" yaml:"name"`
	Tables map[string]TablePermission `json:"tables" yaml:"tables"`
}

// ============================================================================
// COMPILED ROW RULES
// ============================================================================

// rowMatcher is a row rule ready for evaluation.
type rowMatcher struct {
	rule      RowRule
	evaluator *bexpr.Evaluator
}

func compileRowRule(rule RowRule) (*rowMatcher, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("row rule without id")
	}
	if rule.Kind == "" {
		switch {
		case rule.Expression != "":
			rule.Kind = KindExpression
		case rule.Filter != nil:
			rule.Kind = KindPredicate
		default:
			rule.Kind = KindAll
		}
	}

	m := &rowMatcher{rule: rule}
	switch rule.Kind {
	case KindAll:
	case KindPredicate:
		if rule.Filter == nil || rule.Filter.Field == "" {
			return nil, fmt.Errorf("row rule %q: predicate needs a field", rule.ID)
		}
	case KindExpression:
		evaluator, err := bexpr.CreateEvaluator(rule.Expression)
		if err != nil {
			return nil, fmt.Errorf("row rule %q: error parsing expression '%s': %w", rule.ID, rule.Expression, err)
		}
		m.evaluator = evaluator
	default:
		return nil, fmt.Errorf("row rule %q: unknown kind %q", rule.ID, rule.Kind)
	}
	return m, nil
}

// match is strict: a row the rule cannot evaluate is not matched.
func (m *rowMatcher) match(r engine.Row) bool {
	switch m.rule.Kind {
	case KindPredicate:
		return m.rule.Filter.Match(r)
	case KindExpression:
		ok, err := m.evaluator.Evaluate(r.Map())
		return err == nil && ok
	}
	return true
}
