package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spektr-org/pivot/engine"
)

// ============================================================================
// REGISTRY: Roles, rules and their resolution into an engine policy
// ============================================================================

var (
	ErrUnknownRole   = errors.New("unknown role")
	ErrUnknownRule   = errors.New("unknown rule")
	ErrAccessDenied  = errors.New("access denied")
	ErrDuplicateRule = errors.New("duplicate rule")
)

// Registry holds the row rules and role permissions. Safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	rowRules map[string]*rowMatcher
	roles    map[string]Role
}

// NewRegistry creates a registry holding only the "all" row rule.
func NewRegistry() *Registry {
	r := &Registry{
		rowRules: make(map[string]*rowMatcher),
		roles:    make(map[string]Role),
	}
	r.rowRules[AllRows] = &rowMatcher{rule: RowRule{ID: AllRows, Name: "全部数据", Kind: KindAll}}
	return r
}

// AddRowRule compiles and registers rule. Re-registering "all" is allowed
// only with kind all.
func (r *Registry) AddRowRule(rule RowRule) error {
	m, err := compileRowRule(rule)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rowRules[rule.ID]; ok {
		if rule.ID != AllRows || m.rule.Kind != KindAll {
			return fmt.Errorf("%w: %q", ErrDuplicateRule, rule.ID)
		}
		m.rule.Name = firstNonEmpty(m.rule.Name, existing.rule.Name)
	}
	r.rowRules[rule.ID] = m
	return nil
}

// SetRole adds or replaces a role after checking that every rule it
// references exists.
func (r *Registry) SetRole(id string, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for table, perm := range role.Tables {
		if !perm.Access {
			continue
		}
		if perm.RowRule != "" {
			if _, ok := r.rowRules[perm.RowRule]; !ok {
				return fmt.Errorf("role %s table %s: %w %q", id, table, ErrUnknownRule, perm.RowRule)
			}
		}
		if !perm.ColumnRule.Valid() {
			return fmt.Errorf("role %s table %s: %w %q", id, table, ErrUnknownRule, perm.ColumnRule)
		}
	}
	r.roles[id] = role
	return nil
}

// RowRules lists the registered row rules ordered by id.
func (r *Registry) RowRules() []RowRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RowRule, 0, len(r.rowRules))
	for _, m := range r.rowRules {
		out = append(out, m.rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Roles lists role ids, sorted.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.roles))
	for id := range r.roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Role returns the role registered under id.
func (r *Registry) Role(id string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[id]
	return role, ok
}

// Resolve builds the policy role has on table. fields are the table's
// declared fields; the Sensitive flag and field type drive the column
// rules.
func (r *Registry) Resolve(role, table string, fields []engine.FieldSpec) (*Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rp, ok := r.roles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	perm, ok := rp.Tables[table]
	if !ok || !perm.Access {
		return nil, fmt.Errorf("%w: role %q on table %q", ErrAccessDenied, role, table)
	}

	p := &Policy{Role: role, Table: table, ColumnRule: perm.ColumnRule}

	ruleID := perm.RowRule
	if ruleID == "" {
		ruleID = AllRows
	}
	m, ok := r.rowRules[ruleID]
	if !ok {
		return nil, fmt.Errorf("%w: row rule %q", ErrUnknownRule, ruleID)
	}
	p.RowRule = ruleID
	if m.rule.Kind != KindAll {
		p.rows = m
	}

	switch perm.ColumnRule {
	case "", ColumnAll:
		p.ColumnRule = ColumnAll
	case ColumnHideSensitive:
		p.hidden = make(map[string]bool)
		for _, f := range fields {
			if f.Sensitive {
				p.hidden[f.Key] = true
			}
		}
	case ColumnBasicOnly:
		p.allowed = make(map[string]bool)
		for _, f := range fields {
			if f.FieldType != engine.FieldMeasure {
				p.allowed[f.Key] = true
			}
		}
	case ColumnCustom:
		p.allowed = make(map[string]bool, len(perm.CustomColumns))
		for _, key := range perm.CustomColumns {
			p.allowed[key] = true
		}
	default:
		return nil, fmt.Errorf("%w: column rule %q", ErrUnknownRule, perm.ColumnRule)
	}
	return p, nil
}

// ============================================================================
// POLICY: engine.AccessPolicy for one role on one table
// ============================================================================

// Policy is the resolved permission of a role on a table.
type Policy struct {
	Role       string
	Table      string
	RowRule    string
	ColumnRule ColumnRule

	rows    *rowMatcher
	hidden  map[string]bool // hide_sensitive
	allowed map[string]bool // basic_only, custom
}

var _ engine.AccessPolicy = (*Policy)(nil)

// AllowRow reports whether the role may see r.
func (p *Policy) AllowRow(r engine.Row) bool {
	if p.rows == nil {
		return true
	}
	return p.rows.match(r)
}

// AllowColumn reports whether the role may see the field key.
func (p *Policy) AllowColumn(key string) bool {
	if p.allowed != nil {
		return p.allowed[key]
	}
	return !p.hidden[key]
}

// Fields filters specs down to the visible ones.
func (p *Policy) Fields(specs []engine.FieldSpec) []engine.FieldSpec {
	return engine.VisibleFields(specs, p)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
