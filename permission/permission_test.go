package permission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/pivot/engine"
)

// ============================================================================
// PERMISSION TESTS
// ============================================================================
// Tests cover:
//   1. Resolution per row rule kind (all, predicate, expression)
//   2. Column rules (all, hide_sensitive, basic_only, custom)
//   3. Error sentinels for unknown roles/rules and denied tables
//   4. YAML loading and merging
// ============================================================================

func shopFields() []engine.FieldSpec {
	return []engine.FieldSpec{
		engine.Dim("customer"),
		engine.Dim("platform"),
		engine.Dim("department"),
		engine.Measure("gmv"),
		{Key: "cost", FieldType: engine.FieldMeasure, Sensitive: true},
		{Key: "profit", FieldType: engine.FieldMeasure, Sensitive: true},
	}
}

func shopRows() []engine.Row {
	return []engine.Row{
		{"customer": engine.String("客户A"), "platform": engine.String("淘宝"), "department": engine.String("运营一部"), "gmv": engine.Number(100), "profit": engine.Number(20)},
		{"customer": engine.String("客户B"), "platform": engine.String("抖音"), "department": engine.String("运营二部"), "gmv": engine.Number(80), "profit": engine.Number(-5)},
		{"customer": engine.String("客户C"), "platform": engine.String("快手"), "department": engine.String("运营一部"), "gmv": engine.Number(60), "profit": engine.String("待核算")},
		{"customer": engine.String("客户A"), "platform": engine.String("淘宝"), "department": engine.String("运营二部"), "gmv": engine.Number(40), "profit": engine.Null()},
	}
}

func TestDefaultRoles(t *testing.T) {
	reg := Default()
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7"}, reg.Roles())

	role, ok := reg.Role("6")
	require.True(t, ok)
	assert.Equal(t, "业务BI", role.Name)

	var ids []string
	for _, r := range reg.RowRules() {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, AllRows)
	assert.Contains(t, ids, "profit_positive")
	assert.IsIncreasing(t, ids)
}

func TestResolveAllAccess(t *testing.T) {
	p, err := Default().Resolve("1", TableShopSales, shopFields())
	require.NoError(t, err)

	assert.Equal(t, AllRows, p.RowRule)
	assert.Equal(t, ColumnAll, p.ColumnRule)
	assert.Len(t, engine.ApplyPolicy(shopRows(), p), 4)
	assert.Equal(t, shopFields(), p.Fields(shopFields()))
}

func TestResolvePredicateRowRule(t *testing.T) {
	p, err := Default().Resolve("6", TableShopSales, shopFields())
	require.NoError(t, err)

	rows := engine.ApplyPolicy(shopRows(), p)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, engine.String("淘宝"), r["platform"])
	}
}

func TestResolveHideSensitive(t *testing.T) {
	p, err := Default().Resolve("6", TablePlatformAnalysis, shopFields())
	require.NoError(t, err)

	assert.True(t, p.AllowColumn("gmv"))
	assert.False(t, p.AllowColumn("cost"))
	assert.False(t, p.AllowColumn("profit"))
	assert.True(t, p.AllowColumn("unknown"), "only flagged fields are hidden")
	assert.Len(t, p.Fields(shopFields()), 4)
}

func TestResolveDenied(t *testing.T) {
	reg := Default()

	_, err := reg.Resolve("2", TableShopSales, shopFields())
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = reg.Resolve("1", "no_such_table", shopFields())
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = reg.Resolve("99", TableShopSales, shopFields())
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestProfitPositiveIsStrict(t *testing.T) {
	reg := Default()
	require.NoError(t, reg.SetRole("auditor", Role{Tables: map[string]TablePermission{
		TableShopSales: {Access: true, RowRule: "profit_positive"},
	}}))

	p, err := reg.Resolve("auditor", TableShopSales, shopFields())
	require.NoError(t, err)
	rows := engine.ApplyPolicy(shopRows(), p)
	require.Len(t, rows, 1, "text and null profits are not positive")
	assert.Equal(t, engine.Number(20), rows[0]["profit"])
	assert.Equal(t, ColumnAll, p.ColumnRule)
}

func TestExpressionRowRule(t *testing.T) {
	reg := Default()
	require.NoError(t, reg.SetRole("video", Role{Tables: map[string]TablePermission{
		TableShopSales: {Access: true, RowRule: "video_platforms", ColumnRule: ColumnBasicOnly},
	}}))

	p, err := reg.Resolve("video", TableShopSales, shopFields())
	require.NoError(t, err)

	rows := engine.ApplyPolicy(shopRows(), p)
	require.Len(t, rows, 2)
	assert.Equal(t, engine.String("抖音"), rows[0]["platform"])
	assert.Equal(t, engine.String("快手"), rows[1]["platform"])

	assert.Equal(t, []engine.FieldSpec{engine.Dim("customer"), engine.Dim("platform"), engine.Dim("department")},
		p.Fields(shopFields()), "basic_only keeps dimensions")
}

func TestExpressionOnMissingFieldDoesNotMatch(t *testing.T) {
	m, err := compileRowRule(RowRule{ID: "x", Expression: `region == "华东"`})
	require.NoError(t, err)
	assert.Equal(t, KindExpression, m.rule.Kind)
	assert.False(t, m.match(engine.Row{"platform": engine.String("淘宝")}))
}

func TestCustomColumns(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.SetRole("analyst", Role{Tables: map[string]TablePermission{
		TableShopSales: {Access: true, ColumnRule: ColumnCustom, CustomColumns: []string{"platform", "gmv"}},
	}}))

	p, err := reg.Resolve("analyst", TableShopSales, shopFields())
	require.NoError(t, err)
	assert.Equal(t, []engine.FieldSpec{engine.Dim("platform"), engine.Measure("gmv")}, p.Fields(shopFields()))
	assert.True(t, p.AllowRow(shopRows()[2]))
}

func TestRegistryValidation(t *testing.T) {
	reg := NewRegistry()

	err := reg.SetRole("r", Role{Tables: map[string]TablePermission{"t": {Access: true, RowRule: "missing"}}})
	assert.ErrorIs(t, err, ErrUnknownRule)

	err = reg.SetRole("r", Role{Tables: map[string]TablePermission{"t": {Access: true, ColumnRule: "everything"}}})
	assert.ErrorIs(t, err, ErrUnknownRule)

	assert.NoError(t, reg.SetRole("r", Role{Tables: map[string]TablePermission{"t": {Access: false, RowRule: "missing"}}}),
		"denied tables are not checked")

	assert.Error(t, reg.AddRowRule(RowRule{Name: "no id"}))
	assert.Error(t, reg.AddRowRule(RowRule{ID: "bad", Kind: KindPredicate}))
	assert.Error(t, reg.AddRowRule(RowRule{ID: "bad", Expression: "platform =="}))
	assert.Error(t, reg.AddRowRule(RowRule{ID: "bad", Kind: "regex"}))

	require.NoError(t, reg.AddRowRule(RowRule{ID: "p", Filter: &engine.Predicate{Field: "platform", Operator: engine.OpEq, Value: engine.String("淘宝")}}))
	assert.ErrorIs(t, reg.AddRowRule(RowRule{ID: "p", Kind: KindAll}), ErrDuplicateRule)
	assert.NoError(t, reg.AddRowRule(RowRule{ID: AllRows}))
}

const rulesYAML = `
rowRules:
  - id: big_orders
    name: 大单
    filter: {field: gmv, operator: gt, value: 50}
  - id: taobao_or_douyin
    expression: 'platform == "淘宝" or platform == "抖音"'
roles:
  sales:
    name: 销售
    tables:
      shop_sales: {access: true, rowRule: big_orders, columnRule: hide_sensitive}
      finance_report: {access: false}
  ops:
    name: 运营
    tables:
      shop_sales: {access: true, rowRule: taobao_or_douyin, columnRule: custom, customColumns: [platform, gmv]}
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops", "sales"}, reg.Roles())

	p, err := reg.Resolve("sales", TableShopSales, shopFields())
	require.NoError(t, err)
	assert.Len(t, engine.ApplyPolicy(shopRows(), p), 3)
	assert.False(t, p.AllowColumn("profit"))

	_, err = reg.Resolve("sales", TableFinanceReport, shopFields())
	assert.ErrorIs(t, err, ErrAccessDenied)

	p, err = reg.Resolve("ops", TableShopSales, shopFields())
	require.NoError(t, err)
	assert.Len(t, engine.ApplyPolicy(shopRows(), p), 3)
	assert.Len(t, p.Fields(shopFields()), 2)
}

func TestMergeOntoDefault(t *testing.T) {
	reg := Default()
	require.NoError(t, reg.Merge([]byte(`
roles:
  "8":
    name: 区域经理
    tables:
      shop_sales: {access: true, rowRule: dept_yunying1}
`)))
	p, err := reg.Resolve("8", TableShopSales, shopFields())
	require.NoError(t, err)
	assert.Len(t, engine.ApplyPolicy(shopRows(), p), 2)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("rowRules: [oops"))
	assert.Error(t, err)

	_, err = Parse([]byte("roles:\n  r:\n    tables:\n      t: {access: true, rowRule: nope}\n"))
	assert.ErrorIs(t, err, ErrUnknownRule)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
