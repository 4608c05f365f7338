package permission

import "github.com/spektr-org/pivot/engine"

// Table ids of the built-in rule set.
const (
	TableShopSales        = "shop_sales"
	TableFinanceReport    = "finance_report"
	TableCustomerAnalysis = "customer_analysis"
	TablePlatformAnalysis = "platform_analysis"
	TableDepartmentKPI    = "department_kpi"
)

var defaultRowRules = []RowRule{
	eqRule("customer_a", "客户A", "customer", "客户A"),
	eqRule("customer_b", "客户B", "customer", "客户B"),
	eqRule("customer_c", "客户C", "customer", "客户C"),
	eqRule("platform_taobao", "淘宝平台", "platform", "淘宝"),
	eqRule("platform_douyin", "抖音平台", "platform", "抖音"),
	eqRule("platform_kuaishou", "快手平台", "platform", "快手"),
	eqRule("dept_yunying1", "运营一部", "department", "运营一部"),
	eqRule("dept_yunying2", "运营二部", "department", "运营二部"),
	{
		ID:     "profit_positive",
		Name:   "盈利数据",
		Kind:   KindPredicate,
		Filter: &engine.Predicate{Field: "profit", Operator: engine.OpGt, Value: engine.Number(0)},
	},
	{
		ID:         "video_platforms",
		Name:       "短视频平台",
		Kind:       KindExpression,
		Expression: `platform == "抖音" or platform == "快手"`,
	},
}

func eqRule(id, name, field, value string) RowRule {
	return RowRule{
		ID:     id,
		Name:   name,
		Kind:   KindPredicate,
		Filter: &engine.Predicate{Field: field, Operator: engine.OpEq, Value: engine.String(value)},
	}
}

func grant(row string, col ColumnRule) TablePermission {
	return TablePermission{Access: true, RowRule: row, ColumnRule: col}
}

var deny = TablePermission{}

var defaultRoles = map[string]Role{
	"1": {Name: "超级管理员", Tables: map[string]TablePermission{
		TableShopSales:        grant(AllRows, ColumnAll),
		TableFinanceReport:    grant(AllRows, ColumnAll),
		TableCustomerAnalysis: grant(AllRows, ColumnAll),
		TablePlatformAnalysis: grant(AllRows, ColumnAll),
		TableDepartmentKPI:    grant(AllRows, ColumnAll),
	}},
	"2": {Name: "运维工程师", Tables: map[string]TablePermission{
		TableShopSales:        deny,
		TableFinanceReport:    deny,
		TableCustomerAnalysis: deny,
		TablePlatformAnalysis: grant(AllRows, ColumnHideSensitive),
		TableDepartmentKPI:    deny,
	}},
	"3": {Name: "数据质量管理员", Tables: map[string]TablePermission{
		TableShopSales:        grant(AllRows, ColumnAll),
		TableFinanceReport:    deny,
		TableCustomerAnalysis: grant(AllRows, ColumnHideSensitive),
		TablePlatformAnalysis: grant(AllRows, ColumnHideSensitive),
		TableDepartmentKPI:    deny,
	}},
	"4": {Name: "数据资产管理员", Tables: map[string]TablePermission{
		TableShopSales:        grant(AllRows, ColumnAll),
		TableFinanceReport:    grant(AllRows, ColumnHideSensitive),
		TableCustomerAnalysis: grant(AllRows, ColumnAll),
		TablePlatformAnalysis: grant(AllRows, ColumnAll),
		TableDepartmentKPI:    grant(AllRows, ColumnHideSensitive),
	}},
	"5": {Name: "财务BI", Tables: map[string]TablePermission{
		TableShopSales:        grant(AllRows, ColumnHideSensitive),
		TableFinanceReport:    grant(AllRows, ColumnAll),
		TableCustomerAnalysis: grant(AllRows, ColumnAll),
		TablePlatformAnalysis: grant(AllRows, ColumnAll),
		TableDepartmentKPI:    deny,
	}},
	"6": {Name: "业务BI", Tables: map[string]TablePermission{
		TableShopSales:        grant("platform_taobao", ColumnAll),
		TableFinanceReport:    deny,
		TableCustomerAnalysis: grant(AllRows, ColumnHideSensitive),
		TablePlatformAnalysis: grant("platform_taobao", ColumnHideSensitive),
		TableDepartmentKPI:    deny,
	}},
	"7": {Name: "高层管理者", Tables: map[string]TablePermission{
		TableShopSales:        grant(AllRows, ColumnAll),
		TableFinanceReport:    grant(AllRows, ColumnAll),
		TableCustomerAnalysis: grant(AllRows, ColumnAll),
		TablePlatformAnalysis: grant(AllRows, ColumnAll),
		TableDepartmentKPI:    grant(AllRows, ColumnAll),
	}},
}

// Default returns a registry with the built-in rules and roles 1–7.
func Default() *Registry {
	reg := NewRegistry()
	for _, rule := range defaultRowRules {
		if err := reg.AddRowRule(rule); err != nil {
			panic(err)
		}
	}
	for id, role := range defaultRoles {
		if err := reg.SetRole(id, role); err != nil {
			panic(err)
		}
	}
	return reg
}
