// Package pivot provides a self-service pivot engine for flat business tables.
//
// Usage:
//
//	import "github.com/spektr-org/pivot/engine"
//
//	reg := engine.NewRegistry()
//	reg.Load(rows, dims, measures)
//
//	sess := engine.NewSession(reg, engine.WithDateField("日期"))
//	sess.InitFilter("platform", nil)
//	sess.ToggleOption("platform", engine.String("抖音"))
//
//	result := sess.Aggregate(dims, measures)
//	csv := engine.ToCSV(result, dims, measures)
//
// The engine filters rows (categorical selections and numeric predicates),
// buckets dates by day/month/quarter/year, groups by any set of dimensions
// and sums measures. Everything runs in memory against one loaded table.
//
// Files are loaded with package helpers (CSV, XLSX), role-based row and
// column restrictions come from package permission, and package server
// exposes sessions over HTTP. cmd/pivot wires them into a CLI.
package pivot
