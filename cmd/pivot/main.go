package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spektr-org/pivot/engine"
	"github.com/spektr-org/pivot/helpers"
	"github.com/spektr-org/pivot/internal/config"
	"github.com/spektr-org/pivot/permission"
	"github.com/spektr-org/pivot/schema"
	"github.com/spektr-org/pivot/server"
)

// ============================================================================
// PIVOT CLI: Self-service pivot over CSV/XLSX files
// ============================================================================

const version = "0.3.0"

func main() {
	// ── Flags ─────────────────────────────────────────────────────────────
	filePaths := flag.String("file", "", "Comma-separated CSV/XLSX data files (default $PIVOT_DATA_FILE)")
	schemaPath := flag.String("schema", "", "Path to a JSON or YAML schema (skips auto-detect)")
	discover := flag.Bool("discover", false, "Print the detected schema and exit")
	dims := flag.String("dims", "", "Comma-separated dimension keys to group by")
	measures := flag.String("measures", "", "Comma-separated measure keys to sum (default: all measures)")
	dateAgg := flag.String("date-agg", "", "Date bucketing for the date dimension: day, month, quarter, year")
	chart := flag.String("chart", engine.ChartTable, "Chart type: table, bar, line, area")
	title := flag.String("title", "", "Report title")
	format := flag.String("format", "json", "Output format: json, pretty, text, csv, xlsx")
	outFile := flag.String("out", "", "Write output to file instead of stdout")
	rulesPath := flag.String("rules", "", "YAML permission rules merged onto the built-in set (default $PIVOT_RULES_FILE)")
	role := flag.String("role", "", "Role id to apply row and column permissions for")
	table := flag.String("table", "", "Table id used for permission lookups (default $PIVOT_TABLE)")
	serve := flag.Bool("serve", false, "Start the HTTP API instead of running a single query")
	addr := flag.String("addr", "", "Listen address for --serve (default $PIVOT_ADDR)")
	showVersion := flag.Bool("version", false, "Print version and exit")

	var selects, measureFilters multiFlag
	flag.Var(&selects, "select", `Dimension filter "key=v1|v2" (repeatable)`)
	flag.Var(&measureFilters, "where", `Measure filter "key>n", "key<n", "key=n" or "key=lo..hi" (repeatable)`)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Pivot: self-service pivot tables for flat business data

Usage:
  pivot --file sales.csv --dims 平台 --measures gmv --format text
  pivot --file jan.csv,feb.xlsx --dims 日期 --date-agg month --format csv --out monthly.csv
  pivot --file sales.csv --dims 客户 --select 平台=淘宝|抖音 --where "gmv>100"
  pivot --file sales.csv --discover --format pretty
  pivot --serve --file sales.csv --rules rules.yaml

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment (also read from .env):
  PIVOT_ADDR          Listen address (default :8080)
  PIVOT_DATA_FILE     Comma-separated data files
  PIVOT_SCHEMA_FILE   Schema file
  PIVOT_RULES_FILE    Permission rules file
  PIVOT_TABLE         Table id for permission lookups (default shop_sales)
  PIVOT_DATE_FIELD    Date field key (default: detected from the data)
  PIVOT_GRAND_TOTAL   Group key used when no dimension is selected (default 总计)

Formats:
  json      Full report as JSON (default)
  pretty    Pretty-printed JSON
  text      Aligned table with a total row
  csv       Aggregation as CSV with a UTF-8 BOM (ready for Excel)
  xlsx      Aggregation as an Excel workbook
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("pivot %s\n", version)
		os.Exit(0)
	}

	// ── Configuration ─────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fatalf("%v", err)
	}
	if *filePaths != "" {
		cfg.DataFiles = splitList(*filePaths)
	}
	if *schemaPath != "" {
		cfg.SchemaFile = *schemaPath
	}
	if *rulesPath != "" {
		cfg.RulesFile = *rulesPath
	}
	if *table != "" {
		cfg.Table = *table
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	if !*serve && len(cfg.DataFiles) == 0 {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Schema & data ─────────────────────────────────────────────────────
	var fixed *schema.Config
	if cfg.SchemaFile != "" {
		fixed, err = schema.Load(cfg.SchemaFile)
		if err != nil {
			fatalf("Failed to load schema: %v", err)
		}
		log.Printf("📋 Loaded schema: %s (%d dimensions, %d measures)",
			fixed.Name, len(fixed.Dimensions), len(fixed.Measures))
	}

	var rows []engine.Row
	sch := fixed
	if len(cfg.DataFiles) > 0 {
		rows, sch, err = helpers.LoadFiles(ctx, cfg.DataFiles, fixed)
		if err != nil {
			fatalf("Failed to load data: %v", err)
		}
		if fixed == nil {
			log.Printf("🔍 Auto-Detect: %s (%d dims, %d measures, %d skipped)",
				sch.Name, len(sch.Dimensions), len(sch.Measures), len(sch.SkippedColumns))
		}
	}

	// ── Output writer ─────────────────────────────────────────────────────
	writer := os.Stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		writer = f
	}

	// ── Discover mode ─────────────────────────────────────────────────────
	if *discover {
		if sch == nil {
			fatalf("--discover needs --file")
		}
		writeJSON(writer, sch, *format)
		return
	}

	// ── Permissions ───────────────────────────────────────────────────────
	perms := permission.Default()
	if cfg.RulesFile != "" {
		data, err := os.ReadFile(cfg.RulesFile)
		if err != nil {
			fatalf("Failed to read rules file: %v", err)
		}
		if err := perms.Merge(data); err != nil {
			fatalf("Failed to load rules: %v", err)
		}
		log.Printf("🔐 Loaded permission rules from %s (%d roles)", cfg.RulesFile, len(perms.Roles()))
	}

	reg := engine.NewRegistry()
	if sch != nil {
		specDims, specMeasures := sch.FieldSpecs()
		reg.Load(rows, specDims, specMeasures)
	}

	// ── Serve mode ────────────────────────────────────────────────────────
	if *serve {
		srv := server.New(reg, sch, server.Options{
			Table:       cfg.Table,
			Schema:      fixed,
			Permissions: perms,
			SessionTTL:  30 * time.Minute,
			Engine:      cfg.EngineOptions(),
		})
		if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
			fatalf("Server failed: %v", err)
		}
		return
	}

	// ── Query mode ────────────────────────────────────────────────────────
	opts := append([]engine.Option{engine.WithDateField(sch.DateField())}, cfg.EngineOptions()...)
	sess := engine.NewSession(reg, opts...)
	ds := reg.Current()

	for _, raw := range selects {
		key, values, err := parseSelect(raw)
		if err != nil {
			fatalf("%v", err)
		}
		sess.InitFilter(key, nil)
		sess.UpdateFilterSelection(key, values)
	}
	for _, raw := range measureFilters {
		mf, err := parseMeasureFilter(raw)
		if err != nil {
			fatalf("%v", err)
		}
		spec := engine.Measure(mf.key)
		sess.InitFilter(mf.key, &spec)
		sess.UpdateMeasureFilter(mf.key, mf.op, mf.value, mf.min, mf.max)
	}

	q, err := buildQuery(ds, splitList(*dims), splitList(*measures), engine.DateGranularity(*dateAgg))
	if err != nil {
		fatalf("%v", err)
	}
	q.ChartType = *chart
	q.Title = *title

	var extra []engine.Option
	if *role != "" {
		p, err := perms.Resolve(*role, cfg.Table, ds.Fields())
		if err != nil {
			fatalf("Permission check failed: %v", err)
		}
		log.Printf("🔐 Role %s on %s: rows=%s columns=%s", *role, cfg.Table, p.RowRule, p.ColumnRule)
		extra = append(extra, engine.WithPolicy(p))
	}

	report, err := sess.Execute(q, extra...)
	if err != nil {
		fatalf("Execution failed: %v", err)
	}

	// ── Render output ─────────────────────────────────────────────────────
	switch *format {
	case "csv":
		if err := engine.WriteCSV(writer, report.Result, report.Dimensions, report.Measures); err != nil {
			fatalf("%v", err)
		}
		fmt.Fprintln(writer)
	case "xlsx":
		if err := helpers.WriteXLSX(writer, report.Result, report.Dimensions, report.Measures); err != nil {
			fatalf("%v", err)
		}
	case "text":
		writeText(writer, report)
	default:
		writeJSON(writer, report, *format)
	}
	if *outFile != "" {
		log.Printf("📄 %s written to %s", strings.ToUpper(*format), *outFile)
	}
}

// ============================================================================
// TEXT OUTPUT
// ============================================================================

func writeText(w *os.File, report *engine.Report) {
	table := report.TableData
	if table == nil {
		table = engine.BuildTable(report.Title, report.Result, report.Dimensions, report.Measures)
	}
	if len(table.Columns) == 0 {
		fmt.Fprintln(w, "No data.")
		return
	}
	if table.Title != "" {
		fmt.Fprintln(w, table.Title)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	labels := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		labels = append(labels, c.Label)
	}
	fmt.Fprintln(tw, strings.Join(labels, "\t"))
	for _, row := range table.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if table.Summary != nil {
		cells := make([]string, 0, len(table.Columns))
		for i, c := range table.Columns {
			v, ok := table.Summary.Values[c.Key]
			switch {
			case ok:
				cells = append(cells, v)
			case i == 0:
				cells = append(cells, table.Summary.Label)
			default:
				cells = append(cells, "")
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d of %d rows matched\n", report.MatchedRows, report.TotalRows)
}

// ============================================================================
// JSON OUTPUT
// ============================================================================

func writeJSON(w *os.File, v interface{}, format string) {
	var out []byte
	var err error

	if format == "pretty" {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}

	if err != nil {
		fatalf("Failed to marshal output: %v", err)
	}
	fmt.Fprintln(w, string(out))
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
