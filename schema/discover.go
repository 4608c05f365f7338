package schema

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/spektr-org/pivot/engine"
)

// ============================================================================
// AUTO-DISCOVERY: Heuristic column classification
// ============================================================================
// Inspects raw tabular data and generates a schema.Config automatically.
//
// Classification pipeline per column:
//   1. Sample values → detect type (numeric, date, bool, string)
//   2. Type + cardinality → classify role (dimension, measure, skip)
//   3. Pattern matching → temporal columns, sensitive measures
//   4. Pick the date field (the engine buckets exactly one field)
//
// Field keys are the trimmed column headers, so rows parsed from the same
// file line up with the schema.
// ============================================================================

// DiscoverOptions controls discovery behavior.
type DiscoverOptions struct {
	SampleSize     int                    // Max rows to inspect (0 = all). Default: 1000
	RecoverColumns []string               // Force-include columns that were auto-skipped
	Name           string                 // Dataset name override (otherwise inferred)
	DateAgg        engine.DateGranularity // Initial bucketing of the date field. Default: day
}

// DefaultDiscoverOptions returns sensible defaults.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		SampleSize: 1000,
		DateAgg:    engine.GranularityDay,
	}
}

// DiscoverFromCSV generates a schema.Config by inspecting CSV data.
// A leading UTF-8 byte-order mark is ignored.
func DiscoverFromCSV(data []byte, opts ...DiscoverOptions) (*Config, error) {
	opt := DefaultDiscoverOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	decoded := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1

	// 1. Read headers
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	// 2. Read sample rows
	var rows [][]string
	limit := opt.SampleSize
	if limit <= 0 {
		limit = 100000 // safety cap
	}

	for i := 0; i < limit; i++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		rows = append(rows, row)
	}

	config, err := DiscoverFromTable(headers, rows, opt)
	if err != nil {
		return nil, err
	}
	config.DiscoveredFrom = "CSV"
	return config, nil
}

// DiscoverFromTable classifies already-split rows (CSV, XLSX sheets).
func DiscoverFromTable(headers []string, rows [][]string, opt DiscoverOptions) (*Config, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("table has no columns")
	}
	totalRows := len(rows)
	if totalRows == 0 {
		return nil, fmt.Errorf("table has no data rows")
	}
	if opt.DateAgg == "" {
		opt.DateAgg = engine.GranularityDay
	}

	// 1. Analyze each column
	columns := make([]columnAnalysis, 0, len(headers))
	for i, header := range headers {
		if strings.TrimSpace(header) == "" {
			continue
		}
		columns = append(columns, analyzeColumn(header, i, rows, totalRows))
	}

	// 2. Apply recovery overrides
	recoverSet := make(map[string]bool)
	for _, col := range opt.RecoverColumns {
		recoverSet[strings.ToLower(strings.TrimSpace(col))] = true
	}

	// 3. Build schema
	config := &Config{
		Name:    opt.Name,
		Version: "1.0",
	}

	if config.Name == "" {
		config.Name = "Auto-discovered Dataset"
	}

	var dimensions []DimensionMeta
	var measures []MeasureMeta
	var skipped []SkippedColumn

	for _, col := range columns {
		switch col.role {
		case roleDimension:
			dimensions = append(dimensions, col.toDimension())

		case roleMeasure:
			measures = append(measures, col.toMeasure())

		case roleSkipped:
			if recoverSet[strings.ToLower(col.key)] {
				// Force as dimension
				dimensions = append(dimensions, col.toDimension())
			} else {
				skipped = append(skipped, SkippedColumn{
					Column:      col.header,
					Reason:      col.skipReason,
					Recoverable: col.recoverable,
				})
			}
		}
	}

	config.Dimensions = dimensions
	config.Measures = measures
	config.SkippedColumns = skipped
	config.DiscoveredFrom = "table"
	config.DiscoveredAt = time.Now().Format(time.RFC3339)

	// 4. Pick the date field
	config.setDateField(opt.DateAgg)

	return config, nil
}

// ============================================================================
// COLUMN ANALYSIS
// ============================================================================

type columnRole int

const (
	roleDimension columnRole = iota
	roleMeasure
	roleSkipped
)

type columnType int

const (
	typeString columnType = iota
	typeNumeric
	typeDate
	typeBool
)

type columnAnalysis struct {
	header      string
	key         string
	index       int
	colType     columnType
	role        columnRole
	skipReason  string
	recoverable bool

	// Stats
	uniqueCount int
	totalCount  int
	nullCount   int
	sampleVals  []string

	// Special type detection
	isTemporal      bool
	temporalFormat  string
	hasDecimals     bool
	isSensitive     bool
	cardinalityHint string
}

// analyzeColumn inspects all values in a column and classifies it.
func analyzeColumn(header string, index int, rows [][]string, totalRows int) columnAnalysis {
	col := columnAnalysis{
		header:     header,
		key:        strings.TrimSpace(header),
		index:      index,
		totalCount: totalRows,
	}

	// Collect values
	values := make([]string, 0, len(rows))
	uniqueSet := make(map[string]bool)

	for _, row := range rows {
		if index >= len(row) {
			col.nullCount++
			continue
		}
		val := strings.TrimSpace(row[index])
		if IsNullToken(val) {
			col.nullCount++
			continue
		}
		values = append(values, val)
		uniqueSet[val] = true
	}

	col.uniqueCount = len(uniqueSet)

	if len(values) == 0 {
		col.role = roleSkipped
		col.skipReason = "All values are empty/null"
		col.recoverable = false
		return col
	}

	// Collect sample values (up to 10, sorted)
	col.sampleVals = collectSamples(uniqueSet, 10)

	// Step 1: Detect type
	col.colType = detectType(values)

	// Detect decimals in numeric columns (signals continuous data → measure)
	if col.colType == typeNumeric {
		for _, v := range values {
			if strings.Contains(v, ".") {
				col.hasDecimals = true
				break
			}
		}
	}

	// Step 2: Detect special patterns BEFORE role classification
	if col.colType == typeString {
		col.isTemporal, col.temporalFormat = detectTemporalPattern(col.sampleVals)
	}
	if col.colType == typeDate {
		col.isTemporal = true
		col.temporalFormat = "date"
	}

	// Step 3: Classify role based on type + cardinality
	col.classifyRole(totalRows)
	if col.role == roleMeasure {
		col.isSensitive = isSensitiveName(col.key)
	}

	// Step 4: Set cardinality hint
	switch {
	case col.uniqueCount <= 10:
		col.cardinalityHint = "low"
	case col.uniqueCount <= 100:
		col.cardinalityHint = "medium"
	default:
		col.cardinalityHint = "high"
	}

	return col
}

// classifyRole determines dimension vs measure vs skip.
func (col *columnAnalysis) classifyRole(totalRows int) {
	switch col.colType {

	case typeNumeric:
		if col.uniqueCount == totalRows && totalRows > 10 && !col.hasDecimals && isIDName(col.key) {
			col.role = roleSkipped
			col.skipReason = "Unique per row: likely an ID column"
			col.recoverable = true
			return
		}
		// Decimals mean continuous data → always a measure
		if col.hasDecimals {
			col.role = roleMeasure
			return
		}
		// Few unique values AND low ratio → coded dimension (e.g., level 1-5).
		// Absolute < 20 alone fails on small datasets where 6/12 looks "low" but is 50%.
		uniqueRatio := float64(col.uniqueCount) / float64(totalRows)
		if col.uniqueCount < 20 && uniqueRatio < 0.3 {
			col.role = roleDimension
			return
		}
		col.role = roleMeasure

	case typeDate:
		col.role = roleDimension
		col.isTemporal = true

	case typeBool:
		col.role = roleDimension

	case typeString:
		if col.uniqueCount == totalRows && totalRows > 10 {
			// Every value unique → likely an ID or free text
			col.role = roleSkipped
			col.skipReason = "Unique per row: likely an identifier"
			col.recoverable = true
			return
		}
		if col.uniqueCount > totalRows/2 && col.uniqueCount > 50 {
			col.role = roleSkipped
			col.skipReason = fmt.Sprintf("High cardinality (%d unique values): not useful for grouping", col.uniqueCount)
			col.recoverable = true
			return
		}
		col.role = roleDimension
	}
}

// ============================================================================
// TYPE DETECTION
// ============================================================================

// detectType inspects values to determine column type.
// Requires 80%+ of non-null values to match for numeric/date/bool.
func detectType(values []string) columnType {
	if len(values) == 0 {
		return typeString
	}

	numCount := 0
	dateCount := 0
	boolCount := 0

	for _, v := range values {
		if _, ok := ParseNumber(v); ok {
			numCount++
		}
		if isDate(v) {
			dateCount++
		}
		if isBool(v) {
			boolCount++
		}
	}

	threshold := int(float64(len(values)) * 0.8)
	if threshold == 0 {
		threshold = 1
	}

	if boolCount >= threshold {
		return typeBool
	}
	if dateCount >= threshold {
		return typeDate
	}
	if numCount >= threshold {
		return typeNumeric
	}
	return typeString
}

// ParseNumber reads a numeric cell, accepting thousands separators, a
// leading currency symbol and a trailing percent sign.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "") // handle "1,234.56"
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	for _, sym := range []string{"$", "€", "£", "¥", "￥"} {
		s = strings.TrimPrefix(s, sym)
	}
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

// IsNullToken reports whether a raw cell means "no value".
func IsNullToken(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "null", "NULL", "N/A", "n/a", "-", "--":
		return true
	}
	return false
}

// Layouts for date detection. Every one of them is readable by the
// engine's date bucketing.
var dateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
}

func isDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "false" || s == "yes" || s == "no" || s == "是" || s == "否"
}

// ============================================================================
// SPECIAL PATTERN DETECTION
// ============================================================================

var monthPatterns = []struct {
	re     *regexp.Regexp
	format string
}{
	{regexp.MustCompile(`^\d{4}-\d{2}$`), "yyyy-MM"},         // 2026-01
	{regexp.MustCompile(`^\d{4}-Q[1-4]$`), "yyyy-QN"},         // 2026-Q1
	{regexp.MustCompile(`^Q[1-4]-\d{4}$`), "QN-yyyy"},         // Q1-2026
	{regexp.MustCompile(`^\d{4}年\d{1,2}月$`), "yyyy年M月"},    // 2026年1月
	{regexp.MustCompile(`^[A-Z][a-z]{2}-\d{4}$`), "MMM-yyyy"}, // Jan-2026
}

// detectTemporalPattern checks if values match known month/quarter patterns.
func detectTemporalPattern(samples []string) (bool, string) {
	if len(samples) == 0 {
		return false, ""
	}

	for _, pattern := range monthPatterns {
		matches := 0
		for _, s := range samples {
			if pattern.re.MatchString(strings.TrimSpace(s)) {
				matches++
			}
		}
		if float64(matches)/float64(len(samples)) >= 0.8 {
			return true, pattern.format
		}
	}

	return false, ""
}

// Substrings that mark a measure as sensitive (hidden by the
// "hide_sensitive" column rule).
var sensitiveKeywords = []string{
	"cost", "profit", "margin", "salary", "bonus", "commission",
	"成本", "利润", "毛利", "工资", "薪资", "奖金", "提成",
}

func isSensitiveName(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isIDName(key string) bool {
	lower := strings.ToLower(key)
	return lower == "id" || strings.HasSuffix(lower, "_id") || strings.HasSuffix(lower, " id") ||
		strings.HasSuffix(lower, "编号") || strings.HasSuffix(lower, "单号")
}

// ============================================================================
// CONVERSION HELPERS
// ============================================================================

// toDimension converts a column analysis into DimensionMeta.
func (col *columnAnalysis) toDimension() DimensionMeta {
	return DimensionMeta{
		Key:             col.key,
		DisplayName:     toDisplayName(col.header),
		SampleValues:    col.sampleVals,
		IsTemporal:      col.isTemporal,
		TemporalFormat:  col.temporalFormat,
		CardinalityHint: col.cardinalityHint,
	}
}

// toMeasure converts a column analysis into MeasureMeta.
func (col *columnAnalysis) toMeasure() MeasureMeta {
	return MeasureMeta{
		Key:         col.key,
		DisplayName: toDisplayName(col.header),
		Sensitive:   col.isSensitive,
	}
}

// setDateField picks the engine's date field: a column literally named
// like the engine default wins, then the first full-date column, then the
// first year-month column.
func (c *Config) setDateField(agg engine.DateGranularity) {
	pick := -1
	for i, d := range c.Dimensions {
		if d.Key == engine.DefaultDateField {
			pick = i
			break
		}
	}
	for _, format := range []string{"date", "yyyy-MM"} {
		for i, d := range c.Dimensions {
			if pick < 0 && d.TemporalFormat == format {
				pick = i
			}
		}
	}
	if pick < 0 {
		return
	}
	c.Dimensions[pick].IsTemporal = true
	c.Dimensions[pick].DateAgg = agg
	c.Date = c.Dimensions[pick].Key
}

// ============================================================================
// STRING UTILITIES
// ============================================================================

// toDisplayName cleans a header for human display.
// "store_name" → "Store Name", "平台" → "平台"
func toDisplayName(s string) string {
	s = strings.TrimSpace(s)
	// If already has spaces/mixed case, just trim
	if strings.Contains(s, " ") {
		return s
	}

	// Convert snake_case to Title Case
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")

	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[:1])) + strings.ToLower(string(r[1:]))
		}
	}
	return strings.Join(words, " ")
}

// collectSamples picks up to maxSamples representative values.
func collectSamples(uniqueSet map[string]bool, maxSamples int) []string {
	samples := make([]string, 0, len(uniqueSet))
	for v := range uniqueSet {
		samples = append(samples, v)
	}

	// Sort for deterministic output
	sort.Strings(samples)

	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	return samples
}
