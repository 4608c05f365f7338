package engine

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ============================================================================
// AGGREGATORS: Grouping and summation rollup
// ============================================================================
// Pipeline: derive (bucket dates) → group → sum → sort keys.
// Sums accumulate as decimals so 0.1 + 0.2 stays 0.3.
// ============================================================================

type groupAcc struct {
	group *Group
	sums  []decimal.Decimal
}

// Aggregate groups rows by the (possibly bucketed) values of dims and sums
// each measure per group. Missing or non-numeric measure cells add zero.
//
// The group key joins dimension values with KeySeparator in the order of
// dims; with no dims every row lands in the grand-total group. Tuples that
// join to the same key are merged into one group.
func Aggregate(rows []Row, dims, measures []FieldSpec, opts ...Option) *Result {
	if len(rows) == 0 {
		return EmptyResult()
	}
	cfg := applyOptions(opts)

	accs := make(map[string]*groupAcc)
	parts := make([]string, len(dims))
	cells := make([]Value, len(dims))

	for _, r := range rows {
		for i, d := range dims {
			v := r.Get(d.Key)
			if cfg.isDateSpec(d) {
				v = BucketValue(v, d.DateAgg)
			}
			cells[i] = v
			parts[i] = v.Text()
		}
		key := cfg.GrandTotalKey
		if len(dims) > 0 {
			key = strings.Join(parts, KeySeparator)
		}

		acc, ok := accs[key]
		if !ok {
			meta := make(map[string]Value, len(dims))
			for i, d := range dims {
				meta[d.Key] = cells[i]
			}
			acc = &groupAcc{
				group: &Group{Meta: meta, Values: make(map[string]float64, len(measures))},
				sums:  make([]decimal.Decimal, len(measures)),
			}
			accs[key] = acc
		}
		acc.group.Count++

		for i, m := range measures {
			if f, ok := r.Get(m.Key).Float(); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
				acc.sums[i] = acc.sums[i].Add(decimal.NewFromFloat(f))
			}
		}
	}

	result := &Result{
		Keys:   make([]string, 0, len(accs)),
		Groups: make(map[string]*Group, len(accs)),
	}
	for key, acc := range accs {
		for i, m := range measures {
			acc.group.Values[m.Key] = acc.sums[i].InexactFloat64()
		}
		result.Keys = append(result.Keys, key)
		result.Groups[key] = acc.group
	}
	sort.Strings(result.Keys)
	return result
}

// Totals sums each measure across every group of r.
func Totals(r *Result, measures []FieldSpec) map[string]float64 {
	totals := make(map[string]float64, len(measures))
	if r == nil {
		return totals
	}
	for _, m := range measures {
		sum := decimal.Zero
		for _, key := range r.Keys {
			sum = sum.Add(decimal.NewFromFloat(r.Groups[key].Values[m.Key]))
		}
		totals[m.Key] = sum.InexactFloat64()
	}
	return totals
}

// ============================================================================
// FORMATTING UTILITIES
// ============================================================================

// FormatNumber formats a value with comma separators; whole numbers get no
// decimals, fractional ones get two.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	abs := math.Abs(v)
	// Beyond 1e15 there are no cents left to round and v*100 could overflow.
	if abs < 1e15 {
		abs = RoundTo2(abs)
	}
	intPart, frac, _ := strings.Cut(strconv.FormatFloat(abs, 'f', 2, 64), ".")

	s := groupDigits(intPart)
	if frac != "00" {
		s += "." + frac
	}
	if v < 0 && s != "0" {
		s = "-" + s
	}
	return s
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return "-" + groupDigits(s[1:])
	}
	return groupDigits(s)
}

// groupDigits inserts a comma every three digits from the right.
func groupDigits(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// RoundTo2 rounds to 2 decimal places.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
