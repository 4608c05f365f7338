package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spektr-org/pivot/engine"
)

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// buildQuery resolves shelf keys against the loaded fields so labels and
// sensitivity flags carry through. An empty measure list means every
// measure. agg overrides the date dimension's bucketing.
func buildQuery(ds *engine.DataSource, dims, measures []string, agg engine.DateGranularity) (engine.Query, error) {
	var q engine.Query
	if ds == nil {
		return q, fmt.Errorf("no data loaded")
	}
	if agg != "" && !agg.Valid() {
		return q, fmt.Errorf("unknown date granularity %q", agg)
	}

	for _, key := range dims {
		spec, ok := ds.Field(key)
		if !ok || spec.FieldType != engine.FieldDim {
			return q, fmt.Errorf("unknown dimension %q", key)
		}
		if agg != "" && spec.DateAgg != "" {
			spec.DateAgg = agg
		}
		q.Dimensions = append(q.Dimensions, spec)
	}

	if len(measures) == 0 {
		q.Measures = append(q.Measures, ds.Measures...)
		return q, nil
	}
	for _, key := range measures {
		spec, ok := ds.Field(key)
		if !ok || spec.FieldType != engine.FieldMeasure {
			return q, fmt.Errorf("unknown measure %q", key)
		}
		q.Measures = append(q.Measures, spec)
	}
	return q, nil
}

// parseSelect reads "key=v1|v2". "key=" selects nothing.
func parseSelect(raw string) (string, []engine.Value, error) {
	key, list, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid --select %q: want key=v1|v2", raw)
	}
	values := []engine.Value{}
	for _, v := range strings.Split(list, "|") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, engine.String(v))
		}
	}
	return key, values, nil
}

type measureFilter struct {
	key      string
	op       engine.Operator
	value    *float64
	min, max *float64
}

// parseMeasureFilter reads "key>n", "key<n", "key=n" or "key=lo..hi".
// Either end of a range may be left open.
func parseMeasureFilter(raw string) (measureFilter, error) {
	i := strings.IndexAny(raw, "<>=")
	if i <= 0 {
		return measureFilter{}, fmt.Errorf("invalid --where %q: want key>n, key<n, key=n or key=lo..hi", raw)
	}
	mf := measureFilter{key: strings.TrimSpace(raw[:i])}
	rest := strings.TrimSpace(raw[i+1:])

	switch raw[i] {
	case '>':
		mf.op = engine.OpGt
	case '<':
		mf.op = engine.OpLt
	case '=':
		if lo, hi, ok := strings.Cut(rest, ".."); ok {
			mf.op = engine.OpBetween
			var err error
			if mf.min, err = optionalNumber(lo); err != nil {
				return measureFilter{}, fmt.Errorf("invalid --where %q: %w", raw, err)
			}
			if mf.max, err = optionalNumber(hi); err != nil {
				return measureFilter{}, fmt.Errorf("invalid --where %q: %w", raw, err)
			}
			return mf, nil
		}
		mf.op = engine.OpEq
	}

	f, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return measureFilter{}, fmt.Errorf("invalid --where %q: %w", raw, err)
	}
	mf.value = &f
	return mf, nil
}

func optionalNumber(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
