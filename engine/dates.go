package engine

import (
	"fmt"
	"strings"
	"time"
)

// Layouts tried, in order, when reading a calendar date.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"2006-01",
	"2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// BucketDate maps a date string to its bucket label at granularity g:
// day → verbatim, month → YYYY-MM, quarter → YYYY-Qn, year → YYYY.
// Unparseable input and unknown granularities return raw unchanged.
func BucketDate(raw string, g DateGranularity) string {
	if g == GranularityDay {
		return raw
	}
	t, ok := parseDate(raw)
	if !ok {
		return raw
	}
	switch g {
	case GranularityMonth:
		return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
	case GranularityQuarter:
		return fmt.Sprintf("%04d-Q%d", t.Year(), (int(t.Month())+2)/3)
	case GranularityYear:
		return fmt.Sprintf("%04d", t.Year())
	}
	return raw
}

// BucketValue buckets a string cell. Nulls and numbers pass through.
func BucketValue(v Value, g DateGranularity) Value {
	if v.Kind() != KindString {
		return v
	}
	return String(BucketDate(v.Text(), g))
}
