package engine

// ============================================================================
// CHART BUILDER: Produces ChartConfig from an aggregation result
// ============================================================================
// One series per measure; the x axis walks the result keys in order.
// ============================================================================

// Default color palette for chart series.
var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// ChartConfig defines how to render a chart.
type ChartConfig struct {
	ChartType  string        `json:"chartType"`
	Title      string        `json:"title"`
	XAxis      string        `json:"xAxis,omitempty"`
	YAxis      string        `json:"yAxis,omitempty"`
	Series     []ChartSeries `json:"series"`
	Colors     []string      `json:"colors,omitempty"`
	ShowLegend bool          `json:"showLegend"`
	ShowGrid   bool          `json:"showGrid"`
}

// ChartSeries represents a data series in a chart.
type ChartSeries struct {
	Name  string       `json:"name"`
	Data  []ChartPoint `json:"data"`
	Color string       `json:"color,omitempty"`
}

// ChartPoint represents a single data point.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// BuildChart returns nil when there is nothing to plot.
func BuildChart(chartType, title string, r *Result, dims, measures []FieldSpec) *ChartConfig {
	if r.Len() == 0 || len(measures) == 0 {
		return nil
	}
	if chartType == "" {
		chartType = ChartBar
	}

	config := &ChartConfig{
		ChartType:  chartType,
		Title:      title,
		ShowLegend: len(measures) > 1,
		ShowGrid:   true,
	}
	if len(dims) > 0 {
		config.XAxis = axisLabel(dims)
	}
	if len(measures) == 1 {
		config.YAxis = measures[0].DisplayLabel()
	}

	config.Series = make([]ChartSeries, 0, len(measures))
	for i, m := range measures {
		points := make([]ChartPoint, 0, r.Len())
		for _, key := range r.Keys {
			points = append(points, ChartPoint{
				Label: key,
				Value: RoundTo2(r.Groups[key].Values[m.Key]),
			})
		}
		config.Series = append(config.Series, ChartSeries{
			Name:  m.DisplayLabel(),
			Data:  points,
			Color: defaultColors[i%len(defaultColors)],
		})
	}

	config.Colors = assignColors(len(config.Series))
	return config
}

func axisLabel(dims []FieldSpec) string {
	label := ""
	for i, d := range dims {
		if i > 0 {
			label += KeySeparator
		}
		label += d.DisplayLabel()
	}
	return label
}

func assignColors(count int) []string {
	colors := make([]string, count)
	for i := 0; i < count; i++ {
		colors[i] = defaultColors[i%len(defaultColors)]
	}
	return colors
}
