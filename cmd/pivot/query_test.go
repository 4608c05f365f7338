package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/pivot/engine"
)

func testSource() *engine.DataSource {
	reg := engine.NewRegistry()
	return reg.Load(nil,
		[]engine.FieldSpec{engine.DateDim("日期", engine.GranularityDay), {Key: "平台", FieldType: engine.FieldDim, Label: "平台"}},
		[]engine.FieldSpec{engine.Measure("gmv"), {Key: "成本", FieldType: engine.FieldMeasure, Sensitive: true}},
	)
}

func TestBuildQuery(t *testing.T) {
	ds := testSource()

	q, err := buildQuery(ds, []string{"日期", "平台"}, nil, engine.GranularityMonth)
	require.NoError(t, err)
	assert.Equal(t, engine.GranularityMonth, q.Dimensions[0].DateAgg)
	assert.Empty(t, q.Dimensions[1].DateAgg)
	assert.Len(t, q.Measures, 2, "no measures means all measures")

	q, err = buildQuery(ds, nil, []string{"成本"}, "")
	require.NoError(t, err)
	require.Len(t, q.Measures, 1)
	assert.True(t, q.Measures[0].Sensitive)

	_, err = buildQuery(ds, []string{"gmv"}, nil, "")
	assert.Error(t, err, "measure on the dimension shelf")

	_, err = buildQuery(ds, nil, []string{"利润"}, "")
	assert.Error(t, err)

	_, err = buildQuery(ds, nil, nil, "week")
	assert.Error(t, err)

	_, err = buildQuery(nil, nil, nil, "")
	assert.Error(t, err)
}

func TestParseSelect(t *testing.T) {
	key, values, err := parseSelect("平台=淘宝|抖音")
	require.NoError(t, err)
	assert.Equal(t, "平台", key)
	assert.Equal(t, []engine.Value{engine.String("淘宝"), engine.String("抖音")}, values)

	key, values, err = parseSelect("平台=")
	require.NoError(t, err)
	assert.Equal(t, "平台", key)
	assert.Empty(t, values)

	_, _, err = parseSelect("平台")
	assert.Error(t, err)
}

func TestParseMeasureFilter(t *testing.T) {
	tests := []struct {
		raw  string
		want measureFilter
	}{
		{"gmv>100", measureFilter{key: "gmv", op: engine.OpGt, value: engine.Float(100)}},
		{"gmv < 5.5", measureFilter{key: "gmv", op: engine.OpLt, value: engine.Float(5.5)}},
		{"gmv=3", measureFilter{key: "gmv", op: engine.OpEq, value: engine.Float(3)}},
		{"gmv=10..20", measureFilter{key: "gmv", op: engine.OpBetween, min: engine.Float(10), max: engine.Float(20)}},
		{"gmv=..20", measureFilter{key: "gmv", op: engine.OpBetween, max: engine.Float(20)}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseMeasureFilter(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{"gmv", ">5", "gmv>abc", "gmv=1..x"} {
		_, err := parseMeasureFilter(raw)
		assert.Error(t, err, raw)
	}
}

func TestMultiFlag(t *testing.T) {
	var m multiFlag
	require.NoError(t, m.Set("a=1"))
	require.NoError(t, m.Set("b=2"))
	assert.Equal(t, "a=1,b=2", m.String())
}
