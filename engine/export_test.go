package engine

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCSV(t *testing.T) {
	dims := []FieldSpec{Dim("platform")}
	measures := []FieldSpec{Measure("gmv")}
	r := Aggregate(platformRows(), dims, measures)

	assert.Equal(t, "platform,gmv\n抖音,80\n淘宝,150", ToCSV(r, dims, measures))
}

func TestToCSVEmptyResult(t *testing.T) {
	assert.Equal(t, "platform,gmv", ToCSV(EmptyResult(), []FieldSpec{Dim("platform")}, []FieldSpec{Measure("gmv")}))
	assert.Equal(t, "", ToCSV(nil, nil, nil))
}

func TestToCSVMissingCells(t *testing.T) {
	r := &Result{
		Keys:   []string{"x"},
		Groups: map[string]*Group{"x": {Meta: map[string]Value{}, Values: map[string]float64{}}},
	}
	assert.Equal(t, "a,v\n,0", ToCSV(r, []FieldSpec{Dim("a")}, []FieldSpec{Measure("v")}))
}

func TestToCSVDoesNotQuote(t *testing.T) {
	rows := []Row{{"name": String("a,b"), "v": Number(1.5)}}
	dims := []FieldSpec{Dim("name")}
	measures := []FieldSpec{Measure("v")}
	assert.Equal(t, "name,v\na,b,1.5", ToCSV(Aggregate(rows, dims, measures), dims, measures))
}

func TestWriteCSVAddsBOM(t *testing.T) {
	dims := []FieldSpec{Dim("platform")}
	measures := []FieldSpec{Measure("gmv")}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Aggregate(platformRows(), dims, measures), dims, measures))

	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}))
	assert.Equal(t, "platform,gmv\n抖音,80\n淘宝,150", string(out[3:]))
}

func TestExportFilename(t *testing.T) {
	at := time.Date(2025, 3, 7, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "自助分析数据_2025-03-07.csv", ExportFilename("自助分析数据", "csv", at))
	assert.Equal(t, "report_2025-03-07.xlsx", ExportFilename("report", ".xlsx", at))
}
