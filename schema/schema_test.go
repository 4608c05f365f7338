package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/pivot/engine"
)

const salesSchemaYAML = `
name: 门店销售
dateField: 日期
dimensions:
  - key: 日期
    displayName: 日期
    dateAgg: quarter
  - key: 平台
  - key: 客户
    dateAgg: year
measures:
  - key: gmv
    displayName: GMV
  - key: 成本
    sensitive: true
`

func TestLoadYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "sales.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(salesSchemaYAML), 0o644))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "门店销售", cfg.Name)
	assert.Equal(t, "日期", cfg.DateField())

	dims, measures := cfg.FieldSpecs()
	assert.Equal(t, engine.GranularityQuarter, dims[0].DateAgg)
	assert.Empty(t, dims[2].DateAgg, "only the date field keeps its bucketing")
	assert.Equal(t, "GMV", measures[0].DisplayLabel())
	assert.True(t, measures[1].Sensitive)

	jsonPath := filepath.Join(dir, "sales.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name":"s","dimensions":[{"key":"平台"}],"measures":[{"key":"gmv"}]}`), 0o644))
	cfg, err = Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"平台"}, cfg.DimensionKeys())
	assert.Equal(t, engine.DefaultDateField, cfg.DateField())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"dimensions":[{"key":"a"}],"measures":[{"key":"a"}]}`), "json")
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse([]byte("dimensions:\n  - key: 日期\n    dateAgg: week\n"), "yaml")
	assert.ErrorContains(t, err, "dateAgg")

	_, err = Parse([]byte("{}"), "toml")
	assert.Error(t, err)
}

func TestDateFieldFallsBackToTemporal(t *testing.T) {
	cfg := Config{Dimensions: []DimensionMeta{{Key: "平台"}, {Key: "下单时间", IsTemporal: true}}}
	assert.Equal(t, "下单时间", cfg.DateField())
}
