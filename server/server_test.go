package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spektr-org/pivot/engine"
	"github.com/spektr-org/pivot/permission"
)

const salesCSV = "日期,platform,customer,gmv,cost\n" +
	"2024-01-05,淘宝,客户A,100.5,40.5\n" +
	"2024-01-20,抖音,客户B,200.5,80.5\n" +
	"2024-02-03,淘宝,客户B,300.5,120.5\n" +
	"2024-02-14,快手,客户A,50.5,20.5\n" +
	"2024-03-01,抖音,客户C,150.5,60.5\n" +
	"2024-03-09,淘宝,客户C,400.5,160.5\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(engine.NewRegistry(), nil, Options{
		Table:       permission.TableShopSales,
		Permissions: permission.Default(),
	})
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, role string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set(RoleHeader, role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func loadSales(t *testing.T, s *Server) {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/datasource", salesCSV, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/sessions", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func filterPath(id, key, suffix string) string {
	return "/api/sessions/" + id + "/filters/" + url.PathEscape(key) + suffix
}

func decodeFilters(t *testing.T, rec *httptest.ResponseRecorder) filtersResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp filtersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func query(t *testing.T, s *Server, id, role string, q engine.Query) *engine.Report {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/sessions/"+id+"/query", q, role)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report engine.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return &report
}

func byPlatform() engine.Query {
	return engine.Query{
		Dimensions: []engine.FieldSpec{engine.Dim("platform")},
		Measures:   []engine.FieldSpec{engine.Measure("gmv")},
	}
}

func TestLoadDataSource(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/datasource", salesCSV, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 6, resp.Rows)
	assert.Equal(t, "日期", resp.DateField)
	assert.Equal(t, uint64(1), resp.Version)

	var measures []string
	for _, m := range resp.Measures {
		measures = append(measures, m.Key)
	}
	assert.ElementsMatch(t, []string{"gmv", "cost"}, measures)
}

func TestLoadDataSourceEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/datasource", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFieldsRespectRole(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/fields", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var empty fieldsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.False(t, empty.Loaded)

	loadSales(t, s)

	// Role 5 sees the shop table without sensitive columns.
	rec = do(t, s, http.MethodGet, "/api/fields", nil, "5")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp fieldsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Loaded)
	for _, m := range resp.Measures {
		assert.NotEqual(t, "cost", m.Key)
	}

	rec = do(t, s, http.MethodGet, "/api/fields", nil, "2")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/fields", nil, "no-such-role")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)

	rec := do(t, s, http.MethodGet, "/api/sessions/"+id+"/filters", nil, "")
	assert.Empty(t, decodeFilters(t, rec).Active)

	rec = do(t, s, http.MethodDelete, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/filters", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/sessions/not-a-uuid/filters", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilterOperations(t *testing.T) {
	s := newTestServer(t)
	loadSales(t, s)
	id := createSession(t, s)

	resp := decodeFilters(t, do(t, s, http.MethodPost, filterPath(id, "platform", ""), nil, ""))
	assert.Equal(t, []string{"platform"}, resp.Active)
	assert.Len(t, resp.Filters["platform"].Options, 3)

	resp = decodeFilters(t, do(t, s, http.MethodPut, filterPath(id, "platform", "/selection"),
		map[string]interface{}{"values": []string{"淘宝"}}, ""))
	assert.Equal(t, []engine.Value{engine.String("淘宝")}, resp.Filters["platform"].Selected)

	report := query(t, s, id, "", byPlatform())
	assert.Equal(t, []string{"淘宝"}, report.Result.Keys)
	assert.InDelta(t, 801.5, report.Result.Groups["淘宝"].Values["gmv"], 1e-9)

	resp = decodeFilters(t, do(t, s, http.MethodPost, filterPath(id, "platform", "/toggle"),
		map[string]interface{}{"value": "抖音"}, ""))
	assert.Len(t, resp.Filters["platform"].Selected, 2)

	// Measure filter on gmv: only rows above 200 remain.
	decodeFilters(t, do(t, s, http.MethodPost, filterPath(id, "gmv", ""), nil, ""))
	resp = decodeFilters(t, do(t, s, http.MethodPut, filterPath(id, "gmv", "/measure"),
		map[string]interface{}{"operator": "gt", "value": 200}, ""))
	assert.Equal(t, engine.OpGt, resp.Filters["gmv"].Operator)
	assert.Equal(t, 50.5, resp.Filters["gmv"].RangeMin)
	assert.Equal(t, 400.5, resp.Filters["gmv"].RangeMax)

	report = query(t, s, id, "", byPlatform())
	assert.Equal(t, 3, report.MatchedRows)
	assert.InDelta(t, 200.5, report.Result.Groups["抖音"].Values["gmv"], 1e-9)
	assert.InDelta(t, 701, report.Result.Groups["淘宝"].Values["gmv"], 1e-9)

	resp = decodeFilters(t, do(t, s, http.MethodPut, filterPath(id, "platform", "/expanded"),
		map[string]interface{}{"visible": true}, ""))
	assert.Equal(t, []string{"platform"}, resp.Expanded)

	resp = decodeFilters(t, do(t, s, http.MethodPost, filterPath(id, "platform", "/toggle-all"), nil, ""))
	assert.Len(t, resp.Filters["platform"].Selected, 3)

	resp = decodeFilters(t, do(t, s, http.MethodDelete, filterPath(id, "gmv", ""), nil, ""))
	assert.Equal(t, []string{"platform"}, resp.Active)
}

func TestDateAggregation(t *testing.T) {
	s := newTestServer(t)
	loadSales(t, s)
	id := createSession(t, s)

	resp := decodeFilters(t, do(t, s, http.MethodPost, filterPath(id, "日期", ""),
		map[string]interface{}{"fieldType": "dim", "dateAgg": "month"}, ""))
	assert.Equal(t, []engine.Value{
		engine.String("2024-01"), engine.String("2024-02"), engine.String("2024-03"),
	}, resp.Filters["日期"].Options)

	resp = decodeFilters(t, do(t, s, http.MethodPut, filterPath(id, "日期", "/date-agg"),
		map[string]interface{}{"dateAgg": "quarter"}, ""))
	assert.Equal(t, []engine.Value{engine.String("2024-Q1")}, resp.Filters["日期"].Options)

	rec := do(t, s, http.MethodPut, filterPath(id, "日期", "/date-agg"),
		map[string]interface{}{"dateAgg": "week"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidRequests(t *testing.T) {
	s := newTestServer(t)
	loadSales(t, s)
	id := createSession(t, s)

	rec := do(t, s, http.MethodPut, filterPath(id, "gmv", "/measure"),
		map[string]interface{}{"operator": "ge"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, filterPath(id, "platform", ""),
		map[string]interface{}{"fieldType": "metric"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/query", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/query",
		engine.Query{ChartType: "radar"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// cost is hidden from role 5
	rec = do(t, s, http.MethodPost, filterPath(id, "cost", ""), nil, "5")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQueryWithRole(t *testing.T) {
	s := newTestServer(t)
	loadSales(t, s)
	id := createSession(t, s)

	q := byPlatform()
	q.Measures = append(q.Measures, engine.Measure("cost"))

	// Role 6 is limited to Taobao rows on the shop table.
	report := query(t, s, id, "6", q)
	assert.Equal(t, []string{"淘宝"}, report.Result.Keys)
	assert.Len(t, report.Measures, 2)

	// Role 5 sees every row but not cost.
	report = query(t, s, id, "5", q)
	assert.Len(t, report.Result.Keys, 3)
	assert.Equal(t, []engine.FieldSpec{engine.Measure("gmv")}, report.Measures)
	for _, g := range report.Result.Groups {
		assert.NotContains(t, g.Values, "cost")
	}

	rec := do(t, s, http.MethodPost, "/api/sessions/"+id+"/query?table="+permission.TableFinanceReport, q, "6")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQueryChart(t *testing.T) {
	s := newTestServer(t)
	loadSales(t, s)
	id := createSession(t, s)

	q := byPlatform()
	q.ChartType = engine.ChartBar
	report := query(t, s, id, "", q)
	assert.Equal(t, "chart", report.Type)
	require.NotNil(t, report.ChartConfig)
	require.Len(t, report.ChartConfig.Series, 1)
	assert.Len(t, report.ChartConfig.Series[0].Data, 3)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	loadSales(t, s)
	id := createSession(t, s)

	body := map[string]interface{}{
		"dimensions": []engine.FieldSpec{engine.Dim("platform")},
		"measures":   []engine.FieldSpec{engine.Measure("gmv")},
	}
	rec := do(t, s, http.MethodPost, "/api/sessions/"+id+"/export", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	disposition := rec.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, "attachment;"), disposition)
	assert.Contains(t, disposition, ".csv")
	assert.Equal(t, "\ufeffplatform,gmv\n快手,50.5\n抖音,351\n淘宝,801.5", rec.Body.String())
}

func TestExportXLSX(t *testing.T) {
	s := newTestServer(t)
	loadSales(t, s)
	id := createSession(t, s)

	body := map[string]interface{}{
		"dimensions": []engine.FieldSpec{engine.Dim("platform")},
		"measures":   []engine.FieldSpec{engine.Measure("gmv"), engine.Measure("cost")},
	}
	rec := do(t, s, http.MethodPost, "/api/sessions/"+id+"/export?format=xlsx", body, "5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Len(t, rows[0], 2, "cost hidden from role 5")

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/export?format=pdf", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReloadResetsSessionFilters(t *testing.T) {
	s := newTestServer(t)
	loadSales(t, s)
	id := createSession(t, s)

	decodeFilters(t, do(t, s, http.MethodPost, filterPath(id, "platform", ""), nil, ""))
	loadSales(t, s)

	resp := decodeFilters(t, do(t, s, http.MethodGet, "/api/sessions/"+id+"/filters", nil, ""))
	assert.Empty(t, resp.Active)
}

func TestSessionsAreIndependent(t *testing.T) {
	s := newTestServer(t)
	loadSales(t, s)
	a := createSession(t, s)
	b := createSession(t, s)

	decodeFilters(t, do(t, s, http.MethodPost, filterPath(a, "platform", ""), nil, ""))
	decodeFilters(t, do(t, s, http.MethodPut, filterPath(a, "platform", "/selection"),
		map[string]interface{}{"values": []string{}}, ""))

	assert.Equal(t, 0, query(t, s, a, "", byPlatform()).Result.Len())
	assert.Equal(t, 3, query(t, s, b, "", byPlatform()).Result.Len())
}

func TestSessionExpiry(t *testing.T) {
	st := newSessionStore()
	st.create(engine.NewRegistry())
	assert.Equal(t, 0, st.expire(time.Hour))
	assert.Equal(t, 1, st.expire(-time.Second))
	assert.Equal(t, 0, st.len())
}

func TestSessionFollowsUploadedDateField(t *testing.T) {
	s := newTestServer(t)
	before := createSession(t, s)

	upload := "order_date,platform,gmv\n" +
		"2024-01-05,淘宝,100.5\n" +
		"2024-01-20,抖音,200.5\n" +
		"2024-02-03,淘宝,300.5\n"
	rec := do(t, s, http.MethodPost, "/api/datasource", upload, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	after := createSession(t, s)

	q := engine.Query{
		Dimensions: []engine.FieldSpec{engine.DateDim("order_date", engine.GranularityMonth)},
		Measures:   []engine.FieldSpec{engine.Measure("gmv")},
	}
	for _, id := range []string{before, after} {
		report := query(t, s, id, "", q)
		assert.Equal(t, []string{"2024-01", "2024-02"}, report.Result.Keys, id)
	}

	resp := decodeFilters(t, do(t, s, http.MethodPost, filterPath(before, "order_date", ""),
		map[string]interface{}{"fieldType": "dim", "dateAgg": "month"}, ""))
	assert.Equal(t, []engine.Value{engine.String("2024-01"), engine.String("2024-02")},
		resp.Filters["order_date"].Options)
}
