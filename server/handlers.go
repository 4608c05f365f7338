package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spektr-org/pivot/engine"
	"github.com/spektr-org/pivot/helpers"
	"github.com/spektr-org/pivot/permission"
	"github.com/spektr-org/pivot/schema"
)

const (
	maxUploadBytes = 64 << 20
	maxBodyBytes   = 1 << 20

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️  Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// fieldKey returns the {key} path parameter, unescaped.
func fieldKey(r *http.Request) string {
	raw := chi.URLParam(r, "key")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}

// policyError maps a permission error to an HTTP status.
func policyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, permission.ErrAccessDenied), errors.Is(err, permission.ErrUnknownRole):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ============================================================================
// DATA SOURCE
// ============================================================================

type loadResponse struct {
	Version        uint64                 `json:"version"`
	Rows           int                    `json:"rows"`
	DateField      string                 `json:"dateField"`
	Dimensions     []engine.FieldSpec     `json:"dimensions"`
	Measures       []engine.FieldSpec     `json:"measures"`
	SkippedColumns []schema.SkippedColumn `json:"skippedColumns,omitempty"`
}

func (s *Server) handleLoadDataSource(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("failed to read upload: %v", err))
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	rows, sch, err := s.parseUpload(r, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dims, measures := sch.FieldSpecs()
	s.mu.Lock()
	ds := s.registry.Load(rows, dims, measures)
	s.schema = sch
	s.mu.Unlock()

	log.Printf("📥 Loaded data source v%d: %d rows, %d dimensions, %d measures",
		ds.Version, len(rows), len(dims), len(measures))

	writeJSON(w, http.StatusOK, loadResponse{
		Version:        ds.Version,
		Rows:           len(rows),
		DateField:      sch.DateField(),
		Dimensions:     dims,
		Measures:       measures,
		SkippedColumns: sch.SkippedColumns,
	})
}

func (s *Server) parseUpload(r *http.Request, data []byte) ([]engine.Row, *schema.Config, error) {
	xlsx := r.URL.Query().Get("format") == "xlsx" ||
		strings.HasPrefix(r.Header.Get("Content-Type"), xlsxContentType)

	if fixed := s.opts.Schema; fixed != nil {
		var rows []engine.Row
		var err error
		if xlsx {
			rows, err = helpers.ParseXLSX(data, *fixed)
		} else {
			rows, err = helpers.ParseCSV(data, *fixed)
		}
		return rows, fixed, err
	}
	if xlsx {
		return helpers.ParseXLSXAuto(data)
	}
	return helpers.ParseCSVAuto(data)
}

type fieldsResponse struct {
	Loaded     bool               `json:"loaded"`
	Version    uint64             `json:"version"`
	Rows       int                `json:"rows"`
	LoadedAt   *time.Time         `json:"loadedAt,omitempty"`
	Dimensions []engine.FieldSpec `json:"dimensions"`
	Measures   []engine.FieldSpec `json:"measures"`
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	ds := s.registry.Current()
	if ds == nil {
		writeJSON(w, http.StatusOK, fieldsResponse{Dimensions: []engine.FieldSpec{}, Measures: []engine.FieldSpec{}})
		return
	}

	p, err := s.policy(r, ds.Fields())
	if err != nil {
		policyError(w, err)
		return
	}
	resp := fieldsResponse{
		Loaded:     true,
		Version:    ds.Version,
		Rows:       len(ds.Rows),
		LoadedAt:   &ds.LoadedAt,
		Dimensions: ds.Dimensions,
		Measures:   ds.Measures,
	}
	if p != nil {
		resp.Dimensions = p.Fields(ds.Dimensions)
		resp.Measures = p.Fields(ds.Measures)
		resp.Rows = len(engine.ApplyPolicy(ds.Rows, p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	roles := []string{}
	if s.opts.Permissions != nil {
		roles = s.opts.Permissions.Roles()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"roles": roles})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.len(),
		"version":  s.registry.Version(),
	})
}

// ============================================================================
// SESSIONS
// ============================================================================

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session)

// withSession looks up the {id} session and holds its lock for the rest
// of the request. The session picks up the date field of whatever table is
// loaded now, not the one loaded when it was created.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		sess.lastUsed = time.Now()
		sess.engine.Reconfigure(s.sessionOptions()...)
		h(w, r, sess)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.create(s.registry, s.sessionOptions()...)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":        sess.id,
		"createdAt": sess.created,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// FILTERS
// ============================================================================

type filtersResponse struct {
	Active   []string       `json:"active"`
	Expanded []string       `json:"expanded"`
	Filters  engine.Filters `json:"filters"`
}

func writeFilters(w http.ResponseWriter, sess *session) {
	fs := sess.engine.FilterSet()
	resp := filtersResponse{Active: fs.Active(), Expanded: []string{}, Filters: fs.Filters()}
	for _, key := range resp.Active {
		if fs.IsExpanded(key) {
			resp.Expanded = append(resp.Expanded, key)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request, sess *session) {
	writeFilters(w, sess)
}

// checkColumn rejects filters on fields the caller's role cannot see.
func (s *Server) checkColumn(w http.ResponseWriter, r *http.Request, key string) bool {
	ds := s.registry.Current()
	if ds == nil {
		return true
	}
	p, err := s.policy(r, ds.Fields())
	if err != nil {
		policyError(w, err)
		return false
	}
	if p != nil && !p.AllowColumn(key) {
		writeError(w, http.StatusForbidden, fmt.Sprintf("field %q is not visible to role %q", key, p.Role))
		return false
	}
	return true
}

func (s *Server) handleInitFilter(w http.ResponseWriter, r *http.Request, sess *session) {
	key := fieldKey(r)
	if !s.checkColumn(w, r, key) {
		return
	}
	var body struct {
		FieldType engine.FieldType       `json:"fieldType"`
		DateAgg   engine.DateGranularity `json:"dateAgg"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var spec *engine.FieldSpec
	if body.FieldType != "" {
		if body.FieldType != engine.FieldDim && body.FieldType != engine.FieldMeasure {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown field type %q", body.FieldType))
			return
		}
		spec = &engine.FieldSpec{Key: key, FieldType: body.FieldType, DateAgg: body.DateAgg}
	}
	sess.engine.InitFilter(key, spec)
	writeFilters(w, sess)
}

func (s *Server) handleRemoveFilter(w http.ResponseWriter, r *http.Request, sess *session) {
	sess.engine.RemoveFilter(fieldKey(r))
	writeFilters(w, sess)
}

func (s *Server) handleDateAggregation(w http.ResponseWriter, r *http.Request, sess *session) {
	var body struct {
		DateAgg engine.DateGranularity `json:"dateAgg"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !body.DateAgg.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown date granularity %q", body.DateAgg))
		return
	}
	sess.engine.UpdateDateAggregation(fieldKey(r), body.DateAgg)
	writeFilters(w, sess)
}

func (s *Server) handleToggleOption(w http.ResponseWriter, r *http.Request, sess *session) {
	var body struct {
		Value engine.Value `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess.engine.ToggleOption(fieldKey(r), body.Value)
	writeFilters(w, sess)
}

func (s *Server) handleToggleSelectAll(w http.ResponseWriter, r *http.Request, sess *session) {
	sess.engine.ToggleSelectAll(fieldKey(r))
	writeFilters(w, sess)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request, sess *session) {
	var body struct {
		Values []engine.Value `json:"values"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Values == nil {
		body.Values = []engine.Value{}
	}
	sess.engine.UpdateFilterSelection(fieldKey(r), body.Values)
	writeFilters(w, sess)
}

func (s *Server) handleMeasureFilter(w http.ResponseWriter, r *http.Request, sess *session) {
	var body struct {
		Operator engine.Operator `json:"operator"`
		Value    *float64        `json:"value"`
		MinValue *float64        `json:"minValue"`
		MaxValue *float64        `json:"maxValue"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch body.Operator {
	case engine.OpAll, engine.OpGt, engine.OpLt, engine.OpEq, engine.OpBetween:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown operator %q", body.Operator))
		return
	}
	sess.engine.UpdateMeasureFilter(fieldKey(r), body.Operator, body.Value, body.MinValue, body.MaxValue)
	writeFilters(w, sess)
}

func (s *Server) handleExpanded(w http.ResponseWriter, r *http.Request, sess *session) {
	var body struct {
		Visible bool `json:"visible"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess.engine.SetExpanded(fieldKey(r), body.Visible)
	writeFilters(w, sess)
}

// ============================================================================
// QUERY & EXPORT
// ============================================================================

// execute runs q for the session under the caller's policy.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, sess *session, q engine.Query) (*engine.Report, bool) {
	var opts []engine.Option
	if ds := s.registry.Current(); ds != nil {
		p, err := s.policy(r, ds.Fields())
		if err != nil {
			policyError(w, err)
			return nil, false
		}
		if p != nil {
			opts = append(opts, engine.WithPolicy(p))
		}
	}

	report, err := sess.engine.Execute(q, opts...)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownChartType) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return report, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, sess *session) {
	var q engine.Query
	if err := decodeBody(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, ok := s.execute(w, r, sess, q)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *session) {
	var body struct {
		Dimensions []engine.FieldSpec `json:"dimensions"`
		Measures   []engine.FieldSpec `json:"measures"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown export format %q", format))
		return
	}

	report, ok := s.execute(w, r, sess, engine.Query{
		Dimensions: body.Dimensions,
		Measures:   body.Measures,
		ChartType:  engine.ChartTable,
	})
	if !ok {
		return
	}

	var buf bytes.Buffer
	var err error
	contentType := "text/csv; charset=utf-8"
	if format == "xlsx" {
		contentType = xlsxContentType
		err = helpers.WriteXLSX(&buf, report.Result, report.Dimensions, report.Measures)
	} else {
		err = engine.WriteCSV(&buf, report.Result, report.Dimensions, report.Measures)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := engine.ExportFilename(ExportPrefix, format, time.Now())
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("⚠️  Failed to write export: %v", err)
	}
}
