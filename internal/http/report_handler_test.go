package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"teamreport/internal/coordinator"
	"teamreport/internal/domain"
	"teamreport/internal/query"
	"teamreport/internal/service"
	"teamreport/internal/store"
	"teamreport/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPassphrase = "op-secret"

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, rawText string, keywords []string) ([]any, error) {
	args := m.Called(ctx, rawText, keywords)
	if v := args.Get(0); v != nil {
		return v.([]any), args.Error(1)
	}
	return nil, args.Error(1)
}

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func setupRouter(t *testing.T) (*Router, *mockExtractor, service.ReportService) {
	t.Helper()
	backend := store.NewFileSnapshot(filepath.Join(t.TempDir(), "reports.json"))
	coord := coordinator.NewSnapshot(backend, coordinator.Options{
		SoftLimitBytes: 900000,
		Passphrase:     testPassphrase,
	}, zap.NewNop())
	require.NoError(t, coord.Start(context.Background()))
	t.Cleanup(coord.Stop)

	ext := new(mockExtractor)
	svc := service.NewReportService(coord, ext, validator.New(domain.DefaultCatalog()),
		service.NewKeywordSet([]string{"客诉"}), zap.NewNop())

	router := NewRouter(zap.NewNop())
	router.RegisterHealthRoutes()
	router.RegisterReportRoutes(NewReportHandler(svc, zap.NewNop()))
	return router, ext, svc
}

func do(t *testing.T, h http.Handler, method, target string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func seedEntries(t *testing.T, h http.Handler) {
	t.Helper()
	rec, env := do(t, h, http.MethodPost, "/api/v1/reports/entries", map[string]any{
		"entries": []any{
			map[string]any{"employeeName": "李静", "date": "2024-01-05", "department": "蔬果", "content": "处理客诉"},
			map[string]any{"employeeName": "王强", "date": "2024-01-06", "department": "水产", "content": "收货"},
			map[string]any{"employeeName": "", "date": "2024-01-06", "content": "x"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ResultSuccess, env.Code)
}

func TestHealthz(t *testing.T) {
	router, _, _ := setupRouter(t)
	rec, env := do(t, router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Type)
}

func TestIngestEntriesAndList(t *testing.T) {
	router, _, _ := setupRouter(t)
	seedEntries(t, router)

	rec, env := do(t, router, http.MethodGet, "/api/v1/reports", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(env.Result, &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "王强", list.Items[0].EmployeeName)

	_, env = do(t, router, http.MethodGet, "/api/v1/reports?matched=true", nil, nil)
	require.NoError(t, json.Unmarshal(env.Result, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, []string{"客诉"}, list.Items[0].MatchedKeywords)

	_, env = do(t, router, http.MethodGet, "/api/v1/reports?"+url.Values{"start": {"2024/1/6"}, "end": {"2024-01-06"}, "department": {"水产,蔬果"}}.Encode(), nil, nil)
	require.NoError(t, json.Unmarshal(env.Result, &list))
	assert.Equal(t, 1, list.Total)

	rec, _ = do(t, router, http.MethodGet, "/api/v1/reports?start=2024-02-30", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestText(t *testing.T) {
	router, ext, _ := setupRouter(t)
	ext.On("Extract", mock.Anything, "chat log", []string{"客诉"}).Return([]any{
		map[string]any{"employeeName": "李静", "date": "2024-01-05", "content": "a"},
	}, nil).Once()

	rec, env := do(t, router, http.MethodPost, "/api/v1/reports/ingest", map[string]string{"text": "chat log"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp service.IngestResponse
	require.NoError(t, json.Unmarshal(env.Result, &resp))
	assert.Equal(t, 1, resp.Created)
	assert.Empty(t, resp.Rejected)

	ext.On("Extract", mock.Anything, "broken", mock.Anything).
		Return(nil, &domain.ExtractionError{Err: errors.New("bad json")}).Once()
	rec, env = do(t, router, http.MethodPost, "/api/v1/reports/ingest", map[string]string{"text": "broken"}, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, ResultError, env.Code)
	assert.JSONEq(t, `{"status":"extraction_failed"}`, string(env.Result))

	rec, _ = do(t, router, http.MethodPost, "/api/v1/reports/ingest", map[string]string{"text": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/v1/reports/ingest", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMatrixAndStats(t *testing.T) {
	router, _, _ := setupRouter(t)
	seedEntries(t, router)

	rec, env := do(t, router, http.MethodGet, "/api/v1/reports/matrix", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m struct {
		Departments []string `json:"departments"`
		Rows        []struct {
			Date  string `json:"date"`
			Cells []struct {
				Department string `json:"department"`
				Missing    bool   `json:"missing"`
			} `json:"cells"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &m))
	require.Len(t, m.Rows, 2)
	assert.Equal(t, "2024-01-06", m.Rows[0].Date)
	assert.Equal(t, "水产", m.Rows[1].Cells[1].Department)
	assert.True(t, m.Rows[1].Cells[1].Missing)

	_, env = do(t, router, http.MethodGet, "/api/v1/reports/stats", nil, nil)
	var stats struct {
		Total   int `json:"total"`
		Matched int `json:"matched"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Matched)
}

func TestExport(t *testing.T) {
	router, _, _ := setupRouter(t)
	seedEntries(t, router)

	rec, _ := do(t, router, http.MethodGet, "/api/v1/reports/export?format=csv&layout=flat&start=2024-01-01&end=2024-01-31", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dingtalk_reports_2024-01-01_2024-01-31_flat.csv")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\xEF\xBB\xBF")))
	assert.Contains(t, rec.Body.String(), "Department,Employee Name,Date,Content,Next Steps,Blockers,Keywords")

	rec, _ = do(t, router, http.MethodGet, "/api/v1/reports/export", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")

	rec, _ = do(t, router, http.MethodGet, "/api/v1/reports/export?format=pdf", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteReport(t *testing.T) {
	router, _, svc := setupRouter(t)
	seedEntries(t, router)
	id := svc.List(query.Criteria{})[0].ID

	rec, env := do(t, router, http.MethodDelete, "/api/v1/reports/"+id, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"status":"unauthorized"}`, string(env.Result))

	rec, _ = do(t, router, http.MethodDelete, "/api/v1/reports/missing", nil, map[string]string{PassphraseHeader: testPassphrase})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, router, http.MethodDelete, "/api/v1/reports/"+id, nil, map[string]string{PassphraseHeader: testPassphrase})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, svc.List(query.Criteria{}), 1)

	rec, _ = do(t, router, http.MethodGet, "/api/v1/reports/"+id, nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	rec, _ = do(t, router, http.MethodDelete, "/api/v1/reports/a/b", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearReports(t *testing.T) {
	router, _, svc := setupRouter(t)
	seedEntries(t, router)

	rec, env := do(t, router, http.MethodPost, "/api/v1/reports/clear", map[string]any{"confirm": false, "passphrase": testPassphrase}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"not_confirmed"}`, string(env.Result))

	rec, _ = do(t, router, http.MethodPost, "/api/v1/reports/clear", map[string]any{"confirm": true, "passphrase": "admin888"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, svc.List(query.Criteria{}), 2)

	rec, _ = do(t, router, http.MethodPost, "/api/v1/reports/clear", map[string]any{"confirm": true, "passphrase": testPassphrase}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.List(query.Criteria{}))
}

func TestKeywordsEndpoint(t *testing.T) {
	router, _, _ := setupRouter(t)

	_, env := do(t, router, http.MethodPost, "/api/v1/keywords", map[string]string{"keyword": " 补货 "}, nil)
	var kw keywordsResponse
	require.NoError(t, json.Unmarshal(env.Result, &kw))
	assert.True(t, kw.Changed)
	assert.Equal(t, []string{"客诉", "补货"}, kw.Keywords)

	rec, _ := do(t, router, http.MethodPost, "/api/v1/keywords", map[string]string{"keyword": "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, env = do(t, router, http.MethodDelete, "/api/v1/keywords?keyword="+url.QueryEscape("客诉"), nil, nil)
	require.NoError(t, json.Unmarshal(env.Result, &kw))
	assert.True(t, kw.Changed)
	assert.Equal(t, []string{"补货"}, kw.Keywords)

	_, env = do(t, router, http.MethodGet, "/api/v1/keywords", nil, nil)
	require.NoError(t, json.Unmarshal(env.Result, &kw))
	assert.Equal(t, []string{"补货"}, kw.Keywords)

	rec, _ = do(t, router, http.MethodPut, "/api/v1/keywords", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSyncStatus(t *testing.T) {
	router, _, _ := setupRouter(t)
	seedEntries(t, router)

	_, env := do(t, router, http.MethodGet, "/api/v1/sync/status", nil, nil)
	var status coordinator.Status
	require.NoError(t, json.Unmarshal(env.Result, &status))
	assert.Equal(t, coordinator.StateSaved, status.State)
	assert.Equal(t, "snapshot", status.Mode)
	assert.Equal(t, "file", status.Backend)
	assert.Equal(t, 2, status.RecordCount)

	rec, env := do(t, router, http.MethodPost, "/api/v1/sync/refresh", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Result, &status))
	assert.Equal(t, coordinator.StateSynced, status.State)
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusInsufficientStorage, httpStatus(domain.StatusOf(&domain.CapacityError{Size: 2, Limit: 1})))
	assert.Equal(t, http.StatusServiceUnavailable, httpStatus(domain.StatusOf(&domain.PersistenceError{Op: "write", Err: errors.New("x")})))
	assert.Equal(t, http.StatusRequestTimeout, httpStatus(domain.StatusOf(context.Canceled)))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(domain.StatusOf(errors.New("boom"))))
}
