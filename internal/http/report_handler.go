package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"teamreport/internal/domain"
	"teamreport/internal/export"
	"teamreport/internal/query"
	"teamreport/internal/service"
	"teamreport/internal/validator"

	"go.uber.org/zap"
)

// PassphraseHeader 删除单条日报时携带的操作员口令
const PassphraseHeader = "X-Operator-Passphrase"

// ReportHandler 日报相关 API
type ReportHandler struct {
	svc    service.ReportService
	now    func() time.Time
	logger *zap.Logger
}

func NewReportHandler(svc service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{svc: svc, now: time.Now, logger: logger}
}

type ingestTextRequest struct {
	Text string `json:"text"`
}

type ingestEntriesRequest struct {
	Entries []any `json:"entries"`
}

type keywordRequest struct {
	Keyword string `json:"keyword"`
}

type keywordsResponse struct {
	Keywords []string `json:"keywords"`
	Changed  bool     `json:"changed"`
}

type listResponse struct {
	Items []domain.ReportRecord `json:"items"`
	Total int                   `json:"total"`
}

// IngestText POST /api/v1/reports/ingest
func (h *ReportHandler) IngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	resp, err := h.svc.IngestText(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// IngestEntries POST /api/v1/reports/entries
func (h *ReportHandler) IngestEntries(w http.ResponseWriter, r *http.Request) {
	var req ingestEntriesRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	resp, err := h.svc.IngestEntries(r.Context(), req.Entries)
	if err != nil {
		h.writeError(w, "ingest_entries", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// List GET /api/v1/reports?start&end&matched&department&q
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	c, err := h.criteria(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	items := h.svc.List(c)
	writeJSON(w, http.StatusOK, Ok(listResponse{Items: items, Total: len(items)}))
}

// Matrix GET /api/v1/reports/matrix
func (h *ReportHandler) Matrix(w http.ResponseWriter, r *http.Request) {
	c, err := h.criteria(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.svc.Matrix(c)))
}

// Stats GET /api/v1/reports/stats
func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	c, err := h.criteria(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.svc.Stats(c)))
}

// Export GET /api/v1/reports/export?format=xlsx|csv&layout=matrix|flat
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	c, err := h.criteria(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	layout, err := export.ParseLayout(r.URL.Query().Get("layout"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	file, err := h.svc.Export(c, format, layout)
	if err != nil {
		h.writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

// Delete DELETE /api/v1/reports/{id}
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.svc.Delete(r.Context(), service.DeleteReportRequest{
		ID:         id,
		Passphrase: r.Header.Get(PassphraseHeader),
	})
	if err != nil {
		h.writeError(w, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"id": id}))
}

// Clear POST /api/v1/reports/clear
func (h *ReportHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req service.ClearReportsRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if err := h.svc.Clear(r.Context(), req); err != nil {
		h.writeError(w, "clear", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.svc.Status()))
}

// Refresh POST /api/v1/sync/refresh
func (h *ReportHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context()); err != nil {
		h.writeError(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.svc.Status()))
}

// SyncStatus GET /api/v1/sync/status
func (h *ReportHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.svc.Status()))
}

// Keywords GET|POST|DELETE /api/v1/keywords
func (h *ReportHandler) Keywords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, Ok(keywordsResponse{Keywords: h.svc.Keywords()}))
	case http.MethodPost:
		var req keywordRequest
		if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
			return
		}
		added, err := h.svc.AddKeyword(req.Keyword)
		if err != nil {
			h.writeError(w, "add_keyword", err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(keywordsResponse{Keywords: h.svc.Keywords(), Changed: added}))
	case http.MethodDelete:
		keyword := r.URL.Query().Get("keyword")
		if keyword == "" {
			var req keywordRequest
			if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
				writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
				return
			}
			keyword = req.Keyword
		}
		removed := h.svc.RemoveKeyword(keyword)
		writeJSON(w, http.StatusOK, Ok(keywordsResponse{Keywords: h.svc.Keywords(), Changed: removed}))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Departments GET /api/v1/departments
func (h *ReportHandler) Departments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.svc.Departments()))
}

// criteria 解析过滤参数；日期接受与抽取结果相同的写法
func (h *ReportHandler) criteria(r *http.Request) (query.Criteria, error) {
	q := r.URL.Query()
	c := query.Criteria{
		OnlyMatchedKeywords: parseBool(q.Get("matched")),
		Departments:         splitValues(q["department"]),
		Text:                strings.TrimSpace(q.Get("q")),
	}
	now := h.now()
	if raw := strings.TrimSpace(q.Get("start")); raw != "" {
		d, err := validator.ParseDate(raw, now)
		if err != nil {
			return query.Criteria{}, fmt.Errorf("invalid start date %q", raw)
		}
		c.DateStart = d
	}
	if raw := strings.TrimSpace(q.Get("end")); raw != "" {
		d, err := validator.ParseDate(raw, now)
		if err != nil {
			return query.Criteria{}, fmt.Errorf("invalid end date %q", raw)
		}
		c.DateEnd = d
	}
	return c, nil
}

// writeError 把领域错误映射为 HTTP 状态码和 Result 结构
func (h *ReportHandler) writeError(w http.ResponseWriter, op string, err error) {
	status := domain.StatusOf(err)
	code := httpStatus(status)
	if code >= http.StatusInternalServerError {
		h.logger.Error("Report request failed", zap.String("op", op), zap.String("status", string(status)), zap.Error(err))
	} else {
		h.logger.Info("Report request rejected", zap.String("op", op), zap.String("status", string(status)), zap.Error(err))
	}

	res := Result[ErrorBody]{
		Code:    ResultError,
		Type:    "error",
		Message: err.Error(),
		Result:  ErrorBody{Status: string(status)},
	}
	if errors.Is(err, domain.ErrStorageFull) {
		res.Type = "warning"
	}
	writeJSON(w, code, res)
}

func httpStatus(s domain.Status) int {
	switch s {
	case domain.StatusOK:
		return http.StatusOK
	case domain.StatusInvalidRequest, domain.StatusNotConfirmed:
		return http.StatusBadRequest
	case domain.StatusUnauthorized:
		return http.StatusUnauthorized
	case domain.StatusNotFound:
		return http.StatusNotFound
	case domain.StatusStorageFull:
		return http.StatusInsufficientStorage
	case domain.StatusExtractionFailed:
		return http.StatusBadGateway
	case domain.StatusPersistenceFailed:
		return http.StatusServiceUnavailable
	case domain.StatusCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
