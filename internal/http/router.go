package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const reportsPrefix = "/api/v1/reports/"

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// method 限定请求方法
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterHealthRoutes 注册健康检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", method(http.MethodGet, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	}))
}

// RegisterReportRoutes 注册日报 API
func (r *Router) RegisterReportRoutes(h *ReportHandler) {
	r.Handle("/api/v1/reports", method(http.MethodGet, h.List))

	// 固定子路径优先，其余视为 {id}
	r.Handle(reportsPrefix, func(w http.ResponseWriter, req *http.Request) {
		sub := strings.TrimPrefix(req.URL.Path, reportsPrefix)
		switch sub {
		case "ingest":
			method(http.MethodPost, h.IngestText)(w, req)
		case "entries":
			method(http.MethodPost, h.IngestEntries)(w, req)
		case "clear":
			method(http.MethodPost, h.Clear)(w, req)
		case "matrix":
			method(http.MethodGet, h.Matrix)(w, req)
		case "stats":
			method(http.MethodGet, h.Stats)(w, req)
		case "export":
			method(http.MethodGet, h.Export)(w, req)
		default:
			if sub == "" || strings.Contains(sub, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if req.Method != http.MethodDelete {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Delete(w, req, sub)
		}
	})

	r.Handle("/api/v1/keywords", h.Keywords)
	r.Handle("/api/v1/departments", method(http.MethodGet, h.Departments))
	r.Handle("/api/v1/sync/status", method(http.MethodGet, h.SyncStatus))
	r.Handle("/api/v1/sync/refresh", method(http.MethodPost, h.Refresh))
}
