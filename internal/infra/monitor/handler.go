package monitor

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/atomictrader/internal/infra/report"
)

const (
	statusPath  = "/status"
	reportsPath = "/reports"
	healthPath  = "/healthz"
	catalogPath = "/strategies"

	defaultReportLimit = 100
)

type handlerFunc func(http.ResponseWriter, *http.Request)

type monitorHandler struct {
	sources Sources
}

// NewHandler builds the monitoring routes.
func NewHandler(sources Sources) http.Handler {
	h := &monitorHandler{sources: sources}
	mux := http.NewServeMux()
	mux.Handle(statusPath, methodHandlers(map[string]handlerFunc{
		http.MethodGet: h.getStatus,
	}))
	mux.Handle(reportsPath, methodHandlers(map[string]handlerFunc{
		http.MethodGet: h.getReports,
	}))
	mux.Handle(catalogPath, methodHandlers(map[string]handlerFunc{
		http.MethodGet: h.getCatalog,
	}))
	mux.Handle(healthPath, methodHandlers(map[string]handlerFunc{
		http.MethodGet: h.getHealth,
	}))
	return mux
}

func methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (h *monitorHandler) getStatus(w http.ResponseWriter, _ *http.Request) {
	if h.sources.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}
	status := h.sources.Status()
	if status.Strategies == nil {
		status.Strategies = []string{}
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *monitorHandler) getReports(w http.ResponseWriter, r *http.Request) {
	records := []report.Record{}
	if h.sources.Reports != nil {
		records = h.sources.Reports()
	}

	query := r.URL.Query()
	if severity := strings.TrimSpace(query.Get("severity")); severity != "" {
		filtered := make([]report.Record, 0, len(records))
		for _, rec := range records {
			if strings.EqualFold(string(rec.Severity), severity) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	limit := defaultReportLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": records, "count": len(records)})
}

func (h *monitorHandler) getCatalog(w http.ResponseWriter, _ *http.Request) {
	if h.sources.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "strategy catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": h.sources.Catalog()})
}

func (h *monitorHandler) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}
