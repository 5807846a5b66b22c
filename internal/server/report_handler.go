package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	stderrors "errors"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/report"
)

// ReportHandler handles evaluation-report HTTP requests.
type ReportHandler struct {
	store report.Store
}

// NewReportHandler creates a new report handler.
func NewReportHandler(store report.Store) *ReportHandler {
	return &ReportHandler{store: store}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err // Encoding error after response started
	}
}

// writeError writes an error response, mapping application error codes to
// HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		writeJSON(w, appErr.HTTPStatus(), map[string]string{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// RegisterRoutes registers report routes.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reports", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		h.handleList(w, r)
	})

	mux.HandleFunc("/v1/reports/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) == 0 || parts[0] == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}

		runID := parts[0]
		subPath := ""
		if len(parts) > 1 {
			subPath = parts[1]
		}

		switch {
		case subPath == "" || subPath == "/":
			switch r.Method {
			case http.MethodGet:
				h.handleGet(w, r, runID)
			case http.MethodDelete:
				h.handleDelete(w, r, runID)
			default:
				writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			}
		case subPath == "metrics":
			if r.Method == http.MethodGet {
				h.handleMetric(w, r, runID)
			} else {
				writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			}
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		}
	})
}

// handleList handles GET /v1/reports
func (h *ReportHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, errors.ValidationError("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	runIDs, err := h.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs": runIDs,
	})
}

// handleGet handles GET /v1/reports/{run_id}
func (h *ReportHandler) handleGet(w http.ResponseWriter, r *http.Request, runID string) {
	rep, err := h.store.Get(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleDelete handles DELETE /v1/reports/{run_id}
func (h *ReportHandler) handleDelete(w http.ResponseWriter, r *http.Request, runID string) {
	if err := h.store.Delete(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleMetric handles GET /v1/reports/{run_id}/metrics?q=<query>, looking
// up a single metric value inside a stored report by its free-form name.
func (h *ReportHandler) handleMetric(w http.ResponseWriter, r *http.Request, runID string) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, errors.ValidationError("query parameter q is required"))
		return
	}

	rep, err := h.store.Get(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}

	value, err := rep.Result.Get(query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"query":  query,
		"value":  value,
	})
}
