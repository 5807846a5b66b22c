package server

import (
	"net/http"

	"github.com/kgelab/kge-rank/internal/metric"
	"github.com/kgelab/kge-rank/internal/pkg/errors"
)

// ResolveHandler resolves free-form metric names to their canonical keys.
type ResolveHandler struct{}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler() *ResolveHandler {
	return &ResolveHandler{}
}

// RegisterRoutes registers resolution routes.
func (h *ResolveHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/resolve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		h.handleResolve(w, r)
	})
}

// handleResolve handles GET /v1/resolve?q=<query>
func (h *ResolveHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, errors.ValidationError("query parameter q is required"))
		return
	}

	key, err := metric.ResolveMetricName(query)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"query":     query,
		"name":      key.Name,
		"side":      string(key.Side),
		"rank_type": string(key.RankType),
		"canonical": key.String(),
	}
	if key.K > 0 {
		resp["k"] = key.K
	}
	writeJSON(w, http.StatusOK, resp)
}
