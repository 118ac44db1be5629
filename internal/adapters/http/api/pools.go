package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/hydropool/internal/domain/types"
)

// PoolsHandler serves the pools of the last evaluation.
type PoolsHandler struct {
	deps Dependencies
}

// NewPoolsHandler creates a new pools handler.
func NewPoolsHandler(deps Dependencies) *PoolsHandler {
	return &PoolsHandler{deps: deps}
}

// HandleList handles GET /v1/pools.
func (h *PoolsHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	summary, ok := h.deps.LastSummary()
	if !ok {
		writeError(w, http.StatusNotFound, "not_ready", ErrNotReady)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleGet handles GET /v1/pools/{id}.
func (h *PoolsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: pool id %q", ErrBadRequest, raw))
		return
	}
	summary, ok := h.deps.LastSummary()
	if !ok {
		writeError(w, http.StatusNotFound, "not_ready", ErrNotReady)
		return
	}
	p, ok := summary.Pool(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%w: pool %d", ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		EvaluationID string `json:"evaluation_id"`
		types.PoolSummary
	}{summary.EvaluationID, p})
}
