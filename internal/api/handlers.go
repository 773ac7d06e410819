package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler holds API route handlers.
type Handler struct {
	provider Provider
}

// NewHandler creates a new Handler.
func NewHandler(p Provider) *Handler {
	return &Handler{provider: p}
}

// Ranking handles GET /ranking: the latest review priority order.
func (h *Handler) Ranking(w http.ResponseWriter, _ *http.Request) {
	items, at := h.provider.LatestRanking()
	if at.IsZero() {
		writeJSON(w, http.StatusNotFound, errorBody("no ranking computed yet"))
		return
	}
	writeJSON(w, http.StatusOK, buildRanking(items, at))
}

// Plan handles GET /plan: the latest computed reconciliation plan.
func (h *Handler) Plan(w http.ResponseWriter, _ *http.Request) {
	plan, at := h.provider.LatestPlan()
	if plan == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no plan computed yet"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generated_at": at,
		"plan":         plan,
	})
}

// Runs handles GET /runs with an optional limit query parameter.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.provider.Runs(limit)
	if err != nil {
		slog.Error("list runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// RunOperations handles GET /runs/{id}/operations.
func (h *Handler) RunOperations(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid run id"))
		return
	}
	ops, err := h.provider.RunOperations(id)
	if err != nil {
		slog.Error("list run operations failed",
			slog.Int64("run_id", id),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}
