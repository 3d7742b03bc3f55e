package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/license-notifications/internal/domain"
)

type taskReader interface {
	Get(ctx context.Context, taskID string) (*domain.Task, error)
}

// TaskHandler exposes task records so results of deferred work can be inspected.
type TaskHandler struct {
	repo taskReader
}

func NewTaskHandler(repo taskReader) *TaskHandler { return &TaskHandler{repo: repo} }

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
