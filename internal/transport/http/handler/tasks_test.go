package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/license-notifications/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTasks map[string]*domain.Task

func (s stubTasks) Get(_ context.Context, id string) (*domain.Task, error) {
	if t, ok := s[id]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func serveTask(h *TaskHandler, id string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/v1/tasks/{id}", h.Get)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tasks/"+id, nil))
	return rr
}

func TestTaskGet_ReturnsResult(t *testing.T) {
	h := NewTaskHandler(stubTasks{"T1": {TaskID: "T1", Name: domain.TaskNotifyAdmins, Status: domain.TaskSucceeded, Result: "notified 2 admins"}})
	rr := serveTask(h, "T1")
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.Task
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "notified 2 admins", resp.Result)
}

func TestTaskGet_Missing(t *testing.T) {
	rr := serveTask(NewTaskHandler(stubTasks{}), "nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
