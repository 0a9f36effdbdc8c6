// Package diag serves the administrative HTTP API of the task manager.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/payload"
	"github.com/cschleiden/go-tasks/client"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/log"
	"github.com/cschleiden/go-tasks/registry"
	"github.com/cschleiden/go-tasks/task"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// MaxAwaitTimeout bounds the timeout a caller may request when awaiting a task
const MaxAwaitTimeout = 5 * time.Minute

// Manager is the subset of the task manager exposed over HTTP. It is implemented by *client.Client.
type Manager interface {
	SubmitTask(ctx context.Context, t task.Task) (core.TaskID, error)
	GetTask(ctx context.Context, id core.TaskID) (*client.TaskDetails, error)
	GetTaskHistory(ctx context.Context, id core.TaskID) (*history.History, error)
	CancelTask(ctx context.Context, id core.TaskID) (core.TaskExecutionStatus, error)
	AwaitTask(ctx context.Context, id core.TaskID, timeout time.Duration) (*client.TaskDetails, error)
	ListTasks(ctx context.Context, opts ...client.ListOption) ([]*client.TaskDetails, error)
	RemoveTasks(ctx context.Context, finishedBefore time.Time) error
	RemoveExpiredTasks(ctx context.Context, retention time.Duration) error
	GetStats(ctx context.Context) (*backend.Stats, error)
	DecodeTask(taskType string, data payload.Payload) (task.Task, error)
}

var _ Manager = (*client.Client)(nil)

type server struct {
	m      Manager
	logger *slog.Logger
}

// NewRouter returns a handler serving the API below /api
func NewRouter(m Manager, logger *slog.Logger) http.Handler {
	s := &server{m: m, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(chimw.RequestSize(1 << 20))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.getStats)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.submitTask)
			r.Get("/", s.listTasks)
			r.Delete("/", s.removeTasks)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Delete("/", s.cancelTask)
				r.Get("/await", s.awaitTask)
				r.Get("/history", s.getHistory)
			})
		})
	})

	return r
}

func (s *server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Type) == "" {
		writeError(w, http.StatusBadRequest, "field 'type' is required")
		return
	}

	// References only resolve within the process that created them
	if req.Type == task.MemoryReferenceTaskType {
		writeError(w, http.StatusBadRequest, "task type cannot be submitted remotely")
		return
	}

	data := req.Task
	if len(data) == 0 {
		data = payload.Payload("{}")
	}

	t, err := s.m.DecodeTask(req.Type, data)
	if err != nil {
		if errors.Is(err, registry.ErrTaskNotRegistered) {
			writeError(w, http.StatusBadRequest, "unknown task type "+req.Type)
			return
		}

		writeError(w, http.StatusBadRequest, "invalid task: "+err.Error())
		return
	}

	id, err := s.m.SubmitTask(r.Context(), t)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.logger.Info("task submitted", log.TaskIDKey, id.String(), log.TaskTypeKey, req.Type)

	writeJSON(w, http.StatusAccepted, &SubmitTaskResponse{ID: id})
}

func (s *server) listTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var opts []client.ListOption

	if values := query["status"]; len(values) > 0 {
		statuses := make([]core.TaskExecutionStatus, 0, len(values))
		for _, v := range values {
			st, err := core.ParseTaskExecutionStatus(strings.ToUpper(v))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			statuses = append(statuses, st)
		}

		opts = append(opts, client.WithStatus(statuses...))
	}

	if t := query.Get("type"); t != "" {
		opts = append(opts, client.WithType(t))
	}

	tasks, err := s.m.ListTasks(r.Context(), opts...)
	if err != nil {
		s.handleError(w, err)
		return
	}

	infos := make([]*TaskInfo, 0, len(tasks))
	for _, d := range tasks {
		infos = append(infos, newTaskInfo(d))
	}

	writeJSON(w, http.StatusOK, infos)
}

// removeTasks removes finished tasks, either those finished before an RFC 3339 timestamp or those older
// than a retention period.
func (s *server) removeTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var err error
	switch {
	case query.Get("finished_before") != "":
		before, perr := time.Parse(time.RFC3339, query.Get("finished_before"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid finished_before")
			return
		}

		err = s.m.RemoveTasks(r.Context(), before)

	case query.Get("retention") != "":
		retention, perr := time.ParseDuration(query.Get("retention"))
		if perr != nil || retention < 0 {
			writeError(w, http.StatusBadRequest, "invalid retention")
			return
		}

		err = s.m.RemoveExpiredTasks(r.Context(), retention)

	default:
		writeError(w, http.StatusBadRequest, "finished_before or retention is required")
		return
	}

	if err != nil {
		s.handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	d, err := s.m.GetTask(r.Context(), id)
	if err != nil {
		s.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newTaskInfo(d))
}

func (s *server) cancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	status, err := s.m.CancelTask(r.Context(), id)
	if err != nil {
		s.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &CancelTaskResponse{ID: id, Status: status})
}

func (s *server) awaitTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	timeout := client.DefaultAwaitTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		var err error
		timeout, err = time.ParseDuration(v)
		if err != nil || timeout <= 0 {
			writeError(w, http.StatusBadRequest, "invalid timeout")
			return
		}

		timeout = min(timeout, MaxAwaitTimeout)
	}

	d, err := s.m.AwaitTask(r.Context(), id, timeout)
	if err != nil {
		var terr *client.TimeoutError
		if errors.As(err, &terr) {
			writeJSON(w, http.StatusRequestTimeout, map[string]string{
				"error":  err.Error(),
				"status": string(terr.Status),
			})
			return
		}

		s.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newTaskInfo(d))
}

func (s *server) getHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	h, err := s.m.GetTaskHistory(r.Context(), id)
	if err != nil {
		s.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newTaskHistory(id, h))
}

func (s *server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.m.GetStats(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &StatsResponse{
		ActiveTasks:   stats.ActiveTasks,
		FinishedTasks: stats.FinishedTasks,
	})
}

func (s *server) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, client.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, client.ErrNoWorker):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func taskID(w http.ResponseWriter, r *http.Request) (core.TaskID, bool) {
	id, err := core.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}

	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
