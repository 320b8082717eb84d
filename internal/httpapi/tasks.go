package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shawkridge/athena-sub002/internal/executor"
	"github.com/shawkridge/athena-sub002/internal/models"
	"github.com/shawkridge/athena-sub002/internal/store"
)

// TasksHandler exposes research task submission and status queries.
type TasksHandler struct {
	executor *executor.Executor
	store    store.FindingStore
	logger   *zap.Logger
	timeout  time.Duration
}

func NewTasksHandler(exec *executor.Executor, findingStore store.FindingStore, logger *zap.Logger) *TasksHandler {
	return &TasksHandler{
		executor: exec,
		store:    findingStore,
		logger:   logger,
		timeout:  10 * time.Minute,
	}
}

// RegisterRoutes registers task routes on the provided mux.
func (h *TasksHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/research", h.handleResearch)
}

type submitRequest struct {
	Topic       string             `json:"topic"`
	ProjectID   string             `json:"project_id,omitempty"`
	Constraints models.Constraints `json:"constraints"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// handleResearch dispatches by method: POST submits a new research task,
// GET returns the state of an existing one.
func (h *TasksHandler) handleResearch(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submit(w, r)
	case http.MethodGet:
		h.get(w, r)
	default:
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

// submit creates the task and launches the research run in the background.
// The response carries the task_id for streaming and polling.
func (h *TasksHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		http.Error(w, `{"error":"topic required"}`, http.StatusBadRequest)
		return
	}

	task := &models.ResearchTask{
		ID:        uuid.New().String(),
		Topic:     req.Topic,
		ProjectID: req.ProjectID,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateTask(r.Context(), task); err != nil {
		h.logger.Error("Failed to create task", zap.Error(err))
		http.Error(w, `{"error":"failed to create task"}`, http.StatusInternalServerError)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if _, err := h.executor.ExecuteResearch(ctx, task.ID, req.Topic, req.Constraints); err != nil {
			h.logger.Warn("Research task failed",
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(submitResponse{TaskID: task.ID, Status: task.Status})
}

// get returns a task by ?task_id=.
func (h *TasksHandler) get(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		http.Error(w, `{"error":"task_id required"}`, http.StatusBadRequest)
		return
	}

	task, err := h.store.GetTask(r.Context(), taskID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load task", zap.String("task_id", taskID), zap.Error(err))
		http.Error(w, `{"error":"failed to load task"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}
