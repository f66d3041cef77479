package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync/internal/model"
	"github.com/BuzzLyutic/task-sync/internal/repo"
	"github.com/BuzzLyutic/task-sync/internal/service"
	"github.com/BuzzLyutic/task-sync/pkg/respond"
)

// maxBodyBytes bounds request bodies; photos travel inline as data URLs.
const maxBodyBytes = 10 << 20

var errBadID = errors.New("invalid task id")

type TaskHandler struct {
	service *service.TaskService
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		logger:  logger,
	}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var req model.TaskInput
	if err := decode(w, r, &req); err != nil {
		h.logger.Debug("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}

	idempKey := r.Header.Get("Idempotency-Key")
	task, err := h.service.Create(r.Context(), req, idempKey)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/tasks/%d", task.ID))
	respond.OK(w, r, http.StatusOK, respond.Fields{"task": task})
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, respond.Fields{"task": task})
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, respond.Fields{"tasks": tasks, "ts": model.NowMillis()})
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	var patch model.TaskPatch
	if err := decode(w, r, &patch); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	task, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, respond.Fields{"task": task})
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		respond.OK(w, r, http.StatusOK, respond.Fields{"deleted": false})
		return
	}

	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, respond.Fields{"deleted": deleted})
}

// Sync applies a batch of offline changes in one request.
func (h *TaskHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req model.SyncRequest
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.service.Sync(r.Context(), req.Tasks)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, respond.Fields{
		"created": res.Created,
		"updated": res.Updated,
		"mapping": res.Mapping,
	})
}

func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, respond.Fields{"stats": stats})
}

type notificationRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SendNotification broadcasts an operator message to every connected device.
func (h *TaskHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	req := notificationRequest{}
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			respond.Error(w, r, http.StatusBadRequest, "invalid json")
			return
		}
	}
	if req.Title == "" {
		req.Title = "Notification from server"
	}
	if req.Body == "" {
		req.Body = "Test message"
	}

	if err := h.service.Notify(r.Context(), req.Title, req.Body); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, nil)
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrorNotFound), errors.Is(err, errBadID):
		respond.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, service.ErrValidation):
		respond.Error(w, r, http.StatusBadRequest, "title required")
	default:
		h.logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}

func taskID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
