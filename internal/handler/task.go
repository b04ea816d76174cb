package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/store"
)

// TaskHandler manages the reusable task catalog. Per-child assignments are
// handled by ChildTaskHandler.
type TaskHandler struct {
	tasks  *store.TaskStore
	logger *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: ts, logger: logger}
}

type taskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Difficulty  int     `json:"difficulty"`
	AgeMin      *int    `json:"age_min"`
	AgeMax      *int    `json:"age_max"`
	RewardCoins int     `json:"reward_coins"`
	BadgeName   *string `json:"badge_name"`
	UnityType   *string `json:"unity_type"`
}

func (req *taskRequest) toModel() (model.Task, string) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return model.Task{}, "title is required"
	}

	category, err := model.ParseCategory(req.Category)
	if err != nil {
		return model.Task{}, err.Error()
	}
	taskType, err := model.ParseTaskType(req.Type)
	if err != nil {
		return model.Task{}, err.Error()
	}

	if req.Difficulty < 1 || req.Difficulty > 5 {
		return model.Task{}, "difficulty must be between 1 and 5"
	}
	if req.RewardCoins < 0 {
		return model.Task{}, "reward_coins must not be negative"
	}

	t := model.Task{
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
		Type:        taskType,
		Difficulty:  req.Difficulty,
		AgeMin:      req.AgeMin,
		AgeMax:      req.AgeMax,
		RewardCoins: req.RewardCoins,
		BadgeName:   req.BadgeName,
	}
	if req.UnityType != nil {
		u, err := model.ParseUnityType(*req.UnityType)
		if err != nil {
			return model.Task{}, err.Error()
		}
		t.UnityType = &u
	}
	return t, ""
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	t, msg := req.toModel()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	task, err := h.tasks.Create(t)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []model.Task
		err   error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		c, parseErr := model.ParseCategory(category)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		tasks, err = h.tasks.ListByCategory(c)
	} else {
		tasks, err = h.tasks.List()
	}
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	task, err := h.tasks.GetByID(id)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.tasks.GetByID(id)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	t, msg := req.toModel()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	task, err := h.tasks.Update(id, t)
	if err != nil {
		h.logger.Error("update task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Delete removes a catalog task; ledger entries referencing it cascade away.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.tasks.Delete(id); err != nil {
		h.logger.Error("delete task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
