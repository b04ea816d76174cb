package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/ledger"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/push"
	"github.com/fernwood/sprout/internal/store"
	"github.com/fernwood/sprout/internal/websocket"
)

// ChildTaskHandler exposes the assignment ledger over HTTP. All state
// transitions go through ledger.Service; the handler only decodes, relays,
// and fans out live updates.
type ChildTaskHandler struct {
	ledger   *ledger.Service
	tasks    *store.TaskStore
	hub      *websocket.Hub
	notifier *push.Notifier
	logger   *slog.Logger
}

func NewChildTaskHandler(svc *ledger.Service, ts *store.TaskStore, hub *websocket.Hub, notifier *push.Notifier, logger *slog.Logger) *ChildTaskHandler {
	return &ChildTaskHandler{ledger: svc, tasks: ts, hub: hub, notifier: notifier, logger: logger}
}

func (h *ChildTaskHandler) broadcast(parentID int64, action string, entry *model.ChildTask) {
	h.hub.Broadcast(parentID, websocket.NewEvent("child_task", action, entry.ID, entry.ChildID))
}

// entryTitle resolves the display title, loading the catalog task for
// non-ad-hoc entries. Failures degrade to a generic label; notifications
// must not fail a transition.
func (h *ChildTaskHandler) entryTitle(entry *model.ChildTask) string {
	var task *model.Task
	if entry.TaskID != nil {
		t, err := h.tasks.GetByID(*entry.TaskID)
		if err != nil {
			h.logger.Error("load task for title", "error", err)
		}
		task = t
	}
	title := entry.EffectiveTitle(task)
	if title == "" {
		title = "a task"
	}
	return title
}

type assignRequest struct {
	TaskID      *int64     `json:"task_id"`
	Title       string     `json:"title"`
	RewardCoins int        `json:"reward_coins"`
	Category    string     `json:"category"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	Notes       string     `json:"notes"`
}

// Assign attaches a catalog task to a child, or records an ad-hoc entry when
// no task_id is given.
func (h *ChildTaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var entry *model.ChildTask
	if req.TaskID != nil {
		entry, err = h.ledger.Assign(p, childID, *req.TaskID, ledger.AssignParams{
			Priority: priority,
			DueDate:  req.DueDate,
			Notes:    req.Notes,
		})
	} else {
		params := ledger.AdHocParams{
			Title:       strings.TrimSpace(req.Title),
			RewardCoins: req.RewardCoins,
			Priority:    priority,
			DueDate:     req.DueDate,
			Notes:       req.Notes,
		}
		if req.Category != "" {
			c, parseErr := model.ParseCategory(req.Category)
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, parseErr.Error())
				return
			}
			params.Category = c
		}
		entry, err = h.ledger.CreateAdHoc(p, childID, params)
	}
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	h.broadcast(p.ParentID, "assigned", entry)
	writeJSON(w, http.StatusCreated, entry)
}

type pickTaskRequest struct {
	TaskID int64 `json:"task_id"`
}

// Start lets a child pick up a catalog task directly, without parent-side
// assignment parameters.
func (h *ChildTaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req pickTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	entry, err := h.ledger.Start(p, childID, req.TaskID)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	h.broadcast(p.ParentID, "assigned", entry)
	writeJSON(w, http.StatusCreated, entry)
}

// Suggest records a catalog task as unassigned for the child, visible to the
// parent but not yet on the child's plate.
func (h *ChildTaskHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req pickTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	entry, err := h.ledger.Suggest(p, childID, req.TaskID)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	h.broadcast(p.ParentID, "suggested", entry)
	writeJSON(w, http.StatusCreated, entry)
}

func (h *ChildTaskHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	entries, err := h.ledger.ListEntries(p, childID)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.ChildTaskDetail{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *ChildTaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	entry, err := h.ledger.GetEntry(p, id)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type entryUpdateRequest struct {
	Priority          string          `json:"priority"`
	Notes             string          `json:"notes"`
	CustomTitle       *string         `json:"custom_title"`
	CustomRewardCoins *int            `json:"custom_reward_coins"`
	CustomCategory    *model.Category `json:"custom_category"`
	DueDate           *time.Time      `json:"due_date"`
}

func (h *ChildTaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req entryUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.ledger.UpdateEntry(p, id, store.UpdateParams{
		Priority:          priority,
		Notes:             req.Notes,
		CustomTitle:       req.CustomTitle,
		CustomRewardCoins: req.CustomRewardCoins,
		CustomCategory:    req.CustomCategory,
		DueDate:           req.DueDate,
	})
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	h.broadcast(p.ParentID, "updated", entry)
	writeJSON(w, http.StatusOK, entry)
}

// transition wires one lifecycle verb to a ledger method.
func (h *ChildTaskHandler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(auth.Principal, int64) (*model.ChildTask, error)) *model.ChildTask {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}

	entry, err := fn(p, id)
	if err != nil {
		respondErr(w, h.logger, err)
		return nil
	}

	h.broadcast(p.ParentID, action, entry)
	writeJSON(w, http.StatusOK, entry)
	return entry
}

func (h *ChildTaskHandler) Begin(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "started", h.ledger.Begin)
}

// Complete moves the entry to the awaiting-verification state and nudges the
// parent's devices.
func (h *ChildTaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	entry := h.transition(w, r, "completed", h.ledger.Complete)
	if entry == nil {
		return
	}

	child, err := h.ledger.AuthorizeChild(p, entry.ChildID)
	if err != nil {
		h.logger.Error("load child for notification", "error", err)
		return
	}
	h.notifier.NotifyTaskAwaitingVerify(p.ParentID, child.Name, h.entryTitle(entry))
}

func (h *ChildTaskHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "verified", h.ledger.Verify)
}

func (h *ChildTaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "rejected", h.ledger.RejectVerification)
}

func (h *ChildTaskHandler) GiveUp(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "given_up", h.ledger.GiveUp)
}

func (h *ChildTaskHandler) MarkMissed(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "missed", h.ledger.MarkMissed)
}

func (h *ChildTaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	entry, err := h.ledger.GetEntry(p, id)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if err := h.ledger.Unassign(p, id); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	h.broadcast(p.ParentID, "removed", entry)
	w.WriteHeader(http.StatusNoContent)
}
