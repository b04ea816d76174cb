package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/ledger"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/store"
	"github.com/fernwood/sprout/internal/websocket"
)

type ChildHandler struct {
	children *store.ChildStore
	ledger   *ledger.Service
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewChildHandler(cs *store.ChildStore, svc *ledger.Service, hub *websocket.Hub, logger *slog.Logger) *ChildHandler {
	return &ChildHandler{children: cs, ledger: svc, hub: hub, logger: logger}
}

type childRequest struct {
	Name        string `json:"name"`
	AvatarEmoji string `json:"avatar_emoji"`
	BirthYear   *int   `json:"birth_year"`
}

func (h *ChildHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req childRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.AvatarEmoji == "" {
		req.AvatarEmoji = "🌱"
	}

	child, err := h.children.Create(&p.ParentID, req.Name, req.AvatarEmoji, req.BirthYear)
	if err != nil {
		h.logger.Error("create child", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create child")
		return
	}

	h.hub.Broadcast(p.ParentID, websocket.NewEvent("child", "created", child.ID, child.ID))
	writeJSON(w, http.StatusCreated, child)
}

func (h *ChildHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	children, err := h.children.ListByParent(p.ParentID)
	if err != nil {
		h.logger.Error("list children", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list children")
		return
	}
	if children == nil {
		children = []model.Child{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *ChildHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	child, err := h.ledger.AuthorizeChild(p, id)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// Balance reports the coin counters and derived level for one child.
func (h *ChildHandler) Balance(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	child, err := h.ledger.AuthorizeChild(p, id)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"current_coins":  child.CurrentCoins,
		"lifetime_coins": child.LifetimeCoins,
		"level":          child.Level(),
	})
}

func (h *ChildHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if _, err := h.ledger.AuthorizeChild(p, id); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	var req childRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	child, err := h.children.Update(id, req.Name, req.AvatarEmoji, req.BirthYear)
	if err != nil {
		h.logger.Error("update child", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update child")
		return
	}

	h.hub.Broadcast(p.ParentID, websocket.NewEvent("child", "updated", child.ID, child.ID))
	writeJSON(w, http.StatusOK, child)
}

func (h *ChildHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if _, err := h.ledger.AuthorizeChild(p, id); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if err := h.children.Delete(id); err != nil {
		h.logger.Error("delete child", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete child")
		return
	}

	h.hub.Broadcast(p.ParentID, websocket.NewEvent("child", "deleted", id, id))
	w.WriteHeader(http.StatusNoContent)
}

type pinRequest struct {
	PIN string `json:"pin"`
}

func (h *ChildHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if _, err := h.ledger.AuthorizeChild(p, id); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.PIN) != 4 || !isDigits(req.PIN) {
		writeError(w, http.StatusBadRequest, "PIN must be exactly 4 digits")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash pin", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.children.SetPIN(id, string(hash)); err != nil {
		h.logger.Error("set pin", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set PIN")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

func (h *ChildHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if _, err := h.ledger.AuthorizeChild(p, id); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if err := h.children.ClearPIN(id); err != nil {
		h.logger.Error("clear pin", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear PIN")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin cleared"})
}
