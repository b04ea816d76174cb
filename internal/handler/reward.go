package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/ledger"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/websocket"
)

// RewardHandler exposes the read-only reward shop plus each child's granted
// rewards and skin equipping.
type RewardHandler struct {
	ledger *ledger.Service
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewRewardHandler(svc *ledger.Service, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{ledger: svc, hub: hub, logger: logger}
}

// List returns the active rewards visible to the family: system rewards plus
// those created by its parent account.
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	rewards, err := h.ledger.ListRewards(p)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	grants, err := h.ledger.ListGrants(p, childID)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if grants == nil {
		grants = []model.ChildReward{}
	}
	writeJSON(w, http.StatusOK, grants)
}

type equipRequest struct {
	GrantID int64 `json:"grant_id"`
}

// Equip makes one granted skin the child's active skin, unequipping any
// other.
func (h *RewardHandler) Equip(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req equipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.ledger.EquipSkin(p, childID, req.GrantID); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	h.hub.Broadcast(p.ParentID, websocket.NewEvent("skin", "equipped", req.GrantID, childID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "equipped"})
}
