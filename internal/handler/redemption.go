package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/ledger"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/push"
	"github.com/fernwood/sprout/internal/store"
	"github.com/fernwood/sprout/internal/websocket"
)

type RedemptionHandler struct {
	ledger   *ledger.Service
	rewards  *store.RewardStore
	hub      *websocket.Hub
	notifier *push.Notifier
	logger   *slog.Logger
}

func NewRedemptionHandler(svc *ledger.Service, rs *store.RewardStore, hub *websocket.Hub, notifier *push.Notifier, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{ledger: svc, rewards: rs, hub: hub, notifier: notifier, logger: logger}
}

func (h *RedemptionHandler) rewardName(rewardID int64) string {
	reward, err := h.rewards.GetByID(rewardID)
	if err != nil || reward == nil {
		return "a reward"
	}
	return reward.Name
}

type redemptionRequestBody struct {
	RewardID int64 `json:"reward_id"`
}

// Request records a pending redemption at the reward's current cost. Coins
// are only checked here; they are deducted at approval.
func (h *RedemptionHandler) Request(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req redemptionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	request, err := h.ledger.RequestRedemption(p, childID, req.RewardID)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	h.hub.Broadcast(p.ParentID, websocket.NewEvent("redemption", "requested", request.ID, request.ChildID))

	if child, err := h.ledger.AuthorizeChild(p, childID); err == nil {
		h.notifier.NotifyRedemptionRequested(p.ParentID, child.Name, h.rewardName(request.RewardID))
	}

	writeJSON(w, http.StatusCreated, request)
}

func (h *RedemptionHandler) ListForChild(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	requests, err := h.ledger.ListRedemptions(p, childID)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if requests == nil {
		requests = []model.RedemptionRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

// ListPending returns the parent's approval queue, oldest first.
func (h *RedemptionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	requests, err := h.ledger.ListPendingRedemptions(p)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if requests == nil {
		requests = []model.RedemptionRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *RedemptionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, "approved", h.ledger.ApproveRedemption)
}

func (h *RedemptionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, "rejected", h.ledger.RejectRedemption)
}

func (h *RedemptionHandler) process(w http.ResponseWriter, r *http.Request, action string, fn func(auth.Principal, int64) (*model.RedemptionRequest, error)) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	request, err := fn(p, id)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	h.hub.Broadcast(p.ParentID, websocket.NewEvent("redemption", action, request.ID, request.ChildID))
	h.notifier.NotifyRedemptionProcessed(p.ParentID, h.rewardName(request.RewardID), action == "approved")

	writeJSON(w, http.StatusOK, request)
}
