package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/push"
	"github.com/fernwood/sprout/internal/store"
)

type PushHandler struct {
	subs    *store.PushStore
	service *push.Service
	logger  *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: ps, service: svc, logger: logger}
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Subscribe registers (or refreshes) a browser push subscription for the
// parent's account.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	sub, err := h.subs.Upsert(p.ParentID, req.Endpoint, req.P256dh, req.Auth)
	if err != nil {
		h.logger.Error("save push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := h.subs.DeleteByEndpoint(req.Endpoint); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

// VAPIDKey hands the public key to the browser for subscription setup.
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if !h.service.Configured() {
		writeError(w, http.StatusNotFound, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}
