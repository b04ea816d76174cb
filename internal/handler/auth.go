package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/middleware"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/store"
)

type AuthHandler struct {
	parents  *store.ParentStore
	children *store.ChildStore
	sessions *store.SessionStore
	logger   *slog.Logger
}

func NewAuthHandler(ps *store.ParentStore, cs *store.ChildStore, ss *store.SessionStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{parents: ps, children: cs, sessions: ss, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	existing, err := h.parents.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("register lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "an account with that email already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	parent, err := h.parents.Create(req.Email, req.Name, string(hash))
	if err != nil {
		h.logger.Error("create parent", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.startSession(w, model.RoleParent, parent.ID, nil); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, parent)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := h.parents.GetPasswordHash(req.Email)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	parent, err := h.parents.GetByEmail(req.Email)
	if err != nil || parent == nil {
		h.logger.Error("login load parent", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.startSession(w, model.RoleParent, parent.ID, nil); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, parent)
}

type childLoginRequest struct {
	ChildID int64  `json:"child_id"`
	PIN     string `json:"pin"`
}

// ChildLogin authenticates a child profile by PIN. The resulting session is
// scoped to that one profile; a child with no PIN set cannot log in.
func (h *AuthHandler) ChildLogin(w http.ResponseWriter, r *http.Request) {
	var req childLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	child, err := h.children.GetByID(req.ChildID)
	if err != nil {
		h.logger.Error("child login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if child == nil || child.ParentID == nil {
		writeError(w, http.StatusUnauthorized, "incorrect PIN")
		return
	}

	hash, err := h.children.GetPINHash(child.ID)
	if err != nil {
		h.logger.Error("child login pin hash", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.PIN)) != nil {
		writeError(w, http.StatusUnauthorized, "incorrect PIN")
		return
	}

	if err := h.startSession(w, model.RoleChild, *child.ParentID, &child.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, child)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessions.Delete(p.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me reports who the current session belongs to.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp := map[string]any{
		"role":      p.Role,
		"parent_id": p.ParentID,
	}
	if p.ChildID != nil {
		resp["child_id"] = *p.ChildID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, role string, parentID int64, childID *int64) error {
	sess, err := h.sessions.Create(role, parentID, childID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
