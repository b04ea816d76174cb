package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/store"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "sprout_session"

// RequireAuth validates the session cookie and attaches the resolved
// principal to the request context. Unauthenticated requests get a JSON 401.
func RequireAuth(sessions *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			p := auth.Principal{
				Role:      sess.Role,
				ParentID:  sess.ParentID,
				ChildID:   sess.ChildID,
				SessionID: sess.ID,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireParent rejects child sessions. Used for verification, redemption
// processing, and account management routes.
func RequireParent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsParent(r.Context()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "parent account required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
