package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/database"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/store"
)

func setupAuthMiddlewareDB(t *testing.T) (*store.SessionStore, *store.ParentStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewSessionStore(db), store.NewParentStore(db)
}

func TestRequireAuthNoCookie(t *testing.T) {
	ss, _ := setupAuthMiddlewareDB(t)

	handler := RequireAuth(ss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/api/children", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	ss, _ := setupAuthMiddlewareDB(t)

	handler := RequireAuth(ss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/api/children", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	ss, ps := setupAuthMiddlewareDB(t)

	p, _ := ps.Create("dana@example.com", "Dana", "hash")
	sess, _ := ss.Create(model.RoleParent, p.ID, nil)

	var got auth.Principal
	handler := RequireAuth(ss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected principal in request context")
		}
		got = principal
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/children", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.ParentID != p.ID {
		t.Errorf("parent id = %d, want %d", got.ParentID, p.ID)
	}
	if got.Role != model.RoleParent {
		t.Errorf("role = %q, want parent", got.Role)
	}
}

func TestRequireParent(t *testing.T) {
	childID := int64(4)
	tests := []struct {
		name      string
		principal auth.Principal
		want      int
	}{
		{"parent allowed", auth.Principal{Role: model.RoleParent, ParentID: 1}, http.StatusOK},
		{"child forbidden", auth.Principal{Role: model.RoleChild, ParentID: 1, ChildID: &childID}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := auth.WithPrincipal(context.Background(), tt.principal)
			req := httptest.NewRequest("POST", "/api/child-tasks/1/verify", nil).WithContext(ctx)
			rec := httptest.NewRecorder()

			handler := RequireParent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
