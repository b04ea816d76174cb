package auth

import (
	"context"

	"github.com/fernwood/sprout/internal/model"
)

type contextKey struct{}

// Principal is the authenticated identity attached to each request. Parent
// sessions carry only ParentID; child sessions also carry the linked child
// profile id, which is the only child they may act on.
type Principal struct {
	Role      string
	ParentID  int64
	ChildID   *int64
	SessionID int64
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// IsParent reports whether the request is authenticated as a parent account.
func IsParent(ctx context.Context) bool {
	p, ok := FromContext(ctx)
	return ok && p.Role == model.RoleParent
}

// ParentID returns the owning parent account id, or 0 if unauthenticated.
// Child sessions still resolve to the parent that owns the profile.
func ParentID(ctx context.Context) int64 {
	p, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return p.ParentID
}
