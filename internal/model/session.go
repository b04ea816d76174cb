package model

import "time"

const (
	RoleParent = "parent"
	RoleChild  = "child"
)

// Session is a logged-in principal. Parent sessions carry only ParentID;
// child sessions (PIN login) additionally carry the child's profile id.
type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ParentID  int64     `json:"parent_id"`
	ChildID   *int64    `json:"child_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
