package auth

import (
	"context"
	"testing"

	"github.com/fernwood/sprout/internal/model"
)

func TestPrincipalRoundTrip(t *testing.T) {
	childID := int64(7)
	p := Principal{
		Role:      model.RoleChild,
		ParentID:  3,
		ChildID:   &childID,
		SessionID: 42,
	}

	ctx := WithPrincipal(context.Background(), p)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected principal in context")
	}
	if got.Role != model.RoleChild {
		t.Errorf("role = %q, want %q", got.Role, model.RoleChild)
	}
	if got.ParentID != 3 {
		t.Errorf("parent id = %d, want 3", got.ParentID)
	}
	if got.ChildID == nil || *got.ChildID != 7 {
		t.Errorf("child id = %v, want 7", got.ChildID)
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()

	if _, ok := FromContext(ctx); ok {
		t.Error("expected no principal in empty context")
	}
	if IsParent(ctx) {
		t.Error("empty context should not be a parent")
	}
	if ParentID(ctx) != 0 {
		t.Error("expected zero parent id for empty context")
	}
}

func TestIsParent(t *testing.T) {
	parentCtx := WithPrincipal(context.Background(), Principal{Role: model.RoleParent, ParentID: 1})
	if !IsParent(parentCtx) {
		t.Error("parent session should be a parent")
	}

	childID := int64(2)
	childCtx := WithPrincipal(context.Background(), Principal{Role: model.RoleChild, ParentID: 1, ChildID: &childID})
	if IsParent(childCtx) {
		t.Error("child session should not be a parent")
	}
	if ParentID(childCtx) != 1 {
		t.Error("child session should still resolve owning parent")
	}
}
