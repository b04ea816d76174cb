package store

import (
	"testing"

	"github.com/fernwood/sprout/internal/database"
)

func setupChildTestDB(t *testing.T) (*ChildStore, *ParentStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewChildStore(db), NewParentStore(db)
}

func TestChildCreateAndGet(t *testing.T) {
	cs, ps := setupChildTestDB(t)

	p, err := ps.Create("dana@example.com", "Dana", "hash")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}

	year := 2018
	c, err := cs.Create(&p.ID, "Milo", "🦊", &year)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if c.ParentID == nil || *c.ParentID != p.ID {
		t.Errorf("parent_id = %v, want %d", c.ParentID, p.ID)
	}
	if c.CurrentCoins != 0 || c.LifetimeCoins != 0 {
		t.Errorf("coins = %d/%d, want 0/0", c.CurrentCoins, c.LifetimeCoins)
	}
	if c.HasPIN {
		t.Error("expected no PIN on new child")
	}
	if c.Level() != 1 {
		t.Errorf("level = %d, want 1", c.Level())
	}
}

func TestChildListByParent(t *testing.T) {
	cs, ps := setupChildTestDB(t)

	p1, _ := ps.Create("dana@example.com", "Dana", "hash")
	p2, _ := ps.Create("kim@example.com", "Kim", "hash")

	if _, err := cs.Create(&p1.ID, "Milo", "🦊", nil); err != nil {
		t.Fatalf("create child: %v", err)
	}
	if _, err := cs.Create(&p1.ID, "Una", "🐢", nil); err != nil {
		t.Fatalf("create child: %v", err)
	}
	if _, err := cs.Create(&p2.ID, "Ben", "🐙", nil); err != nil {
		t.Fatalf("create child: %v", err)
	}

	children, err := cs.ListByParent(p1.ID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 2 {
		t.Errorf("child count = %d, want 2", len(children))
	}
}

func TestChildPINLifecycle(t *testing.T) {
	cs, ps := setupChildTestDB(t)

	p, _ := ps.Create("dana@example.com", "Dana", "hash")
	c, _ := cs.Create(&p.ID, "Milo", "🦊", nil)

	hash, err := cs.GetPINHash(c.ID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "" {
		t.Errorf("pin hash = %q, want empty before set", hash)
	}

	if err := cs.SetPIN(c.ID, "bcrypt-hash"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	got, _ := cs.GetByID(c.ID)
	if !got.HasPIN {
		t.Error("expected HasPIN after set")
	}
	hash, _ = cs.GetPINHash(c.ID)
	if hash != "bcrypt-hash" {
		t.Errorf("pin hash = %q, want stored hash", hash)
	}

	if err := cs.ClearPIN(c.ID); err != nil {
		t.Fatalf("clear pin: %v", err)
	}
	got, _ = cs.GetByID(c.ID)
	if got.HasPIN {
		t.Error("expected HasPIN false after clear")
	}
}

func TestChildOrphanedOnParentDelete(t *testing.T) {
	cs, ps := setupChildTestDB(t)

	p, _ := ps.Create("dana@example.com", "Dana", "hash")
	c, _ := cs.Create(&p.ID, "Milo", "🦊", nil)

	if err := ps.Delete(p.ID); err != nil {
		t.Fatalf("delete parent: %v", err)
	}
	got, err := cs.GetByID(c.ID)
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if got == nil {
		t.Fatal("expected child to survive parent deletion")
	}
	if got.ParentID != nil {
		t.Errorf("parent_id = %v, want nil after parent delete", got.ParentID)
	}
}
