package ledger

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/database"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/store"
)

type fixture struct {
	db       *sql.DB
	svc      *Service
	children *store.ChildStore
	tasks    *store.TaskStore
	rewards  *store.RewardStore
	parent   auth.Principal
	childID  int64
}

func setupService(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	parents := store.NewParentStore(db)
	children := store.NewChildStore(db)
	tasks := store.NewTaskStore(db)
	rewards := store.NewRewardStore(db)

	p, err := parents.Create("dana@example.com", "Dana", "hash")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	c, err := children.Create(&p.ID, "Milo", "🦊", nil)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(children, tasks, store.NewChildTaskStore(db), rewards, store.NewRedemptionStore(db), logger)

	return &fixture{
		db:       db,
		svc:      svc,
		children: children,
		tasks:    tasks,
		rewards:  rewards,
		parent:   auth.Principal{Role: model.RoleParent, ParentID: p.ID},
		childID:  c.ID,
	}
}

func (f *fixture) childPrincipal() auth.Principal {
	return auth.Principal{Role: model.RoleChild, ParentID: f.parent.ParentID, ChildID: &f.childID}
}

func (f *fixture) createTask(t *testing.T, coins int, badge *string) *model.Task {
	t.Helper()
	task, err := f.tasks.Create(model.Task{
		Title:       "Tidy bookshelf",
		Category:    model.CategoryIndependence,
		Type:        model.TaskTypeLogic,
		Difficulty:  2,
		RewardCoins: coins,
		BadgeName:   badge,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (f *fixture) setBalance(t *testing.T, coins int) {
	t.Helper()
	if _, err := f.db.Exec(`UPDATE children SET current_coins = ? WHERE id = ?`, coins, f.childID); err != nil {
		t.Fatalf("set balance: %v", err)
	}
}

func (f *fixture) createReward(t *testing.T, name string, rt model.RewardType, cost, stock int) *model.Reward {
	t.Helper()
	pid := f.parent.ParentID
	r, err := f.rewards.Create(model.Reward{
		CreatorID: &pid, Name: name, Type: rt,
		CostCoins: cost, StockQuantity: stock, Active: true,
	})
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	return r
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("error kind = %q, want %q (err: %v)", got, kind, err)
	}
}

func TestAuthorizeChild(t *testing.T) {
	f := setupService(t)

	parents := store.NewParentStore(f.db)
	other, err := parents.Create("kim@example.com", "Kim", "hash")
	if err != nil {
		t.Fatalf("create other parent: %v", err)
	}

	otherChildID := f.childID + 100

	tests := []struct {
		name      string
		principal auth.Principal
		childID   int64
		wantKind  Kind
	}{
		{"owning parent", f.parent, f.childID, ""},
		{"own profile", f.childPrincipal(), f.childID, ""},
		{"foreign parent", auth.Principal{Role: model.RoleParent, ParentID: other.ID}, f.childID, KindForbidden},
		{"child on other profile", f.childPrincipal(), otherChildID, KindNotFound},
		{"unknown child", f.parent, otherChildID, KindNotFound},
		{"unknown role", auth.Principal{Role: "admin"}, f.childID, KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			child, err := f.svc.AuthorizeChild(tt.principal, tt.childID)
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("authorize: %v", err)
				}
				if child == nil || child.ID != tt.childID {
					t.Fatalf("child = %+v, want id %d", child, tt.childID)
				}
				return
			}
			wantKind(t, err, tt.wantKind)
		})
	}
}

func TestCompleteFromTerminalStatesFails(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 10, nil)

	tests := []struct {
		name    string
		prepare func(t *testing.T, entryID int64)
	}{
		{"need_verify", func(t *testing.T, id int64) {
			if _, err := f.svc.Complete(f.parent, id); err != nil {
				t.Fatalf("complete: %v", err)
			}
		}},
		{"completed", func(t *testing.T, id int64) {
			if _, err := f.svc.Complete(f.parent, id); err != nil {
				t.Fatalf("complete: %v", err)
			}
			if _, err := f.svc.Verify(f.parent, id); err != nil {
				t.Fatalf("verify: %v", err)
			}
		}},
		{"giveup", func(t *testing.T, id int64) {
			if _, err := f.svc.GiveUp(f.parent, id); err != nil {
				t.Fatalf("giveup: %v", err)
			}
		}},
		{"missed", func(t *testing.T, id int64) {
			if _, err := f.svc.MarkMissed(f.parent, id); err != nil {
				t.Fatalf("mark missed: %v", err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})
			if err != nil {
				t.Fatalf("assign: %v", err)
			}
			tt.prepare(t, entry.ID)

			before, _ := f.svc.GetEntry(f.parent, entry.ID)
			_, err = f.svc.Complete(f.parent, entry.ID)
			wantKind(t, err, KindInvalidState)

			after, _ := f.svc.GetEntry(f.parent, entry.ID)
			if after.Status != before.Status {
				t.Errorf("status changed from %q to %q on failed complete", before.Status, after.Status)
			}

			if err := f.svc.Unassign(f.parent, entry.ID); err != nil {
				t.Fatalf("cleanup: %v", err)
			}
		})
	}
}

func TestVerifyRequiresPriorComplete(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 10, nil)

	entry, err := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	_, err = f.svc.Verify(f.parent, entry.ID)
	wantKind(t, err, KindInvalidState)
}

func TestRejectVerificationRoundTrip(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 25, nil)

	entry, err := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := f.svc.Complete(f.childPrincipal(), entry.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	rejected, err := f.svc.RejectVerification(f.parent, entry.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.StatusInProgress {
		t.Errorf("status = %q, want in_progress", rejected.Status)
	}
	if rejected.Progress != 0 {
		t.Errorf("progress = %d, want 0", rejected.Progress)
	}
	if rejected.CompletedAt != nil {
		t.Error("expected completed_at cleared")
	}

	// The redone work can complete and verify normally.
	if _, err := f.svc.Complete(f.childPrincipal(), entry.ID); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	verified, err := f.svc.Verify(f.parent, entry.ID)
	if err != nil {
		t.Fatalf("verify after redo: %v", err)
	}
	if verified.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", verified.Status)
	}
}

func TestVerifyTwiceFailsInvalidState(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 50, nil)

	entry, _ := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})
	if _, err := f.svc.Complete(f.parent, entry.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.Verify(f.parent, entry.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	_, err := f.svc.Verify(f.parent, entry.ID)
	wantKind(t, err, KindInvalidState)

	child, _ := f.children.GetByID(f.childID)
	if child.CurrentCoins != 50 {
		t.Errorf("current_coins = %d after double verify, want 50", child.CurrentCoins)
	}
}

// Scenario: assign, start, complete, verify pays the task's coins and grants
// the badge when a matching reward exists.
func TestTaskLifecyclePaysOut(t *testing.T) {
	f := setupService(t)
	badge := "Bookworm"
	f.createReward(t, badge, model.RewardBadge, 0, 0)
	task := f.createTask(t, 50, &badge)

	entry, err := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.Begin(f.childPrincipal(), entry.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.svc.Complete(f.childPrincipal(), entry.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.Verify(f.parent, entry.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	child, _ := f.children.GetByID(f.childID)
	if child.CurrentCoins != 50 {
		t.Errorf("balance = %d, want 50", child.CurrentCoins)
	}

	grants, _ := f.rewards.ListGrantsByChild(f.childID)
	if len(grants) != 1 {
		t.Errorf("grant count = %d, want 1", len(grants))
	}
}

func TestVerifyUnknownBadgeStillPays(t *testing.T) {
	f := setupService(t)
	badge := "No Such Badge"
	task := f.createTask(t, 40, &badge)

	entry, _ := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})
	if _, err := f.svc.Complete(f.parent, entry.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.Verify(f.parent, entry.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	child, _ := f.children.GetByID(f.childID)
	if child.CurrentCoins != 40 {
		t.Errorf("balance = %d, want 40 despite badge miss", child.CurrentCoins)
	}
	grants, _ := f.rewards.ListGrantsByChild(f.childID)
	if len(grants) != 0 {
		t.Errorf("grant count = %d, want 0", len(grants))
	}
}

func TestVerifyUsesCustomRewardCoins(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 50, nil)

	entry, _ := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})
	coins := 80
	if _, err := f.svc.UpdateEntry(f.parent, entry.ID, store.UpdateParams{
		Priority:          model.PriorityMedium,
		CustomRewardCoins: &coins,
	}); err != nil {
		t.Fatalf("update entry: %v", err)
	}
	if _, err := f.svc.Complete(f.parent, entry.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.Verify(f.parent, entry.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	child, _ := f.children.GetByID(f.childID)
	if child.CurrentCoins != 80 {
		t.Errorf("balance = %d, want override 80", child.CurrentCoins)
	}
}

func TestVerifyRequiresParent(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 10, nil)

	entry, _ := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})
	if _, err := f.svc.Complete(f.childPrincipal(), entry.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := f.svc.Verify(f.childPrincipal(), entry.ID)
	wantKind(t, err, KindForbidden)
}

func TestGiveUpIsTerminal(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 10, nil)

	entry, _ := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})

	given, err := f.svc.GiveUp(f.childPrincipal(), entry.ID)
	if err != nil {
		t.Fatalf("giveup: %v", err)
	}
	if given.Status != model.StatusGiveUp {
		t.Errorf("status = %q, want giveup", given.Status)
	}

	_, err = f.svc.Complete(f.childPrincipal(), entry.ID)
	wantKind(t, err, KindInvalidState)
	_, err = f.svc.GiveUp(f.childPrincipal(), entry.ID)
	wantKind(t, err, KindInvalidState)
}

func TestAssignDuplicateConflicts(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 10, nil)

	if _, err := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, err := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityMedium})
	wantKind(t, err, KindConflict)
}

func TestAssignReentersUnassignedEntry(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 10, nil)

	suggested, err := f.svc.Suggest(f.parent, f.childID, task.ID)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if suggested.Status != model.StatusUnassigned {
		t.Fatalf("status = %q, want unassigned", suggested.Status)
	}

	assigned, err := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{Priority: model.PriorityHigh})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.ID != suggested.ID {
		t.Errorf("assign created entry %d, want in-place update of %d", assigned.ID, suggested.ID)
	}
	if assigned.Status != model.StatusAssigned {
		t.Errorf("status = %q, want assigned", assigned.Status)
	}
	if assigned.Priority != model.PriorityHigh {
		t.Errorf("priority = %q, want high", assigned.Priority)
	}
}

func TestCreateAdHocValidation(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.CreateAdHoc(f.parent, f.childID, AdHocParams{Priority: model.PriorityMedium})
	wantKind(t, err, KindInvalid)

	entry, err := f.svc.CreateAdHoc(f.parent, f.childID, AdHocParams{
		Title:       "Water the basil",
		RewardCoins: 15,
		Priority:    model.PriorityLow,
	})
	if err != nil {
		t.Fatalf("create ad-hoc: %v", err)
	}
	if entry.TaskID != nil {
		t.Error("expected nil task_id on ad-hoc entry")
	}
	if entry.EffectiveRewardCoins(nil) != 15 {
		t.Errorf("effective coins = %d, want 15", entry.EffectiveRewardCoins(nil))
	}
}

// Scenario B: requesting a redemption the child cannot afford fails at
// request time.
func TestRequestRedemptionInsufficientFunds(t *testing.T) {
	f := setupService(t)
	f.setBalance(t, 30)
	reward := f.createReward(t, "Cinema night", model.RewardItem, 50, 0)

	_, err := f.svc.RequestRedemption(f.childPrincipal(), f.childID, reward.ID)
	wantKind(t, err, KindInsufficientFunds)
}

// Scenario C: request and approve moves coins, stock, and status together.
func TestRedemptionApproveScenario(t *testing.T) {
	f := setupService(t)
	f.setBalance(t, 100)
	reward := f.createReward(t, "Cinema night", model.RewardItem, 50, 1)

	req, err := f.svc.RequestRedemption(f.childPrincipal(), f.childID, reward.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	approved, err := f.svc.ApproveRedemption(f.parent, req.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.RedemptionApproved {
		t.Errorf("status = %q, want approved", approved.Status)
	}

	child, _ := f.children.GetByID(f.childID)
	if child.CurrentCoins != 50 {
		t.Errorf("balance = %d, want 50", child.CurrentCoins)
	}
	got, _ := f.rewards.GetByID(reward.ID)
	if got.StockQuantity != 0 {
		t.Errorf("stock = %d, want 0", got.StockQuantity)
	}
}

// Scenario D: the second approval of the same request fails and moves no
// coins.
func TestRedemptionApproveTwice(t *testing.T) {
	f := setupService(t)
	f.setBalance(t, 100)
	reward := f.createReward(t, "Cinema night", model.RewardItem, 50, 0)

	req, _ := f.svc.RequestRedemption(f.childPrincipal(), f.childID, reward.ID)
	if _, err := f.svc.ApproveRedemption(f.parent, req.ID); err != nil {
		t.Fatalf("first approve: %v", err)
	}

	_, err := f.svc.ApproveRedemption(f.parent, req.ID)
	wantKind(t, err, KindInvalidState)

	child, _ := f.children.GetByID(f.childID)
	if child.CurrentCoins != 50 {
		t.Errorf("balance = %d after double approve, want 50", child.CurrentCoins)
	}
}

func TestRedemptionCrossTenantForbidden(t *testing.T) {
	f := setupService(t)
	f.setBalance(t, 100)

	parents := store.NewParentStore(f.db)
	other, _ := parents.Create("kim@example.com", "Kim", "hash")
	foreign, err := f.rewards.Create(model.Reward{
		CreatorID: &other.ID, Name: "Kim treat", Type: model.RewardItem,
		CostCoins: 10, Active: true,
	})
	if err != nil {
		t.Fatalf("create foreign reward: %v", err)
	}

	_, err = f.svc.RequestRedemption(f.childPrincipal(), f.childID, foreign.ID)
	wantKind(t, err, KindForbidden)
}

func TestRedemptionInactiveReward(t *testing.T) {
	f := setupService(t)
	f.setBalance(t, 100)

	pid := f.parent.ParentID
	retired, err := f.rewards.Create(model.Reward{
		CreatorID: &pid, Name: "Retired", Type: model.RewardItem,
		CostCoins: 10, Active: false,
	})
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}

	_, err = f.svc.RequestRedemption(f.childPrincipal(), f.childID, retired.ID)
	wantKind(t, err, KindInvalid)
}

func TestRedemptionApproveRechecksBalance(t *testing.T) {
	f := setupService(t)
	f.setBalance(t, 100)
	reward := f.createReward(t, "Cinema night", model.RewardItem, 50, 0)

	req, _ := f.svc.RequestRedemption(f.childPrincipal(), f.childID, reward.ID)

	// Balance drains between request and approval.
	f.setBalance(t, 10)

	_, err := f.svc.ApproveRedemption(f.parent, req.ID)
	wantKind(t, err, KindInsufficientFunds)

	got, _ := f.svc.ListRedemptions(f.parent, f.childID)
	if len(got) != 1 || got[0].Status != model.RedemptionPending {
		t.Errorf("request status = %v, want still pending", got)
	}
}

// Scenario F: equipping a second skin unequips the first.
func TestEquipSkinExclusivity(t *testing.T) {
	f := setupService(t)

	skin1 := f.createReward(t, "Forest theme", model.RewardSkin, 0, 0)
	skin2 := f.createReward(t, "Ocean theme", model.RewardSkin, 0, 0)
	g1, _ := f.rewards.CreateGrant(f.childID, skin1.ID)
	g2, _ := f.rewards.CreateGrant(f.childID, skin2.ID)

	if err := f.svc.EquipSkin(f.childPrincipal(), f.childID, g1.ID); err != nil {
		t.Fatalf("equip first: %v", err)
	}
	if err := f.svc.EquipSkin(f.childPrincipal(), f.childID, g2.ID); err != nil {
		t.Fatalf("equip second: %v", err)
	}

	grants, _ := f.svc.ListGrants(f.parent, f.childID)
	for _, g := range grants {
		want := g.ID == g2.ID
		if g.Equipped != want {
			t.Errorf("grant %d equipped = %v, want %v", g.ID, g.Equipped, want)
		}
	}
}

func TestEquipNonSkinFails(t *testing.T) {
	f := setupService(t)

	item := f.createReward(t, "Sticker", model.RewardItem, 0, 0)
	g, _ := f.rewards.CreateGrant(f.childID, item.ID)

	err := f.svc.EquipSkin(f.parent, f.childID, g.ID)
	wantKind(t, err, KindInvalid)
}

func TestEquipUnheldGrantFails(t *testing.T) {
	f := setupService(t)

	err := f.svc.EquipSkin(f.parent, f.childID, 999)
	wantKind(t, err, KindNotFound)
}

func TestMarkOverdueMissedSweep(t *testing.T) {
	f := setupService(t)
	task := f.createTask(t, 10, nil)

	past := time.Now().Add(-time.Hour)
	entry, err := f.svc.Assign(f.parent, f.childID, task.ID, AssignParams{
		Priority: model.PriorityMedium,
		DueDate:  &past,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	n, err := f.svc.MarkOverdueMissed(time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d, want 1", n)
	}

	got, _ := f.svc.GetEntry(f.parent, entry.ID)
	if got.Status != model.StatusMissed {
		t.Errorf("status = %q, want missed", got.Status)
	}

	// Terminal afterwards.
	_, err = f.svc.Complete(f.parent, entry.ID)
	wantKind(t, err, KindInvalidState)
}
