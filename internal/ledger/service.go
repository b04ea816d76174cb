package ledger

import (
	"errors"
	"log/slog"
	"time"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/store"
)

// Service is the task-lifecycle and reward-settlement core. Every child-scoped
// operation begins with the ownership guard; every status mutation goes
// through a guarded conditional update in the store, so a transition whose
// precondition no longer holds surfaces here as InvalidState or Conflict
// instead of silently overwriting a concurrent change.
type Service struct {
	children    *store.ChildStore
	tasks       *store.TaskStore
	childTasks  *store.ChildTaskStore
	rewards     *store.RewardStore
	redemptions *store.RedemptionStore
	logger      *slog.Logger
}

func NewService(
	children *store.ChildStore,
	tasks *store.TaskStore,
	childTasks *store.ChildTaskStore,
	rewards *store.RewardStore,
	redemptions *store.RedemptionStore,
	logger *slog.Logger,
) *Service {
	return &Service{
		children:    children,
		tasks:       tasks,
		childTasks:  childTasks,
		rewards:     rewards,
		redemptions: redemptions,
		logger:      logger.With("component", "ledger"),
	}
}

// AuthorizeChild is the ownership guard: it resolves the child and checks the
// principal may act on it. Parents are authorized over children they own;
// a child principal only over its own linked profile.
func (s *Service) AuthorizeChild(p auth.Principal, childID int64) (*model.Child, error) {
	child, err := s.children.GetByID(childID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, NotFoundf("child %d not found", childID)
	}
	switch p.Role {
	case model.RoleParent:
		if child.ParentID == nil || *child.ParentID != p.ParentID {
			return nil, Forbiddenf("child %d does not belong to you", childID)
		}
	case model.RoleChild:
		if p.ChildID == nil || *p.ChildID != childID {
			return nil, Forbiddenf("not your profile")
		}
	default:
		return nil, Forbiddenf("role %q may not access child operations", p.Role)
	}
	return child, nil
}

// getEntry resolves a ledger entry and authorizes the principal over its
// child. All per-entry operations funnel through here.
func (s *Service) getEntry(p auth.Principal, entryID int64) (*model.ChildTask, error) {
	entry, err := s.childTasks.GetByID(entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, NotFoundf("task entry %d not found", entryID)
	}
	if _, err := s.AuthorizeChild(p, entry.ChildID); err != nil {
		return nil, err
	}
	return entry, nil
}

// AssignParams carries the assignment metadata for Assign and Start.
type AssignParams struct {
	Priority model.Priority
	DueDate  *time.Time
	Notes    string
}

// Assign attaches a catalog task to a child. If an unassigned entry already
// exists for the pair it is moved to assigned in place; any other existing
// entry is a duplicate assignment and fails with Conflict.
func (s *Service) Assign(p auth.Principal, childID, taskID int64, params AssignParams) (*model.ChildTask, error) {
	if _, err := s.AuthorizeChild(p, childID); err != nil {
		return nil, err
	}
	task, err := s.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, NotFoundf("task %d not found", taskID)
	}

	existing, err := s.childTasks.GetByChildAndTask(childID, taskID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != model.StatusUnassigned {
			return nil, Conflictf("task %d is already assigned to child %d (status %s)", taskID, childID, existing.Status)
		}
		ok, err := s.childTasks.Reassign(existing.ID, params.Priority, params.DueDate, params.Notes, time.Now())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, Conflictf("task %d was assigned concurrently", taskID)
		}
		s.logger.Info("task reassigned", "entry_id", existing.ID, "child_id", childID, "task_id", taskID)
		return s.childTasks.GetByID(existing.ID)
	}

	entry, err := s.childTasks.Create(store.CreateParams{
		ChildID:  childID,
		TaskID:   &taskID,
		Status:   model.StatusAssigned,
		Priority: params.Priority,
		Notes:    params.Notes,
		DueDate:  params.DueDate,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("task assigned", "entry_id", entry.ID, "child_id", childID, "task_id", taskID)
	return entry, nil
}

// Start is the self-service variant of Assign: the child picks up a catalog
// task directly. Fails with Conflict when any entry for the pair exists in a
// non-reassignable state.
func (s *Service) Start(p auth.Principal, childID, taskID int64) (*model.ChildTask, error) {
	return s.Assign(p, childID, taskID, AssignParams{Priority: model.PriorityMedium})
}

// AdHocParams describes an embedded task definition with no catalog template.
type AdHocParams struct {
	Title       string
	RewardCoins int
	Category    model.Category
	Priority    model.Priority
	DueDate     *time.Time
	Notes       string
}

// CreateAdHoc records an ad-hoc ledger entry carrying its own definition.
func (s *Service) CreateAdHoc(p auth.Principal, childID int64, params AdHocParams) (*model.ChildTask, error) {
	if _, err := s.AuthorizeChild(p, childID); err != nil {
		return nil, err
	}
	if params.Title == "" {
		return nil, Invalidf("title is required for an ad-hoc task")
	}
	if params.RewardCoins < 0 {
		return nil, Invalidf("reward coins must not be negative")
	}
	if params.Category == "" {
		params.Category = model.CategoryIndependence
	}
	entry, err := s.childTasks.Create(store.CreateParams{
		ChildID:           childID,
		Status:            model.StatusAssigned,
		Priority:          params.Priority,
		Notes:             params.Notes,
		CustomTitle:       &params.Title,
		CustomRewardCoins: &params.RewardCoins,
		CustomCategory:    &params.Category,
		DueDate:           params.DueDate,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ad-hoc task created", "entry_id", entry.ID, "child_id", childID)
	return entry, nil
}

// Suggest records an unassigned entry for a catalog task, to be assigned
// later via Assign's re-entry path. Used by generated task suggestions.
func (s *Service) Suggest(p auth.Principal, childID, taskID int64) (*model.ChildTask, error) {
	if _, err := s.AuthorizeChild(p, childID); err != nil {
		return nil, err
	}
	task, err := s.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, NotFoundf("task %d not found", taskID)
	}
	existing, err := s.childTasks.GetByChildAndTask(childID, taskID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, Conflictf("an entry for task %d already exists for child %d", taskID, childID)
	}
	return s.childTasks.Create(store.CreateParams{
		ChildID:  childID,
		TaskID:   &taskID,
		Status:   model.StatusUnassigned,
		Priority: model.PriorityMedium,
	})
}

// ListEntries returns the child's ledger with resolved titles and payouts.
func (s *Service) ListEntries(p auth.Principal, childID int64) ([]model.ChildTaskDetail, error) {
	if _, err := s.AuthorizeChild(p, childID); err != nil {
		return nil, err
	}
	return s.childTasks.ListDetailsByChild(childID)
}

// GetEntry returns one ledger entry after the ownership check.
func (s *Service) GetEntry(p auth.Principal, entryID int64) (*model.ChildTask, error) {
	return s.getEntry(p, entryID)
}

// UpdateEntry changes assignment metadata. Status never moves through here.
func (s *Service) UpdateEntry(p auth.Principal, entryID int64, params store.UpdateParams) (*model.ChildTask, error) {
	if _, err := s.getEntry(p, entryID); err != nil {
		return nil, err
	}
	return s.childTasks.Update(entryID, params)
}

// Begin marks an assigned entry as actively worked on.
func (s *Service) Begin(p auth.Principal, entryID int64) (*model.ChildTask, error) {
	entry, err := s.getEntry(p, entryID)
	if err != nil {
		return nil, err
	}
	ok, err := s.childTasks.MarkInProgress(entryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(entryID, entry.Status, "begin")
	}
	return s.childTasks.GetByID(entryID)
}

// Complete signals the work is done and moves the entry to need_verify.
// An assigned entry advances through in_progress implicitly.
func (s *Service) Complete(p auth.Principal, entryID int64) (*model.ChildTask, error) {
	entry, err := s.getEntry(p, entryID)
	if err != nil {
		return nil, err
	}
	ok, err := s.childTasks.MarkNeedVerify(entryID, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(entryID, entry.Status, "complete")
	}
	s.logger.Info("task completed", "entry_id", entryID, "child_id", entry.ChildID)
	return s.childTasks.GetByID(entryID)
}

// Verify confirms a completed task and settles the reward: the entry moves to
// the terminal completed state, the payout is credited, and a badge grant is
// created when the task names one. Parent-only.
func (s *Service) Verify(p auth.Principal, entryID int64) (*model.ChildTask, error) {
	if p.Role != model.RoleParent {
		return nil, Forbiddenf("only a parent may verify a task")
	}
	entry, err := s.getEntry(p, entryID)
	if err != nil {
		return nil, err
	}

	var task *model.Task
	if entry.TaskID != nil {
		task, err = s.tasks.GetByID(*entry.TaskID)
		if err != nil {
			return nil, err
		}
	}
	payout := entry.EffectiveRewardCoins(task)

	// Badge lookup miss is non-fatal: an unknown badge name skips the grant
	// but never blocks the coin payout.
	var badgeRewardID *int64
	if task != nil && task.BadgeName != nil {
		badge, err := s.rewards.GetByName(*task.BadgeName)
		if err != nil {
			return nil, err
		}
		if badge != nil {
			badgeRewardID = &badge.ID
		} else {
			s.logger.Warn("badge reward not found, skipping grant", "badge", *task.BadgeName, "entry_id", entryID)
		}
	}

	ok, err := s.childTasks.VerifyAndSettle(entryID, entry.ChildID, payout, badgeRewardID, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(entryID, entry.Status, "verify")
	}
	s.logger.Info("task verified", "entry_id", entryID, "child_id", entry.ChildID, "payout", payout)
	return s.childTasks.GetByID(entryID)
}

// RejectVerification sends a need_verify entry back to in_progress, the sole
// backward transition. Parent-only.
func (s *Service) RejectVerification(p auth.Principal, entryID int64) (*model.ChildTask, error) {
	if p.Role != model.RoleParent {
		return nil, Forbiddenf("only a parent may reject a verification")
	}
	entry, err := s.getEntry(p, entryID)
	if err != nil {
		return nil, err
	}
	ok, err := s.childTasks.RejectVerification(entryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(entryID, entry.Status, "reject")
	}
	return s.childTasks.GetByID(entryID)
}

// GiveUp abandons an active entry into the terminal giveup state.
func (s *Service) GiveUp(p auth.Principal, entryID int64) (*model.ChildTask, error) {
	entry, err := s.getEntry(p, entryID)
	if err != nil {
		return nil, err
	}
	ok, err := s.childTasks.MarkGiveUp(entryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(entryID, entry.Status, "give up")
	}
	return s.childTasks.GetByID(entryID)
}

// MarkMissed moves an active entry to the terminal missed state.
func (s *Service) MarkMissed(p auth.Principal, entryID int64) (*model.ChildTask, error) {
	entry, err := s.getEntry(p, entryID)
	if err != nil {
		return nil, err
	}
	ok, err := s.childTasks.MarkMissed(entryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(entryID, entry.Status, "mark missed")
	}
	return s.childTasks.GetByID(entryID)
}

// MarkOverdueMissed sweeps every past-due active entry to missed. Run by the
// scheduler tick; not an authorized per-principal operation.
func (s *Service) MarkOverdueMissed(now time.Time) (int64, error) {
	n, err := s.childTasks.MarkOverdueMissed(now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("overdue tasks marked missed", "count", n)
	}
	return n, nil
}

// Unassign hard-deletes a ledger entry regardless of status.
func (s *Service) Unassign(p auth.Principal, entryID int64) error {
	if _, err := s.getEntry(p, entryID); err != nil {
		return err
	}
	return s.childTasks.Delete(entryID)
}

// invalidTransition names the state the entry was last seen in. The guarded
// update may have lost a race since then, so re-read for an accurate message.
func (s *Service) invalidTransition(entryID int64, lastSeen model.TaskStatus, verb string) error {
	current := lastSeen
	if entry, err := s.childTasks.GetByID(entryID); err == nil && entry != nil {
		current = entry.Status
	}
	return InvalidStatef("cannot %s a task in state %s", verb, current)
}

// --- Redemption workflow ---

// RequestRedemption files a pending coin-spend request. Coins and stock are
// untouched until approval; the cost is snapshotted now.
func (s *Service) RequestRedemption(p auth.Principal, childID, rewardID int64) (*model.RedemptionRequest, error) {
	child, err := s.AuthorizeChild(p, childID)
	if err != nil {
		return nil, err
	}
	reward, err := s.rewards.GetByID(rewardID)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, NotFoundf("reward %d not found", rewardID)
	}
	if !reward.Active {
		return nil, Invalidf("reward %q is not available", reward.Name)
	}
	// Cross-tenant redemption is forbidden: a creator-owned reward is only
	// redeemable by that creator's children.
	if reward.CreatorID != nil && (child.ParentID == nil || *reward.CreatorID != *child.ParentID) {
		return nil, Forbiddenf("reward %q belongs to another family", reward.Name)
	}
	if child.CurrentCoins < reward.CostCoins {
		return nil, InsufficientFundsf("insufficient coins: need %d more", reward.CostCoins-child.CurrentCoins)
	}

	req, err := s.redemptions.Create(childID, rewardID, reward.CostCoins)
	if err != nil {
		return nil, err
	}
	s.logger.Info("redemption requested", "request_id", req.ID, "child_id", childID, "reward_id", rewardID, "cost", reward.CostCoins)
	return req, nil
}

// ListRedemptions returns the child's request history.
func (s *Service) ListRedemptions(p auth.Principal, childID int64) ([]model.RedemptionRequest, error) {
	if _, err := s.AuthorizeChild(p, childID); err != nil {
		return nil, err
	}
	return s.redemptions.ListByChild(childID)
}

// ListPendingRedemptions returns pending requests across the parent's
// children. Parent-only.
func (s *Service) ListPendingRedemptions(p auth.Principal) ([]model.RedemptionRequest, error) {
	if p.Role != model.RoleParent {
		return nil, Forbiddenf("only a parent may review redemption requests")
	}
	return s.redemptions.ListPendingForParent(p.ParentID)
}

// getRedemption resolves a request and authorizes the parent over its child
// and, when the reward carries a creator, over the reward itself.
func (s *Service) getRedemption(p auth.Principal, requestID int64) (*model.RedemptionRequest, error) {
	if p.Role != model.RoleParent {
		return nil, Forbiddenf("only a parent may process a redemption request")
	}
	req, err := s.redemptions.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, NotFoundf("redemption request %d not found", requestID)
	}
	if _, err := s.AuthorizeChild(p, req.ChildID); err != nil {
		return nil, err
	}
	reward, err := s.rewards.GetByID(req.RewardID)
	if err != nil {
		return nil, err
	}
	// Creator unset is legacy data and processable by any owning parent.
	if reward != nil && reward.CreatorID != nil && *reward.CreatorID != p.ParentID {
		return nil, Forbiddenf("reward %q was created by another parent", reward.Name)
	}
	return req, nil
}

// ApproveRedemption settles a pending request: coin deduction, stock
// decrement, grant, and status flip in one transaction.
func (s *Service) ApproveRedemption(p auth.Principal, requestID int64) (*model.RedemptionRequest, error) {
	req, err := s.getRedemption(p, requestID)
	if err != nil {
		return nil, err
	}
	ok, err := s.redemptions.Approve(requestID, p.ParentID, time.Now())
	if errors.Is(err, store.ErrInsufficientFunds) {
		return nil, InsufficientFundsf("child %d no longer has %d coins", req.ChildID, req.CostCoins)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidRedemption(requestID, req.Status)
	}
	s.logger.Info("redemption approved", "request_id", requestID, "child_id", req.ChildID, "cost", req.CostCoins)
	return s.redemptions.GetByID(requestID)
}

// RejectRedemption declines a pending request with no balance or stock effect.
func (s *Service) RejectRedemption(p auth.Principal, requestID int64) (*model.RedemptionRequest, error) {
	req, err := s.getRedemption(p, requestID)
	if err != nil {
		return nil, err
	}
	ok, err := s.redemptions.Reject(requestID, p.ParentID, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidRedemption(requestID, req.Status)
	}
	return s.redemptions.GetByID(requestID)
}

func (s *Service) invalidRedemption(requestID int64, lastSeen model.RedemptionStatus) error {
	current := lastSeen
	if req, err := s.redemptions.GetByID(requestID); err == nil && req != nil {
		current = req.Status
	}
	return InvalidStatef("request already %s", current)
}

// --- Grants ---

// ListGrants returns every reward the child holds.
func (s *Service) ListGrants(p auth.Principal, childID int64) ([]model.ChildReward, error) {
	if _, err := s.AuthorizeChild(p, childID); err != nil {
		return nil, err
	}
	return s.rewards.ListGrantsByChild(childID)
}

// EquipSkin makes a held skin grant the child's sole equipped one. All other
// grants are unequipped in the same transaction.
func (s *Service) EquipSkin(p auth.Principal, childID, grantID int64) error {
	if _, err := s.AuthorizeChild(p, childID); err != nil {
		return err
	}
	grant, err := s.rewards.GetGrantByID(grantID)
	if err != nil {
		return err
	}
	if grant == nil || grant.ChildID != childID {
		return NotFoundf("grant %d not found", grantID)
	}
	reward, err := s.rewards.GetByID(grant.RewardID)
	if err != nil {
		return err
	}
	if reward == nil || reward.Type != model.RewardSkin {
		return Invalidf("only skin rewards can be equipped")
	}
	ok, err := s.rewards.EquipSkin(childID, grantID)
	if err != nil {
		return err
	}
	if !ok {
		return NotFoundf("grant %d not found", grantID)
	}
	return nil
}

// ListRewards returns the redeemable catalog for the principal's family.
func (s *Service) ListRewards(p auth.Principal) ([]model.Reward, error) {
	parentID := p.ParentID
	return s.rewards.ListActive(&parentID)
}
