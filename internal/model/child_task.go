package model

import "time"

// ChildTask is one ledger entry: the assignment of a catalog task (TaskID
// set) or an embedded ad-hoc definition (TaskID nil, CustomTitle set) to
// exactly one child. Override fields take precedence over the catalog
// template when rendering details.
type ChildTask struct {
	ID                int64      `json:"id"`
	ChildID           int64      `json:"child_id"`
	TaskID            *int64     `json:"task_id"`
	Status            TaskStatus `json:"status"`
	Priority          Priority   `json:"priority"`
	Progress          int        `json:"progress"` // 0-100
	Notes             string     `json:"notes"`
	CustomTitle       *string    `json:"custom_title"`
	CustomRewardCoins *int       `json:"custom_reward_coins"`
	CustomCategory    *Category  `json:"custom_category"`
	DueDate           *time.Time `json:"due_date"`
	AssignedAt        time.Time  `json:"assigned_at"`
	CompletedAt       *time.Time `json:"completed_at"`
}

// EffectiveTitle resolves the override-vs-template precedence. The task
// argument may be nil for ad-hoc entries.
func (ct *ChildTask) EffectiveTitle(task *Task) string {
	if ct.CustomTitle != nil {
		return *ct.CustomTitle
	}
	if task != nil {
		return task.Title
	}
	return ""
}

// EffectiveRewardCoins returns the payout settlement will use.
func (ct *ChildTask) EffectiveRewardCoins(task *Task) int {
	if ct.CustomRewardCoins != nil {
		return *ct.CustomRewardCoins
	}
	if task != nil {
		return task.RewardCoins
	}
	return 0
}

// EffectiveCategory resolves the category shown to clients.
func (ct *ChildTask) EffectiveCategory(task *Task) Category {
	if ct.CustomCategory != nil {
		return *ct.CustomCategory
	}
	if task != nil {
		return task.Category
	}
	return CategoryIndependence
}

// ChildTaskDetail is a ledger entry joined with its resolved template fields
// for rendering to a client.
type ChildTaskDetail struct {
	ChildTask
	Title       string   `json:"title"`
	Category    Category `json:"category"`
	RewardCoins int      `json:"reward_coins"`
}
