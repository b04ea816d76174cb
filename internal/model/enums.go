package model

import "fmt"

// TaskStatus is the lifecycle state of a ledger entry. Transition rules live
// in the ledger package; this package only defines the closed set of values.
type TaskStatus string

const (
	StatusUnassigned TaskStatus = "unassigned"
	StatusAssigned   TaskStatus = "assigned"
	StatusInProgress TaskStatus = "in_progress"
	StatusNeedVerify TaskStatus = "need_verify"
	StatusCompleted  TaskStatus = "completed"
	StatusGiveUp     TaskStatus = "giveup"
	StatusMissed     TaskStatus = "missed"
)

// Terminal reports whether no further transition is permitted from s.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusGiveUp || s == StatusMissed
}

func ParseTaskStatus(v string) (TaskStatus, error) {
	switch TaskStatus(v) {
	case StatusUnassigned, StatusAssigned, StatusInProgress, StatusNeedVerify,
		StatusCompleted, StatusGiveUp, StatusMissed:
		return TaskStatus(v), nil
	}
	return "", fmt.Errorf("unknown task status %q", v)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority returns medium for the empty string, matching the ledger's
// default when an assignment omits priority.
func ParsePriority(v string) (Priority, error) {
	switch Priority(v) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(v), nil
	case "":
		return PriorityMedium, nil
	}
	return "", fmt.Errorf("unknown priority %q", v)
}

type Category string

const (
	CategoryIndependence Category = "independence"
	CategoryLogic        Category = "logic"
	CategoryPhysical     Category = "physical"
	CategoryCreativity   Category = "creativity"
	CategorySocial       Category = "social"
	CategoryAcademic     Category = "academic"

	// Legacy categories kept for rows imported from older installs.
	CategoryIQ Category = "iq"
	CategoryEQ Category = "eq"
)

func ParseCategory(v string) (Category, error) {
	switch Category(v) {
	case CategoryIndependence, CategoryLogic, CategoryPhysical,
		CategoryCreativity, CategorySocial, CategoryAcademic,
		CategoryIQ, CategoryEQ:
		return Category(v), nil
	}
	return "", fmt.Errorf("unknown category %q", v)
}

type TaskType string

const (
	TaskTypeLogic   TaskType = "logic"
	TaskTypeEmotion TaskType = "emotion"
)

func ParseTaskType(v string) (TaskType, error) {
	switch TaskType(v) {
	case TaskTypeLogic, TaskTypeEmotion:
		return TaskType(v), nil
	case "":
		return TaskTypeLogic, nil
	}
	return "", fmt.Errorf("unknown task type %q", v)
}

type UnityType string

const (
	UnityLife   UnityType = "life"
	UnityChoice UnityType = "choice"
	UnityTalk   UnityType = "talk"
)

func ParseUnityType(v string) (UnityType, error) {
	switch UnityType(v) {
	case UnityLife, UnityChoice, UnityTalk:
		return UnityType(v), nil
	}
	return "", fmt.Errorf("unknown unity type %q", v)
}

type RewardType string

const (
	RewardBadge RewardType = "badge"
	RewardSkin  RewardType = "skin"
	RewardItem  RewardType = "item"
)

func ParseRewardType(v string) (RewardType, error) {
	switch RewardType(v) {
	case RewardBadge, RewardSkin, RewardItem:
		return RewardType(v), nil
	case "":
		return RewardItem, nil
	}
	return "", fmt.Errorf("unknown reward type %q", v)
}

type RedemptionStatus string

const (
	RedemptionPending  RedemptionStatus = "pending"
	RedemptionApproved RedemptionStatus = "approved"
	RedemptionRejected RedemptionStatus = "rejected"
)

func ParseRedemptionStatus(v string) (RedemptionStatus, error) {
	switch RedemptionStatus(v) {
	case RedemptionPending, RedemptionApproved, RedemptionRejected:
		return RedemptionStatus(v), nil
	}
	return "", fmt.Errorf("unknown redemption status %q", v)
}
