package model

import "time"

// Task is a reusable catalog template. Per-child assignments live in
// ChildTask; deleting a task cascades to its ledger entries.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    Category   `json:"category"`
	Type        TaskType   `json:"type"`
	Difficulty  int        `json:"difficulty"` // 1-5
	AgeMin      *int       `json:"age_min"`
	AgeMax      *int       `json:"age_max"`
	RewardCoins int        `json:"reward_coins"`
	BadgeName   *string    `json:"badge_name"`
	UnityType   *UnityType `json:"unity_type"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
