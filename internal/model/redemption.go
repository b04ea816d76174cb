package model

import "time"

// RedemptionRequest is a child-initiated request to spend coins on a shop
// reward. CostCoins is snapshotted at creation so later catalog price changes
// never affect pending requests. Coins and stock move only on approval.
type RedemptionRequest struct {
	ID          int64            `json:"id"`
	ChildID     int64            `json:"child_id"`
	RewardID    int64            `json:"reward_id"`
	CostCoins   int              `json:"cost_coins"`
	Status      RedemptionStatus `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	ProcessedAt *time.Time       `json:"processed_at"`
	ProcessedBy *int64           `json:"processed_by"`
}
