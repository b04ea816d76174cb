package model

import "time"

// Reward is a catalog template used both for task badge grants and for
// shop redemption. StockQuantity 0 means unlimited stock.
type Reward struct {
	ID            int64      `json:"id"`
	CreatorID     *int64     `json:"creator_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Type          RewardType `json:"type"`
	CostCoins     int        `json:"cost_coins"`
	StockQuantity int        `json:"stock_quantity"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ChildReward is a grant record linking a child to a reward instance.
// Equipped is meaningful only for skin-type rewards; at most one grant per
// child is equipped at any time.
type ChildReward struct {
	ID        int64     `json:"id"`
	ChildID   int64     `json:"child_id"`
	RewardID  int64     `json:"reward_id"`
	Equipped  bool      `json:"equipped"`
	GrantedAt time.Time `json:"granted_at"`
}
