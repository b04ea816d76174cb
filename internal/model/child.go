package model

import "time"

// coinsPerLevel is how many lifetime coins advance a child one level.
const coinsPerLevel = 100

type Child struct {
	ID            int64     `json:"id"`
	ParentID      *int64    `json:"parent_id"`
	Name          string    `json:"name"`
	AvatarEmoji   string    `json:"avatar_emoji"`
	BirthYear     *int      `json:"birth_year"`
	HasPIN        bool      `json:"has_pin"`
	CurrentCoins  int       `json:"current_coins"`
	LifetimeCoins int       `json:"lifetime_coins"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Level is derived from lifetime earnings so spending coins never demotes.
func (c *Child) Level() int {
	return 1 + c.LifetimeCoins/coinsPerLevel
}
