package model

import "time"

// PushSubscription is a browser push endpoint registered by a parent device.
type PushSubscription struct {
	ID        int64     `json:"id"`
	ParentID  int64     `json:"parent_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	CreatedAt time.Time `json:"created_at"`
}
