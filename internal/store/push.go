package store

import (
	"database/sql"
	"fmt"

	"github.com/fernwood/sprout/internal/model"
)

// PushStore persists browser push subscriptions.
type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := scanner.Scan(&sub.ID, &sub.ParentID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

const subscriptionCols = `id, parent_id, endpoint, p256dh_key, auth_key, created_at`

// Upsert registers a subscription, replacing the keys when the endpoint is
// already known. Browsers rotate keys on re-subscribe.
func (s *PushStore) Upsert(parentID int64, endpoint, p256dh, auth string) (*model.PushSubscription, error) {
	_, err := s.db.Exec(
		`INSERT INTO push_subscriptions (parent_id, endpoint, p256dh_key, auth_key)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET parent_id = excluded.parent_id, p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key`,
		parentID, endpoint, p256dh, auth,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *PushStore) ListByParent(parentID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE parent_id = ?`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// DeleteByEndpoint removes a subscription the push service reported gone.
func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
