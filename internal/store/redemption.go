package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fernwood/sprout/internal/model"
)

// ErrInsufficientFunds is returned by Approve when the child's balance no
// longer covers the snapshotted cost at approval time.
var ErrInsufficientFunds = errors.New("insufficient coins")

// RedemptionStore persists redemption requests and runs the approval
// settlement transaction.
type RedemptionStore struct {
	db *sql.DB
}

func NewRedemptionStore(db *sql.DB) *RedemptionStore {
	return &RedemptionStore{db: db}
}

func scanRedemption(scanner interface{ Scan(...any) error }) (*model.RedemptionRequest, error) {
	var rr model.RedemptionRequest
	var processedAt sql.NullTime
	var processedBy sql.NullInt64
	err := scanner.Scan(
		&rr.ID, &rr.ChildID, &rr.RewardID, &rr.CostCoins, &rr.Status,
		&rr.RequestedAt, &processedAt, &processedBy,
	)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		rr.ProcessedAt = &processedAt.Time
	}
	if processedBy.Valid {
		rr.ProcessedBy = &processedBy.Int64
	}
	return &rr, nil
}

const redemptionCols = `id, child_id, reward_id, cost_coins, status, requested_at, processed_at, processed_by`

// Create records a pending request, snapshotting the reward's current cost.
func (s *RedemptionStore) Create(childID, rewardID int64, costCoins int) (*model.RedemptionRequest, error) {
	result, err := s.db.Exec(
		`INSERT INTO redemption_requests (child_id, reward_id, cost_coins) VALUES (?, ?, ?)`,
		childID, rewardID, costCoins,
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RedemptionStore) GetByID(id int64) (*model.RedemptionRequest, error) {
	row := s.db.QueryRow(`SELECT `+redemptionCols+` FROM redemption_requests WHERE id = ?`, id)
	rr, err := scanRedemption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return rr, nil
}

func (s *RedemptionStore) ListByChild(childID int64) ([]model.RedemptionRequest, error) {
	rows, err := s.db.Query(
		`SELECT `+redemptionCols+` FROM redemption_requests WHERE child_id = ? ORDER BY requested_at DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()
	return collectRedemptions(rows)
}

// ListPendingForParent returns pending requests from every child of the
// parent, oldest first.
func (s *RedemptionStore) ListPendingForParent(parentID int64) ([]model.RedemptionRequest, error) {
	rows, err := s.db.Query(
		`SELECT rr.id, rr.child_id, rr.reward_id, rr.cost_coins, rr.status, rr.requested_at, rr.processed_at, rr.processed_by
		 FROM redemption_requests rr
		 JOIN children c ON c.id = rr.child_id
		 WHERE c.parent_id = ? AND rr.status = ?
		 ORDER BY rr.requested_at ASC`,
		parentID, string(model.RedemptionPending),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending redemptions: %w", err)
	}
	defer rows.Close()
	return collectRedemptions(rows)
}

func collectRedemptions(rows *sql.Rows) ([]model.RedemptionRequest, error) {
	var requests []model.RedemptionRequest
	for rows.Next() {
		rr, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		requests = append(requests, *rr)
	}
	return requests, rows.Err()
}

// Approve settles a pending request in one transaction: flip to approved,
// deduct the snapshotted cost from the child's current balance, decrement
// stock when the reward tracks it, and grant the reward. The status flip is
// guarded on pending, the deduction on sufficient balance, and the stock
// decrement on stock remaining; any guard failing rolls the whole thing back.
// Returns (false, nil) when the request was not pending, and
// ErrInsufficientFunds when the balance no longer covers the cost.
func (s *RedemptionStore) Approve(id, parentID int64, now time.Time) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var childID, rewardID int64
	var costCoins int
	err = tx.QueryRow(
		`SELECT child_id, reward_id, cost_coins FROM redemption_requests WHERE id = ?`,
		id,
	).Scan(&childID, &rewardID, &costCoins)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load redemption: %w", err)
	}

	result, err := tx.Exec(
		`UPDATE redemption_requests SET status = ?, processed_at = ?, processed_by = ?
		 WHERE id = ? AND status = ?`,
		string(model.RedemptionApproved), now.UTC(), parentID,
		id, string(model.RedemptionPending),
	)
	if err != nil {
		return false, fmt.Errorf("approve redemption: %w", err)
	}
	ok, err := oneRow(result)
	if err != nil || !ok {
		return false, err
	}

	result, err = tx.Exec(
		`UPDATE children SET current_coins = current_coins - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND current_coins >= ?`,
		costCoins, childID, costCoins,
	)
	if err != nil {
		return false, fmt.Errorf("deduct coins: %w", err)
	}
	ok, err = oneRow(result)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInsufficientFunds
	}

	// Stock 0 means unlimited; tracked stock must not go negative.
	var stock int
	err = tx.QueryRow(`SELECT stock_quantity FROM rewards WHERE id = ?`, rewardID).Scan(&stock)
	if err != nil {
		return false, fmt.Errorf("load stock: %w", err)
	}
	if stock > 0 {
		result, err = tx.Exec(
			`UPDATE rewards SET stock_quantity = stock_quantity - 1, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND stock_quantity > 0`,
			rewardID,
		)
		if err != nil {
			return false, fmt.Errorf("decrement stock: %w", err)
		}
		ok, err = oneRow(result)
		if err != nil || !ok {
			return false, err
		}
	}

	_, err = tx.Exec(
		`INSERT INTO child_rewards (child_id, reward_id) VALUES (?, ?)`,
		childID, rewardID,
	)
	if err != nil {
		return false, fmt.Errorf("insert grant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit approval: %w", err)
	}
	return true, nil
}

// Reject flips a pending request to rejected. No coins or stock move.
func (s *RedemptionStore) Reject(id, parentID int64, now time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE redemption_requests SET status = ?, processed_at = ?, processed_by = ?
		 WHERE id = ? AND status = ?`,
		string(model.RedemptionRejected), now.UTC(), parentID,
		id, string(model.RedemptionPending),
	)
	if err != nil {
		return false, fmt.Errorf("reject redemption: %w", err)
	}
	return oneRow(result)
}
