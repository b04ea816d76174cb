package store

import (
	"database/sql"
	"fmt"

	"github.com/fernwood/sprout/internal/model"
)

// RewardStore persists the reward catalog and per-child grants.
type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var creatorID sql.NullInt64
	err := scanner.Scan(
		&r.ID, &creatorID, &r.Name, &r.Description, &r.Type,
		&r.CostCoins, &r.StockQuantity, &r.Active, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if creatorID.Valid {
		r.CreatorID = &creatorID.Int64
	}
	return &r, nil
}

const rewardCols = `id, creator_id, name, description, reward_type, cost_coins, stock_quantity, active, created_at, updated_at`

func (s *RewardStore) Create(r model.Reward) (*model.Reward, error) {
	var creatorID sql.NullInt64
	if r.CreatorID != nil {
		creatorID = sql.NullInt64{Int64: *r.CreatorID, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO rewards (creator_id, name, description, reward_type, cost_coins, stock_quantity, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		creatorID, r.Name, r.Description, string(r.Type), r.CostCoins, r.StockQuantity, r.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// GetByName looks a reward up by its unique name. Settlement uses this to
// resolve a task's badge name to a grantable reward.
func (s *RewardStore) GetByName(name string) (*model.Reward, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE name = ?`, name)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward by name: %w", err)
	}
	return r, nil
}

// ListActive returns the redeemable catalog: active rewards visible to the
// given parent's household (global rows plus the parent's own).
func (s *RewardStore) ListActive(parentID *int64) ([]model.Reward, error) {
	var rows *sql.Rows
	var err error
	if parentID != nil {
		rows, err = s.db.Query(
			`SELECT `+rewardCols+` FROM rewards WHERE active = 1 AND (creator_id IS NULL OR creator_id = ?) ORDER BY cost_coins, name`,
			*parentID,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT ` + rewardCols + ` FROM rewards WHERE active = 1 AND creator_id IS NULL ORDER BY cost_coins, name`,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(id int64, r model.Reward) (*model.Reward, error) {
	_, err := s.db.Exec(
		`UPDATE rewards SET name = ?, description = ?, reward_type = ?, cost_coins = ?, stock_quantity = ?, active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		r.Name, r.Description, string(r.Type), r.CostCoins, r.StockQuantity, r.Active, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// --- Grants ---

func scanGrant(scanner interface{ Scan(...any) error }) (*model.ChildReward, error) {
	var g model.ChildReward
	err := scanner.Scan(&g.ID, &g.ChildID, &g.RewardID, &g.Equipped, &g.GrantedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

const grantCols = `id, child_id, reward_id, equipped, granted_at`

func (s *RewardStore) CreateGrant(childID, rewardID int64) (*model.ChildReward, error) {
	result, err := s.db.Exec(
		`INSERT INTO child_rewards (child_id, reward_id) VALUES (?, ?)`,
		childID, rewardID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert grant: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetGrantByID(id)
}

func (s *RewardStore) GetGrantByID(id int64) (*model.ChildReward, error) {
	row := s.db.QueryRow(`SELECT `+grantCols+` FROM child_rewards WHERE id = ?`, id)
	g, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get grant: %w", err)
	}
	return g, nil
}

// HasGrant reports whether a child already holds any grant of a reward.
func (s *RewardStore) HasGrant(childID, rewardID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM child_rewards WHERE child_id = ? AND reward_id = ?`,
		childID, rewardID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check grant: %w", err)
	}
	return n > 0, nil
}

func (s *RewardStore) ListGrantsByChild(childID int64) ([]model.ChildReward, error) {
	rows, err := s.db.Query(
		`SELECT `+grantCols+` FROM child_rewards WHERE child_id = ? ORDER BY granted_at DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []model.ChildReward
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}

// EquipSkin makes the given grant the child's sole equipped grant. Unequip
// of every other grant and equip of the target happen in one transaction so
// readers never observe two equipped skins.
func (s *RewardStore) EquipSkin(childID, grantID int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE child_rewards SET equipped = 0 WHERE child_id = ? AND equipped = 1`,
		childID,
	)
	if err != nil {
		return false, fmt.Errorf("unequip skins: %w", err)
	}

	result, err := tx.Exec(
		`UPDATE child_rewards SET equipped = 1 WHERE id = ? AND child_id = ?`,
		grantID, childID,
	)
	if err != nil {
		return false, fmt.Errorf("equip skin: %w", err)
	}
	ok, err := oneRow(result)
	if err != nil || !ok {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit equip: %w", err)
	}
	return true, nil
}
