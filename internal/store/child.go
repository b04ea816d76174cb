package store

import (
	"database/sql"
	"fmt"

	"github.com/fernwood/sprout/internal/model"
)

type ChildStore struct {
	db *sql.DB
}

func NewChildStore(db *sql.DB) *ChildStore {
	return &ChildStore{db: db}
}

func scanChild(scanner interface{ Scan(...any) error }) (*model.Child, error) {
	var c model.Child
	var parentID sql.NullInt64
	var birthYear sql.NullInt64
	var pin sql.NullString

	err := scanner.Scan(
		&c.ID, &parentID, &c.Name, &c.AvatarEmoji, &birthYear, &pin,
		&c.CurrentCoins, &c.LifetimeCoins, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	if birthYear.Valid {
		y := int(birthYear.Int64)
		c.BirthYear = &y
	}
	c.HasPIN = pin.Valid && pin.String != ""
	return &c, nil
}

const childCols = `id, parent_id, name, avatar_emoji, birth_year, pin, current_coins, lifetime_coins, created_at, updated_at`

func (s *ChildStore) Create(parentID *int64, name, avatarEmoji string, birthYear *int) (*model.Child, error) {
	var pID sql.NullInt64
	if parentID != nil {
		pID = sql.NullInt64{Int64: *parentID, Valid: true}
	}
	var bYear sql.NullInt64
	if birthYear != nil {
		bYear = sql.NullInt64{Int64: int64(*birthYear), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO children (parent_id, name, avatar_emoji, birth_year) VALUES (?, ?, ?, ?)`,
		pID, name, avatarEmoji, bYear,
	)
	if err != nil {
		return nil, fmt.Errorf("insert child: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChildStore) GetByID(id int64) (*model.Child, error) {
	row := s.db.QueryRow(`SELECT `+childCols+` FROM children WHERE id = ?`, id)
	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	return c, nil
}

func (s *ChildStore) ListByParent(parentID int64) ([]model.Child, error) {
	rows, err := s.db.Query(
		`SELECT `+childCols+` FROM children WHERE parent_id = ? ORDER BY name ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var children []model.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children = append(children, *c)
	}
	return children, rows.Err()
}

// List returns every child with an owning parent. Used by the report
// scheduler; orphaned profiles are skipped since no one would read their
// reports.
func (s *ChildStore) List() ([]model.Child, error) {
	rows, err := s.db.Query(`SELECT ` + childCols + ` FROM children WHERE parent_id IS NOT NULL ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all children: %w", err)
	}
	defer rows.Close()

	var children []model.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children = append(children, *c)
	}
	return children, rows.Err()
}

func (s *ChildStore) Update(id int64, name, avatarEmoji string, birthYear *int) (*model.Child, error) {
	var bYear sql.NullInt64
	if birthYear != nil {
		bYear = sql.NullInt64{Int64: int64(*birthYear), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE children SET name = ?, avatar_emoji = ?, birth_year = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, avatarEmoji, bYear, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update child: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChildStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM children WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete child: %w", err)
	}
	return nil
}

func (s *ChildStore) SetPIN(id int64, hashedPIN string) error {
	_, err := s.db.Exec(`UPDATE children SET pin = ? WHERE id = ?`, hashedPIN, id)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *ChildStore) ClearPIN(id int64) error {
	_, err := s.db.Exec(`UPDATE children SET pin = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// GetPINHash returns "" when no PIN is set.
func (s *ChildStore) GetPINHash(id int64) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRow(`SELECT pin FROM children WHERE id = ?`, id).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("child not found")
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	if !pin.Valid {
		return "", nil
	}
	return pin.String, nil
}
