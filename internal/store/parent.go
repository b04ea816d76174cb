package store

import (
	"database/sql"
	"fmt"

	"github.com/fernwood/sprout/internal/model"
)

type ParentStore struct {
	db *sql.DB
}

func NewParentStore(db *sql.DB) *ParentStore {
	return &ParentStore{db: db}
}

func scanParent(scanner interface{ Scan(...any) error }) (*model.Parent, error) {
	var p model.Parent
	err := scanner.Scan(&p.ID, &p.Email, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const parentCols = `id, email, name, created_at, updated_at`

func (s *ParentStore) Create(email, name, passwordHash string) (*model.Parent, error) {
	result, err := s.db.Exec(
		`INSERT INTO parents (email, name, password_hash) VALUES (?, ?, ?)`,
		email, name, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert parent: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ParentStore) GetByID(id int64) (*model.Parent, error) {
	row := s.db.QueryRow(`SELECT `+parentCols+` FROM parents WHERE id = ?`, id)
	p, err := scanParent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parent: %w", err)
	}
	return p, nil
}

func (s *ParentStore) GetByEmail(email string) (*model.Parent, error) {
	row := s.db.QueryRow(`SELECT `+parentCols+` FROM parents WHERE email = ?`, email)
	p, err := scanParent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parent by email: %w", err)
	}
	return p, nil
}

// GetPasswordHash returns the stored bcrypt hash, or "" when the parent does
// not exist.
func (s *ParentStore) GetPasswordHash(email string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT password_hash FROM parents WHERE email = ?`, email).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get password hash: %w", err)
	}
	return hash, nil
}

func (s *ParentStore) Update(id int64, email, name string) (*model.Parent, error) {
	_, err := s.db.Exec(
		`UPDATE parents SET email = ?, name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		email, name, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update parent: %w", err)
	}
	return s.GetByID(id)
}

func (s *ParentStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM parents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete parent: %w", err)
	}
	return nil
}
