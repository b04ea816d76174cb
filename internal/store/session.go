package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fernwood/sprout/internal/model"
)

const sessionTTL = 30 * 24 * time.Hour

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var s model.Session
	var childID sql.NullInt64

	err := scanner.Scan(&s.ID, &s.Token, &s.Role, &s.ParentID, &childID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}

	if childID.Valid {
		s.ChildID = &childID.Int64
	}
	return &s, nil
}

const sessionCols = `id, token, role, parent_id, child_id, expires_at, created_at`

// generateToken returns a 256-bit random token, hex encoded.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create issues a session for a parent account. For child sessions (PIN
// login) childID is the linked profile; it is nil for parent sessions.
func (s *SessionStore) Create(role string, parentID int64, childID *int64) (*model.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	var cID sql.NullInt64
	if childID != nil {
		cID = sql.NullInt64{Int64: *childID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO sessions (token, role, parent_id, child_id, expires_at) VALUES (?, ?, ?, ?, ?)`,
		token, role, parentID, cID, time.Now().UTC().Add(sessionTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetByToken returns (nil, nil) for unknown or expired tokens.
func (s *SessionStore) GetByToken(token string) (*model.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE token = ?`, token)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		return nil, nil
	}
	return sess, nil
}

func (s *SessionStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes stale sessions and returns the number deleted.
func (s *SessionStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
