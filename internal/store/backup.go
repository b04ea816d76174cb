package store

import (
	"database/sql"
	"fmt"

	"github.com/fernwood/sprout/internal/model"
)

// BackupStore records metadata for each uploaded database snapshot.
type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

const backupCols = `id, filename, size_bytes, checksum, created_at`

func (s *BackupStore) Create(filename string, sizeBytes int64, checksum string) (*model.BackupRecord, error) {
	result, err := s.db.Exec(
		`INSERT INTO backups (filename, size_bytes, checksum) VALUES (?, ?, ?)`,
		filename, sizeBytes, checksum,
	)
	if err != nil {
		return nil, fmt.Errorf("insert backup: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+backupCols+` FROM backups WHERE id = ?`, id)
	var b model.BackupRecord
	if err := row.Scan(&b.ID, &b.Filename, &b.SizeBytes, &b.Checksum, &b.CreatedAt); err != nil {
		return nil, fmt.Errorf("get backup: %w", err)
	}
	return &b, nil
}

func (s *BackupStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	return nil
}

func (s *BackupStore) List() ([]model.BackupRecord, error) {
	rows, err := s.db.Query(`SELECT ` + backupCols + ` FROM backups ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.BackupRecord
	for rows.Next() {
		var b model.BackupRecord
		if err := rows.Scan(&b.ID, &b.Filename, &b.SizeBytes, &b.Checksum, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}
