package model

import "time"

// BackupRecord tracks one encrypted database snapshot uploaded to object
// storage.
type BackupRecord struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}
