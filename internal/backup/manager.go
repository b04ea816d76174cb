package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fernwood/sprout/internal/store"
)

// backupHourUTC is when the nightly snapshot runs.
const backupHourUTC = 3

// s3Client is the slice of the S3 API the manager uses, an interface for
// testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration. Passphrase is instance-level,
// supplied once through the environment.
type Config struct {
	S3            S3Config
	DBPath        string
	Passphrase    string
	RetentionDays int
}

// Manager uploads encrypted nightly database snapshots to S3-compatible
// storage and prunes old ones. Disabled (every method a no-op or error) when
// S3 credentials or the passphrase are missing.
type Manager struct {
	mu      sync.RWMutex
	cfg     Config
	db      *sql.DB
	backups *store.BackupStore
	client  s3Client
	logger  *slog.Logger

	lastRun time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewManager(cfg Config, db *sql.DB, backups *store.BackupStore, logger *slog.Logger) *Manager {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	m := &Manager{
		cfg:     cfg,
		db:      db,
		backups: backups,
		logger:  logger.With("component", "backup"),
	}
	if m.Enabled() {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

// Enabled reports whether the manager has everything it needs to run.
func (m *Manager) Enabled() bool {
	return m.cfg.S3.Bucket != "" && m.cfg.S3.AccessKey != "" && m.cfg.S3.SecretKey != "" && m.cfg.Passphrase != ""
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start begins the nightly snapshot loop.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Info("backups disabled: missing S3 credentials or passphrase")
		return
	}

	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx, time.Now().UTC())
			}
		}
	}()
}

// Stop gracefully stops the snapshot loop.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) checkSchedule(ctx context.Context, now time.Time) {
	if now.Hour() != backupHourUTC || now.Minute() != 0 {
		return
	}
	m.mu.RLock()
	ranToday := m.lastRun.Year() == now.Year() && m.lastRun.YearDay() == now.YearDay()
	m.mu.RUnlock()
	if ranToday {
		return
	}

	if _, err := m.RunNow(ctx); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
		return
	}
	if err := m.cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
}

// RunNow snapshots the database, encrypts it, and uploads it.
func (m *Manager) RunNow(ctx context.Context) (int64, error) {
	if !m.Enabled() {
		return 0, fmt.Errorf("backups not configured")
	}

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	filename := fmt.Sprintf("sprout-%s.db.enc", timestamp)

	// Checkpoint WAL so the file copy is a complete snapshot.
	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return 0, fmt.Errorf("wal checkpoint: %w", err)
	}

	plaintext, err := os.ReadFile(m.cfg.DBPath)
	if err != nil {
		return 0, fmt.Errorf("read database: %w", err)
	}

	encrypted, err := Encrypt(plaintext, m.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt snapshot: %w", err)
	}

	sum := sha256.Sum256(encrypted)
	checksum := hex.EncodeToString(sum[:])

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(filename),
		Body:          bytes.NewReader(encrypted),
		ContentLength: aws.Int64(int64(len(encrypted))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload snapshot: %w", err)
	}

	record, err := m.backups.Create(filename, int64(len(encrypted)), checksum)
	if err != nil {
		return 0, fmt.Errorf("record backup: %w", err)
	}

	m.mu.Lock()
	m.lastRun = time.Now().UTC()
	m.mu.Unlock()

	m.logger.Info("backup uploaded", "filename", filename, "size", len(encrypted))
	return record.ID, nil
}

// Restore downloads and decrypts a snapshot into dstPath after verifying the
// checksum and the restored file's sqlite integrity. The caller is expected
// to restart the process afterwards.
func (m *Manager) Restore(ctx context.Context, backupID int64, dstPath string) error {
	if !m.Enabled() {
		return fmt.Errorf("backups not configured")
	}

	records, err := m.backups.List()
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	var filename, checksum string
	for _, r := range records {
		if r.ID == backupID {
			filename, checksum = r.Filename, r.Checksum
			break
		}
	}
	if filename == "" {
		return fmt.Errorf("backup %d not found", backupID)
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(filename),
	})
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	defer result.Body.Close()

	encrypted, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	sum := sha256.Sum256(encrypted)
	if hex.EncodeToString(sum[:]) != checksum {
		return fmt.Errorf("checksum mismatch for %s", filename)
	}

	plaintext, err := Decrypt(encrypted, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt snapshot: %w", err)
	}

	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("sprout-restore-%d.db", backupID))
	defer os.Remove(tmp)
	if err := os.WriteFile(tmp, plaintext, 0600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}

	tmpDB, err := sql.Open("sqlite", tmp)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	var integrity string
	err = tmpDB.QueryRow("PRAGMA integrity_check").Scan(&integrity)
	tmpDB.Close()
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}

	if err := os.WriteFile(dstPath, plaintext, 0600); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(dstPath + "-wal")
	os.Remove(dstPath + "-shm")

	m.logger.Info("backup restored", "filename", filename, "dst", dstPath)
	return nil
}

// cleanup deletes snapshots older than the retention window, locally and in
// the bucket.
func (m *Manager) cleanup(ctx context.Context) error {
	records, err := m.backups.List()
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	for _, r := range records {
		if !r.CreatedAt.Before(cutoff) {
			continue
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(r.Filename),
		}); err != nil {
			m.logger.Warn("delete remote snapshot", "error", err, "filename", r.Filename)
			continue
		}
		if err := m.backups.Delete(r.ID); err != nil {
			m.logger.Warn("delete backup record", "error", err, "id", r.ID)
		}
	}
	return nil
}
