package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fernwood/sprout/internal/model"
)

// ReportStore persists generated behavioral reports.
type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

func scanReport(scanner interface{ Scan(...any) error }) (*model.Report, error) {
	var r model.Report
	err := scanner.Scan(&r.ID, &r.ChildID, &r.PeriodStart, &r.PeriodEnd, &r.Summary, &r.Model, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const reportCols = `id, child_id, period_start, period_end, summary, model, created_at`

func (s *ReportStore) Create(r model.Report) (*model.Report, error) {
	result, err := s.db.Exec(
		`INSERT INTO reports (child_id, period_start, period_end, summary, model) VALUES (?, ?, ?, ?, ?)`,
		r.ChildID, r.PeriodStart.UTC(), r.PeriodEnd.UTC(), r.Summary, r.Model,
	)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ReportStore) GetByID(id int64) (*model.Report, error) {
	row := s.db.QueryRow(`SELECT `+reportCols+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (s *ReportStore) ListByChild(childID int64) ([]model.Report, error) {
	rows, err := s.db.Query(
		`SELECT `+reportCols+` FROM reports WHERE child_id = ? ORDER BY period_end DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// HasReportCovering reports whether a report already exists whose period end
// falls on or after the given time. The scheduler uses this to avoid
// generating duplicate weekly reports.
func (s *ReportStore) HasReportCovering(childID int64, periodEnd time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM reports WHERE child_id = ? AND period_end >= ?`,
		childID, periodEnd.UTC(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check report coverage: %w", err)
	}
	return n > 0, nil
}
