package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fernwood/sprout/internal/model"
)

// ChildTaskStore persists ledger entries. Every status mutation here is a
// guarded conditional update: the row changes only if its current status is
// one the transition permits, and callers learn via the ok return whether
// they won the race. There is no unguarded status write in this store.
type ChildTaskStore struct {
	db *sql.DB
}

func NewChildTaskStore(db *sql.DB) *ChildTaskStore {
	return &ChildTaskStore{db: db}
}

func scanChildTask(scanner interface{ Scan(...any) error }) (*model.ChildTask, error) {
	var ct model.ChildTask
	var taskID sql.NullInt64
	var customTitle, customCategory sql.NullString
	var customCoins sql.NullInt64
	var dueDate, completedAt sql.NullTime

	err := scanner.Scan(
		&ct.ID, &ct.ChildID, &taskID, &ct.Status, &ct.Priority, &ct.Progress,
		&ct.Notes, &customTitle, &customCoins, &customCategory,
		&dueDate, &ct.AssignedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if taskID.Valid {
		ct.TaskID = &taskID.Int64
	}
	if customTitle.Valid {
		ct.CustomTitle = &customTitle.String
	}
	if customCoins.Valid {
		v := int(customCoins.Int64)
		ct.CustomRewardCoins = &v
	}
	if customCategory.Valid {
		c := model.Category(customCategory.String)
		ct.CustomCategory = &c
	}
	if dueDate.Valid {
		ct.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		ct.CompletedAt = &completedAt.Time
	}
	return &ct, nil
}

const childTaskCols = `id, child_id, task_id, status, priority, progress, notes, custom_title, custom_reward_coins, custom_category, due_date, assigned_at, completed_at`

// CreateParams captures the writable fields of a new ledger entry.
type CreateParams struct {
	ChildID           int64
	TaskID            *int64
	Status            model.TaskStatus
	Priority          model.Priority
	Notes             string
	CustomTitle       *string
	CustomRewardCoins *int
	CustomCategory    *model.Category
	DueDate           *time.Time
}

func (s *ChildTaskStore) Create(p CreateParams) (*model.ChildTask, error) {
	var taskID sql.NullInt64
	if p.TaskID != nil {
		taskID = sql.NullInt64{Int64: *p.TaskID, Valid: true}
	}
	var customTitle sql.NullString
	if p.CustomTitle != nil {
		customTitle = sql.NullString{String: *p.CustomTitle, Valid: true}
	}
	var customCoins sql.NullInt64
	if p.CustomRewardCoins != nil {
		customCoins = sql.NullInt64{Int64: int64(*p.CustomRewardCoins), Valid: true}
	}
	var customCategory sql.NullString
	if p.CustomCategory != nil {
		customCategory = sql.NullString{String: string(*p.CustomCategory), Valid: true}
	}
	var dueDate sql.NullTime
	if p.DueDate != nil {
		dueDate = sql.NullTime{Time: p.DueDate.UTC(), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO child_tasks (child_id, task_id, status, priority, notes, custom_title, custom_reward_coins, custom_category, due_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ChildID, taskID, string(p.Status), string(p.Priority), p.Notes,
		customTitle, customCoins, customCategory, dueDate,
	)
	if err != nil {
		return nil, fmt.Errorf("insert child task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChildTaskStore) GetByID(id int64) (*model.ChildTask, error) {
	row := s.db.QueryRow(`SELECT `+childTaskCols+` FROM child_tasks WHERE id = ?`, id)
	ct, err := scanChildTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child task: %w", err)
	}
	return ct, nil
}

// GetByChildAndTask returns the ledger entry for a (child, catalog task)
// pair. The assignment guard keeps at most one entry per pair.
func (s *ChildTaskStore) GetByChildAndTask(childID, taskID int64) (*model.ChildTask, error) {
	row := s.db.QueryRow(
		`SELECT `+childTaskCols+` FROM child_tasks WHERE child_id = ? AND task_id = ? ORDER BY id DESC LIMIT 1`,
		childID, taskID,
	)
	ct, err := scanChildTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child task by pair: %w", err)
	}
	return ct, nil
}

func (s *ChildTaskStore) ListByChild(childID int64) ([]model.ChildTask, error) {
	rows, err := s.db.Query(
		`SELECT `+childTaskCols+` FROM child_tasks WHERE child_id = ? ORDER BY assigned_at DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list child tasks: %w", err)
	}
	defer rows.Close()
	return collectChildTasks(rows)
}

func (s *ChildTaskStore) ListByChildAndStatus(childID int64, status model.TaskStatus) ([]model.ChildTask, error) {
	rows, err := s.db.Query(
		`SELECT `+childTaskCols+` FROM child_tasks WHERE child_id = ? AND status = ? ORDER BY assigned_at DESC`,
		childID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list child tasks by status: %w", err)
	}
	defer rows.Close()
	return collectChildTasks(rows)
}

// ListByChildBetween returns entries that were assigned or completed within
// the window. Used by the report generator.
func (s *ChildTaskStore) ListByChildBetween(childID int64, start, end time.Time) ([]model.ChildTask, error) {
	rows, err := s.db.Query(
		`SELECT `+childTaskCols+` FROM child_tasks
		 WHERE child_id = ?
		   AND (assigned_at BETWEEN ? AND ? OR (completed_at IS NOT NULL AND completed_at BETWEEN ? AND ?))
		 ORDER BY assigned_at ASC`,
		childID, start.UTC(), end.UTC(), start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list child tasks between: %w", err)
	}
	defer rows.Close()
	return collectChildTasks(rows)
}

// ListDetailsByChild joins each entry with its catalog template and resolves
// the override-vs-template precedence.
func (s *ChildTaskStore) ListDetailsByChild(childID int64) ([]model.ChildTaskDetail, error) {
	rows, err := s.db.Query(
		`SELECT ct.id, ct.child_id, ct.task_id, ct.status, ct.priority, ct.progress, ct.notes,
		        ct.custom_title, ct.custom_reward_coins, ct.custom_category,
		        ct.due_date, ct.assigned_at, ct.completed_at,
		        t.title, t.category, t.reward_coins
		 FROM child_tasks ct
		 LEFT JOIN tasks t ON t.id = ct.task_id
		 WHERE ct.child_id = ?
		 ORDER BY ct.assigned_at DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list child task details: %w", err)
	}
	defer rows.Close()

	var details []model.ChildTaskDetail
	for rows.Next() {
		var d model.ChildTaskDetail
		var taskID sql.NullInt64
		var customTitle, customCategory sql.NullString
		var customCoins sql.NullInt64
		var dueDate, completedAt sql.NullTime
		var title, category sql.NullString
		var rewardCoins sql.NullInt64

		err := rows.Scan(
			&d.ID, &d.ChildID, &taskID, &d.Status, &d.Priority, &d.Progress, &d.Notes,
			&customTitle, &customCoins, &customCategory,
			&dueDate, &d.AssignedAt, &completedAt,
			&title, &category, &rewardCoins,
		)
		if err != nil {
			return nil, fmt.Errorf("scan child task detail: %w", err)
		}

		if taskID.Valid {
			d.TaskID = &taskID.Int64
		}
		if customTitle.Valid {
			d.CustomTitle = &customTitle.String
		}
		if customCoins.Valid {
			v := int(customCoins.Int64)
			d.CustomRewardCoins = &v
		}
		if customCategory.Valid {
			c := model.Category(customCategory.String)
			d.CustomCategory = &c
		}
		if dueDate.Valid {
			d.DueDate = &dueDate.Time
		}
		if completedAt.Valid {
			d.CompletedAt = &completedAt.Time
		}

		var tmpl *model.Task
		if taskID.Valid {
			tmpl = &model.Task{
				Title:       title.String,
				Category:    model.Category(category.String),
				RewardCoins: int(rewardCoins.Int64),
			}
		}
		d.Title = d.EffectiveTitle(tmpl)
		d.Category = d.EffectiveCategory(tmpl)
		d.RewardCoins = d.EffectiveRewardCoins(tmpl)

		details = append(details, d)
	}
	return details, rows.Err()
}

func collectChildTasks(rows *sql.Rows) ([]model.ChildTask, error) {
	var entries []model.ChildTask
	for rows.Next() {
		ct, err := scanChildTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child task: %w", err)
		}
		entries = append(entries, *ct)
	}
	return entries, rows.Err()
}

// UpdateParams captures the mutable assignment metadata of an entry. Status
// never moves through here; transitions have their own guarded methods.
type UpdateParams struct {
	Priority          model.Priority
	Notes             string
	CustomTitle       *string
	CustomRewardCoins *int
	CustomCategory    *model.Category
	DueDate           *time.Time
}

func (s *ChildTaskStore) Update(id int64, p UpdateParams) (*model.ChildTask, error) {
	var customTitle sql.NullString
	if p.CustomTitle != nil {
		customTitle = sql.NullString{String: *p.CustomTitle, Valid: true}
	}
	var customCoins sql.NullInt64
	if p.CustomRewardCoins != nil {
		customCoins = sql.NullInt64{Int64: int64(*p.CustomRewardCoins), Valid: true}
	}
	var customCategory sql.NullString
	if p.CustomCategory != nil {
		customCategory = sql.NullString{String: string(*p.CustomCategory), Valid: true}
	}
	var dueDate sql.NullTime
	if p.DueDate != nil {
		dueDate = sql.NullTime{Time: p.DueDate.UTC(), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE child_tasks SET priority = ?, notes = ?, custom_title = ?, custom_reward_coins = ?, custom_category = ?, due_date = ? WHERE id = ?`,
		string(p.Priority), p.Notes, customTitle, customCoins, customCategory, dueDate, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update child task: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes an entry outright regardless of status.
func (s *ChildTaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM child_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete child task: %w", err)
	}
	return nil
}

// --- Guarded status transitions ---

// Reassign flips an unassigned entry to assigned in place, refreshing its
// assignment metadata. This is the one legitimate re-entry path for a
// (child, task) pair.
func (s *ChildTaskStore) Reassign(id int64, priority model.Priority, dueDate *time.Time, notes string, now time.Time) (bool, error) {
	var due sql.NullTime
	if dueDate != nil {
		due = sql.NullTime{Time: dueDate.UTC(), Valid: true}
	}
	result, err := s.db.Exec(
		`UPDATE child_tasks SET status = ?, priority = ?, due_date = ?, notes = ?, assigned_at = ?, progress = 0, completed_at = NULL
		 WHERE id = ? AND status = ?`,
		string(model.StatusAssigned), string(priority), due, notes, now.UTC(),
		id, string(model.StatusUnassigned),
	)
	if err != nil {
		return false, fmt.Errorf("reassign child task: %w", err)
	}
	return oneRow(result)
}

// MarkInProgress moves an assigned entry into in_progress.
func (s *ChildTaskStore) MarkInProgress(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE child_tasks SET status = ? WHERE id = ? AND status = ?`,
		string(model.StatusInProgress), id, string(model.StatusAssigned),
	)
	if err != nil {
		return false, fmt.Errorf("mark in progress: %w", err)
	}
	return oneRow(result)
}

// MarkNeedVerify advances an active entry to need_verify with progress 100
// and a completion timestamp. An entry sitting at assigned passes through
// in_progress implicitly.
func (s *ChildTaskStore) MarkNeedVerify(id int64, now time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE child_tasks SET status = ?, progress = 100, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(model.StatusNeedVerify), now.UTC(),
		id, string(model.StatusAssigned), string(model.StatusInProgress),
	)
	if err != nil {
		return false, fmt.Errorf("mark need verify: %w", err)
	}
	return oneRow(result)
}

// RejectVerification is the sole backward transition: need_verify back to
// in_progress, progress reset, completion cleared.
func (s *ChildTaskStore) RejectVerification(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE child_tasks SET status = ?, progress = 0, completed_at = NULL
		 WHERE id = ? AND status = ?`,
		string(model.StatusInProgress), id, string(model.StatusNeedVerify),
	)
	if err != nil {
		return false, fmt.Errorf("reject verification: %w", err)
	}
	return oneRow(result)
}

// MarkGiveUp moves an active entry to the terminal giveup state.
func (s *ChildTaskStore) MarkGiveUp(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE child_tasks SET status = ? WHERE id = ? AND status IN (?, ?)`,
		string(model.StatusGiveUp),
		id, string(model.StatusAssigned), string(model.StatusInProgress),
	)
	if err != nil {
		return false, fmt.Errorf("mark giveup: %w", err)
	}
	return oneRow(result)
}

// MarkMissed moves a single active entry to the terminal missed state.
func (s *ChildTaskStore) MarkMissed(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE child_tasks SET status = ? WHERE id = ? AND status IN (?, ?)`,
		string(model.StatusMissed),
		id, string(model.StatusAssigned), string(model.StatusInProgress),
	)
	if err != nil {
		return false, fmt.Errorf("mark missed: %w", err)
	}
	return oneRow(result)
}

// MarkOverdueMissed moves every active entry whose due date has passed to the
// terminal missed state, returning how many rows moved. Run by the scheduler;
// the guard makes it safe to run concurrently with request-path transitions.
func (s *ChildTaskStore) MarkOverdueMissed(now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE child_tasks SET status = ?
		 WHERE status IN (?, ?) AND due_date IS NOT NULL AND due_date < ?`,
		string(model.StatusMissed),
		string(model.StatusAssigned), string(model.StatusInProgress),
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue missed: %w", err)
	}
	return result.RowsAffected()
}

// VerifyAndSettle flips a need_verify entry to completed and applies the
// payout in one transaction: coin credit to the child, plus a badge grant
// when badgeRewardID is set and the child does not already hold it. The
// status flip is the sole gate; if another verify won the race ok is false
// and nothing is paid.
func (s *ChildTaskStore) VerifyAndSettle(id, childID int64, payout int, badgeRewardID *int64, now time.Time) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE child_tasks SET status = ?, progress = 100, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.StatusCompleted), now.UTC(),
		id, string(model.StatusNeedVerify),
	)
	if err != nil {
		return false, fmt.Errorf("complete entry: %w", err)
	}
	ok, err := oneRow(result)
	if err != nil || !ok {
		return false, err
	}

	if payout > 0 {
		_, err = tx.Exec(
			`UPDATE children SET current_coins = current_coins + ?, lifetime_coins = lifetime_coins + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			payout, payout, childID,
		)
		if err != nil {
			return false, fmt.Errorf("credit coins: %w", err)
		}
	}

	if badgeRewardID != nil {
		var held int
		err = tx.QueryRow(
			`SELECT COUNT(*) FROM child_rewards WHERE child_id = ? AND reward_id = ?`,
			childID, *badgeRewardID,
		).Scan(&held)
		if err != nil {
			return false, fmt.Errorf("check badge grant: %w", err)
		}
		if held == 0 {
			_, err = tx.Exec(
				`INSERT INTO child_rewards (child_id, reward_id) VALUES (?, ?)`,
				childID, *badgeRewardID,
			)
			if err != nil {
				return false, fmt.Errorf("insert badge grant: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit settlement: %w", err)
	}
	return true, nil
}

func oneRow(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
