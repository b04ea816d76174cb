package store

import (
	"database/sql"
	"fmt"

	"github.com/fernwood/sprout/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var ageMin, ageMax sql.NullInt64
	var badgeName, unityType sql.NullString

	err := scanner.Scan(
		&t.ID, &t.Title, &t.Description, &t.Category, &t.Type, &t.Difficulty,
		&ageMin, &ageMax, &t.RewardCoins, &badgeName, &unityType,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ageMin.Valid {
		v := int(ageMin.Int64)
		t.AgeMin = &v
	}
	if ageMax.Valid {
		v := int(ageMax.Int64)
		t.AgeMax = &v
	}
	if badgeName.Valid {
		t.BadgeName = &badgeName.String
	}
	if unityType.Valid {
		u := model.UnityType(unityType.String)
		t.UnityType = &u
	}
	return &t, nil
}

const taskCols = `id, title, description, category, task_type, difficulty, age_min, age_max, reward_coins, badge_name, unity_type, created_at, updated_at`

func (s *TaskStore) Create(t model.Task) (*model.Task, error) {
	var ageMin, ageMax sql.NullInt64
	if t.AgeMin != nil {
		ageMin = sql.NullInt64{Int64: int64(*t.AgeMin), Valid: true}
	}
	if t.AgeMax != nil {
		ageMax = sql.NullInt64{Int64: int64(*t.AgeMax), Valid: true}
	}
	var badgeName sql.NullString
	if t.BadgeName != nil {
		badgeName = sql.NullString{String: *t.BadgeName, Valid: true}
	}
	var unityType sql.NullString
	if t.UnityType != nil {
		unityType = sql.NullString{String: string(*t.UnityType), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO tasks (title, description, category, task_type, difficulty, age_min, age_max, reward_coins, badge_name, unity_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, string(t.Category), string(t.Type), t.Difficulty,
		ageMin, ageMax, t.RewardCoins, badgeName, unityType,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) GetByTitle(title string) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE title = ?`, title)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task by title: %w", err)
	}
	return t, nil
}

func (s *TaskStore) List() ([]model.Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskCols + ` FROM tasks ORDER BY category ASC, difficulty ASC, title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) ListByCategory(category model.Category) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks WHERE category = ? ORDER BY difficulty ASC, title ASC`,
		string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks by category: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Update(id int64, t model.Task) (*model.Task, error) {
	var ageMin, ageMax sql.NullInt64
	if t.AgeMin != nil {
		ageMin = sql.NullInt64{Int64: int64(*t.AgeMin), Valid: true}
	}
	if t.AgeMax != nil {
		ageMax = sql.NullInt64{Int64: int64(*t.AgeMax), Valid: true}
	}
	var badgeName sql.NullString
	if t.BadgeName != nil {
		badgeName = sql.NullString{String: *t.BadgeName, Valid: true}
	}
	var unityType sql.NullString
	if t.UnityType != nil {
		unityType = sql.NullString{String: string(*t.UnityType), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, category = ?, task_type = ?, difficulty = ?,
		 age_min = ?, age_max = ?, reward_coins = ?, badge_name = ?, unity_type = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		t.Title, t.Description, string(t.Category), string(t.Type), t.Difficulty,
		ageMin, ageMax, t.RewardCoins, badgeName, unityType, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes a catalog task. Dependent ledger entries go with it via the
// schema's ON DELETE CASCADE.
func (s *TaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
