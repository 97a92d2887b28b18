// Package tasks persists the records behind task.create and task.list.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultName is used when task.create is called without task_name.
const DefaultName = "New Task"

// DefaultListLimit caps task.list when no limit is given.
const DefaultListLimit = 100

type Task struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// Map returns the task in its wire shape.
func (t Task) Map() map[string]any {
	return map[string]any{
		"task_id":    t.ID,
		"task_name":  t.Name,
		"created_at": t.CreatedAt.Unix(),
	}
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock returns a copy of the store that stamps tasks using now.
func (s *Store) WithClock(now func() time.Time) *Store {
	c := *s
	c.now = now
	return &c
}

// Create inserts a task. An empty or blank name becomes DefaultName.
func (s *Store) Create(ctx context.Context, name, createdBy string) (*Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	t := &Task{
		ID:        "task_" + uuid.NewString(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Unix(s.now().Unix(), 0),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tasks(task_id, task_name, created_by, created_at) VALUES(?, ?, ?, ?);",
		t.ID, t.Name, t.CreatedBy, t.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// List returns up to limit tasks, newest first. limit <= 0 means DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT task_id, task_name, created_by, created_at FROM tasks ORDER BY created_at DESC, seq DESC LIMIT ?;", limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var (
			t  Task
			ts int64
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedBy, &ts); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.CreatedAt = time.Unix(ts, 0)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// Count returns the total number of stored tasks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks;").Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}
