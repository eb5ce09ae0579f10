package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initTaskSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initTaskSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS saba_tasks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			task_type TEXT NOT NULL,
			priority TEXT NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			due_date TIMESTAMPTZ NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saba_tasks_user_created ON saba_tasks (user_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_saba_tasks_due ON saba_tasks (due_date) WHERE NOT completed;`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init task schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const taskColumns = `id, user_id, content, task_type, priority, completed, due_date, tags, created_at, updated_at`

func (s *PostgresStore) SaveTask(ctx context.Context, task Task) error {
	tags := task.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO saba_tasks (`+taskColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			user_id=EXCLUDED.user_id,
			content=EXCLUDED.content,
			task_type=EXCLUDED.task_type,
			priority=EXCLUDED.priority,
			completed=EXCLUDED.completed,
			due_date=EXCLUDED.due_date,
			tags=EXCLUDED.tags,
			updated_at=EXCLUDED.updated_at`,
		task.ID,
		task.UserID,
		task.Content,
		string(task.Type),
		string(task.Priority),
		task.Completed,
		task.DueDate,
		tags,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM saba_tasks WHERE id=$1`, taskID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrStoreNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) ListTasksByUser(ctx context.Context, userID string) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM saba_tasks WHERE user_id=$1 ORDER BY created_at DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM saba_tasks
		  WHERE NOT completed AND due_date IS NOT NULL AND due_date <= $1 AND task_type = ANY($2)
		  ORDER BY due_date ASC`,
		now, []string{string(TaskTypeReminder), string(TaskTypeAlarm)},
	)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM saba_tasks WHERE id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func collectTasks(rows pgx.Rows) ([]Task, error) {
	defer rows.Close()
	out := make([]Task, 0, 16)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return out, nil
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		task     Task
		taskType string
		priority string
		due      *time.Time
	)
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Content,
		&taskType,
		&priority,
		&task.Completed,
		&due,
		&task.Tags,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	task.Type = TaskType(taskType)
	task.Priority = Priority(priority)
	task.DueDate = due
	return task, nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
