package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
)

// TaskRepository handles task definitions.
type TaskRepository struct {
	q db.Querier
}

// NewTaskRepository creates a new TaskRepository instance.
func NewTaskRepository(q db.Querier) *TaskRepository {
	return &TaskRepository{q: q}
}

// WithTx returns a copy bound to the transaction.
func (r *TaskRepository) WithTx(tx pgx.Tx) *TaskRepository {
	return &TaskRepository{q: tx}
}

const taskColumns = `id, title, description, required_proof, reward, level_required,
	created_by, created_at, expires_at, time_limit_hours, is_active`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.RequiredProof,
		&t.Reward,
		&t.LevelRequired,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.TimeLimitHours,
		&t.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TaskInput holds the editable fields of a task.
type TaskInput struct {
	Title          string
	Description    string
	RequiredProof  string
	Reward         decimal.Decimal
	LevelRequired  model.Level
	ExpiresAt      *time.Time
	TimeLimitHours *int
	IsActive       bool
}

// Create inserts a task.
func (r *TaskRepository) Create(ctx context.Context, createdBy int64, in TaskInput) (*model.Task, error) {
	query := `
		INSERT INTO tasks (title, description, required_proof, reward, level_required,
			created_by, created_at, expires_at, time_limit_hours, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7, $8, $9)
		RETURNING ` + taskColumns

	task, err := scanTask(r.q.QueryRow(ctx, query,
		in.Title, in.Description, in.RequiredProof, in.Reward, in.LevelRequired,
		createdBy, in.ExpiresAt, in.TimeLimitHours, in.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// Update replaces the editable fields of a task.
func (r *TaskRepository) Update(ctx context.Context, id int64, in TaskInput) (*model.Task, error) {
	query := `
		UPDATE tasks SET title = $2, description = $3, required_proof = $4, reward = $5,
			level_required = $6, expires_at = $7, time_limit_hours = $8, is_active = $9
		WHERE id = $1
		RETURNING ` + taskColumns

	return r.getOne(ctx, query, id,
		in.Title, in.Description, in.RequiredProof, in.Reward, in.LevelRequired,
		in.ExpiresAt, in.TimeLimitHours, in.IsActive,
	)
}

// ToggleActive flips is_active and returns the updated task.
func (r *TaskRepository) ToggleActive(ctx context.Context, id int64) (*model.Task, error) {
	query := `UPDATE tasks SET is_active = NOT is_active WHERE id = $1 RETURNING ` + taskColumns
	return r.getOne(ctx, query, id)
}

// GetByID retrieves a task.
// Returns ErrTaskNotFound if the task does not exist.
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *TaskRepository) getOne(ctx context.Context, query string, args ...any) (*model.Task, error) {
	task, err := scanTask(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// List returns tasks, newest first. When activeOnly is set, inactive tasks
// and tasks past their cutoff at now are skipped.
func (r *TaskRepository) List(ctx context.Context, activeOnly bool, now time.Time) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE NOT $1 OR (is_active AND (expires_at IS NULL OR expires_at >= $2))
		ORDER BY created_at DESC, id DESC`

	rows, err := r.q.Query(ctx, query, activeOnly, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
