package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
	"hr-portal/internal/schema"
)

// UserTaskRepository handles task attempts.
type UserTaskRepository struct {
	q db.Querier
}

// NewUserTaskRepository creates a new UserTaskRepository instance.
func NewUserTaskRepository(q db.Querier) *UserTaskRepository {
	return &UserTaskRepository{q: q}
}

// WithTx returns a copy bound to the transaction.
func (r *UserTaskRepository) WithTx(tx pgx.Tx) *UserTaskRepository {
	return &UserTaskRepository{q: tx}
}

const userTaskColumns = `ut.id, ut.user_id, ut.task_id, ut.status, ut.taken_at, ut.expires_at,
	ut.submitted_at, ut.approved_at, ut.proof, ut.proof_files, ut.proof_links,
	ut.admin_comment, ut.reviewed_by`

func userTaskDest(ut *model.UserTask) []any {
	return []any{
		&ut.ID,
		&ut.UserID,
		&ut.TaskID,
		&ut.Status,
		&ut.TakenAt,
		&ut.ExpiresAt,
		&ut.SubmittedAt,
		&ut.ApprovedAt,
		&ut.Proof,
		&ut.ProofFiles,
		&ut.ProofLinks,
		&ut.AdminComment,
		&ut.ReviewedBy,
	}
}

func scanUserTask(row pgx.Row) (*model.UserTask, error) {
	var ut model.UserTask
	if err := row.Scan(userTaskDest(&ut)...); err != nil {
		return nil, err
	}
	return &ut, nil
}

func (r *UserTaskRepository) getOne(ctx context.Context, query string, args ...any) (*model.UserTask, error) {
	ut, err := scanUserTask(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserTaskNotFound
		}
		return nil, fmt.Errorf("failed to get user task: %w", err)
	}
	return ut, nil
}

func (r *UserTaskRepository) list(ctx context.Context, query string, args ...any) ([]*model.UserTask, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list user tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.UserTask
	for rows.Next() {
		ut, err := scanUserTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user task: %w", err)
		}
		out = append(out, ut)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user tasks: %w", err)
	}
	return out, nil
}

// Create inserts a taken attempt. Returns ErrActiveAttempt when the partial
// unique index reports a concurrent non-terminal attempt.
func (r *UserTaskRepository) Create(ctx context.Context, userID, taskID int64, takenAt, expiresAt time.Time) (*model.UserTask, error) {
	query := `
		INSERT INTO user_tasks AS ut (user_id, task_id, status, taken_at, expires_at)
		VALUES ($1, $2, 'taken', $3, $4)
		RETURNING ` + userTaskColumns

	ut, err := scanUserTask(r.q.QueryRow(ctx, query, userID, taskID, takenAt, expiresAt))
	if err != nil {
		if db.IsUniqueViolation(err, schema.IndexActiveUserTask) {
			return nil, ErrActiveAttempt
		}
		return nil, fmt.Errorf("failed to create user task: %w", err)
	}
	return ut, nil
}

// GetByID retrieves an attempt.
func (r *UserTaskRepository) GetByID(ctx context.Context, id int64) (*model.UserTask, error) {
	query := `SELECT ` + userTaskColumns + ` FROM user_tasks ut WHERE ut.id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves an attempt and locks it.
func (r *UserTaskRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.UserTask, error) {
	query := `SELECT ` + userTaskColumns + ` FROM user_tasks ut WHERE ut.id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// FindActive returns the user's non-terminal attempt at the task, locked for
// update. Returns ErrUserTaskNotFound when there is none.
func (r *UserTaskRepository) FindActive(ctx context.Context, userID, taskID int64) (*model.UserTask, error) {
	query := `SELECT ` + userTaskColumns + ` FROM user_tasks ut
		WHERE ut.user_id = $1 AND ut.task_id = $2 AND ut.status = ANY($3)
		ORDER BY ut.taken_at DESC, ut.id DESC
		LIMIT 1
		FOR UPDATE`
	return r.getOne(ctx, query, userID, taskID, activeStatusNames())
}

// ListByUser returns every attempt of a user, newest first.
func (r *UserTaskRepository) ListByUser(ctx context.Context, userID int64) ([]*model.UserTask, error) {
	query := `SELECT ` + userTaskColumns + ` FROM user_tasks ut
		WHERE ut.user_id = $1
		ORDER BY ut.taken_at DESC, ut.id DESC`
	return r.list(ctx, query, userID)
}

// LatestByUser returns the most recent attempt per task for a user, keyed by task ID.
func (r *UserTaskRepository) LatestByUser(ctx context.Context, userID int64) (map[int64]*model.UserTask, error) {
	query := `SELECT DISTINCT ON (ut.task_id) ` + userTaskColumns + ` FROM user_tasks ut
		WHERE ut.user_id = $1
		ORDER BY ut.task_id, ut.taken_at DESC, ut.id DESC`

	attempts, err := r.list(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	byTask := make(map[int64]*model.UserTask, len(attempts))
	for _, ut := range attempts {
		byTask[ut.TaskID] = ut
	}
	return byTask, nil
}

// ListIDsByStatus returns attempt IDs in the given state, oldest submission first.
func (r *UserTaskRepository) ListIDsByStatus(ctx context.Context, status model.UserTaskStatus) ([]int64, error) {
	const query = `SELECT id FROM user_tasks WHERE status = $1 ORDER BY submitted_at NULLS LAST, id`

	rows, err := r.q.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list user task ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListDetailsByStatus returns attempts joined with task and user data, for moderation.
func (r *UserTaskRepository) ListDetailsByStatus(ctx context.Context, status model.UserTaskStatus) ([]*model.UserTaskDetail, error) {
	query := `SELECT ` + userTaskColumns + `, t.title, t.reward, u.email,
			TRIM(u.first_name || ' ' || u.last_name)
		FROM user_tasks ut
		JOIN tasks t ON t.id = ut.task_id
		JOIN users u ON u.id = ut.user_id
		WHERE ut.status = $1
		ORDER BY ut.submitted_at NULLS LAST, ut.id`

	rows, err := r.q.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation queue: %w", err)
	}
	defer rows.Close()

	var out []*model.UserTaskDetail
	for rows.Next() {
		var d model.UserTaskDetail
		dest := append(userTaskDest(&d.UserTask), &d.TaskTitle, &d.Reward, &d.UserEmail, &d.UserName)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan moderation row: %w", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moderation queue: %w", err)
	}
	return out, nil
}

// MarkSubmitted moves an attempt to submitted and stores the proof.
func (r *UserTaskRepository) MarkSubmitted(ctx context.Context, id int64, proof *string, files, links []string, at time.Time) (*model.UserTask, error) {
	query := `
		UPDATE user_tasks AS ut SET status = 'submitted', submitted_at = $2, proof = $3,
			proof_files = $4, proof_links = $5
		WHERE ut.id = $1
		RETURNING ` + userTaskColumns
	return r.getOne(ctx, query, id, at, proof, nonNil(files), nonNil(links))
}

// MarkReviewed records an admin decision. approvedAt is set only for approvals.
func (r *UserTaskRepository) MarkReviewed(ctx context.Context, id int64, status model.UserTaskStatus, comment *string, reviewer int64, approvedAt *time.Time) (*model.UserTask, error) {
	query := `
		UPDATE user_tasks AS ut SET status = $2, admin_comment = $3, reviewed_by = $4,
			approved_at = COALESCE($5, ut.approved_at)
		WHERE ut.id = $1
		RETURNING ` + userTaskColumns
	return r.getOne(ctx, query, id, status, comment, reviewer, approvedAt)
}

// MarkExpired moves a single taken attempt to expired.
func (r *UserTaskRepository) MarkExpired(ctx context.Context, id int64) error {
	const query = `UPDATE user_tasks SET status = 'expired' WHERE id = $1 AND status = 'taken'`

	if _, err := r.q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to expire user task: %w", err)
	}
	return nil
}

// ExpireOverdue expires every taken attempt of the user whose deadline passed
// before now. Returns the expired attempts.
func (r *UserTaskRepository) ExpireOverdue(ctx context.Context, userID int64, now time.Time) ([]*model.UserTask, error) {
	query := `
		UPDATE user_tasks AS ut SET status = 'expired'
		WHERE ut.user_id = $1 AND ut.status = 'taken' AND ut.expires_at < $2
		RETURNING ` + userTaskColumns
	return r.list(ctx, query, userID, now)
}

// Stats counts a user's attempts per state and sums the approved rewards.
func (r *UserTaskRepository) Stats(ctx context.Context, userID int64) (*model.TaskStats, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE ut.status = 'taken'),
			COUNT(*) FILTER (WHERE ut.status = 'submitted'),
			COUNT(*) FILTER (WHERE ut.status = 'approved'),
			COUNT(*) FILTER (WHERE ut.status = 'rejected'),
			COUNT(*) FILTER (WHERE ut.status = 'revision'),
			COUNT(*) FILTER (WHERE ut.status = 'expired'),
			COALESCE(SUM(t.reward) FILTER (WHERE ut.status = 'approved'), 0)
		FROM user_tasks ut
		JOIN tasks t ON t.id = ut.task_id
		WHERE ut.user_id = $1
	`
	var s model.TaskStats
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&s.Taken, &s.Submitted, &s.Approved, &s.Rejected, &s.Revision, &s.Expired, &s.TotalEarned,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get task stats: %w", err)
	}
	return &s, nil
}

func activeStatusNames() []string {
	active := model.ActiveStatuses()
	names := make([]string, len(active))
	for i, s := range active {
		names[i] = string(s)
	}
	return names
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
