package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
	"hr-portal/internal/pkg/lock"
	"hr-portal/internal/repository"
)

// TaskOptions configures the task lifecycle.
type TaskOptions struct {
	// DefaultTimeLimit bounds attempts at tasks without their own time limit.
	DefaultTimeLimit time.Duration
	// ExpirationEnabled turns on lazy expiry of overdue taken attempts.
	ExpirationEnabled bool
}

// TaskInput is the admin-editable definition of a task.
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

// Proof is what a user submits for an attempt. Empty text keeps the text of an
// earlier submission; nil Files or Links keep the earlier lists.
type Proof struct {
	Text  string
	Files []string
	Links []string
}

// TaskService drives attempts through taken, submitted, revision, approved,
// rejected and expired. Every transition commits together with its balance
// change and audit event.
type TaskService struct {
	pool      *pgxpool.Pool
	users     *repository.UserRepository
	tasks     *repository.TaskRepository
	userTasks *repository.UserTaskRepository
	events    *EventLog
	locks     *lock.UserLock
	notifier  Notifier
	opts      TaskOptions
	now       func() time.Time
}

// NewTaskService creates a new TaskService instance.
func NewTaskService(
	pool *pgxpool.Pool,
	users *repository.UserRepository,
	tasks *repository.TaskRepository,
	userTasks *repository.UserTaskRepository,
	events *EventLog,
	locks *lock.UserLock,
	notifier Notifier,
	opts TaskOptions,
) *TaskService {
	if opts.DefaultTimeLimit <= 0 {
		opts.DefaultTimeLimit = 24 * time.Hour
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &TaskService{
		pool:      pool,
		users:     users,
		tasks:     tasks,
		userTasks: userTasks,
		events:    events,
		locks:     locks,
		notifier:  notifier,
		opts:      opts,
		now:       now,
	}
}

func validateTaskInput(in TaskInput) (repository.TaskInput, error) {
	out := repository.TaskInput{
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		RequiredProof:  strings.TrimSpace(in.RequiredProof),
		Reward:         in.Reward,
		ExpiresAt:      in.ExpiresAt,
		TimeLimitHours: in.TimeLimitHours,
		IsActive:       in.IsActive,
	}
	if out.Title == "" {
		return out, invalidInput("title is required")
	}
	if in.Reward.IsNegative() {
		return out, invalidInput("reward must not be negative")
	}
	level := in.LevelRequired
	if level == "" {
		level = model.LevelBasic
	}
	parsed, err := model.ParseLevel(string(level))
	if err != nil {
		return out, invalidInput("%v", err)
	}
	out.LevelRequired = parsed
	if in.TimeLimitHours != nil && *in.TimeLimitHours <= 0 {
		return out, invalidInput("time limit must be positive")
	}
	return out, nil
}

// CreateTask creates a task on behalf of an admin.
func (s *TaskService) CreateTask(ctx context.Context, adminID int64, in TaskInput) (*model.Task, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return nil, err
	}
	input, err := validateTaskInput(in)
	if err != nil {
		return nil, err
	}
	task, err := s.tasks.Create(ctx, adminID, input)
	if err != nil {
		return nil, storageErr("create task", err)
	}
	log.Info().
		Int64("task_id", task.ID).
		Int64("admin_id", adminID).
		Str("reward", task.Reward.StringFixed(2)).
		Msg("Task created")
	return task, nil
}

// UpdateTask replaces a task definition. Existing attempts keep their deadlines.
func (s *TaskService) UpdateTask(ctx context.Context, adminID, taskID int64, in TaskInput) (*model.Task, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return nil, err
	}
	input, err := validateTaskInput(in)
	if err != nil {
		return nil, err
	}
	task, err := s.tasks.Update(ctx, taskID, input)
	if err != nil {
		return nil, taskErr(err)
	}
	return task, nil
}

// ToggleTask flips whether a task can be taken.
func (s *TaskService) ToggleTask(ctx context.Context, adminID, taskID int64) (*model.Task, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return nil, err
	}
	task, err := s.tasks.ToggleActive(ctx, taskID)
	if err != nil {
		return nil, taskErr(err)
	}
	log.Info().Int64("task_id", taskID).Bool("active", task.IsActive).Msg("Task toggled")
	return task, nil
}

// ListTasks returns every task, for the admin view.
func (s *TaskService) ListTasks(ctx context.Context) ([]*model.Task, error) {
	tasks, err := s.tasks.List(ctx, false, s.now())
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	return tasks, nil
}

// ListAvailable returns the takeable tasks annotated with the user's latest
// attempt and whether the user's level qualifies.
func (s *TaskService) ListAvailable(ctx context.Context, userID int64) ([]*model.AvailableTask, error) {
	user, err := getUser(ctx, s.users, userID, false)
	if err != nil {
		return nil, err
	}
	if err := s.expireOverdue(ctx, userID); err != nil {
		return nil, err
	}

	tasks, err := s.tasks.List(ctx, true, s.now())
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	latest, err := s.userTasks.LatestByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("load attempts", err)
	}

	out := make([]*model.AvailableTask, 0, len(tasks))
	for _, t := range tasks {
		at := &model.AvailableTask{
			Task:     *t,
			Eligible: user.Level.Satisfies(t.LevelRequired),
		}
		if ut, ok := latest[t.ID]; ok {
			status := ut.Status
			id := ut.ID
			at.CurrentStatus = &status
			at.UserTaskID = &id
		}
		out = append(out, at)
	}
	return out, nil
}

// Take starts an attempt.
//
// Checks run in order: the user exists, the task exists, the task is active and
// not past its cutoff, the user's level qualifies, and the user holds no
// active attempt at the task. The partial unique index on active attempts
// catches a racing insert from another process.
func (s *TaskService) Take(ctx context.Context, userID, taskID int64) (*model.UserTask, error) {
	var attempt *model.UserTask
	err := withUserLock(ctx, s.locks, userID, func() error {
		return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
			users := s.users.WithTx(tx)
			userTasks := s.userTasks.WithTx(tx)

			user, err := getUser(ctx, users, userID, true)
			if err != nil {
				return err
			}
			task, err := s.tasks.WithTx(tx).GetByID(ctx, taskID)
			if err != nil {
				return taskErr(err)
			}

			now := s.now()
			if !task.AvailableAt(now) {
				return ErrTaskUnavailable
			}
			if !user.Level.Satisfies(task.LevelRequired) {
				return fmt.Errorf("%w: requires %s, user is %s", ErrLevelTooLow, task.LevelRequired, user.Level)
			}

			active, err := userTasks.FindActive(ctx, userID, taskID)
			switch {
			case errors.Is(err, repository.ErrUserTaskNotFound):
			case err != nil:
				return storageErr("find active attempt", err)
			case s.opts.ExpirationEnabled && active.Overdue(now):
				if err := s.expire(ctx, tx, active); err != nil {
					return err
				}
			default:
				return ErrTaskAlreadyTaken
			}

			deadline := model.AttemptDeadline(now, task.TimeLimitHours, s.opts.DefaultTimeLimit)
			attempt, err = userTasks.Create(ctx, userID, taskID, now, deadline)
			if err != nil {
				if errors.Is(err, repository.ErrActiveAttempt) {
					return ErrTaskAlreadyTaken
				}
				return storageErr("create attempt", err)
			}

			return s.events.Record(ctx, tx, userID, model.EventTaskTaken,
				fmt.Sprintf("Took task %q", task.Title),
				map[string]any{
					"task_id":      task.ID,
					"user_task_id": attempt.ID,
					"expires_at":   deadline,
				})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Int64("task_id", taskID).
		Int64("user_task_id", attempt.ID).
		Time("expires_at", attempt.ExpiresAt).
		Msg("Task taken")

	return attempt, nil
}

// Submit stores proof for the user's active attempt and moves it to submitted.
// With expiry enabled an overdue attempt is expired instead and
// ErrAttemptExpired is returned.
func (s *TaskService) Submit(ctx context.Context, userID, taskID int64, proof Proof) (*model.UserTask, error) {
	var (
		attempt *model.UserTask
		expired bool
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		userTasks := s.userTasks.WithTx(tx)

		current, err := userTasks.FindActive(ctx, userID, taskID)
		if err != nil {
			if errors.Is(err, repository.ErrUserTaskNotFound) {
				return ErrUserTaskNotFound
			}
			return storageErr("find active attempt", err)
		}

		now := s.now()
		if s.opts.ExpirationEnabled && current.Overdue(now) {
			expired = true
			return s.expire(ctx, tx, current)
		}
		if !current.Status.CanSubmit() {
			return fmt.Errorf("%w: cannot submit an attempt that is %s", ErrInvalidTransition, current.Status)
		}

		text, files, links := mergeProof(current, proof)
		if text == nil && len(files) == 0 && len(links) == 0 {
			return invalidInput("proof is required")
		}

		attempt, err = userTasks.MarkSubmitted(ctx, current.ID, text, files, links, now)
		if err != nil {
			return storageErr("submit attempt", err)
		}

		return s.events.Record(ctx, tx, userID, model.EventTaskSubmitted,
			"Submitted proof for review",
			map[string]any{
				"task_id":      taskID,
				"user_task_id": attempt.ID,
				"resubmission": current.Status == model.StatusRevision,
				"files":        len(files),
				"links":        len(links),
			})
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrAttemptExpired
	}

	log.Info().
		Int64("user_id", userID).
		Int64("user_task_id", attempt.ID).
		Msg("Task submitted")

	s.notifier.Notify(ctx, fmt.Sprintf("Task attempt #%d submitted for review by user #%d", attempt.ID, userID))

	return attempt, nil
}

// mergeProof combines a new submission with what the attempt already holds.
func mergeProof(current *model.UserTask, p Proof) (*string, []string, []string) {
	text := current.Proof
	if t := strings.TrimSpace(p.Text); t != "" {
		text = &t
	}
	files := current.ProofFiles
	if p.Files != nil {
		files = p.Files
	}
	links := current.ProofLinks
	if p.Links != nil {
		links = compact(p.Links)
	}
	return text, files, links
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Review applies an admin decision to a submitted attempt. Approval credits
// the task reward to the user in the same transaction.
func (s *TaskService) Review(ctx context.Context, adminID, userTaskID int64, decision model.ReviewDecision, comment string) (*model.UserTask, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return nil, err
	}
	target, err := decision.TargetStatus()
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	comment = strings.TrimSpace(comment)
	if target == model.StatusRevision && comment == "" {
		return nil, invalidInput("a revision request needs a comment")
	}

	var (
		attempt *model.UserTask
		task    *model.Task
	)
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		userTasks := s.userTasks.WithTx(tx)

		current, err := userTasks.GetByIDForUpdate(ctx, userTaskID)
		if err != nil {
			if errors.Is(err, repository.ErrUserTaskNotFound) {
				return ErrUserTaskNotFound
			}
			return storageErr("load attempt", err)
		}
		if current.Status.IsTerminal() {
			return ErrAlreadyReviewed
		}
		if !current.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: cannot review an attempt that is %s", ErrInvalidTransition, current.Status)
		}

		task, err = s.tasks.WithTx(tx).GetByID(ctx, current.TaskID)
		if err != nil {
			return taskErr(err)
		}

		var (
			approvedAt *time.Time
			note       *string
		)
		if comment != "" {
			note = &comment
		}
		if target == model.StatusApproved {
			at := s.now()
			approvedAt = &at
		}

		attempt, err = userTasks.MarkReviewed(ctx, current.ID, target, note, adminID, approvedAt)
		if err != nil {
			return storageErr("review attempt", err)
		}

		data := map[string]any{
			"task_id":      task.ID,
			"user_task_id": attempt.ID,
			"admin_id":     adminID,
		}
		if note != nil {
			data["comment"] = comment
		}

		switch target {
		case model.StatusApproved:
			if _, err := s.users.WithTx(tx).AddBalance(ctx, current.UserID, task.Reward); err != nil {
				return storageErr("credit reward", err)
			}
			data["reward"] = task.Reward.StringFixed(2)
			return s.events.Record(ctx, tx, current.UserID, model.EventTaskApproved,
				fmt.Sprintf("Task %q approved, reward %s credited", task.Title, task.Reward.StringFixed(2)), data)
		case model.StatusRejected:
			return s.events.Record(ctx, tx, current.UserID, model.EventTaskRejected,
				fmt.Sprintf("Task %q rejected", task.Title), data)
		default:
			return s.events.Record(ctx, tx, current.UserID, model.EventTaskRevision,
				fmt.Sprintf("Task %q sent back for revision", task.Title), data)
		}
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("admin_id", adminID).
		Int64("user_task_id", attempt.ID).
		Str("status", string(attempt.Status)).
		Msg("Task attempt reviewed")

	return attempt, nil
}

// ApproveAll approves every submitted attempt, each in its own transaction.
// Attempts reviewed concurrently by someone else are skipped. Returns the
// number approved.
func (s *TaskService) ApproveAll(ctx context.Context, adminID int64) (int, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return 0, err
	}
	ids, err := s.userTasks.ListIDsByStatus(ctx, model.StatusSubmitted)
	if err != nil {
		return 0, storageErr("list submitted attempts", err)
	}

	approved := 0
	for _, id := range ids {
		_, err := s.Review(ctx, adminID, id, model.DecisionApprove, "")
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
			log.Debug().Int64("user_task_id", id).Err(err).Msg("Skipping attempt in bulk approval")
		default:
			return approved, err
		}
	}

	log.Info().Int64("admin_id", adminID).Int("approved", approved).Msg("Bulk approval finished")
	return approved, nil
}

// ListUserTasks returns the user's attempts, newest first.
func (s *TaskService) ListUserTasks(ctx context.Context, userID int64) ([]*model.UserTask, error) {
	if err := s.expireOverdue(ctx, userID); err != nil {
		return nil, err
	}
	attempts, err := s.userTasks.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list attempts", err)
	}
	return attempts, nil
}

// ListModeration returns submitted attempts awaiting review, oldest first.
func (s *TaskService) ListModeration(ctx context.Context) ([]*model.UserTaskDetail, error) {
	queue, err := s.userTasks.ListDetailsByStatus(ctx, model.StatusSubmitted)
	if err != nil {
		return nil, storageErr("list moderation queue", err)
	}
	return queue, nil
}

// Stats returns per-state attempt counts and the total earned by a user.
func (s *TaskService) Stats(ctx context.Context, userID int64) (*model.TaskStats, error) {
	stats, err := s.userTasks.Stats(ctx, userID)
	if err != nil {
		return nil, storageErr("task stats", err)
	}
	return stats, nil
}

// expire moves one overdue attempt to expired inside tx.
func (s *TaskService) expire(ctx context.Context, tx pgx.Tx, ut *model.UserTask) error {
	if err := s.userTasks.WithTx(tx).MarkExpired(ctx, ut.ID); err != nil {
		return storageErr("expire attempt", err)
	}
	return s.events.Record(ctx, tx, ut.UserID, model.EventTaskExpired,
		"Task attempt expired",
		map[string]any{
			"task_id":      ut.TaskID,
			"user_task_id": ut.ID,
			"expires_at":   ut.ExpiresAt,
		})
}

// expireOverdue expires all of a user's overdue attempts when expiry is enabled.
func (s *TaskService) expireOverdue(ctx context.Context, userID int64) error {
	if !s.opts.ExpirationEnabled {
		return nil
	}
	var n int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		expired, err := s.userTasks.WithTx(tx).ExpireOverdue(ctx, userID, s.now())
		if err != nil {
			return storageErr("expire attempts", err)
		}
		for _, ut := range expired {
			if err := s.events.Record(ctx, tx, ut.UserID, model.EventTaskExpired,
				"Task attempt expired",
				map[string]any{"task_id": ut.TaskID, "user_task_id": ut.ID, "expires_at": ut.ExpiresAt},
			); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int64("user_id", userID).Int("expired", n).Msg("Expired overdue attempts")
	}
	return nil
}

func taskErr(err error) error {
	if errors.Is(err, repository.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return storageErr("load task", err)
}
