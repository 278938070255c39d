// Integration tests for the services. They run against a PostgreSQL container
// and are skipped when Docker is not available.
package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"hr-portal/internal/auth"
	"hr-portal/internal/model"
	"hr-portal/internal/pkg/lock"
	"hr-portal/internal/pkg/testdb"
	"hr-portal/internal/repository"
	"hr-portal/internal/schema"
)

const testAdminSecret = "letmein"

type testEnv struct {
	pool         *pgxpool.Pool
	settings     *SettingsStore
	events       *EventLog
	accounts     *AccountService
	tasks        *TaskService
	chat         *ChatService
	withdrawals  *WithdrawalService
	verification *VerificationService
	rankings     *RankingService
	news         *NewsService
	userTasks    *repository.UserTaskRepository
}

// clock is a settable time source shared by the services under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func setupEnv(t *testing.T, opts TaskOptions) *testEnv {
	t.Helper()
	pool := testdb.New(t)
	report := schema.NewEvolver(pool).Run(context.Background())
	require.Empty(t, report.Failed())

	users := repository.NewUserRepository(pool)
	userTasks := repository.NewUserTaskRepository(pool)
	locks := lock.NewUserLock(5 * time.Second)

	settings := NewSettingsStore(repository.NewSettingRepository(pool), decimal.NewFromInt(50))
	events := NewEventLog(repository.NewEventRepository(pool))
	chat := NewChatService(pool, users, repository.NewChatRepository(pool), nil)

	return &testEnv{
		pool:     pool,
		settings: settings,
		events:   events,
		accounts: NewAccountService(pool, users, settings, events, chat,
			auth.NewPasswordHasher(bcrypt.MinCost), nil, decimal.NewFromInt(100), testAdminSecret),
		tasks: NewTaskService(pool, users, repository.NewTaskRepository(pool), userTasks,
			events, locks, nil, opts),
		chat:         chat,
		withdrawals:  NewWithdrawalService(pool, users, repository.NewWithdrawalRepository(pool), events, locks, nil),
		verification: NewVerificationService(pool, users, repository.NewVerificationRepository(pool), events, nil),
		rankings:     NewRankingService(repository.NewRankingRepository(pool)),
		news:         NewNewsService(users, repository.NewNewsRepository(pool)),
		userTasks:    userTasks,
	}
}

func (e *testEnv) register(t *testing.T, email string) *model.User {
	t.Helper()
	user, err := e.accounts.Register(context.Background(), Registration{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Password:  "password123",
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) admin(t *testing.T) *model.User {
	t.Helper()
	user := e.register(t, "admin@example.com")
	admin, err := e.accounts.GrantAdminWithSecret(context.Background(), user.ID, testAdminSecret)
	require.NoError(t, err)
	require.True(t, admin.IsAdmin)
	return admin
}

func (e *testEnv) task(t *testing.T, adminID int64, reward string, level model.Level) *model.Task {
	t.Helper()
	task, err := e.tasks.CreateTask(context.Background(), adminID, TaskInput{
		Title:         "Write a review",
		Description:   "Leave a review on the product page",
		RequiredProof: "Screenshot",
		Reward:        decimal.RequireFromString(reward),
		LevelRequired: level,
		IsActive:      true,
	})
	require.NoError(t, err)
	return task
}

func eventTypes(t *testing.T, e *testEnv, userID int64) []string {
	t.Helper()
	events, err := e.events.List(context.Background(), userID, 100)
	require.NoError(t, err)
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.EventType
	}
	return types
}

// ============================================================================
// Accounts
// ============================================================================

func TestAccountService_RegisterFreezesMinimum(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()

	first := env.register(t, "first@example.com")
	assert.True(t, first.MinWithdrawalAmount.Equal(decimal.NewFromInt(50)))
	assert.True(t, first.Balance.Equal(decimal.NewFromInt(100)))

	require.NoError(t, env.settings.SetGlobalMinWithdrawal(ctx, decimal.NewFromInt(75)))
	second := env.register(t, "second@example.com")
	assert.True(t, second.MinWithdrawalAmount.Equal(decimal.NewFromInt(75)))

	reloaded, err := env.accounts.GetUser(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.MinWithdrawalAmount.Equal(decimal.NewFromInt(50)), "existing users keep their minimum")

	assert.Contains(t, eventTypes(t, env, first.ID), model.EventAccountCreated)
}

func TestAccountService_RegisterRejectsDuplicateEmail(t *testing.T) {
	env := setupEnv(t, TaskOptions{})

	env.register(t, "dup@example.com")
	_, err := env.accounts.Register(context.Background(), Registration{
		FirstName: "Other", Email: "DUP@example.com", Password: "password123",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAccountService_Login(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	user := env.register(t, "login@example.com")

	got, err := env.accounts.Login(ctx, "Login@Example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = env.accounts.Login(ctx, "login@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.accounts.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccountService_GrantAdminWithSecret(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	user := env.register(t, "user@example.com")

	_, err := env.accounts.GrantAdminWithSecret(context.Background(), user.ID, "nope")
	assert.ErrorIs(t, err, ErrIneligible)

	admin, err := env.accounts.GrantAdminWithSecret(context.Background(), user.ID, testAdminSecret)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	assert.Contains(t, eventTypes(t, env, user.ID), model.EventAdminGranted)
}

func TestAccountService_AdminUpdateRecordsChanges(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	user := env.register(t, "user@example.com")

	level := model.LevelGold
	balance := decimal.RequireFromString("250.50")
	updated, err := env.accounts.AdminUpdate(ctx, admin.ID, user.ID, AdminUserUpdate{
		Level:   &level,
		Balance: &balance,
	})
	require.NoError(t, err)
	assert.Equal(t, model.LevelGold, updated.Level)
	assert.True(t, updated.Balance.Equal(balance))

	events, err := env.events.List(ctx, user.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, model.EventAdminUpdate, events[0].EventType)
	assert.Contains(t, events[0].EventData, "level")
	assert.Contains(t, events[0].EventData, "balance")

	_, err = env.accounts.AdminUpdate(ctx, user.ID, admin.ID, AdminUserUpdate{Level: &level})
	assert.ErrorIs(t, err, ErrNotAdmin)
}

// ============================================================================
// Task lifecycle
// ============================================================================

func TestTaskService_TakeChecks(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	user := env.register(t, "user@example.com")

	_, err := env.tasks.Take(ctx, user.ID, 9999)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	gold := env.task(t, admin.ID, "10", model.LevelGold)
	_, err = env.tasks.Take(ctx, user.ID, gold.ID)
	assert.ErrorIs(t, err, ErrIneligible)

	basic := env.task(t, admin.ID, "10", model.LevelBasic)
	_, err = env.tasks.ToggleTask(ctx, admin.ID, basic.ID)
	require.NoError(t, err)
	_, err = env.tasks.Take(ctx, user.ID, basic.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = env.tasks.ToggleTask(ctx, admin.ID, basic.ID)
	require.NoError(t, err)
	attempt, err := env.tasks.Take(ctx, user.ID, basic.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTaken, attempt.Status)
	assert.WithinDuration(t, attempt.TakenAt.Add(24*time.Hour), attempt.ExpiresAt, time.Second)

	_, err = env.tasks.Take(ctx, user.ID, basic.ID)
	assert.ErrorIs(t, err, ErrTaskAlreadyTaken)
}

func TestTaskService_NoDoubleTake(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	user := env.register(t, "user@example.com")
	task := env.task(t, admin.ID, "10", model.LevelBasic)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.tasks.Take(ctx, user.ID, task.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	attempts, err := env.tasks.ListUserTasks(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestTaskService_ApprovalScenario(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	user := env.register(t, "user@example.com")
	task := env.task(t, admin.ID, "15.50", model.LevelBasic)

	attempt, err := env.tasks.Take(ctx, user.ID, task.ID)
	require.NoError(t, err)

	// Reviewing before submission is not allowed.
	_, err = env.tasks.Review(ctx, admin.ID, attempt.ID, model.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NotErrorIs(t, err, ErrConflict)

	_, err = env.tasks.Submit(ctx, user.ID, task.ID, Proof{Text: "done", Links: []string{"https://example.org/r/1"}})
	require.NoError(t, err)

	_, err = env.tasks.Review(ctx, admin.ID, attempt.ID, model.DecisionRevision, "")
	assert.ErrorIs(t, err, ErrPolicy, "revision requires a comment")

	revised, err := env.tasks.Review(ctx, admin.ID, attempt.ID, model.DecisionRevision, "Screenshot is missing")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRevision, revised.Status)
	require.NotNil(t, revised.Proof)
	assert.Equal(t, "done", *revised.Proof, "proof is kept for revision")

	resubmitted, err := env.tasks.Submit(ctx, user.ID, task.ID, Proof{Files: []string{"/uploads/shot.png"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, resubmitted.Status)
	assert.Equal(t, "done", *resubmitted.Proof)
	assert.Equal(t, []string{"/uploads/shot.png"}, resubmitted.ProofFiles)
	assert.Equal(t, []string{"https://example.org/r/1"}, resubmitted.ProofLinks)

	approved, err := env.tasks.Review(ctx, admin.ID, attempt.ID, model.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)

	reloaded, err := env.accounts.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("115.50")), "balance %s", reloaded.Balance)

	_, err = env.tasks.Review(ctx, admin.ID, attempt.ID, model.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrInvalidState)

	stats, err := env.tasks.Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Approved)
	assert.True(t, stats.TotalEarned.Equal(decimal.RequireFromString("15.50")))

	types := eventTypes(t, env, user.ID)
	for _, want := range []string{model.EventTaskTaken, model.EventTaskSubmitted, model.EventTaskRevision, model.EventTaskApproved} {
		assert.Contains(t, types, want)
	}

	// The task can be taken again once the previous attempt is final.
	_, err = env.tasks.Take(ctx, user.ID, task.ID)
	assert.NoError(t, err)
}

func TestTaskService_RejectDoesNotCredit(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	user := env.register(t, "user@example.com")
	task := env.task(t, admin.ID, "10", model.LevelBasic)

	attempt, err := env.tasks.Take(ctx, user.ID, task.ID)
	require.NoError(t, err)
	_, err = env.tasks.Submit(ctx, user.ID, task.ID, Proof{Text: "proof"})
	require.NoError(t, err)

	rejected, err := env.tasks.Review(ctx, admin.ID, attempt.ID, model.DecisionReject, "Not acceptable")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)

	reloaded, err := env.accounts.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(decimal.NewFromInt(100)))

	_, err = env.tasks.Submit(ctx, user.ID, task.ID, Proof{Text: "again"})
	assert.ErrorIs(t, err, ErrUserTaskNotFound)
}

func TestTaskService_ApproveAll(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	task := env.task(t, admin.ID, "5", model.LevelBasic)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		user := env.register(t, email)
		_, err := env.tasks.Take(ctx, user.ID, task.ID)
		require.NoError(t, err)
		_, err = env.tasks.Submit(ctx, user.ID, task.ID, Proof{Text: "proof"})
		require.NoError(t, err)
	}

	queue, err := env.tasks.ListModeration(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 3)

	n, err := env.tasks.ApproveAll(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	queue, err = env.tasks.ListModeration(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	top, err := env.rankings.MostProductive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, 1, top[0].Approved)
}

func TestTaskService_LazyExpiry(t *testing.T) {
	env := setupEnv(t, TaskOptions{DefaultTimeLimit: time.Hour, ExpirationEnabled: true})
	ctx := context.Background()
	clk := &clock{t: now()}
	env.tasks.now = clk.Now

	admin := env.admin(t)
	user := env.register(t, "user@example.com")
	task := env.task(t, admin.ID, "10", model.LevelBasic)

	first, err := env.tasks.Take(ctx, user.ID, task.ID)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = env.tasks.Submit(ctx, user.ID, task.ID, Proof{Text: "late"})
	assert.ErrorIs(t, err, ErrAttemptExpired)

	expired, err := env.userTasks.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, expired.Status)
	assert.Contains(t, eventTypes(t, env, user.ID), model.EventTaskExpired)

	second, err := env.tasks.Take(ctx, user.ID, task.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTaskService_ExpiryDisabledKeepsAttempt(t *testing.T) {
	env := setupEnv(t, TaskOptions{DefaultTimeLimit: time.Hour})
	ctx := context.Background()
	clk := &clock{t: now()}
	env.tasks.now = clk.Now

	admin := env.admin(t)
	user := env.register(t, "user@example.com")
	task := env.task(t, admin.ID, "10", model.LevelBasic)

	_, err := env.tasks.Take(ctx, user.ID, task.ID)
	require.NoError(t, err)

	clk.Advance(48 * time.Hour)
	submitted, err := env.tasks.Submit(ctx, user.ID, task.ID, Proof{Text: "late but fine"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, submitted.Status)
}

// ============================================================================
// Withdrawals
// ============================================================================

func TestWithdrawalService_Request(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	user := env.register(t, "user@example.com")

	require.True(t, user.WithdrawalEnabled, "new users may withdraw")

	n, err := env.withdrawals.SetAllEnabled(ctx, admin.ID, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "admins are not affected")

	_, err = env.withdrawals.Request(ctx, user.ID, "USDT-TRC20", decimal.NewFromInt(60), "TAddr")
	assert.ErrorIs(t, err, ErrWithdrawalDisabled)

	n, err = env.withdrawals.SetAllEnabled(ctx, admin.ID, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = env.withdrawals.Request(ctx, user.ID, "USDT-TRC20", decimal.NewFromInt(40), "TAddr")
	assert.ErrorIs(t, err, ErrBelowMinimum)
	_, err = env.withdrawals.Request(ctx, user.ID, "USDT-TRC20", decimal.NewFromInt(101), "TAddr")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Sub-cent amounts are rejected rather than rounded across a bound.
	_, err = env.withdrawals.Request(ctx, user.ID, "USDT-TRC20", decimal.RequireFromString("49.995"), "TAddr")
	assert.ErrorIs(t, err, ErrAmountPrecision)
	_, err = env.withdrawals.Request(ctx, user.ID, "USDT-TRC20", decimal.RequireFromString("100.004"), "TAddr")
	assert.ErrorIs(t, err, ErrAmountPrecision)

	untouched, err := env.accounts.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, untouched.Balance.Equal(decimal.NewFromInt(100)), "rejected requests debit nothing")

	req, err := env.withdrawals.Request(ctx, user.ID, "USDT-TRC20", decimal.NewFromInt(60), "TAddr")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalPending, req.Status)

	reloaded, err := env.accounts.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(decimal.NewFromInt(40)))

	done, err := env.withdrawals.Complete(ctx, admin.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalCompleted, done.Status)

	_, err = env.withdrawals.Complete(ctx, admin.ID, req.ID)
	assert.ErrorIs(t, err, ErrWithdrawalCompleted)

	types := eventTypes(t, env, user.ID)
	assert.Contains(t, types, model.EventWithdrawalRequest)
	assert.Contains(t, types, model.EventWithdrawalCompleted)
}

func TestWithdrawalService_BalanceConservation(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	user := env.register(t, "user@example.com")
	_, err := env.withdrawals.SetAllEnabled(ctx, admin.ID, true)
	require.NoError(t, err)

	minimum := decimal.NewFromInt(10)
	_, err = env.accounts.AdminUpdate(ctx, admin.ID, user.ID, AdminUserUpdate{MinWithdrawalAmount: &minimum})
	require.NoError(t, err)

	const workers = 10
	amount := decimal.NewFromInt(30)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.withdrawals.Request(ctx, user.ID, "BTC", amount, "bc1q")
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientBalance)
			}
		}()
	}
	wg.Wait()

	reqs, err := env.withdrawals.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, reqs, 3)

	reloaded, err := env.accounts.GetUser(ctx, user.ID)
	require.NoError(t, err)

	withdrawn := decimal.Zero
	for _, r := range reqs {
		withdrawn = withdrawn.Add(r.Amount)
	}
	assert.True(t, reloaded.Balance.Add(withdrawn).Equal(decimal.NewFromInt(100)),
		"balance %s + withdrawn %s", reloaded.Balance, withdrawn)
	assert.False(t, reloaded.Balance.IsNegative())
}

// ============================================================================
// Chat and unread tracking
// ============================================================================

func TestChatService_UnreadCounts(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	clk := &clock{t: now()}
	env.chat.now = clk.Now

	alice := env.register(t, "alice@example.com")
	bob := env.register(t, "bob@example.com")

	general := model.ChatGeneral
	n, err := env.chat.UnreadCount(ctx, alice.ID, &general)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(time.Second)
	_, err = env.chat.Send(ctx, bob.ID, model.ChatGeneral, "hello", nil)
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = env.chat.Send(ctx, alice.ID, model.ChatGeneral, "hi bob", nil)
	require.NoError(t, err)

	n, err = env.chat.UnreadCount(ctx, alice.ID, &general)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "own messages are never unread")

	n, err = env.chat.UnreadCount(ctx, bob.ID, &general)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Marking read at the instant of the last message reads it.
	_, err = env.chat.MarkRead(ctx, alice.ID, model.ChatGeneral)
	require.NoError(t, err)
	n, err = env.chat.UnreadCount(ctx, alice.ID, &general)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(time.Second)
	_, err = env.chat.Send(ctx, bob.ID, model.ChatGeneral, "are you there?", nil)
	require.NoError(t, err)

	total, err := env.chat.UnreadCount(ctx, alice.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// Listing does not mark read.
	msgs, err := env.chat.List(ctx, alice.ID, model.ChatGeneral, 50)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	total, err = env.chat.UnreadCount(ctx, alice.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestChatService_WatermarkNeverRegresses(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	start := now()
	clk := &clock{t: start}
	env.chat.now = clk.Now

	alice := env.register(t, "alice@example.com")
	bob := env.register(t, "bob@example.com")

	clk.Advance(10 * time.Second)
	first, err := env.chat.MarkRead(ctx, alice.ID, model.ChatGeneral)
	require.NoError(t, err)

	clk.Set(start.Add(5 * time.Second))
	_, err = env.chat.Send(ctx, bob.ID, model.ChatGeneral, "from the past", nil)
	require.NoError(t, err)

	second, err := env.chat.MarkRead(ctx, alice.ID, model.ChatGeneral)
	require.NoError(t, err)
	assert.True(t, second.Equal(first), "watermark moved from %v to %v", first, second)

	general := model.ChatGeneral
	n, err := env.chat.UnreadCount(ctx, alice.ID, &general)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChatService_SupportInbox(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	clk := &clock{t: now()}
	env.chat.now = clk.Now

	admin := env.admin(t)
	user := env.register(t, "user@example.com")

	clk.Advance(time.Second)
	_, err := env.chat.Send(ctx, user.ID, model.ChatSupport, "I need help", nil)
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = env.chat.Send(ctx, user.ID, model.ChatSupport, "Anyone?", nil)
	require.NoError(t, err)

	counts, err := env.chat.AdminUnreadCounts(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[user.ID])

	convs, err := env.chat.Conversations(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, user.ID, convs[0].UserID)
	assert.Equal(t, 2, convs[0].Unread)

	_, err = env.chat.AdminMarkRead(ctx, admin.ID, user.ID)
	require.NoError(t, err)
	counts, err = env.chat.AdminUnreadCounts(ctx, admin.ID)
	require.NoError(t, err)
	assert.Zero(t, counts[user.ID])

	clk.Advance(time.Second)
	_, err = env.chat.Send(ctx, admin.ID, model.ChatSupport, "How can we help?", nil)
	assert.ErrorIs(t, err, ErrPolicy, "admin support reply needs a recipient")
	_, err = env.chat.Send(ctx, admin.ID, model.ChatSupport, "How can we help?", &user.ID)
	require.NoError(t, err)

	support := model.ChatSupport
	n, err := env.chat.UnreadCount(ctx, user.ID, &support)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	thread, err := env.chat.ConversationMessages(ctx, user.ID, 50)
	require.NoError(t, err)
	assert.Len(t, thread, 3)
}

func TestChatService_WelcomeMessage(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	require.NoError(t, env.settings.SetWelcomeMessage(ctx, "Welcome aboard!"))

	user := env.register(t, "user@example.com")

	support := model.ChatSupport
	n, err := env.chat.UnreadCount(ctx, user.ID, &support)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs, err := env.chat.List(ctx, user.ID, model.ChatSupport, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Welcome aboard!", msgs[0].Message)
	assert.Equal(t, model.SystemSenderID, msgs[0].SenderID)

	admin := env.admin(t)
	sent, err := env.chat.SendWelcomeToAll(ctx, admin.ID, "Hello everyone")
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "admins are not messaged")
}

// ============================================================================
// Verification and news
// ============================================================================

func TestVerificationService_Flow(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	user := env.register(t, "user@example.com")

	status, err := env.verification.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, status)

	front := "/uploads/front.jpg"
	submission := VerificationSubmission{
		FullName:       "Test User",
		DateOfBirth:    "1990-01-01",
		PassportNumber: "AB123456",
		DocumentFront:  &front,
	}
	req, err := env.verification.Submit(ctx, user.ID, submission)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationPending, req.Status)

	_, err = env.verification.Submit(ctx, user.ID, submission)
	assert.ErrorIs(t, err, ErrVerificationInProgress)

	reviewed, err := env.verification.Review(ctx, admin.ID, req.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, model.VerificationApproved, reviewed.Status)

	_, err = env.verification.Review(ctx, admin.ID, req.ID, false, "")
	assert.ErrorIs(t, err, ErrNotPending)

	reloaded, err := env.accounts.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsVerified)

	_, err = env.verification.Submit(ctx, user.ID, submission)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestNewsService(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)

	item, err := env.news.Create(ctx, admin.ID, "Payouts", "Payouts run on Fridays")
	require.NoError(t, err)

	items, err := env.news.ListActive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, env.news.Deactivate(ctx, admin.ID, item.ID))
	items, err = env.news.ListActive(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, env.news.Deactivate(ctx, admin.ID, 9999), ErrNewsNotFound)
}

func TestAccountService_Onboarding(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	user := env.register(t, "new@example.com")
	assert.False(t, user.TourCompleted)
	assert.False(t, user.DocumentsAccepted)

	toured, err := env.accounts.CompleteTour(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, toured.TourCompleted)

	accepted, err := env.accounts.AcceptDocuments(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, accepted.DocumentsAccepted)
	assert.True(t, accepted.TourCompleted)
}

// ============================================================================
// Leaderboards
// ============================================================================

func TestRankingService_Boards(t *testing.T) {
	env := setupEnv(t, TaskOptions{})
	ctx := context.Background()
	admin := env.admin(t)
	alice := env.register(t, "alice@example.com")
	bob := env.register(t, "bob@example.com")
	task := env.task(t, admin.ID, "10", model.LevelBasic)

	complete := func(userID int64, decision model.ReviewDecision) {
		attempt, err := env.tasks.Take(ctx, userID, task.ID)
		require.NoError(t, err)
		_, err = env.tasks.Submit(ctx, userID, task.ID, Proof{Text: "done"})
		require.NoError(t, err)
		_, err = env.tasks.Review(ctx, admin.ID, attempt.ID, decision, "")
		require.NoError(t, err)
	}
	complete(alice.ID, model.DecisionApprove)
	complete(alice.ID, model.DecisionApprove)
	complete(bob.ID, model.DecisionReject)

	earners, err := env.rankings.TopEarners(ctx, 10)
	require.NoError(t, err)
	require.Len(t, earners, 2, "admins are not ranked")
	assert.Equal(t, alice.ID, earners[0].UserID)
	assert.True(t, earners[0].Score.Equal(decimal.NewFromInt(120)))

	productive, err := env.rankings.MostProductive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, productive, 1)
	assert.Equal(t, alice.ID, productive[0].UserID)
	assert.Equal(t, 2, productive[0].Approved)

	quality, err := env.rankings.QualityLeaders(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, quality, 2)
	assert.Equal(t, alice.ID, quality[0].UserID)
	assert.True(t, quality[0].Score.Equal(decimal.NewFromInt(100)))
	assert.True(t, quality[1].Score.IsZero())

	strict, err := env.rankings.QualityLeaders(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, strict, 1)
	assert.Equal(t, alice.ID, strict[0].UserID)
}
